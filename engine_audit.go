package goSession

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/chunk"
	"github.com/MrEthical07/goSession/idp"
	"github.com/MrEthical07/goSession/profile"
	"github.com/google/uuid"
)

const (
	auditEventSessionRefreshed           = "session_refreshed"
	auditEventSessionRefreshFailed       = "session_refresh_failed"
	auditEventSessionRefreshDeduplicated = "session_refresh_deduplicated"
	auditEventSessionCleared             = "session_cleared"
	auditEventSessionPersisted           = "session_persisted"
	auditEventSessionDecodeRejected      = "session_decode_rejected"
	auditEventProfileSyncFailed          = "profile_sync_failed"
)

// AuditErrorCode is the redacted error classification recorded on events.
type AuditErrorCode string

const (
	auditErrChunkGap        AuditErrorCode = "chunk_gap"
	auditErrChunkAmbiguous  AuditErrorCode = "chunk_ambiguous"
	auditErrChunkMalformed  AuditErrorCode = "chunk_malformed"
	auditErrChunkEmpty      AuditErrorCode = "chunk_empty"
	auditErrChunkOversized  AuditErrorCode = "chunk_oversized"
	auditErrInvalidEnvelope AuditErrorCode = "invalid_envelope"
	auditErrPartialEnvelope AuditErrorCode = "partial_envelope"
	auditErrIdPRejected     AuditErrorCode = "idp_rejected"
	auditErrIdPUnavailable  AuditErrorCode = "idp_unavailable"
	auditErrIdPMalformed    AuditErrorCode = "idp_malformed"
	auditErrSealFailed      AuditErrorCode = "seal_failed"
	auditErrProfileStatus   AuditErrorCode = "profile_status"
	auditErrProfileError    AuditErrorCode = "profile_error"
	auditErrProfileDecode   AuditErrorCode = "profile_decode"
	auditErrInternal        AuditErrorCode = "internal_error"
)

type requestIDContextKey struct{}

// WithRequestID attaches a request id that is copied onto audit events.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

func (e *Engine) emitAudit(
	r *http.Request,
	eventType string,
	success bool,
	state State,
	chunks int,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	ctx := context.Background()
	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		State:     state.String(),
		Chunks:    chunks,
		Success:   success,
		Metadata:  metadata,
	}
	if r != nil {
		ctx = r.Context()
		event.RequestID = requestIDFromContext(ctx)
		event.Path = r.URL.Path
		event.IP = clientIP(r)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var rejected *idp.RejectedError
	switch {
	case errors.Is(err, chunk.ErrGap):
		return auditErrChunkGap
	case errors.Is(err, chunk.ErrAmbiguous):
		return auditErrChunkAmbiguous
	case errors.Is(err, chunk.ErrMalformedOrdinal):
		return auditErrChunkMalformed
	case errors.Is(err, chunk.ErrEmptyChunk):
		return auditErrChunkEmpty
	case errors.Is(err, chunk.ErrOversized):
		return auditErrChunkOversized
	case errors.Is(err, ErrPartialEnvelope):
		return auditErrPartialEnvelope
	case errors.Is(err, ErrEnvelopeInvalid):
		return auditErrInvalidEnvelope
	case errors.As(err, &rejected), errors.Is(err, idp.ErrRejected):
		return auditErrIdPRejected
	case errors.Is(err, idp.ErrUnavailable):
		return auditErrIdPUnavailable
	case errors.Is(err, idp.ErrMalformed):
		return auditErrIdPMalformed
	case errors.Is(err, ErrSealFailed):
		return auditErrSealFailed
	case errors.Is(err, profile.ErrUnexpectedStatus):
		return auditErrProfileStatus
	case errors.Is(err, profile.ErrErrorBody):
		return auditErrProfileError
	case errors.Is(err, profile.ErrDecode):
		return auditErrProfileDecode
	default:
		return auditErrInternal
	}
}
