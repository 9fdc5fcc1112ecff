package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricRequestNoToken, Name: "gosession_request_no_token_total", Help: "Requests without a usable session."},
	{ID: goSession.MetricRequestValid, Name: "gosession_request_valid_total", Help: "Requests with a session outside the refresh window."},
	{ID: goSession.MetricRequestPublic, Name: "gosession_request_public_total", Help: "Requests that bypassed the session pipeline."},
	{ID: goSession.MetricDecodeRejected, Name: "gosession_decode_rejected_total", Help: "Requests whose cookie chunks could not be reassembled."},
	{ID: goSession.MetricEnvelopeRejected, Name: "gosession_envelope_rejected_total", Help: "Session tokens that failed verification."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: goSession.MetricRefreshDeduplicated, Name: "gosession_refresh_deduplicated_total", Help: "Requests that skipped an outstanding refresh."},
	{ID: goSession.MetricSealFailure, Name: "gosession_seal_failure_total", Help: "Envelopes that could not be serialized."},
	{ID: goSession.MetricSessionPersisted, Name: "gosession_session_persisted_total", Help: "Sign-in cookie writes."},
	{ID: goSession.MetricSessionCleared, Name: "gosession_session_cleared_total", Help: "Sign-outs and fail-closed cookie clears."},
	{ID: goSession.MetricProfileSyncSuccess, Name: "gosession_profile_sync_success_total", Help: "Completed backend profile syncs."},
	{ID: goSession.MetricProfileSyncFailure, Name: "gosession_profile_sync_failure_total", Help: "Failed backend profile syncs."},
	{ID: goSession.MetricMultiChunkWrite, Name: "gosession_multi_chunk_write_total", Help: "Cookie writes that needed more than one chunk."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Identity provider refresh latency."},
}

// FamilyDef is a labelled counter family. Each engine counter lands in
// exactly one family as one value of Key.
type FamilyDef struct {
	Name string
	Help string
	Key  string
}

// SeriesDef places an engine counter inside a family.
type SeriesDef struct {
	ID     goSession.MetricID
	Family string
	Value  string
}

const (
	RequestsFamily    = "gosession_requests_total"
	RejectionsFamily  = "gosession_session_rejections_total"
	CookieWriteFamily = "gosession_cookie_writes_total"
	ProfileSyncFamily = "gosession_profile_syncs_total"
)

// Families lists the labelled counter families.
var Families = []FamilyDef{
	{Name: RequestsFamily, Help: "Requests by pipeline outcome.", Key: "state"},
	{Name: RejectionsFamily, Help: "Sessions cleared because the cookie or envelope could not be used.", Key: "reason"},
	{Name: CookieWriteFamily, Help: "Session cookie writes by kind.", Key: "kind"},
	{Name: ProfileSyncFamily, Help: "Backend profile syncs by result.", Key: "result"},
}

// Series maps every engine counter onto a family attribute value. The
// request states match goSession.State names.
var Series = []SeriesDef{
	{ID: goSession.MetricRequestNoToken, Family: RequestsFamily, Value: "no_token"},
	{ID: goSession.MetricRequestValid, Family: RequestsFamily, Value: "valid"},
	{ID: goSession.MetricRequestPublic, Family: RequestsFamily, Value: "public"},
	{ID: goSession.MetricRefreshSuccess, Family: RequestsFamily, Value: "refreshed"},
	{ID: goSession.MetricRefreshFailure, Family: RequestsFamily, Value: "refresh_failed"},
	{ID: goSession.MetricRefreshDeduplicated, Family: RequestsFamily, Value: "deduplicated"},
	{ID: goSession.MetricDecodeRejected, Family: RejectionsFamily, Value: "decode"},
	{ID: goSession.MetricEnvelopeRejected, Family: RejectionsFamily, Value: "envelope"},
	{ID: goSession.MetricSealFailure, Family: RejectionsFamily, Value: "seal"},
	{ID: goSession.MetricSessionPersisted, Family: CookieWriteFamily, Value: "persisted"},
	{ID: goSession.MetricSessionCleared, Family: CookieWriteFamily, Value: "cleared"},
	{ID: goSession.MetricMultiChunkWrite, Family: CookieWriteFamily, Value: "multi_chunk"},
	{ID: goSession.MetricProfileSyncSuccess, Family: ProfileSyncFamily, Value: "success"},
	{ID: goSession.MetricProfileSyncFailure, Family: ProfileSyncFamily, Value: "failure"},
}

// HistogramBoundLabels are the "le" attribute values of each bucket, +Inf last.
var HistogramBoundLabels = []string{"0.025", "0.05", "0.1", "0.25", "0.5", "1", "2.5", "+Inf"}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds, matching the
// engine's millisecond buckets.
var HistogramUpperBounds = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
