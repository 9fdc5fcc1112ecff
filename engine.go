package goSession

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/profile"
	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
)

// Engine runs the request pipeline: it reassembles the session cookie,
// refreshes the access token when it is about to expire and writes the
// resulting cookies.
//
// Engine is safe for concurrent use.
type Engine struct {
	config       Config
	deps         flows.PipelineDeps
	profiles     profile.Fetcher
	profileHook  ProfileHook
	profileCache *ProfileCache
	audit        *audit.Dispatcher
	metrics      *Metrics
	redis        redis.UniversalClient
	logger       *slog.Logger
	now          func() time.Time

	syncMu    sync.RWMutex
	syncWG    sync.WaitGroup
	closed    bool
	closeOnce sync.Once
}

// Close waits for outstanding profile syncs and flushes the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.syncMu.Lock()
		e.closed = true
		e.syncMu.Unlock()
		e.syncWG.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType returns dropped audit event counts keyed by event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot returns a copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	if e == nil {
		return false
	}
	e.syncMu.RLock()
	defer e.syncMu.RUnlock()
	return !e.closed
}

// IsPublic reports whether path bypasses the session pipeline.
func (e *Engine) IsPublic(path string) bool {
	if e == nil {
		return false
	}
	if path == e.config.Routes.SignInPath {
		return true
	}
	if e.config.Routes.SignOutPath != "" && path == e.config.Routes.SignOutPath {
		return true
	}
	for _, p := range e.config.Routes.PublicPrefixes {
		if matchPrefix(path, p) {
			return true
		}
	}
	return false
}

// matchPrefix matches p against path on a segment boundary. A prefix ending in
// "/" covers everything below it; any other prefix covers itself and its subtree.
func matchPrefix(path, p string) bool {
	if strings.HasSuffix(p, "/") {
		return strings.HasPrefix(path, p)
	}
	return path == p || strings.HasPrefix(path, p+"/")
}

// Resolve runs the pipeline for r and writes any cookie changes to w.
//
// The returned Decision says whether the request may proceed. The error is
// non-nil exactly when it may not: ErrNoSession for a request without
// cookies, otherwise an error wrapping ErrSessionDecode, ErrEnvelopeInvalid,
// ErrRefreshFailed or ErrSealFailed. Every session cookie the request carried
// has been expired in that case.
func (e *Engine) Resolve(w http.ResponseWriter, r *http.Request) (Decision, error) {
	if !e.ready() {
		return Decision{State: StateNoToken}, ErrEngineNotReady
	}
	if e.IsPublic(r.URL.Path) {
		e.metricInc(MetricRequestPublic)
		return Decision{State: StatePublic, Proceed: true}, nil
	}

	res := flows.RunPipeline(r.Context(), r.Cookies(), e.deps)
	for _, c := range res.Cookies {
		http.SetCookie(w, c)
	}

	d := Decision{
		State:    stateFromFlow(res.State),
		Failure:  failureFromFlow(res.Failure),
		Envelope: res.Envelope,
		Proceed:  res.Proceed(),
		Chunks:   res.Manifest.Count(),
	}
	e.observe(r, d, res)

	if d.Proceed {
		return d, nil
	}
	return d, resolveError(d.Failure, res.Err)
}

func resolveError(kind FailureKind, err error) error {
	switch kind {
	case FailureNone:
		return ErrNoSession
	case FailureDecode:
		return fmt.Errorf("%w: %w", ErrSessionDecode, err)
	case FailureSeal:
		return fmt.Errorf("%w: %w", ErrSealFailed, err)
	default:
		return err
	}
}

func (e *Engine) observe(r *http.Request, d Decision, res flows.PipelineResult) {
	attrs := []any{"path", r.URL.Path, "state", d.State.String(), "chunks", d.Chunks}
	if id := requestIDFromContext(r.Context()); id != "" {
		attrs = append(attrs, "request_id", id)
	}

	switch d.State {
	case StateValid:
		e.metricInc(MetricRequestValid)
	case StateDeduplicated:
		e.metricInc(MetricRefreshDeduplicated)
		e.emitAudit(r, auditEventSessionRefreshDeduplicated, true, d.State, d.Chunks, nil, nil)
		e.logger.Debug("session.refresh_deduplicated", attrs...)
	case StateRefreshed:
		e.metricInc(MetricRefreshSuccess)
		e.metrics.Observe(MetricRefreshLatency, res.Latency)
		written := countLive(res.Cookies)
		if written > 1 {
			e.metricInc(MetricMultiChunkWrite)
		}
		e.emitAudit(r, auditEventSessionRefreshed, true, d.State, written, nil, nil)
		e.logger.Info("session.refreshed", append(attrs, "written_chunks", written, "latency", res.Latency)...)
		e.scheduleProfileSync(r, d.Envelope)
	case StateRefreshFailed:
		if d.Failure == FailureSeal {
			e.metricInc(MetricSealFailure)
		} else {
			e.metricInc(MetricRefreshFailure)
			e.metrics.Observe(MetricRefreshLatency, res.Latency)
		}
		e.metricInc(MetricSessionCleared)
		e.emitAudit(r, auditEventSessionRefreshFailed, false, d.State, d.Chunks, res.Err, nil)
		e.logger.Warn("session.refresh_failed", append(attrs, "error", res.Err)...)
	case StateNoToken:
		e.metricInc(MetricRequestNoToken)
		switch d.Failure {
		case FailureDecode:
			e.metricInc(MetricDecodeRejected)
			e.metricInc(MetricSessionCleared)
			e.emitAudit(r, auditEventSessionDecodeRejected, false, d.State, d.Chunks, res.Err, nil)
			e.logger.Warn("session.decode_rejected", append(attrs, "error", res.Err)...)
		case FailureEnvelope:
			e.metricInc(MetricEnvelopeRejected)
			e.metricInc(MetricSessionCleared)
			e.emitAudit(r, auditEventSessionDecodeRejected, false, d.State, d.Chunks, res.Err, nil)
			e.logger.Warn("session.envelope_rejected", append(attrs, "error", res.Err)...)
		}
	}
}

func countLive(cookies []*http.Cookie) int {
	n := 0
	for _, c := range cookies {
		if c.MaxAge >= 0 {
			n++
		}
	}
	return n
}

// Persist seals a newly issued envelope into session cookies on w. Chunk
// names the request carried that the new token does not use are expired.
func (e *Engine) Persist(w http.ResponseWriter, r *http.Request, env session.Envelope) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if !env.Complete() {
		return ErrPartialEnvelope
	}

	cookies, err := flows.RunPersist(r.Cookies(), env, e.deps)
	if err != nil {
		e.metricInc(MetricSealFailure)
		e.logger.Error("session.persist_failed", "path", r.URL.Path, "error", err)
		return fmt.Errorf("%w: %w", ErrSealFailed, err)
	}
	for _, c := range cookies {
		http.SetCookie(w, c)
	}

	written := countLive(cookies)
	e.metricInc(MetricSessionPersisted)
	if written > 1 {
		e.metricInc(MetricMultiChunkWrite)
	}
	e.emitAudit(r, auditEventSessionPersisted, true, StateValid, written, nil, nil)
	e.logger.Info("session.persisted", "path", r.URL.Path, "chunks", written)

	if e.config.Backend.SyncOnLogin {
		e.scheduleProfileSync(r, env)
	}
	return nil
}

// Clear expires every session cookie the request carried.
func (e *Engine) Clear(w http.ResponseWriter, r *http.Request) {
	if !e.ready() {
		return
	}
	cookies := flows.RunClear(r.Cookies(), e.deps)
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
	e.metricInc(MetricSessionCleared)
	e.emitAudit(r, auditEventSessionCleared, true, StateNoToken, len(cookies), nil, nil)
	e.logger.Info("session.cleared", "path", r.URL.Path, "chunks", len(cookies))
}

// RedirectToSignIn answers r with a 307 to the sign-in path carrying the
// original request URI as the callback parameter.
func (e *Engine) RedirectToSignIn(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, e.SignInURL(r), http.StatusTemporaryRedirect)
}

// SignInURL returns the sign-in location for r.
func (e *Engine) SignInURL(r *http.Request) string {
	q := url.Values{}
	q.Set(e.config.Routes.CallbackParam, r.URL.RequestURI())
	return e.config.Routes.SignInPath + "?" + q.Encode()
}

// WithSession returns ctx carrying env and the engine's profile cache.
func (e *Engine) WithSession(ctx context.Context, env session.Envelope) context.Context {
	ctx = WithEnvelope(ctx, env)
	if e != nil && e.profileCache != nil {
		ctx = WithProfileCache(ctx, e.profileCache)
	}
	return ctx
}

func (e *Engine) scheduleProfileSync(r *http.Request, env session.Envelope) {
	if e.profiles == nil {
		return
	}

	e.syncMu.RLock()
	if e.closed {
		e.syncMu.RUnlock()
		return
	}
	e.syncWG.Add(1)
	e.syncMu.RUnlock()

	ctx := context.WithoutCancel(r.Context())
	go func() {
		defer e.syncWG.Done()

		ctx, cancel := context.WithTimeout(ctx, e.config.Backend.Timeout)
		defer cancel()

		p, err := e.profiles.Fetch(ctx, env.AccessToken)
		if err != nil {
			e.metricInc(MetricProfileSyncFailure)
			e.emitAudit(r, auditEventProfileSyncFailed, false, StateRefreshed, 0, err, nil)
			e.logger.Warn("session.profile_sync_failed", "path", r.URL.Path, "error", err)
			return
		}
		e.metricInc(MetricProfileSyncSuccess)
		e.profileCache.put(profileKey(env.AccessToken), p)
		if e.profileHook != nil {
			e.profileHook(ctx, p)
		}
	}()
}

func profileKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IsSessionFailure reports whether err came from Resolve rejecting a session.
func IsSessionFailure(err error) bool {
	return errors.Is(err, ErrNoSession) ||
		errors.Is(err, ErrSessionDecode) ||
		errors.Is(err, ErrEnvelopeInvalid) ||
		errors.Is(err, ErrRefreshFailed) ||
		errors.Is(err, ErrSealFailed)
}
