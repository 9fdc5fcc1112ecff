package flows

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/chunk"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
)

// PipelineState is the terminal state reached by one request.
type PipelineState int

const (
	PipelineNoToken PipelineState = iota
	PipelineValid
	PipelineNeedsRefresh
	PipelineRefreshed
	PipelineRefreshFailed
	PipelineDeduplicated
)

// PipelineFailureKind classifies pipeline failures for root-level mapping.
type PipelineFailureKind int

const (
	PipelineFailureNone PipelineFailureKind = iota
	PipelineFailureDecode
	PipelineFailureEnvelope
	PipelineFailureRefresh
	PipelineFailureSeal
)

// PipelineResult carries the decision for one request and the cookies the
// caller must write before responding.
type PipelineResult struct {
	State    PipelineState
	Failure  PipelineFailureKind
	Err      error
	Envelope session.Envelope
	Manifest chunk.Manifest
	Cookies  []*http.Cookie
	Latency  time.Duration
}

// Proceed reports whether the request may continue to the protected handler.
func (r PipelineResult) Proceed() bool {
	switch r.State {
	case PipelineValid, PipelineRefreshed, PipelineDeduplicated:
		return true
	default:
		return false
	}
}

type PipelineSealer interface {
	Seal(session.Envelope) (string, error)
	Open(string) (session.Envelope, error)
}

type PipelineRefresher interface {
	Refresh(ctx context.Context, env session.Envelope) (refresh.Result, error)
}

// PipelineDeps captures request pipeline dependencies.
type PipelineDeps struct {
	CookieName    string
	CookieOptions chunk.Options
	ChunkSize     int
	Window        time.Duration
	Now           func() time.Time
	Sealer        PipelineSealer
	Refresher     PipelineRefresher
}

// RunPipeline decodes the session cookies, refreshes when inside the refresh
// window and returns the cookie writes for the response.
func RunPipeline(ctx context.Context, cookies []*http.Cookie, deps PipelineDeps) PipelineResult {
	token, manifest, err := chunk.DecodeLimit(cookies, deps.CookieName, deps.ChunkSize)
	if err != nil {
		return PipelineResult{
			State:    PipelineNoToken,
			Failure:  PipelineFailureDecode,
			Err:      err,
			Manifest: manifest,
			Cookies:  chunk.Expire(manifest, deps.CookieOptions),
		}
	}
	if token == "" {
		return PipelineResult{
			State:    PipelineNoToken,
			Manifest: manifest,
			Cookies:  chunk.Expire(manifest, deps.CookieOptions),
		}
	}

	env, err := deps.Sealer.Open(token)
	if err != nil {
		return PipelineResult{
			State:    PipelineNoToken,
			Failure:  PipelineFailureEnvelope,
			Err:      err,
			Manifest: manifest,
			Cookies:  chunk.Expire(manifest, deps.CookieOptions),
		}
	}

	if !refresh.ShouldRefresh(env, deps.Now(), deps.Window) {
		return PipelineResult{
			State:    PipelineValid,
			Envelope: env,
			Manifest: manifest,
		}
	}

	res, err := deps.Refresher.Refresh(ctx, env)
	if err != nil {
		return PipelineResult{
			State:    PipelineRefreshFailed,
			Failure:  PipelineFailureRefresh,
			Err:      err,
			Manifest: manifest,
			Cookies:  chunk.Expire(manifest, deps.CookieOptions),
			Latency:  res.Latency,
		}
	}
	if res.Deduplicated {
		return PipelineResult{
			State:    PipelineDeduplicated,
			Envelope: env,
			Manifest: manifest,
		}
	}

	sealed, err := deps.Sealer.Seal(res.Envelope)
	if err != nil {
		return PipelineResult{
			State:    PipelineRefreshFailed,
			Failure:  PipelineFailureSeal,
			Err:      err,
			Manifest: manifest,
			Cookies:  chunk.Expire(manifest, deps.CookieOptions),
			Latency:  res.Latency,
		}
	}

	return PipelineResult{
		State:    PipelineRefreshed,
		Envelope: res.Envelope,
		Manifest: manifest,
		Cookies:  chunk.Rewrite(manifest, sealed, deps.CookieName, deps.CookieOptions, deps.ChunkSize),
		Latency:  res.Latency,
	}
}

// RunPersist seals env and returns cookies replacing whatever session chunks
// the request carried.
func RunPersist(cookies []*http.Cookie, env session.Envelope, deps PipelineDeps) ([]*http.Cookie, error) {
	sealed, err := deps.Sealer.Seal(env)
	if err != nil {
		return nil, err
	}
	_, manifest, _ := chunk.Decode(cookies, deps.CookieName)
	return chunk.Rewrite(manifest, sealed, deps.CookieName, deps.CookieOptions, deps.ChunkSize), nil
}

// RunClear returns expiry cookies for every session chunk on the request.
func RunClear(cookies []*http.Cookie, deps PipelineDeps) []*http.Cookie {
	_, manifest, _ := chunk.Decode(cookies, deps.CookieName)
	return chunk.Expire(manifest, deps.CookieOptions)
}
