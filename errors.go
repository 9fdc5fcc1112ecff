package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
)

var (
	// ErrEngineNotReady is returned by methods on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrNoSession reports a request without session cookies.
	ErrNoSession = errors.New("no session")
	// ErrSessionDecode reports cookie chunks that could not be reassembled.
	ErrSessionDecode = errors.New("session cookies malformed")
	// ErrEnvelopeInvalid reports a session token that failed verification.
	ErrEnvelopeInvalid = session.ErrEnvelopeInvalid
	// ErrRefreshFailed reports a failed identity provider refresh.
	ErrRefreshFailed = refresh.ErrRefreshFailed
	// ErrSealFailed reports an envelope that could not be serialized.
	ErrSealFailed = errors.New("session seal failed")
	// ErrPartialEnvelope is returned by Persist for incomplete envelopes.
	ErrPartialEnvelope = session.ErrPartialEnvelope
)
