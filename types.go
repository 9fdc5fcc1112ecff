package goSession

import (
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/session"
)

// State is the pipeline state a request ended in.
type State int

const (
	// StateNoToken means no usable session was found; the caller is sent to sign in.
	StateNoToken State = iota
	// StateValid means the access token is outside the refresh window.
	StateValid
	// StateNeedsRefresh is transient and never returned from Resolve.
	StateNeedsRefresh
	// StateRefreshed means a new envelope was obtained and written.
	StateRefreshed
	// StateRefreshFailed means the refresh failed and the session was cleared.
	StateRefreshFailed
	// StateDeduplicated means another request is refreshing; this one proceeds
	// with the current access token.
	StateDeduplicated
	// StatePublic means the path bypassed the pipeline.
	StatePublic
)

func (s State) String() string {
	switch s {
	case StateNoToken:
		return "no_token"
	case StateValid:
		return "valid"
	case StateNeedsRefresh:
		return "needs_refresh"
	case StateRefreshed:
		return "refreshed"
	case StateRefreshFailed:
		return "refresh_failed"
	case StateDeduplicated:
		return "deduplicated"
	case StatePublic:
		return "public"
	default:
		return "unknown"
	}
}

// FailureKind classifies why a request did not proceed.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureDecode
	FailureEnvelope
	FailureRefresh
	FailureSeal
)

// Decision is the outcome of Engine.Resolve.
type Decision struct {
	State    State
	Failure  FailureKind
	Envelope session.Envelope
	// Proceed is true when the request may reach the protected handler.
	Proceed bool
	// Chunks is the number of session cookies the request carried.
	Chunks int
}

func stateFromFlow(s flows.PipelineState) State {
	switch s {
	case flows.PipelineValid:
		return StateValid
	case flows.PipelineNeedsRefresh:
		return StateNeedsRefresh
	case flows.PipelineRefreshed:
		return StateRefreshed
	case flows.PipelineRefreshFailed:
		return StateRefreshFailed
	case flows.PipelineDeduplicated:
		return StateDeduplicated
	default:
		return StateNoToken
	}
}

func failureFromFlow(f flows.PipelineFailureKind) FailureKind {
	switch f {
	case flows.PipelineFailureDecode:
		return FailureDecode
	case flows.PipelineFailureEnvelope:
		return FailureEnvelope
	case flows.PipelineFailureRefresh:
		return FailureRefresh
	case flows.PipelineFailureSeal:
		return FailureSeal
	default:
		return FailureNone
	}
}
