package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSession/idp"
	"github.com/MrEthical07/goSession/session"
)

// DefaultTimeout bounds a single provider exchange.
const DefaultTimeout = 5 * time.Second

// ErrRefreshFailed wraps every failed exchange.
var ErrRefreshFailed = errors.New("refresh: exchange failed")

// Exchanger trades a refresh token for new tokens. *idp.Client implements it.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (idp.Token, error)
}

// ExchangerFunc adapts a function to Exchanger.
type ExchangerFunc func(ctx context.Context, refreshToken string) (idp.Token, error)

// Exchange calls f.
func (f ExchangerFunc) Exchange(ctx context.Context, refreshToken string) (idp.Token, error) {
	return f(ctx, refreshToken)
}

// Result is the outcome of a successful Refresh call.
type Result struct {
	Envelope     session.Envelope
	Deduplicated bool
	Latency      time.Duration
}

// Coordinator performs guarded refreshes.
type Coordinator struct {
	exchanger Exchanger
	guard     Guard
	now       func() time.Time
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithGuard replaces the default LocalGuard.
func WithGuard(g Guard) Option {
	return func(c *Coordinator) {
		if g != nil {
			c.guard = g
		}
	}
}

// WithClock sets the time source used for expiry computation.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTimeout bounds each provider exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a Coordinator using exchanger.
func New(exchanger Exchanger, opts ...Option) (*Coordinator, error) {
	if exchanger == nil {
		return nil, errors.New("refresh: exchanger is required")
	}
	c := &Coordinator{
		exchanger: exchanger,
		guard:     NewLocalGuard(),
		now:       time.Now,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Refresh exchanges env's refresh token for a new envelope.
//
// When another refresh is outstanding it returns env unchanged with
// Deduplicated set and no error. The exchange runs detached from ctx
// cancellation and is bounded by the coordinator timeout. On failure the
// returned error wraps ErrRefreshFailed and no envelope is returned.
func (c *Coordinator) Refresh(ctx context.Context, env session.Envelope) (Result, error) {
	release, ok := c.guard.TryAcquire(ctx, env.RefreshToken)
	if !ok {
		c.logger.Debug("session.refresh_deduplicated")
		return Result{Envelope: env, Deduplicated: true}, nil
	}
	defer release()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	started := c.now()
	tok, err := c.exchanger.Exchange(callCtx, env.RefreshToken)
	latency := c.now().Sub(started)
	if err != nil {
		c.logger.Warn("session.refresh_failed", "error", err, "latency", latency)
		return Result{Latency: latency}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	next := session.Envelope{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    c.now().Add(tok.ExpiresIn).Unix(),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = env.RefreshToken
	}
	if !next.Complete() || tok.ExpiresIn <= 0 {
		c.logger.Warn("session.refresh_failed", "error", session.ErrPartialEnvelope)
		return Result{Latency: latency}, fmt.Errorf("%w: %w", ErrRefreshFailed, session.ErrPartialEnvelope)
	}

	c.logger.Debug("session.refreshed", "latency", latency, "rotated", tok.RefreshToken != "")
	return Result{Envelope: next, Latency: latency}, nil
}
