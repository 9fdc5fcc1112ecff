package goSession

import (
	"context"
	"sync"

	"github.com/MrEthical07/goSession/profile"
	"github.com/MrEthical07/goSession/session"
)

type envelopeContextKey struct{}
type profileContextKey struct{}

// WithEnvelope attaches the request's session envelope to ctx.
func WithEnvelope(ctx context.Context, env session.Envelope) context.Context {
	return context.WithValue(ctx, envelopeContextKey{}, env)
}

// EnvelopeFromContext returns the envelope attached by the session middleware.
func EnvelopeFromContext(ctx context.Context) (session.Envelope, bool) {
	if ctx == nil {
		return session.Envelope{}, false
	}
	env, ok := ctx.Value(envelopeContextKey{}).(session.Envelope)
	return env, ok
}

// ProfileCache holds the most recent profile synced for each access token.
// The Engine fills it from profile sync; handlers read it through
// ProfileFromContext after WithProfileCache.
type ProfileCache struct {
	mu    sync.RWMutex
	byKey map[string]profile.Profile
	order []string
	limit int
}

func newProfileCache(limit int) *ProfileCache {
	if limit <= 0 {
		limit = 1024
	}
	return &ProfileCache{byKey: make(map[string]profile.Profile), limit: limit}
}

func (c *ProfileCache) put(key string, p profile.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byKey[key]; !ok {
		c.order = append(c.order, key)
		if len(c.order) > c.limit {
			delete(c.byKey, c.order[0])
			c.order = c.order[1:]
		}
	}
	c.byKey[key] = p
}

func (c *ProfileCache) get(key string) (profile.Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byKey[key]
	return p, ok
}

// WithProfileCache attaches cache so ProfileFromContext can resolve the
// caller's profile.
func WithProfileCache(ctx context.Context, cache *ProfileCache) context.Context {
	return context.WithValue(ctx, profileContextKey{}, cache)
}

// ProfileFromContext returns the last synced profile for the request's
// access token. The profile is eventually consistent: it is absent until the
// first background sync for that token completes.
func ProfileFromContext(ctx context.Context) (profile.Profile, bool) {
	if ctx == nil {
		return profile.Profile{}, false
	}
	env, ok := EnvelopeFromContext(ctx)
	if !ok {
		return profile.Profile{}, false
	}
	cache, _ := ctx.Value(profileContextKey{}).(*ProfileCache)
	if cache == nil {
		return profile.Profile{}, false
	}
	return cache.get(profileKey(env.AccessToken))
}
