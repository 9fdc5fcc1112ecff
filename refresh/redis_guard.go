package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultGuardPrefix = "gs"
	defaultGuardTTL    = 10 * time.Second
	releaseTimeout     = 2 * time.Second
)

const releaseGuardScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseGuardLua = redis.NewScript(releaseGuardScript)

// RedisGuard extends a LocalGuard across edge instances by holding a
// short-lived Redis key per refresh token.
type RedisGuard struct {
	local  *LocalGuard
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// RedisGuardConfig configures a RedisGuard. Zero values select defaults.
type RedisGuardConfig struct {
	Prefix string
	TTL    time.Duration
	Logger *slog.Logger
}

// NewRedisGuard returns a RedisGuard on client.
func NewRedisGuard(client redis.UniversalClient, cfg RedisGuardConfig) *RedisGuard {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultGuardPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultGuardTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RedisGuard{
		local:  NewLocalGuard(),
		redis:  client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}
}

// TryAcquire implements Guard. The local flag is taken first; a Redis failure
// leaves the caller holding only the local flag.
func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (func(), bool) {
	releaseLocal, ok := g.local.TryAcquire(ctx, key)
	if !ok {
		return releaseLocal, false
	}

	redisKey := g.key(key)
	owner := uuid.NewString()
	acquired, err := g.redis.SetNX(ctx, redisKey, owner, g.ttl).Result()
	if err != nil {
		g.logger.Warn("session.refresh_guard_degraded", "error", err)
		return releaseLocal, true
	}
	if !acquired {
		releaseLocal()
		return func() {}, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			defer releaseLocal()
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			if err := releaseGuardLua.Run(rctx, g.redis, []string{redisKey}, owner).Err(); err != nil {
				g.logger.Warn("session.refresh_guard_release_failed", "error", err)
			}
		})
	}, true
}

func (g *RedisGuard) key(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return g.prefix + ":refresh:" + hex.EncodeToString(sum[:])
}
