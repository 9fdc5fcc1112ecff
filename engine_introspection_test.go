package goSession

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHealthWithoutRedis(t *testing.T) {
	engine := newTestEngine(t, testConfig(t), nil)
	h := engine.Health(context.Background())
	if h.RedisConfigured || !h.Healthy() {
		t.Fatalf("expected healthy local-only engine, got %+v", h)
	}
}

func TestHealthPingsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	engine := newTestEngine(t, cfg, nil, func(b *Builder) { b.WithRedis(rdb) })

	h := engine.Health(context.Background())
	if !h.RedisConfigured || !h.RedisAvailable || !h.Healthy() {
		t.Fatalf("expected redis available, got %+v", h)
	}

	mr.Close()
	h = engine.Health(context.Background())
	if h.RedisAvailable || h.Healthy() {
		t.Fatalf("expected redis unavailable after close, got %+v", h)
	}
}

func TestSecurityReport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Envelope.EncryptionKey = []byte(strings.Repeat("k", 32))
	cfg.Cookie.BaseURL = "http://localhost:3000"
	engine := newTestEngine(t, cfg, nil)

	r := engine.SecurityReport()
	if r.CookieSecure || r.CookieSameSite != "lax" || r.SigningAlgorithm != "ed25519" {
		t.Fatalf("unexpected cookie/signing report %+v", r)
	}
	if !r.EnvelopeEncrypted || r.DistributedGuard || r.ChunkSize != 3936 {
		t.Fatalf("unexpected envelope/guard report %+v", r)
	}
	if !slices.Contains(r.LintCodes, "cookie_insecure") || !slices.Contains(r.LintCodes, "refresh_guard_local_only") {
		t.Fatalf("expected lint codes in report, got %v", r.LintCodes)
	}
}
