package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type sessionState struct {
	mu      sync.Mutex
	cookies []*http.Cookie
}

func main() {
	var (
		sessions    = flag.Int("sessions", 2000, "number of signed-in sessions to seed")
		instances   = flag.Int("instances", 4, "number of engine instances sharing one redis")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "requests per phase")
		tokenBytes  = flag.Int("token-bytes", 6000, "access token size, large values force multi-chunk cookies")
		idpLatency  = flag.Duration("idp-latency", 20*time.Millisecond, "simulated identity provider latency")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, SESSION_REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *instances <= 0 || *concurrency <= 0 || *ops <= 0 || *tokenBytes <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, instances, concurrency, ops and token-bytes must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("SESSION_REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}

	idp := newTokenEndpoint(*tokenBytes, *idpLatency)
	defer idp.srv.Close()

	engines, err := buildEngines(*instances, addr, idp.srv.URL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engines: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		for _, e := range engines {
			e.Close()
		}
	}()

	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	valid := seed(engines[0], *sessions, *tokenBytes, time.Hour)
	expiring := seed(engines[0], *sessions, *tokenBytes, 10*time.Second)
	fmt.Printf("seeded in %s (%d chunks per session)\n", time.Since(startSeed).Round(time.Millisecond), len(valid[0].cookies))

	resolveStats := runPhase(engines, valid, *ops, *concurrency)
	refreshStats := runPhase(engines, expiring, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("resolve", resolveStats)
	printStats("refresh", refreshStats)
	fmt.Printf("idp calls=%d sessions=%d refreshed=%d deduplicated=%d\n",
		idp.calls.Load(), *sessions, refreshStats.refreshed, refreshStats.deduplicated)
}

func buildEngines(n int, redisAddr, tokenURL string) ([]*goSession.Engine, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	cfg := goSession.DefaultConfig()
	cfg.Envelope.SigningKey = priv
	cfg.Envelope.PublicKey = pub
	cfg.Envelope.EncryptionKey = make([]byte, 32)
	if _, err := rand.Read(cfg.Envelope.EncryptionKey); err != nil {
		return nil, err
	}
	cfg.Provider.TokenURL = tokenURL
	cfg.Provider.ClientID = "loadtest"
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = redisAddr

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engines := make([]*goSession.Engine, 0, n)
	for i := 0; i < n; i++ {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{redisAddr},
		})
		e, err := goSession.New().
			WithConfig(cfg).
			WithRedis(client).
			WithLogger(logger).
			Build()
		if err != nil {
			return nil, err
		}
		engines = append(engines, e)
	}
	return engines, nil
}

func seed(engine *goSession.Engine, n, tokenBytes int, ttl time.Duration) []*sessionState {
	states := make([]*sessionState, n)
	for i := 0; i < n; i++ {
		env := session.Envelope{
			AccessToken:  fmt.Sprintf("at-%d-", i) + strings.Repeat("x", tokenBytes),
			RefreshToken: fmt.Sprintf("rt-%d-%d", i, ttl/time.Second),
			ExpiresAt:    time.Now().Add(ttl).Unix(),
		}
		w := httptest.NewRecorder()
		if err := engine.Persist(w, httptest.NewRequest(http.MethodPost, "/auth/callback", nil), env); err != nil {
			fmt.Fprintf(os.Stderr, "persist failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = &sessionState{cookies: w.Result().Cookies()}
	}
	return states
}

func runPhase(engines []*goSession.Engine, states []*sessionState, ops, concurrency int) phaseStats {
	var (
		wg           sync.WaitGroup
		cursor       int64
		failures     int64
		refreshed    int64
		deduplicated int64
		latencies    = make([]time.Duration, 0, ops)
		mu           sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := states[r.Intn(len(states))]
				engine := engines[r.Intn(len(engines))]

				state.mu.Lock()
				cookies := state.cookies
				state.mu.Unlock()

				req := httptest.NewRequest(http.MethodGet, "/employees", nil)
				for _, c := range cookies {
					req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
				}
				rec := httptest.NewRecorder()

				t0 := time.Now()
				d, err := engine.Resolve(rec, req)
				elapsed := time.Since(t0)

				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case d.State == goSession.StateRefreshed:
					atomic.AddInt64(&refreshed, 1)
					state.mu.Lock()
					state.cookies = live(rec.Result().Cookies())
					state.mu.Unlock()
				case d.State == goSession.StateDeduplicated:
					atomic.AddInt64(&deduplicated, 1)
				}

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	stats := computeStats(total, latencies, failures)
	stats.refreshed = refreshed
	stats.deduplicated = deduplicated
	return stats
}

func live(cookies []*http.Cookie) []*http.Cookie {
	out := cookies[:0]
	for _, c := range cookies {
		if c.MaxAge >= 0 && c.Value != "" {
			out = append(out, c)
		}
	}
	return out
}

type tokenEndpoint struct {
	srv   *httptest.Server
	calls atomic.Int64
}

func newTokenEndpoint(tokenBytes int, latency time.Duration) *tokenEndpoint {
	t := &tokenEndpoint{}
	t.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := t.calls.Add(1)
		time.Sleep(latency)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  fmt.Sprintf("at-r%d-", n) + strings.Repeat("y", tokenBytes),
			"refresh_token": fmt.Sprintf("rt-r%d", n),
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	return t
}

type phaseStats struct {
	total        time.Duration
	ops          int
	failures     int64
	refreshed    int64
	deduplicated int64
	p50          time.Duration
	p95          time.Duration
	p99          time.Duration
	opsPerS      float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
