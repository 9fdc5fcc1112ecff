package goSession

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
)

var testNow = time.Unix(1_700_000_000, 0)

func testClock() time.Time { return testNow }

func testConfig(t testing.TB) Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Envelope.SigningKey = priv
	cfg.Envelope.PublicKey = pub
	cfg.Provider.TokenURL = "https://idp.example.com/oauth/token"
	cfg.Provider.ClientID = "hr-portal"
	cfg.Provider.ClientSecret = "portal-secret"
	return cfg
}

// fakeIdP is a token endpoint whose behaviour tests can switch at runtime.
type fakeIdP struct {
	srv   *httptest.Server
	calls atomic.Int32

	mu        sync.Mutex
	status    int
	access    string
	refresh   string
	expiresIn int
	delay     time.Duration
	gate      chan struct{}
	entered   chan struct{}
}

func newFakeIdP(t testing.TB) *fakeIdP {
	t.Helper()
	f := &fakeIdP{status: http.StatusOK, access: "at-new", refresh: "rt-new", expiresIn: 300}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIdP) serve(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	_ = r.ParseForm()

	f.mu.Lock()
	status, access, rt, exp, delay, gate, entered := f.status, f.access, f.refresh, f.expiresIn, f.delay, f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}
	body := map[string]any{"access_token": access, "token_type": "Bearer", "expires_in": exp}
	if rt != "" {
		body["refresh_token"] = rt
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeIdP) set(fn func(f *fakeIdP)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// plainSealer serializes envelopes as "access.refresh.expiry" so tests control
// the exact serialized length.
type plainSealer struct{}

func (plainSealer) Seal(env session.Envelope) (string, error) {
	if !env.Complete() {
		return "", session.ErrPartialEnvelope
	}
	return env.AccessToken + "." + env.RefreshToken + "." + strconv.FormatInt(env.ExpiresAt, 10), nil
}

func (plainSealer) Open(token string) (session.Envelope, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return session.Envelope{}, session.ErrEnvelopeInvalid
	}
	exp, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return session.Envelope{}, session.ErrEnvelopeInvalid
	}
	env := session.Envelope{AccessToken: parts[0], RefreshToken: parts[1], ExpiresAt: exp}
	if !env.Complete() {
		return session.Envelope{}, session.ErrEnvelopeInvalid
	}
	return env, nil
}

// plainEnvelopeOfLength returns an envelope whose plainSealer form is exactly n bytes.
func plainEnvelopeOfLength(n int, refreshToken string, expiresAt int64) session.Envelope {
	fixed := len(refreshToken) + len(strconv.FormatInt(expiresAt, 10)) + 2
	return session.Envelope{
		AccessToken:  strings.Repeat("a", n-fixed),
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}
}

type engineOption func(*Builder)

func newTestEngine(t testing.TB, cfg Config, idp *fakeIdP, opts ...engineOption) *Engine {
	t.Helper()
	if idp != nil {
		cfg.Provider.TokenURL = idp.srv.URL
	}
	b := New().WithConfig(cfg).WithClock(testClock)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func withPlainSealer() engineOption {
	return func(b *Builder) { b.WithSealer(plainSealer{}) }
}

// requestWith returns a GET for path carrying cookies.
func requestWith(path string, cookies []*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return r
}

// sessionCookies persists env through the engine and returns the live cookies.
func sessionCookies(t testing.TB, e *Engine, env session.Envelope) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	if err := e.Persist(w, httptest.NewRequest(http.MethodPost, "/auth/callback", nil), env); err != nil {
		t.Fatalf("persist: %v", err)
	}
	return liveCookies(w.Result().Cookies())
}

func liveCookies(cookies []*http.Cookie) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range cookies {
		if c.MaxAge >= 0 && c.Value != "" {
			out = append(out, c)
		}
	}
	return out
}

func expiredNames(cookies []*http.Cookie) map[string]bool {
	out := map[string]bool{}
	for _, c := range cookies {
		if c.MaxAge < 0 {
			out[c.Name] = true
		}
	}
	return out
}
