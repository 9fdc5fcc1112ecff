package goSession

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
)

type captureSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *captureSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) byType(eventType string) []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, ev := range s.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func auditConfig(t *testing.T) Config {
	cfg := testConfig(t)
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	return cfg
}

func TestAuditRefreshEvent(t *testing.T) {
	sink := &captureSink{}
	engine := newTestEngine(t, auditConfig(t), newFakeIdP(t), func(b *Builder) { b.WithAuditSink(sink) })

	stale := session.Envelope{AccessToken: "at-old", RefreshToken: "rt-old", ExpiresAt: testNow.Unix() + 10}
	r := requestWith("/employees", sessionCookies(t, engine, stale))
	r = r.WithContext(WithRequestID(r.Context(), "req-42"))
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if _, err := engine.Resolve(httptest.NewRecorder(), r); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	engine.Close()

	events := sink.byType(auditEventSessionRefreshed)
	if len(events) != 1 {
		t.Fatalf("expected one refresh event, got %d", len(events))
	}
	ev := events[0]
	if !ev.Success || ev.RequestID != "req-42" || ev.IP != "203.0.113.7" || ev.Path != "/employees" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.State != "refreshed" || ev.Chunks != 1 || ev.ID == "" {
		t.Fatalf("unexpected event fields %+v", ev)
	}
	if len(sink.byType(auditEventSessionPersisted)) != 1 {
		t.Fatal("expected persisted event from sign-in")
	}
}

func TestAuditFailureCarriesRedactedCode(t *testing.T) {
	sink := &captureSink{}
	fake := newFakeIdP(t)
	fake.set(func(f *fakeIdP) { f.status = 400 })
	engine := newTestEngine(t, auditConfig(t), fake, func(b *Builder) { b.WithAuditSink(sink) })

	stale := session.Envelope{AccessToken: "at-secret", RefreshToken: "rt-secret", ExpiresAt: testNow.Unix() + 10}
	_, _ = engine.Resolve(httptest.NewRecorder(), requestWith("/employees", sessionCookies(t, engine, stale)))
	engine.Close()

	events := sink.byType(auditEventSessionRefreshFailed)
	if len(events) != 1 {
		t.Fatalf("expected one refresh failure event, got %d", len(events))
	}
	if events[0].Success || events[0].Error != string(auditErrIdPRejected) {
		t.Fatalf("unexpected failure event %+v", events[0])
	}
}

func TestAuditDecodeRejection(t *testing.T) {
	sink := &captureSink{}
	engine := newTestEngine(t, auditConfig(t), newFakeIdP(t), withPlainSealer(), func(b *Builder) { b.WithAuditSink(sink) })

	cookies := sessionCookies(t, engine, plainEnvelopeOfLength(6000, "rt-1", testNow.Unix()+3600))
	_, _ = engine.Resolve(httptest.NewRecorder(), requestWith("/employees", cookies[1:]))
	engine.Close()

	events := sink.byType(auditEventSessionDecodeRejected)
	if len(events) != 1 || events[0].Error != string(auditErrChunkGap) {
		t.Fatalf("expected chunk gap rejection, got %+v", events)
	}
}

func TestAuditJSONNeverContainsTokens(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	sink := NewJSONWriterSink(&lockedWriter{mu: &mu, w: &buf})
	engine := newTestEngine(t, auditConfig(t), newFakeIdP(t), func(b *Builder) { b.WithAuditSink(sink) })

	stale := session.Envelope{AccessToken: "at-secret-value", RefreshToken: "rt-secret-value", ExpiresAt: testNow.Unix() + 10}
	cookies := sessionCookies(t, engine, stale)
	w := httptest.NewRecorder()
	_, _ = engine.Resolve(w, requestWith("/employees", cookies))
	engine.Clear(httptest.NewRecorder(), requestWith("/auth/signout", liveCookies(w.Result().Cookies())))
	engine.Close()

	mu.Lock()
	out := buf.String()
	mu.Unlock()
	if strings.Count(out, "\n") < 3 {
		t.Fatalf("expected persisted, refreshed and cleared events, got %q", out)
	}
	for _, secret := range []string{"at-secret-value", "rt-secret-value", "at-new", "rt-new", cookies[0].Value} {
		if strings.Contains(out, secret) {
			t.Fatalf("audit output leaked %q", secret)
		}
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := &captureSink{}
	engine := newTestEngine(t, testConfig(t), newFakeIdP(t), func(b *Builder) { b.WithAuditSink(sink) })
	sessionCookies(t, engine, session.Envelope{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Unix() + 3600})
	engine.Close()

	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		if len(sink.byType(auditEventSessionPersisted)) != 0 {
			t.Fatal("disabled audit must not emit")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type heldSink struct {
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *heldSink) Emit(context.Context, AuditEvent) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.gate
}

func (s *heldSink) release() { s.once.Do(func() { close(s.gate) }) }

func TestAuditDropsCountedPerEventType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 1
	cfg.Audit.DropIfFull = true
	sink := &heldSink{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	engine := newTestEngine(t, cfg, newFakeIdP(t), func(b *Builder) { b.WithAuditSink(sink) })
	t.Cleanup(sink.release)

	env := session.Envelope{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Unix() + 3600}
	sessionCookies(t, engine, env)
	<-sink.entered
	sessionCookies(t, engine, env)
	sessionCookies(t, engine, env)

	drops := engine.AuditDroppedByType()
	if drops[auditEventSessionPersisted] != 1 || engine.AuditDropped() != 1 {
		t.Fatalf("expected one dropped session_persisted, got %v", drops)
	}
}

func TestDefaultAuditRetainsFailClosedEvents(t *testing.T) {
	cfg := DefaultConfig()
	if len(cfg.Audit.Retain) != 2 ||
		cfg.Audit.Retain[0] != auditEventSessionRefreshFailed ||
		cfg.Audit.Retain[1] != auditEventSessionDecodeRejected {
		t.Fatalf("unexpected retained audit events %v", cfg.Audit.Retain)
	}
}
