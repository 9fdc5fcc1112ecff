package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/idp"
	"github.com/MrEthical07/goSession/session"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func staleEnvelope() session.Envelope {
	return session.Envelope{AccessToken: "at-old", RefreshToken: "rt-old", ExpiresAt: fixedNow.Unix() + 10}
}

func newCoordinator(t *testing.T, ex Exchanger, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	c, err := New(ex, opts...)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c
}

func TestRefreshSuccess(t *testing.T) {
	c := newCoordinator(t, ExchangerFunc(func(_ context.Context, rt string) (idp.Token, error) {
		if rt != "rt-old" {
			t.Fatalf("unexpected refresh token %q", rt)
		}
		return idp.Token{AccessToken: "at-new", RefreshToken: "rt-new", ExpiresIn: 300 * time.Second}, nil
	}))

	res, err := c.Refresh(context.Background(), staleEnvelope())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	want := session.Envelope{AccessToken: "at-new", RefreshToken: "rt-new", ExpiresAt: fixedNow.Unix() + 300}
	if res.Envelope != want || res.Deduplicated {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	c := newCoordinator(t, ExchangerFunc(func(context.Context, string) (idp.Token, error) {
		return idp.Token{AccessToken: "at-new", ExpiresIn: time.Minute}, nil
	}))

	res, err := c.Refresh(context.Background(), staleEnvelope())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Envelope.RefreshToken != "rt-old" {
		t.Fatalf("expected prior refresh token to be kept, got %q", res.Envelope.RefreshToken)
	}
}

func TestRefreshFailureReturnsNoEnvelope(t *testing.T) {
	cause := idp.ErrUnavailable
	guard := NewLocalGuard()
	c := newCoordinator(t, ExchangerFunc(func(context.Context, string) (idp.Token, error) {
		return idp.Token{}, cause
	}), WithGuard(guard))

	res, err := c.Refresh(context.Background(), staleEnvelope())
	if !errors.Is(err, ErrRefreshFailed) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped refresh failure, got %v", err)
	}
	if res.Envelope != (session.Envelope{}) {
		t.Fatalf("expected no envelope on failure, got %+v", res.Envelope)
	}
	if guard.Held() {
		t.Fatal("guard must be released after failure")
	}
}

func TestRefreshRejectsIncompleteToken(t *testing.T) {
	c := newCoordinator(t, ExchangerFunc(func(context.Context, string) (idp.Token, error) {
		return idp.Token{AccessToken: "at-new"}, nil
	}))

	if _, err := c.Refresh(context.Background(), staleEnvelope()); !errors.Is(err, session.ErrPartialEnvelope) {
		t.Fatalf("expected partial envelope failure, got %v", err)
	}
}

func TestRefreshReleasesGuardOnPanic(t *testing.T) {
	guard := NewLocalGuard()
	c := newCoordinator(t, ExchangerFunc(func(context.Context, string) (idp.Token, error) {
		panic("provider client bug")
	}), WithGuard(guard))

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_, _ = c.Refresh(context.Background(), staleEnvelope())
	}()

	if guard.Held() {
		t.Fatal("guard must be released after panic")
	}
}

func TestRefreshDetachedFromRequestCancellation(t *testing.T) {
	var sawCanceled atomic.Bool
	c := newCoordinator(t, ExchangerFunc(func(ctx context.Context, _ string) (idp.Token, error) {
		if ctx.Err() != nil {
			sawCanceled.Store(true)
		}
		if _, ok := ctx.Deadline(); !ok {
			t.Fatal("expected exchange deadline")
		}
		return idp.Token{AccessToken: "at-new", ExpiresIn: time.Minute}, nil
	}), WithTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Refresh(ctx, staleEnvelope()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if sawCanceled.Load() {
		t.Fatal("client cancellation must not reach the exchange")
	}
}

func TestRefreshTimeout(t *testing.T) {
	c := newCoordinator(t, ExchangerFunc(func(ctx context.Context, _ string) (idp.Token, error) {
		<-ctx.Done()
		return idp.Token{}, idp.ErrUnavailable
	}), WithTimeout(20*time.Millisecond))

	if _, err := c.Refresh(context.Background(), staleEnvelope()); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected refresh failure on timeout, got %v", err)
	}
}

func TestConcurrentRefreshIssuesOneExchange(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	unblock := make(chan struct{})
	c := newCoordinator(t, ExchangerFunc(func(context.Context, string) (idp.Token, error) {
		calls.Add(1)
		close(entered)
		<-unblock
		return idp.Token{AccessToken: "at-new", ExpiresIn: time.Minute}, nil
	}))

	env := staleEnvelope()
	var wg sync.WaitGroup
	var first Result
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = c.Refresh(context.Background(), env)
	}()
	<-entered

	done := make(chan Result, 1)
	go func() {
		res, err := c.Refresh(context.Background(), env)
		if err != nil {
			t.Errorf("deduplicated refresh: %v", err)
		}
		done <- res
	}()

	select {
	case second := <-done:
		if !second.Deduplicated || second.Envelope != env {
			t.Fatalf("expected unmodified deduplicated result, got %+v", second)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second refresh blocked on the outstanding one")
	}

	close(unblock)
	wg.Wait()
	if firstErr != nil || first.Envelope.AccessToken != "at-new" {
		t.Fatalf("unexpected first result %+v err=%v", first, firstErr)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one exchange, got %d", calls.Load())
	}
}

func TestConcurrentStormAtMostOneExchange(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := newCoordinator(t, ExchangerFunc(func(context.Context, string) (idp.Token, error) {
		calls.Add(1)
		<-release
		return idp.Token{AccessToken: "at-new", ExpiresIn: time.Minute}, nil
	}))

	const workers = 32
	var wg sync.WaitGroup
	var deduped atomic.Int32
	start := make(chan struct{})
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := c.Refresh(context.Background(), staleEnvelope())
			if err != nil {
				t.Errorf("refresh: %v", err)
				return
			}
			if res.Deduplicated {
				deduped.Add(1)
			}
		}()
	}
	close(start)
	deadline := time.Now().Add(2 * time.Second)
	for deduped.Load() < workers-1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if calls.Load() != 1 || deduped.Load() != workers-1 {
		t.Fatalf("calls=%d deduped=%d", calls.Load(), deduped.Load())
	}
}

func TestNewRequiresExchanger(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil exchanger")
	}
}

func blockingExchanger(entered, unblock chan struct{}) ExchangerFunc {
	return func(context.Context, string) (idp.Token, error) {
		if entered != nil {
			close(entered)
		}
		if unblock != nil {
			<-unblock
		}
		return idp.Token{AccessToken: "at-new", ExpiresIn: time.Minute}, nil
	}
}
