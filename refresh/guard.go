package refresh

import (
	"context"
	"sync"
	"sync/atomic"
)

// Guard marks a refresh as outstanding. TryAcquire never blocks: ok is false
// when another caller holds the guard. The returned release func is idempotent.
type Guard interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool)
}

// LocalGuard is a single in-process flag. The key is ignored, so at most one
// refresh per LocalGuard is outstanding at any time.
type LocalGuard struct {
	busy atomic.Bool
}

// NewLocalGuard returns an unheld guard.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{}
}

// TryAcquire implements Guard.
func (g *LocalGuard) TryAcquire(_ context.Context, _ string) (func(), bool) {
	if !g.busy.CompareAndSwap(false, true) {
		return func() {}, false
	}
	var once sync.Once
	return func() {
		once.Do(func() { g.busy.Store(false) })
	}, true
}

// Held reports whether a refresh is outstanding.
func (g *LocalGuard) Held() bool {
	return g.busy.Load()
}
