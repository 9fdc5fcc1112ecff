package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops an event when the buffer is full instead of waiting.
	DropIfFull bool
	// Retain lists event types that always wait for buffer space, even with
	// DropIfFull set. Fail-closed session events belong here.
	Retain []string
}

// Dispatcher relays audit events to a sink on its own goroutine.
//
// Drops are counted per event type so an operator can tell a lost
// session_refreshed from a lost session_refresh_failed.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	stop       chan struct{}
	drained    sync.WaitGroup
	dropIfFull bool
	retain     map[string]struct{}

	dropped   atomic.Uint64
	dropMu    sync.Mutex
	dropByKey map[string]uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher. It returns nil when cfg is disabled; a
// nil Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, size),
		stop:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		retain:     make(map[string]struct{}, len(cfg.Retain)),
		dropByKey:  make(map[string]uint64),
	}
	for _, t := range cfg.Retain {
		d.retain[t] = struct{}{}
	}

	d.drained.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.drained.Done()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush delivers whatever is still buffered after Close.
func (d *Dispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues event. Retained event types, and every type when DropIfFull is
// off, wait for space until ctx is done; an event abandoned that way counts
// as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull && !d.retained(event.EventType) {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.drop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event.EventType)
	case <-d.stop:
	}
}

func (d *Dispatcher) retained(eventType string) bool {
	_, ok := d.retain[eventType]
	return ok
}

func (d *Dispatcher) drop(eventType string) {
	d.dropped.Add(1)
	d.dropMu.Lock()
	d.dropByKey[eventType]++
	d.dropMu.Unlock()
}

// Close stops accepting events and waits until the buffer is delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.drained.Wait()
	})
}

// Dropped returns the total number of dropped events.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns a copy of the drop counts keyed by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := map[string]uint64{}
	if d == nil {
		return out
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	for k, v := range d.dropByKey {
		out[k] = v
	}
	return out
}
