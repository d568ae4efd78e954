package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering. With DropIfFull a full buffer discards the event and
// counts it; otherwise Emit waits for room or for the caller's context. Now stamps events
// emitted without a timestamp and defaults to time.Now.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	Now        func() time.Time
}

type queued struct {
	ctx   context.Context
	event Event
}

// Dispatcher relays events to a sink on its own goroutine, off the request path.
type Dispatcher struct {
	cfg     Config
	sink    Sink
	queue   chan queued
	stop    chan struct{}
	relayWG sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool
	closing sync.Once
}

// NewDispatcher starts a dispatcher. A disabled config yields nil, and every method is a no-op
// on a nil *Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan queued, cfg.BufferSize),
		stop:  make(chan struct{}),
	}
	d.relayWG.Add(1)
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer d.relayWG.Done()

	for {
		select {
		case q := <-d.queue:
			d.sink.Emit(q.ctx, q.event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case q := <-d.queue:
			d.sink.Emit(q.ctx, q.event)
		default:
			return
		}
	}
}

// Emit queues event. The sink receives ctx's values (request id, logging attributes) but not
// its deadline, so delivery outlives the request that caused it. An event abandoned because
// the caller's ctx ended counts as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.cfg.Now().UTC()
	}
	q := queued{ctx: context.WithoutCancel(ctx), event: event}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- q:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- q:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events and returns once everything queued has been delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closing.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.relayWG.Wait()
	})
}

// Dropped reports how many events never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
