package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking. Otherwise Emit waits for buffer space
	// until the caller's context ends.
	DropIfFull bool
}

// Stats counts what happened to emitted events.
type Stats struct {
	Delivered uint64
	// Dropped counts events lost to a full buffer or an expired emit context.
	Dropped uint64
	// Failed counts events whose sink panicked.
	Failed uint64
}

// Dispatcher forwards session events to a sink from one background goroutine,
// so a slow sink never holds the engine's recovery lock.
type Dispatcher struct {
	cfg  Config
	sink Sink
	now  func() time.Time

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher, or returns nil when auditing is disabled.
// A nil *Dispatcher accepts every call and does nothing.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		now:    time.Now,
		events: make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.events:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.events:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if recover() != nil {
			d.failed.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit queues event, stamping it with the current UTC time when it has none.
// Events emitted after Close are dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if d.closed.Load() {
		d.dropped.Add(1)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	if d.cfg.DropIfFull {
		select {
		case d.events <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
		d.dropped.Add(1)
	}
}

// Close stops accepting events and waits until the buffer is delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}
