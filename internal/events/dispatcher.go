package events

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-auth/internal/auth"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/logging"
)

// Dispatcher defaults.
const (
	DefaultQueueSize = 256

	// sinkTimeout bounds how long one sink may take with one event.
	sinkTimeout = 5 * time.Second

	// drainTimeout bounds delivery of queued events after shutdown starts.
	drainTimeout = 10 * time.Second
)

// Sink consumes session events delivered by a Dispatcher.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev auth.SessionEvent) error
}

// Dispatcher fans session events out to sinks on a single background worker.
//
// Publish never blocks: when the queue is full the event is dropped and
// counted. Sinks see events in the order they were published. A failing
// sink is logged and does not stop delivery to the others.
//
// Thread Safety:
//   - Publish is safe for concurrent use from multiple goroutines.
//   - Run must be called exactly once.
type Dispatcher struct {
	queue  chan auth.SessionEvent
	sinks  []Sink
	logger *logging.Logger

	onDrop func()

	mu      sync.Mutex
	dropped uint64
	done    chan struct{}
}

// NewDispatcher creates a Dispatcher with the given queue capacity.
// A non-positive size uses DefaultQueueSize.
func NewDispatcher(queueSize int, logger *logging.Logger, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		queue:  make(chan auth.SessionEvent, queueSize),
		sinks:  sinks,
		logger: logger.With("component", "events"),
		done:   make(chan struct{}),
	}
}

// SetOnDrop registers a callback invoked for every dropped event.
// Must be called before Run.
func (d *Dispatcher) SetOnDrop(fn func()) {
	d.onDrop = fn
}

// Publish queues ev for delivery. It implements auth.EventSink.
func (d *Dispatcher) Publish(ev auth.SessionEvent) {
	select {
	case d.queue <- ev:
	default:
		d.mu.Lock()
		d.dropped++
		n := d.dropped
		d.mu.Unlock()

		d.logger.Warn("session event dropped, queue full",
			"type", string(ev.Type),
			"dropped_total", n,
		)
		if d.onDrop != nil {
			d.onDrop()
		}
	}
}

// Dropped returns how many events have been dropped so far.
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Run delivers queued events until ctx is cancelled, then drains whatever
// is still queued (bounded by drainTimeout) and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
		if ctx.Err() != nil {
			d.logger.Warn("event drain timed out", "remaining", len(d.queue))
			return
		}
	}
}

func (d *Dispatcher) deliver(parent context.Context, ev auth.SessionEvent) {
	for _, sink := range d.sinks {
		d.handle(parent, sink, ev)
	}
}

func (d *Dispatcher) handle(parent context.Context, sink Sink, ev auth.SessionEvent) {
	// Cancellation of the run context must not abort an in-flight delivery.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), sinkTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event sink panic recovered", "sink", sink.Name(), "panic", r)
		}
	}()

	if err := sink.Handle(ctx, ev); err != nil {
		d.logger.Warn("event sink failed",
			"sink", sink.Name(),
			"type", string(ev.Type),
			"error", err,
		)
	}
}
