package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/event"
)

// Logger defines the logging interface used by the dispatcher
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// HandlerFunc processes a single audit event
type HandlerFunc func(ctx context.Context, evt *event.Event) error

// Dispatcher fans audit events out to registered handlers. Publication
// is fire-and-forget: a failing handler is logged and never blocks the
// workflow that emitted the event.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]namedHandler
	wildcard []namedHandler
	wg       sync.WaitGroup
	closed   atomic.Bool
	logger   Logger
}

type namedHandler struct {
	name string
	fn   HandlerFunc
}

// New creates a new event Dispatcher
func New(logger Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[event.Type][]namedHandler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a specific event type
func (d *Dispatcher) Subscribe(eventType event.Type, name string, fn HandlerFunc) error {
	if !eventType.IsValid() {
		return fmt.Errorf("cannot subscribe to unknown event type %q", eventType)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], namedHandler{name: name, fn: fn})
	return nil
}

// SubscribeAll registers a handler that receives every event
func (d *Dispatcher) SubscribeAll(name string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wildcard = append(d.wildcard, namedHandler{name: name, fn: fn})
}

// Publish delivers the event to all matching handlers asynchronously.
// Satisfies port.EventSink.
func (d *Dispatcher) Publish(ctx context.Context, evt *event.Event) {
	if evt == nil || d.closed.Load() {
		return
	}

	d.mu.RLock()
	targets := make([]namedHandler, 0, len(d.wildcard)+len(d.handlers[evt.Type]))
	targets = append(targets, d.wildcard...)
	targets = append(targets, d.handlers[evt.Type]...)
	d.mu.RUnlock()

	for _, target := range targets {
		d.wg.Add(1)
		go func(h namedHandler) {
			defer d.wg.Done()
			d.safeExecute(h, evt)
		}(target)
	}
}

// safeExecute runs a handler, converting panics into logged errors
func (d *Dispatcher) safeExecute(h namedHandler, evt *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				"handler", h.name, "event_type", evt.Type.String(), "panic", r)
		}
	}()

	// detached context: the emitting request may already be done
	if err := h.fn(context.Background(), evt); err != nil {
		d.logger.Error("event handler failed",
			"handler", h.name, "event_type", evt.Type.String(), "error", err)
	}
}

// Close waits for in-flight handlers to finish. Further publishes are
// dropped.
func (d *Dispatcher) Close() {
	if d.closed.Swap(true) {
		return
	}
	d.wg.Wait()
}

// HandlerCount returns the number of registered handlers for a type,
// wildcard subscribers included
func (d *Dispatcher) HandlerCount(eventType event.Type) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.wildcard) + len(d.handlers[eventType])
}
