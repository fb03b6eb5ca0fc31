package port

import (
	"context"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/event"
)

// EventSink receives audit events. Publishing is best-effort from the
// caller's perspective: the workflow never fails because an audit entry
// could not be delivered.
type EventSink interface {
	Publish(ctx context.Context, evt *event.Event)
}

// NopEventSink discards all events
type NopEventSink struct{}

func (NopEventSink) Publish(context.Context, *event.Event) {}
