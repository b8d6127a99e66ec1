// Package events is the in-process publish/subscribe plumbing that lets one
// module react to another without importing it. Event types live with the
// domain; this package only routes them.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is routed by EventName. EventID lets subscribers that log or
// forward an event refer to the same occurrence.
type Event interface {
	EventName() string
	EventID() uuid.UUID
	OccurredAt() time.Time
}

// BaseEvent is embedded by every event type.
type BaseEvent struct {
	ID        uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"occurredAt"`
}

// NewBaseEvent stamps an event with a fresh ID at the publisher's clock.
func NewBaseEvent(at time.Time) BaseEvent {
	return BaseEvent{ID: uuid.New(), Timestamp: at.UTC()}
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// Handler reacts to one published event. The bus logs returned errors.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Typed adapts fn to a Handler for a single event type. Events of any other
// type are ignored, so one subscription name can never feed fn a stranger.
func Typed[E Event](fn func(ctx context.Context, event E) error) Handler {
	return HandlerFunc(func(ctx context.Context, event Event) error {
		typed, ok := event.(E)
		if !ok {
			return nil
		}
		return fn(ctx, typed)
	})
}

// Bus routes events by name to the handlers subscribed to it.
type Bus interface {
	// Publish hands the event to every handler without waiting. Handlers
	// run detached from ctx's cancellation.
	Publish(ctx context.Context, event Event)
	// PublishSync runs handlers in subscription order and stops at the
	// first error.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}

// Subscriber attaches a module's handlers at startup.
type Subscriber interface {
	RegisterHandlers(bus Bus)
}

// Register attaches every subscriber to bus in order.
func Register(bus Bus, subscribers ...Subscriber) {
	for _, s := range subscribers {
		s.RegisterHandlers(bus)
	}
}
