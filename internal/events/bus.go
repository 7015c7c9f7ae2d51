package events

import (
	"github.com/kelindar/event"
)

// Bus carries lifecycle events between the supervisor, metrics and the API.
// A nil *Bus is valid: publishing to it does nothing.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish delivers ev to every subscriber of its concrete type.
// T must be the concrete event type: kelindar/event routes on it.
func Publish[T Event](b *Bus, ev T) {
	if b == nil {
		return
	}
	event.Publish(b.dispatcher, ev)
}

// Subscribe registers fn for events of type T and returns the unsubscribe
// function.
func Subscribe[T Event](b *Bus, fn func(T)) func() {
	if b == nil {
		return func() {}
	}
	return event.Subscribe(b.dispatcher, fn)
}

// SubscribeToChannel bridges subscriptions to a channel for select-loop
// consumers such as the SSE handlers. Events are dropped while ch is full.
func SubscribeToChannel[T Event](b *Bus, ch chan<- any) func() {
	return Subscribe(b, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
