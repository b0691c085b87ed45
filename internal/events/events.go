// Package events is an in-process bus for changes that affect availability.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Type names a kind of change.
type Type string

const (
	CatalogueSynced     Type = "catalogue.synced"
	AppointmentSaved    Type = "appointment.saved"
	UnavailabilityAdded Type = "unavailability.added"
)

// Event describes one change. StationID is 0 for catalogue-wide changes.
type Event struct {
	Type      Type
	StationID int64
	At        time.Time
}

// Handler reacts to an event.
type Handler func(ctx context.Context, event Event) error

// Bus provides synchronous pub/sub.
type Bus struct {
	subscribers map[Type][]Handler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger *zerolog.Logger) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bus{subscribers: make(map[Type][]Handler), logger: logger}
}

// Subscribe registers handler for every listed type.
func (b *Bus) Subscribe(handler Handler, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish runs the handlers of event.Type in subscription order. Handler
// errors are logged and do not stop later handlers.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.At.IsZero() {
		event.At = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Warn().
				Err(err).
				Str("event", string(event.Type)).
				Int64("station_id", event.StationID).
				Msg("event handler failed")
		}
	}
}
