// Package events delivers organization domain events to in-process
// subscribers, both right after a command commits and later from the outbox.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// Handler reacts to a single event.
type Handler interface {
	Handle(ctx context.Context, event organization.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event organization.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event organization.Event) error {
	return f(ctx, event)
}

// Publisher is what command handlers and the relay deliver events through.
type Publisher interface {
	Dispatch(ctx context.Context, events ...organization.Event) error
}

// Dispatcher fans events out to subscribers registered by event type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for eventType, or for every type with AllEvents.
func (d *Dispatcher) Subscribe(eventType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// Dispatch calls every matching handler for each event in order. A failing
// handler does not stop the others; all failures are returned joined.
func (d *Dispatcher) Dispatch(ctx context.Context, events ...organization.Event) error {
	var errs []error
	for _, event := range events {
		for _, h := range d.subscribers(event.EventType()) {
			if err := h.Handle(ctx, event); err != nil {
				errs = append(errs, fmt.Errorf("handle %s %s: %w", event.EventType(), event.EventID(), err))
			}
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) subscribers(eventType string) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Handler, 0, len(d.handlers[eventType])+len(d.handlers[AllEvents]))
	out = append(out, d.handlers[eventType]...)
	return append(out, d.handlers[AllEvents]...)
}

// LogSubscriber writes one structured log line per event.
func LogSubscriber(logger *slog.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, event organization.Event) error {
		logger.InfoContext(ctx, "domain event",
			"type", event.EventType(),
			"event_id", event.EventID(),
			"organization_id", event.OrganizationID(),
			"occurred_at", event.OccurredAt(),
		)
		return nil
	})
}
