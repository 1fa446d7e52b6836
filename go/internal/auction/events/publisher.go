package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Publisher delivers engine events to an external sink
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// PublisherFunc is a function adapter for Publisher.
type PublisherFunc func(ctx context.Context, env Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// NoOpPublisher drops every event
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, Envelope) error { return nil }

// MultiPublisher fans an event out to every registered sink. A failing sink is
// logged and does not stop delivery to the others.
type MultiPublisher struct {
	mu    sync.RWMutex
	sinks []Publisher
}

// NewMultiPublisher creates a fan-out publisher over sinks
func NewMultiPublisher(sinks ...Publisher) *MultiPublisher {
	return &MultiPublisher{sinks: sinks}
}

// Add registers another sink
func (m *MultiPublisher) Add(p Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, p)
}

// Publish sends env to all sinks and joins their errors
func (m *MultiPublisher) Publish(ctx context.Context, env Envelope) error {
	m.mu.RLock()
	sinks := make([]Publisher, len(m.sinks))
	copy(sinks, m.sinks)
	m.mu.RUnlock()

	var errs []error
	for _, sink := range sinks {
		if err := sink.Publish(ctx, env); err != nil {
			log.Error().
				Err(err).
				Str("event_id", env.ID).
				Str("event_type", string(env.Type)).
				Msg("failed to publish event to sink")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
