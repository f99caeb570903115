package engine

import (
	"time"

	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

// Option customises an Engine at construction time.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger ports.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEvents sets the publisher that receives enrollment and step events.
func WithEvents(events ports.EventPublisher) Option {
	return func(e *Engine) {
		e.events = events
	}
}

// WithCheckpointer persists every snapshot the engine produces.
func WithCheckpointer(checkpointer ports.Checkpointer) Option {
	return func(e *Engine) {
		e.checkpointer = checkpointer
	}
}

// WithClock replaces time.Now, for completion timestamps and resume deadlines.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSettleDelay overrides DefaultSettleDelay. Intended for tests and demos.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.settleDelay = d
		}
	}
}
