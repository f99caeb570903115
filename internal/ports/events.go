package ports

import "context"

const (
	// EventEnrollmentStarted is emitted when an engine loop begins (or resumes).
	EventEnrollmentStarted = "enrollment.started"
	// EventEnrollmentCompleted is emitted when the loop exits with status COMPLETED.
	EventEnrollmentCompleted = "enrollment.completed"
	// EventEnrollmentFailed is emitted when an activity fails fatally.
	EventEnrollmentFailed = "enrollment.failed"
	// EventStepStarted is emitted before a step's activity is invoked.
	EventStepStarted = "step.started"
	// EventStepCompleted is emitted once a step's completion time is recorded.
	EventStepCompleted = "step.completed"
	// EventStepsUpdated is emitted when a signal replaces the plan.
	EventStepsUpdated = "steps.updated"
	// EventEmailSent is emitted after the gateway accepts an email.
	EventEmailSent = "email.sent"
	// EventCheckpointFailed is emitted when a snapshot could not be persisted.
	EventCheckpointFailed = "checkpoint.failed"
)

// DomainEvent represents a significant occurrence within an enrollment's
// execution. Events carry structured payloads that subscribers can use for
// logging or integrations.
type DomainEvent interface {
	EventType() string
	Payload() interface{}
}

// EventPublisher distributes events to interested subscribers. Dispatch is
// synchronous: Publish blocks until all handlers run. Implementations must be
// thread-safe because every engine publishes from its own goroutine.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
}

// EventHandler processes an event of a specific type. Failures are returned so
// publishers can log them and keep delivering to remaining subscribers.
type EventHandler func(context.Context, DomainEvent) error

// Subscription represents a registered handler. Callers invoke Unsubscribe to
// stop receiving events.
type Subscription interface {
	Unsubscribe()
}
