// Package engine drives one enrollment's cadence: it executes steps in order,
// accepts wholesale replacement of the plan while steps are in flight, and
// answers point-in-time state queries.
//
// The loop re-reads the plan under the engine lock at the top of every
// iteration, so a signal takes effect for every step that has not started.
// A step that is already running always finishes and is recorded; only work
// after it is discarded. Suspensions (timers and sends) happen outside the
// lock, so signals and queries are never blocked by step execution.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/events"
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

// DefaultSettleDelay is the fixed pause after every email send, independent of
// step content, so a cadence never hammers the outbox.
const DefaultSettleDelay = 3 * time.Second

// Config identifies the enrollment an engine runs for.
type Config struct {
	EnrollmentID string
	CadenceID    string
	ContactEmail string
	Steps        []cadence.Step
}

// Engine is the execution state machine for one enrollment. It exclusively
// owns its ExecutionState; all reads go through State or Snapshot.
type Engine struct {
	enrollmentID string
	cadenceID    string
	contactEmail string
	createdAt    time.Time

	gateway      ports.ActivityGateway
	logger       ports.Logger
	events       ports.EventPublisher
	checkpointer ports.Checkpointer
	now          func() time.Time
	settleDelay  time.Duration

	// persistMu orders checkpoint writes; it is always taken before mu.
	persistMu sync.Mutex

	mu         sync.Mutex
	state      cadence.ExecutionState
	suspension *cadence.Suspension
	failed     bool
	lastError  string
	started    bool
	exited     bool
	runErr     error
	done       chan struct{}
}

// New creates an engine for a fresh enrollment. The initial steps are
// validated; an empty list yields an engine that is already COMPLETED.
func New(cfg Config, gateway ports.ActivityGateway, opts ...Option) (*Engine, error) {
	if cfg.EnrollmentID == "" {
		return nil, cadence.NewError(cadence.ErrCodeMissing, "missing required field", nil, map[string]interface{}{"field": "enrollment_id"})
	}
	if cfg.ContactEmail == "" {
		return nil, cadence.NewError(cadence.ErrCodeMissing, "missing required field", nil, map[string]interface{}{"field": "contact_email"})
	}
	if err := cadence.ValidateSteps(cfg.Steps); err != nil {
		return nil, err
	}

	e := newEngine(cfg.EnrollmentID, cfg.CadenceID, cfg.ContactEmail, gateway, opts)
	e.createdAt = e.now()
	e.state = cadence.NewExecutionState(cfg.Steps)
	return e, nil
}

// Restore rebuilds an engine from a persisted snapshot. A snapshot that is
// completed or failed yields an engine whose Run returns immediately.
func Restore(snapshot cadence.Snapshot, gateway ports.ActivityGateway, opts ...Option) (*Engine, error) {
	if snapshot.EnrollmentID == "" {
		return nil, cadence.NewError(cadence.ErrCodeMissing, "missing required field", nil, map[string]interface{}{"field": "enrollment_id"})
	}
	if err := cadence.ValidateSteps(snapshot.State.Steps); err != nil {
		return nil, err
	}
	if snapshot.State.CurrentStepIndex < 0 || snapshot.State.StepsVersion < 1 {
		return nil, cadence.NewError(cadence.ErrCodeValidation, "snapshot has an invalid step index or version", nil, map[string]interface{}{
			"enrollment_id":      snapshot.EnrollmentID,
			"current_step_index": snapshot.State.CurrentStepIndex,
			"steps_version":      snapshot.State.StepsVersion,
		})
	}

	snap := snapshot.Clone()
	e := newEngine(snap.EnrollmentID, snap.CadenceID, snap.ContactEmail, gateway, opts)
	e.createdAt = snap.CreatedAt
	e.state = snap.State
	if e.state.Steps == nil {
		e.state.Steps = []cadence.Step{}
	}
	if e.state.StepCompletionTimes == nil {
		e.state.StepCompletionTimes = []time.Time{}
	}
	e.suspension = snap.Suspension
	e.failed = snap.Failed
	e.lastError = snap.LastError

	if !snap.Resumable() {
		e.started = true
		e.exited = true
		if snap.Failed {
			e.runErr = cadence.NewError(cadence.ErrCodeExecution, snap.LastError, nil, map[string]interface{}{
				"enrollment_id": snap.EnrollmentID,
			})
		}
		close(e.done)
	}
	return e, nil
}

func newEngine(id, cadenceID, contact string, gateway ports.ActivityGateway, opts []Option) *Engine {
	e := &Engine{
		enrollmentID: id,
		cadenceID:    cadenceID,
		contactEmail: contact,
		gateway:      gateway,
		logger:       logging.NewNoOpLogger(),
		now:          time.Now,
		settleDelay:  DefaultSettleDelay,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine", "enrollment_id", id)
	return e
}

// ID returns the enrollment identifier.
func (e *Engine) ID() string {
	return e.enrollmentID
}

// State returns a point-in-time copy of the execution state. It never
// observes a partially applied signal or completion.
func (e *Engine) State() cadence.ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Snapshot returns the durable record for this enrollment.
func (e *Engine) Snapshot() cadence.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Done is closed once the loop has exited for any reason.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the loop exits or ctx ends, returning the terminal state
// and the error Run returned.
func (e *Engine) Wait(ctx context.Context) (cadence.ExecutionState, error) {
	select {
	case <-e.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.state.Clone(), e.runErr
	case <-ctx.Done():
		return e.State(), ctx.Err()
	}
}

// Run drives the loop until the plan is exhausted, an activity fails fatally,
// or ctx ends. Calling Run more than once waits on the first run.
//
// On fatal failure the status is left IN_PROGRESS and an execution error is
// returned. When ctx ends mid-step a cancelled error is returned and the
// suspension is kept so a restored engine can resume where this one stopped.
func (e *Engine) Run(ctx context.Context) (cadence.ExecutionState, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return e.Wait(ctx)
	}
	e.started = true
	e.mu.Unlock()

	defer close(e.done)

	initial := e.State()
	e.logger.Info(ctx, "enrollment loop started", "status", initial.Status, "current_step_index", initial.CurrentStepIndex, "step_count", len(initial.Steps))
	e.publish(ctx, ports.EventEnrollmentStarted, map[string]interface{}{
		"current_step_index": initial.CurrentStepIndex,
		"step_count":         len(initial.Steps),
		"steps_version":      initial.StepsVersion,
	})

	for {
		index, step, resume, ok := e.next(ctx)
		if !ok {
			break
		}
		if err := e.execute(ctx, index, step, resume); err != nil {
			return e.stop(ctx, index, err)
		}
		e.complete(ctx, index, step)
	}

	final := e.State()
	e.logger.Info(ctx, "enrollment completed", "current_step_index", final.CurrentStepIndex, "steps_executed", len(final.StepCompletionTimes))
	e.publish(ctx, ports.EventEnrollmentCompleted, map[string]interface{}{
		"current_step_index": final.CurrentStepIndex,
		"steps_executed":     len(final.StepCompletionTimes),
		"steps_version":      final.StepsVersion,
	})
	return final, nil
}

// UpdateSteps is the signal handler: it replaces the plan wholesale and bumps
// the version. A plan no longer than the current index completes the
// enrollment once any in-flight step finishes. Invalid plans are rejected
// without touching state. It never waits on step execution.
func (e *Engine) UpdateSteps(ctx context.Context, steps []cadence.Step) error {
	if err := cadence.ValidateSteps(steps); err != nil {
		return err
	}

	e.persistMu.Lock()
	e.mu.Lock()
	if e.exited {
		e.mu.Unlock()
		e.persistMu.Unlock()
		return cadence.NewStateError("enrollment is no longer running", map[string]interface{}{
			"enrollment_id": e.enrollmentID,
		})
	}
	if steps == nil {
		steps = []cadence.Step{}
	}
	e.state.Steps = cadence.CloneSteps(steps)
	e.state.StepsVersion++
	if len(steps) <= e.state.CurrentStepIndex {
		e.state.Status = cadence.StatusCompleted
	} else if e.state.Status != cadence.StatusCompleted {
		e.state.Status = cadence.StatusInProgress
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.persist(ctx, snap)
	e.persistMu.Unlock()

	e.logger.Info(ctx, "steps updated", "steps_version", snap.State.StepsVersion, "step_count", len(steps), "status", snap.State.Status)
	e.publish(ctx, ports.EventStepsUpdated, map[string]interface{}{
		"steps_version":      snap.State.StepsVersion,
		"step_count":         len(steps),
		"current_step_index": snap.State.CurrentStepIndex,
		"status":             string(snap.State.Status),
	})
	return nil
}

// next picks the step at the current index from the freshest plan, or marks
// the enrollment finished when there is none.
func (e *Engine) next(ctx context.Context) (int, cadence.Step, *cadence.Suspension, bool) {
	e.persistMu.Lock()
	e.mu.Lock()
	if !e.state.HasNext() {
		changed := e.state.Status != cadence.StatusCompleted || e.suspension != nil
		e.state.Status = cadence.StatusCompleted
		e.suspension = nil
		e.exited = true
		snap := e.snapshotLocked()
		e.mu.Unlock()
		if changed {
			e.persist(ctx, snap)
		}
		e.persistMu.Unlock()
		return 0, cadence.Step{}, nil, false
	}

	index := e.state.CurrentStepIndex
	step := e.state.Steps[index]
	e.state.Status = cadence.StatusInProgress

	var resume *cadence.Suspension
	if e.suspension != nil && e.suspension.StepIndex == index && suspensionMatches(*e.suspension, step) {
		s := *e.suspension
		resume = &s
	} else {
		e.suspension = nil
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.persist(ctx, snap)
	e.persistMu.Unlock()

	e.logger.Debug(ctx, "step started", "step_index", index, "step_id", step.ID, "step_type", step.Type, "resumed", resume != nil)
	e.publish(ctx, ports.EventStepStarted, map[string]interface{}{
		"step_index": index,
		"step_id":    step.ID,
		"step_type":  string(step.Type),
		"resumed":    resume != nil,
	})
	return index, step, resume, true
}

// execute performs one step's effect. resume, when set, is the suspension a
// previous process recorded for this index.
func (e *Engine) execute(ctx context.Context, index int, step cadence.Step, resume *cadence.Suspension) error {
	switch step.Type {
	case cadence.StepTypeWait:
		resumeAt := e.now().Add(time.Duration(step.Seconds) * time.Second)
		if resume != nil && resume.Kind == cadence.SuspensionWait && !resume.ResumeAt.IsZero() {
			resumeAt = resume.ResumeAt
		}
		susp := e.suspend(ctx, cadence.Suspension{StepIndex: index, Kind: cadence.SuspensionWait, ResumeAt: resumeAt})
		if err := e.gateway.SleepFor(ctx, susp.Remaining(e.now())); err != nil {
			return cadence.NewCancelledError(index, err)
		}
		e.gateway.RecordWait(ctx, step.Seconds)

	case cadence.StepTypeSendEmail:
		var settleAt time.Time
		if resume != nil && resume.Kind == cadence.SuspensionSettle {
			settleAt = resume.ResumeAt
		} else {
			e.suspend(ctx, cadence.Suspension{StepIndex: index, Kind: cadence.SuspensionSend})
			result, err := e.gateway.SendEmail(ctx, e.contactEmail, step.Subject, step.Body)
			if err != nil {
				if ctx.Err() != nil {
					return cadence.NewCancelledError(index, ctx.Err())
				}
				return cadence.NewExecutionError(index, err).WithContext(map[string]interface{}{
					"step_id":       step.ID,
					"enrollment_id": e.enrollmentID,
				})
			}
			e.logger.Info(ctx, "email sent", "step_index", index, "message_id", result.MessageID)
			e.publish(ctx, ports.EventEmailSent, map[string]interface{}{
				"step_index": index,
				"step_id":    step.ID,
				"message_id": result.MessageID,
				"to":         e.contactEmail,
			})
			settleAt = e.now().Add(e.settleDelay)
		}
		susp := e.suspend(ctx, cadence.Suspension{StepIndex: index, Kind: cadence.SuspensionSettle, ResumeAt: settleAt})
		if err := e.gateway.SleepFor(ctx, susp.Remaining(e.now())); err != nil {
			return cadence.NewCancelledError(index, err)
		}

	default:
		return cadence.NewExecutionError(index, fmt.Errorf("unsupported step type %q", step.Type))
	}
	return nil
}

// complete records the finished step and advances the index. The plan length
// is read after the step ran, so a truncating signal ends the loop here.
func (e *Engine) complete(ctx context.Context, index int, step cadence.Step) {
	e.persistMu.Lock()
	e.mu.Lock()
	finishedAt := e.now()
	e.state.StepCompletionTimes = append(e.state.StepCompletionTimes, finishedAt)
	e.state.CurrentStepIndex++
	e.suspension = nil
	if e.state.CurrentStepIndex >= len(e.state.Steps) {
		e.state.Status = cadence.StatusCompleted
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.persist(ctx, snap)
	e.persistMu.Unlock()

	e.logger.Info(ctx, "step completed", "step_index", index, "step_id", step.ID, "step_type", step.Type, "status", snap.State.Status)
	e.publish(ctx, ports.EventStepCompleted, map[string]interface{}{
		"step_index":         index,
		"step_id":            step.ID,
		"step_type":          string(step.Type),
		"current_step_index": snap.State.CurrentStepIndex,
		"completed_at":       finishedAt,
	})
}

// stop ends the loop early. Interruptions keep the suspension for resumption;
// anything else is a fatal failure that leaves the status IN_PROGRESS.
func (e *Engine) stop(ctx context.Context, index int, err error) (cadence.ExecutionState, error) {
	e.persistMu.Lock()
	e.mu.Lock()
	e.exited = true
	e.runErr = err
	interrupted := cadence.CodeOf(err) == cadence.ErrCodeCancelled
	if !interrupted {
		e.failed = true
		e.lastError = err.Error()
		e.suspension = nil
	}
	state := e.state.Clone()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.persist(ctx, snap)
	e.persistMu.Unlock()

	if interrupted {
		e.logger.Warn(ctx, "enrollment loop interrupted", "step_index", index, "error", err)
		return state, err
	}

	e.logger.Error(ctx, "enrollment failed", "step_index", index, "error", err)
	e.publish(ctx, ports.EventEnrollmentFailed, map[string]interface{}{
		"step_index": index,
		"error":      err.Error(),
	})
	return state, err
}

func (e *Engine) suspend(ctx context.Context, s cadence.Suspension) cadence.Suspension {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	susp := s
	e.suspension = &susp
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.persist(ctx, snap)
	return s
}

func (e *Engine) snapshotLocked() cadence.Snapshot {
	var susp *cadence.Suspension
	if e.suspension != nil {
		s := *e.suspension
		susp = &s
	}
	return cadence.Snapshot{
		EnrollmentID: e.enrollmentID,
		CadenceID:    e.cadenceID,
		ContactEmail: e.contactEmail,
		State:        e.state.Clone(),
		Suspension:   susp,
		Failed:       e.failed,
		LastError:    e.lastError,
		CreatedAt:    e.createdAt,
		UpdatedAt:    e.now(),
	}
}

// persist must be called with persistMu held so snapshots reach the store in
// mutation order. Failures are reported but never stop the loop.
func (e *Engine) persist(ctx context.Context, snap cadence.Snapshot) {
	if e.checkpointer == nil {
		return
	}
	if err := e.checkpointer.Checkpoint(context.WithoutCancel(ctx), snap); err != nil {
		e.logger.Error(ctx, "checkpoint failed", "steps_version", snap.State.StepsVersion, "error", err)
		e.publish(ctx, ports.EventCheckpointFailed, map[string]interface{}{
			"steps_version": snap.State.StepsVersion,
			"error":         err.Error(),
		})
	}
}

func (e *Engine) publish(ctx context.Context, eventType string, fields map[string]interface{}) {
	if e.events == nil {
		return
	}
	fields["enrollment_id"] = e.enrollmentID
	if err := e.events.Publish(ctx, events.NewEvent(eventType, fields)); err != nil {
		e.logger.Warn(ctx, "failed to publish event", "event_type", eventType, "error", err)
	}
}

func suspensionMatches(s cadence.Suspension, step cadence.Step) bool {
	switch s.Kind {
	case cadence.SuspensionWait:
		return step.Type == cadence.StepTypeWait
	case cadence.SuspensionSend, cadence.SuspensionSettle:
		return step.Type == cadence.StepTypeSendEmail
	}
	return false
}
