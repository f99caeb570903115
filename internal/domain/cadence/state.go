package cadence

import "time"

// Status is the coarse lifecycle of an enrollment's execution.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// ExecutionState is the versioned, queryable snapshot of an enrollment's
// progress. Steps is the plan currently being executed against.
type ExecutionState struct {
	CurrentStepIndex    int         `json:"currentStepIndex"`
	StepsVersion        int         `json:"stepsVersion"`
	Status              Status      `json:"status"`
	Steps               []Step      `json:"steps"`
	StepCompletionTimes []time.Time `json:"stepCompletionTimes"`
}

// NewExecutionState returns the initial state for a plan: COMPLETED when the
// plan is empty, PENDING otherwise.
func NewExecutionState(steps []Step) ExecutionState {
	status := StatusPending
	if len(steps) == 0 {
		status = StatusCompleted
	}
	return ExecutionState{
		CurrentStepIndex:    0,
		StepsVersion:        1,
		Status:              status,
		Steps:               CloneSteps(nonNil(steps)),
		StepCompletionTimes: []time.Time{},
	}
}

// Clone returns a deep copy that shares no slices with the receiver.
func (s ExecutionState) Clone() ExecutionState {
	times := make([]time.Time, len(s.StepCompletionTimes))
	copy(times, s.StepCompletionTimes)
	return ExecutionState{
		CurrentStepIndex:    s.CurrentStepIndex,
		StepsVersion:        s.StepsVersion,
		Status:              s.Status,
		Steps:               CloneSteps(nonNil(s.Steps)),
		StepCompletionTimes: times,
	}
}

// IsCompleted reports whether the state is terminal.
func (s ExecutionState) IsCompleted() bool {
	return s.Status == StatusCompleted
}

// HasNext reports whether the loop still has a step to run against the current plan.
func (s ExecutionState) HasNext() bool {
	return s.Status != StatusCompleted && s.CurrentStepIndex < len(s.Steps)
}

func nonNil(steps []Step) []Step {
	if steps == nil {
		return []Step{}
	}
	return steps
}

// SuspensionKind names what the loop was blocked on when a snapshot was taken.
type SuspensionKind string

const (
	// SuspensionWait is a WAIT step's timer.
	SuspensionWait SuspensionKind = "wait"
	// SuspensionSend is an in-flight email send.
	SuspensionSend SuspensionKind = "send"
	// SuspensionSettle is the post-send settle delay; the email has already gone out.
	SuspensionSettle SuspensionKind = "settle"
)

// Suspension identifies the step index the loop is blocked on and how long it
// still has to wait. Together with ExecutionState it is everything needed to
// resume the loop after a restart.
type Suspension struct {
	StepIndex int            `json:"stepIndex"`
	Kind      SuspensionKind `json:"kind"`
	ResumeAt  time.Time      `json:"resumeAt,omitzero"`
}

// Remaining returns how much of a timed suspension is left at now, never negative.
func (s Suspension) Remaining(now time.Time) time.Duration {
	if s.ResumeAt.IsZero() {
		return 0
	}
	left := s.ResumeAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Snapshot is the durable record of one enrollment.
type Snapshot struct {
	EnrollmentID string         `json:"enrollmentId"`
	CadenceID    string         `json:"cadenceId,omitempty"`
	ContactEmail string         `json:"contactEmail"`
	State        ExecutionState `json:"state"`
	Suspension   *Suspension    `json:"suspension,omitempty"`
	Failed       bool           `json:"failed,omitempty"`
	LastError    string         `json:"lastError,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Resumable reports whether a host should restart the loop for this snapshot.
func (s Snapshot) Resumable() bool {
	return !s.Failed && !s.State.IsCompleted()
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.State = s.State.Clone()
	if s.Suspension != nil {
		susp := *s.Suspension
		out.Suspension = &susp
	}
	return out
}
