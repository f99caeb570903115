package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

func requireNonDecreasing(t *testing.T, times []time.Time) {
	t.Helper()
	for i := 1; i < len(times); i++ {
		require.False(t, times[i].Before(times[i-1]), "completion time %d precedes %d", i, i-1)
	}
}

func TestRunExecutesStepsInOrder(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	clock := newFakeClock()
	steps := []cadence.Step{
		cadence.Wait("w1", 2),
		cadence.SendEmail("e1", "hello", "first"),
		cadence.Wait("w2", 1),
		cadence.SendEmail("e2", "again", "second"),
	}
	e := newTestEngine(t, gw, steps, WithClock(clock.Now))

	state, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, cadence.StatusCompleted, state.Status)
	require.Equal(t, 4, state.CurrentStepIndex)
	require.Len(t, state.StepCompletionTimes, 4)
	requireNonDecreasing(t, state.StepCompletionTimes)

	require.Equal(t, []sentEmail{
		{to: "a@example.com", subject: "hello", body: "first"},
		{to: "a@example.com", subject: "again", body: "second"},
	}, gw.sentEmails())
	require.Equal(t, []int{2, 1}, gw.waits)

	sleeps := gw.recordedSleeps()
	require.Len(t, sleeps, 4)
	require.InDelta(t, float64(2*time.Second), float64(sleeps[0]), float64(10*time.Millisecond))
	require.InDelta(t, float64(10*time.Millisecond), float64(sleeps[1]), float64(10*time.Millisecond))
	require.InDelta(t, float64(time.Second), float64(sleeps[2]), float64(10*time.Millisecond))
}

func TestEmptyPlanCompletesWithoutIterations(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	e := newTestEngine(t, gw, nil)

	require.Equal(t, cadence.StatusCompleted, e.State().Status)

	state, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, cadence.StatusCompleted, state.Status)
	require.Equal(t, 0, state.CurrentStepIndex)
	require.Empty(t, state.StepCompletionTimes)
	require.Empty(t, gw.recordedSleeps())
	require.Empty(t, gw.sentEmails())
}

func TestWaitThenSendScenario(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	steps := []cadence.Step{cadence.Wait("w", 2), cadence.SendEmail("e", "hi", "body")}
	e, err := New(Config{EnrollmentID: "enroll_1", ContactEmail: "a@example.com", Steps: steps}, gw)
	require.NoError(t, err)

	state, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []int{2}, gw.waits)
	require.Equal(t, []sentEmail{{to: "a@example.com", subject: "hi", body: "body"}}, gw.sentEmails())

	sleeps := gw.recordedSleeps()
	require.Len(t, sleeps, 2)
	require.InDelta(t, float64(2*time.Second), float64(sleeps[0]), float64(50*time.Millisecond))
	require.InDelta(t, float64(DefaultSettleDelay), float64(sleeps[1]), float64(50*time.Millisecond))

	require.Equal(t, cadence.StatusCompleted, state.Status)
	require.Equal(t, 2, state.CurrentStepIndex)
	require.Len(t, state.StepCompletionTimes, 2)
	require.False(t, state.StepCompletionTimes[1].Before(state.StepCompletionTimes[0]))
}

func TestSignalTruncatingPlanMidWaitFinishesInFlightStep(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(1)
	steps := []cadence.Step{cadence.Wait("a", 1), cadence.Wait("b", 1), cadence.Wait("c", 1)}
	e := newTestEngine(t, gw, steps)

	done := runAsync(context.Background(), e)
	gw.awaitSleep(t, 1)

	mid := e.State()
	require.Equal(t, 1, mid.CurrentStepIndex)
	require.Len(t, mid.StepCompletionTimes, 1)

	require.NoError(t, e.UpdateSteps(context.Background(), []cadence.Step{cadence.Wait("x", 1)}))

	updated := e.State()
	require.Equal(t, cadence.StatusCompleted, updated.Status)
	require.Equal(t, 2, updated.StepsVersion)
	require.Equal(t, []cadence.Step{cadence.Wait("x", 1)}, updated.Steps)
	require.Len(t, updated.StepCompletionTimes, 1, "in-flight step has not finished yet")

	gw.release <- struct{}{}
	res := awaitRun(t, done)
	require.NoError(t, res.err)
	require.Equal(t, cadence.StatusCompleted, res.state.Status)
	require.Equal(t, 2, res.state.CurrentStepIndex)
	require.Len(t, res.state.StepCompletionTimes, 2)
	require.Len(t, gw.recordedSleeps(), 2, "no step past the truncated plan may run")
	require.Equal(t, []int{1, 1}, gw.waits)
}

func TestSignalTruncatingPlanDuringSettleDoesNotResend(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(0)
	steps := []cadence.Step{cadence.SendEmail("first", "one", "b"), cadence.SendEmail("second", "two", "b"), cadence.Wait("w", 1)}
	e := newTestEngine(t, gw, steps)

	done := runAsync(context.Background(), e)
	gw.awaitSleep(t, 0)
	require.Len(t, gw.sentEmails(), 1)

	require.NoError(t, e.UpdateSteps(context.Background(), []cadence.Step{cadence.SendEmail("replacement", "new", "b")}))
	mid := e.State()
	require.Equal(t, cadence.StatusInProgress, mid.Status)
	require.Empty(t, mid.StepCompletionTimes)

	gw.release <- struct{}{}
	res := awaitRun(t, done)
	require.NoError(t, res.err)
	require.Equal(t, cadence.StatusCompleted, res.state.Status)
	require.Equal(t, 1, res.state.CurrentStepIndex)
	require.Len(t, res.state.StepCompletionTimes, 1)
	require.Equal(t, []sentEmail{{to: "a@example.com", subject: "one", body: "b"}}, gw.sentEmails(),
		"the in-flight send is neither repeated nor replaced")
	require.Len(t, gw.recordedSleeps(), 1)
	require.Empty(t, gw.waits)
}

// blockingSender holds SendEmail until proceed is closed.
type blockingSender struct {
	*fakeGateway
	sending chan struct{}
	proceed chan struct{}
}

func (b *blockingSender) SendEmail(ctx context.Context, to, subject, body string) (ports.EmailResult, error) {
	b.sending <- struct{}{}
	<-b.proceed
	return b.fakeGateway.SendEmail(ctx, to, subject, body)
}

func TestSignalEmptyingPlanDuringSendFinishesSend(t *testing.T) {
	t.Parallel()

	gw := &blockingSender{fakeGateway: newFakeGateway(), sending: make(chan struct{}, 1), proceed: make(chan struct{})}
	e, err := New(Config{EnrollmentID: "enroll_send", ContactEmail: "a@example.com", Steps: []cadence.Step{
		cadence.SendEmail("hello", "hi", "body"), cadence.Wait("w", 1),
	}}, gw, WithSettleDelay(time.Millisecond))
	require.NoError(t, err)

	done := runAsync(context.Background(), e)
	select {
	case <-gw.sending:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for send")
	}

	require.NoError(t, e.UpdateSteps(context.Background(), []cadence.Step{}))
	require.Equal(t, cadence.StatusCompleted, e.State().Status)

	close(gw.proceed)
	res := awaitRun(t, done)
	require.NoError(t, res.err)
	require.Equal(t, cadence.StatusCompleted, res.state.Status)
	require.Equal(t, 1, res.state.CurrentStepIndex)
	require.Len(t, res.state.StepCompletionTimes, 1, "the in-flight send still records its completion")
	require.Len(t, gw.sentEmails(), 1)
	require.Len(t, gw.recordedSleeps(), 1, "only the settle of the in-flight send")
	require.Empty(t, gw.waits, "no step past the truncated plan may run")
}

func TestSignalExtendingPlanResumesWithNewStep(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(0)
	e := newTestEngine(t, gw, []cadence.Step{cadence.Wait("a", 1), cadence.Wait("b", 1)})

	done := runAsync(context.Background(), e)
	gw.awaitSleep(t, 0)

	newPlan := []cadence.Step{
		cadence.Wait("a", 1),
		cadence.SendEmail("x", "changed", "new body"),
		cadence.Wait("c", 5),
	}
	require.NoError(t, e.UpdateSteps(context.Background(), newPlan))
	state := e.State()
	require.Equal(t, cadence.StatusInProgress, state.Status)
	require.Equal(t, 0, state.CurrentStepIndex)
	require.Equal(t, newPlan, state.Steps)

	gw.release <- struct{}{}
	res := awaitRun(t, done)
	require.NoError(t, res.err)
	require.Equal(t, 3, res.state.CurrentStepIndex)
	require.Len(t, res.state.StepCompletionTimes, 3)
	require.Equal(t, []sentEmail{{to: "a@example.com", subject: "changed", body: "new body"}}, gw.sentEmails())
	require.Equal(t, []int{1, 5}, gw.waits, "old step b must never run")
}

func TestSignalWhilePendingMovesToInProgress(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	e := newTestEngine(t, gw, []cadence.Step{cadence.Wait("a", 1)})
	require.Equal(t, cadence.StatusPending, e.State().Status)

	require.NoError(t, e.UpdateSteps(context.Background(), []cadence.Step{cadence.Wait("a", 1), cadence.Wait("b", 2)}))
	require.Equal(t, cadence.StatusInProgress, e.State().Status)

	require.NoError(t, e.UpdateSteps(context.Background(), []cadence.Step{}))
	state := e.State()
	require.Equal(t, cadence.StatusCompleted, state.Status, "empty plan is used up at index 0")

	require.NoError(t, e.UpdateSteps(context.Background(), []cadence.Step{cadence.Wait("c", 1)}))
	require.Equal(t, cadence.StatusCompleted, e.State().Status, "completed status is sticky")

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.StepCompletionTimes)
	require.Empty(t, gw.recordedSleeps())
}

func TestStepsVersionIncrementsOncePerSignal(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newFakeGateway(), []cadence.Step{cadence.Wait("a", 1)})
	for i := 0; i < 5; i++ {
		require.NoError(t, e.UpdateSteps(context.Background(), []cadence.Step{cadence.Wait("a", i+1)}))
		require.Equal(t, i+2, e.State().StepsVersion)
	}
}

func TestInvalidSignalLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newFakeGateway(), []cadence.Step{cadence.Wait("a", 1)})
	before := e.State()

	err := e.UpdateSteps(context.Background(), []cadence.Step{cadence.Wait("a", 0)})
	require.Error(t, err)
	require.True(t, cadence.IsValidation(err))

	err = e.UpdateSteps(context.Background(), []cadence.Step{cadence.Wait("a", 1), cadence.Wait("a", 2)})
	require.Equal(t, cadence.ErrCodeDuplicate, cadence.CodeOf(err))

	require.Equal(t, before, e.State())
}

func TestSignalAfterExitIsRejected(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newFakeGateway(), []cadence.Step{cadence.Wait("a", 1)})
	_, err := e.Run(context.Background())
	require.NoError(t, err)

	err = e.UpdateSteps(context.Background(), []cadence.Step{cadence.Wait("a", 1), cadence.Wait("b", 1)})
	require.Equal(t, cadence.ErrCodeState, cadence.CodeOf(err))
	require.Equal(t, 1, e.State().StepsVersion)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	_, err := New(Config{ContactEmail: "a@example.com"}, gw)
	require.Equal(t, cadence.ErrCodeMissing, cadence.CodeOf(err))

	_, err = New(Config{EnrollmentID: "e"}, gw)
	require.Equal(t, cadence.ErrCodeMissing, cadence.CodeOf(err))

	_, err = New(Config{EnrollmentID: "e", ContactEmail: "a@example.com", Steps: []cadence.Step{cadence.Wait("w", -1)}}, gw)
	require.True(t, cadence.IsValidation(err))
}

func TestWaitLongerThanDurationRangeIsRejected(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	huge := []cadence.Step{cadence.Wait("w", 10_000_000_000)}

	_, err := New(Config{EnrollmentID: "e", ContactEmail: "a@example.com", Steps: huge}, gw)
	require.True(t, cadence.IsValidation(err))

	e := newTestEngine(t, gw, []cadence.Step{cadence.Wait("a", 1)})
	err = e.UpdateSteps(context.Background(), huge)
	require.True(t, cadence.IsValidation(err))
	require.Equal(t, 1, e.State().StepsVersion)

	_, err = Restore(cadence.Snapshot{
		EnrollmentID: "e",
		ContactEmail: "a@example.com",
		State:        cadence.ExecutionState{StepsVersion: 1, Status: cadence.StatusPending, Steps: huge},
	}, gw)
	require.True(t, cadence.IsValidation(err))
	require.Empty(t, gw.recordedSleeps())
}

func TestRestoreRejectsCorruptProgress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		index   int
		version int
	}{
		{name: "negative index", index: -1, version: 1},
		{name: "zero version", index: 0, version: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := cadence.NewExecutionState([]cadence.Step{cadence.Wait("a", 1)})
			state.CurrentStepIndex = tc.index
			state.StepsVersion = tc.version

			_, err := Restore(cadence.Snapshot{EnrollmentID: "enroll_bad", ContactEmail: "a@example.com", State: state}, newFakeGateway())
			require.True(t, cadence.IsValidation(err), "got %v", err)
		})
	}
}

func TestFatalSendFailureLeavesInProgress(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.sendErr = errors.New("retries exhausted")
	checkpoints := &recordingCheckpointer{}
	publisher := &recordingPublisher{}
	e := newTestEngine(t, gw, []cadence.Step{cadence.Wait("a", 1), cadence.SendEmail("e", "s", "b")},
		WithCheckpointer(checkpoints), WithEvents(publisher))

	state, err := e.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, cadence.ErrCodeExecution, cadence.CodeOf(err))
	require.ErrorContains(t, err, "retries exhausted")

	require.Equal(t, cadence.StatusInProgress, state.Status)
	require.Equal(t, 1, state.CurrentStepIndex)
	require.Len(t, state.StepCompletionTimes, 1)

	last := checkpoints.last()
	require.True(t, last.Failed)
	require.Contains(t, last.LastError, "retries exhausted")
	require.False(t, last.Resumable())
	require.Contains(t, publisher.types(), ports.EventEnrollmentFailed)
	require.NotContains(t, publisher.types(), ports.EventEnrollmentCompleted)

	_, waitErr := e.Wait(context.Background())
	require.ErrorIs(t, waitErr, err)
}

func TestInterruptedWaitResumesWithRemainingTime(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	gw := newFakeGateway(0)
	checkpoints := &recordingCheckpointer{}
	e := newTestEngine(t, gw, []cadence.Step{cadence.Wait("a", 2), cadence.SendEmail("e", "s", "b")},
		WithClock(clock.Now), WithCheckpointer(checkpoints))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, e)
	gw.awaitSleep(t, 0)
	cancel()

	res := awaitRun(t, done)
	require.Equal(t, cadence.ErrCodeCancelled, cadence.CodeOf(res.err))
	require.Equal(t, cadence.StatusInProgress, res.state.Status)

	snap := checkpoints.last()
	require.False(t, snap.Failed)
	require.True(t, snap.Resumable())
	require.NotNil(t, snap.Suspension)
	require.Equal(t, cadence.SuspensionWait, snap.Suspension.Kind)
	require.Equal(t, 0, snap.Suspension.StepIndex)

	clock.Advance(time.Second)
	gw2 := newFakeGateway()
	restored, err := Restore(snap, gw2, WithClock(clock.Now), WithSettleDelay(10*time.Millisecond))
	require.NoError(t, err)

	state, err := restored.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, cadence.StatusCompleted, state.Status)
	require.Len(t, state.StepCompletionTimes, 2)

	sleeps := gw2.recordedSleeps()
	require.Len(t, sleeps, 2)
	require.Greater(t, sleeps[0], 900*time.Millisecond)
	require.LessOrEqual(t, sleeps[0], time.Second, "only the remaining part of the wait is slept")
	require.Len(t, gw2.sentEmails(), 1)
}

func TestRestoreDuringSettleDoesNotResend(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	now := clock.Now()
	snap := cadence.Snapshot{
		EnrollmentID: "enroll_settle",
		ContactEmail: "a@example.com",
		State: cadence.ExecutionState{
			CurrentStepIndex:    0,
			StepsVersion:        1,
			Status:              cadence.StatusInProgress,
			Steps:               []cadence.Step{cadence.SendEmail("e", "s", "b")},
			StepCompletionTimes: []time.Time{},
		},
		Suspension: &cadence.Suspension{StepIndex: 0, Kind: cadence.SuspensionSettle, ResumeAt: now.Add(2 * time.Second)},
	}

	gw := newFakeGateway()
	e, err := Restore(snap, gw, WithClock(clock.Now))
	require.NoError(t, err)

	state, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, cadence.StatusCompleted, state.Status)
	require.Empty(t, gw.sentEmails(), "the email already went out before the restart")
	require.Len(t, gw.recordedSleeps(), 1)
	require.LessOrEqual(t, gw.recordedSleeps()[0], 2*time.Second)
}

func TestRestoreIgnoresSuspensionForDifferentStepKind(t *testing.T) {
	t.Parallel()

	snap := cadence.Snapshot{
		EnrollmentID: "enroll_mismatch",
		ContactEmail: "a@example.com",
		State:        cadence.NewExecutionState([]cadence.Step{cadence.SendEmail("e", "s", "b")}),
		Suspension:   &cadence.Suspension{StepIndex: 0, Kind: cadence.SuspensionWait, ResumeAt: time.Now().Add(time.Hour)},
	}

	gw := newFakeGateway()
	e, err := Restore(snap, gw, WithSettleDelay(time.Millisecond))
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, gw.sentEmails(), 1)
}

func TestRestoreTerminalSnapshots(t *testing.T) {
	t.Parallel()

	completed := cadence.Snapshot{EnrollmentID: "done", ContactEmail: "a@example.com", State: cadence.NewExecutionState(nil)}
	e, err := Restore(completed, newFakeGateway())
	require.NoError(t, err)
	state, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, cadence.StatusCompleted, state.Status)

	failed := cadence.Snapshot{
		EnrollmentID: "failed",
		ContactEmail: "a@example.com",
		State:        cadence.NewExecutionState([]cadence.Step{cadence.SendEmail("e", "s", "b")}),
		Failed:       true,
		LastError:    "smtp unreachable",
	}
	gw := newFakeGateway()
	e, err = Restore(failed, gw)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.Equal(t, cadence.ErrCodeExecution, cadence.CodeOf(err))
	require.Empty(t, gw.sentEmails(), "failed enrollments are not retried from scratch")
	require.Equal(t, cadence.ErrCodeState, cadence.CodeOf(e.UpdateSteps(context.Background(), []cadence.Step{cadence.Wait("a", 1)})))
}

func TestCheckpointsFollowMutationOrder(t *testing.T) {
	t.Parallel()

	checkpoints := &recordingCheckpointer{}
	publisher := &recordingPublisher{}
	e := newTestEngine(t, newFakeGateway(), []cadence.Step{cadence.Wait("a", 1), cadence.SendEmail("e", "s", "b")},
		WithCheckpointer(checkpoints), WithEvents(publisher))

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	snaps := checkpoints.all()
	require.NotEmpty(t, snaps)
	for i := 1; i < len(snaps); i++ {
		require.GreaterOrEqual(t, snaps[i].State.CurrentStepIndex, snaps[i-1].State.CurrentStepIndex)
		require.GreaterOrEqual(t, len(snaps[i].State.StepCompletionTimes), len(snaps[i-1].State.StepCompletionTimes))
	}
	last := snaps[len(snaps)-1]
	require.Equal(t, cadence.StatusCompleted, last.State.Status)
	require.Nil(t, last.Suspension)

	types := publisher.types()
	require.Equal(t, ports.EventEnrollmentStarted, types[0])
	require.Equal(t, ports.EventEnrollmentCompleted, types[len(types)-1])
	require.Contains(t, types, ports.EventEmailSent)
	require.Contains(t, types, ports.EventStepCompleted)
}

func TestCheckpointFailureDoesNotStopLoop(t *testing.T) {
	t.Parallel()

	checkpoints := &recordingCheckpointer{err: errors.New("disk full")}
	publisher := &recordingPublisher{}
	e := newTestEngine(t, newFakeGateway(), []cadence.Step{cadence.Wait("a", 1)},
		WithCheckpointer(checkpoints), WithEvents(publisher))

	state, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, cadence.StatusCompleted, state.Status)
	require.Contains(t, publisher.types(), ports.EventCheckpointFailed)
}

func TestStateIsNeverTorn(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(0)
	e := newTestEngine(t, gw, []cadence.Step{cadence.Wait("s0", 1), cadence.Wait("s1", 1)})
	done := runAsync(context.Background(), e)
	gw.awaitSleep(t, 0)

	// Signal n installs a plan of n+2 steps, so a consistent read always has
	// len(Steps) == StepsVersion+1.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				state := e.State()
				assert.Equal(t, state.StepsVersion+1, len(state.Steps))
			}
		}()
	}

	for n := 1; n <= 50; n++ {
		plan := make([]cadence.Step, n+2)
		for i := range plan {
			plan[i] = cadence.Wait(fmt.Sprintf("s%d", i), 1)
		}
		require.NoError(t, e.UpdateSteps(context.Background(), plan))
	}
	close(stop)
	wg.Wait()

	final := e.State()
	require.Equal(t, 51, final.StepsVersion)
	require.Len(t, final.Steps, 52)

	require.NoError(t, e.UpdateSteps(context.Background(), []cadence.Step{cadence.Wait("s0", 1)}))
	gw.release <- struct{}{}
	res := awaitRun(t, done)
	require.NoError(t, res.err)
	require.Equal(t, 1, res.state.CurrentStepIndex)
}

func TestRunTwiceWaitsOnFirstRun(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(0)
	e := newTestEngine(t, gw, []cadence.Step{cadence.Wait("a", 1)})
	first := runAsync(context.Background(), e)
	gw.awaitSleep(t, 0)

	second := runAsync(context.Background(), e)
	gw.release <- struct{}{}

	r1 := awaitRun(t, first)
	r2 := awaitRun(t, second)
	require.NoError(t, r1.err)
	require.NoError(t, r2.err)
	require.Equal(t, r1.state, r2.state)
	require.Len(t, gw.recordedSleeps(), 1)
}
