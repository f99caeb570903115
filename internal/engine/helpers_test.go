package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

type sentEmail struct {
	to, subject, body string
}

// fakeGateway records every activity call. Sleep calls listed in hold block
// until release receives a value or ctx ends; the others return immediately.
type fakeGateway struct {
	mu      sync.Mutex
	emails  []sentEmail
	waits   []int
	sleeps  []time.Duration
	sendErr error
	hold    map[int]bool
	calls   int

	entered chan int
	release chan struct{}
}

func newFakeGateway(hold ...int) *fakeGateway {
	g := &fakeGateway{
		hold:    make(map[int]bool),
		entered: make(chan int, 16),
		release: make(chan struct{}),
	}
	for _, n := range hold {
		g.hold[n] = true
	}
	return g
}

func (g *fakeGateway) SendEmail(ctx context.Context, to, subject, body string) (ports.EmailResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return ports.EmailResult{}, g.sendErr
	}
	g.emails = append(g.emails, sentEmail{to: to, subject: subject, body: body})
	return ports.EmailResult{Success: true, MessageID: "mock-message-id", Timestamp: time.Now()}, nil
}

func (g *fakeGateway) SleepFor(ctx context.Context, d time.Duration) error {
	g.mu.Lock()
	n := g.calls
	g.calls++
	g.sleeps = append(g.sleeps, d)
	block := g.hold[n]
	g.mu.Unlock()

	if !block {
		return ctx.Err()
	}
	g.entered <- n
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGateway) RecordWait(ctx context.Context, seconds int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waits = append(g.waits, seconds)
}

func (g *fakeGateway) sentEmails() []sentEmail {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentEmail(nil), g.emails...)
}

func (g *fakeGateway) recordedSleeps() []time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]time.Duration(nil), g.sleeps...)
}

func (g *fakeGateway) awaitSleep(t *testing.T, call int) {
	t.Helper()
	select {
	case n := <-g.entered:
		require.Equal(t, call, n, "unexpected blocking sleep call")
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for sleep call %d", call)
	}
}

// fakeClock advances by one millisecond on every read so timestamps are
// strictly increasing without real waiting.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingCheckpointer struct {
	mu        sync.Mutex
	snapshots []cadence.Snapshot
	err       error
}

func (r *recordingCheckpointer) Checkpoint(ctx context.Context, snap cadence.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap.Clone())
	return r.err
}

func (r *recordingCheckpointer) last() cadence.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[len(r.snapshots)-1]
}

func (r *recordingCheckpointer) all() []cadence.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cadence.Snapshot(nil), r.snapshots...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingPublisher) Publish(ctx context.Context, event ports.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.EventType())
	return nil
}

func (r *recordingPublisher) Subscribe(string, ports.EventHandler) (ports.Subscription, error) {
	return nil, nil
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type runResult struct {
	state cadence.ExecutionState
	err   error
}

func runAsync(ctx context.Context, e *Engine) <-chan runResult {
	out := make(chan runResult, 1)
	go func() {
		state, err := e.Run(ctx)
		out <- runResult{state: state, err: err}
	}()
	return out
}

func awaitRun(t *testing.T, ch <-chan runResult) runResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for engine to finish")
		return runResult{}
	}
}

func newTestEngine(t *testing.T, gw *fakeGateway, steps []cadence.Step, opts ...Option) *Engine {
	t.Helper()
	base := []Option{WithSettleDelay(10 * time.Millisecond)}
	e, err := New(Config{EnrollmentID: "enroll_test", ContactEmail: "a@example.com", Steps: steps}, gw, append(base, opts...)...)
	require.NoError(t, err)
	return e
}
