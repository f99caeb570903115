// Package host owns the set of running enrollment engines. It starts engines
// idempotently, routes signals and queries by enrollment id, persists every
// engine snapshot to a SnapshotStore and resumes unfinished enrollments after
// a restart.
package host

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/engine"
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/store"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

// IDPrefix starts every generated enrollment id.
const IDPrefix = "enroll_"

// StartRequest describes a new enrollment. An empty EnrollmentID asks the
// host to generate one.
type StartRequest struct {
	EnrollmentID string
	CadenceID    string
	ContactEmail string
	Steps        []cadence.Step
}

// Handle refers to an enrollment returned by Start.
type Handle struct {
	ID string
	// Existing is true when Start found a running or stored enrollment with
	// the requested id instead of creating one.
	Existing bool

	eng *engine.Engine
}

// State returns the enrollment's current execution state.
func (h *Handle) State() cadence.ExecutionState { return h.eng.State() }

// Done is closed once the enrollment's loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.eng.Done() }

// Enrollment is the metadata view of one enrollment.
type Enrollment struct {
	ID           string                 `json:"id"`
	CadenceID    string                 `json:"cadenceId,omitempty"`
	ContactEmail string                 `json:"contactEmail"`
	State        cadence.ExecutionState `json:"state"`
	Running      bool                   `json:"running"`
	Failed       bool                   `json:"failed,omitempty"`
	LastError    string                 `json:"lastError,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Option customises a Host.
type Option func(*Host)

// WithLogger sets the host logger; it is also handed to every engine.
func WithLogger(logger ports.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithEvents sets the publisher handed to every engine.
func WithEvents(events ports.EventPublisher) Option {
	return func(h *Host) { h.events = events }
}

// WithEngineOptions appends options applied to every engine the host builds.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(h *Host) { h.engineOpts = append(h.engineOpts, opts...) }
}

// WithIDGenerator replaces the enrollment id generator.
func WithIDGenerator(gen func() string) Option {
	return func(h *Host) {
		if gen != nil {
			h.newID = gen
		}
	}
}

// Host is the registry of enrollment engines. It is an explicit value owned
// by the caller; there is no process-wide state.
type Host struct {
	store      ports.SnapshotStore
	gateway    ports.ActivityGateway
	logger     ports.Logger
	events     ports.EventPublisher
	engineOpts []engine.Option
	newID      func() string

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	engines map[string]*engine.Engine
	closed  bool
}

// New builds a host over a snapshot store and an activity gateway.
func New(snapshots ports.SnapshotStore, gateway ports.ActivityGateway, opts ...Option) *Host {
	runCtx, cancel := context.WithCancel(context.Background())
	h := &Host{
		store:   snapshots,
		gateway: gateway,
		logger:  logging.NewNoOpLogger(),
		newID:   func() string { return IDPrefix + uuid.NewString() },
		runCtx:  runCtx,
		cancel:  cancel,
		engines: make(map[string]*engine.Engine),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "host")
	return h
}

// Start creates and launches an enrollment. Starting an id that is already
// running or stored returns the existing enrollment instead.
func (h *Host) Start(ctx context.Context, req StartRequest) (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, cadence.NewStateError("host is shut down", nil)
	}

	id := req.EnrollmentID
	if id == "" {
		id = h.newID()
	}

	if eng, ok := h.engines[id]; ok {
		h.logger.Debug(ctx, "enrollment already running", "enrollment_id", id)
		return &Handle{ID: id, Existing: true, eng: eng}, nil
	}

	stored, err := h.store.Get(ctx, id)
	switch {
	case err == nil:
		eng, err := h.restoreLocked(ctx, stored)
		if err != nil {
			return nil, err
		}
		h.logger.Info(ctx, "enrollment loaded from store", "enrollment_id", id, "resumable", stored.Resumable())
		return &Handle{ID: id, Existing: true, eng: eng}, nil
	case !cadence.IsNotFound(err):
		return nil, err
	}

	eng, err := engine.New(engine.Config{
		EnrollmentID: id,
		CadenceID:    req.CadenceID,
		ContactEmail: req.ContactEmail,
		Steps:        req.Steps,
	}, h.gateway, h.options()...)
	if err != nil {
		return nil, err
	}
	if err := h.store.Save(ctx, eng.Snapshot()); err != nil {
		return nil, err
	}

	h.engines[id] = eng
	h.launch(ctx, eng)
	h.logger.Info(ctx, "enrollment started", "enrollment_id", id, "cadence_id", req.CadenceID, "step_count", len(req.Steps))
	return &Handle{ID: id, eng: eng}, nil
}

// Signal hands a replacement step list to a running enrollment. It does not
// wait for any step to finish.
func (h *Host) Signal(ctx context.Context, id string, steps []cadence.Step) error {
	h.mu.Lock()
	eng, ok := h.engines[id]
	h.mu.Unlock()
	if ok {
		return eng.UpdateSteps(ctx, steps)
	}

	snap, err := h.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if snap.State.IsCompleted() {
		return cadence.NewStateError("cannot update a completed enrollment", map[string]interface{}{"enrollment_id": id})
	}
	return cadence.NewStateError("enrollment is not running; resume it first", map[string]interface{}{"enrollment_id": id})
}

// Query returns the enrollment's current state, from the live engine when
// one exists and from the store otherwise.
func (h *Host) Query(ctx context.Context, id string) (cadence.ExecutionState, error) {
	h.mu.Lock()
	eng, ok := h.engines[id]
	h.mu.Unlock()
	if ok {
		return eng.State(), nil
	}

	snap, err := h.store.Get(ctx, id)
	if err != nil {
		return cadence.ExecutionState{}, err
	}
	return snap.State, nil
}

// Enrollment returns metadata and state for one enrollment.
func (h *Host) Enrollment(ctx context.Context, id string) (Enrollment, error) {
	h.mu.Lock()
	eng, ok := h.engines[id]
	h.mu.Unlock()
	if ok {
		return view(eng.Snapshot(), isRunning(eng)), nil
	}

	snap, err := h.store.Get(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	return view(snap, false), nil
}

// List returns every known enrollment, newest first. Live engines take
// precedence over their stored snapshots.
func (h *Host) List(ctx context.Context) ([]Enrollment, error) {
	stored, err := h.store.List(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Enrollment, len(stored))
	for _, snap := range stored {
		byID[snap.EnrollmentID] = view(snap, false)
	}

	h.mu.Lock()
	for id, eng := range h.engines {
		byID[id] = view(eng.Snapshot(), isRunning(eng))
	}
	h.mu.Unlock()

	out := make([]Enrollment, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

// Await blocks until the enrollment's loop exits or ctx ends. Enrollments
// that are not running return their stored state immediately.
func (h *Host) Await(ctx context.Context, id string) (cadence.ExecutionState, error) {
	h.mu.Lock()
	eng, ok := h.engines[id]
	h.mu.Unlock()
	if ok {
		return eng.Wait(ctx)
	}

	snap, err := h.store.Get(ctx, id)
	if err != nil {
		return cadence.ExecutionState{}, err
	}
	return snap.State, nil
}

// Recover resumes every stored enrollment that is neither completed nor
// failed and not already running. It returns how many were resumed.
func (h *Host) Recover(ctx context.Context) (int, error) {
	snapshots, err := h.store.List(ctx)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, cadence.NewStateError("host is shut down", nil)
	}

	resumed := 0
	for _, snap := range snapshots {
		if !snap.Resumable() {
			continue
		}
		if _, ok := h.engines[snap.EnrollmentID]; ok {
			continue
		}
		if _, err := h.restoreLocked(ctx, snap); err != nil {
			h.logger.Error(ctx, "failed to resume enrollment", "enrollment_id", snap.EnrollmentID, "error", err)
			continue
		}
		resumed++
	}
	h.logger.Info(ctx, "recovery finished", "resumed", resumed, "stored", len(snapshots))
	return resumed, nil
}

// Shutdown interrupts every loop and waits for them to exit or ctx to end.
// Interrupted enrollments keep their persisted suspension and can be resumed
// by a later Recover.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.logger.Debug(ctx, "host stopped")
		return nil
	case <-ctx.Done():
		return cadence.NewError(cadence.ErrCodeTimeout, "timed out waiting for enrollments to stop", ctx.Err(), nil)
	}
}

// restoreLocked rebuilds an engine from a snapshot, registering and launching
// it when the snapshot is resumable. Must be called with mu held.
func (h *Host) restoreLocked(ctx context.Context, snap cadence.Snapshot) (*engine.Engine, error) {
	eng, err := engine.Restore(snap, h.gateway, h.options()...)
	if err != nil {
		return nil, err
	}
	if !snap.Resumable() {
		return eng, nil
	}
	h.engines[snap.EnrollmentID] = eng
	h.launch(ctx, eng)
	return eng, nil
}

func (h *Host) options() []engine.Option {
	opts := []engine.Option{
		engine.WithLogger(h.logger),
		engine.WithEvents(h.events),
		engine.WithCheckpointer(store.Checkpointer(h.store)),
	}
	return append(opts, h.engineOpts...)
}

// launch runs the engine on the host's lifetime context, carrying over the
// caller's correlation id. The engine is unregistered once its loop exits.
func (h *Host) launch(ctx context.Context, eng *engine.Engine) {
	runCtx := h.runCtx
	if id := ports.GetCorrelationID(ctx); id != "" {
		runCtx = ports.WithCorrelationID(runCtx, id)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.forget(eng)
		if _, err := eng.Run(runCtx); err != nil {
			if cadence.CodeOf(err) == cadence.ErrCodeCancelled {
				h.logger.Info(runCtx, "enrollment interrupted", "enrollment_id", eng.ID())
				return
			}
			h.logger.Error(runCtx, "enrollment stopped with error", "enrollment_id", eng.ID(), "error", err)
		}
	}()
}

// forget drops an exited engine from the registry. Its terminal snapshot is
// already in the store, which every lookup falls back to.
func (h *Host) forget(eng *engine.Engine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engines[eng.ID()] == eng {
		delete(h.engines, eng.ID())
	}
}

func view(snap cadence.Snapshot, running bool) Enrollment {
	return Enrollment{
		ID:           snap.EnrollmentID,
		CadenceID:    snap.CadenceID,
		ContactEmail: snap.ContactEmail,
		State:        snap.State,
		Running:      running,
		Failed:       snap.Failed,
		LastError:    snap.LastError,
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
	}
}

func isRunning(eng *engine.Engine) bool {
	select {
	case <-eng.Done():
		return false
	default:
		return true
	}
}
