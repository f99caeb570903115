package ports

import (
	"context"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
)

// Checkpointer receives every snapshot an engine produces, in mutation order.
type Checkpointer interface {
	Checkpoint(ctx context.Context, snapshot cadence.Snapshot) error
}

// CheckpointFunc adapts a function to the Checkpointer interface.
type CheckpointFunc func(ctx context.Context, snapshot cadence.Snapshot) error

// Checkpoint implements Checkpointer.
func (f CheckpointFunc) Checkpoint(ctx context.Context, snapshot cadence.Snapshot) error {
	return f(ctx, snapshot)
}

// SnapshotStore persists enrollment snapshots so a host can resume engines
// after a restart. Implementations must be safe for concurrent use. Error
// mapping rules:
//   - missing enrollment → cadence.ErrCodeNotFound
//   - I/O or driver failures → cadence.ErrCodeInternal with wrapped cause
type SnapshotStore interface {
	Save(ctx context.Context, snapshot cadence.Snapshot) error
	Get(ctx context.Context, enrollmentID string) (cadence.Snapshot, error)
	List(ctx context.Context) ([]cadence.Snapshot, error)
	Delete(ctx context.Context, enrollmentID string) error
	Close() error
}
