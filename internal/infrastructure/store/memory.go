package store

import (
	"context"
	"sync"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

var _ ports.SnapshotStore = (*MemoryStore)(nil)

// MemoryStore keeps snapshots in process memory. Safe for concurrent access.
// Intended for tests and single-run CLI invocations.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]cadence.Snapshot
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]cadence.Snapshot)}
}

// Save stores a copy of the snapshot, replacing any previous one.
func (m *MemoryStore) Save(_ context.Context, snapshot cadence.Snapshot) error {
	if err := requireID(snapshot); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.EnrollmentID] = snapshot.Clone()
	return nil
}

// Get returns a copy of the stored snapshot.
func (m *MemoryStore) Get(_ context.Context, enrollmentID string) (cadence.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot, ok := m.snapshots[enrollmentID]
	if !ok {
		return cadence.Snapshot{}, cadence.NewNotFoundError(enrollmentID)
	}
	return snapshot.Clone(), nil
}

// List returns every snapshot, newest first.
func (m *MemoryStore) List(_ context.Context) ([]cadence.Snapshot, error) {
	m.mu.RLock()
	out := make([]cadence.Snapshot, 0, len(m.snapshots))
	for _, snapshot := range m.snapshots {
		out = append(out, snapshot.Clone())
	}
	m.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

// Delete removes a snapshot.
func (m *MemoryStore) Delete(_ context.Context, enrollmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[enrollmentID]; !ok {
		return cadence.NewNotFoundError(enrollmentID)
	}
	delete(m.snapshots, enrollmentID)
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }
