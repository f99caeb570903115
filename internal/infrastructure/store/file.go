package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

var _ ports.SnapshotStore = (*FileStore)(nil)

const fileFormatVersion = "1.0"

// snapshotFile is the on-disk layout of a FileStore.
type snapshotFile struct {
	Version     string             `json:"version"`
	Enrollments []cadence.Snapshot `json:"enrollments"`
}

// FileStore persists all snapshots in a single JSON document. Writes go to a
// temporary file first and are renamed into place, so a crash never leaves a
// half-written file behind.
type FileStore struct {
	path        string
	mu          sync.RWMutex
	version     string
	enrollments map[string]cadence.Snapshot
}

// NewFileStore opens the store at path, creating the parent directory. A
// missing file starts an empty store.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:        path,
		version:     fileFormatVersion,
		enrollments: make(map[string]cadence.Snapshot),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, internalError("create store directory", "", err)
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return internalError("parse store file", "", fmt.Errorf("%s: %w", s.path, err))
	}

	if file.Version != "" {
		s.version = file.Version
	}
	for _, snapshot := range file.Enrollments {
		s.enrollments[snapshot.EnrollmentID] = snapshot
	}
	return nil
}

// flush must be called with mu held.
func (s *FileStore) flush() error {
	file := snapshotFile{
		Version:     s.version,
		Enrollments: make([]cadence.Snapshot, 0, len(s.enrollments)),
	}
	for _, snapshot := range s.enrollments {
		file.Enrollments = append(file.Enrollments, snapshot)
	}
	sortNewestFirst(file.Enrollments)

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return internalError("marshal store file", "", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return internalError("write temporary file", "", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return internalError("rename temporary file", "", err)
	}
	return nil
}

// Save replaces the snapshot and rewrites the file.
func (s *FileStore) Save(_ context.Context, snapshot cadence.Snapshot) error {
	if err := requireID(snapshot); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.enrollments[snapshot.EnrollmentID]
	s.enrollments[snapshot.EnrollmentID] = snapshot.Clone()
	if err := s.flush(); err != nil {
		if existed {
			s.enrollments[snapshot.EnrollmentID] = previous
		} else {
			delete(s.enrollments, snapshot.EnrollmentID)
		}
		return err
	}
	return nil
}

// Get returns the snapshot for an enrollment.
func (s *FileStore) Get(_ context.Context, enrollmentID string) (cadence.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.enrollments[enrollmentID]
	if !ok {
		return cadence.Snapshot{}, cadence.NewNotFoundError(enrollmentID)
	}
	return snapshot.Clone(), nil
}

// List returns every snapshot, newest first.
func (s *FileStore) List(_ context.Context) ([]cadence.Snapshot, error) {
	s.mu.RLock()
	out := make([]cadence.Snapshot, 0, len(s.enrollments))
	for _, snapshot := range s.enrollments {
		out = append(out, snapshot.Clone())
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

// Delete removes a snapshot and rewrites the file.
func (s *FileStore) Delete(_ context.Context, enrollmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, ok := s.enrollments[enrollmentID]
	if !ok {
		return cadence.NewNotFoundError(enrollmentID)
	}
	delete(s.enrollments, enrollmentID)
	if err := s.flush(); err != nil {
		s.enrollments[enrollmentID] = previous
		return err
	}
	return nil
}

// Close is a no-op; every write is already on disk.
func (s *FileStore) Close() error { return nil }

// Path returns the backing file location.
func (s *FileStore) Path() string { return s.path }
