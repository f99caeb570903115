// Package store implements ports.SnapshotStore over the backends an operator
// can choose in configuration: process memory, a JSON file, SQLite, Postgres
// and Redis. Every backend stores whole snapshots; the engine's checkpoint
// ordering makes last-write-wins correct.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config selects and tunes a backend. DSN is a file path for the file and
// sqlite drivers, a connection URL for postgres and redis, and ignored for
// memory.
type Config struct {
	Driver          string
	DSN             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns an in-memory configuration with pool defaults that
// apply once a SQL driver is chosen.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverMemory,
		PingTimeout:     2 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Validate checks the driver name and pool bounds.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverFile, DriverSQLite, DriverPostgres, DriverRedis:
	default:
		return fmt.Errorf("unsupported store driver %q", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("store driver %q requires a dsn", c.Driver)
	}
	if c.PingTimeout <= 0 {
		return errors.New("store ping timeout must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("store max open conns must be >= 1")
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("store max idle conns must be between 0 and max open conns")
	}
	if c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 {
		return errors.New("store connection lifetimes must be >= 0")
	}
	return nil
}

// Open builds the backend described by cfg and verifies connectivity.
func Open(ctx context.Context, cfg Config, logger ports.Logger) (ports.SnapshotStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, cadence.NewError(cadence.ErrCodeValidation, "invalid store configuration", err, map[string]interface{}{
			"driver": cfg.Driver,
		})
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	logger = logger.With("component", "store", "driver", cfg.Driver)

	var (
		s   ports.SnapshotStore
		err error
	)
	switch cfg.Driver {
	case DriverMemory:
		s = NewMemoryStore()
	case DriverFile:
		s, err = NewFileStore(cfg.DSN)
	case DriverSQLite, DriverPostgres:
		s, err = OpenSQL(ctx, cfg)
	case DriverRedis:
		s, err = OpenRedis(ctx, cfg)
	}
	if err != nil {
		logger.Error(ctx, "failed to open snapshot store", "error", err)
		return nil, err
	}
	logger.Debug(ctx, "snapshot store opened")
	return s, nil
}

// Checkpointer adapts a store to the engine's checkpoint hook.
func Checkpointer(s ports.SnapshotStore) ports.Checkpointer {
	return ports.CheckpointFunc(func(ctx context.Context, snapshot cadence.Snapshot) error {
		return s.Save(ctx, snapshot)
	})
}

func encodeSnapshot(snapshot cadence.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, internalError("encode snapshot", snapshot.EnrollmentID, err)
	}
	return data, nil
}

func decodeSnapshot(id string, data []byte) (cadence.Snapshot, error) {
	var snapshot cadence.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return cadence.Snapshot{}, internalError("decode snapshot", id, err)
	}
	return snapshot, nil
}

func internalError(op, enrollmentID string, cause error) error {
	return cadence.NewError(cadence.ErrCodeInternal, "store: "+op+" failed", cause, map[string]interface{}{
		"enrollment_id": enrollmentID,
	})
}

func requireID(snapshot cadence.Snapshot) error {
	if snapshot.EnrollmentID == "" {
		return cadence.NewError(cadence.ErrCodeMissing, "missing required field", nil, map[string]interface{}{
			"field": "enrollment_id",
		})
	}
	return nil
}

// sortNewestFirst orders by creation time descending, breaking ties by id so
// listings are stable.
func sortNewestFirst(snapshots []cadence.Snapshot) {
	sort.SliceStable(snapshots, func(i, j int) bool {
		if !snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
		}
		return snapshots[i].EnrollmentID < snapshots[j].EnrollmentID
	})
}
