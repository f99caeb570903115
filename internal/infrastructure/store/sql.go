package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

var _ ports.SnapshotStore = (*SQLStore)(nil)

// timeLayout has a fixed width so text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const createEnrollmentsTable = `CREATE TABLE IF NOT EXISTS cadence_enrollments (
	enrollment_id TEXT PRIMARY KEY,
	cadence_id    TEXT NOT NULL DEFAULT '',
	contact_email TEXT NOT NULL,
	status        TEXT NOT NULL,
	failed        BOOLEAN NOT NULL DEFAULT FALSE,
	snapshot      TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
)`

const createStatusIndex = `CREATE INDEX IF NOT EXISTS idx_cadence_enrollments_status
	ON cadence_enrollments (status, failed)`

const upsertEnrollment = `INSERT INTO cadence_enrollments
	(enrollment_id, cadence_id, contact_email, status, failed, snapshot, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (enrollment_id) DO UPDATE SET
		cadence_id = excluded.cadence_id,
		contact_email = excluded.contact_email,
		status = excluded.status,
		failed = excluded.failed,
		snapshot = excluded.snapshot,
		updated_at = excluded.updated_at`

// SQLStore persists snapshots in a single table through database/sql. The
// same statements serve SQLite and Postgres; only the placeholder style
// differs.
type SQLStore struct {
	db      *sql.DB
	driver  string
	ownsDB  bool
	rebound map[string]string
}

// OpenSQL opens a sqlite or postgres database, applies pool settings, pings it
// and creates the schema.
func OpenSQL(ctx context.Context, cfg Config) (*SQLStore, error) {
	driverName := "sqlite"
	if cfg.Driver == DriverPostgres {
		driverName = "pgx"
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, internalError("open database", "", err)
	}

	if cfg.Driver == DriverSQLite {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, internalError("ping database", "", err)
	}

	s := NewSQLStore(db, cfg.Driver)
	s.ownsDB = true
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an existing database handle. The caller owns db; Close
// will not close it.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	s := &SQLStore{db: db, driver: driver, rebound: make(map[string]string)}
	for _, q := range []string{upsertEnrollment, selectSnapshot, deleteEnrollment} {
		s.rebound[q] = rebind(driver, q)
	}
	return s
}

// Migrate creates the enrollments table and its index when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createEnrollmentsTable, createStatusIndex} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return internalError("migrate", "", err)
		}
	}
	return nil
}

// Save upserts the snapshot.
func (s *SQLStore) Save(ctx context.Context, snapshot cadence.Snapshot) error {
	if err := requireID(snapshot); err != nil {
		return err
	}
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	updatedAt := snapshot.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, s.rebound[upsertEnrollment],
		snapshot.EnrollmentID,
		snapshot.CadenceID,
		snapshot.ContactEmail,
		string(snapshot.State.Status),
		snapshot.Failed,
		string(data),
		formatTime(snapshot.CreatedAt),
		formatTime(updatedAt),
	)
	if err != nil {
		return internalError("save snapshot", snapshot.EnrollmentID, err)
	}
	return nil
}

const selectSnapshot = `SELECT snapshot FROM cadence_enrollments WHERE enrollment_id = ?`

// Get loads one snapshot.
func (s *SQLStore) Get(ctx context.Context, enrollmentID string) (cadence.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.rebound[selectSnapshot], enrollmentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return cadence.Snapshot{}, cadence.NewNotFoundError(enrollmentID)
	}
	if err != nil {
		return cadence.Snapshot{}, internalError("get snapshot", enrollmentID, err)
	}
	return decodeSnapshot(enrollmentID, []byte(data))
}

const listSnapshots = `SELECT enrollment_id, snapshot FROM cadence_enrollments
	ORDER BY created_at DESC, enrollment_id ASC`

// List returns every snapshot, newest first.
func (s *SQLStore) List(ctx context.Context) ([]cadence.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, listSnapshots)
	if err != nil {
		return nil, internalError("list snapshots", "", err)
	}
	defer rows.Close()

	out := []cadence.Snapshot{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, internalError("scan snapshot", "", err)
		}
		snapshot, err := decodeSnapshot(id, []byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, internalError("list snapshots", "", err)
	}
	return out, nil
}

const deleteEnrollment = `DELETE FROM cadence_enrollments WHERE enrollment_id = ?`

// Delete removes a snapshot.
func (s *SQLStore) Delete(ctx context.Context, enrollmentID string) error {
	res, err := s.db.ExecContext(ctx, s.rebound[deleteEnrollment], enrollmentID)
	if err != nil {
		return internalError("delete snapshot", enrollmentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return internalError("delete snapshot", enrollmentID, err)
	}
	if n == 0 {
		return cadence.NewNotFoundError(enrollmentID)
	}
	return nil
}

// Close releases the database when the store opened it.
func (s *SQLStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// rebind rewrites ? placeholders to $n for postgres.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
