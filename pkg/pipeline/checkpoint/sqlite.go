package checkpoint

import (
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite" // registers the sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	checkpoint_id TEXT PRIMARY KEY,
	run_tag       TEXT NOT NULL,
	stage_label   TEXT NOT NULL,
	snapshot      BLOB,
	recoverable   INTEGER NOT NULL DEFAULT 1,
	closed        INTEGER NOT NULL DEFAULT 0,
	debug_score   REAL,
	created_at    INTEGER NOT NULL,
	UNIQUE (run_tag, stage_label)
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_tag ON checkpoints (run_tag);
`

const (
	busyRetries = 5
	busyBackoff = 20 * time.Millisecond
)

// SQLiteBackend stores records in a SQLite database, one row per (tag, label).
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		_, err := db.Exec(pragma)
		if err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "unable to apply %q", pragma)
		}
	}

	backend, err := NewSQLiteBackend(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return backend, nil
}

// NewSQLiteBackend wraps an open database and applies the schema.
func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	_, err := db.Exec(schema)
	if err != nil {
		return nil, errors.Wrap(err, "unable to apply checkpoint schema")
	}

	return &SQLiteBackend{db: db}, nil
}

// Close closes the database.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) Load(tag, label string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT checkpoint_id, run_tag, stage_label, snapshot, recoverable, closed, debug_score, created_at
		FROM checkpoints WHERE run_tag = ? AND stage_label = ?`, tag, label)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "unable to load checkpoint")
	}

	return rec, nil
}

func (s *SQLiteBackend) Save(rec *Record) error {
	var debug sql.NullFloat64
	if rec.DebugScore != nil {
		debug = sql.NullFloat64{Float64: *rec.DebugScore, Valid: true}
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO checkpoints (
				checkpoint_id, run_tag, stage_label, snapshot, recoverable, closed, debug_score, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_tag, stage_label) DO UPDATE SET
				checkpoint_id = excluded.checkpoint_id,
				snapshot      = excluded.snapshot,
				recoverable   = excluded.recoverable,
				closed        = excluded.closed,
				debug_score   = excluded.debug_score,
				created_at    = excluded.created_at`,
			rec.ID, rec.Tag, rec.Label, rec.Snapshot, rec.Recoverable, rec.Closed, debug, rec.CreatedAt.UnixNano(),
		)
		return errors.Wrap(err, "unable to save checkpoint")
	})
}

func (s *SQLiteBackend) Delete(tag, label string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM checkpoints WHERE run_tag = ? AND stage_label = ?`, tag, label)
		if err != nil {
			return errors.Wrap(err, "unable to delete checkpoint")
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "rows affected")
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteBackend) List(tag string) ([]*Record, error) {
	rows, err := s.db.Query(`
		SELECT checkpoint_id, run_tag, stage_label, snapshot, recoverable, closed, debug_score, created_at
		FROM checkpoints WHERE run_tag = ? ORDER BY created_at ASC, stage_label ASC`, tag)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list checkpoints")
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan checkpoint")
		}
		out = append(out, rec)
	}

	return out, errors.Wrap(rows.Err(), "unable to iterate checkpoints")
}

func (s *SQLiteBackend) Clear(tag string) error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`DELETE FROM checkpoints WHERE run_tag = ?`, tag)
		return errors.Wrap(err, "unable to clear checkpoints")
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec       Record
		debug     sql.NullFloat64
		createdAt int64
	)
	err := row.Scan(&rec.ID, &rec.Tag, &rec.Label, &rec.Snapshot, &rec.Recoverable, &rec.Closed, &debug, &createdAt)
	if err != nil {
		return nil, err
	}
	if debug.Valid {
		score := debug.Float64
		rec.DebugScore = &score
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()

	return &rec, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy retries fn while the database reports lock contention.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := range busyRetries {
		err = fn()
		if !isSQLiteBusy(err) {
			return err
		}
		time.Sleep(busyBackoff * time.Duration(attempt+1))
	}

	return err
}

var _ Backend = (*SQLiteBackend)(nil)
