// Package store is the durable event log backed by SQLite. Records are
// never deleted; removals clear is_valid. Every exported mutation runs in
// one transaction and reports which rows it touched.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS boluses (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp     INTEGER NOT NULL,
    amount        REAL NOT NULL,
    type          TEXT NOT NULL,
    temporary_id  INTEGER,
    pump_id       INTEGER,
    end_id        INTEGER,
    pump_type     TEXT NOT NULL,
    pump_serial   TEXT NOT NULL,
    is_valid      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_boluses_timestamp ON boluses(timestamp);
CREATE INDEX IF NOT EXISTS idx_boluses_temporary ON boluses(temporary_id);
CREATE INDEX IF NOT EXISTS idx_boluses_pump ON boluses(pump_id, pump_type, pump_serial);

CREATE TABLE IF NOT EXISTS carbs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp     INTEGER NOT NULL,
    amount        REAL NOT NULL,
    duration      INTEGER NOT NULL,
    temporary_id  INTEGER,
    pump_id       INTEGER,
    end_id        INTEGER,
    pump_type     TEXT NOT NULL,
    pump_serial   TEXT NOT NULL,
    is_valid      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_carbs_timestamp ON carbs(timestamp);

CREATE TABLE IF NOT EXISTS therapy_events (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp     INTEGER NOT NULL,
    type          TEXT NOT NULL,
    duration      INTEGER NOT NULL,
    note          TEXT NOT NULL,
    entered_by    TEXT NOT NULL,
    temporary_id  INTEGER,
    pump_id       INTEGER,
    end_id        INTEGER,
    pump_type     TEXT NOT NULL,
    pump_serial   TEXT NOT NULL,
    is_valid      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_therapy_events_timestamp ON therapy_events(timestamp, type);

CREATE TABLE IF NOT EXISTS temporary_basals (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp     INTEGER NOT NULL,
    duration      INTEGER NOT NULL,
    rate          REAL NOT NULL,
    is_absolute   INTEGER NOT NULL,
    type          TEXT NOT NULL,
    temporary_id  INTEGER,
    pump_id       INTEGER,
    end_id        INTEGER,
    pump_type     TEXT NOT NULL,
    pump_serial   TEXT NOT NULL,
    is_valid      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_temporary_basals_timestamp ON temporary_basals(timestamp);
CREATE INDEX IF NOT EXISTS idx_temporary_basals_temporary ON temporary_basals(temporary_id);
CREATE INDEX IF NOT EXISTS idx_temporary_basals_pump ON temporary_basals(pump_id, pump_type, pump_serial);

CREATE TABLE IF NOT EXISTS extended_boluses (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp               INTEGER NOT NULL,
    duration                INTEGER NOT NULL,
    amount                  REAL NOT NULL,
    is_emulating_temp_basal INTEGER NOT NULL,
    temporary_id            INTEGER,
    pump_id                 INTEGER,
    end_id                  INTEGER,
    pump_type               TEXT NOT NULL,
    pump_serial             TEXT NOT NULL,
    is_valid                INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_extended_boluses_timestamp ON extended_boluses(timestamp);
CREATE INDEX IF NOT EXISTS idx_extended_boluses_pump ON extended_boluses(pump_id, pump_type, pump_serial);

CREATE TABLE IF NOT EXISTS total_daily_doses (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp     INTEGER NOT NULL,
    bolus         REAL NOT NULL,
    basal         REAL NOT NULL,
    total         REAL NOT NULL,
    temporary_id  INTEGER,
    pump_id       INTEGER,
    end_id        INTEGER,
    pump_type     TEXT NOT NULL,
    pump_serial   TEXT NOT NULL,
    is_valid      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_total_daily_doses_timestamp ON total_daily_doses(timestamp);

CREATE TABLE IF NOT EXISTS user_entries (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp  INTEGER NOT NULL,
    action     TEXT NOT NULL,
    source     TEXT NOT NULL,
    note       TEXT NOT NULL,
    vals       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_entries_timestamp ON user_entries(timestamp);
`

// Result lists the row ids a transaction touched.
type Result struct {
	Inserted    []int64
	Updated     []int64
	Invalidated []int64
}

// Store is the SQLite event log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. Writers take the lock at
// BEGIN so concurrent read-modify-write transactions serialize.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("store: closed")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx, res *Result) error) (Result, error) {
	var res Result
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%s: begin transaction: %w", op, err)
	}
	defer tx.Rollback()

	if err := fn(tx, &res); err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return res, nil
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func ptrInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func lastID(r sql.Result) (int64, error) {
	id, err := r.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// notFound maps sql.ErrNoRows to a nil error and ok=false.
func notFound(err error) (bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
