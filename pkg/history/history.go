// Package history persists completed runs to SQLite so learned time
// constants survive restarts and the API can serve past runs.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Register driver

	"thermoctl/pkg/model"
)

// Store wraps the sql.DB connection.
type Store struct {
	db *sql.DB
}

// Open opens the history database and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// WAL mode plus a busy timeout for concurrent readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Single connection avoids SQLITE_BUSY during concurrent writes
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at DATETIME,
			start_temp REAL,
			target REAL,
			mode TEXT,
			final_tau REAL,
			eta_model TEXT,
			samples INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}
	return nil
}

// Insert records a completed run. A missing ID gets a fresh UUID; the
// record's ID field is updated in place.
func (s *Store) Insert(rec *model.RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, start_temp, target, mode, final_tau, eta_model, samples)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StartedAt.UTC().Format(time.RFC3339), rec.StartTemp, rec.Target,
		string(rec.Mode), rec.FinalTau, rec.EtaModel, rec.Samples,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(n int) ([]model.RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, start_temp, target, mode, final_tau, eta_model, samples
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var recs []model.RunRecord
	for rows.Next() {
		var rec model.RunRecord
		var started, mode string
		if err := rows.Scan(&rec.ID, &started, &rec.StartTemp, &rec.Target, &mode, &rec.FinalTau, &rec.EtaModel, &rec.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.Mode = model.Mode(mode)
		if t, err := time.Parse(time.RFC3339, started); err == nil {
			rec.StartedAt = t
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// MedianTau returns the median learned time constant for the given run
// direction, in seconds. ok is false when no runs are recorded for it.
func (s *Store) MedianTau(mode model.Mode) (tau float64, ok bool, err error) {
	rows, err := s.db.Query(`SELECT final_tau FROM runs WHERE mode = ? AND final_tau > 0`, string(mode))
	if err != nil {
		return 0, false, fmt.Errorf("failed to query taus: %w", err)
	}
	defer rows.Close()

	var taus []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return 0, false, fmt.Errorf("failed to scan tau: %w", err)
		}
		taus = append(taus, v)
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}
	if len(taus) == 0 {
		return 0, false, nil
	}

	sort.Float64s(taus)
	mid := len(taus) / 2
	if len(taus)%2 == 1 {
		return taus[mid], true, nil
	}
	return (taus[mid-1] + taus[mid]) / 2, true, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
