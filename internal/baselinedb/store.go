// Package baselinedb persists athlete baseline series: the historical
// per-metric measurements the Performance Analyzer scores new windows
// against. It implements the external historical-data store collaborator;
// the analytics core never imports this package and always receives
// baselines as plain slices.
package baselinedb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding baseline measurements and session
// records.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies any pending
// migrations. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open baseline db: %w", err)
	}
	// SQLite allows a single writer; serialise access through one
	// connection rather than surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// AppendMeasurements appends values for one athlete/metric series in
// input order, attributed to the given session.
func (s *Store) AppendMeasurements(athleteID, metric string, values []float64, sessionID uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("append measurements: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO baseline_measurements (athlete_id, metric, value, session_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("append measurements: %w", err)
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.Exec(athleteID, metric, v, sessionID.String()); err != nil {
			return fmt.Errorf("append measurements: %w", err)
		}
	}
	return tx.Commit()
}

// BaselineSeries returns the most recent limit measurements for the
// athlete/metric pair, oldest first (insertion order). limit <= 0 returns
// the full series.
func (s *Store) BaselineSeries(athleteID, metric string, limit int) ([]float64, error) {
	query := `SELECT value FROM baseline_measurements WHERE athlete_id = ? AND metric = ? ORDER BY id ASC`
	args := []interface{}{athleteID, metric}
	if limit > 0 {
		query = `SELECT value FROM (
			SELECT id, value FROM baseline_measurements
			WHERE athlete_id = ? AND metric = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("baseline series: %w", err)
	}
	defer rows.Close()

	var series []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("baseline series: %w", err)
		}
		series = append(series, v)
	}
	return series, rows.Err()
}

// SessionRecord summarises one recorded capture session.
type SessionRecord struct {
	SessionID  uuid.UUID
	AthleteID  string
	StartedAt  time.Time
	FrameCount int
}

// RecordSession stores (or replaces) a session summary.
func (s *Store) RecordSession(rec SessionRecord) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO sessions (session_id, athlete_id, started_at, frame_count) VALUES (?, ?, ?, ?)`,
		rec.SessionID.String(), rec.AthleteID, rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.FrameCount,
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// Sessions returns all recorded sessions for an athlete, oldest first.
func (s *Store) Sessions(athleteID string) ([]SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, athlete_id, started_at, frame_count FROM sessions WHERE athlete_id = ? ORDER BY started_at ASC`,
		athleteID,
	)
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var id, started string
		if err := rows.Scan(&id, &rec.AthleteID, &started, &rec.FrameCount); err != nil {
			return nil, fmt.Errorf("sessions: %w", err)
		}
		if rec.SessionID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("sessions: bad session_id %q: %w", id, err)
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("sessions: bad started_at %q: %w", started, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
