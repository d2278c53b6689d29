// Package results persists suspect-dwell findings from the standing
// search so reruns can skip or diff previously flagged observations.
package results

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sot/kalman-watch/core"
)

// SuspectRun is one flagged anomaly run within a dwell.
type SuspectRun struct {
	ObsID     int
	Start     time.Time
	Stop      time.Time
	Samples   int
	CreatedAt time.Time
}

// Store records suspect dwells in a SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS suspect_runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	obsid      INTEGER NOT NULL,
	run_start  REAL NOT NULL,
	run_stop   REAL NOT NULL,
	samples    INTEGER NOT NULL,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_suspect_runs_obsid ON suspect_runs(obsid);
`

// Open opens (and if necessary initialises) the database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts one flagged anomaly run for an obsid.
func (s *Store) RecordRun(obsid int, run core.AnomalyRun) error {
	_, err := s.db.Exec(`
		INSERT INTO suspect_runs (obsid, run_start, run_stop, samples, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, obsid, unix(run.Start), unix(run.Stop), run.Samples(), unix(time.Now()))
	if err != nil {
		return fmt.Errorf("insert suspect run: %w", err)
	}
	return nil
}

// RunsForObsID returns all recorded runs for an observation, oldest
// first.
func (s *Store) RunsForObsID(obsid int) ([]SuspectRun, error) {
	rows, err := s.db.Query(`
		SELECT obsid, run_start, run_stop, samples, created_at
		FROM suspect_runs
		WHERE obsid = ?
		ORDER BY run_start ASC
	`, obsid)
	if err != nil {
		return nil, fmt.Errorf("query suspect runs: %w", err)
	}
	defer rows.Close()

	var runs []SuspectRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SuspectObsIDs returns the distinct flagged observation IDs,
// ascending.
func (s *Store) SuspectObsIDs() ([]int, error) {
	rows, err := s.db.Query(`SELECT DISTINCT obsid FROM suspect_runs ORDER BY obsid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query suspect obsids: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan obsid: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanRun(rows *sql.Rows) (SuspectRun, error) {
	var run SuspectRun
	var start, stop, created float64
	if err := rows.Scan(&run.ObsID, &start, &stop, &run.Samples, &created); err != nil {
		return SuspectRun{}, fmt.Errorf("scan suspect run: %w", err)
	}
	run.Start = timeFromUnix(start)
	run.Stop = timeFromUnix(stop)
	run.CreatedAt = timeFromUnix(created)
	return run, nil
}

func unix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func timeFromUnix(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second))).UTC()
}
