package schedule

import (
	"context"
	"database/sql"
	"time"
)

const timeLayout = "2006-01-02 15:04:05.000000000"

// JobRun is the persisted state of one named job.
type JobRun struct {
	Name      string
	Schedule  string
	NextRun   time.Time
	LastRun   *time.Time
	LastError string
	Runs      int
}

// Store keeps job run history next to the rest of the data.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS job_runs (
    name TEXT PRIMARY KEY,
    schedule TEXT NOT NULL,
    next_run TEXT NOT NULL,
    last_run TEXT,
    last_error TEXT NOT NULL DEFAULT '',
    runs INTEGER NOT NULL DEFAULT 0
);
`

// NewStore creates the job store using the provided database connection
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the state of a job, or nil if it never ran or was scheduled.
func (s *Store) Get(ctx context.Context, name string) (*JobRun, error) {
	var j JobRun
	var nextRun string
	var lastRun sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT name, schedule, next_run, last_run, last_error, runs
		FROM job_runs WHERE name = ?`, name).
		Scan(&j.Name, &j.Schedule, &nextRun, &lastRun, &j.LastError, &j.Runs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.NextRun = parseTime(nextRun)
	if lastRun.Valid {
		t := parseTime(lastRun.String)
		j.LastRun = &t
	}

	return &j, nil
}

// SetNextRun stores when a job fires next without touching its history.
func (s *Store) SetNextRun(ctx context.Context, name, schedule string, next time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (name, schedule, next_run) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET schedule = excluded.schedule, next_run = excluded.next_run`,
		name, schedule, formatTime(next))
	return err
}

// RecordRun stores the outcome of one run and the next fire time.
func (s *Store) RecordRun(ctx context.Context, name, schedule string, ranAt, next time.Time, runErr error) error {
	lastError := ""
	if runErr != nil {
		lastError = runErr.Error()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (name, schedule, next_run, last_run, last_error, runs)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(name) DO UPDATE SET
		    schedule = excluded.schedule,
		    next_run = excluded.next_run,
		    last_run = excluded.last_run,
		    last_error = excluded.last_error,
		    runs = runs + 1`,
		name, schedule, formatTime(next), formatTime(ranAt), lastError)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
