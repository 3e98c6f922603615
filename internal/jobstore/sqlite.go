package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const jobsDDL = `
CREATE TABLE IF NOT EXISTS etl_jobs (
    job_id             TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    job_type           TEXT NOT NULL,
    status             TEXT NOT NULL,
    records_total      INTEGER NOT NULL,
    records_processed  INTEGER NOT NULL,
    records_successful INTEGER NOT NULL,
    records_failed     INTEGER NOT NULL,
    error_message      TEXT NOT NULL DEFAULT '',
    error_samples      TEXT NOT NULL DEFAULT '[]',
    start_time         TEXT,
    end_time           TEXT,
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_etl_jobs_status ON etl_jobs (status);
CREATE INDEX IF NOT EXISTS idx_etl_jobs_type ON etl_jobs (job_type);`

// SQLite persists jobs in a local sqlite database so status queries and job
// history work across process restarts.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the job database at dsn.
func NewSQLite(dsn string) (*SQLite, error) {
	if dsn == "" {
		return nil, fmt.Errorf("jobstore: sqlite store requires a dsn")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("jobstore: open %q: %w", dsn, err)
	}
	// sqlite handles one writer at a time; a second conn just queues errors.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(jobsDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore: ensure schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func timePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func timeStr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *SQLite) Create(ctx context.Context, j *Job) error {
	samples, err := json.Marshal(j.ErrorSamples)
	if err != nil {
		return fmt.Errorf("jobstore: encode samples: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO etl_jobs (
    job_id, name, job_type, status,
    records_total, records_processed, records_successful, records_failed,
    error_message, error_samples, start_time, end_time, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Name, j.Type, string(j.Status),
		j.RecordsTotal, j.RecordsProcessed, j.RecordsSuccessful, j.RecordsFailed,
		j.ErrorMessage, string(samples), timeStr(j.StartTime), timeStr(j.EndTime),
		j.CreatedAt.UTC().Format(time.RFC3339Nano), j.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("jobstore: insert job %s: %w", j.ID, err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, j *Job) error {
	samples, err := json.Marshal(j.ErrorSamples)
	if err != nil {
		return fmt.Errorf("jobstore: encode samples: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE etl_jobs SET
    name = ?, job_type = ?, status = ?,
    records_total = ?, records_processed = ?, records_successful = ?, records_failed = ?,
    error_message = ?, error_samples = ?, start_time = ?, end_time = ?, updated_at = ?
WHERE job_id = ?`,
		j.Name, j.Type, string(j.Status),
		j.RecordsTotal, j.RecordsProcessed, j.RecordsSuccessful, j.RecordsFailed,
		j.ErrorMessage, string(samples), timeStr(j.StartTime), timeStr(j.EndTime),
		j.UpdatedAt.UTC().Format(time.RFC3339Nano), j.ID)
	if err != nil {
		return fmt.Errorf("jobstore: update job %s: %w", j.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const jobCols = `job_id, name, job_type, status,
    records_total, records_processed, records_successful, records_failed,
    error_message, error_samples, start_time, end_time, created_at, updated_at`

func scanJob(scan func(dest ...any) error) (*Job, error) {
	var (
		j          Job
		status     string
		samples    string
		start, end sql.NullString
		created    string
		updated    string
	)
	err := scan(
		&j.ID, &j.Name, &j.Type, &status,
		&j.RecordsTotal, &j.RecordsProcessed, &j.RecordsSuccessful, &j.RecordsFailed,
		&j.ErrorMessage, &samples, &start, &end, &created, &updated)
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	if samples != "" {
		if err := json.Unmarshal([]byte(samples), &j.ErrorSamples); err != nil {
			return nil, fmt.Errorf("jobstore: decode samples for %s: %w", j.ID, err)
		}
	}
	if j.StartTime, err = timePtr(start); err != nil {
		return nil, fmt.Errorf("jobstore: job %s start_time: %w", j.ID, err)
	}
	if j.EndTime, err = timePtr(end); err != nil {
		return nil, fmt.Errorf("jobstore: job %s end_time: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("jobstore: job %s created_at: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("jobstore: job %s updated_at: %w", j.ID, err)
	}
	return &j, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM etl_jobs WHERE job_id = ?`, id)
	j, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: get job %s: %w", id, err)
	}
	return j, nil
}

func (s *SQLite) List(ctx context.Context, f Filter) ([]*Job, error) {
	q := `SELECT ` + jobCols + ` FROM etl_jobs WHERE 1=1`
	var args []any
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		q += ` AND job_type = ?`
		args = append(args, f.Type)
	}
	q += ` ORDER BY created_at DESC, job_id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("jobstore: list jobs: %w", err)
	}
	defer rows.Close()
	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("jobstore: list jobs: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobstore: list jobs: %w", err)
	}
	return out, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
