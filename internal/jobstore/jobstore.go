// Package jobstore tracks the lifecycle of ingestion jobs: identity, state,
// progress counters and failure details. Two backends are provided, an
// in-process map for single-run CLIs and tests, and a sqlite store so job
// history survives restarts.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eduetl/internal/config"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ErrNotFound is returned when a job id does not exist in the store.
var ErrNotFound = errors.New("jobstore: job not found")

// Job is one ingestion run. Counter fields only ever grow while the job is
// running; RecordsProcessed is always the sum of successful and failed.
type Job struct {
	ID     string `json:"job_id"`
	Name   string `json:"name"`
	Type   string `json:"job_type"`
	Status Status `json:"status"`

	// RecordsTotal is -1 when the source was not pre-counted.
	RecordsTotal      int64 `json:"records_total"`
	RecordsProcessed  int64 `json:"records_processed"`
	RecordsSuccessful int64 `json:"records_successful"`
	RecordsFailed     int64 `json:"records_failed"`

	ErrorMessage string   `json:"error_message,omitempty"`
	ErrorSamples []string `json:"error_samples,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Progress returns the completion percentage, or -1 while the total is
// unknown. Terminal jobs report 100 regardless of the total.
func (j *Job) Progress() float64 {
	if j.Status == StatusCompleted {
		return 100
	}
	if j.RecordsTotal < 0 {
		return -1
	}
	if j.RecordsTotal == 0 {
		return 0
	}
	p := float64(j.RecordsProcessed) / float64(j.RecordsTotal) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// NewJob builds a pending job with a fresh id.
func NewJob(name, jobType string, now time.Time) *Job {
	return &Job{
		ID:           uuid.NewString(),
		Name:         name,
		Type:         jobType,
		Status:       StatusPending,
		RecordsTotal: -1,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status Status
	Type   string
	Limit  int
}

// Store persists jobs. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Update(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, f Filter) ([]*Job, error)
	Close() error
}

// New builds a Store from config. An empty kind means memory.
func New(cfg config.Store) (Store, error) {
	switch cfg.Kind {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.DSN)
	}
	return nil, fmt.Errorf("jobstore: unknown store kind %q", cfg.Kind)
}
