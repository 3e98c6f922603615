package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"eduetl/internal/config"
	"eduetl/internal/jobstore"
	"eduetl/internal/rules"
	"eduetl/internal/schema"
	"eduetl/internal/source"
	"eduetl/internal/transform"
	"eduetl/internal/warehouse"
)

var (
	// ErrInvalidInput wraps submission problems the caller can fix.
	ErrInvalidInput = errors.New("invalid input")
	// ErrJobTerminal is returned when cancelling a job that already finished.
	ErrJobTerminal = errors.New("job already in a terminal state")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("service closed")
)

// RepositoryFactory opens a warehouse for one job run. The service closes
// the returned repository when the run ends.
type RepositoryFactory func(ctx context.Context, cfg config.JobConfig) (warehouse.Repository, error)

// Options configures a Service. Zero values get defaults.
type Options struct {
	Store      jobstore.Store
	Logger     Logger
	MaxWorkers int

	// NewRepository overrides warehouse construction, mainly for tests.
	NewRepository RepositoryFactory
}

// Service owns the job lifecycle: it accepts submissions, runs them on a
// bounded worker pool, and exposes status, cancellation and listing over
// the job store.
type Service struct {
	store   jobstore.Store
	logger  Logger
	newRepo RepositoryFactory

	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
}

// NewService builds a Service. opts.Store is required.
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline: job store is required")
	}
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = config.DefaultMaxWorkers
	}
	newRepo := opts.NewRepository
	if newRepo == nil {
		newRepo = func(ctx context.Context, cfg config.JobConfig) (warehouse.Repository, error) {
			return warehouse.New(ctx, warehouse.Config{
				Kind:        cfg.Storage.Kind,
				DSN:         cfg.Storage.DSN,
				DedupeFacts: cfg.Runtime.DedupeFacts == "natural_key",
			})
		}
	}
	return &Service{
		store:   opts.Store,
		logger:  opts.Logger,
		newRepo: newRepo,
		sem:     make(chan struct{}, workers),
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// Submit validates cfg, registers a pending job and schedules it. Validation
// failures and unreadable sources are rejected synchronously; everything
// after that is reported through the job record.
func (s *Service) Submit(ctx context.Context, cfg config.JobConfig) (*jobstore.Job, error) {
	if issues := config.ValidateJobConfig(cfg); config.HasError(issues) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, joinIssues(issues))
	}
	ruleSet, err := rules.ForDataType(config.DataType(cfg.JobType), cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := source.New(cfg.Source, cfg.Parser, ruleSet.Columns()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	job := jobstore.NewJob(cfg.Job, cfg.JobType, time.Now())
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	s.cancels[job.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	// Snapshot before the worker goroutine starts mutating the record.
	snap := cloneJob(job)
	go s.runJob(runCtx, cfg, job)

	return snap, nil
}

func (s *Service) runJob(ctx context.Context, cfg config.JobConfig, job *jobstore.Job) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if cancel := s.cancels[job.ID]; cancel != nil {
			cancel()
		}
		delete(s.cancels, job.ID)
		s.mu.Unlock()
	}()

	// Queued jobs stay pending until a worker slot frees up.
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		o := &Orchestrator{Store: s.store, Logger: s.logger}
		_ = o.cancelled(job)
		return
	}

	repo, err := s.newRepo(ctx, cfg)
	o := &Orchestrator{Store: s.store, Repo: repo, Logger: s.logger}
	if err != nil {
		_ = o.fail(ctx, job, fmt.Errorf("open warehouse: %w", err))
		return
	}
	defer repo.Close()

	_ = o.Run(ctx, cfg, job)
}

// Status returns the job's current record.
func (s *Service) Status(ctx context.Context, id string) (*jobstore.Job, error) {
	return s.store.Get(ctx, id)
}

// List returns jobs matching the filter, newest first.
func (s *Service) List(ctx context.Context, f jobstore.Filter) ([]*jobstore.Job, error) {
	return s.store.List(ctx, f)
}

// Cancel requests cancellation of a pending or running job. The job moves
// to cancelled at its next batch boundary; already-committed batches stay.
func (s *Service) Cancel(ctx context.Context, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, id, job.Status)
	}
	s.mu.Lock()
	cancel := s.cancels[id]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Close stops accepting submissions and waits for in-flight jobs.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	return s.store.Close()
}

// ValidationReport summarizes a dry run over a source: every row is parsed,
// coerced and validated, but nothing touches the warehouse.
type ValidationReport struct {
	JobType        string   `json:"job_type"`
	RecordsChecked int64    `json:"records_checked"`
	RecordsValid   int64    `json:"records_valid"`
	RecordsFailed  int64    `json:"records_failed"`
	ErrorSamples   []string `json:"error_samples,omitempty"`
}

// ValidateOnly streams the configured source through the rule set without
// writing anything.
func (s *Service) ValidateOnly(ctx context.Context, cfg config.JobConfig) (*ValidationReport, error) {
	// Dry runs never touch the warehouse, so storage config is not required.
	issues := withoutStorageIssues(config.ValidateJobConfig(cfg))
	if config.HasError(issues) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, joinIssues(issues))
	}
	dataType := config.DataType(cfg.JobType)
	ruleSet, err := rules.ForDataType(dataType, cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	src, err := source.New(cfg.Source, cfg.Parser, ruleSet.Columns())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	report := &ValidationReport{JobType: cfg.JobType}
	limit := cfg.Runtime.ErrorSampleLimitOrDefault()
	failures := &rowFailures{limit: limit}

	stream, err := src.Open(ctx, cfg.Runtime.ChannelBuffer, func(line int, err error) {
		failures.add(line, err.Error())
	})
	if err != nil {
		return nil, err
	}

	fields := schema.Fields(dataType)
	layout := cfg.Parser.Options.String("date_layout", "")
	seen := rules.NewSeen()
	for r := range stream.Rows {
		if ctx.Err() != nil {
			r.Drop()
			continue
		}
		transform.CoerceRow(fields, r, layout)
		if errs := ruleSet.Evaluate(r, seen); len(errs) > 0 {
			failures.add(r.Line, joinFieldErrors(errs))
		} else {
			report.RecordsValid++
		}
		r.Free()
	}
	if err := stream.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, samples := failures.drain()
	report.RecordsFailed = n
	report.ErrorSamples = samples
	report.RecordsChecked = report.RecordsValid + report.RecordsFailed
	return report, nil
}

// RuleInfo describes one active rule for a job type, for operator
// introspection.
type RuleInfo struct {
	FieldName    string         `json:"field_name"`
	RuleType     string         `json:"rule_type"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// ListRules returns the effective rule set for a job type: builtins plus
// any extra rules from cfg.
func (s *Service) ListRules(jobType string, extra []config.Rule) ([]RuleInfo, error) {
	ruleSet, err := rules.ForDataType(config.DataType(jobType), extra)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	list := ruleSet.Rules()
	out := make([]RuleInfo, 0, len(list))
	for _, r := range list {
		out = append(out, RuleInfo{
			FieldName:    r.FieldName,
			RuleType:     string(r.Type),
			Parameters:   map[string]any(r.Parameters),
			ErrorMessage: r.ErrorMessage,
		})
	}
	return out, nil
}

func withoutStorageIssues(issues []config.Issue) []config.Issue {
	out := issues[:0]
	for _, is := range issues {
		if strings.HasPrefix(is.Path, "storage.") {
			continue
		}
		out = append(out, is)
	}
	return out
}

func joinIssues(issues []config.Issue) string {
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		if is.Severity == config.SeverityError {
			parts = append(parts, is.String())
		}
	}
	return strings.Join(parts, "; ")
}

func cloneJob(j *jobstore.Job) *jobstore.Job {
	c := *j
	c.ErrorSamples = append([]string(nil), j.ErrorSamples...)
	if j.StartTime != nil {
		t := *j.StartTime
		c.StartTime = &t
	}
	if j.EndTime != nil {
		t := *j.EndTime
		c.EndTime = &t
	}
	return &c
}
