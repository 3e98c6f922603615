// Package pipeline runs ingestion jobs end to end: stream rows from the
// source, validate against the job's rule set, map validated rows into
// dimensional operations, and commit them to the warehouse in batches while
// keeping the job record's counters current.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"eduetl/internal/config"
	"eduetl/internal/jobstore"
	"eduetl/internal/metrics"
	"eduetl/internal/rules"
	"eduetl/internal/schema"
	"eduetl/internal/source"
	"eduetl/internal/transform"
	"eduetl/internal/warehouse"
)

// Logger is the minimal logging interface used by the orchestrator.
// *log.Logger and *logging.Logger both satisfy it.
type Logger interface {
	Printf(format string, v ...any)
}

// Orchestrator executes one ingestion job. Batches are the commit unit:
// every dimension and fact write for a batch lands before the job's counters
// advance, so a crash never leaves counters ahead of the warehouse.
type Orchestrator struct {
	Store  jobstore.Store
	Repo   warehouse.Repository
	Logger Logger

	// now and sleep are test seams. Production uses the clock.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func (o *Orchestrator) logger() func(format string, v ...any) {
	if o.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return o.Logger.Printf
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (o *Orchestrator) clock() func() time.Time {
	if o.now != nil {
		return o.now
	}
	return time.Now
}

func (o *Orchestrator) sleeper() func(ctx context.Context, d time.Duration) error {
	if o.sleep != nil {
		return o.sleep
	}
	return func(ctx context.Context, d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// rowFailures collects failure counts and capped samples. Parse errors
// arrive from the stream producer goroutine, so access is locked.
type rowFailures struct {
	mu      sync.Mutex
	count   int64
	samples []string
	limit   int
}

func (f *rowFailures) add(line int, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	if len(f.samples) < f.limit {
		f.samples = append(f.samples, fmt.Sprintf("line %d: %s", line, msg))
	}
}

// drain returns and resets the accumulated failures.
func (f *rowFailures) drain() (int64, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.count
	s := f.samples
	f.count = 0
	f.samples = nil
	return n, s
}

// Run executes the job described by cfg, updating job through the store as
// it progresses. The returned error is also recorded on the job; callers
// use it only for logging.
func (o *Orchestrator) Run(ctx context.Context, cfg config.JobConfig, job *jobstore.Job) error {
	logf := o.logger()
	now := o.clock()

	dataType := config.DataType(cfg.JobType)
	ruleSet, err := rules.ForDataType(dataType, cfg.Rules)
	if err != nil {
		return o.fail(ctx, job, err)
	}
	mapper, err := transform.NewMapper(dataType, cfg.Runtime.PassingThresholdOrDefault(), cfg.Runtime.DedupeFacts == "natural_key")
	if err != nil {
		return o.fail(ctx, job, err)
	}
	src, err := source.New(cfg.Source, cfg.Parser, ruleSet.Columns())
	if err != nil {
		return o.fail(ctx, job, err)
	}

	start := now().UTC()
	job.Status = jobstore.StatusRunning
	job.StartTime = &start
	job.UpdatedAt = start
	if err := o.Store.Update(ctx, job); err != nil {
		return err
	}
	logf("stage=start job=%s type=%s source=%s", job.ID, cfg.JobType, cfg.Source.File.Path)

	if o.Repo != nil {
		if err := o.Repo.EnsureSchema(ctx); err != nil {
			return o.fail(ctx, job, err)
		}
	}

	if cfg.Runtime.CountRecordsOrDefault() {
		total, err := src.Count(ctx)
		if err != nil {
			return o.fail(ctx, job, err)
		}
		job.RecordsTotal = total
		job.UpdatedAt = now().UTC()
		if err := o.Store.Update(ctx, job); err != nil {
			return err
		}
		logf("stage=count job=%s total=%d", job.ID, total)
	}

	failures := &rowFailures{limit: cfg.Runtime.ErrorSampleLimitOrDefault()}
	onErr := func(line int, err error) {
		failures.add(line, err.Error())
	}

	stream, err := src.Open(ctx, cfg.Runtime.ChannelBuffer, onErr)
	if err != nil {
		return o.fail(ctx, job, err)
	}

	run := &jobRun{
		o:        o,
		cfg:      cfg,
		job:      job,
		mapper:   mapper,
		ruleSet:  ruleSet,
		fields:   schema.Fields(dataType),
		seen:     rules.NewSeen(),
		failures: failures,
		dimCache: make(map[string]map[string]int64),
		logf:     logf,
		now:      now,
	}

	batchSize := cfg.Runtime.BatchSizeOrDefault()
	batch := make([]*transform.Row, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := run.processBatch(ctx, batch)
		batch = batch[:0]
		return err
	}

	var terminal error
	for r := range stream.Rows {
		if ctx.Err() != nil {
			r.Drop()
			continue
		}
		batch = append(batch, r)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				terminal = err
				break
			}
		}
	}
	if terminal != nil {
		// Drain remaining rows so the producer can exit.
		for r := range stream.Rows {
			r.Drop()
		}
	} else if err := flush(); err != nil {
		terminal = err
	}

	streamErr := stream.Wait()

	if terminal == nil && ctx.Err() != nil {
		return o.cancelled(job)
	}
	if terminal != nil {
		if errors.Is(terminal, context.Canceled) {
			return o.cancelled(job)
		}
		return o.fail(context.WithoutCancel(ctx), job, terminal)
	}
	if streamErr != nil {
		return o.fail(ctx, job, streamErr)
	}

	// Fold in any trailing parse failures before the final state change.
	run.foldFailures()

	end := now().UTC()
	job.Status = jobstore.StatusCompleted
	job.EndTime = &end
	job.UpdatedAt = end
	if job.RecordsTotal < 0 {
		job.RecordsTotal = job.RecordsProcessed
	}
	if err := o.Store.Update(ctx, job); err != nil {
		return err
	}
	metrics.IncCounter(metrics.MetricJobsTotal, 1, metrics.Labels{"job_type": cfg.JobType, "status": string(jobstore.StatusCompleted)})
	logf("stage=done job=%s processed=%d successful=%d failed=%d duration=%s",
		job.ID, job.RecordsProcessed, job.RecordsSuccessful, job.RecordsFailed,
		end.Sub(start).Truncate(time.Millisecond))
	return nil
}

// fail moves the job to its failed terminal state, preserving counters.
func (o *Orchestrator) fail(ctx context.Context, job *jobstore.Job, cause error) error {
	now := o.clock()().UTC()
	job.Status = jobstore.StatusFailed
	job.ErrorMessage = cause.Error()
	job.EndTime = &now
	job.UpdatedAt = now
	if err := o.Store.Update(context.WithoutCancel(ctx), job); err != nil {
		o.logger()("stage=fail job=%s store_err=%v", job.ID, err)
	}
	metrics.IncCounter(metrics.MetricJobsTotal, 1, metrics.Labels{"job_type": job.Type, "status": string(jobstore.StatusFailed)})
	o.logger()("stage=fail job=%s err=%v", job.ID, cause)
	return cause
}

func (o *Orchestrator) cancelled(job *jobstore.Job) error {
	now := o.clock()().UTC()
	job.Status = jobstore.StatusCancelled
	job.EndTime = &now
	job.UpdatedAt = now
	if err := o.Store.Update(context.Background(), job); err != nil {
		o.logger()("stage=cancel job=%s store_err=%v", job.ID, err)
	}
	metrics.IncCounter(metrics.MetricJobsTotal, 1, metrics.Labels{"job_type": job.Type, "status": string(jobstore.StatusCancelled)})
	o.logger()("stage=cancel job=%s processed=%d", job.ID, job.RecordsProcessed)
	return nil
}

// jobRun carries the per-run state threaded through batch processing.
type jobRun struct {
	o        *Orchestrator
	cfg      config.JobConfig
	job      *jobstore.Job
	mapper   *transform.Mapper
	ruleSet  *rules.RuleSet
	fields   []schema.Field
	seen     *rules.Seen
	failures *rowFailures
	dimCache map[string]map[string]int64
	logf     func(format string, v ...any)
	now      func() time.Time
}

// processBatch validates and maps every row in the batch, commits the
// resulting warehouse writes, then advances the job counters. Rows are
// freed here regardless of outcome.
func (r *jobRun) processBatch(ctx context.Context, batch []*transform.Row) error {
	var ops []transform.RowOps
	var okRows int64

	for _, row := range batch {
		transform.CoerceRow(r.fields, row, r.cfg.Parser.Options.String("date_layout", ""))
		if errs := r.ruleSet.Evaluate(row, r.seen); len(errs) > 0 {
			r.failures.add(row.Line, joinFieldErrors(errs))
			for _, fe := range errs {
				metrics.IncCounter(metrics.MetricRuleFailures, 1, metrics.Labels{"rule": string(fe.Rule)})
			}
			row.Free()
			continue
		}
		// Line must be read before Free: the pool may hand the row to
		// another batch immediately.
		line := row.Line
		op, err := r.mapper.MapRow(row, r.now())
		row.Free()
		if err != nil {
			r.failures.add(line, err.Error())
			continue
		}
		ops = append(ops, op)
		okRows++
	}

	if r.o.Repo != nil && len(ops) > 0 {
		if err := r.writeOps(ctx, ops); err != nil {
			return err
		}
	}
	metrics.IncCounter(metrics.MetricBatchesTotal, 1, nil)
	metrics.IncCounter(metrics.MetricRecordsTotal, float64(okRows), metrics.Labels{"kind": "successful"})

	r.job.RecordsSuccessful += okRows
	r.foldFailures()
	return nil
}

// foldFailures drains accumulated row failures into the job record and
// persists the updated counters.
func (r *jobRun) foldFailures() {
	n, samples := r.failures.drain()
	if n > 0 {
		metrics.IncCounter(metrics.MetricRecordsTotal, float64(n), metrics.Labels{"kind": "failed"})
	}
	r.job.RecordsFailed += n
	limit := r.cfg.Runtime.ErrorSampleLimitOrDefault()
	for _, s := range samples {
		if len(r.job.ErrorSamples) >= limit {
			break
		}
		r.job.ErrorSamples = append(r.job.ErrorSamples, s)
	}
	r.job.RecordsProcessed = r.job.RecordsSuccessful + r.job.RecordsFailed
	r.job.UpdatedAt = r.now().UTC()
	if err := r.o.Store.Update(context.Background(), r.job); err != nil {
		r.logf("stage=progress job=%s store_err=%v", r.job.ID, err)
	}
}

func joinFieldErrors(errs []rules.FieldError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

// writeOps commits one batch: dimensions first, then surrogate resolution,
// then facts, each with bounded retry.
func (r *jobRun) writeOps(ctx context.Context, ops []transform.RowOps) error {
	if err := r.upsertDimensions(ctx, ops); err != nil {
		return fmt.Errorf("upsert dimensions: %w", err)
	}
	if err := r.resolveRefs(ctx, ops); err != nil {
		return fmt.Errorf("resolve dimensions: %w", err)
	}
	if err := r.appendFacts(ctx, ops); err != nil {
		return fmt.Errorf("append facts: %w", err)
	}
	return nil
}

// dimGroup is one upsert statement's worth of dimension rows: same table,
// same column layout, unique business keys (last write wins inside the
// batch, matching source-file order).
type dimGroup struct {
	table     string
	keyColumn string
	columns   []string
	byKey     map[string]int
	rows      [][]any
}

func (r *jobRun) upsertDimensions(ctx context.Context, ops []transform.RowOps) error {
	groups := make(map[string]*dimGroup)
	for _, op := range ops {
		for _, d := range op.Dims {
			sig := d.Table + "\x00" + strings.Join(d.Columns, ",")
			g := groups[sig]
			if g == nil {
				g = &dimGroup{
					table:     d.Table,
					keyColumn: d.KeyColumn,
					columns:   d.Columns,
					byKey:     make(map[string]int),
				}
				groups[sig] = g
			}
			key := d.Key()
			if i, dup := g.byKey[key]; dup {
				g.rows[i] = d.Values
				continue
			}
			g.byKey[key] = len(g.rows)
			g.rows = append(g.rows, d.Values)
		}
	}

	// Dimension order is fixed so referenced tables land first.
	for _, table := range warehouse.DimensionTables {
		for _, g := range groups {
			if g.table != table {
				continue
			}
			err := r.withRetry(ctx, "dim "+g.table, func() error {
				return r.o.Repo.UpsertDimensions(ctx, g.table, g.keyColumn, g.columns, g.rows)
			})
			if err != nil {
				return err
			}
			// Keys written here may be cached from an earlier batch with a
			// stale absence; surrogates are re-fetched in resolveRefs only
			// for keys the cache has never seen, so nothing to invalidate.
		}
	}
	return nil
}

// resolveRefs fills fact values at DimRef positions with surrogate ids,
// using a per-run cache so repeated keys only hit the warehouse once.
func (r *jobRun) resolveRefs(ctx context.Context, ops []transform.RowOps) error {
	missing := make(map[string]map[string]struct{})
	for _, op := range ops {
		for _, f := range op.Facts {
			for _, ref := range f.Refs {
				cached := r.dimCache[ref.Table]
				if cached != nil {
					if _, ok := cached[ref.Key]; ok {
						continue
					}
				}
				m := missing[ref.Table]
				if m == nil {
					m = make(map[string]struct{})
					missing[ref.Table] = m
				}
				m[ref.Key] = struct{}{}
			}
		}
	}

	for table, keySet := range missing {
		keys := make([]any, 0, len(keySet))
		for k := range keySet {
			keys = append(keys, k)
		}
		var resolved map[string]int64
		err := r.withRetry(ctx, "resolve "+table, func() error {
			var err error
			resolved, err = r.o.Repo.ResolveSurrogates(ctx, table, warehouse.DimKeyColumn(table), keys)
			return err
		})
		if err != nil {
			return err
		}
		cache := r.dimCache[table]
		if cache == nil {
			cache = make(map[string]int64, len(resolved))
			r.dimCache[table] = cache
		}
		for k, id := range resolved {
			cache[k] = id
		}
	}

	for _, op := range ops {
		for _, f := range op.Facts {
			for _, ref := range f.Refs {
				id, ok := r.dimCache[ref.Table][ref.Key]
				if !ok {
					return fmt.Errorf("%s: key %q has no surrogate after upsert", ref.Table, ref.Key)
				}
				f.Values[ref.ColIdx] = id
			}
		}
	}
	return nil
}

func (r *jobRun) appendFacts(ctx context.Context, ops []transform.RowOps) error {
	type factGroup struct {
		columns []string
		dedupe  []string
		rows    [][]any
	}
	groups := make(map[string]*factGroup)
	for _, op := range ops {
		for _, f := range op.Facts {
			g := groups[f.Table]
			if g == nil {
				g = &factGroup{columns: f.Columns, dedupe: f.DedupeColumns}
				groups[f.Table] = g
			}
			g.rows = append(g.rows, f.Values)
		}
	}

	for _, table := range warehouse.FactTables {
		g := groups[table]
		if g == nil {
			continue
		}
		start := r.now()
		var inserted int64
		err := r.withRetry(ctx, "fact "+table, func() error {
			var err error
			inserted, err = r.o.Repo.AppendFacts(ctx, table, g.columns, g.rows, g.dedupe)
			return err
		})
		metrics.ObserveHistogram(metrics.MetricBatchWriteSeconds, r.now().Sub(start).Seconds(), metrics.Labels{"table": table})
		if err != nil {
			return err
		}
		if skipped := int64(len(g.rows)) - inserted; skipped > 0 {
			r.logf("stage=fact_batch job=%s table=%s rows=%d inserted=%d deduped=%d",
				r.job.ID, table, len(g.rows), inserted, skipped)
		}
	}
	return nil
}

// withRetry runs op up to the configured attempt limit, backing off between
// attempts. Cancellation aborts immediately.
func (r *jobRun) withRetry(ctx context.Context, what string, op func() error) error {
	attempts := r.cfg.Runtime.RetryLimitOrDefault()
	backoff := time.Duration(r.cfg.Runtime.RetryBackoffMSOrDefault()) * time.Millisecond
	sleep := r.o.sleeper()

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return err
		}
		if attempt < attempts {
			r.logf("stage=retry job=%s op=%q attempt=%d err=%v", r.job.ID, what, attempt, err)
			if serr := sleep(ctx, backoff*time.Duration(attempt)); serr != nil {
				return err
			}
		}
	}
	return err
}
