// Package metrics is the minimal instrumentation seam for the pipeline.
// Core code records counters and histogram samples against whatever Backend
// is installed; the default backend drops everything, so instrumentation is
// free when no sink is configured.
package metrics

import "sync/atomic"

// Labels attaches dimensions to a metric observation.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use; calls happen on pipeline worker goroutines.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

// Metric names recorded by the pipeline. Backends switch on these.
const (
	MetricJobsTotal         = "etl_jobs_total"
	MetricRecordsTotal      = "etl_records_total"
	MetricBatchesTotal      = "etl_batches_total"
	MetricBatchWriteSeconds = "etl_batch_write_seconds"
	MetricRuleFailures      = "etl_rule_failures_total"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

// holder keeps atomic.Value stores consistently typed regardless of the
// backend's concrete type.
type holder struct{ b Backend }

var backend atomic.Value

func init() {
	backend.Store(holder{nopBackend{}})
}

// SetBackend installs a backend process-wide. Passing nil restores the nop
// backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	backend.Store(holder{b})
}

func current() Backend {
	return backend.Load().(holder).b
}

// IncCounter adds delta to a counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend if it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}
