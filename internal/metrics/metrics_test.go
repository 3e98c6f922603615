package metrics

import (
	"errors"
	"sync"
	"testing"
)

type recordingBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
	flushErr error
	flushed  int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		counters: make(map[string]float64),
		samples:  make(map[string][]float64),
	}
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
}

func (r *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[name] = append(r.samples[name], value)
}

func (r *recordingBackend) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed++
	return r.flushErr
}

func TestSetBackendRoutesObservations(t *testing.T) {
	rb := newRecordingBackend()
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	IncCounter(MetricBatchesTotal, 1, nil)
	IncCounter(MetricBatchesTotal, 2, nil)
	ObserveHistogram(MetricBatchWriteSeconds, 0.25, Labels{"table": "performance_fact"})

	if got := rb.counters[MetricBatchesTotal]; got != 3 {
		t.Errorf("counter = %v, want 3", got)
	}
	if got := rb.samples[MetricBatchWriteSeconds]; len(got) != 1 || got[0] != 0.25 {
		t.Errorf("samples = %v", got)
	}
}

func TestSetBackendNilRestoresNop(t *testing.T) {
	SetBackend(nil)
	// Must not panic; the nop backend swallows everything.
	IncCounter(MetricJobsTotal, 1, Labels{"status": "completed"})
	ObserveHistogram(MetricBatchWriteSeconds, 1, nil)
	if err := Flush(); err != nil {
		t.Errorf("nop flush err = %v", err)
	}
}

func TestFlushDelegates(t *testing.T) {
	rb := newRecordingBackend()
	rb.flushErr = errors.New("intake down")
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	if err := Flush(); err == nil {
		t.Error("flush error swallowed")
	}
	if rb.flushed != 1 {
		t.Errorf("flush calls = %d, want 1", rb.flushed)
	}
}
