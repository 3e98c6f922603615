package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is a map-backed Store. Jobs are copied on the way in and out so
// callers can keep mutating their own struct without racing the store.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*Job)}
}

func cloneJob(j *Job) *Job {
	c := *j
	if j.ErrorSamples != nil {
		c.ErrorSamples = append([]string(nil), j.ErrorSamples...)
	}
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

func (m *Memory) Create(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; ok {
		return fmt.Errorf("jobstore: duplicate job id %q", j.ID)
	}
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

func (m *Memory) Update(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return ErrNotFound
	}
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

// List returns jobs newest first.
func (m *Memory) List(_ context.Context, f Filter) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
