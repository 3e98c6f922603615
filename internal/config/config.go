// Package config defines the JSON job configuration consumed by the pipeline
// service and CLI, plus validation of that configuration before any job is
// created.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JobType enumerates the supported ingestion job kinds.
const (
	JobTypeStudent     = "student_data"
	JobTypeCourse      = "course_data"
	JobTypePerformance = "performance_data"
	JobTypeFeedback    = "feedback_data"
)

// KnownJobType reports whether t is one of the supported job types.
func KnownJobType(t string) bool {
	switch t {
	case JobTypeStudent, JobTypeCourse, JobTypePerformance, JobTypeFeedback:
		return true
	}
	return false
}

// DataType returns the validation data type for a job type
// (student_data -> student, etc).
func DataType(jobType string) string {
	switch jobType {
	case JobTypeStudent:
		return "student"
	case JobTypeCourse:
		return "course"
	case JobTypePerformance:
		return "performance"
	case JobTypeFeedback:
		return "feedback"
	}
	return ""
}

// JobConfig describes one ingestion job: where the rows come from, how to
// parse them, which rule set applies, and where the dimensional records go.
type JobConfig struct {
	Job     string  `json:"job"`
	JobType string  `json:"job_type"`
	Source  Source  `json:"source"`
	Parser  Parser  `json:"parser"`
	Rules   []Rule  `json:"rules,omitempty"`
	Storage Storage `json:"storage"`
	Store   Store   `json:"store"`
	Runtime Runtime `json:"runtime"`
}

type Source struct {
	Kind string      `json:"kind"`
	File *FileSource `json:"file,omitempty"`
}

type FileSource struct {
	Path string `json:"path"`
}

type Parser struct {
	// Kind: "csv" | "json" | "htmltable".
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

// Rule is a declarative per-field constraint added on top of the builtin
// rule set for the job's data type. Mirrors rules.Rule so config stays a
// leaf package.
type Rule struct {
	FieldName    string  `json:"field_name"`
	RuleType     string  `json:"rule_type"`
	Parameters   Options `json:"parameters,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

type Storage struct {
	// Kind: "postgres" | "sqlite" | "mssql".
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

type Store struct {
	// Kind: "memory" | "sqlite". Defaults to memory.
	Kind string `json:"kind"`
	DSN  string `json:"dsn,omitempty"`
}

// Runtime controls pipeline execution behavior.
type Runtime struct {
	BatchSize      int `json:"batch_size"`
	MaxWorkers     int `json:"max_workers"`
	ChannelBuffer  int `json:"channel_buffer"`
	RetryLimit     int `json:"retry_limit"`
	RetryBackoffMS int `json:"retry_backoff_ms"`

	// CountRecords enables the pre-pass that counts source records so
	// progress can be exact. When false, progress reports -1 until the
	// final batch.
	CountRecords *bool `json:"count_records,omitempty"`

	// PassingThreshold is the grade-points floor for the derived pass flag.
	PassingThreshold *float64 `json:"passing_threshold,omitempty"`

	// DedupeFacts: "append" (default) inserts every fact; "natural_key"
	// hashes the source row and skips facts whose hash already exists.
	DedupeFacts string `json:"dedupe_facts,omitempty"`

	// ErrorSampleLimit caps how many row failure reasons are retained per
	// job. Counts are always exact; only the samples are capped.
	ErrorSampleLimit int `json:"error_sample_limit,omitempty"`
}

// Defaults used when Runtime fields are zero.
const (
	DefaultBatchSize        = 1000
	DefaultMaxWorkers       = 4
	DefaultChannelBuffer    = 256
	DefaultRetryLimit       = 3
	DefaultRetryBackoffMS   = 250
	DefaultPassingThreshold = 1.0
	DefaultErrorSampleLimit = 50
)

// BatchSizeOrDefault returns the configured batch size or the default.
func (r Runtime) BatchSizeOrDefault() int {
	if r.BatchSize > 0 {
		return r.BatchSize
	}
	return DefaultBatchSize
}

func (r Runtime) MaxWorkersOrDefault() int {
	if r.MaxWorkers > 0 {
		return r.MaxWorkers
	}
	return DefaultMaxWorkers
}

func (r Runtime) RetryLimitOrDefault() int {
	if r.RetryLimit > 0 {
		return r.RetryLimit
	}
	return DefaultRetryLimit
}

func (r Runtime) RetryBackoffMSOrDefault() int {
	if r.RetryBackoffMS > 0 {
		return r.RetryBackoffMS
	}
	return DefaultRetryBackoffMS
}

func (r Runtime) PassingThresholdOrDefault() float64 {
	if r.PassingThreshold != nil {
		return *r.PassingThreshold
	}
	return DefaultPassingThreshold
}

func (r Runtime) ErrorSampleLimitOrDefault() int {
	if r.ErrorSampleLimit > 0 {
		return r.ErrorSampleLimit
	}
	return DefaultErrorSampleLimit
}

func (r Runtime) CountRecordsOrDefault() bool {
	if r.CountRecords != nil {
		return *r.CountRecords
	}
	return true
}

// Load reads and decodes a JobConfig from a JSON file.
func Load(path string) (JobConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return JobConfig{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode decodes a JobConfig from r. Unknown fields are rejected so typos in
// hand-edited configs fail loudly instead of silently applying defaults.
func Decode(r io.Reader) (JobConfig, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var cfg JobConfig
	if err := dec.Decode(&cfg); err != nil {
		return JobConfig{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
