// Package warehouse defines the backend-agnostic repository interface for
// the dimensional warehouse, the star-schema naming shared by every backend,
// and the typed read models the analytics aggregator consumes.
package warehouse

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config is the minimal configuration needed to construct a Repository.
type Config struct {
	Kind string
	DSN  string

	// DedupeFacts controls whether fact tables get a UNIQUE index on
	// row_hash. Required for the natural_key dedupe policy; must stay off
	// for append mode or re-ingested rows would be rejected.
	DedupeFacts bool
}

// Repository is the durable storage surface for dimension and fact tables.
//
// IMPORTANT: the interface is intentionally minimal and focused on what the
// pipeline and aggregator need. Each backend implements the semantics in its
// own idiomatic way (Postgres ON CONFLICT, SQLite upsert, MSSQL update plus
// insert-where-not-exists); the
// upsert path must serialize concurrent writes to the same business key,
// which all three achieve with single-statement upserts.
type Repository interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureSchema creates the star-schema tables and indexes if missing.
	EnsureSchema(ctx context.Context) error

	// UpsertDimensions writes dimension rows keyed by business key: an
	// existing key updates non-key columns in place, a new key inserts.
	// columns must include keyColumn. Surrogate keys are assigned by the
	// backend and never reused.
	UpsertDimensions(ctx context.Context, table, keyColumn string, columns []string, rows [][]any) error

	// ResolveSurrogates returns businessKey -> surrogate id for the given
	// keys. Keys not present in the dimension are absent from the result.
	ResolveSurrogates(ctx context.Context, table, keyColumn string, keys []any) (map[string]int64, error)

	// AppendFacts inserts fact rows. When dedupeColumns is non-empty the
	// insert must be idempotent on those columns (conflicting rows are
	// skipped, not errors). Returns the number of rows actually inserted.
	AppendFacts(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error)

	// Analytics reads. Read-only; never mutate warehouse state.
	QueryPerformanceFacts(ctx context.Context, f Filter) ([]PerformanceFact, error)
	QueryEnrollmentFacts(ctx context.Context, f Filter) ([]EnrollmentFact, error)
	QueryStudents(ctx context.Context, f Filter) ([]Student, error)
	QueryCourses(ctx context.Context, f Filter) ([]Course, error)
}

// Filter narrows analytics queries. Zero values mean "no constraint".
type Filter struct {
	StudentKey    string
	CourseKey     string
	DepartmentKey string
	From          time.Time
	To            time.Time
}

// PerformanceFact is the typed read model of one performance_fact row with
// its dimension business keys resolved.
type PerformanceFact struct {
	StudentKey    string
	CourseKey     string
	DepartmentKey string
	Date          time.Time
	GradePoints   float64
	CreditsEarned float64
	AttendancePct *float64
	FinalScore    *float64
	IsPass        bool
}

// EnrollmentFact is the typed read model of one enrollment_fact row.
type EnrollmentFact struct {
	StudentKey  string
	CourseKey   string
	Date        time.Time
	IsCompleted bool
	IsDropped   bool
}

// Student is the analytics view of a dim_student row.
type Student struct {
	StudentKey     string
	Status         string
	DepartmentKey  string
	EnrollmentDate time.Time
}

// Course is the analytics view of a dim_course row.
type Course struct {
	CourseKey     string
	CourseName    string
	DepartmentKey string
	Credits       float64
}

// ---- backend factory registry ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind ("postgres", "sqlite", "mssql").
// Called from init() in backend packages; duplicate registration panics to
// fail fast on ambiguous backend selection.
func Register(kind string, f factory) {
	regMu.Lock()
	defer regMu.Unlock()

	if kind == "" {
		panic("warehouse: Register called with empty kind")
	}
	if f == nil {
		panic("warehouse: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("warehouse: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Repository for the configured backend kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("warehouse: missing storage kind")
	}

	regMu.RLock()
	f := factories[cfg.Kind]
	regMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("warehouse: unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
