// Package analytics computes read-only aggregates over the dimensional
// warehouse: performance and enrollment statistics, per-course and
// per-department roll-ups, time-bucketed trend series, a KPI snapshot and
// per-student feature vectors. Nothing here mutates warehouse state.
//
// Percentages with a zero denominator report 0 and set insufficient_data
// on the result so callers can tell "zero and real" from "zero and
// undefined".
package analytics

import (
	"context"
	"sort"
	"time"

	"eduetl/internal/warehouse"
)

// Aggregator computes analytics over a warehouse repository.
type Aggregator struct {
	repo warehouse.Repository
}

func New(repo warehouse.Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// ratio returns num/den, or (0, true) when the denominator is zero.
func ratio(num, den float64) (float64, bool) {
	if den == 0 {
		return 0, true
	}
	return num / den, false
}

// StudentPerformance is the per-student slice of a performance report.
type StudentPerformance struct {
	StudentKey       string  `json:"student_key"`
	GPA              float64 `json:"gpa"`
	CreditsCompleted float64 `json:"credits_completed"`
	PassRate         float64 `json:"pass_rate"`
	FactCount        int64   `json:"fact_count"`
}

// PerformanceReport aggregates grade facts for the filtered population.
// GPA is credit-weighted: sum(grade_points * credits) / sum(credits).
type PerformanceReport struct {
	Students         []StudentPerformance `json:"students"`
	AvgGPA           float64              `json:"avg_gpa"`
	TotalCredits     float64              `json:"total_credits_completed"`
	PassRate         float64              `json:"pass_rate"`
	FactCount        int64                `json:"fact_count"`
	InsufficientData bool                 `json:"insufficient_data"`
}

type perfAcc struct {
	weighted   float64
	attempted  float64
	completed  float64
	passing    int64
	facts      int64
	plainSum   float64 // fallback when credits are all zero
	plainCount int64
}

// PerformanceMetrics computes per-student and population performance over
// the filtered facts.
func (a *Aggregator) PerformanceMetrics(ctx context.Context, f warehouse.Filter) (*PerformanceReport, error) {
	facts, err := a.repo.QueryPerformanceFacts(ctx, f)
	if err != nil {
		return nil, err
	}

	byStudent := make(map[string]*perfAcc)
	var popPassing, popFacts int64
	var popCredits float64
	for _, pf := range facts {
		acc := byStudent[pf.StudentKey]
		if acc == nil {
			acc = &perfAcc{}
			byStudent[pf.StudentKey] = acc
		}
		acc.facts++
		acc.weighted += pf.GradePoints * pf.CreditsEarned
		acc.attempted += pf.CreditsEarned
		acc.plainSum += pf.GradePoints
		acc.plainCount++
		if pf.IsPass {
			acc.passing++
			acc.completed += pf.CreditsEarned
			popCredits += pf.CreditsEarned
		}
		popFacts++
		if pf.IsPass {
			popPassing++
		}
	}

	report := &PerformanceReport{FactCount: popFacts, TotalCredits: popCredits}
	var gpaSum float64
	for key, acc := range byStudent {
		sp := StudentPerformance{
			StudentKey:       key,
			CreditsCompleted: acc.completed,
			FactCount:        acc.facts,
		}
		if acc.attempted > 0 {
			sp.GPA = acc.weighted / acc.attempted
		} else if acc.plainCount > 0 {
			sp.GPA = acc.plainSum / float64(acc.plainCount)
		}
		sp.PassRate, _ = ratio(float64(acc.passing), float64(acc.facts))
		gpaSum += sp.GPA
		report.Students = append(report.Students, sp)
	}
	sort.Slice(report.Students, func(i, j int) bool {
		return report.Students[i].StudentKey < report.Students[j].StudentKey
	})

	var ins1, ins2 bool
	report.AvgGPA, ins1 = ratio(gpaSum, float64(len(report.Students)))
	report.PassRate, ins2 = ratio(float64(popPassing), float64(popFacts))
	report.InsufficientData = ins1 || ins2
	return report, nil
}

// EnrollmentStats counts the filtered student population by status.
// Retention = (active + graduated) / total.
type EnrollmentStats struct {
	Total            int64            `json:"total"`
	ByStatus         map[string]int64 `json:"by_status"`
	RetentionRate    float64          `json:"retention_rate"`
	InsufficientData bool             `json:"insufficient_data"`
}

func (a *Aggregator) EnrollmentStats(ctx context.Context, f warehouse.Filter) (*EnrollmentStats, error) {
	students, err := a.repo.QueryStudents(ctx, f)
	if err != nil {
		return nil, err
	}
	stats := &EnrollmentStats{ByStatus: make(map[string]int64)}
	var retained int64
	for _, s := range students {
		stats.Total++
		stats.ByStatus[s.Status]++
		switch s.Status {
		case "active", "graduated":
			retained++
		}
	}
	stats.RetentionRate, stats.InsufficientData = ratio(float64(retained), float64(stats.Total))
	return stats, nil
}

// CourseStats is the per-course aggregate over performance and enrollment
// facts.
type CourseStats struct {
	CourseKey        string  `json:"course_key"`
	CourseName       string  `json:"course_name"`
	DepartmentKey    string  `json:"department_key"`
	Enrollments      int64   `json:"enrollments"`
	CompletionRate   float64 `json:"completion_rate"`
	DropRate         float64 `json:"drop_rate"`
	AvgGradePoints   float64 `json:"avg_grade_points"`
	PassRate         float64 `json:"pass_rate"`
	GradedFacts      int64   `json:"graded_facts"`
	InsufficientData bool    `json:"insufficient_data"`
}

func (a *Aggregator) CourseStatistics(ctx context.Context, f warehouse.Filter) ([]CourseStats, error) {
	courses, err := a.repo.QueryCourses(ctx, f)
	if err != nil {
		return nil, err
	}
	perf, err := a.repo.QueryPerformanceFacts(ctx, f)
	if err != nil {
		return nil, err
	}
	enroll, err := a.repo.QueryEnrollmentFacts(ctx, f)
	if err != nil {
		return nil, err
	}

	type acc struct {
		enrolled, completed, dropped int64
		gradeSum                     float64
		graded, passing              int64
	}
	byCourse := make(map[string]*acc)
	get := func(key string) *acc {
		c := byCourse[key]
		if c == nil {
			c = &acc{}
			byCourse[key] = c
		}
		return c
	}
	for _, e := range enroll {
		c := get(e.CourseKey)
		c.enrolled++
		if e.IsCompleted {
			c.completed++
		}
		if e.IsDropped {
			c.dropped++
		}
	}
	for _, p := range perf {
		c := get(p.CourseKey)
		c.graded++
		c.gradeSum += p.GradePoints
		if p.IsPass {
			c.passing++
		}
	}

	out := make([]CourseStats, 0, len(courses))
	for _, course := range courses {
		cs := CourseStats{
			CourseKey:     course.CourseKey,
			CourseName:    course.CourseName,
			DepartmentKey: course.DepartmentKey,
		}
		if c := byCourse[course.CourseKey]; c != nil {
			cs.Enrollments = c.enrolled
			cs.GradedFacts = c.graded
			var i1, i2, i3 bool
			cs.CompletionRate, i1 = ratio(float64(c.completed), float64(c.enrolled))
			cs.DropRate, _ = ratio(float64(c.dropped), float64(c.enrolled))
			cs.AvgGradePoints, i2 = ratio(c.gradeSum, float64(c.graded))
			cs.PassRate, i3 = ratio(float64(c.passing), float64(c.graded))
			cs.InsufficientData = i1 || i2 || i3
		} else {
			cs.InsufficientData = true
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseKey < out[j].CourseKey })
	return out, nil
}

// DepartmentStats rolls courses and students up to their department.
type DepartmentStats struct {
	DepartmentKey    string  `json:"department_key"`
	Students         int64   `json:"students"`
	Courses          int64   `json:"courses"`
	AvgGradePoints   float64 `json:"avg_grade_points"`
	PassRate         float64 `json:"pass_rate"`
	GradedFacts      int64   `json:"graded_facts"`
	InsufficientData bool    `json:"insufficient_data"`
}

func (a *Aggregator) DepartmentStatistics(ctx context.Context, f warehouse.Filter) ([]DepartmentStats, error) {
	students, err := a.repo.QueryStudents(ctx, f)
	if err != nil {
		return nil, err
	}
	courses, err := a.repo.QueryCourses(ctx, f)
	if err != nil {
		return nil, err
	}
	perf, err := a.repo.QueryPerformanceFacts(ctx, f)
	if err != nil {
		return nil, err
	}

	type acc struct {
		students, courses int64
		gradeSum          float64
		graded, passing   int64
	}
	byDept := make(map[string]*acc)
	get := func(key string) *acc {
		if key == "" {
			key = "unknown"
		}
		d := byDept[key]
		if d == nil {
			d = &acc{}
			byDept[key] = d
		}
		return d
	}
	for _, s := range students {
		get(s.DepartmentKey).students++
	}
	for _, c := range courses {
		get(c.DepartmentKey).courses++
	}
	for _, p := range perf {
		d := get(p.DepartmentKey)
		d.graded++
		d.gradeSum += p.GradePoints
		if p.IsPass {
			d.passing++
		}
	}

	out := make([]DepartmentStats, 0, len(byDept))
	for key, d := range byDept {
		ds := DepartmentStats{
			DepartmentKey: key,
			Students:      d.students,
			Courses:       d.courses,
			GradedFacts:   d.graded,
		}
		var i1, i2 bool
		ds.AvgGradePoints, i1 = ratio(d.gradeSum, float64(d.graded))
		ds.PassRate, i2 = ratio(float64(d.passing), float64(d.graded))
		ds.InsufficientData = i1 || i2
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartmentKey < out[j].DepartmentKey })
	return out, nil
}

// Trend computes a zero-filled trend series for the metric and period.
// The series covers the filter's date range when given, otherwise the
// observed data extent.
func (a *Aggregator) Trend(ctx context.Context, metric TrendMetric, period Period, f warehouse.Filter) (*TrendSeries, error) {
	buckets := make(map[time.Time]*bucketAgg)

	if metric == TrendEnrollments {
		facts, err := a.repo.QueryEnrollmentFacts(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, e := range facts {
			start := bucketStart(e.Date, period)
			b := buckets[start]
			if b == nil {
				b = &bucketAgg{}
				buckets[start] = b
			}
			b.enrollments++
		}
	} else {
		facts, err := a.repo.QueryPerformanceFacts(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, pf := range facts {
			start := bucketStart(pf.Date, period)
			b := buckets[start]
			if b == nil {
				b = &bucketAgg{}
				buckets[start] = b
			}
			b.addPerformance(pf)
		}
	}

	series := buildSeries(metric, period, buckets, f.From, f.To)
	return &series, nil
}
