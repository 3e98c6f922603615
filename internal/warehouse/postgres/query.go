package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eduetl/internal/warehouse"
)

// Analytics reads. Facts are joined back to their dimensions so the
// aggregator works with business keys, never surrogate ids.

func dateKeyArg(t time.Time) string { return t.UTC().Format("2006-01-02") }

func parseDateKey(v any) (time.Time, error) {
	return time.Parse("2006-01-02", warehouse.NormalizeKey(v))
}

// whereClause renders filter conditions with $n placeholders starting at 1.
func whereClause(f warehouse.Filter, studentCol, courseCol, deptCol, dateCol string) (string, []any) {
	var conds []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.StudentKey != "" && studentCol != "" {
		add(studentCol, f.StudentKey)
	}
	if f.CourseKey != "" && courseCol != "" {
		add(courseCol, f.CourseKey)
	}
	if f.DepartmentKey != "" && deptCol != "" {
		add(deptCol, f.DepartmentKey)
	}
	if !f.From.IsZero() && dateCol != "" {
		args = append(args, dateKeyArg(f.From))
		conds = append(conds, fmt.Sprintf("%s >= $%d", dateCol, len(args)))
	}
	if !f.To.IsZero() && dateCol != "" {
		args = append(args, dateKeyArg(f.To))
		conds = append(conds, fmt.Sprintf("%s <= $%d", dateCol, len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *Repo) QueryPerformanceFacts(ctx context.Context, f warehouse.Filter) ([]warehouse.PerformanceFact, error) {
	where, args := whereClause(f, "s.student_number", "c.course_code", "c.department_code", "t.date")
	q := `
SELECT s.student_number, c.course_code, COALESCE(c.department_code, ''), t.date,
       pf.grade_points, COALESCE(pf.credits_earned, 0),
       pf.attendance_percentage, pf.final_score, pf.is_pass
FROM performance_fact pf
JOIN dim_student s ON s.student_id = pf.student_id
JOIN dim_course c ON c.course_id = pf.course_id
JOIN dim_time t ON t.time_id = pf.time_id` + where + `
ORDER BY t.date, s.student_number`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query performance facts: %w", err)
	}
	defer rows.Close()

	var out []warehouse.PerformanceFact
	for rows.Next() {
		var pf warehouse.PerformanceFact
		var date any
		if err := rows.Scan(&pf.StudentKey, &pf.CourseKey, &pf.DepartmentKey, &date,
			&pf.GradePoints, &pf.CreditsEarned, &pf.AttendancePct, &pf.FinalScore, &pf.IsPass); err != nil {
			return nil, fmt.Errorf("postgres: scan performance fact: %w", err)
		}
		if pf.Date, err = parseDateKey(date); err != nil {
			return nil, fmt.Errorf("postgres: performance fact date: %w", err)
		}
		out = append(out, pf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query performance facts: %w", err)
	}
	return out, nil
}

func (r *Repo) QueryEnrollmentFacts(ctx context.Context, f warehouse.Filter) ([]warehouse.EnrollmentFact, error) {
	where, args := whereClause(f, "s.student_number", "c.course_code", "c.department_code", "t.date")
	q := `
SELECT s.student_number, c.course_code, t.date, ef.is_completed, ef.is_dropped
FROM enrollment_fact ef
JOIN dim_student s ON s.student_id = ef.student_id
JOIN dim_course c ON c.course_id = ef.course_id
JOIN dim_time t ON t.time_id = ef.time_id` + where + `
ORDER BY t.date, s.student_number`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query enrollment facts: %w", err)
	}
	defer rows.Close()

	var out []warehouse.EnrollmentFact
	for rows.Next() {
		var ef warehouse.EnrollmentFact
		var date any
		if err := rows.Scan(&ef.StudentKey, &ef.CourseKey, &date, &ef.IsCompleted, &ef.IsDropped); err != nil {
			return nil, fmt.Errorf("postgres: scan enrollment fact: %w", err)
		}
		if ef.Date, err = parseDateKey(date); err != nil {
			return nil, fmt.Errorf("postgres: enrollment fact date: %w", err)
		}
		out = append(out, ef)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query enrollment facts: %w", err)
	}
	return out, nil
}

func (r *Repo) QueryStudents(ctx context.Context, f warehouse.Filter) ([]warehouse.Student, error) {
	where, args := whereClause(f, "student_number", "", "department_code", "")
	q := `
SELECT student_number, COALESCE(status, ''), COALESCE(department_code, ''), enrollment_date
FROM dim_student` + where + `
ORDER BY student_number`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query students: %w", err)
	}
	defer rows.Close()

	var out []warehouse.Student
	for rows.Next() {
		var s warehouse.Student
		var enrolled *time.Time
		if err := rows.Scan(&s.StudentKey, &s.Status, &s.DepartmentKey, &enrolled); err != nil {
			return nil, fmt.Errorf("postgres: scan student: %w", err)
		}
		if enrolled != nil {
			s.EnrollmentDate = enrolled.UTC()
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query students: %w", err)
	}
	return out, nil
}

func (r *Repo) QueryCourses(ctx context.Context, f warehouse.Filter) ([]warehouse.Course, error) {
	where, args := whereClause(f, "", "course_code", "department_code", "")
	q := `
SELECT course_code, COALESCE(course_name, ''), COALESCE(department_code, ''), COALESCE(credits, 0)
FROM dim_course` + where + `
ORDER BY course_code`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query courses: %w", err)
	}
	defer rows.Close()

	var out []warehouse.Course
	for rows.Next() {
		var c warehouse.Course
		if err := rows.Scan(&c.CourseKey, &c.CourseName, &c.DepartmentKey, &c.Credits); err != nil {
			return nil, fmt.Errorf("postgres: scan course: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query courses: %w", err)
	}
	return out, nil
}
