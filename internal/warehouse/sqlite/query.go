package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"eduetl/internal/warehouse"
)

func whereClause(f warehouse.Filter, studentCol, courseCol, deptCol, dateCol string) (string, []any) {
	var conds []string
	var args []any
	if f.StudentKey != "" && studentCol != "" {
		conds = append(conds, studentCol+" = ?")
		args = append(args, f.StudentKey)
	}
	if f.CourseKey != "" && courseCol != "" {
		conds = append(conds, courseCol+" = ?")
		args = append(args, f.CourseKey)
	}
	if f.DepartmentKey != "" && deptCol != "" {
		conds = append(conds, deptCol+" = ?")
		args = append(args, f.DepartmentKey)
	}
	if !f.From.IsZero() && dateCol != "" {
		conds = append(conds, dateCol+" >= ?")
		args = append(args, f.From.UTC().Format("2006-01-02"))
	}
	if !f.To.IsZero() && dateCol != "" {
		conds = append(conds, dateCol+" <= ?")
		args = append(args, f.To.UTC().Format("2006-01-02"))
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

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query performance facts: %w", err)
	}
	defer rows.Close()

	var out []warehouse.PerformanceFact
	for rows.Next() {
		var pf warehouse.PerformanceFact
		var date string
		if err := rows.Scan(&pf.StudentKey, &pf.CourseKey, &pf.DepartmentKey, &date,
			&pf.GradePoints, &pf.CreditsEarned, &pf.AttendancePct, &pf.FinalScore, &pf.IsPass); err != nil {
			return nil, fmt.Errorf("sqlite: scan performance fact: %w", err)
		}
		if pf.Date, err = time.ParseInLocation("2006-01-02", date, time.UTC); err != nil {
			return nil, fmt.Errorf("sqlite: performance fact date: %w", err)
		}
		out = append(out, pf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query performance facts: %w", err)
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

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query enrollment facts: %w", err)
	}
	defer rows.Close()

	var out []warehouse.EnrollmentFact
	for rows.Next() {
		var ef warehouse.EnrollmentFact
		var date string
		if err := rows.Scan(&ef.StudentKey, &ef.CourseKey, &date, &ef.IsCompleted, &ef.IsDropped); err != nil {
			return nil, fmt.Errorf("sqlite: scan enrollment fact: %w", err)
		}
		if ef.Date, err = time.ParseInLocation("2006-01-02", date, time.UTC); err != nil {
			return nil, fmt.Errorf("sqlite: enrollment fact date: %w", err)
		}
		out = append(out, ef)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query enrollment facts: %w", err)
	}
	return out, nil
}

func (r *Repo) QueryStudents(ctx context.Context, f warehouse.Filter) ([]warehouse.Student, error) {
	where, args := whereClause(f, "student_number", "", "department_code", "")
	q := `
SELECT student_number, COALESCE(status, ''), COALESCE(department_code, ''), enrollment_date
FROM dim_student` + where + `
ORDER BY student_number`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query students: %w", err)
	}
	defer rows.Close()

	var out []warehouse.Student
	for rows.Next() {
		var s warehouse.Student
		var enrolled sql.NullString
		if err := rows.Scan(&s.StudentKey, &s.Status, &s.DepartmentKey, &enrolled); err != nil {
			return nil, fmt.Errorf("sqlite: scan student: %w", err)
		}
		if enrolled.Valid && enrolled.String != "" {
			t, err := parseSQLiteTime(enrolled.String)
			if err != nil {
				return nil, fmt.Errorf("sqlite: student %s enrollment_date: %w", s.StudentKey, err)
			}
			s.EnrollmentDate = t.UTC()
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query students: %w", err)
	}
	return out, nil
}

func (r *Repo) QueryCourses(ctx context.Context, f warehouse.Filter) ([]warehouse.Course, error) {
	where, args := whereClause(f, "", "course_code", "department_code", "")
	q := `
SELECT course_code, COALESCE(course_name, ''), COALESCE(department_code, ''), COALESCE(credits, 0)
FROM dim_course` + where + `
ORDER BY course_code`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query courses: %w", err)
	}
	defer rows.Close()

	var out []warehouse.Course
	for rows.Next() {
		var c warehouse.Course
		if err := rows.Scan(&c.CourseKey, &c.CourseName, &c.DepartmentKey, &c.Credits); err != nil {
			return nil, fmt.Errorf("sqlite: scan course: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query courses: %w", err)
	}
	return out, nil
}
