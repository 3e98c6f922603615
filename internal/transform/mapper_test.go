package transform

import (
	"testing"
	"time"

	"eduetl/internal/schema"
	"eduetl/internal/warehouse"
)

func rowFor(t *testing.T, dataType string, vals map[string]any) *Row {
	t.Helper()
	cols := schema.Columns(dataType)
	r := GetRow(len(cols))
	for i, c := range cols {
		r.V[i] = vals[c]
	}
	return r
}

func TestMapStudent(t *testing.T) {
	m, err := NewMapper("student", 1.0, false)
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	r := rowFor(t, "student", map[string]any{
		"student_number":  "S001",
		"first_name":      "Ada",
		"last_name":       "Lovelace",
		"email":           "ada@u.edu",
		"status":          "active",
		"gpa":             3.8,
		"department_code": "CS",
	})
	defer r.Free()

	ops, err := m.MapRow(r, time.Now())
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if len(ops.Facts) != 0 {
		t.Errorf("student rows produce no facts, got %d", len(ops.Facts))
	}
	if len(ops.Dims) != 2 {
		t.Fatalf("dims = %d, want department stub + student", len(ops.Dims))
	}
	if ops.Dims[0].Table != warehouse.TableDimDepartment || ops.Dims[0].Key() != "CS" {
		t.Errorf("dims[0] = %+v, want department stub CS", ops.Dims[0])
	}
	student := ops.Dims[1]
	if student.Table != warehouse.TableDimStudent || student.Key() != "S001" {
		t.Errorf("dims[1] = %+v", student)
	}
	if len(student.Columns) != len(student.Values) {
		t.Errorf("columns/values mismatch: %d vs %d", len(student.Columns), len(student.Values))
	}
}

func TestMapStudentDefaultsStatus(t *testing.T) {
	m, _ := NewMapper("student", 1.0, false)
	r := rowFor(t, "student", map[string]any{
		"student_number": "S002",
		"first_name":     "Alan",
		"last_name":      "Turing",
		"email":          "alan@u.edu",
	})
	defer r.Free()

	ops, err := m.MapRow(r, time.Now())
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	d := ops.Dims[len(ops.Dims)-1]
	i := schema.IndexOf(d.Columns, "status")
	if d.Values[i] != "active" {
		t.Errorf("default status = %v, want active", d.Values[i])
	}
}

func TestMapPerformance(t *testing.T) {
	m, err := NewMapper("performance", 1.0, true)
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	event := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	r := rowFor(t, "performance", map[string]any{
		"student_number":        "S001",
		"course_code":           "CS101",
		"instructor_number":     "I01",
		"date":                  event,
		"grade_points":          3.5,
		"credits_earned":        3.0,
		"attendance_percentage": 92.0,
		"final_score":           88.0,
	})
	defer r.Free()

	ops, err := m.MapRow(r, time.Now())
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	// Stubs for student, course, time and instructor.
	if len(ops.Dims) != 4 {
		t.Fatalf("dims = %d, want 4", len(ops.Dims))
	}
	var td *DimensionUpsert
	for i := range ops.Dims {
		if ops.Dims[i].Table == warehouse.TableDimTime {
			td = &ops.Dims[i]
		}
	}
	if td == nil {
		t.Fatal("no time dimension emitted")
	}
	if td.Key() != "2024-05-01" {
		t.Errorf("time key = %q, want 2024-05-01", td.Key())
	}
	di := schema.IndexOf(td.Columns, "date")
	if td.Values[di] != "2024-05-01" {
		t.Errorf("date value = %v, want the string key in every backend", td.Values[di])
	}
	si := schema.IndexOf(td.Columns, "semester")
	if td.Values[si] != "Spring" {
		t.Errorf("semester = %v, want Spring", td.Values[si])
	}

	// Performance, enrollment and attendance facts.
	if len(ops.Facts) != 3 {
		t.Fatalf("facts = %d, want 3", len(ops.Facts))
	}
	perf := ops.Facts[0]
	if perf.Table != warehouse.TablePerformanceFact {
		t.Errorf("facts[0].Table = %s", perf.Table)
	}
	li := schema.IndexOf(perf.Columns, "letter_grade")
	if perf.Values[li] != "A-" {
		t.Errorf("letter_grade = %v, want A-", perf.Values[li])
	}
	pi := schema.IndexOf(perf.Columns, "is_pass")
	if perf.Values[pi] != true {
		t.Errorf("is_pass = %v, want true", perf.Values[pi])
	}
	if len(perf.Refs) != 4 {
		t.Errorf("perf refs = %d, want 4 (instructor present)", len(perf.Refs))
	}
	for _, ref := range perf.Refs {
		if perf.Values[ref.ColIdx] != nil {
			t.Errorf("ref column %d pre-filled: %v", ref.ColIdx, perf.Values[ref.ColIdx])
		}
	}
	if len(perf.DedupeColumns) != 1 || perf.DedupeColumns[0] != "row_hash" {
		t.Errorf("dedupe columns = %v, want [row_hash]", perf.DedupeColumns)
	}

	enroll := ops.Facts[1]
	if enroll.Table != warehouse.TableEnrollmentFact {
		t.Errorf("facts[1].Table = %s", enroll.Table)
	}
	ei := schema.IndexOf(enroll.Columns, "enrollment_date")
	if enroll.Values[ei] != "2024-05-01" {
		t.Errorf("enrollment_date = %v, want string date key", enroll.Values[ei])
	}
	ci := schema.IndexOf(enroll.Columns, "is_completed")
	if enroll.Values[ci] != true {
		t.Errorf("is_completed = %v, want true (final score present)", enroll.Values[ci])
	}

	if ops.Facts[2].Table != warehouse.TableAttendanceFact {
		t.Errorf("facts[2].Table = %s", ops.Facts[2].Table)
	}
}

func TestMapPerformanceAppendMode(t *testing.T) {
	m, _ := NewMapper("performance", 1.0, false)
	r := rowFor(t, "performance", map[string]any{
		"student_number": "S001",
		"course_code":    "CS101",
		"grade_points":   2.0,
	})
	defer r.Free()

	ops, err := m.MapRow(r, time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	for _, f := range ops.Facts {
		if f.DedupeColumns != nil {
			t.Errorf("%s carries dedupe columns in append mode: %v", f.Table, f.DedupeColumns)
		}
	}
	// No attendance value, no attendance fact.
	if len(ops.Facts) != 2 {
		t.Errorf("facts = %d, want 2", len(ops.Facts))
	}
	// Missing event date falls back to the run date, truncated to the day.
	for _, ref := range ops.Facts[0].Refs {
		if ref.Table == warehouse.TableDimTime && ref.Key != "2024-05-02" {
			t.Errorf("time key = %q, want run date", ref.Key)
		}
	}
}

func TestMapPerformanceTransformErrors(t *testing.T) {
	m, _ := NewMapper("performance", 1.0, false)

	noStudent := rowFor(t, "performance", map[string]any{
		"course_code":  "CS101",
		"grade_points": 2.0,
	})
	defer noStudent.Free()
	if _, err := m.MapRow(noStudent, time.Now()); err == nil {
		t.Error("missing student_number accepted")
	}

	badGrade := rowFor(t, "performance", map[string]any{
		"student_number": "S001",
		"course_code":    "CS101",
		"grade_points":   "withdrawn",
	})
	defer badGrade.Free()
	if _, err := m.MapRow(badGrade, time.Now()); err == nil {
		t.Error("non-numeric grade_points accepted")
	}
}

func TestMapFeedback(t *testing.T) {
	m, _ := NewMapper("feedback", 1.0, false)
	r := rowFor(t, "feedback", map[string]any{
		"student_number": "S001",
		"course_code":    "CS101",
		"date":           time.Date(2024, 10, 3, 0, 0, 0, 0, time.UTC),
		"rating":         4.0,
		"comments":       "clear lectures",
	})
	defer r.Free()

	ops, err := m.MapRow(r, time.Now())
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if len(ops.Facts) != 1 || ops.Facts[0].Table != warehouse.TableFeedbackFact {
		t.Fatalf("facts = %+v", ops.Facts)
	}
	ri := schema.IndexOf(ops.Facts[0].Columns, "rating")
	if ops.Facts[0].Values[ri] != 4.0 {
		t.Errorf("rating = %v, want 4.0", ops.Facts[0].Values[ri])
	}
}

func TestLetterGradeBoundaries(t *testing.T) {
	cases := []struct {
		pts  float64
		want string
	}{
		{4.0, "A"}, {3.7, "A"}, {3.69, "A-"}, {3.0, "B+"},
		{2.0, "C+"}, {1.0, "D"}, {0.9, "F"}, {0, "F"},
	}
	for _, c := range cases {
		if got := LetterGrade(c.pts); got != c.want {
			t.Errorf("LetterGrade(%v) = %s, want %s", c.pts, got, c.want)
		}
	}
}

func TestSemesterAndAcademicYear(t *testing.T) {
	spring := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	summer := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	fall := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

	if got := Semester(spring); got != "Spring" {
		t.Errorf("Semester(march) = %s", got)
	}
	if got := Semester(summer); got != "Summer" {
		t.Errorf("Semester(july) = %s", got)
	}
	if got := Semester(fall); got != "Fall" {
		t.Errorf("Semester(october) = %s", got)
	}

	if got := AcademicYear(fall); got != "2024-2025" {
		t.Errorf("AcademicYear(fall) = %s", got)
	}
	if got := AcademicYear(spring); got != "2023-2024" {
		t.Errorf("AcademicYear(spring) = %s", got)
	}
}
