package transform

import (
	"fmt"
	"strings"
	"time"

	"eduetl/internal/schema"
	"eduetl/internal/warehouse"
)

// DimensionUpsert is one dimension write produced from a source row.
// Columns always includes KeyColumn.
type DimensionUpsert struct {
	Table     string
	KeyColumn string
	Columns   []string
	Values    []any
}

// Key returns the business-key value of the upsert.
func (d DimensionUpsert) Key() string {
	for i, c := range d.Columns {
		if c == d.KeyColumn {
			if s, ok := d.Values[i].(string); ok {
				return s
			}
			if t, ok := d.Values[i].(time.Time); ok {
				return DateKey(t)
			}
		}
	}
	return ""
}

// DimRef marks a fact column that must be rewritten from a dimension
// business key to its surrogate id before the insert.
type DimRef struct {
	ColIdx int
	Table  string
	Key    string
}

// FactInsert is one fact row produced from a source row. Values at DimRef
// positions start nil and are filled in when the orchestrator resolves
// surrogate keys for the batch.
type FactInsert struct {
	Table         string
	Columns       []string
	Values        []any
	Refs          []DimRef
	DedupeColumns []string
}

// RowOps is the full set of warehouse writes for one validated row.
// Dimensions are ordered so that within a batch every fact reference
// resolves to a dimension written by the same or an earlier row.
type RowOps struct {
	Dims  []DimensionUpsert
	Facts []FactInsert
}

// Mapper maps validated rows of one data type into dimensional operations.
// It is pure: all state is fixed at construction, so one Mapper is safe to
// share across calls within a job.
type Mapper struct {
	dataType string
	columns  []string
	fields   []schema.Field
	passing  float64
	dedupe   bool
	idx      map[string]int
}

// NewMapper builds a Mapper for a data type. naturalKeyDedupe controls
// whether fact inserts carry row_hash as a dedupe conflict column.
func NewMapper(dataType string, passingThreshold float64, naturalKeyDedupe bool) (*Mapper, error) {
	fields := schema.Fields(dataType)
	if fields == nil {
		return nil, fmt.Errorf("transform: unknown data type %q", dataType)
	}
	columns := schema.Columns(dataType)
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return &Mapper{
		dataType: dataType,
		columns:  columns,
		fields:   fields,
		passing:  passingThreshold,
		dedupe:   naturalKeyDedupe,
		idx:      idx,
	}, nil
}

// Columns returns the positional column layout the mapper expects.
func (m *Mapper) Columns() []string { return m.columns }

// MapRow converts one validated row into dimension upserts and fact inserts.
// now supplies the fallback event date for rows without one. A transform
// error means a required derived value could not be computed; the caller
// counts it like a validation failure and continues with the batch.
func (m *Mapper) MapRow(r *Row, now time.Time) (RowOps, error) {
	switch m.dataType {
	case "student":
		return m.mapStudent(r)
	case "course":
		return m.mapCourse(r)
	case "performance":
		return m.mapPerformance(r, now)
	case "feedback":
		return m.mapFeedback(r, now)
	}
	return RowOps{}, fmt.Errorf("transform: unmapped data type %q", m.dataType)
}

func (m *Mapper) str(r *Row, col string) string {
	i, ok := m.idx[col]
	if !ok || i >= len(r.V) {
		return ""
	}
	s, _ := r.V[i].(string)
	if HasEdgeSpace(s) {
		s = strings.TrimSpace(s)
	}
	return s
}

func (m *Mapper) num(r *Row, col string) (float64, bool) {
	i, ok := m.idx[col]
	if !ok || i >= len(r.V) {
		return 0, false
	}
	n, ok := r.V[i].(float64)
	return n, ok
}

func (m *Mapper) date(r *Row, col string) (time.Time, bool) {
	i, ok := m.idx[col]
	if !ok || i >= len(r.V) {
		return time.Time{}, false
	}
	t, ok := r.V[i].(time.Time)
	return t, ok
}

func (m *Mapper) val(r *Row, col string) any {
	i, ok := m.idx[col]
	if !ok || i >= len(r.V) {
		return nil
	}
	return r.V[i]
}

func (m *Mapper) mapStudent(r *Row) (RowOps, error) {
	key := m.str(r, "student_number")
	if key == "" {
		return RowOps{}, fmt.Errorf("student_number is empty after trim")
	}

	var ops RowOps
	if dept := m.str(r, "department_code"); dept != "" {
		ops.Dims = append(ops.Dims, keyOnlyDim(warehouse.TableDimDepartment, dept))
	}

	status := m.str(r, "status")
	if status == "" {
		status = "active"
	}

	ops.Dims = append(ops.Dims, DimensionUpsert{
		Table:     warehouse.TableDimStudent,
		KeyColumn: "student_number",
		Columns: []string{
			"student_number", "first_name", "last_name", "email",
			"date_of_birth", "gender", "enrollment_date", "graduation_date",
			"status", "major", "gpa", "credits_completed", "department_code",
		},
		Values: []any{
			key, m.val(r, "first_name"), m.val(r, "last_name"), m.val(r, "email"),
			m.val(r, "date_of_birth"), m.val(r, "gender"), m.val(r, "enrollment_date"), m.val(r, "graduation_date"),
			status, m.val(r, "major"), m.val(r, "gpa"), m.val(r, "credits_completed"), m.val(r, "department_code"),
		},
	})
	return ops, nil
}

func (m *Mapper) mapCourse(r *Row) (RowOps, error) {
	key := m.str(r, "course_code")
	if key == "" {
		return RowOps{}, fmt.Errorf("course_code is empty after trim")
	}

	var ops RowOps
	if dept := m.str(r, "department_code"); dept != "" {
		ops.Dims = append(ops.Dims, keyOnlyDim(warehouse.TableDimDepartment, dept))
	}
	if instr := m.str(r, "instructor_number"); instr != "" {
		ops.Dims = append(ops.Dims, keyOnlyDim(warehouse.TableDimInstructor, instr))
	}

	ops.Dims = append(ops.Dims, DimensionUpsert{
		Table:     warehouse.TableDimCourse,
		KeyColumn: "course_code",
		Columns: []string{
			"course_code", "course_name", "course_description",
			"credits", "level", "department_code", "instructor_number",
		},
		Values: []any{
			key, m.val(r, "course_name"), m.val(r, "course_description"),
			m.val(r, "credits"), m.val(r, "level"), m.val(r, "department_code"), m.val(r, "instructor_number"),
		},
	})
	return ops, nil
}

func (m *Mapper) mapPerformance(r *Row, now time.Time) (RowOps, error) {
	student := m.str(r, "student_number")
	course := m.str(r, "course_code")
	if student == "" {
		return RowOps{}, fmt.Errorf("student_number is empty after trim")
	}
	if course == "" {
		return RowOps{}, fmt.Errorf("course_code is empty after trim")
	}
	gradePoints, ok := m.num(r, "grade_points")
	if !ok {
		return RowOps{}, fmt.Errorf("grade_points is not numeric")
	}

	eventDate, ok := m.date(r, "date")
	if !ok {
		// Rows without an event date land on the job run date. Documented
		// fallback so time bucketing never drops a fact.
		eventDate = now
	}
	eventDate = eventDate.UTC().Truncate(24 * time.Hour)

	var ops RowOps
	ops.Dims = append(ops.Dims,
		keyOnlyDim(warehouse.TableDimStudent, student),
		keyOnlyDim(warehouse.TableDimCourse, course),
		timeDim(eventDate),
	)

	instructor := m.str(r, "instructor_number")
	if instructor != "" {
		ops.Dims = append(ops.Dims, keyOnlyDim(warehouse.TableDimInstructor, instructor))
	}

	hash := RowHash(m.columns, r.V)
	dedupe := m.dedupeColumns()

	credits, _ := m.num(r, "credits_earned")

	perf := FactInsert{
		Table: warehouse.TablePerformanceFact,
		Columns: []string{
			"student_id", "course_id", "instructor_id", "time_id",
			"grade_points", "letter_grade", "credits_earned", "attendance_percentage",
			"assignment_score", "exam_score", "final_score", "is_pass", "row_hash",
		},
		Values: []any{
			nil, nil, nil, nil,
			gradePoints, LetterGrade(gradePoints), credits, m.val(r, "attendance_percentage"),
			m.val(r, "assignment_score"), m.val(r, "exam_score"), m.val(r, "final_score"),
			IsPass(gradePoints, m.passing), hash,
		},
		Refs: []DimRef{
			{ColIdx: 0, Table: warehouse.TableDimStudent, Key: student},
			{ColIdx: 1, Table: warehouse.TableDimCourse, Key: course},
			{ColIdx: 3, Table: warehouse.TableDimTime, Key: DateKey(eventDate)},
		},
		DedupeColumns: dedupe,
	}
	if instructor != "" {
		perf.Refs = append(perf.Refs, DimRef{ColIdx: 2, Table: warehouse.TableDimInstructor, Key: instructor})
	}
	ops.Facts = append(ops.Facts, perf)

	_, hasFinal := m.num(r, "final_score")
	ops.Facts = append(ops.Facts, FactInsert{
		Table: warehouse.TableEnrollmentFact,
		Columns: []string{
			"student_id", "course_id", "time_id",
			"enrollment_date", "is_completed", "is_dropped", "row_hash",
		},
		Values: []any{nil, nil, nil, DateKey(eventDate), hasFinal, false, hash},
		Refs: []DimRef{
			{ColIdx: 0, Table: warehouse.TableDimStudent, Key: student},
			{ColIdx: 1, Table: warehouse.TableDimCourse, Key: course},
			{ColIdx: 2, Table: warehouse.TableDimTime, Key: DateKey(eventDate)},
		},
		DedupeColumns: dedupe,
	})

	if att, ok := m.num(r, "attendance_percentage"); ok {
		ops.Facts = append(ops.Facts, FactInsert{
			Table: warehouse.TableAttendanceFact,
			Columns: []string{
				"student_id", "course_id", "time_id", "attendance_percentage", "row_hash",
			},
			Values: []any{nil, nil, nil, att, hash},
			Refs: []DimRef{
				{ColIdx: 0, Table: warehouse.TableDimStudent, Key: student},
				{ColIdx: 1, Table: warehouse.TableDimCourse, Key: course},
				{ColIdx: 2, Table: warehouse.TableDimTime, Key: DateKey(eventDate)},
			},
			DedupeColumns: dedupe,
		})
	}

	return ops, nil
}

func (m *Mapper) mapFeedback(r *Row, now time.Time) (RowOps, error) {
	student := m.str(r, "student_number")
	course := m.str(r, "course_code")
	if student == "" {
		return RowOps{}, fmt.Errorf("student_number is empty after trim")
	}
	if course == "" {
		return RowOps{}, fmt.Errorf("course_code is empty after trim")
	}
	rating, ok := m.num(r, "rating")
	if !ok {
		return RowOps{}, fmt.Errorf("rating is not numeric")
	}

	eventDate, ok := m.date(r, "date")
	if !ok {
		eventDate = now
	}
	eventDate = eventDate.UTC().Truncate(24 * time.Hour)

	var ops RowOps
	ops.Dims = append(ops.Dims,
		keyOnlyDim(warehouse.TableDimStudent, student),
		keyOnlyDim(warehouse.TableDimCourse, course),
		timeDim(eventDate),
	)

	ops.Facts = append(ops.Facts, FactInsert{
		Table: warehouse.TableFeedbackFact,
		Columns: []string{
			"student_id", "course_id", "time_id", "rating", "comments", "row_hash",
		},
		Values: []any{nil, nil, nil, rating, m.val(r, "comments"), RowHash(m.columns, r.V)},
		Refs: []DimRef{
			{ColIdx: 0, Table: warehouse.TableDimStudent, Key: student},
			{ColIdx: 1, Table: warehouse.TableDimCourse, Key: course},
			{ColIdx: 2, Table: warehouse.TableDimTime, Key: DateKey(eventDate)},
		},
		DedupeColumns: m.dedupeColumns(),
	})
	return ops, nil
}

func (m *Mapper) dedupeColumns() []string {
	if m.dedupe {
		return []string{"row_hash"}
	}
	return nil
}

// keyOnlyDim produces a business-key stub upsert for a referenced dimension.
// Existing rows keep their attributes; the backend's upsert only touches
// non-key columns when they are part of the write.
func keyOnlyDim(table, key string) DimensionUpsert {
	keyCol := warehouse.DimKeyColumn(table)
	return DimensionUpsert{
		Table:     table,
		KeyColumn: keyCol,
		Columns:   []string{keyCol},
		Values:    []any{key},
	}
}

// timeDim produces the fully-attributed calendar row for a date.
func timeDim(day time.Time) DimensionUpsert {
	quarter := (int(day.Month())-1)/3 + 1
	dow := int(day.Weekday())
	return DimensionUpsert{
		Table:     warehouse.TableDimTime,
		KeyColumn: "date",
		Columns: []string{
			"date", "year", "quarter", "month", "day",
			"day_of_week", "is_weekend", "semester", "academic_year",
		},
		Values: []any{
			DateKey(day), int64(day.Year()), int64(quarter), int64(day.Month()), int64(day.Day()),
			int64(dow), dow == 0 || dow == 6, Semester(day), AcademicYear(day),
		},
	}
}
