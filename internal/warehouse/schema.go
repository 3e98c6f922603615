package warehouse

// Star-schema naming shared by the transformer, orchestrator and every
// storage backend. Dimension surrogate ids are integer identity columns;
// business keys carry UNIQUE constraints.

const (
	TableDimStudent    = "dim_student"
	TableDimCourse     = "dim_course"
	TableDimInstructor = "dim_instructor"
	TableDimDepartment = "dim_department"
	TableDimTime       = "dim_time"

	TablePerformanceFact = "performance_fact"
	TableEnrollmentFact  = "enrollment_fact"
	TableAttendanceFact  = "attendance_fact"
	TableFeedbackFact    = "feedback_fact"
)

// DimKeyColumn returns the business-key column of a dimension table.
func DimKeyColumn(table string) string {
	switch table {
	case TableDimStudent:
		return "student_number"
	case TableDimCourse:
		return "course_code"
	case TableDimInstructor:
		return "instructor_number"
	case TableDimDepartment:
		return "department_code"
	case TableDimTime:
		return "date"
	}
	return ""
}

// DimIDColumn returns the surrogate-key column of a dimension table.
func DimIDColumn(table string) string {
	switch table {
	case TableDimStudent:
		return "student_id"
	case TableDimCourse:
		return "course_id"
	case TableDimInstructor:
		return "instructor_id"
	case TableDimDepartment:
		return "department_id"
	case TableDimTime:
		return "time_id"
	}
	return ""
}

// DimensionTables lists every dimension table in upsert order. Dimensions
// are always written before facts within a batch so fact references resolve.
var DimensionTables = []string{
	TableDimDepartment,
	TableDimInstructor,
	TableDimStudent,
	TableDimCourse,
	TableDimTime,
}

// FactTables lists every fact table.
var FactTables = []string{
	TablePerformanceFact,
	TableEnrollmentFact,
	TableAttendanceFact,
	TableFeedbackFact,
}
