// Package schema defines the closed set of value kinds a source field can
// take after coercion, and the canonical field contract for each data type.
// Rows are positional ([]any aligned to the contract's field order), so every
// stage agrees on indices instead of allocating a map per row.
package schema

import "time"

// Kind is the coerced type of one field value.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindDate    Kind = "date"
	KindBool    Kind = "bool"
	KindMissing Kind = "missing"
)

// KindOf classifies an already-coerced value. Raw parser output is always
// string or nil; transform.CoerceRow converts to these kinds.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindMissing
	case string:
		return KindString
	case float64, int64, int:
		return KindNumber
	case time.Time:
		return KindDate
	case bool:
		return KindBool
	default:
		return KindString
	}
}

// Field is one column of a data type's contract.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
}

// DateLayout is the wire format for date fields in source files.
const DateLayout = "2006-01-02"

var studentFields = []Field{
	{Name: "student_number", Kind: KindString, Required: true},
	{Name: "first_name", Kind: KindString, Required: true},
	{Name: "last_name", Kind: KindString, Required: true},
	{Name: "email", Kind: KindString, Required: true},
	{Name: "date_of_birth", Kind: KindDate},
	{Name: "gender", Kind: KindString},
	{Name: "enrollment_date", Kind: KindDate},
	{Name: "graduation_date", Kind: KindDate},
	{Name: "status", Kind: KindString},
	{Name: "major", Kind: KindString},
	{Name: "gpa", Kind: KindNumber},
	{Name: "credits_completed", Kind: KindNumber},
	{Name: "department_code", Kind: KindString},
}

var courseFields = []Field{
	{Name: "course_code", Kind: KindString, Required: true},
	{Name: "course_name", Kind: KindString, Required: true},
	{Name: "course_description", Kind: KindString},
	{Name: "credits", Kind: KindNumber, Required: true},
	{Name: "level", Kind: KindString},
	{Name: "department_code", Kind: KindString},
	{Name: "instructor_number", Kind: KindString},
}

var performanceFields = []Field{
	{Name: "student_number", Kind: KindString, Required: true},
	{Name: "course_code", Kind: KindString, Required: true},
	{Name: "instructor_number", Kind: KindString},
	{Name: "date", Kind: KindDate},
	{Name: "grade_points", Kind: KindNumber, Required: true},
	{Name: "credits_earned", Kind: KindNumber},
	{Name: "attendance_percentage", Kind: KindNumber},
	{Name: "assignment_score", Kind: KindNumber},
	{Name: "exam_score", Kind: KindNumber},
	{Name: "final_score", Kind: KindNumber},
}

var feedbackFields = []Field{
	{Name: "student_number", Kind: KindString, Required: true},
	{Name: "course_code", Kind: KindString, Required: true},
	{Name: "date", Kind: KindDate},
	{Name: "rating", Kind: KindNumber, Required: true},
	{Name: "comments", Kind: KindString},
}

// Fields returns the field contract for a data type
// (student|course|performance|feedback), or nil for unknown types.
func Fields(dataType string) []Field {
	switch dataType {
	case "student":
		return studentFields
	case "course":
		return courseFields
	case "performance":
		return performanceFields
	case "feedback":
		return feedbackFields
	}
	return nil
}

// Columns returns the canonical column names for a data type, in contract
// order. This is the positional layout every row in the pipeline follows.
func Columns(dataType string) []string {
	fields := Fields(dataType)
	if fields == nil {
		return nil
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

// IndexOf returns the position of name in columns, or -1.
func IndexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
