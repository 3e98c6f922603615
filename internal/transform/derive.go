package transform

import (
	"fmt"
	"time"
)

// LetterGrade maps grade points on the 4.0 scale to a letter grade.
func LetterGrade(gradePoints float64) string {
	switch {
	case gradePoints >= 3.7:
		return "A"
	case gradePoints >= 3.3:
		return "A-"
	case gradePoints >= 3.0:
		return "B+"
	case gradePoints >= 2.7:
		return "B"
	case gradePoints >= 2.3:
		return "B-"
	case gradePoints >= 2.0:
		return "C+"
	case gradePoints >= 1.7:
		return "C"
	case gradePoints >= 1.3:
		return "C-"
	case gradePoints >= 1.0:
		return "D"
	default:
		return "F"
	}
}

// IsPass reports whether gradePoints meets the configured passing threshold.
func IsPass(gradePoints, threshold float64) bool {
	return gradePoints >= threshold
}

// Semester returns the academic term for a date: Jan-May Spring, Jun-Aug
// Summer, Sep-Dec Fall.
func Semester(t time.Time) string {
	switch m := t.Month(); {
	case m <= time.May:
		return "Spring"
	case m <= time.August:
		return "Summer"
	default:
		return "Fall"
	}
}

// AcademicYear returns the "2024-2025" style academic year string. The year
// rolls in August.
func AcademicYear(t time.Time) string {
	y := t.Year()
	if t.Month() >= time.August {
		return fmt.Sprintf("%d-%d", y, y+1)
	}
	return fmt.Sprintf("%d-%d", y-1, y)
}

// DateKey formats a date as the time dimension's business key (YYYY-MM-DD).
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
