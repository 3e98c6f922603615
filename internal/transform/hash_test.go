package transform

import (
	"testing"
	"time"
)

func TestRowHashDeterministic(t *testing.T) {
	cols := []string{"student_number", "grade_points", "date"}
	when := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	a := RowHash(cols, []any{"S001", 3.5, when})
	b := RowHash(cols, []any{"S001", 3.5, when})
	if a != b {
		t.Errorf("same values hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}

	c := RowHash(cols, []any{"S001", 3.6, when})
	if a == c {
		t.Error("different grade_points produced the same hash")
	}
}

func TestRowHashNilDiffersFromEmpty(t *testing.T) {
	cols := []string{"comments"}
	if RowHash(cols, []any{nil}) == RowHash(cols, []any{""}) {
		t.Error("nil and empty string collide")
	}
}

func TestRowHashTrimsStrings(t *testing.T) {
	cols := []string{"student_number"}
	if RowHash(cols, []any{" S001 "}) != RowHash(cols, []any{"S001"}) {
		t.Error("edge whitespace should not change the hash")
	}
}

func TestRowHashNormalizesTimeZone(t *testing.T) {
	cols := []string{"date"}
	cest := time.FixedZone("CEST", 2*3600)
	local := time.Date(2024, 5, 1, 10, 30, 0, 0, cest)
	utc := local.UTC()

	if RowHash(cols, []any{local}) != RowHash(cols, []any{utc}) {
		t.Error("equal instants in different zones hashed differently")
	}
}
