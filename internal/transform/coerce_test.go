package transform

import (
	"testing"
	"time"

	"eduetl/internal/schema"
)

func TestHasEdgeSpace(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"clean", false},
		{"inner space", false},
		{" leading", true},
		{"trailing ", true},
		{"\ttab", true},
		{"line\n", true},
	}
	for _, c := range cases {
		if got := HasEdgeSpace(c.in); got != c.want {
			t.Errorf("HasEdgeSpace(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCoerceRowKinds(t *testing.T) {
	fields := []schema.Field{
		{Name: "name", Kind: schema.KindString},
		{Name: "score", Kind: schema.KindNumber},
		{Name: "when", Kind: schema.KindDate},
		{Name: "flag", Kind: schema.KindBool},
	}
	r := GetRow(4)
	defer r.Free()
	r.V[0] = "  Ada "
	r.V[1] = "3.5"
	r.V[2] = "2024-05-01"
	r.V[3] = "TRUE"

	CoerceRow(fields, r, "")

	if r.V[0] != "Ada" {
		t.Errorf("string = %v, want trimmed Ada", r.V[0])
	}
	if r.V[1] != 3.5 {
		t.Errorf("number = %v, want 3.5", r.V[1])
	}
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if d, ok := r.V[2].(time.Time); !ok || !d.Equal(want) {
		t.Errorf("date = %v, want %v", r.V[2], want)
	}
	if r.V[3] != true {
		t.Errorf("bool = %v, want true", r.V[3])
	}
}

func TestCoerceRowEmptyBecomesNil(t *testing.T) {
	fields := []schema.Field{
		{Name: "a", Kind: schema.KindString},
		{Name: "b", Kind: schema.KindNumber},
	}
	r := GetRow(2)
	defer r.Free()
	r.V[0] = "   "
	r.V[1] = ""

	CoerceRow(fields, r, "")

	if r.V[0] != nil || r.V[1] != nil {
		t.Errorf("empty values = %v, %v, want nil, nil", r.V[0], r.V[1])
	}
}

func TestCoerceRowKeepsUnparseableRaw(t *testing.T) {
	fields := []schema.Field{
		{Name: "score", Kind: schema.KindNumber},
		{Name: "when", Kind: schema.KindDate},
	}
	r := GetRow(2)
	defer r.Free()
	r.V[0] = "ninety"
	r.V[1] = "yesterday"

	CoerceRow(fields, r, "")

	// Bad values stay as their raw text so the type rule can quote them.
	if r.V[0] != "ninety" {
		t.Errorf("number = %v, want raw string", r.V[0])
	}
	if r.V[1] != "yesterday" {
		t.Errorf("date = %v, want raw string", r.V[1])
	}
}

func TestCoerceRowCustomDateLayout(t *testing.T) {
	fields := []schema.Field{{Name: "when", Kind: schema.KindDate}}
	r := GetRow(1)
	defer r.Free()
	r.V[0] = "05/01/2024"

	CoerceRow(fields, r, "01/02/2006")

	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if d, ok := r.V[0].(time.Time); !ok || !d.Equal(want) {
		t.Errorf("date = %v, want %v", r.V[0], want)
	}
}

func TestCoerceRowSkipsTypedValues(t *testing.T) {
	fields := []schema.Field{{Name: "score", Kind: schema.KindNumber}}
	r := GetRow(1)
	defer r.Free()
	r.V[0] = 2.5

	CoerceRow(fields, r, "")

	if r.V[0] != 2.5 {
		t.Errorf("already typed value changed: %v", r.V[0])
	}
}
