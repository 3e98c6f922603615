package rules

import (
	"testing"
	"time"

	"eduetl/internal/config"
	"eduetl/internal/schema"
	"eduetl/internal/transform"
)

func studentRow(t *testing.T, overrides map[string]any) *transform.Row {
	t.Helper()
	cols := schema.Columns("student")
	r := transform.GetRow(len(cols))
	base := map[string]any{
		"student_number":  "S001",
		"first_name":      "Ada",
		"last_name":       "Lovelace",
		"email":           "ada@university.edu",
		"enrollment_date": time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC),
		"status":          "active",
		"gpa":             3.8,
	}
	for k, v := range overrides {
		base[k] = v
	}
	for i, c := range cols {
		r.V[i] = base[c]
	}
	return r
}

func fields(errs []FieldError) map[string]RuleType {
	out := make(map[string]RuleType, len(errs))
	for _, e := range errs {
		out[e.Field] = e.Rule
	}
	return out
}

func TestEvaluateValidRow(t *testing.T) {
	s, err := ForDataType("student", nil)
	if err != nil {
		t.Fatalf("rule set: %v", err)
	}
	r := studentRow(t, nil)
	defer r.Free()

	if errs := s.Evaluate(r, NewSeen()); len(errs) != 0 {
		t.Errorf("valid row produced errors: %v", errs)
	}
}

func TestEvaluateRequired(t *testing.T) {
	s, _ := ForDataType("student", nil)
	r := studentRow(t, map[string]any{"email": nil})
	defer r.Free()

	got := fields(s.Evaluate(r, NewSeen()))
	if got["email"] != RuleRequired {
		t.Errorf("errors = %v, want required on email", got)
	}
}

// A missing required field reports once, not once per rule bound to it.
func TestRequiredSuppressesDownstreamRules(t *testing.T) {
	s, _ := ForDataType("student", nil)
	r := studentRow(t, map[string]any{"email": "   "})
	defer r.Free()

	errs := s.Evaluate(r, NewSeen())
	var emailErrs int
	for _, e := range errs {
		if e.Field == "email" {
			emailErrs++
		}
	}
	if emailErrs != 1 {
		t.Errorf("email errors = %d, want 1: %v", emailErrs, errs)
	}
}

func TestEvaluateRange(t *testing.T) {
	s, _ := ForDataType("student", nil)
	r := studentRow(t, map[string]any{"gpa": 4.5})
	defer r.Free()

	got := fields(s.Evaluate(r, NewSeen()))
	if got["gpa"] != RuleRange {
		t.Errorf("errors = %v, want range on gpa", got)
	}
}

func TestEvaluatePatternEmail(t *testing.T) {
	s, _ := ForDataType("student", nil)
	r := studentRow(t, map[string]any{"email": "not-an-email"})
	defer r.Free()

	got := fields(s.Evaluate(r, NewSeen()))
	if got["email"] != RulePattern {
		t.Errorf("errors = %v, want pattern on email", got)
	}
}

func TestEvaluateEnumCaseInsensitive(t *testing.T) {
	s, _ := ForDataType("student", nil)

	ok := studentRow(t, map[string]any{"status": "ACTIVE"})
	defer ok.Free()
	if errs := s.Evaluate(ok, NewSeen()); len(errs) != 0 {
		t.Errorf("uppercase enum value rejected: %v", errs)
	}

	bad := studentRow(t, map[string]any{"status": "retired"})
	defer bad.Free()
	got := fields(s.Evaluate(bad, NewSeen()))
	if got["status"] != RuleEnum {
		t.Errorf("errors = %v, want enum on status", got)
	}
}

func TestEvaluateUniqueAcrossRows(t *testing.T) {
	s, _ := ForDataType("student", nil)
	seen := NewSeen()

	first := studentRow(t, nil)
	defer first.Free()
	if errs := s.Evaluate(first, seen); len(errs) != 0 {
		t.Fatalf("first occurrence flagged: %v", errs)
	}

	dup := studentRow(t, map[string]any{"email": "other@university.edu"})
	defer dup.Free()
	got := fields(s.Evaluate(dup, seen))
	if got["student_number"] != RuleUnique {
		t.Errorf("errors = %v, want unique on student_number", got)
	}

	// nil seen disables unique checks entirely.
	again := studentRow(t, nil)
	defer again.Free()
	if errs := s.Evaluate(again, nil); len(errs) != 0 {
		t.Errorf("unique fired with nil seen: %v", errs)
	}
}

func TestEvaluateTypeMismatch(t *testing.T) {
	s, _ := ForDataType("student", nil)
	// Coercion leaves unparseable numbers as the raw string.
	r := studentRow(t, map[string]any{"gpa": "three point eight"})
	defer r.Free()

	got := fields(s.Evaluate(r, NewSeen()))
	if got["gpa"] != RuleTypeOf {
		t.Errorf("errors = %v, want type on gpa", got)
	}
}

func TestExtraConfigRules(t *testing.T) {
	extra := []config.Rule{
		{FieldName: "major", RuleType: "pattern", Parameters: config.Options{"pattern": "^[A-Z]{2,4}$"}},
	}
	s, err := ForDataType("student", extra)
	if err != nil {
		t.Fatalf("rule set: %v", err)
	}

	bad := studentRow(t, map[string]any{"major": "computer science"})
	defer bad.Free()
	got := fields(s.Evaluate(bad, NewSeen()))
	if got["major"] != RulePattern {
		t.Errorf("errors = %v, want pattern on major", got)
	}

	ok := studentRow(t, map[string]any{"major": "CS"})
	defer ok.Free()
	if errs := s.Evaluate(ok, NewSeen()); len(errs) != 0 {
		t.Errorf("valid major rejected: %v", errs)
	}
}

func TestExtraRuleCustomMessage(t *testing.T) {
	extra := []config.Rule{
		{FieldName: "gpa", RuleType: "range", Parameters: config.Options{"min": 2.0, "max": 4.0}, ErrorMessage: "gpa below academic floor"},
	}
	s, err := ForDataType("student", extra)
	if err != nil {
		t.Fatalf("rule set: %v", err)
	}
	r := studentRow(t, map[string]any{"gpa": 1.5})
	defer r.Free()

	errs := s.Evaluate(r, NewSeen())
	var found bool
	for _, e := range errs {
		if e.Message == "gpa below academic floor" {
			found = true
		}
	}
	if !found {
		t.Errorf("custom message not used: %v", errs)
	}
}

func TestForDataTypeUnknown(t *testing.T) {
	if _, err := ForDataType("payroll", nil); err == nil {
		t.Fatal("unknown data type accepted")
	}
}

func TestRuleOrdering(t *testing.T) {
	s, _ := ForDataType("student", nil)
	phase := func(rt RuleType) int {
		switch rt {
		case RuleRequired:
			return 0
		case RuleTypeOf:
			return 1
		case RuleUnique:
			return 3
		default:
			return 2
		}
	}
	list := s.Rules()
	for i := 1; i < len(list); i++ {
		if phase(list[i].Type) < phase(list[i-1].Type) {
			t.Fatalf("rules out of phase order at %d: %s before %s", i, list[i-1].Type, list[i].Type)
		}
	}
}
