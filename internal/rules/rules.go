// Package rules implements the declarative per-field validation engine.
// A RuleSet is immutable configuration loaded once per job; Evaluate decides
// pass/fail per row and never aborts on malformed input; malformed input is
// itself a validation failure with a descriptive reason.
package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"eduetl/internal/config"
	"eduetl/internal/schema"
	"eduetl/internal/transform"
)

// RuleType enumerates the supported constraint kinds.
type RuleType string

const (
	RuleRequired RuleType = "required"
	RuleTypeOf   RuleType = "type"
	RuleRange    RuleType = "range"
	RulePattern  RuleType = "pattern"
	RuleEnum     RuleType = "enum"
	RuleUnique   RuleType = "unique"
)

// Rule is one declarative constraint on one field.
type Rule struct {
	FieldName    string
	Type         RuleType
	Parameters   config.Options
	ErrorMessage string

	re *regexp.Regexp // compiled pattern, if any
}

// FieldError is one validation failure: which field, which rule, and a
// human-readable message.
type FieldError struct {
	Field   string
	Rule    RuleType
	Message string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s: %s", e.Field, e.Rule, e.Message)
}

// Seen tracks business keys already observed within one job run, backing
// unique rules. Scoped to the job, not the warehouse.
type Seen struct {
	m map[string]map[string]struct{}
}

func NewSeen() *Seen {
	return &Seen{m: make(map[string]map[string]struct{})}
}

// Observe records field=value and reports whether it was seen before.
func (s *Seen) Observe(field, value string) bool {
	fm := s.m[field]
	if fm == nil {
		fm = make(map[string]struct{})
		s.m[field] = fm
	}
	if _, dup := fm[value]; dup {
		return true
	}
	fm[value] = struct{}{}
	return false
}

// RuleSet is the ordered rule collection for one data type. Evaluation order
// is fixed: required first (a missing required field suppresses the field's
// remaining checks to avoid redundant error noise), then type, then
// range/pattern/enum, then unique.
type RuleSet struct {
	dataType string
	columns  []string
	fields   []schema.Field
	rules    []Rule
	validate *validator.Validate
}

// ForDataType builds the builtin RuleSet for a data type, optionally
// extended with rules from the job config. Unknown data types error.
func ForDataType(dataType string, extra []config.Rule) (*RuleSet, error) {
	fields := schema.Fields(dataType)
	if fields == nil {
		return nil, fmt.Errorf("rules: unknown data type %q", dataType)
	}

	s := &RuleSet{
		dataType: dataType,
		columns:  schema.Columns(dataType),
		fields:   fields,
		validate: validator.New(),
	}

	s.addContractRules()
	s.addBuiltinRules()

	for _, r := range extra {
		rule := Rule{
			FieldName:    r.FieldName,
			Type:         RuleType(r.RuleType),
			Parameters:   r.Parameters,
			ErrorMessage: r.ErrorMessage,
		}
		if p := rule.Parameters.String("pattern", ""); p != "" {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("rules: %s: bad pattern %q: %w", r.FieldName, p, err)
			}
			rule.re = re
		}
		s.rules = append(s.rules, rule)
	}

	s.sortRules()
	return s, nil
}

// addContractRules derives required and type rules from the field contract.
func (s *RuleSet) addContractRules() {
	for _, f := range s.fields {
		if f.Required {
			s.rules = append(s.rules, Rule{FieldName: f.Name, Type: RuleRequired})
		}
		if f.Kind != schema.KindString {
			s.rules = append(s.rules, Rule{
				FieldName:  f.Name,
				Type:       RuleTypeOf,
				Parameters: config.Options{"kind": string(f.Kind)},
			})
		}
	}
}

// addBuiltinRules adds the per-data-type constraints carried over from the
// institutional rule catalog.
func (s *RuleSet) addBuiltinRules() {
	switch s.dataType {
	case "student":
		s.rules = append(s.rules,
			Rule{FieldName: "email", Type: RulePattern, Parameters: config.Options{"format": "email"}},
			Rule{FieldName: "gpa", Type: RuleRange, Parameters: config.Options{"min": 0.0, "max": 4.0}},
			Rule{FieldName: "status", Type: RuleEnum, Parameters: config.Options{
				"values": []string{"active", "graduated", "dropped", "suspended"},
			}},
			Rule{FieldName: "student_number", Type: RuleUnique},
		)
	case "course":
		s.rules = append(s.rules,
			Rule{FieldName: "credits", Type: RuleRange, Parameters: config.Options{"min": 1.0, "max": 6.0}},
			Rule{FieldName: "level", Type: RuleEnum, Parameters: config.Options{
				"values": []string{"undergraduate", "graduate", "doctorate"},
			}},
			Rule{FieldName: "course_code", Type: RuleUnique},
		)
	case "performance":
		s.rules = append(s.rules,
			Rule{FieldName: "grade_points", Type: RuleRange, Parameters: config.Options{"min": 0.0, "max": 4.0}},
			Rule{FieldName: "attendance_percentage", Type: RuleRange, Parameters: config.Options{"min": 0.0, "max": 100.0}},
		)
	case "feedback":
		s.rules = append(s.rules,
			Rule{FieldName: "rating", Type: RuleRange, Parameters: config.Options{"min": 1.0, "max": 5.0}},
		)
	}
}

// sortRules orders rules by evaluation phase while keeping the declared
// order within a phase stable.
func (s *RuleSet) sortRules() {
	phase := func(t RuleType) int {
		switch t {
		case RuleRequired:
			return 0
		case RuleTypeOf:
			return 1
		case RuleRange, RulePattern, RuleEnum:
			return 2
		case RuleUnique:
			return 3
		}
		return 4
	}
	ordered := make([]Rule, 0, len(s.rules))
	for p := 0; p <= 4; p++ {
		for _, r := range s.rules {
			if phase(r.Type) == p {
				ordered = append(ordered, r)
			}
		}
	}
	s.rules = ordered
}

// Rules returns the ordered rule list (for the list-rules operation).
func (s *RuleSet) Rules() []Rule { return s.rules }

// Columns returns the positional layout rows must follow.
func (s *RuleSet) Columns() []string { return s.columns }

// DataType returns the rule set's data type.
func (s *RuleSet) DataType() string { return s.dataType }

// Evaluate checks one row against the full rule set and returns the ordered
// error list; an empty list means the row is valid. seen may be nil when
// unique rules should be skipped (validate-only runs still pass one so
// reports are deterministic).
func (s *RuleSet) Evaluate(r *transform.Row, seen *Seen) []FieldError {
	var errs []FieldError
	var suppressed map[string]bool

	for _, rule := range s.rules {
		i := schema.IndexOf(s.columns, rule.FieldName)
		if i < 0 || i >= len(r.V) {
			continue
		}
		if suppressed[rule.FieldName] && rule.Type != RuleRequired {
			continue
		}
		v := r.V[i]

		switch rule.Type {
		case RuleRequired:
			if isMissing(v) {
				errs = append(errs, fieldErr(rule, "%s is required", rule.FieldName))
				if suppressed == nil {
					suppressed = make(map[string]bool)
				}
				suppressed[rule.FieldName] = true
			}

		case RuleTypeOf:
			if isMissing(v) {
				continue
			}
			want := schema.Kind(rule.Parameters.String("kind", string(schema.KindString)))
			if got := schema.KindOf(v); got != want {
				errs = append(errs, fieldErr(rule, "%s: expected %s, got %q", rule.FieldName, want, rawString(v)))
			}

		case RuleRange:
			n, ok := asNumber(v)
			if !ok {
				continue // missing or non-numeric; type rule reports the latter
			}
			min := rule.Parameters.Float("min", 0)
			max := rule.Parameters.Float("max", 0)
			if n < min || n > max {
				errs = append(errs, fieldErr(rule, "%s: %v out of range [%v, %v]", rule.FieldName, n, min, max))
			}

		case RulePattern:
			sv, ok := v.(string)
			if !ok {
				continue
			}
			if format := rule.Parameters.String("format", ""); format != "" {
				if err := s.validate.Var(sv, format); err != nil {
					errs = append(errs, fieldErr(rule, "%s: %q is not a valid %s", rule.FieldName, sv, format))
				}
				continue
			}
			if rule.re != nil && !rule.re.MatchString(sv) {
				errs = append(errs, fieldErr(rule, "%s: %q does not match pattern", rule.FieldName, sv))
			}

		case RuleEnum:
			if isMissing(v) {
				continue
			}
			sv := rawString(v)
			allowed := rule.Parameters.StringSlice("values")
			found := false
			for _, a := range allowed {
				if strings.EqualFold(a, sv) {
					found = true
					break
				}
			}
			if !found {
				errs = append(errs, fieldErr(rule, "%s: %q is not one of %v", rule.FieldName, sv, allowed))
			}

		case RuleUnique:
			if seen == nil || isMissing(v) {
				continue
			}
			key := rawString(v)
			if seen.Observe(rule.FieldName, key) {
				errs = append(errs, fieldErr(rule, "%s: duplicate value %q in this job", rule.FieldName, key))
			}
		}
	}

	return errs
}

func fieldErr(rule Rule, format string, a ...any) FieldError {
	msg := rule.ErrorMessage
	if msg == "" {
		msg = fmt.Sprintf(format, a...)
	}
	return FieldError{Field: rule.FieldName, Rule: rule.Type, Message: msg}
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	}
	return 0, false
}

func rawString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(schema.DateLayout)
	default:
		return fmt.Sprint(t)
	}
}
