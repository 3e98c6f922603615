package transform

import (
	"strconv"
	"strings"
	"time"

	"eduetl/internal/schema"
)

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace.
// Cheap pre-check so the hot path avoids TrimSpace on already-clean values.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	switch s[len(s)-1] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// CoerceRow converts raw string values in place to the kinds declared by the
// field contract. Coercion is best-effort: a value that cannot be converted
// is left as its raw string so the validator's type rule reports it with the
// original text, instead of this stage inventing a second error channel.
func CoerceRow(fields []schema.Field, r *Row, dateLayout string) {
	if dateLayout == "" {
		dateLayout = schema.DateLayout
	}
	for i, f := range fields {
		if i >= len(r.V) {
			break
		}
		v := r.V[i]
		s, ok := v.(string)
		if !ok {
			continue // nil or already typed
		}
		if HasEdgeSpace(s) {
			s = strings.TrimSpace(s)
		}
		if s == "" {
			r.V[i] = nil
			continue
		}
		switch f.Kind {
		case schema.KindNumber:
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				r.V[i] = n
			} else {
				r.V[i] = s
			}
		case schema.KindDate:
			if t, err := time.Parse(dateLayout, s); err == nil {
				r.V[i] = t
			} else {
				r.V[i] = s
			}
		case schema.KindBool:
			if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
				r.V[i] = b
			} else {
				r.V[i] = s
			}
		default:
			r.V[i] = s
		}
	}
}
