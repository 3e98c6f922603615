package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RowHash computes a deterministic SHA-256 hash over a row's values, keyed by
// field name. It produces a stable, always-non-null dedupe key for fact rows,
// which sidesteps UNIQUE/ON CONFLICT surprises when natural-key columns can
// be NULL (Postgres treats NULLs as distinct for UNIQUE constraints).
//
// Canonicalization:
//   - "name=value" components joined by ASCII Unit Separator (0x1f).
//   - Missing/nil values encode as a single NUL byte so missing differs from
//     empty string.
//   - time.Time encodes as RFC3339Nano in UTC.
//
// Result is a lowercase hex string of length 64.
func RowHash(columns []string, values []any) string {
	var b strings.Builder
	b.Grow(len(columns) * 20)

	for i, name := range columns {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(name)
		b.WriteByte('=')

		var v any
		if i < len(values) {
			v = values[i]
		}
		appendCanonicalValue(&b, v)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// appendCanonicalValue appends a stable representation of v, avoiding
// fmt.Sprint for common types.
func appendCanonicalValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('\x00')
	case string:
		if HasEdgeSpace(t) {
			b.WriteString(strings.TrimSpace(t))
		} else {
			b.WriteString(t)
		}
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case time.Time:
		tt := t
		if !tt.IsZero() {
			tt = tt.UTC()
		}
		b.WriteString(tt.Format(time.RFC3339Nano))
	default:
		b.WriteString(fmt.Sprint(t))
	}
}
