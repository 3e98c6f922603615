package warehouse

import (
	"fmt"
	"strings"
	"time"
)

// NormalizeKey converts a dimension business-key value to a canonical string
// form suitable for surrogate lookup maps (e.g. "STU001" or "2024-05-01").
//
// Backends must not assume a particular underlying type for keys; drivers
// return TEXT as string or []byte and dates as time.Time depending on the
// engine, and this helper keeps lookup maps consistent across all of them.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case time.Time:
		return t.UTC().Format("2006-01-02")
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
