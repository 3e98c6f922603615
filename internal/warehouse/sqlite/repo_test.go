package sqlite

import (
	"strings"
	"testing"
	"time"
)

func TestBuildUpsertSQL(t *testing.T) {
	sql, args := buildUpsertSQL("dim_course", "course_code",
		[]string{"course_code", "course_name"},
		[][]any{{"CS101", "Algorithms"}})

	want := `INSERT INTO dim_course ("course_code", "course_name") ` +
		`VALUES (?, ?) ` +
		`ON CONFLICT ("course_code") DO UPDATE SET "course_name" = excluded."course_name";`
	if sql != want {
		t.Errorf("sql:\n got %s\nwant %s", sql, want)
	}
	if len(args) != 2 || args[1] != "Algorithms" {
		t.Errorf("args = %v", args)
	}
}

func TestBuildUpsertSQLKeyOnly(t *testing.T) {
	sql, _ := buildUpsertSQL("dim_department", "department_code",
		[]string{"department_code"}, [][]any{{"CS"}})
	if !strings.HasSuffix(sql, "DO NOTHING;") {
		t.Errorf("key-only upsert must degrade to DO NOTHING: %s", sql)
	}
}

func TestBuildInsertSQLNormalizesTimes(t *testing.T) {
	loaded := time.Date(2024, 5, 1, 10, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	_, args := buildInsertSQL("performance_fact",
		[]string{"student_id", "loaded_at"},
		[][]any{{int64(1), loaded}}, nil)

	s, ok := args[1].(string)
	if !ok {
		t.Fatalf("time arg not normalized to string: %T", args[1])
	}
	if s != "2024-05-01T08:30:00Z" {
		t.Errorf("normalized time = %q, want UTC RFC3339", s)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 30, 0, 123456789, time.UTC)
	back, err := parseSQLiteTime(formatSQLiteTime(ts))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !back.Equal(ts) {
		t.Errorf("round trip: %v != %v", back, ts)
	}
}

// sqlite itself writes a handful of shapes depending on how the value got
// there; we accept all of them, taking zoneless strings as UTC.
func TestParseSQLiteTimeLayouts(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01T10:30:00Z", time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)},
		{"2024-05-01 10:30:00", time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)},
		{"2024-05-01 10:30:00.5", time.Date(2024, 5, 1, 10, 30, 0, 500000000, time.UTC)},
		{"2024-05-01 08:30:00+02:00", time.Date(2024, 5, 1, 6, 30, 0, 0, time.UTC)},
		{"2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := parseSQLiteTime(c.in)
		if err != nil {
			t.Errorf("parse %q: %v", c.in, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("parse %q = %v, want %v", c.in, got.UTC(), c.want)
		}
	}

	if _, err := parseSQLiteTime("yesterday"); err == nil {
		t.Error("parse garbage: want error")
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(3); got != "?, ?, ?" {
		t.Errorf("placeholders(3) = %q", got)
	}
	if got := placeholders(1); got != "?" {
		t.Errorf("placeholders(1) = %q", got)
	}
}
