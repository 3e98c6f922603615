package json

import (
	"context"
	"strings"
	"testing"

	"eduetl/internal/config"
	"eduetl/internal/transform"
)

var testColumns = []string{"student_number", "first_name", "gpa"}

func collect(t *testing.T, src string, opt config.Options) ([][]any, []error, error) {
	t.Helper()
	out := make(chan *transform.Row, 64)
	var errs []error
	onErr := func(line int, err error) { errs = append(errs, err) }

	streamErr := StreamRows(context.Background(), strings.NewReader(src), testColumns, opt, out, onErr)
	close(out)

	var rows [][]any
	for r := range out {
		vals := make([]any, len(r.V))
		copy(vals, r.V)
		rows = append(rows, vals)
		r.Free()
	}
	return rows, errs, streamErr
}

func TestStreamRowsObjects(t *testing.T) {
	src := `[
		{"student_number": "S001", "First Name": "Ada", "gpa": 3.8},
		{"student_number": "S002", "first_name": "Alan", "gpa": 3}
	]`
	rows, errs, err := collect(t, src, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][1] != "Ada" {
		t.Errorf("spaced key not normalized: %v", rows[0][1])
	}
	// Numbers keep their textual form so coercion treats JSON like CSV.
	if rows[0][2] != "3.8" || rows[1][2] != "3" {
		t.Errorf("numbers = %v, %v, want strings", rows[0][2], rows[1][2])
	}
}

func TestStreamRowsHeaderMap(t *testing.T) {
	src := `[{"Matrikel": "S001"}]`
	opt := config.Options{"header_map": map[string]any{"Matrikel": "student_number"}}
	rows, _, err := collect(t, src, opt)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "S001" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestStreamRowsEmptyStringIsNil(t *testing.T) {
	src := `[{"student_number": "S001", "first_name": "  "}]`
	rows, _, err := collect(t, src, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if rows[0][1] != nil {
		t.Errorf("blank string = %v, want nil", rows[0][1])
	}
}

func TestStreamRowsNestedValueKeptAsText(t *testing.T) {
	src := `[{"student_number": "S001", "first_name": {"given": "Ada"}}]`
	rows, _, err := collect(t, src, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if rows[0][1] != `{"given":"Ada"}` {
		t.Errorf("nested value = %v, want its JSON text", rows[0][1])
	}
}

func TestStreamRowsRejectsNonArray(t *testing.T) {
	_, _, err := collect(t, `{"student_number": "S001"}`, nil)
	if err == nil {
		t.Fatal("top-level object accepted")
	}
}

func TestStreamRowsBadElementIsFatal(t *testing.T) {
	src := `[{"student_number": "S001"}, "not an object"]`
	rows, errs, err := collect(t, src, nil)
	if err == nil {
		t.Fatal("malformed element did not stop the stream")
	}
	if len(errs) == 0 {
		t.Error("no element error reported")
	}
	if len(rows) != 1 {
		t.Errorf("rows before failure = %d, want 1", len(rows))
	}
}

func TestCountRecords(t *testing.T) {
	src := `[{"a": 1}, {"b": {"nested": [1,2,3]}}, {"c": 3}]`
	n, err := CountRecords(strings.NewReader(src))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestCountRecordsEmptyArray(t *testing.T) {
	n, err := CountRecords(strings.NewReader(`[]`))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}
