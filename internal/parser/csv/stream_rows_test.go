package csv

import (
	"context"
	"strings"
	"testing"

	"eduetl/internal/config"
	"eduetl/internal/transform"
)

var testColumns = []string{"student_number", "first_name", "gpa"}

func collect(t *testing.T, src string, cols []string, opt config.Options) ([][]any, []error) {
	t.Helper()
	out := make(chan *transform.Row, 64)
	var errs []error
	onErr := func(line int, err error) { errs = append(errs, err) }

	streamErr := StreamRows(context.Background(), strings.NewReader(src), cols, opt, out, onErr)
	close(out)
	if streamErr != nil {
		t.Fatalf("stream: %v", streamErr)
	}

	var rows [][]any
	for r := range out {
		vals := make([]any, len(r.V))
		copy(vals, r.V)
		rows = append(rows, vals)
		r.Free()
	}
	return rows, errs
}

func TestStreamRowsHeaderMapping(t *testing.T) {
	// Captions differ from canonical names in case and spacing.
	src := "Student Number,First Name,GPA\nS001,Ada,3.8\n"
	rows, errs := collect(t, src, testColumns, nil)
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	want := []any{"S001", "Ada", "3.8"}
	for i, v := range want {
		if rows[0][i] != v {
			t.Errorf("col %d = %v, want %v", i, rows[0][i], v)
		}
	}
}

func TestStreamRowsHeaderMapOption(t *testing.T) {
	src := "Matrikel,Vorname,Schnitt\nS001,Ada,3.8\n"
	opt := config.Options{"header_map": map[string]any{
		"Matrikel": "student_number",
		"Vorname":  "first_name",
		"Schnitt":  "gpa",
	}}
	rows, _ := collect(t, src, testColumns, opt)
	if len(rows) != 1 || rows[0][0] != "S001" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestStreamRowsMissingColumnIsNil(t *testing.T) {
	src := "student_number,first_name\nS001,Ada\n"
	rows, _ := collect(t, src, testColumns, nil)
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][2] != nil {
		t.Errorf("unmapped gpa = %v, want nil", rows[0][2])
	}
}

func TestStreamRowsEmptyValueIsNil(t *testing.T) {
	src := "student_number,first_name,gpa\nS001,,3.8\n"
	rows, _ := collect(t, src, testColumns, nil)
	if rows[0][1] != nil {
		t.Errorf("empty cell = %v, want nil", rows[0][1])
	}
}

func TestStreamRowsCustomDelimiter(t *testing.T) {
	src := "student_number;first_name;gpa\nS001;Ada;3.8\n"
	rows, _ := collect(t, src, testColumns, config.Options{"comma": ";"})
	if len(rows) != 1 || rows[0][0] != "S001" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestStreamRowsNoHeaderPositional(t *testing.T) {
	src := "S001,Ada,3.8\nS002,Alan,3.2\n"
	rows, _ := collect(t, src, testColumns, config.Options{"has_header": false})
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[1][0] != "S002" {
		t.Errorf("row 2 col 0 = %v", rows[1][0])
	}
}

func TestStreamRowsBOMStripped(t *testing.T) {
	src := "\ufeffstudent_number,first_name,gpa\nS001,Ada,3.8\n"
	rows, _ := collect(t, src, testColumns, nil)
	if len(rows) != 1 || rows[0][0] != "S001" {
		t.Fatalf("BOM header not mapped: %v", rows)
	}
}

func TestStreamRowsBadRecordContinues(t *testing.T) {
	src := "student_number,first_name,gpa\n" +
		"S001,\"broken,3.8\n" +
		"S002,Alan,3.2\n"
	rows, errs := collect(t, src, testColumns, nil)
	if len(errs) == 0 {
		t.Error("malformed record reported no error")
	}
	// The stream keeps going; with an unterminated quote the reader consumes
	// through the rest of the input, so at minimum the job does not abort.
	if len(rows) == 0 && len(errs) == 0 {
		t.Error("stream produced nothing and reported nothing")
	}
}

func TestStreamRowsLineNumbers(t *testing.T) {
	src := "student_number,first_name,gpa\nS001,Ada,3.8\nS002,Alan,3.2\n"
	out := make(chan *transform.Row, 8)
	if err := StreamRows(context.Background(), strings.NewReader(src), testColumns, nil, out, nil); err != nil {
		t.Fatalf("stream: %v", err)
	}
	close(out)
	wantLine := 2 // data starts after the header
	for r := range out {
		if r.Line != wantLine {
			t.Errorf("line = %d, want %d", r.Line, wantLine)
		}
		wantLine++
		r.Free()
	}
}

func TestStreamRowsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan *transform.Row)
	err := StreamRows(ctx, strings.NewReader("a,b,c\n1,2,3\n"), testColumns, nil, out, nil)
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCountRecords(t *testing.T) {
	src := "student_number,first_name,gpa\nS001,Ada,3.8\nS002,Alan,3.2\n"
	n, err := CountRecords(strings.NewReader(src), nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestCountRecordsNoHeader(t *testing.T) {
	n, err := CountRecords(strings.NewReader("S001,Ada,3.8\n"), config.Options{"has_header": false})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestCountRecordsEmpty(t *testing.T) {
	n, err := CountRecords(strings.NewReader(""), nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestDecoderFor(t *testing.T) {
	if decoderFor("utf-8") != nil {
		t.Error("utf-8 needs no decoder")
	}
	if decoderFor("windows-1252") == nil {
		t.Error("windows-1252 decoder missing")
	}
	if decoderFor("latin2") == nil {
		t.Error("latin2 decoder missing")
	}
}

func TestStreamRowsWindows1252(t *testing.T) {
	// 0xE9 is é in Windows-1252 and invalid UTF-8 on its own.
	src := "student_number,first_name,gpa\nS001,Ren\xe9e,3.8\n"
	rows, errs := collect(t, src, testColumns, config.Options{"encoding": "windows-1252"})
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if len(rows) != 1 || rows[0][1] != "Renée" {
		t.Fatalf("rows = %v, want decoded name", rows)
	}
}
