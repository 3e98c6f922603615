package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"eduetl/internal/config"
)

var studentCols = []string{"student_number", "first_name", "last_name", "email"}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func fileSource(path string) config.Source {
	return config.Source{Kind: "file", File: &config.FileSource{Path: path}}
}

func TestNewRejectsMissingFile(t *testing.T) {
	_, err := New(fileSource("/nonexistent/rows.csv"), config.Parser{Kind: "csv"}, studentCols)
	if err == nil {
		t.Fatal("want error for missing file")
	}

	_, err = New(config.Source{Kind: "file"}, config.Parser{Kind: "csv"}, studentCols)
	if err == nil {
		t.Fatal("want error for missing path")
	}
}

func TestCountCSV(t *testing.T) {
	path := writeFile(t, "s.csv",
		"student_number,first_name,last_name,email\n"+
			"S1,Ada,Lovelace,ada@u.edu\n"+
			"S2,Alan,Turing,alan@u.edu\n")
	src, err := New(fileSource(path), config.Parser{Kind: "csv"}, studentCols)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	n, err := src.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestOpenStreamsRowsInOrder(t *testing.T) {
	path := writeFile(t, "s.csv",
		"student_number,first_name,last_name,email\n"+
			"S1,Ada,Lovelace,ada@u.edu\n"+
			"S2,Alan,Turing,alan@u.edu\n"+
			"S3,Grace,Hopper,grace@u.edu\n")
	src, err := New(fileSource(path), config.Parser{Kind: "csv"}, studentCols)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	stream, err := src.Open(context.Background(), 4, func(line int, err error) {
		t.Errorf("unexpected parse error at line %d: %v", line, err)
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var got []string
	for r := range stream.Rows {
		if s, ok := r.V[0].(string); ok {
			got = append(got, s)
		}
		r.Free()
	}
	if err := stream.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	want := []string{"S1", "S2", "S3"}
	if len(got) != len(want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %q, want %q (source order must be preserved)", i, got[i], want[i])
		}
	}
}

// Malformed rows are reported through onErr and skipped; the stream itself
// stays healthy.
func TestOpenReportsRowErrors(t *testing.T) {
	path := writeFile(t, "s.csv",
		"student_number,first_name,last_name,email\n"+
			"S1,Ada,Lovelace,ada@u.edu\n"+
			"S2,\"broken,row\n"+
			"S3,Grace,Hopper,grace@u.edu\n")
	src, err := New(fileSource(path), config.Parser{Kind: "csv"}, studentCols)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var parseErrs int
	stream, err := src.Open(context.Background(), 4, func(line int, err error) {
		parseErrs++
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var rows int
	for r := range stream.Rows {
		rows++
		r.Free()
	}
	if err := stream.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if parseErrs == 0 {
		t.Error("no parse errors reported for malformed row")
	}
	if rows == 0 {
		t.Error("healthy rows were not streamed")
	}
}

func TestOpenJSON(t *testing.T) {
	path := writeFile(t, "s.json",
		`[{"student_number":"S1","first_name":"Ada","last_name":"Lovelace","email":"ada@u.edu"}]`)
	src, err := New(fileSource(path), config.Parser{Kind: "json"}, studentCols)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	n, err := src.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	stream, err := src.Open(context.Background(), 0, func(line int, err error) {})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var rows int
	for r := range stream.Rows {
		if r.V[0] != "S1" {
			t.Errorf("row value = %v, want S1", r.V[0])
		}
		rows++
		r.Free()
	}
	if err := stream.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if rows != 1 {
		t.Errorf("rows = %d, want 1", rows)
	}
}

func TestOpenUnsupportedParser(t *testing.T) {
	path := writeFile(t, "s.xml", "<rows/>")
	src := &FileSource{Path: path, Parser: config.Parser{Kind: "xml"}, Columns: studentCols}

	stream, err := src.Open(context.Background(), 0, func(line int, err error) {})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for r := range stream.Rows {
		r.Free()
	}
	if err := stream.Wait(); err == nil {
		t.Fatal("want error for unsupported parser kind")
	}
}
