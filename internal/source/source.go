// Package source opens job input files and exposes them as a stream of
// pooled rows with a known (or estimated) total record count.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"eduetl/internal/config"
	csvparser "eduetl/internal/parser/csv"
	htmlparser "eduetl/internal/parser/htmltable"
	jsonparser "eduetl/internal/parser/json"
	"eduetl/internal/transform"
)

// TotalUnknown is the record total reported when counting is disabled or
// not possible; progress stays best-effort until the final batch.
const TotalUnknown int64 = -1

// Stream is an in-flight row stream. Rows is closed when the producer
// finishes; Wait returns the terminal error, if any. Consumers own each
// received Row and must Free it.
type Stream struct {
	Rows <-chan *transform.Row

	wg  sync.WaitGroup
	mu  sync.Mutex
	err error
}

// Wait blocks until the producer goroutine exits and returns its error.
func (s *Stream) Wait() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) setErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// FileSource reads one local file through a configured parser.
type FileSource struct {
	Path    string
	Parser  config.Parser
	Columns []string
}

// New builds a FileSource from job config. The file must exist and be
// readable at submission time so bad submissions fail synchronously.
func New(src config.Source, parser config.Parser, columns []string) (*FileSource, error) {
	if src.Kind != "file" || src.File == nil || src.File.Path == "" {
		return nil, fmt.Errorf("source: kind=file with a path is required")
	}
	f, err := os.Open(src.File.Path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	f.Close()
	return &FileSource{Path: src.File.Path, Parser: parser, Columns: columns}, nil
}

// Count returns the total record count by scanning the file once, or
// TotalUnknown when the parser cannot count cheaply.
func (s *FileSource) Count(ctx context.Context) (int64, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return TotalUnknown, fmt.Errorf("source: %w", err)
	}
	defer f.Close()

	switch s.Parser.Kind {
	case "csv":
		return csvparser.CountRecords(f, s.Parser.Options)
	case "json":
		return jsonparser.CountRecords(f)
	case "htmltable":
		return htmlparser.CountRecords(f, s.Parser.Options)
	}
	return TotalUnknown, nil
}

// Open starts the streaming read. onErr receives row-level parse errors;
// fatal stream errors surface through Stream.Wait.
func (s *FileSource) Open(ctx context.Context, buffer int, onErr func(line int, err error)) (*Stream, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	if buffer <= 0 {
		buffer = config.DefaultChannelBuffer
	}
	ch := make(chan *transform.Row, buffer)
	st := &Stream{Rows: ch}

	run := func(ctx context.Context, r io.Reader) error {
		switch s.Parser.Kind {
		case "csv":
			return csvparser.StreamRows(ctx, r, s.Columns, s.Parser.Options, ch, onErr)
		case "json":
			return jsonparser.StreamRows(ctx, r, s.Columns, s.Parser.Options, ch, onErr)
		case "htmltable":
			return htmlparser.StreamRows(ctx, r, s.Columns, s.Parser.Options, ch, onErr)
		default:
			return fmt.Errorf("source: unsupported parser kind %q", s.Parser.Kind)
		}
	}

	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		defer close(ch)
		defer f.Close()
		st.setErr(run(ctx, f))
	}()

	return st, nil
}
