// Package json streams a top-level JSON array of objects into pooled
// positional rows.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"eduetl/internal/config"
	"eduetl/internal/transform"
)

// StreamRows streams the elements of a JSON array into pooled
// *transform.Row values aligned to the target columns order. Object keys are
// normalized (lowercased, spaces to underscores) and remapped through the
// optional header_map option before matching columns.
//
// Values keep their JSON types (string, float64, bool); nested objects and
// arrays are not valid field values and are re-encoded to their JSON text so
// the validator can report them with the original content.
//
// Per-element decode errors are reported through onErr and skip the element;
// a malformed stream (bad delimiters) is fatal.
func StreamRows(
	ctx context.Context,
	src io.Reader,
	columns []string,
	opt config.Options,
	out chan<- *transform.Row,
	onErr func(line int, err error),
) error {
	hm := opt.StringMap("header_map")

	dec := json.NewDecoder(src)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read open delimiter: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("json: expected top-level array, got %v", tok)
	}

	colIdx := make(map[string]int, len(columns))
	for i, c := range columns {
		colIdx[c] = i
	}

	line := 0
	for dec.More() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line++
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("json element: %w", err))
			}
			return err // decoder state is unreliable after a failed Decode
		}

		row := transform.GetRow(len(columns))
		row.Line = line

		for k, v := range obj {
			name := normalizeFieldName(k, hm)
			i, ok := colIdx[name]
			if !ok {
				continue
			}
			row.V[i] = normalizeValue(v)
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("json: read close delimiter: %w", err)
	}
	return nil
}

func normalizeFieldName(k string, hm map[string]string) string {
	if transform.HasEdgeSpace(k) {
		k = strings.TrimSpace(k)
	}
	if mapped, ok := hm[k]; ok {
		return mapped
	}
	return strings.ReplaceAll(strings.ToLower(k), " ", "_")
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if transform.HasEdgeSpace(t) {
			t = strings.TrimSpace(t)
		}
		if t == "" {
			return nil
		}
		return t
	case json.Number:
		// Keep the textual form; coercion parses it against the field
		// contract exactly like CSV input.
		return t.String()
	case bool:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// CountRecords counts the elements of the top-level array without building
// row objects.
func CountRecords(src io.Reader) (int64, error) {
	dec := json.NewDecoder(src)

	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("json: read open delimiter: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return 0, fmt.Errorf("json: expected top-level array, got %v", tok)
	}

	var n int64
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		switch d := tok.(type) {
		case json.Delim:
			switch d {
			case '{', '[':
				if depth == 0 {
					n++
				}
				depth++
			case '}', ']':
				depth--
				if depth < 0 {
					return n, nil // closed the top-level array
				}
			}
		default:
			if depth == 0 {
				n++ // scalar array element
			}
		}
	}
}
