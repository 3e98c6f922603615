// Package csv streams CSV source files into pooled positional rows.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"eduetl/internal/config"
	etltransform "eduetl/internal/transform"
)

// decoderFor maps an "encoding" option value to a charset decoder.
// Institutional exports are frequently Windows-1250/1252 rather than UTF-8.
func decoderFor(name string) *encoding.Decoder {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil
	case "windows-1250", "cp1250":
		return charmap.Windows1250.NewDecoder()
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder()
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder()
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2.NewDecoder()
	default:
		return nil
	}
}

// StreamRows streams CSV records into pooled *transform.Row values aligned
// to the target columns order. The caller owns both the source reader and
// the output channel.
//
// Header handling: source headers are lowercased with spaces collapsed to
// underscores, then remapped through the optional header_map option, so
// files whose column captions differ from the canonical contract still load.
//
// Row-level read errors are reported through onErr and do not stop the
// stream; a single bad record never aborts a job.
//
// Cancellation: in-flight rows are Drop()ped, never re-pooled, so draining
// consumers cannot race with pool reuse.
func StreamRows(
	ctx context.Context,
	src io.Reader,
	columns []string,
	opt config.Options,
	out chan<- *etltransform.Row,
	onErr func(line int, err error),
) error {
	var line int

	hasHeader := opt.Bool("has_header", true)
	comma := opt.Rune("comma", ',')
	trim := opt.Bool("trim_space", true)
	hm := opt.StringMap("header_map")
	lazy := opt.Bool("lazy_quotes", false)

	r := src
	if dec := decoderFor(opt.String("encoding", "")); dec != nil {
		r = transform.NewReader(src, dec)
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = lazy
	cr.FieldsPerRecord = -1

	colIx := make([]int, len(columns))
	for i := range colIx {
		colIx[i] = -1
	}

	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	if hasHeader {
		hdr, err := readRec()
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("read header: %w", err))
			}
			return err
		}
		srcToIdx := make(map[string]int, len(hdr))
		for i, h := range hdr {
			if etltransform.HasEdgeSpace(h) {
				h = strings.TrimSpace(h)
			}
			if i == 0 {
				h = strings.TrimPrefix(h, "\ufeff")
			}
			if mapped, ok := hm[h]; ok {
				h = mapped
			} else {
				h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
			}
			srcToIdx[h] = i
		}
		for t, target := range columns {
			if si, ok := srcToIdx[target]; ok {
				colIx[t] = si
			}
		}
	} else {
		for i := range columns {
			colIx[i] = i
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue // malformed record; the stream is still usable
			}
			return err
		}

		row := etltransform.GetRow(len(columns))
		row.Line = line

		for t := range columns {
			si := colIx[t]
			if si < 0 || si >= len(rec) {
				row.V[t] = nil
				continue
			}
			v := rec[si]
			if trim && etltransform.HasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				row.V[t] = nil
			} else {
				row.V[t] = v
			}
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
}

// CountRecords counts data records (excluding the header when present) so
// job progress can be exact. It reads the whole source once; callers reopen
// the file for the processing pass.
func CountRecords(src io.Reader, opt config.Options) (int64, error) {
	r := src
	if dec := decoderFor(opt.String("encoding", "")); dec != nil {
		r = transform.NewReader(src, dec)
	}

	cr := csv.NewReader(r)
	cr.Comma = opt.Rune("comma", ',')
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.FieldsPerRecord = -1

	var n int64
	for {
		_, err := cr.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			n++ // malformed records still count; the processing pass will reject them
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	if opt.Bool("has_header", true) && n > 0 {
		n--
	}
	return n, nil
}
