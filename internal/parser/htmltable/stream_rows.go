// Package htmltable extracts rows from an HTML <table>. Some registrar and
// LMS systems only export rosters as HTML pages; this parser lets those feed
// the pipeline like any CSV or JSON file.
package htmltable

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"eduetl/internal/config"
	"eduetl/internal/transform"
)

// StreamRows parses the document, locates the target table, and streams one
// pooled *transform.Row per <tr> aligned to the target columns order.
//
// Options:
//   - "table_selector": CSS selector for the table (default "table", first
//     match wins).
//   - "header_map": remaps header captions to canonical field names; headers
//     are otherwise lowercased with spaces collapsed to underscores.
//
// The first row containing <th> cells (or the first row when none do) is the
// header. Missing cells produce nil values; a table with no usable header
// is a fatal parse error.
func StreamRows(
	ctx context.Context,
	src io.Reader,
	columns []string,
	opt config.Options,
	out chan<- *transform.Row,
	onErr func(line int, err error),
) error {
	doc, err := goquery.NewDocumentFromReader(src)
	if err != nil {
		return fmt.Errorf("htmltable: parse document: %w", err)
	}

	selector := opt.String("table_selector", "table")
	table := doc.Find(selector).First()
	if table.Length() == 0 {
		return fmt.Errorf("htmltable: no table matches selector %q", selector)
	}

	hm := opt.StringMap("header_map")
	trs := table.Find("tr")
	if trs.Length() == 0 {
		return fmt.Errorf("htmltable: table has no rows")
	}

	headerIdx, headers := findHeader(trs)
	if len(headers) == 0 {
		return fmt.Errorf("htmltable: table has no header cells")
	}

	colIx := make([]int, len(columns))
	for i := range colIx {
		colIx[i] = -1
	}
	srcToIdx := make(map[string]int, len(headers))
	for i, h := range headers {
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

	var streamErr error
	line := 0
	trs.EachWithBreak(func(i int, tr *goquery.Selection) bool {
		if i == headerIdx {
			return true
		}
		select {
		case <-ctx.Done():
			streamErr = ctx.Err()
			return false
		default:
		}

		line++
		cells := cellTexts(tr)
		if len(cells) == 0 {
			return true // spacer/colspan-only row
		}

		row := transform.GetRow(len(columns))
		row.Line = line
		for t := range columns {
			si := colIx[t]
			if si < 0 || si >= len(cells) || cells[si] == "" {
				row.V[t] = nil
				continue
			}
			row.V[t] = cells[si]
		}

		select {
		case out <- row:
			return true
		case <-ctx.Done():
			row.Drop()
			streamErr = ctx.Err()
			return false
		}
	})

	return streamErr
}

// findHeader returns the index and cell captions of the header row: the
// first <tr> containing <th> cells, else the first row's <td> texts.
func findHeader(trs *goquery.Selection) (int, []string) {
	idx := -1
	var headers []string

	trs.EachWithBreak(func(i int, tr *goquery.Selection) bool {
		ths := tr.Find("th")
		if ths.Length() == 0 {
			return true
		}
		idx = i
		ths.Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, strings.TrimSpace(th.Text()))
		})
		return false
	})
	if idx >= 0 {
		return idx, headers
	}

	first := trs.First()
	first.Find("td").Each(func(_ int, td *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(td.Text()))
	})
	return 0, headers
}

func cellTexts(tr *goquery.Selection) []string {
	var cells []string
	tr.Find("td").Each(func(_ int, td *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(td.Text()))
	})
	return cells
}

// CountRecords counts data rows in the target table.
func CountRecords(src io.Reader, opt config.Options) (int64, error) {
	doc, err := goquery.NewDocumentFromReader(src)
	if err != nil {
		return 0, fmt.Errorf("htmltable: parse document: %w", err)
	}
	selector := opt.String("table_selector", "table")
	table := doc.Find(selector).First()
	if table.Length() == 0 {
		return 0, fmt.Errorf("htmltable: no table matches selector %q", selector)
	}

	trs := table.Find("tr")
	if trs.Length() == 0 {
		return 0, nil
	}
	headerIdx, _ := findHeader(trs)

	var n int64
	trs.Each(func(i int, tr *goquery.Selection) {
		if i == headerIdx {
			return
		}
		if tr.Find("td").Length() > 0 {
			n++
		}
	})
	return n, nil
}
