// Package transform turns raw parsed rows into typed values and dimensional
// write operations. This file defines the pooled Row passed between parser,
// validator, transformer and loader to keep heap churn low on large files.
package transform

import "sync"

// Row is a pooled positional record aligned to a data type's column contract.
//
// Ownership contract:
//   - Exactly one goroutine owns a Row at a time.
//   - Ownership transfers through channels; the final consumer calls Free()
//     once it no longer references r.V.
//   - On cancellation paths use Drop() instead of Free(): re-pooling a row
//     that a draining stage may still read leads to reuse races.
type Row struct {
	V    []any
	Line int // 1-based source record number, if known
}

var rowPool sync.Pool

// GetRow returns a pooled Row sized to colCount with all elements zeroed.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool. Only call when no other goroutine can
// still observe r or r.V.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row without re-pooling it.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}
