// Package mssql implements the warehouse repository on Microsoft SQL Server
// through database/sql and the microsoft/go-mssqldb driver.
//
// MERGE is avoided on purpose: dimension upserts run as an UPDATE-from-VALUES
// followed by an INSERT ... WHERE NOT EXISTS inside one transaction, which is
// easier to reason about under concurrency and keeps the SQL builders pure
// and testable. Fact dedupe uses the same NOT EXISTS shape.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"eduetl/internal/warehouse"
)

func init() {
	warehouse.Register("mssql", New)
}

// Repo is the SQL Server-backed warehouse repository.
type Repo struct {
	db     *sql.DB
	dedupe bool
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: %w", err)
	}

	// Conservative defaults for bursty batch loads.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mssql: %w", err)
	}
	return &Repo{db: db, dedupe: cfg.DedupeFacts}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// SQL Server caps statements at 2100 parameters; chunk size is derived from
// the column count so every chunk stays under it.
func chunkFor(cols int) int {
	n := 2000 / cols
	if n < 1 {
		n = 1
	}
	return n
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL(r.dedupe) {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) UpsertDimensions(ctx context.Context, table, keyColumn string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	chunk := chunkFor(len(columns))
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		if err := r.upsertChunk(ctx, table, keyColumn, columns, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// upsertChunk updates matched business keys then inserts the missing ones,
// in one transaction so readers never see a partially applied chunk.
func (r *Repo) upsertChunk(ctx context.Context, table, keyColumn string, columns []string, rows [][]any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql: upsert %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(columns) > 1 {
		q, args := buildDimUpdateSQL(table, keyColumn, columns, rows)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("mssql: upsert %s: %w", table, err)
		}
	}

	q, args := buildInsertNotExistsSQL(table, columns, rows, []string{keyColumn})
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("mssql: upsert %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mssql: upsert %s: %w", table, err)
	}
	return nil
}

func (r *Repo) ResolveSurrogates(ctx context.Context, table, keyColumn string, keys []any) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	idCol := warehouse.DimIDColumn(table)
	if idCol == "" {
		return nil, fmt.Errorf("mssql: %s is not a dimension table", table)
	}

	const chunk = 2000
	for start := 0; start < len(keys); start += chunk {
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		part := keys[start:end]

		var b strings.Builder
		fmt.Fprintf(&b, "SELECT %s, %s FROM %s WHERE %s IN (",
			ident(keyColumn), ident(idCol), tableIdent(table), ident(keyColumn))
		args := make([]any, 0, len(part))
		for i, k := range part {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", i+1)
			args = append(args, k)
		}
		b.WriteString(")")

		rows, err := r.db.QueryContext(ctx, b.String(), args...)
		if err != nil {
			return nil, fmt.Errorf("mssql: resolve %s: %w", table, err)
		}
		for rows.Next() {
			var k any
			var id int64
			if err := rows.Scan(&k, &id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("mssql: resolve %s: %w", table, err)
			}
			out[warehouse.NormalizeKey(k)] = id
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("mssql: resolve %s: %w", table, err)
		}
		rows.Close()
	}
	return out, nil
}

func (r *Repo) AppendFacts(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	// NOT EXISTS only sees table state from before the statement runs, so
	// duplicates inside one call must be dropped here or they collide with
	// the unique index the dedupe mode creates.
	if len(dedupeColumns) > 0 {
		rows = dedupeRows(columns, rows, dedupeColumns)
	}
	chunk := chunkFor(len(columns))
	var total int64
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		part := rows[start:end]

		var q string
		var args []any
		if len(dedupeColumns) > 0 {
			q, args = buildInsertNotExistsSQL(table, columns, part, dedupeColumns)
		} else {
			q, args = buildBulkInsertSQL(table, columns, part)
		}

		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("mssql: insert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// dedupeRows keeps the first row for each distinct dedupe-key tuple. Later
// occurrences are the already-present case and are skipped, not errors.
func dedupeRows(columns []string, rows [][]any, dedupeColumns []string) [][]any {
	idx := make([]int, 0, len(dedupeColumns))
	for _, dc := range dedupeColumns {
		for j, c := range columns {
			if c == dc {
				idx = append(idx, j)
				break
			}
		}
	}
	if len(idx) != len(dedupeColumns) {
		return rows
	}
	seen := make(map[string]struct{}, len(rows))
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		for _, j := range idx {
			b.WriteString(warehouse.NormalizeKey(row[j]))
			b.WriteByte(0x1f)
		}
		k := b.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for all rows.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// buildInsertNotExistsSQL builds an idempotent insert over a VALUES table:
// rows whose dedupeColumns already exist in the target are skipped.
func buildInsertNotExistsSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("v.")
		b.WriteString(ident(c))
	}
	b.WriteString(" FROM (VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(") AS v(")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(tableIdent(table))
	b.WriteString(" t WHERE ")
	for i, dc := range dedupeColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("t.")
		b.WriteString(ident(dc))
		b.WriteString(" = v.")
		b.WriteString(ident(dc))
	}
	b.WriteString(")")
	return b.String(), args
}

// buildDimUpdateSQL builds an UPDATE joining the target to a VALUES table by
// business key, writing every non-key column.
func buildDimUpdateSQL(table, keyColumn string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("UPDATE t SET ")
	first := true
	for _, c := range columns {
		if c == keyColumn {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString("t.")
		b.WriteString(ident(c))
		b.WriteString(" = v.")
		b.WriteString(ident(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(tableIdent(table))
	b.WriteString(" t JOIN (VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(") AS v(")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") ON t.")
	b.WriteString(ident(keyColumn))
	b.WriteString(" = v.")
	b.WriteString(ident(keyColumn))
	return b.String(), args
}

func ident(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// tableIdent bracket-quotes schema-qualified names, e.g. "dbo.dim_student"
// becomes [dbo].[dim_student].
func tableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = ident(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
