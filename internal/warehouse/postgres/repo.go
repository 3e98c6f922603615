// Package postgres implements the warehouse repository on PostgreSQL using
// pgx connection pools. Dimension upserts use INSERT ... ON CONFLICT DO
// UPDATE so concurrent writers for the same business key serialize on the
// unique index instead of racing.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"eduetl/internal/warehouse"
)

func init() {
	warehouse.Register("postgres", New)
}

// Repo is the PostgreSQL-backed warehouse repository.
type Repo struct {
	pool   *pgxpool.Pool
	dedupe bool
}

// New connects a pool to cfg.DSN.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return &Repo{pool: pool, dedupe: cfg.DedupeFacts}, nil
}

func (r *Repo) Close() {
	r.pool.Close()
}

// Statements are chunked so a single INSERT stays well under the Postgres
// parameter limit (65535) even for the widest table.
const chunkRows = 500

// EnsureSchema creates the star-schema tables and indexes if missing.
// Idempotent; runs at every job start.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL(r.dedupe) {
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) UpsertDimensions(ctx context.Context, table, keyColumn string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	for start := 0; start < len(rows); start += chunkRows {
		end := start + chunkRows
		if end > len(rows) {
			end = len(rows)
		}
		sql, args := buildUpsertSQL(table, keyColumn, columns, rows[start:end])
		if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("postgres: upsert %s: %w", table, err)
		}
	}
	return nil
}

func (r *Repo) ResolveSurrogates(ctx context.Context, table, keyColumn string, keys []any) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	idCol := warehouse.DimIDColumn(table)
	if idCol == "" {
		return nil, fmt.Errorf("postgres: %s is not a dimension table", table)
	}

	for start := 0; start < len(keys); start += chunkRows {
		end := start + chunkRows
		if end > len(keys) {
			end = len(keys)
		}
		part := keys[start:end]

		var b strings.Builder
		fmt.Fprintf(&b, "SELECT %s, %s FROM %s WHERE %s IN (",
			pgIdent(keyColumn), pgIdent(idCol), table, pgIdent(keyColumn))
		args := make([]any, 0, len(part))
		for i, k := range part {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i+1)
			args = append(args, k)
		}
		b.WriteString(")")

		rows, err := r.pool.Query(ctx, b.String(), args...)
		if err != nil {
			return nil, fmt.Errorf("postgres: resolve %s: %w", table, err)
		}
		for rows.Next() {
			var k any
			var id int64
			if err := rows.Scan(&k, &id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("postgres: resolve %s: %w", table, err)
			}
			out[warehouse.NormalizeKey(k)] = id
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: resolve %s: %w", table, err)
		}
		rows.Close()
	}
	return out, nil
}

func (r *Repo) AppendFacts(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var total int64
	for start := 0; start < len(rows); start += chunkRows {
		end := start + chunkRows
		if end > len(rows) {
			end = len(rows)
		}
		sql, args := buildInsertSQL(table, columns, rows[start:end], dedupeColumns)
		cmd, err := r.pool.Exec(ctx, sql, args...)
		if err != nil {
			return total, fmt.Errorf("postgres: insert %s: %w", table, err)
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

// buildUpsertSQL constructs one multi-row dimension upsert. Pure so the
// conflict clause and placeholder numbering are testable without a database.
//
// A key-only write (columns == [keyColumn]) degrades to DO NOTHING: stub
// references must never blank out attributes loaded by an earlier job.
func buildUpsertSQL(table, keyColumn string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
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
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) ", pgIdent(keyColumn))
	var sets []string
	for _, c := range columns {
		if c == keyColumn {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(c), pgIdent(c)))
	}
	if len(sets) == 0 {
		b.WriteString("DO NOTHING")
	} else {
		b.WriteString("DO UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}
	b.WriteString(";")
	return b.String(), args
}

// buildInsertSQL constructs one multi-row fact INSERT and its args. When
// dedupeColumns is non-empty the statement becomes idempotent via
// ON CONFLICT (...) DO NOTHING, which tolerates duplicate rows within the
// batch and across reprocessing of the same file.
func buildInsertSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
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
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if len(dedupeColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range dedupeColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}
	b.WriteString(";")
	return b.String(), args
}

// pgIdent quotes a column identifier. Table names come from package
// constants and stay unquoted, matching how they appear in the DDL.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
