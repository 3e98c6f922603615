// Package sqlite implements the warehouse repository on SQLite via
// modernc.org/sqlite and database/sql.
//
// SQLite has no timestamp type; time.Time values are written as RFC3339Nano
// strings in UTC and parsed back with a small set of accepted layouts. Date
// business keys are plain YYYY-MM-DD strings, shared with the other
// backends.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"eduetl/internal/warehouse"
)

func init() {
	warehouse.Register("sqlite", New)
}

// Repo is the SQLite-backed warehouse repository.
type Repo struct {
	db     *sql.DB
	dedupe bool
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	// One writer; sqlite serializes writes anyway and a second connection
	// just turns contention into SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	return &Repo{db: db, dedupe: cfg.DedupeFacts}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

const chunkRows = 200

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL(r.dedupe) {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: ensure schema: %w", err)
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
		q, args := buildUpsertSQL(table, keyColumn, columns, rows[start:end])
		if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("sqlite: upsert %s: %w", table, err)
		}
	}
	return nil
}

func (r *Repo) ResolveSurrogates(ctx context.Context, table, keyColumn string, keys []any) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	idCol := warehouse.DimIDColumn(table)
	if idCol == "" {
		return nil, fmt.Errorf("sqlite: %s is not a dimension table", table)
	}

	for start := 0; start < len(keys); start += chunkRows {
		end := start + chunkRows
		if end > len(keys) {
			end = len(keys)
		}
		part := keys[start:end]

		q := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s)",
			ident(keyColumn), ident(idCol), table, ident(keyColumn),
			placeholders(len(part)))

		rows, err := r.db.QueryContext(ctx, q, part...)
		if err != nil {
			return nil, fmt.Errorf("sqlite: resolve %s: %w", table, err)
		}
		for rows.Next() {
			var k any
			var id int64
			if err := rows.Scan(&k, &id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("sqlite: resolve %s: %w", table, err)
			}
			out[warehouse.NormalizeKey(k)] = id
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: resolve %s: %w", table, err)
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
		q, args := buildInsertSQL(table, columns, rows[start:end], dedupeColumns)
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("sqlite: insert %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("sqlite: insert %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// buildUpsertSQL builds a multi-row dimension upsert. Key-only stub writes
// fall back to DO NOTHING so they never erase loaded attributes.
func buildUpsertSQL(table, keyColumn string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, normalizeArg(row[j]))
		}
		b.WriteString(")")
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) ", ident(keyColumn))
	var sets []string
	for _, c := range columns {
		if c == keyColumn {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", ident(c), ident(c)))
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

func buildInsertSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, normalizeArg(row[j]))
		}
		b.WriteString(")")
	}

	if len(dedupeColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range dedupeColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ident(c))
		}
		b.WriteString(") DO NOTHING")
	}
	b.WriteString(";")
	return b.String(), args
}

// normalizeArg maps Go values onto sqlite-storable forms. Timestamps become
// RFC3339Nano strings so round-trips are deterministic.
func normalizeArg(v any) any {
	if t, ok := v.(time.Time); ok {
		return formatSQLiteTime(t)
	}
	return v
}

func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseSQLiteTime accepts what we write plus the layouts sqlite itself tends
// to produce. Strings without a zone are taken as UTC.
func parseSQLiteTime(s string) (time.Time, error) {
	zoned := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
	}
	for _, layout := range zoned {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	naive := []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range naive {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("sqlite: unparseable time %q", s)
}
