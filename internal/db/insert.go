package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// InsertConfig defines the parameters for a bulk insert-if-absent.
type InsertConfig struct {
	Table        string   // target table (e.g., "ems_clean")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns whose conflict suppresses the row

	// Exclude optionally skips staged rows that already have a match in
	// another table, compared column-for-column on the listed columns.
	Exclude *ExcludeConfig
}

// ExcludeConfig names the anti-join side of an exclusion: staged rows whose
// Columns tuple exists in Table are not inserted.
type ExcludeConfig struct {
	Table   string
	Columns []string
}

// InsertIgnore performs a bulk insert that silently skips rows conflicting
// on the configured keys, including duplicates within the batch itself.
// 1. Creates a temp table with the same columns
// 2. COPY rows into the temp table
// 3. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO NOTHING
// Returns the number of rows actually inserted into the target.
// Must run on a pgx.Tx: the temp table is dropped at commit.
func InsertIgnore(ctx context.Context, q Queryer, cfg InsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: insert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: insert: no conflict keys specified")
	}

	tempTable := fmt.Sprintf("_tmp_insert_%s", strings.ReplaceAll(cfg.Table, ".", "_"))

	// Create temp table with same structure as target
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := q.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: insert: create temp table for %s", cfg.Table)
	}

	// COPY rows into temp table
	copySource := pgx.CopyFromRows(rows)
	if _, err := q.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, copySource); err != nil {
		return 0, eris.Wrapf(err, "db: insert: COPY into temp table for %s", cfg.Table)
	}

	colList := quoteAndJoin(cfg.Columns)
	conflictList := quoteAndJoin(cfg.ConflictKeys)
	tempIdent := pgx.Identifier{tempTable}.Sanitize()

	var exclude string
	if cfg.Exclude != nil {
		conds := make([]string, len(cfg.Exclude.Columns))
		for i, c := range cfg.Exclude.Columns {
			q := pgx.Identifier{c}.Sanitize()
			conds[i] = fmt.Sprintf("x.%s = %s.%s", q, tempIdent, q)
		}
		exclude = fmt.Sprintf(" WHERE NOT EXISTS (SELECT 1 FROM %s x WHERE %s)",
			sanitizeTable(cfg.Exclude.Table), strings.Join(conds, " AND "))
	}

	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s%s ON CONFLICT (%s) DO NOTHING",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		tempIdent,
		exclude,
		conflictList,
	)

	tag, err := q.Exec(ctx, insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: insert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	return tag.RowsAffected(), nil
}

// sanitizeTable handles schema-qualified table names like "dw.fact_encounter".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
