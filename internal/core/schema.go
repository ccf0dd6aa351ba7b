package core

// schema.go keeps the backing table in sync with uploaded datasets.
//
// Policy for re-uploads with a different column set:
//   - a column whose inferred type conflicts with the stored type fails
//     the whole upload with SchemaConflictError (never silently coerce)
//   - an all-null column carries no type evidence and fits any stored
//     column; NULL inserts cleanly regardless of the column's type
//   - columns new to the table are added as nullable columns
//   - existing columns absent from the upload are left alone (rows get NULL)
//
// Synchronization runs inside the upload transaction under an advisory
// lock keyed on the table name, so concurrent uploads from any number of
// process instances serialize their create/alter steps.

import (
	"context"
	"fmt"
	"strings"

	"github.com/tabledrop/tabledrop/internal/ingest"
)

// ColumnInfo describes one column of the backing table as reported by the
// database, not the upload. Served by the debug columns endpoint.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// idColumn is the auto-assigned primary key added to every created table.
const idColumn = "id"

// pgTypeFor maps an inferred column type to its PostgreSQL type.
func pgTypeFor(t ingest.ColumnType) string {
	switch t {
	case ingest.TypeInteger:
		return "bigint"
	case ingest.TypeFloat:
		return "double precision"
	default:
		return "text"
	}
}

// compatibleType reports whether data of the inferred type can be stored in
// an existing column of the given data type without loss. Integer data
// widens into a double precision column; everything else must match.
func compatibleType(existing string, inferred ingest.ColumnType) bool {
	want := pgTypeFor(inferred)
	if existing == want {
		return true
	}
	return existing == "double precision" && inferred == ingest.TypeInteger
}

// quoteIdentifier quotes a SQL identifier to prevent injection. Column
// names come from user-supplied CSV headers, so every interpolation into
// SQL goes through this.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// createTableSQL renders the CREATE TABLE statement for a first upload.
func createTableSQL(table string, cols []ingest.Column) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdentifier(table))
	b.WriteString(" (")
	b.WriteString(quoteIdentifier(idColumn))
	b.WriteString(" bigserial PRIMARY KEY")
	for _, col := range cols {
		b.WriteString(", ")
		b.WriteString(quoteIdentifier(col.Name))
		b.WriteString(" ")
		b.WriteString(pgTypeFor(col.Type))
	}
	b.WriteString(")")
	return b.String()
}

// syncSchema guarantees the backing table exists and holds a superset of
// the dataset's columns before any row is written. Idempotent: a second
// call with the same schema changes nothing.
func (s *Service) syncSchema(ctx context.Context, db DBTX, cols []ingest.Column) error {
	// Serialize create/alter across instances. pg_advisory_xact_lock
	// releases automatically at commit or rollback.
	if _, err := db.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", s.table); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	existing, err := tableColumns(ctx, db, s.table)
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		if _, err := db.Exec(ctx, createTableSQL(s.table, cols)); err != nil {
			return fmt.Errorf("create table %s: %w", s.table, err)
		}
		return nil
	}

	ddl, err := schemaActions(s.table, existing, cols)
	if err != nil {
		return err
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("alter table %s: %w", s.table, err)
		}
	}

	return nil
}

// schemaActions compares the upload's inferred columns with the table's
// stored ones and returns the ALTER statements needed to extend it, or
// SchemaConflictError on an incompatible type. An all-null upload column
// carries no type evidence, so it fits any stored column unchecked; its
// text default applies only when the column is new.
func schemaActions(table string, existing []ColumnInfo, cols []ingest.Column) ([]string, error) {
	byName := make(map[string]string, len(existing))
	for _, col := range existing {
		byName[strings.ToLower(col.Name)] = col.Type
	}

	var ddl []string
	for _, col := range cols {
		stored, ok := byName[strings.ToLower(col.Name)]
		if !ok {
			ddl = append(ddl, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
				quoteIdentifier(table), quoteIdentifier(col.Name), pgTypeFor(col.Type)))
			continue
		}
		if col.AllNull {
			continue
		}
		if !compatibleType(stored, col.Type) {
			return nil, &SchemaConflictError{
				Column:   col.Name,
				Existing: stored,
				Inferred: pgTypeFor(col.Type),
			}
		}
	}

	return ddl, nil
}

// tableColumns reads the table's columns from information_schema in
// ordinal position. Returns an empty slice when the table does not exist.
func tableColumns(ctx context.Context, db DBTX, table string) ([]ColumnInfo, error) {
	rows, err := db.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("read table columns: %w", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return cols, nil
}

// matchColumn finds a column by name, case-insensitively, and returns the
// stored spelling for safe quoting.
func matchColumn(cols []ColumnInfo, name string) (string, bool) {
	for _, col := range cols {
		if strings.EqualFold(col.Name, name) {
			return col.Name, true
		}
	}
	return "", false
}

// Columns returns the backing table's current columns and types.
// An empty slice means no dataset has been uploaded yet.
func (s *Service) Columns(ctx context.Context) ([]ColumnInfo, error) {
	cols, err := tableColumns(ctx, s.pool, s.table)
	if err != nil {
		return nil, err
	}
	if cols == nil {
		cols = []ColumnInfo{}
	}
	return cols, nil
}
