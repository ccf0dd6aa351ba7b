package core

// records.go implements CRUD over the backing table plus transactional bulk
// import for uploads. Records are dynamic: the column set comes from the
// live table schema, so rows are surfaced as maps rather than structs.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tabledrop/tabledrop/internal/ingest"
)

// Record is one persisted row, including its id, keyed by column name.
type Record map[string]any

// ImportResult describes a completed upload.
type ImportResult struct {
	UploadID     string `json:"upload_id"`
	Table        string `json:"table"`
	RowsInserted int    `json:"rows_inserted"`
}

// Filter restricts GetAll to rows where a column equals a value.
type Filter struct {
	Column string
	Value  string
}

// ImportDataset stores all rows of a parsed upload in a single transaction:
// schema sync and bulk insert commit together or not at all. Rows are
// written with the COPY protocol. Returns the upload's correlation id and
// the number of rows inserted.
func (s *Service) ImportDataset(ctx context.Context, ds *ingest.Dataset) (*ImportResult, error) {
	uploadID := uuid.New().String()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.syncSchema(ctx, tx, ds.Columns); err != nil {
		return nil, err
	}

	var inserted int64
	if len(ds.Rows) > 0 {
		colNames := make([]string, len(ds.Columns))
		for i, col := range ds.Columns {
			colNames[i] = col.Name
		}

		copyRows := make([][]any, len(ds.Rows))
		for i, row := range ds.Rows {
			args := make([]any, len(row))
			for j, v := range row {
				args[j] = v.Arg(ds.Columns[j].Type)
			}
			copyRows[i] = args
		}

		inserted, err = tx.CopyFrom(ctx, pgx.Identifier{s.table}, colNames, pgx.CopyFromRows(copyRows))
		if err != nil {
			return nil, fmt.Errorf("copy rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}

	slog.Info("dataset imported",
		"upload_id", uploadID,
		"table", s.table,
		"rows", inserted,
		"columns", len(ds.Columns),
	)

	return &ImportResult{
		UploadID:     uploadID,
		Table:        s.table,
		RowsInserted: int(inserted),
	}, nil
}

// Insert creates a single record from a field map and returns the stored
// record with its assigned id.
func (s *Service) Insert(ctx context.Context, fields map[string]any) (Record, error) {
	cols, err := s.writableColumns(ctx)
	if err != nil {
		return nil, err
	}

	names, args, err := coerceFields(fields, cols)
	if err != nil {
		return nil, err
	}

	placeholders := make([]string, len(names))
	quoted := make([]string, len(names))
	for i, name := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		quoted[i] = quoteIdentifier(name)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quoteIdentifier(s.table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	return s.queryOne(ctx, query, args...)
}

// GetAll returns every record in insertion order. A filter, when given,
// restricts the result to rows whose column equals the value; the column
// must exist in the table.
func (s *Service) GetAll(ctx context.Context, filter *Filter) ([]Record, error) {
	query := fmt.Sprintf("SELECT * FROM %s", quoteIdentifier(s.table))
	var args []any

	if filter != nil {
		cols, err := tableColumns(ctx, s.pool, s.table)
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			return []Record{}, nil
		}
		name, ok := matchColumn(cols, filter.Column)
		if !ok {
			return nil, &ValidationError{Field: filter.Column, Message: "unknown column"}
		}
		// Compare as text so a string filter value works for any column type.
		query += fmt.Sprintf(" WHERE %s::text = $1", quoteIdentifier(name))
		args = append(args, filter.Value)
	}

	query += fmt.Sprintf(" ORDER BY %s", quoteIdentifier(idColumn))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		if isUndefinedTable(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// GetByID returns the record with the given id, or ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id int64) (Record, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1",
		quoteIdentifier(s.table), quoteIdentifier(idColumn))
	return s.queryOne(ctx, query, id)
}

// Update applies a partial update: only the supplied fields change. Fails
// with ErrNotFound for a missing id and ValidationError for unknown columns
// or type-conflicting values. Returns the updated record.
func (s *Service) Update(ctx context.Context, id int64, fields map[string]any) (Record, error) {
	cols, err := s.writableColumns(ctx)
	if err != nil {
		if errors.As(err, new(*ValidationError)) {
			// Table missing means the record cannot exist.
			return nil, ErrNotFound
		}
		return nil, err
	}

	names, args, err := coerceFields(fields, cols)
	if err != nil {
		return nil, err
	}

	assignments := make([]string, len(names))
	for i, name := range names {
		assignments[i] = fmt.Sprintf("%s = $%d", quoteIdentifier(name), i+1)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING *",
		quoteIdentifier(s.table),
		strings.Join(assignments, ", "),
		quoteIdentifier(idColumn),
		len(args),
	)

	return s.queryOne(ctx, query, args...)
}

// Delete removes the record with the given id. Deleting an id that does not
// exist (or no longer exists) returns ErrNotFound.
func (s *Service) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		quoteIdentifier(s.table), quoteIdentifier(idColumn))

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		if isUndefinedTable(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// queryOne runs a query expected to yield exactly one record.
func (s *Service) queryOne(ctx context.Context, query string, args ...any) (Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query record: %w", err)
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// collectRecords materializes rows into Records using the result's field
// descriptions for column names.
func collectRecords(rows pgx.Rows) ([]Record, error) {
	fields := rows.FieldDescriptions()

	records := make([]Record, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		record := make(Record, len(fields))
		for i, fd := range fields {
			record[fd.Name] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}

// writableColumns returns the table's columns excluding the id column.
// A missing table surfaces as a ValidationError telling the caller to
// upload a dataset first.
func (s *Service) writableColumns(ctx context.Context) ([]ColumnInfo, error) {
	cols, err := tableColumns(ctx, s.pool, s.table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &ValidationError{Message: "no dataset has been uploaded yet"}
	}

	writable := make([]ColumnInfo, 0, len(cols)-1)
	for _, col := range cols {
		if strings.EqualFold(col.Name, idColumn) {
			continue
		}
		writable = append(writable, col)
	}
	return writable, nil
}

// coerceFields validates a request field map against the table's columns
// and converts values to driver arguments. Field names are matched
// case-insensitively. Returns column names and arguments in deterministic
// order so generated SQL is stable.
func coerceFields(fields map[string]any, cols []ColumnInfo) ([]string, []any, error) {
	if len(fields) == 0 {
		return nil, nil, &ValidationError{Message: "no fields provided"}
	}

	byName := make(map[string]ColumnInfo, len(cols))
	for _, col := range cols {
		byName[strings.ToLower(col.Name)] = col
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	names := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if strings.EqualFold(key, idColumn) {
			return nil, nil, &ValidationError{Field: key, Message: "id is assigned by the database"}
		}
		col, ok := byName[strings.ToLower(key)]
		if !ok {
			return nil, nil, &ValidationError{Field: key, Message: "unknown column"}
		}
		arg, err := coerceValue(col, fields[key])
		if err != nil {
			return nil, nil, err
		}
		names = append(names, col.Name)
		args = append(args, arg)
	}

	return names, args, nil
}

// coerceValue converts a JSON-decoded value to a driver argument for the
// column, rejecting type conflicts instead of silently coercing.
func coerceValue(col ColumnInfo, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch col.Type {
	case "bigint", "integer", "smallint":
		f, ok := v.(float64) // JSON numbers decode as float64
		if !ok {
			return nil, &ValidationError{Field: col.Name, Message: "expected an integer"}
		}
		if f != math.Trunc(f) {
			return nil, &ValidationError{Field: col.Name, Message: "expected an integer, got a fraction"}
		}
		return int64(f), nil

	case "double precision", "real", "numeric":
		f, ok := v.(float64)
		if !ok {
			return nil, &ValidationError{Field: col.Name, Message: "expected a number"}
		}
		return f, nil

	case "text", "character varying":
		str, ok := v.(string)
		if !ok {
			return nil, &ValidationError{Field: col.Name, Message: "expected a string"}
		}
		return str, nil

	default:
		return nil, &ValidationError{Field: col.Name, Message: "unsupported column type " + col.Type}
	}
}

// isUndefinedTable reports whether err is PostgreSQL's undefined_table
// (42P01), which this service treats as "nothing uploaded yet".
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
