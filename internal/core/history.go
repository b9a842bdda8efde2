package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/ecsv/internal/ecsv"
	"github.com/JonMunkholm/ecsv/internal/logging"
)

// HistoryTable records every import.
const HistoryTable = "ecsv_imports"

// ErrImportNotActive is returned when rolling back an import that never
// committed any rows.
var ErrImportNotActive = errors.New("import is not active")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ecsv_imports (
		id             uuid PRIMARY KEY,
		file_name      text NOT NULL,
		table_name     text NOT NULL,
		columns        text[] NOT NULL DEFAULT '{}',
		header         jsonb,
		rows_inserted  integer NOT NULL DEFAULT 0,
		rows_skipped   integer NOT NULL DEFAULT 0,
		duration_ms    integer NOT NULL DEFAULT 0,
		status         text NOT NULL,
		error          text,
		failed_rows    jsonb NOT NULL DEFAULT '[]',
		ip_address     text,
		user_agent     text,
		imported_at    timestamptz NOT NULL DEFAULT now(),
		rolled_back_at timestamptz
	)`,
	`CREATE INDEX IF NOT EXISTS ecsv_imports_imported_at_idx ON ecsv_imports (imported_at DESC)`,
}

// EnsureSchema creates the import history table if it does not exist.
func (s *Service) EnsureSchema(ctx context.Context) error {
	if s.pool == nil {
		return ErrNoDatabase
	}
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// recordFromResult builds the history row for result, taking client details
// from ctx.
func recordFromResult(ctx context.Context, result *ImportResult, status ImportStatus) ImportRecord {
	rec := ImportRecord{
		ID:           result.ImportID,
		FileName:     result.FileName,
		Table:        result.Table,
		Header:       result.Header,
		RowsInserted: result.Inserted,
		RowsSkipped:  result.Skipped,
		DurationMs:   int(result.Duration.Milliseconds()),
		Status:       status,
		Error:        result.Error,
		FailedRows:   result.FailedRows,
		IPAddress:    IPAddressFromContext(ctx),
		UserAgent:    UserAgentFromContext(ctx),
	}
	if result.Header != nil {
		rec.Columns = result.Header.Names()
	}
	return rec
}

func insertImportRecord(ctx context.Context, db DBTX, rec ImportRecord) error {
	columns := rec.Columns
	if columns == nil {
		columns = []string{}
	}
	failed := rec.FailedRows
	if failed == nil {
		failed = []FailedRow{}
	}

	_, err := db.Exec(ctx, `
		INSERT INTO ecsv_imports (
			id, file_name, table_name, columns, header, rows_inserted, rows_skipped,
			duration_ms, status, error, failed_rows, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ToPgUUID(rec.ID),
		rec.FileName,
		rec.Table,
		columns,
		rec.Header,
		rec.RowsInserted,
		rec.RowsSkipped,
		rec.DurationMs,
		string(rec.Status),
		ToPgText(rec.Error),
		failed,
		ToPgText(rec.IPAddress),
		ToPgText(rec.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}

const recordColumns = `id, file_name, table_name, columns, header, rows_inserted, rows_skipped,
	duration_ms, status, COALESCE(error, ''), COALESCE(ip_address, ''),
	COALESCE(user_agent, ''), imported_at, rolled_back_at`

func scanRecord(row pgx.Row, extra ...any) (ImportRecord, error) {
	var (
		rec        ImportRecord
		id         pgtype.UUID
		status     string
		header     *ecsv.Header
		rolledBack pgtype.Timestamptz
	)
	dest := []any{
		&id, &rec.FileName, &rec.Table, &rec.Columns, &header, &rec.RowsInserted,
		&rec.RowsSkipped, &rec.DurationMs, &status, &rec.Error, &rec.IPAddress,
		&rec.UserAgent, &rec.ImportedAt, &rolledBack,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return ImportRecord{}, err
	}
	rec.ID = PgUUIDToString(id)
	rec.Status = ImportStatus(status)
	rec.Header = header
	if rolledBack.Valid {
		t := rolledBack.Time
		rec.RolledBackAt = &t
	}
	return rec, nil
}

// ListImports returns the most recent imports, newest first, without their
// failed rows. limit <= 0 uses the default.
func (s *Service) ListImports(ctx context.Context, limit int) ([]ImportRecord, error) {
	if s.pool == nil {
		return nil, ErrNoDatabase
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM ecsv_imports ORDER BY imported_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	records := []ImportRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	return records, nil
}

// GetImport returns one history record including its failed rows.
func (s *Service) GetImport(ctx context.Context, importID string) (*ImportRecord, error) {
	if s.pool == nil {
		return nil, ErrNoDatabase
	}
	id := ToPgUUID(importID)
	if !id.Valid {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}

	var failed []FailedRow
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`, failed_rows FROM ecsv_imports WHERE id = $1`, id)
	rec, err := scanRecord(row, &failed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	if err != nil {
		return nil, fmt.Errorf("get import: %w", err)
	}
	rec.FailedRows = failed
	return &rec, nil
}

// RollbackImport deletes every row an import inserted and marks it rolled
// back. Both happen in one transaction.
func (s *Service) RollbackImport(ctx context.Context, importID string) (RollbackResult, error) {
	result := RollbackResult{ImportID: importID}

	fail := func(err error) (RollbackResult, error) {
		result.Error = err.Error()
		return result, err
	}

	if s.pool == nil {
		return fail(ErrNoDatabase)
	}
	id := ToPgUUID(importID)
	if !id.Valid {
		return fail(fmt.Errorf("%w: %s", ErrImportNotFound, importID))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		`SELECT table_name, status FROM ecsv_imports WHERE id = $1 FOR UPDATE`, id,
	).Scan(&result.Table, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fail(fmt.Errorf("%w: %s", ErrImportNotFound, importID))
	}
	if err != nil {
		return fail(fmt.Errorf("get import: %w", err))
	}

	switch ImportStatus(status) {
	case StatusRolledBack:
		return fail(ErrAlreadyRolledBack)
	case StatusActive:
	default:
		return fail(fmt.Errorf("%w: status is %s", ErrImportNotActive, status))
	}
	if err := ValidateTableName(result.Table); err != nil {
		return fail(err)
	}

	// The delete runs under a savepoint so a table dropped since the import
	// leaves the transaction usable for the status update.
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fail(fmt.Errorf("savepoint: %w", err))
	}
	tag, err := sp.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, quoteIdentifier(result.Table), ImportIDColumn), id)
	switch {
	case err == nil:
		if err := sp.Commit(ctx); err != nil {
			return fail(fmt.Errorf("release savepoint: %w", err))
		}
		result.RowsDeleted = tag.RowsAffected()
	case isUndefinedTable(err):
		if err := sp.Rollback(ctx); err != nil {
			return fail(fmt.Errorf("rollback to savepoint: %w", err))
		}
	default:
		return fail(fmt.Errorf("delete rows: %w", err))
	}

	if _, err := tx.Exec(ctx,
		`UPDATE ecsv_imports SET status = $2, rolled_back_at = $3 WHERE id = $1`,
		id, string(StatusRolledBack), time.Now(),
	); err != nil {
		return fail(fmt.Errorf("mark rolled back: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}

	result.Success = true
	logging.WithFields(ctx, "import_id", importID, "table", result.Table).
		Info("import rolled back", "rows_deleted", result.RowsDeleted)
	return result, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
