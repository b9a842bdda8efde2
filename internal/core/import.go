package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/ecsv/internal/ecsv"
	"github.com/JonMunkholm/ecsv/internal/logging"
)

// ContextCheckInterval is how many rows are processed between checks for
// cancellation.
var ContextCheckInterval = 100

// MaxFailedRows caps the failed rows kept in a result. Skipped still counts
// every failure.
var MaxFailedRows = 1000

// StartImport begins importing an ECSV stream into table and returns the
// import ID at once. An empty table name is derived from fileName. size is
// the stream length in bytes, or 0 when unknown.
//
// If r is an io.Closer it is closed when the import ends. Returns
// ErrTooManyImports when no slot frees up within the configured wait.
func (s *Service) StartImport(ctx context.Context, fileName string, r io.Reader, size int64, table string) (string, error) {
	if s.pool == nil {
		closeReader(r)
		return "", ErrNoDatabase
	}
	if table == "" {
		table = TableNameFor(fileName, s.cfg.Import.TablePrefix)
	}
	if err := ValidateTableName(table); err != nil {
		closeReader(r)
		return "", err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		closeReader(r)
		return "", err
	}

	importID := uuid.New().String()

	// The import outlives the request but keeps its values for logging and
	// the history record.
	base := logging.ContextWithImportID(context.WithoutCancel(ctx), importID)
	importCtx, cancel := context.WithTimeout(base, s.cfg.Import.Timeout)

	imp := &activeImport{
		ID:     importID,
		Cancel: cancel,
		Done:   make(chan struct{}),
		progress: ImportProgress{
			ImportID:   importID,
			Table:      table,
			FileName:   fileName,
			Phase:      PhaseStarting,
			BytesTotal: size,
		},
	}

	s.mu.Lock()
	s.imports[importID] = imp
	s.mu.Unlock()

	in := WrapForStreaming(r, size)

	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer closeReader(r)
		defer func() {
			if rec := recover(); rec != nil {
				logging.FromContext(importCtx).Error("panic in import",
					"table", table,
					"panic", rec,
				)
				msg := fmt.Sprintf("internal error: %v", rec)
				imp.finish(&ImportResult{ImportID: importID, Table: table, FileName: fileName, Error: msg},
					func(p *ImportProgress) {
						p.Phase = PhaseFailed
						p.Error = msg
					})
				s.cleanup(importID, s.cfg.Import.ResultRetention)
			}
		}()

		s.processImport(importCtx, imp, in, fileName, table)
		s.cleanup(importID, s.cfg.Import.ResultRetention)
	}()

	logging.FromContext(base).Info("import started", "file", fileName, "table", table, "size", size)
	return importID, nil
}

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

// processImport runs one import to completion and always calls imp.finish.
func (s *Service) processImport(ctx context.Context, imp *activeImport, in StreamingInput, fileName, table string) {
	start := time.Now()
	logger := logging.WithFields(ctx, "file", fileName, "table", table)

	result := &ImportResult{
		ImportID: imp.ID,
		Table:    table,
		FileName: fileName,
	}

	err := s.runImport(ctx, imp, in, result)
	result.Duration = time.Since(start)

	phase := PhaseComplete
	switch {
	case err == nil:
		logger.Info("import completed",
			"rows", result.TotalRows,
			"inserted", result.Inserted,
			"skipped", result.Skipped,
			"duration", result.Duration,
		)
	case errors.Is(ctx.Err(), context.Canceled):
		phase = PhaseCancelled
		result.Error = "import cancelled"
		logger.Info("import cancelled", "rows", result.TotalRows)
	default:
		phase = PhaseFailed
		result.Error = err.Error()
		logger.Error("import failed", "error", err, "rows", result.TotalRows)
	}

	if phase != PhaseComplete {
		// Rows were rolled back with the transaction.
		result.Inserted = 0
		s.recordFailure(ctx, logger, result)
	}

	imp.finish(result, func(p *ImportProgress) {
		p.Phase = phase
		p.Error = result.Error
		p.Inserted = result.Inserted
		p.Skipped = result.Skipped
		p.CurrentRow = result.TotalRows
		p.BytesRead = in.Counter.BytesRead()
	})
}

func (s *Service) runImport(ctx context.Context, imp *activeImport, in StreamingInput, result *ImportResult) error {
	imp.update(func(p *ImportProgress) { p.Phase = PhaseParsing })

	f, err := ecsv.ReadSize(in, s.cfg.Reader.BufferSize)
	if err != nil {
		return err
	}
	cols := f.Header.Datatype
	if err := checkColumns(cols); err != nil {
		return err
	}
	result.Header = &f.Header

	imp.update(func(p *ImportProgress) {
		p.Phase = PhasePreparing
		p.BytesRead = in.Counter.BytesRead()
	})

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	created, err := prepareTable(ctx, tx, result.Table, cols)
	if err != nil {
		return err
	}
	if created {
		logging.FromContext(ctx).Debug("created import table", "table", result.Table, "columns", len(cols))
	}

	imp.update(func(p *ImportProgress) { p.Phase = PhaseInserting })

	if err := s.copyRows(ctx, imp, tx, in, f, result); err != nil {
		return err
	}

	if err := insertImportRecord(ctx, tx, recordFromResult(ctx, result, StatusActive)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// copyRows converts every data row and sends them to the table in batches.
// Rows that fail conversion are recorded in result and skipped.
func (s *Service) copyRows(ctx context.Context, imp *activeImport, tx pgx.Tx, in StreamingInput, f *ecsv.File, result *ImportResult) error {
	cols := f.Header.Datatype
	target := pgx.Identifier{result.Table}
	columns := copyColumns(cols)
	importID := ToPgUUID(imp.ID)

	batchSize := max(s.cfg.Import.BatchSize, 1)
	batch := make([][]any, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := tx.CopyFrom(ctx, target, columns, pgx.CopyFromRows(batch))
		if err != nil {
			return fmt.Errorf("copy into %s: %w", result.Table, err)
		}
		result.Inserted += int(n)
		batch = batch[:0]

		imp.update(func(p *ImportProgress) {
			p.CurrentRow = result.TotalRows
			p.Inserted = result.Inserted
			p.Skipped = result.Skipped
			p.BytesRead = in.Counter.BytesRead()
		})
		return nil
	}

	rows := newDataRows(f)
	for {
		record, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if rows.Row()%ContextCheckInterval == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		result.TotalRows++

		values, err := ConvertRow(cols, record)
		if err != nil {
			result.Skipped++
			if len(result.FailedRows) < MaxFailedRows {
				result.FailedRows = append(result.FailedRows, FailedRow{
					Row:    rows.Row(),
					Reason: err.Error(),
					Data:   record,
				})
			}
			continue
		}

		batch = append(batch, append(values, importID))
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// recordFailure stores a failed or cancelled import in the history table.
func (s *Service) recordFailure(ctx context.Context, logger *slog.Logger, result *ImportResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := insertImportRecord(ctx, s.pool, recordFromResult(ctx, result, StatusFailed)); err != nil {
		logger.Warn("failed to record import", "error", err)
	}
}
