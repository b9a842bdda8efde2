package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/ecsv/internal/ecsv"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// ImportPhase is the current stage of an import.
type ImportPhase string

const (
	PhaseStarting  ImportPhase = "starting"
	PhaseParsing   ImportPhase = "parsing"
	PhasePreparing ImportPhase = "preparing"
	PhaseInserting ImportPhase = "inserting"
	PhaseComplete  ImportPhase = "complete"
	PhaseFailed    ImportPhase = "failed"
	PhaseCancelled ImportPhase = "cancelled"
)

// Terminal reports whether no further progress will follow.
func (p ImportPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// ImportProgress is a snapshot of a running import.
type ImportProgress struct {
	ImportID   string      `json:"importId"`
	Table      string      `json:"table"`
	FileName   string      `json:"fileName"`
	Phase      ImportPhase `json:"phase"`
	CurrentRow int         `json:"currentRow"`
	Inserted   int         `json:"inserted"`
	Skipped    int         `json:"skipped"`
	Error      string      `json:"error,omitempty"`

	// Row totals are unknown while streaming, so percent comes from bytes.
	BytesRead  int64 `json:"bytesRead"`
	BytesTotal int64 `json:"bytesTotal"`
}

// Percent returns 0-100. A finished import is always 100.
func (p ImportProgress) Percent() int {
	if p.Phase == PhaseComplete {
		return 100
	}
	if p.BytesTotal <= 0 {
		return 0
	}
	return min(int(p.BytesRead*100/p.BytesTotal), 100)
}

// FailedRow is a data row that could not be converted.
type FailedRow struct {
	// Row is the 1-based data row number, not counting the names row.
	Row    int      `json:"row"`
	Reason string   `json:"reason"`
	Data   []string `json:"data"`
}

// ImportResult is the outcome of a finished import.
type ImportResult struct {
	ImportID   string        `json:"importId"`
	Table      string        `json:"table"`
	FileName   string        `json:"fileName"`
	Header     *ecsv.Header  `json:"header,omitempty"`
	TotalRows  int           `json:"totalRows"`
	Inserted   int           `json:"inserted"`
	Skipped    int           `json:"skipped"`
	FailedRows []FailedRow   `json:"failedRows,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// ImportStatus is the persisted state of an import record.
type ImportStatus string

const (
	StatusActive     ImportStatus = "active"
	StatusFailed     ImportStatus = "failed"
	StatusRolledBack ImportStatus = "rolled_back"
)

// ImportRecord is one row of the import history table.
type ImportRecord struct {
	ID           string       `json:"id"`
	FileName     string       `json:"fileName"`
	Table        string       `json:"table"`
	Columns      []string     `json:"columns"`
	Header       *ecsv.Header `json:"header,omitempty"`
	RowsInserted int          `json:"rowsInserted"`
	RowsSkipped  int          `json:"rowsSkipped"`
	DurationMs   int          `json:"durationMs"`
	Status       ImportStatus `json:"status"`
	Error        string       `json:"error,omitempty"`
	FailedRows   []FailedRow  `json:"failedRows,omitempty"`
	IPAddress    string       `json:"ipAddress,omitempty"`
	UserAgent    string       `json:"userAgent,omitempty"`
	ImportedAt   time.Time    `json:"importedAt"`
	RolledBackAt *time.Time   `json:"rolledBackAt,omitempty"`
}

// RollbackResult reports what a rollback removed.
type RollbackResult struct {
	ImportID    string `json:"importId"`
	Table       string `json:"table"`
	RowsDeleted int64  `json:"rowsDeleted"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}
