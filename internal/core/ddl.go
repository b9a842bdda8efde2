package core

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/JonMunkholm/ecsv/internal/ecsv"
)

// ImportIDColumn is added to every import table so an import can be rolled
// back by deleting its rows.
const ImportIDColumn = "import_id"

// maxIdentifierLen is PostgreSQL's NAMEDATALEN-1.
const maxIdentifierLen = 63

var tableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// ColumnType returns the PostgreSQL column type used to store dt.
func ColumnType(dt ecsv.DataType) string {
	switch dt {
	case ecsv.Bool:
		return "boolean"
	case ecsv.Int8, ecsv.Int16, ecsv.Int32:
		return "integer"
	case ecsv.Int64, ecsv.Unt8, ecsv.Unt16, ecsv.Unt32:
		return "bigint"
	case ecsv.Unt64, ecsv.Float128:
		return "numeric"
	case ecsv.Float16, ecsv.Float32:
		return "real"
	case ecsv.Float64:
		return "double precision"
	default:
		return "text"
	}
}

// ValidateTableName accepts lower-case unquoted identifiers only, other
// than the history table.
func ValidateTableName(name string) error {
	if !tableNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	if name == HistoryTable {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidTableName, name)
	}
	return nil
}

// TableNameFor derives a table name from an uploaded file name:
// "Sky Survey-2024.ecsv" with prefix "ecsv_" becomes "ecsv_sky_survey_2024".
func TableNameFor(fileName, prefix string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))

	name := nonIdentChars.ReplaceAllString(strings.ToLower(base), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "import"
	}
	name = prefix + name
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	if len(name) > maxIdentifierLen {
		name = strings.TrimRight(name[:maxIdentifierLen], "_")
	}
	return name
}

// quoteIdentifier quotes a SQL identifier, doubling embedded quotes.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// checkColumns rejects header columns that cannot become table columns.
func checkColumns(cols []ecsv.ColumnSpec) error {
	if len(cols) == 0 {
		return fmt.Errorf("header declares no columns")
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		switch {
		case len(c.Name) > maxIdentifierLen:
			return fmt.Errorf("column %q: name longer than %d bytes", c.Name, maxIdentifierLen)
		case strings.ContainsRune(c.Name, 0):
			return fmt.Errorf("column %q: name contains NUL", c.Name)
		case c.Name == ImportIDColumn:
			return fmt.Errorf("column %q: name is reserved", c.Name)
		case seen[c.Name]:
			return fmt.Errorf("column %q: duplicate name", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// CreateTableSQL builds the CREATE TABLE statement for an import target.
func CreateTableSQL(table string, cols []ecsv.ColumnSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdentifier(table))
	for _, c := range cols {
		fmt.Fprintf(&b, "\t%s %s,\n", quoteIdentifier(c.Name), ColumnType(c.Datatype))
	}
	fmt.Fprintf(&b, "\t%s uuid NOT NULL\n)", ImportIDColumn)
	return b.String()
}

// CreateIndexSQL indexes the import id column used by rollback.
func CreateIndexSQL(table string) string {
	const suffix = "_" + ImportIDColumn + "_idx"
	idx := table
	if len(idx)+len(suffix) > maxIdentifierLen {
		idx = idx[:maxIdentifierLen-len(suffix)]
	}
	idx += suffix
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdentifier(idx), quoteIdentifier(table), ImportIDColumn)
}

// copyColumns lists the COPY target columns in insert order.
func copyColumns(cols []ecsv.ColumnSpec) []string {
	names := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return append(names, ImportIDColumn)
}

// existingColumns returns the columns of table in ordinal order, or nil when
// the table does not exist.
func existingColumns(ctx context.Context, db DBTX, table string) ([]string, error) {
	rows, err := db.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// matchColumns reports whether an existing table can take rows of cols.
func matchColumns(existing []string, cols []ecsv.ColumnSpec) error {
	want := copyColumns(cols)
	if len(existing) != len(want) {
		return fmt.Errorf("%w: table has %d columns, file needs %d", ErrTableMismatch, len(existing), len(want))
	}
	for i := range want {
		if existing[i] != want[i] {
			return fmt.Errorf("%w: column %d is %q, file has %q", ErrTableMismatch, i+1, existing[i], want[i])
		}
	}
	return nil
}

// prepareTable creates table for cols, or checks that an existing table has
// the same columns in the same order.
func prepareTable(ctx context.Context, db DBTX, table string, cols []ecsv.ColumnSpec) (created bool, err error) {
	existing, err := existingColumns(ctx, db, table)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, matchColumns(existing, cols)
	}
	if _, err := db.Exec(ctx, CreateTableSQL(table, cols)); err != nil {
		return false, fmt.Errorf("create table %s: %w", table, err)
	}
	if _, err := db.Exec(ctx, CreateIndexSQL(table)); err != nil {
		return false, fmt.Errorf("create index on %s: %w", table, err)
	}
	return true, nil
}
