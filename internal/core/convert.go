package core

// convert.go turns ECSV cell text into pgtype values for COPY.
//
// Every ToPg* function returns a value with Valid=false for an empty cell,
// which COPY writes as NULL, and an error for text the column type cannot
// hold. Column types are the ones chosen by ColumnType.

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/ecsv/internal/ecsv"
)

// numericRegex matches integers, decimals and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ConvertRow converts a record against the declared columns. The record
// must have exactly one field per column.
func ConvertRow(cols []ecsv.ColumnSpec, record []string) ([]any, error) {
	if len(record) != len(cols) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(cols), len(record))
	}
	values := make([]any, len(cols))
	for i, col := range cols {
		v, err := ConvertValue(col.Datatype, record[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		values[i] = v
	}
	return values, nil
}

// ConvertValue parses raw as a value of type dt.
func ConvertValue(dt ecsv.DataType, raw string) (any, error) {
	switch dt {
	case ecsv.Bool:
		return ToPgBool(raw)
	case ecsv.Int8:
		return ToPgInt4(raw, 8)
	case ecsv.Int16:
		return ToPgInt4(raw, 16)
	case ecsv.Int32:
		return ToPgInt4(raw, 32)
	case ecsv.Int64:
		return ToPgInt8(raw)
	case ecsv.Unt8:
		return ToPgUnsigned(raw, 8)
	case ecsv.Unt16:
		return ToPgUnsigned(raw, 16)
	case ecsv.Unt32:
		return ToPgUnsigned(raw, 32)
	case ecsv.Unt64:
		return ToPgUint64(raw)
	case ecsv.Float16, ecsv.Float32:
		return ToPgFloat4(raw)
	case ecsv.Float64:
		return ToPgFloat8(raw)
	case ecsv.Float128:
		return ToPgNumeric(raw)
	default:
		// complex and string columns are stored verbatim
		return ToPgText(raw), nil
	}
}

// ToPgText keeps surrounding whitespace; only an empty cell is NULL.
func ToPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgBool accepts true/false, t/f, yes/no, y/n and 1/0 in any case.
func ToPgBool(s string) (pgtype.Bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return pgtype.Bool{}, nil
	case "true", "t", "yes", "y", "1":
		return pgtype.Bool{Bool: true, Valid: true}, nil
	case "false", "f", "no", "n", "0":
		return pgtype.Bool{Bool: false, Valid: true}, nil
	}
	return pgtype.Bool{}, fmt.Errorf("invalid bool %q", s)
}

// ToPgInt4 parses a signed integer that must fit in bits.
func ToPgInt4(s string, bits int) (pgtype.Int4, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Int4{}, nil
	}
	i, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return pgtype.Int4{}, fmt.Errorf("invalid int%d %q", bits, s)
	}
	return pgtype.Int4{Int32: int32(i), Valid: true}, nil
}

func ToPgInt8(s string) (pgtype.Int8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Int8{}, nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return pgtype.Int8{}, fmt.Errorf("invalid int64 %q", s)
	}
	return pgtype.Int8{Int64: i, Valid: true}, nil
}

// ToPgUnsigned parses an unsigned integer of at most 32 bits into bigint.
func ToPgUnsigned(s string, bits int) (pgtype.Int8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Int8{}, nil
	}
	u, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return pgtype.Int8{}, fmt.Errorf("invalid unt%d %q", bits, s)
	}
	return pgtype.Int8{Int64: int64(u), Valid: true}, nil
}

// ToPgUint64 stores the full unsigned 64-bit range as numeric.
func ToPgUint64(s string) (pgtype.Numeric, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{}, nil
	}
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return pgtype.Numeric{}, fmt.Errorf("invalid unt64 %q", s)
	}
	return pgtype.Numeric{Int: new(big.Int).SetUint64(u), Valid: true}, nil
}

// ToPgFloat4 accepts nan and inf spellings as strconv does.
func ToPgFloat4(s string) (pgtype.Float4, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Float4{}, nil
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return pgtype.Float4{}, fmt.Errorf("invalid float32 %q", s)
	}
	return pgtype.Float4{Float32: float32(f), Valid: true}, nil
}

func ToPgFloat8(s string) (pgtype.Float8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Float8{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return pgtype.Float8{}, fmt.Errorf("invalid float64 %q", s)
	}
	return pgtype.Float8{Float64: f, Valid: true}, nil
}

// ToPgNumeric parses an exact decimal, including exponent notation, nan
// and signed inf. Precision is not rounded through float64.
func ToPgNumeric(s string) (pgtype.Numeric, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return pgtype.Numeric{}, nil
	case "nan":
		return pgtype.Numeric{NaN: true, Valid: true}, nil
	case "inf", "+inf", "infinity", "+infinity":
		return pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true}, nil
	case "-inf", "-infinity":
		return pgtype.Numeric{InfinityModifier: pgtype.NegativeInfinity, Valid: true}, nil
	}
	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{}, fmt.Errorf("invalid decimal %q", s)
	}

	mantissa, expPart, _ := strings.Cut(strings.ToLower(s), "e")
	var exp int64
	if expPart != "" {
		var err error
		if exp, err = strconv.ParseInt(expPart, 10, 32); err != nil {
			return pgtype.Numeric{}, fmt.Errorf("invalid decimal %q: exponent out of range", s)
		}
	}
	whole, frac, _ := strings.Cut(mantissa, ".")
	exp -= int64(len(frac))
	if exp < math.MinInt32 {
		return pgtype.Numeric{}, fmt.Errorf("invalid decimal %q: exponent out of range", s)
	}

	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return pgtype.Numeric{}, fmt.Errorf("invalid decimal %q", s)
	}
	return pgtype.Numeric{Int: n, Exp: int32(exp), Valid: true}, nil
}

// ToPgUUID converts a string to pgtype.UUID, invalid when s is not a UUID.
func ToPgUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

// PgUUIDToString returns "" for an invalid UUID.
func PgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
