package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/ecsv/internal/ecsv"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "invalid signature",
			err:      fmt.Errorf("read stars.ecsv: %w", &ecsv.Error{Kind: ecsv.KindInvalidSignature, Err: errors.New(`expected "%ECSV 1.0"`)}),
			wantCode: "ECSV001",
		},
		{
			name:     "malformed header line",
			err:      &ecsv.Error{Kind: ecsv.KindMalformedHeaderLine, Line: 4},
			wantCode: "ECSV002",
		},
		{
			name:     "header decode",
			err:      &ecsv.Error{Kind: ecsv.KindDecode, Err: errors.New(`missing field "datatype"`)},
			wantCode: "ECSV003",
		},
		{
			name:     "read error",
			err:      &ecsv.Error{Kind: ecsv.KindIO, Err: errors.New("unexpected EOF")},
			wantCode: "ECSV004",
		},
		{
			name:     "too many imports",
			err:      ErrTooManyImports,
			wantCode: "IMP002",
		},
		{
			name:     "wrapped not found",
			err:      fmt.Errorf("%w: 1234", ErrImportNotFound),
			wantCode: "IMP003",
		},
		{
			name:     "context cancelled",
			err:      fmt.Errorf("copy into stars: %w", context.Canceled),
			wantCode: "IMP004",
		},
		{
			name:     "deadline",
			err:      context.DeadlineExceeded,
			wantCode: "IMP005",
		},
		{
			name:     "already rolled back",
			err:      ErrAlreadyRolledBack,
			wantCode: "IMP006",
		},
		{
			name:     "table mismatch",
			err:      fmt.Errorf("%w: column 1 is \"a\", file has \"b\"", ErrTableMismatch),
			wantCode: "TBL002",
		},
		{
			name:     "reserved column",
			err:      errors.New(`column "import_id": name is reserved`),
			wantCode: "TBL003",
		},
		{
			name:     "unique violation by sqlstate",
			err:      fmt.Errorf("copy into stars: %w", &pgconn.PgError{Code: "23505", Message: "duplicate key value"}),
			wantCode: "DB005",
		},
		{
			name:     "unmapped sqlstate falls through to patterns",
			err:      &pgconn.PgError{Code: "08006", Message: "connection reset by peer"},
			wantCode: "DB002",
		},
		{
			name:     "body limit",
			err:      errors.New("http: request body too large"),
			wantCode: "FILE001",
		},
		{
			name:     "invalid csv record",
			err:      errors.New(`invalid csv record at data line 3: extraneous or missing " in quoted-field`),
			wantCode: "FILE002",
		},
		{
			name:     "case insensitive matching",
			err:      errors.New("dial tcp: CONNECTION REFUSED"),
			wantCode: "DB001",
		},
		{
			name:     "rate limit",
			err:      errors.New("rate limit exceeded"),
			wantCode: "RATE001",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && (got.Message == "" || got.Action == "") {
				t.Errorf("MapError() = %+v, want message and action", got)
			}
		})
	}
}

func TestErrorPatternsHaveCodes(t *testing.T) {
	for _, ep := range errorPatterns {
		if ep.pattern != strings.ToLower(ep.pattern) {
			t.Errorf("pattern %q is not lower case", ep.pattern)
		}
		if ep.msg.Code == "" || ep.msg.Message == "" {
			t.Errorf("pattern %q has incomplete message %+v", ep.pattern, ep.msg)
		}
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyImports)

	expected := "System is busy processing other imports (Code: IMP002). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ecsv.ErrInvalidSignature, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("read: %w", ecsv.ErrMalformedHeaderLine)
		userErr := NewUserError(techErr)

		if userErr.Error() != "Malformed header line" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if userErr.User.Code != "ECSV002" {
			t.Errorf("Code = %q, want ECSV002", userErr.User.Code)
		}
		if !errors.Is(userErr, ecsv.ErrMalformedHeaderLine) {
			t.Error("Unwrap() should return original error")
		}
	})
}
