package core

// error_messages.go maps technical errors to messages with a code users can
// quote to support.
//
// # Error Codes Reference
//
// # ECSV Format Errors (ECSV001-ECSV099)
//
//	ECSV001 - Invalid signature: the file does not start with "# %ECSV 1.0" and "# ---"
//	ECSV002 - Malformed header line: a "#" line is not followed by a space
//	ECSV003 - Invalid header: the YAML header is not a valid ECSV header
//	ECSV004 - Read error: the file could not be read to the end
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Import cancelled
//	IMP002 - System busy: too many imports in progress
//	IMP003 - Import not found or expired
//	IMP004 - Request cancelled
//	IMP005 - Request timed out
//	IMP006 - Import already rolled back
//	IMP007 - Import did not complete, nothing to roll back
//
// # Table Errors (TBL001-TBL099)
//
//	TBL001 - Invalid table name
//	TBL002 - Existing table has different columns
//	TBL003 - Header column cannot be stored (duplicate, reserved or too long)
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV data row
//	FILE003 - No file provided
//	FILE004 - Empty file
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Unable to connect
//	DB002 - Connection interrupted
//	DB003 - Deadlock
//	DB004 - No database configured
//	DB005 - Duplicate key
//	DB006 - Too many connections
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//
// # Default (ERR000)
//
//	ERR000 - Unexpected error, check logs for the technical error
//
// Sentinel errors are matched with errors.Is first, then PostgreSQL error
// codes, then case-insensitive substrings of the error text. The first match
// wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/ecsv/internal/ecsv"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgInvalidSignature = UserMessage{
		Message: "File is not an ECSV file",
		Action:  `The file must start with "# %ECSV 1.0" followed by "# ---"`,
		Code:    "ECSV001",
	}
	msgMalformedHeader = UserMessage{
		Message: "Malformed header line",
		Action:  `Every header line must start with "# "`,
		Code:    "ECSV002",
	}
	msgHeaderDecode = UserMessage{
		Message: "The ECSV header could not be read",
		Action:  "Check the YAML header declares a datatype list with a name and datatype for each column",
		Code:    "ECSV003",
	}
	msgReadError = UserMessage{
		Message: "The file could not be read",
		Action:  "Try uploading the file again",
		Code:    "ECSV004",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}
	msgEmptyFile = UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload an ECSV file with a header",
		Code:    "FILE004",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "IMP005",
	}
)

type sentinelMessage struct {
	target error
	msg    UserMessage
}

// sentinelMessages are checked with errors.Is, in order.
var sentinelMessages = []sentinelMessage{
	{ecsv.ErrInvalidSignature, msgInvalidSignature},
	{ecsv.ErrMalformedHeaderLine, msgMalformedHeader},
	{ecsv.ErrDecode, msgHeaderDecode},
	{ecsv.ErrIO, msgReadError},
	{ErrTooManyImports, UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP002",
	}},
	{ErrImportNotFound, UserMessage{
		Message: "Import not found",
		Action:  "The import may have expired. Check the import history",
		Code:    "IMP003",
	}},
	{ErrAlreadyRolledBack, UserMessage{
		Message: "This import was already rolled back",
		Action:  "No further action is needed",
		Code:    "IMP006",
	}},
	{ErrImportNotActive, UserMessage{
		Message: "This import did not complete",
		Action:  "Nothing was inserted, so there is nothing to roll back",
		Code:    "IMP007",
	}},
	{ErrInvalidTableName, UserMessage{
		Message: "Invalid table name",
		Action:  "Use lower-case letters, digits and underscores, starting with a letter",
		Code:    "TBL001",
	}},
	{ErrTableMismatch, UserMessage{
		Message: "The target table has different columns than the file",
		Action:  "Import into a new table or check the file's column names and order",
		Code:    "TBL002",
	}},
	{ErrNoDatabase, UserMessage{
		Message: "No database is configured",
		Action:  "Set DATABASE_URL and restart the server",
		Code:    "DB004",
	}},
	{ErrEmptyFile, msgEmptyFile},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "IMP004",
	}},
	{context.DeadlineExceeded, msgTimeout},
}

// pgCodeMessages maps SQLSTATE codes.
var pgCodeMessages = map[string]UserMessage{
	"23505": {
		Message: "A record with this key already exists",
		Action:  "Check the target table for rows from an earlier import",
		Code:    "DB005",
	},
	"40P01": {
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB003",
	},
	"53300": {
		Message: "The database has too many connections",
		Action:  "Please try again in a few moments",
		Code:    "DB006",
	},
	"57014": msgTimeout,
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched against the lower-cased error text. More
// specific patterns come first.
var errorPatterns = []errorPattern{
	{"import cancelled", UserMessage{
		Message: "Import was cancelled",
		Action:  "Start a new import when ready",
		Code:    "IMP001",
	}},
	{"name is reserved", UserMessage{
		Message: "A column name is reserved",
		Action:  "Rename the import_id column in the file header",
		Code:    "TBL003",
	}},
	{"duplicate name", UserMessage{
		Message: "Two columns have the same name",
		Action:  "Give every column in the header a unique name",
		Code:    "TBL003",
	}},
	{"name longer than", UserMessage{
		Message: "A column name is too long",
		Action:  "Shorten column names to at most 63 bytes",
		Code:    "TBL003",
	}},
	{"request body too large", msgTooLarge},
	{"file too large", msgTooLarge},
	{"invalid csv", UserMessage{
		Message: "A data row could not be parsed",
		Action:  "Check quoting in the data section",
		Code:    "FILE002",
	}},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Please select an ECSV file to upload",
		Code:    "FILE003",
	}},
	{"empty file", msgEmptyFile},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB001",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB002",
	}},
	{"timeout", msgTimeout},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	msg := MapError(fmt.Errorf("read: %w", ecsv.ErrInvalidSignature))
//	// msg.Code == "ECSV001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := pgCodeMessages[pgErr.Code]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a display string: "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than
// ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
