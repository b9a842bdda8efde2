package ecsv

import (
	"errors"
	"fmt"
)

// Kind classifies a failure while reading an ECSV stream.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindIO is a read failure of the underlying source.
	KindIO
	// KindDecode means the header payload is not a valid header document.
	KindDecode
	// KindInvalidSignature means one of the two framing lines did not match.
	KindInvalidSignature
	// KindMalformedHeaderLine means a commented line was followed by
	// something other than a second marker or a single space.
	KindMalformedHeaderLine
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "read error"
	case KindDecode:
		return "header decode error"
	case KindInvalidSignature:
		return "invalid signature"
	case KindMalformedHeaderLine:
		return "malformed header line"
	default:
		return "unknown error"
	}
}

// Error is returned by every reader in this package.
type Error struct {
	Kind Kind
	Line int // 1-based input line, 0 when not tied to a line
	Err  error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrIO                  = &Error{Kind: KindIO}
	ErrDecode              = &Error{Kind: KindDecode}
	ErrInvalidSignature    = &Error{Kind: KindInvalidSignature}
	ErrMalformedHeaderLine = &Error{Kind: KindMalformedHeaderLine}
)

func (e *Error) Error() string {
	msg := "ecsv: " + e.Kind.String()
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Line == 0 && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
