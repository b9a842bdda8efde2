package ecsv

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Framing lines that must open the header block.
const (
	Signature     = "%ECSV 1.0"
	DocumentStart = "---"
)

// File is a parsed ECSV header together with a reader for the data rows.
// Rows is the only way to reach the body once Read returns.
type File struct {
	Header Header
	Rows   *csv.Reader

	// HeaderLines is the number of lines the header block occupied.
	HeaderLines int
}

// Columns returns the column names declared in the header.
func (f *File) Columns() []string {
	return f.Header.Names()
}

// ReadAll reads all remaining rows.
func (f *File) ReadAll() ([][]string, error) {
	return f.Rows.ReadAll()
}

// Read parses the header of an ECSV stream and returns it with a row reader
// positioned at the first line of the data section.
func Read(r io.Reader) (*File, error) {
	return ReadSize(r, DefaultBufferSize)
}

// ReadSize is Read with a window of size bytes for each of the header and
// body readers.
func ReadSize(r io.Reader, size int) (*File, error) {
	size = bufferSize(size)
	hr := newHeaderReader(r, size)
	lines := bufio.NewReader(hr)

	if err := expectLine(lines, Signature); err != nil {
		return nil, err
	}
	if err := expectLine(lines, DocumentStart); err != nil {
		return nil, err
	}

	h, err := decodeHeader(lines)
	if err != nil {
		// The YAML decoder flattens reader errors into text; report the
		// original one when the header reader failed.
		if hr.err != nil {
			return nil, hr.err
		}
		return nil, err
	}

	delim := h.Delimiter.Byte()

	body, err := hr.bodyReader(size)
	if err != nil {
		return nil, err
	}

	rows := csv.NewReader(body)
	rows.Comma = rune(delim)
	rows.FieldsPerRecord = -1

	return &File{
		Header:      h,
		Rows:        rows,
		HeaderLines: hr.Lines(),
	}, nil
}

func expectLine(r *bufio.Reader, want string) error {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		var e *Error
		if errors.As(err, &e) {
			return err
		}
		return &Error{Kind: KindIO, Err: err}
	}
	got := strings.TrimRightFunc(line, unicode.IsSpace)
	if got != want {
		return &Error{
			Kind: KindInvalidSignature,
			Err:  fmt.Errorf("expected %q, got %q", want, got),
		}
	}
	return nil
}

func decodeHeader(r io.Reader) (Header, error) {
	var h Header
	if err := yaml.NewDecoder(r).Decode(&h); err != nil {
		if err == io.EOF {
			err = errors.New("empty header document")
		}
		return Header{}, &Error{Kind: KindDecode, Err: err}
	}
	if err := h.validate(); err != nil {
		return Header{}, &Error{Kind: KindDecode, Err: err}
	}
	return h, nil
}
