package ecsv

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrCommentRecord is returned for a record whose first field starts with
// the comment marker; a reader would drop such a line.
var ErrCommentRecord = errors.New("ecsv: record starts with comment marker")

// Writer produces ECSV output: the commented header block, the column
// names row and then data records.
type Writer struct {
	w      *bufio.Writer
	rows   *csv.Writer
	header Header
	wrote  bool

	// err is the first header failure; every later call returns it.
	err error
}

// NewWriter returns a Writer for h. A zero Delimiter is written as space.
func NewWriter(w io.Writer, h Header) *Writer {
	if h.Delimiter == "" {
		h.Delimiter = DelimiterSpace
	}
	bw := bufio.NewWriter(w)
	rows := csv.NewWriter(bw)
	rows.Comma = rune(h.Delimiter.Byte())
	return &Writer{w: bw, rows: rows, header: h}
}

// WriteHeader writes the header block and the column names row. It is
// called by the first Write if the caller has not done so.
func (w *Writer) WriteHeader() error {
	if w.err != nil {
		return w.err
	}
	if w.wrote {
		return nil
	}
	if err := w.writeHeader(); err != nil {
		w.err = err
		return err
	}
	w.wrote = true
	return nil
}

func (w *Writer) writeHeader() error {
	var doc bytes.Buffer
	enc := yaml.NewEncoder(&doc)
	enc.SetIndent(2)
	if err := enc.Encode(&w.header); err != nil {
		return fmt.Errorf("ecsv: encode header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("ecsv: encode header: %w", err)
	}

	var block bytes.Buffer
	writeCommented(&block, Signature)
	writeCommented(&block, DocumentStart)
	for _, line := range strings.Split(strings.TrimSuffix(doc.String(), "\n"), "\n") {
		writeCommented(&block, line)
	}
	if _, err := w.w.Write(block.Bytes()); err != nil {
		return err
	}
	return w.writeRecord(w.header.Names())
}

func writeCommented(b *bytes.Buffer, line string) {
	b.WriteByte(CommentMarker)
	b.WriteByte(' ')
	b.WriteString(line)
	b.WriteByte('\n')
}

// Write writes a single data record.
func (w *Writer) Write(record []string) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	return w.writeRecord(record)
}

func (w *Writer) writeRecord(record []string) error {
	if len(record) > 0 && strings.HasPrefix(record[0], string(CommentMarker)) {
		return ErrCommentRecord
	}
	if len(record) == 1 && record[0] == "" {
		// csv.Writer emits a blank line here, which readers skip.
		return w.writeEmptyField()
	}
	return w.rows.Write(record)
}

func (w *Writer) writeEmptyField() error {
	w.rows.Flush()
	if err := w.rows.Error(); err != nil {
		return err
	}
	_, err := w.w.WriteString("\"\"\n")
	return err
}

// WriteAll writes records and flushes.
func (w *Writer) WriteAll(records [][]string) error {
	for _, record := range records {
		if err := w.Write(record); err != nil {
			return err
		}
	}
	if err := w.WriteHeader(); err != nil {
		return err
	}
	return w.Flush()
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.rows.Flush()
	if err := w.rows.Error(); err != nil {
		return err
	}
	return w.w.Flush()
}

// Error reports any error from a previous Write or Flush.
func (w *Writer) Error() error {
	if w.err != nil {
		return w.err
	}
	return w.rows.Error()
}
