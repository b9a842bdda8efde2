package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/ecsv/internal/ecsv"
)

// dataRows iterates the body of an ECSV file, dropping the column names
// row when the first record repeats the header's names.
type dataRows struct {
	file     *ecsv.File
	names    []string
	started  bool
	namesRow bool
	n        int
}

func newDataRows(f *ecsv.File) *dataRows {
	return &dataRows{file: f, names: f.Columns()}
}

// Next returns the next data row, or io.EOF after the last one.
func (d *dataRows) Next() ([]string, error) {
	for {
		record, err := d.file.Rows.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, fmt.Errorf("invalid csv record at data line %d: %w", pe.StartLine, pe.Err)
			}
			return nil, err
		}
		if !d.started {
			d.started = true
			if isNamesRow(record, d.names) {
				d.namesRow = true
				continue
			}
		}
		d.n++
		return record, nil
	}
}

// Row is the 1-based number of the row last returned by Next.
func (d *dataRows) Row() int {
	return d.n
}

// NamesRow reports whether a names row was skipped.
func (d *dataRows) NamesRow() bool {
	return d.namesRow
}

func isNamesRow(record, names []string) bool {
	if len(record) != len(names) {
		return false
	}
	for i := range names {
		if strings.TrimSpace(record[i]) != names[i] {
			return false
		}
	}
	return true
}
