// Command ecsvcat prints the header of an ECSV file as JSON and re-emits its
// data rows as CSV, TSV or normalized ECSV.
//
//	ecsvcat [-header] [-rows] [-o comma|tab|ecsv] [-buffer N] FILE|-
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/JonMunkholm/ecsv/internal/config"
	"github.com/JonMunkholm/ecsv/internal/ecsv"
	"github.com/JonMunkholm/ecsv/internal/logging"
)

type options struct {
	header bool
	rows   bool
	output string
	buffer int
}

func main() {
	var opts options
	defaults := config.Defaults()

	flag.BoolVar(&opts.header, "header", false, "print the header as JSON")
	flag.BoolVar(&opts.rows, "rows", false, "print the data rows")
	flag.StringVar(&opts.output, "o", "comma", "row output format: comma, tab or ecsv")
	flag.IntVar(&opts.buffer, "buffer", defaults.Reader.BufferSize, "reader window size in bytes")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: ecsvcat [-header] [-rows] [-o comma|tab|ecsv] [-buffer N] FILE|-\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logging.Setup(os.Getenv("LOG_LEVEL"), defaults.Logging.Format, os.Stderr)

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	// With neither flag, print both.
	if !opts.header && !opts.rows {
		opts.header, opts.rows = true, true
	}

	if err := run(flag.Arg(0), opts, os.Stdout); err != nil {
		slog.Error("ecsvcat failed", "file", flag.Arg(0), "kind", ecsv.KindOf(err), "error", err)
		os.Exit(1)
	}
}

func run(path string, opts options, out io.Writer) error {
	in := io.Reader(os.Stdin)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	file, err := ecsv.ReadSize(in, opts.buffer)
	if err != nil {
		return err
	}
	slog.Debug("header parsed", "columns", len(file.Header.Datatype), "header_lines", file.HeaderLines)

	if opts.header {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(file.Header); err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
	}
	if !opts.rows {
		return nil
	}
	return copyRows(file, opts.output, out)
}

// rowWriter is satisfied by both csv.Writer and ecsv.Writer.
type rowWriter interface {
	Write(record []string) error
}

func copyRows(file *ecsv.File, format string, out io.Writer) error {
	var (
		w     rowWriter
		flush func() error
	)
	names := file.Columns()
	switch format {
	case "comma", "tab":
		cw := csv.NewWriter(out)
		if format == "tab" {
			cw.Comma = '\t'
		}
		w = cw
		flush = func() error {
			cw.Flush()
			return cw.Error()
		}
	case "ecsv":
		ew := ecsv.NewWriter(out, file.Header)
		w = ew
		// A file without rows still gets its header.
		flush = func() error {
			if err := ew.WriteHeader(); err != nil {
				return err
			}
			return ew.Flush()
		}
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	for first := true; ; first = false {
		record, err := file.Rows.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		// The ECSV writer emits its own names row.
		if first && format == "ecsv" && sameNames(record, names) {
			continue
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return flush()
}

func sameNames(record, names []string) bool {
	if len(record) != len(names) {
		return false
	}
	for i := range record {
		if strings.TrimSpace(record[i]) != names[i] {
			return false
		}
	}
	return true
}
