package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/ecsv/internal/ecsv"
	"github.com/JonMunkholm/ecsv/internal/logging"
)

// maxErrorSamples caps InspectResult.ErrorSamples.
const maxErrorSamples = 20

// ColumnPlan is how one header column would be stored.
type ColumnPlan struct {
	Name       string        `json:"name"`
	Datatype   ecsv.DataType `json:"datatype"`
	ColumnType string        `json:"columnType"`
	Unit       string        `json:"unit,omitempty"`
}

// InspectResult describes an ECSV file without importing it.
type InspectResult struct {
	FileName       string       `json:"fileName"`
	SuggestedTable string       `json:"suggestedTable"`
	Header         *ecsv.Header `json:"header"`
	HeaderLines    int          `json:"headerLines"`
	Columns        []ColumnPlan `json:"columns"`

	// NamesRow is true when the first body row repeats the column names.
	NamesRow   bool       `json:"namesRow"`
	TotalRows  int        `json:"totalRows"`
	SampleRows [][]string `json:"sampleRows"`

	// WidthMismatches counts rows whose field count differs from the header.
	WidthMismatches  int         `json:"widthMismatches"`
	ConversionErrors int         `json:"conversionErrors"`
	ErrorSamples     []FailedRow `json:"errorSamples"`

	BytesRead        int64 `json:"bytesRead"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

// Inspect parses the header and scans every data row of r, reporting what an
// import would do. Nothing is written to the database.
func (s *Service) Inspect(ctx context.Context, fileName string, r io.Reader) (*InspectResult, error) {
	start := time.Now()
	in := WrapForStreaming(r, 0)

	f, err := ecsv.ReadSize(in, s.cfg.Reader.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}
	cols := f.Header.Datatype
	if err := checkColumns(cols); err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}

	res := &InspectResult{
		FileName:       fileName,
		SuggestedTable: TableNameFor(fileName, s.cfg.Import.TablePrefix),
		Header:         &f.Header,
		HeaderLines:    f.HeaderLines,
		Columns:        planColumns(cols),
		SampleRows:     [][]string{},
		ErrorSamples:   []FailedRow{},
	}

	rows := newDataRows(f)
	for {
		record, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fileName, err)
		}
		if rows.Row()%ContextCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		res.TotalRows++
		if len(res.SampleRows) < s.cfg.Import.SampleRows {
			res.SampleRows = append(res.SampleRows, record)
		}
		if len(record) != len(cols) {
			res.WidthMismatches++
		}
		if _, err := ConvertRow(cols, record); err != nil {
			res.ConversionErrors++
			if len(res.ErrorSamples) < maxErrorSamples {
				res.ErrorSamples = append(res.ErrorSamples, FailedRow{
					Row:    rows.Row(),
					Reason: err.Error(),
					Data:   record,
				})
			}
		}
	}

	res.NamesRow = rows.NamesRow()
	res.BytesRead = in.Counter.BytesRead()
	res.ProcessingTimeMs = time.Since(start).Milliseconds()

	logging.FromContext(ctx).Debug("inspected file",
		"file", fileName,
		"rows", res.TotalRows,
		"conversion_errors", res.ConversionErrors,
	)
	return res, nil
}

func planColumns(cols []ecsv.ColumnSpec) []ColumnPlan {
	plan := make([]ColumnPlan, len(cols))
	for i, c := range cols {
		plan[i] = ColumnPlan{
			Name:       c.Name,
			Datatype:   c.Datatype,
			ColumnType: ColumnType(c.Datatype),
			Unit:       c.Unit,
		}
	}
	return plan
}
