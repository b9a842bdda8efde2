package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JonMunkholm/ecsv/internal/ecsv"
)

const starsECSV = `# %ECSV 1.0
# ---
# datatype:
# - {name: id, datatype: int32}
# - {name: ra, unit: deg, datatype: float64}
# - {name: name, datatype: string}
# - {name: variable, datatype: bool}
# meta: {source: test}
id ra name variable
1 10.5 Vega False
2 11.25 "Alpha Cen" True
# a body comment
3 oops Sirius False
4 12.0 Rigel
`

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestInspect(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Inspect(context.Background(), "Bright Stars.ecsv", strings.NewReader(starsECSV))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}

	if res.SuggestedTable != "ecsv_bright_stars" {
		t.Errorf("SuggestedTable = %q", res.SuggestedTable)
	}
	if res.HeaderLines != 8 {
		t.Errorf("HeaderLines = %d, want 8", res.HeaderLines)
	}
	if !res.NamesRow {
		t.Error("NamesRow = false, want true")
	}
	if res.TotalRows != 4 {
		t.Errorf("TotalRows = %d, want 4", res.TotalRows)
	}
	if res.WidthMismatches != 1 {
		t.Errorf("WidthMismatches = %d, want 1", res.WidthMismatches)
	}
	if res.ConversionErrors != 2 {
		t.Errorf("ConversionErrors = %d, want 2", res.ConversionErrors)
	}
	if len(res.ErrorSamples) != 2 || res.ErrorSamples[0].Row != 3 || res.ErrorSamples[1].Row != 4 {
		t.Errorf("ErrorSamples = %+v, want rows 3 and 4", res.ErrorSamples)
	}
	if got := res.SampleRows[1]; len(got) != 4 || got[2] != "Alpha Cen" {
		t.Errorf("SampleRows[1] = %q", got)
	}

	wantCols := []ColumnPlan{
		{Name: "id", Datatype: ecsv.Int32, ColumnType: "integer"},
		{Name: "ra", Datatype: ecsv.Float64, ColumnType: "double precision", Unit: "deg"},
		{Name: "name", Datatype: ecsv.String, ColumnType: "text"},
		{Name: "variable", Datatype: ecsv.Bool, ColumnType: "boolean"},
	}
	if len(res.Columns) != len(wantCols) {
		t.Fatalf("Columns = %+v", res.Columns)
	}
	for i, want := range wantCols {
		if res.Columns[i] != want {
			t.Errorf("Columns[%d] = %+v, want %+v", i, res.Columns[i], want)
		}
	}
	if res.BytesRead != int64(len(starsECSV)) {
		t.Errorf("BytesRead = %d, want %d", res.BytesRead, len(starsECSV))
	}
}

func TestInspect_SampleLimit(t *testing.T) {
	svc := newTestService(t)
	svc.cfg.Import.SampleRows = 2

	var b strings.Builder
	b.WriteString("# %ECSV 1.0\n# ---\n# datatype:\n# - {name: n, datatype: int64}\n")
	for i := 0; i < 250; i++ {
		b.WriteString("7\n")
	}

	res, err := svc.Inspect(context.Background(), "n.ecsv", strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if res.NamesRow {
		t.Error("NamesRow = true for a file without one")
	}
	if res.TotalRows != 250 || len(res.SampleRows) != 2 {
		t.Errorf("TotalRows = %d, samples = %d", res.TotalRows, len(res.SampleRows))
	}
}

func TestInspect_BOMAndInvalidUTF8(t *testing.T) {
	svc := newTestService(t)
	input := "\xEF\xBB\xBF# %ECSV 1.0\n# ---\n# datatype:\n# - {name: s, datatype: string}\nab\xffc\n"

	res, err := svc.Inspect(context.Background(), "bom.ecsv", strings.NewReader(input))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if len(res.SampleRows) != 1 || res.SampleRows[0][0] != "ab?c" {
		t.Errorf("SampleRows = %q, want [[ab?c]]", res.SampleRows)
	}
}

func TestInspect_Errors(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name  string
		input string
		check func(error) bool
	}{
		{
			name:  "not ecsv",
			input: "a,b\n1,2\n",
			check: func(err error) bool { return errors.Is(err, ecsv.ErrInvalidSignature) },
		},
		{
			name:  "malformed header line",
			input: "# %ECSV 1.0\n# ---\n#datatype: []\n",
			check: func(err error) bool { return errors.Is(err, ecsv.ErrMalformedHeaderLine) },
		},
		{
			name:  "reserved column",
			input: "# %ECSV 1.0\n# ---\n# datatype:\n# - {name: import_id, datatype: string}\n",
			check: func(err error) bool { return err != nil && strings.Contains(err.Error(), "reserved") },
		},
		{
			name:  "unterminated quote",
			input: "# %ECSV 1.0\n# ---\n# datatype:\n# - {name: s, datatype: string}\n\"open\n",
			check: func(err error) bool { return err != nil && strings.Contains(err.Error(), "invalid csv record") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Inspect(context.Background(), "bad.ecsv", strings.NewReader(tt.input))
			if !tt.check(err) {
				t.Errorf("Inspect() error = %v", err)
			}
		})
	}
}

func TestDataRows_NamesRowOnlyFirst(t *testing.T) {
	input := "# %ECSV 1.0\n# ---\n# datatype:\n# - {name: a, datatype: string}\n# - {name: b, datatype: string}\nx y\na b\n"
	f, err := ecsv.Read(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	rows := newDataRows(f)
	var got [][]string
	for {
		rec, err := rows.Next()
		if err != nil {
			break
		}
		got = append(got, rec)
	}
	if rows.NamesRow() {
		t.Error("NamesRow = true, first row was data")
	}
	if len(got) != 2 || got[1][0] != "a" {
		t.Errorf("rows = %q, a later names-like row must be kept", got)
	}
}
