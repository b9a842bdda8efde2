package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/ecsv/internal/ecsv"
)

const input = `# %ECSV 1.0
# ---
# datatype:
# - {name: a, datatype: int64}
# - {name: b, datatype: string}
a b
1 "x y"
# comment
2 z
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.ecsv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_Rows(t *testing.T) {
	path := writeTemp(t, input)

	tests := []struct {
		format string
		want   string
	}{
		{"comma", "a,b\n1,x y\n2,z\n"},
		{"tab", "a\tb\n1\tx y\n2\tz\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var out strings.Builder
			if err := run(path, options{rows: true, output: tt.format, buffer: 16}, &out); err != nil {
				t.Fatalf("run() error = %v", err)
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestRun_Header(t *testing.T) {
	var out strings.Builder
	if err := run(writeTemp(t, input), options{header: true}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var h ecsv.Header
	if err := json.Unmarshal([]byte(out.String()), &h); err != nil {
		t.Fatalf("header is not JSON: %v", err)
	}
	if len(h.Datatype) != 2 || h.Datatype[1].Datatype != ecsv.String || h.Delimiter != ecsv.DelimiterSpace {
		t.Errorf("header = %+v", h)
	}
}

func TestRun_ECSVRoundTrip(t *testing.T) {
	var out strings.Builder
	if err := run(writeTemp(t, input), options{rows: true, output: "ecsv"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	f, err := ecsv.Read(strings.NewReader(out.String()))
	if err != nil {
		t.Fatalf("re-read output: %v\n%s", err, out.String())
	}
	rows, err := f.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// Names row plus two data rows; the input names row is not duplicated.
	if len(rows) != 3 || rows[0][0] != "a" || rows[1][1] != "x y" {
		t.Errorf("rows = %q", rows)
	}
}

func TestRun_Errors(t *testing.T) {
	if err := run(writeTemp(t, "a,b\n"), options{rows: true, output: "comma"}, &strings.Builder{}); !errors.Is(err, ecsv.ErrInvalidSignature) {
		t.Errorf("run() error = %v, want invalid signature", err)
	}
	if err := run(writeTemp(t, input), options{rows: true, output: "xml"}, &strings.Builder{}); err == nil {
		t.Error("run() accepted unknown format")
	}
	if err := run(filepath.Join(t.TempDir(), "missing"), options{header: true}, &strings.Builder{}); err == nil {
		t.Error("run() accepted missing file")
	}
}
