package ecsv

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

var windowSizes = []int{1, 2, 3, 5, 8, 64, DefaultBufferSize}

var sourceWrappers = []struct {
	name string
	wrap func(io.Reader) io.Reader
}{
	{"plain", func(r io.Reader) io.Reader { return r }},
	{"one-byte", iotest.OneByteReader},
	{"half", iotest.HalfReader},
	{"data-err", iotest.DataErrReader},
}

func TestHeaderReader_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      string
		wantLines int
		wantState headerState
	}{
		{
			name:      "payload line",
			input:     "# a: 1\n",
			want:      "a: 1\n",
			wantLines: 1,
			wantState: headerDone,
		},
		{
			name:      "double marker line dropped",
			input:     "# a\n## internal note\n# b\n",
			want:      "a\nb\n",
			wantLines: 3,
			wantState: headerDone,
		},
		{
			name:      "stops at first non comment line",
			input:     "# a\nx y\n# b\n",
			want:      "a\n",
			wantLines: 1,
			wantState: headerDone,
		},
		{
			name:      "no header at all",
			input:     "x y\n",
			want:      "",
			wantLines: 0,
			wantState: headerDone,
		},
		{
			name:      "empty input",
			input:     "",
			want:      "",
			wantLines: 0,
			wantState: headerDone,
		},
		{
			name:      "eof mid line is a clean end",
			input:     "# a\n# partial",
			want:      "a\npartial",
			wantLines: 1,
			wantState: headerDone,
		},
		{
			name:      "eof after marker",
			input:     "# a\n#",
			want:      "a\n",
			wantLines: 1,
			wantState: headerDone,
		},
		{
			name:      "only prefix removed",
			input:     "#  indented\n# # hash\n",
			want:      " indented\n# hash\n",
			wantLines: 2,
			wantState: headerDone,
		},
		{
			name:      "crlf terminators kept",
			input:     "# a\r\n# b\r\n",
			want:      "a\r\nb\r\n",
			wantLines: 2,
			wantState: headerDone,
		},
		{
			name:      "empty payload line",
			input:     "# \n# a\n",
			want:      "\na\n",
			wantLines: 2,
			wantState: headerDone,
		},
	}

	for _, tt := range tests {
		for _, size := range windowSizes {
			hr := newHeaderReader(strings.NewReader(tt.input), size)
			got, err := io.ReadAll(hr)
			if err != nil {
				t.Fatalf("%s (window %d): unexpected error: %v", tt.name, size, err)
			}
			if string(got) != tt.want {
				t.Errorf("%s (window %d): got %q, want %q", tt.name, size, got, tt.want)
			}
			if hr.Lines() != tt.wantLines {
				t.Errorf("%s (window %d): Lines() = %d, want %d", tt.name, size, hr.Lines(), tt.wantLines)
			}
			if hr.state != tt.wantState {
				t.Errorf("%s (window %d): state = %v, want %v", tt.name, size, hr.state, tt.wantState)
			}
		}
	}
}

func TestHeaderReader_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
	}{
		{"no space after marker", "#bad\n", 1},
		{"tab after marker", "#\tx\n", 1},
		{"bare marker line", "#\n# a\n", 1},
		{"after payload lines", "# a\n## note\n#b\n", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, size := range windowSizes {
				hr := newHeaderReader(strings.NewReader(tt.input), size)
				_, err := io.ReadAll(hr)
				if !errors.Is(err, ErrMalformedHeaderLine) {
					t.Fatalf("window %d: got %v, want ErrMalformedHeaderLine", size, err)
				}
				var e *Error
				if !errors.As(err, &e) || e.Line != tt.wantLine {
					t.Errorf("window %d: error line = %d, want %d", size, e.Line, tt.wantLine)
				}

				// The failure is sticky.
				if _, err2 := hr.Read(make([]byte, 8)); !errors.Is(err2, ErrMalformedHeaderLine) {
					t.Errorf("window %d: second read = %v, want sticky error", size, err2)
				}
			}
		})
	}
}

func TestHeaderReader_SourceError(t *testing.T) {
	boom := errors.New("boom")
	src := io.MultiReader(strings.NewReader("# a\n# b"), iotest.ErrReader(boom))

	hr := newHeaderReader(src, 4)
	got, err := io.ReadAll(hr)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("got %v, want ErrIO", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error %v does not wrap the source error", err)
	}
	if KindOf(err) != KindIO {
		t.Errorf("KindOf = %v, want %v", KindOf(err), KindIO)
	}
	if string(got) != "a\nb" {
		t.Errorf("bytes before failure = %q, want %q", got, "a\nb")
	}
}

func TestHeaderReader_SmallDestination(t *testing.T) {
	input := "# " + strings.Repeat("x", 50) + "\n# tail\nbody\n"
	want := strings.Repeat("x", 50) + "\ntail\n"

	for _, size := range windowSizes {
		hr := newHeaderReader(strings.NewReader(input), size)
		got := readChunks(t, hr, 3)
		if got != want {
			t.Errorf("window %d: got %q, want %q", size, got, want)
		}
	}
}

func TestHeaderReader_DoneDoesNotTouchSource(t *testing.T) {
	src := &countingSource{r: strings.NewReader("# a\nbody\n")}
	hr := newHeaderReader(src, 64)

	if _, err := io.ReadAll(hr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := src.calls
	for i := 0; i < 3; i++ {
		if n, err := hr.Read(make([]byte, 4)); n != 0 || err != io.EOF {
			t.Fatalf("read after done = %d, %v; want 0, EOF", n, err)
		}
	}
	if src.calls != calls {
		t.Errorf("source read %d more times after done", src.calls-calls)
	}
}

func TestHeaderReader_ZeroLengthRead(t *testing.T) {
	hr := NewHeaderReader(strings.NewReader("# a\n"))
	n, err := hr.Read(nil)
	if n != 0 || err != nil {
		t.Errorf("Read(nil) = %d, %v; want 0, nil", n, err)
	}
	if hr.state != headerExpectMarker {
		t.Errorf("state moved to %v on empty read", hr.state)
	}
}

func TestHeaderReader_NoProgress(t *testing.T) {
	hr := newHeaderReader(emptySource{}, 8)
	_, err := hr.Read(make([]byte, 8))
	if !errors.Is(err, io.ErrNoProgress) {
		t.Errorf("got %v, want io.ErrNoProgress", err)
	}
}

// The bytes the header reader pulled from the source, minus the carry-over,
// are exactly the header block; carry-over plus later reads are exactly the
// rest of the stream.
func TestHeaderReader_CarryOverHandoff(t *testing.T) {
	header := "# %ECSV 1.0\n# ---\n## note\n# datatype: []\n"
	tests := []struct {
		input     string
		headerLen int
	}{
		{header + "a b\n1 2\n# c\n3 4\n", len(header)},
		{header, len(header)},
		{header + "x", len(header)},
		{"no header\n", 0},
	}

	for _, tt := range tests {
		input, headerLen := tt.input, tt.headerLen

		for _, size := range windowSizes {
			var seen bytes.Buffer
			hr := newHeaderReader(io.TeeReader(strings.NewReader(input), &seen), size)
			if _, err := io.ReadAll(hr); err != nil {
				t.Fatalf("window %d: header read: %v", size, err)
			}

			br, err := hr.BodyReader()
			if err != nil {
				t.Fatalf("window %d: BodyReader: %v", size, err)
			}
			cr := br.src.(*carryReader)

			carried := 0
			if cr.carry != nil {
				carried = cr.carry.remaining()
			}
			if carried > size {
				t.Errorf("window %d: carried %d bytes, more than one window", size, carried)
			}

			prefix := seen.String()[:seen.Len()-carried]
			if prefix != input[:headerLen] {
				t.Errorf("window %d: consumed prefix %q, want %q", size, prefix, input[:headerLen])
			}

			rest, err := io.ReadAll(cr)
			if err != nil {
				t.Fatalf("window %d: reading rest: %v", size, err)
			}
			if prefix+string(rest) != input {
				t.Errorf("window %d: reassembled %q, want %q", size, prefix+string(rest), input)
			}
			if cr.carry != nil {
				t.Errorf("window %d: carry-over not dropped after draining", size)
			}
		}
	}
}

func TestHeaderReader_BodyReaderDrainsUnreadHeader(t *testing.T) {
	input := "# a\n# b\n## c\n# d\nrow 1\n"
	for _, size := range windowSizes {
		hr := newHeaderReader(strings.NewReader(input), size)
		// Read only part of the first line.
		if _, err := hr.Read(make([]byte, 1)); err != nil {
			t.Fatalf("window %d: %v", size, err)
		}
		br, err := hr.BodyReader()
		if err != nil {
			t.Fatalf("window %d: BodyReader: %v", size, err)
		}
		got, err := io.ReadAll(br)
		if err != nil {
			t.Fatalf("window %d: body: %v", size, err)
		}
		if string(got) != "row 1\n" {
			t.Errorf("window %d: body = %q, want %q", size, got, "row 1\n")
		}
	}
}

func TestHeaderReader_SourceWrappers(t *testing.T) {
	input := "# %ECSV 1.0\n# ---\n# delimiter: comma\n## skip\n# datatype: []\na,b\n# gone\n1,2\n"
	wantHeader := "%ECSV 1.0\n---\ndelimiter: comma\ndatatype: []\n"
	wantBody := "a,b\n1,2\n"

	for _, sw := range sourceWrappers {
		for _, size := range windowSizes {
			hr := newHeaderReader(sw.wrap(strings.NewReader(input)), size)
			header, err := io.ReadAll(hr)
			if err != nil {
				t.Fatalf("%s/%d: header: %v", sw.name, size, err)
			}
			if string(header) != wantHeader {
				t.Errorf("%s/%d: header = %q, want %q", sw.name, size, header, wantHeader)
			}
			br, err := hr.BodyReader()
			if err != nil {
				t.Fatalf("%s/%d: BodyReader: %v", sw.name, size, err)
			}
			body, err := io.ReadAll(br)
			if err != nil {
				t.Fatalf("%s/%d: body: %v", sw.name, size, err)
			}
			if string(body) != wantBody {
				t.Errorf("%s/%d: body = %q, want %q", sw.name, size, body, wantBody)
			}
		}
	}
}

// readChunks reads r to EOF using a destination of n bytes.
func readChunks(t *testing.T, r io.Reader, n int) string {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, n)
	for {
		k, err := r.Read(buf)
		out.Write(buf[:k])
		if err == io.EOF {
			return out.String()
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
}

type countingSource struct {
	r     io.Reader
	calls int
}

func (c *countingSource) Read(p []byte) (int, error) {
	c.calls++
	return c.r.Read(p)
}

type emptySource struct{}

func (emptySource) Read([]byte) (int, error) { return 0, nil }
