package core

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, "# %ECSV 1.0"...),
			expected: "# %ECSV 1.0",
		},
		{
			name:     "file without BOM",
			input:    []byte("# %ECSV 1.0"),
			expected: "# %ECSV 1.0",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
		{
			name:     "short input",
			input:    []byte("a"),
			expected: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, wrap := range []func(io.Reader) io.Reader{
				func(r io.Reader) io.Reader { return r },
				iotest.OneByteReader,
			} {
				reader := NewBOMSkippingReader(wrap(bytes.NewReader(tt.input)))
				result, err := io.ReadAll(reader)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if string(result) != tt.expected {
					t.Errorf("got %q, want %q", string(result), tt.expected)
				}
			}
		})
	}
}

func TestStreamingUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"valid ASCII", []byte("a b\n1 2\n"), "a b\n1 2\n"},
		{"valid multibyte", []byte("unit: µm, Ångström\n"), "unit: µm, Ångström\n"},
		{"invalid single byte", []byte{'h', 'e', 0x80, 'l', 'o'}, "he?lo"},
		{"truncated sequence at eof", []byte{'o', 'k', 0xE2, 0x82}, "ok??"},
		{"replacement char kept", []byte("x�y"), "x�y"},
		{"empty input", []byte{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewStreamingUTF8Sanitizer(bytes.NewReader(tt.input))
			result, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestStreamingUTF8Sanitizer_SplitSequences(t *testing.T) {
	input := strings.Repeat("€ ✓ 𝄞 a", 50)

	for _, wrap := range []func(io.Reader) io.Reader{
		iotest.OneByteReader,
		iotest.HalfReader,
		iotest.DataErrReader,
	} {
		reader := NewStreamingUTF8Sanitizer(wrap(strings.NewReader(input)))
		result, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(result) != input {
			t.Errorf("split sequences were altered: got %q", result)
		}
	}
}

func TestPartialRune(t *testing.T) {
	tests := []struct {
		data []byte
		want int
	}{
		{[]byte("abc"), 0},
		{[]byte{'a', 0xE2}, 1},
		{[]byte{'a', 0xE2, 0x82}, 2},
		{[]byte{'a', 0xE2, 0x82, 0xAC}, 0},
		{[]byte{0xF0, 0x9D, 0x84}, 3},
		{[]byte{0xFF}, 0},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := partialRune(tt.data); got != tt.want {
			t.Errorf("partialRune(% x) = %d, want %d", tt.data, got, tt.want)
		}
	}
}

func TestStreamingCountingReader(t *testing.T) {
	input := strings.Repeat("x", 1000)
	reader := NewStreamingCountingReader(strings.NewReader(input), int64(len(input)))

	buf := make([]byte, 100)
	totalRead := 0
	for {
		n, err := reader.Read(buf)
		totalRead += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if totalRead == 500 && reader.Progress() != 50 {
			t.Errorf("halfway Progress = %d, want 50", reader.Progress())
		}
	}

	if reader.BytesRead() != int64(len(input)) {
		t.Errorf("BytesRead = %d, want %d", reader.BytesRead(), len(input))
	}
	if reader.Progress() != 100 {
		t.Errorf("Progress = %d, want 100", reader.Progress())
	}

	unknown := NewStreamingCountingReader(strings.NewReader("abc"), 0)
	_, _ = io.ReadAll(unknown)
	if unknown.Progress() != 0 {
		t.Errorf("Progress with unknown total = %d, want 0", unknown.Progress())
	}
}

func TestWrapForStreaming(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte{'h', 'e', 0x80, 'l', 'o'}...)

	in := WrapForStreaming(bytes.NewReader(input), int64(len(input)))
	result, err := io.ReadAll(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != "he?lo" {
		t.Errorf("got %q, want %q", string(result), "he?lo")
	}

	// Raw bytes, BOM included.
	if got := in.Counter.BytesRead(); got != int64(len(input)) {
		t.Errorf("BytesRead = %d, want %d", got, len(input))
	}
	if in.Counter.Progress() != 100 {
		t.Errorf("Progress = %d, want 100", in.Counter.Progress())
	}
}
