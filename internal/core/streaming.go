package core

// streaming.go holds the reader chain every uploaded file passes through
// before the ECSV parser sees it:
//
//	source -> StreamingCountingReader -> BOMSkippingReader -> StreamingUTF8Sanitizer
//
// Counting sits closest to the source so progress is measured in raw upload
// bytes and can be compared against the declared file size.

import (
	"bufio"
	"bytes"
	"io"
	"sync/atomic"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sanitizerBufferSize must be at least utf8.UTFMax.
const sanitizerBufferSize = 4096

// StreamingUTF8Sanitizer replaces each byte that is not part of a valid
// UTF-8 sequence with '?'. A sequence split across two source reads is
// held back until it is complete, so splitting never corrupts valid input.
type StreamingUTF8Sanitizer struct {
	src io.Reader
	buf []byte

	pos, end int // sanitized bytes ready to return
	heldAt   int // start of an incomplete trailing sequence
	held     int

	err error
}

func NewStreamingUTF8Sanitizer(r io.Reader) *StreamingUTF8Sanitizer {
	return &StreamingUTF8Sanitizer{
		src: r,
		buf: make([]byte, sanitizerBufferSize),
	}
}

// Read implements io.Reader.
func (s *StreamingUTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for empty := 0; s.pos == s.end; empty++ {
		if s.err != nil {
			return 0, s.err
		}
		if empty == 100 {
			return 0, io.ErrNoProgress
		}
		s.fill()
	}
	n := copy(p, s.buf[s.pos:s.end])
	s.pos += n
	return n, nil
}

func (s *StreamingUTF8Sanitizer) fill() {
	carried := copy(s.buf, s.buf[s.heldAt:s.heldAt+s.held])
	n, err := s.src.Read(s.buf[carried:])
	n += carried
	s.err = err

	keep := 0
	if err == nil {
		keep = partialRune(s.buf[:n])
	}
	s.pos = 0
	s.end = sanitize(s.buf[:n-keep])
	s.heldAt, s.held = n-keep, keep
}

// sanitize rewrites data in place and returns its new length. Replacing a
// bad byte with '?' never grows the data.
func sanitize(data []byte) int {
	if utf8.Valid(data) {
		return len(data)
	}
	w := 0
	for r := 0; r < len(data); {
		c, size := utf8.DecodeRune(data[r:])
		if c == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		w += copy(data[w:], data[r:r+size])
		r += size
	}
	return w
}

// partialRune returns the length of an incomplete multi-byte sequence at
// the end of data, or 0.
func partialRune(data []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		b := data[len(data)-i]
		if !utf8.RuneStart(b) {
			continue
		}
		if b >= utf8.RuneSelf && !utf8.FullRune(data[len(data)-i:]) {
			return i
		}
		return 0
	}
	return 0
}

// BOMSkippingReader drops a leading UTF-8 byte order mark.
type BOMSkippingReader struct {
	r       *bufio.Reader
	checked bool
}

func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{r: bufio.NewReaderSize(r, 16)}
}

// Read implements io.Reader.
func (b *BOMSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.r.Peek(len(utf8BOM))
		if bytes.Equal(head, utf8BOM) {
			_, _ = b.r.Discard(len(utf8BOM))
		} else if len(head) == 0 && err != nil {
			return 0, err
		}
	}
	return b.r.Read(p)
}

// StreamingCountingReader counts the bytes that pass through it. The count
// may be read from another goroutine while the import runs.
type StreamingCountingReader struct {
	r     io.Reader
	n     atomic.Int64
	Total int64 // 0 when unknown
}

func NewStreamingCountingReader(r io.Reader, total int64) *StreamingCountingReader {
	return &StreamingCountingReader{r: r, Total: total}
}

// Read implements io.Reader.
func (c *StreamingCountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (c *StreamingCountingReader) BytesRead() int64 {
	return c.n.Load()
}

// Progress returns 0-100, or 0 when Total is unknown.
func (c *StreamingCountingReader) Progress() int {
	if c.Total <= 0 {
		return 0
	}
	pct := int(c.BytesRead() * 100 / c.Total)
	return min(pct, 100)
}

// StreamingInput is an upload prepared for parsing.
type StreamingInput struct {
	io.Reader
	Counter *StreamingCountingReader
}

// WrapForStreaming builds the reader chain for an upload of totalSize bytes
// (0 if unknown).
func WrapForStreaming(r io.Reader, totalSize int64) StreamingInput {
	counter := NewStreamingCountingReader(r, totalSize)
	return StreamingInput{
		Reader:  NewStreamingUTF8Sanitizer(NewBOMSkippingReader(counter)),
		Counter: counter,
	}
}
