package ecsv

import (
	"fmt"
	"io"
)

type headerState uint8

const (
	headerExpectMarker headerState = iota
	headerExpectSpace
	headerEmitLine
	headerSkipLine
	headerDone
)

func (s headerState) String() string {
	switch s {
	case headerExpectMarker:
		return "expect-marker"
	case headerExpectSpace:
		return "expect-space"
	case headerEmitLine:
		return "emit-line"
	case headerSkipLine:
		return "skip-line"
	case headerDone:
		return "done"
	}
	return fmt.Sprintf("headerState(%d)", uint8(s))
}

// HeaderReader strips the "# " prefix from the leading comment block of a
// stream and yields only the payload of those lines, terminators included.
// Lines starting with "##" are dropped. It returns io.EOF at the first line
// that does not start with the comment marker, leaving that line unread.
//
// Once the header has been read, BodyReader hands the rest of the stream,
// including any bytes already buffered here, to a BodyReader.
type HeaderReader struct {
	src   io.Reader
	win   window
	state headerState
	line  int   // completed lines
	err   error // sticky malformed-line or read error
}

// NewHeaderReader returns a HeaderReader with a DefaultBufferSize window.
func NewHeaderReader(r io.Reader) *HeaderReader {
	return newHeaderReader(r, DefaultBufferSize)
}

func newHeaderReader(r io.Reader, size int) *HeaderReader {
	return &HeaderReader{
		src: r,
		win: newWindow(bufferSize(size)),
	}
}

// Lines returns the number of complete header lines consumed so far,
// counting dropped "##" lines.
func (h *HeaderReader) Lines() int {
	return h.line
}

// Read implements io.Reader.
func (h *HeaderReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return h.read(p, false)
}

// read advances the state machine until it can return payload bytes, the
// end of the header, or an error. With discard set, payload is consumed
// without being copied and p is ignored.
func (h *HeaderReader) read(p []byte, discard bool) (int, error) {
	if h.err != nil {
		return 0, h.err
	}
	for {
		if h.state == headerDone {
			return 0, io.EOF
		}

		if h.win.empty() {
			if err := h.win.fill(h.src); err != nil {
				if err == io.EOF {
					h.state = headerDone
					return 0, io.EOF
				}
				h.err = &Error{Kind: KindIO, Line: h.line + 1, Err: err}
				return 0, h.err
			}
		}

		data := h.win.data()

		switch h.state {
		case headerExpectMarker:
			if data[0] != CommentMarker {
				h.state = headerDone
				continue
			}
			h.win.advance(1)
			h.state = headerExpectSpace

		case headerExpectSpace:
			switch data[0] {
			case CommentMarker:
				h.win.advance(1)
				h.state = headerSkipLine
			case ' ':
				h.win.advance(1)
				h.state = headerEmitLine
			default:
				h.err = &Error{
					Kind: KindMalformedHeaderLine,
					Line: h.line + 1,
					Err:  fmt.Errorf("unexpected byte %q after comment marker", data[0]),
				}
				return 0, h.err
			}

		case headerEmitLine:
			n := len(data)
			if !discard && len(p) < n {
				n = len(p)
			}
			if i := lineEnd(data[:n]); i >= 0 {
				n = i + 1
				h.state = headerExpectMarker
				h.line++
			}
			if !discard {
				copy(p, data[:n])
			}
			h.win.advance(n)
			return n, nil

		case headerSkipLine:
			n := len(data)
			if i := lineEnd(data); i >= 0 {
				n = i + 1
				h.state = headerExpectMarker
				h.line++
			}
			h.win.advance(n)
		}
	}
}

// drain consumes whatever is left of the header.
func (h *HeaderReader) drain() error {
	for {
		_, err := h.read(nil, true)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// BodyReader finishes the header and returns a reader over the remainder of
// the stream. Bytes already pulled into the header window are moved into the
// returned reader, so nothing is lost or read twice. The HeaderReader must
// not be used afterwards.
func (h *HeaderReader) BodyReader() (*BodyReader, error) {
	return h.bodyReader(len(h.win.buf))
}

func (h *HeaderReader) bodyReader(size int) (*BodyReader, error) {
	if err := h.drain(); err != nil {
		return nil, err
	}

	var carry *carryOver
	if !h.win.empty() {
		carry = &carryOver{
			buf:   h.win.buf,
			start: h.win.readPos,
			end:   h.win.filled,
		}
	}
	src := newCarryReader(h.src, carry, h.win.err)

	h.win = window{}
	h.src = nil

	return newBodyReader(src, size), nil
}
