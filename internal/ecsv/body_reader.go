package ecsv

import (
	"fmt"
	"io"
)

type bodyState uint8

const (
	bodyLineStart bodyState = iota
	bodyEmitLine
	bodySkipLine
	bodyDone
)

func (s bodyState) String() string {
	switch s {
	case bodyLineStart:
		return "line-start"
	case bodyEmitLine:
		return "emit-line"
	case bodySkipLine:
		return "skip-line"
	case bodyDone:
		return "done"
	}
	return fmt.Sprintf("bodyState(%d)", uint8(s))
}

// BodyReader passes the data section of an ECSV stream through unchanged,
// except that every line whose first byte is the comment marker is dropped
// together with its terminator.
//
// Lines holding only whitespace are passed through; only a leading marker
// makes a line skippable.
type BodyReader struct {
	src   io.Reader
	win   window
	state bodyState
}

func newBodyReader(src io.Reader, size int) *BodyReader {
	return &BodyReader{
		src: src,
		win: newWindow(bufferSize(size)),
	}
}

// Read implements io.Reader.
func (b *BodyReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if b.state == bodyDone {
			return 0, io.EOF
		}

		if b.win.empty() {
			if err := b.win.fill(b.src); err != nil {
				if err == io.EOF {
					b.state = bodyDone
					return 0, io.EOF
				}
				return 0, &Error{Kind: KindIO, Err: err}
			}
		}

		data := b.win.data()

		switch b.state {
		case bodyLineStart:
			if data[0] == CommentMarker {
				b.win.advance(1)
				b.state = bodySkipLine
			} else {
				b.state = bodyEmitLine
			}

		case bodyEmitLine:
			n := min(len(data), len(p))
			if i := lineEnd(data[:n]); i >= 0 {
				n = i + 1
				b.state = bodyLineStart
			}
			copy(p, data[:n])
			b.win.advance(n)
			return n, nil

		case bodySkipLine:
			n := len(data)
			if i := lineEnd(data); i >= 0 {
				n = i + 1
				b.state = bodyLineStart
			}
			b.win.advance(n)
		}
	}
}
