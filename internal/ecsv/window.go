package ecsv

import (
	"bytes"
	"io"
)

// DefaultBufferSize is the window capacity used by Read.
const DefaultBufferSize = 1024

// maxEmptyReads mirrors bufio: a source that keeps returning 0, nil is broken.
const maxEmptyReads = 100

// CommentMarker starts every header line and every dropped body line.
const CommentMarker = '#'

// window is a fixed-capacity byte buffer with a read cursor.
// Invariant: readPos <= filled <= len(buf).
type window struct {
	buf     []byte
	readPos int
	filled  int

	// err is an error the source returned together with the bytes
	// currently held; it is reported once those bytes are consumed.
	err error
}

func newWindow(size int) window {
	return window{buf: make([]byte, size)}
}

func (w *window) empty() bool {
	return w.readPos == w.filled
}

// data returns the unconsumed bytes.
func (w *window) data() []byte {
	return w.buf[w.readPos:w.filled]
}

func (w *window) advance(n int) {
	w.readPos += n
}

// fill refills an exhausted window from r. It returns io.EOF once r is drained.
func (w *window) fill(r io.Reader) error {
	if w.err != nil {
		return w.err
	}
	for i := 0; i < maxEmptyReads; i++ {
		n, err := r.Read(w.buf)
		w.readPos, w.filled = 0, n
		if n > 0 {
			w.err = err
			return nil
		}
		if err != nil {
			w.err = err
			return err
		}
	}
	return io.ErrNoProgress
}

// lineEnd returns the index of the first line terminator in data, or -1.
func lineEnd(data []byte) int {
	return bytes.IndexByte(data, '\n')
}

func bufferSize(size int) int {
	if size <= 0 {
		return DefaultBufferSize
	}
	return size
}
