package ecsv

import "io"

// carryOver holds bytes the header reader buffered past the end of the
// header. It is moved into the body reader once and dropped when empty.
type carryOver struct {
	buf   []byte
	start int
	end   int
}

func (c *carryOver) remaining() int {
	return c.end - c.start
}

// carryReader serves reads from the carry-over until it is exhausted and
// from the original source after that. The switch happens once.
type carryReader struct {
	src   io.Reader
	carry *carryOver

	// pending is an error the source already returned alongside the
	// carried bytes. It replaces the first read from src.
	pending error
}

func newCarryReader(src io.Reader, carry *carryOver, pending error) *carryReader {
	if carry != nil && carry.remaining() == 0 {
		carry = nil
	}
	return &carryReader{src: src, carry: carry, pending: pending}
}

func (c *carryReader) Read(p []byte) (int, error) {
	if c.carry != nil {
		n := copy(p, c.carry.buf[c.carry.start:c.carry.end])
		c.carry.start += n
		if c.carry.remaining() == 0 {
			c.carry = nil
		}
		return n, nil
	}
	if c.pending != nil {
		return 0, c.pending
	}
	return c.src.Read(p)
}
