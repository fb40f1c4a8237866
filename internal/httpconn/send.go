package httpconn

// SendCursor tracks progress through an ordered list of outgoing segments
// across partial writes.
type SendCursor struct {
	segs  [][]byte
	seg   int
	off   int
	sent  int
	total int
	iov   [][]byte
}

// Set replaces the segments to send and rewinds the cursor. Empty
// segments are skipped.
func (c *SendCursor) Set(segs ...[]byte) {
	c.segs = c.segs[:0]
	c.total = 0
	for _, s := range segs {
		if len(s) > 0 {
			c.segs = append(c.segs, s)
			c.total += len(s)
		}
	}
	c.seg, c.off, c.sent = 0, 0, 0
}

// Pending returns the unsent bytes as a vector suitable for writev. The
// returned slice is reused by the next call.
func (c *SendCursor) Pending() [][]byte {
	c.iov = c.iov[:0]
	for i := c.seg; i < len(c.segs); i++ {
		s := c.segs[i]
		if i == c.seg {
			s = s[c.off:]
		}
		c.iov = append(c.iov, s)
	}
	return c.iov
}

// Advance records that n more bytes were written.
func (c *SendCursor) Advance(n int) {
	c.sent += n
	for n > 0 && c.seg < len(c.segs) {
		left := len(c.segs[c.seg]) - c.off
		if n < left {
			c.off += n
			return
		}
		n -= left
		c.seg++
		c.off = 0
	}
}

// Sent returns the number of bytes written so far.
func (c *SendCursor) Sent() int {
	return c.sent
}

// Remaining returns the number of bytes still to write.
func (c *SendCursor) Remaining() int {
	return c.total - c.sent
}

// Done reports whether every segment has been written.
func (c *SendCursor) Done() bool {
	return c.sent >= c.total
}

// Offsets returns the segment index and the offset within it where the
// next write starts.
func (c *SendCursor) Offsets() (seg, off int) {
	return c.seg, c.off
}

// Clear drops all segments.
func (c *SendCursor) Clear() {
	c.Set()
}
