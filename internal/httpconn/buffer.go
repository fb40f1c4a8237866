package httpconn

// LineStatus is the outcome of one Scan call.
type LineStatus int

const (
	// LineIncomplete means no terminator is buffered yet.
	LineIncomplete LineStatus = iota
	// LineComplete means a CRLF-terminated line was found.
	LineComplete
	// LineInvalid means a CR or LF appeared outside a CRLF pair.
	LineInvalid
)

func (s LineStatus) String() string {
	switch s {
	case LineIncomplete:
		return "Incomplete"
	case LineComplete:
		return "Complete"
	case LineInvalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// Span is a half-open byte range [Start, End) of a Buffer.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int {
	return s.End - s.Start
}

// Buffer is a fixed-capacity receive buffer with three cursors:
//
//	0 <= lineStart <= checked <= filled <= cap
//
// filled marks the end of received bytes, checked the next byte to scan and
// lineStart the beginning of the line being scanned.
type Buffer struct {
	data      []byte
	filled    int
	checked   int
	lineStart int
}

// NewBuffer allocates a buffer of the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Space returns the unfilled tail of the buffer, to be read into.
func (b *Buffer) Space() []byte {
	return b.data[b.filled:]
}

// Commit marks n more bytes of Space as filled.
func (b *Buffer) Commit(n int) {
	if n < 0 || b.filled+n > len(b.data) {
		panic("httpconn: commit beyond buffer capacity")
	}
	b.filled += n
}

// Append copies p into the buffer and returns how many bytes fit.
func (b *Buffer) Append(p []byte) int {
	n := copy(b.data[b.filled:], p)
	b.filled += n
	return n
}

// Full reports whether no space is left.
func (b *Buffer) Full() bool {
	return b.filled >= len(b.data)
}

// Filled returns the number of received bytes.
func (b *Buffer) Filled() int {
	return b.filled
}

// Checked returns the scan cursor.
func (b *Buffer) Checked() int {
	return b.checked
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Unscanned returns how many received bytes lie past the scan cursor.
func (b *Buffer) Unscanned() int {
	return b.filled - b.checked
}

// Bytes returns the bytes covered by s. The slice aliases the buffer.
func (b *Buffer) Bytes(s Span) []byte {
	return b.data[s.Start:s.End]
}

// Take consumes n unscanned bytes and returns their span.
func (b *Buffer) Take(n int) Span {
	s := Span{Start: b.checked, End: b.checked + n}
	b.checked += n
	b.lineStart = b.checked
	return s
}

// Scan looks for the next CRLF starting at the scan cursor. On
// LineComplete it returns the line without its terminator and moves both
// cursors past it. On LineIncomplete the cursor rests on the last examined
// byte so a later call resumes where this one stopped.
func (b *Buffer) Scan() (Span, LineStatus) {
	for ; b.checked < b.filled; b.checked++ {
		switch b.data[b.checked] {
		case '\r':
			if b.checked+1 == b.filled {
				return Span{}, LineIncomplete
			}
			if b.data[b.checked+1] == '\n' {
				b.checked += 2
				return b.endLine(), LineComplete
			}
			return Span{}, LineInvalid
		case '\n':
			if b.checked > b.lineStart && b.data[b.checked-1] == '\r' {
				b.checked++
				return b.endLine(), LineComplete
			}
			return Span{}, LineInvalid
		}
	}
	return Span{}, LineIncomplete
}

func (b *Buffer) endLine() Span {
	s := Span{Start: b.lineStart, End: b.checked - 2}
	b.lineStart = b.checked
	return s
}

// Reset empties the buffer for the next request.
func (b *Buffer) Reset() {
	b.filled = 0
	b.checked = 0
	b.lineStart = 0
}
