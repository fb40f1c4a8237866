// Package httpconn implements the per-connection HTTP/1.1 subset: buffered
// non-blocking reads, an incremental request parser, routing to static pages
// and the login/register actions, and a resumable vectored response write.
//
// A Conn is not safe for concurrent use. The server guarantees that at most
// one goroutine touches a Conn at a time by re-arming its one-shot poller
// registration only after the current handler has returned; every method
// reports which interest (read, write or close) the caller should apply next.
package httpconn

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/tinyhttpd/internal/logger"
	"golang.org/x/sys/unix"
)

const (
	// ReadBufferSize is the default capacity of the request buffer.
	ReadBufferSize = 2048
	// WriteBufferSize is the default capacity of the response header buffer.
	WriteBufferSize = 1024
)

var (
	// ErrBufferFull is returned by Read when the request does not fit.
	ErrBufferFull = errors.New("httpconn: read buffer full")
	// ErrPeerClosed is returned by Read at end of stream.
	ErrPeerClosed = errors.New("httpconn: peer closed connection")
)

// Action tells the event loop what to do with the connection next.
type Action int

const (
	// ActionRead re-arms the connection for readability.
	ActionRead Action = iota
	// ActionWrite re-arms the connection for writability.
	ActionWrite
	// ActionClose tears the connection down.
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionWrite:
		return "write"
	case ActionClose:
		return "close"
	default:
		return "unknown"
	}
}

// Config is shared by every connection of a server.
type Config struct {
	// DocRoot is the directory documents are served from.
	DocRoot string

	// EdgeTriggered makes Read drain the socket until it would block.
	EdgeTriggered bool

	// ReadBufferSize and WriteBufferSize default to the package constants.
	ReadBufferSize  int
	WriteBufferSize int
}

// Conn is one accepted client socket and its request/response state.
type Conn struct {
	fd   int
	peer string
	cfg  Config

	rbuf  *Buffer
	state State
	req   Request

	wr     responseWriter
	file   []byte
	send   SendCursor
	status int
	path   string

	started time.Time
}

// New wraps the non-blocking socket fd.
func New(fd int, peer string, cfg Config) *Conn {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = ReadBufferSize
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = WriteBufferSize
	}
	return &Conn{
		fd:   fd,
		peer: peer,
		cfg:  cfg,
		rbuf: NewBuffer(cfg.ReadBufferSize),
		wr:   responseWriter{buf: make([]byte, cfg.WriteBufferSize)},
	}
}

func (c *Conn) Fd() int {
	return c.fd
}

func (c *Conn) Peer() string {
	return c.peer
}

// State returns the parser state.
func (c *Conn) State() State {
	return c.state
}

// Request returns the request being parsed or answered.
func (c *Conn) Request() *Request {
	return &c.req
}

// Status returns the status code of the response being sent, 0 if none.
func (c *Conn) Status() int {
	return c.status
}

// Path returns the document path the current request resolved to.
func (c *Conn) Path() string {
	return c.path
}

// Elapsed returns the time since the current request line was parsed.
func (c *Conn) Elapsed() time.Duration {
	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// Read receives available bytes into the request buffer. In level-triggered
// mode it performs one read; in edge-triggered mode it reads until the
// socket would block. A read that would block with nothing received is not
// an error.
func (c *Conn) Read() (int, error) {
	if c.rbuf.Full() {
		return 0, ErrBufferFull
	}

	total := 0
	for {
		n, err := unix.Read(c.fd, c.rbuf.Space())
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			return total, ErrPeerClosed
		}
		c.rbuf.Commit(n)
		total += n

		if !c.cfg.EdgeTriggered || c.rbuf.Full() {
			return total, nil
		}
	}
}

// Feed appends p to the request buffer as if it had been read from the
// socket and returns how many bytes fit.
func (c *Conn) Feed(p []byte) int {
	return c.rbuf.Append(p)
}

// Process parses whatever is buffered. If the request is complete it is
// resolved and the response is assembled.
func (c *Conn) Process(ctx context.Context, accounts Accounts) Action {
	code := c.parse(ctx, accounts)
	if code == CodeIncomplete {
		if !c.rbuf.Full() {
			return ActionRead
		}
		code = CodeMalformed
	}

	if !c.buildResponse(code) {
		c.unmap()
		return ActionClose
	}
	return ActionWrite
}

func (c *Conn) parse(ctx context.Context, accounts Accounts) Code {
	for {
		if c.state == StateContent {
			if c.rbuf.Unscanned() < c.req.ContentLength {
				return CodeIncomplete
			}
			c.req.Body = c.rbuf.Bytes(c.rbuf.Take(c.req.ContentLength))
			return c.resolve(ctx, accounts)
		}

		span, status := c.rbuf.Scan()
		switch status {
		case LineIncomplete:
			return CodeIncomplete
		case LineInvalid:
			return CodeMalformed
		}
		line := c.rbuf.Bytes(span)

		switch c.state {
		case StateRequestLine:
			logger.Debug("Request line from %s: %s", c.peer, line)
			if code := c.req.parseRequestLine(line); code != CodeIncomplete {
				return code
			}
			c.started = time.Now()
			c.state = StateHeader

		case StateHeader:
			code, body := c.req.parseHeader(line)
			switch {
			case code == CodeMalformed:
				return code
			case body:
				if c.req.ContentLength > c.rbuf.Cap()-c.rbuf.Checked() {
					return CodeMalformed
				}
				c.state = StateContent
			case code == CodeComplete:
				return c.resolve(ctx, accounts)
			}

		default:
			return CodeInternalError
		}
	}
}

// resolve routes the parsed request and prepares the file to send.
func (c *Conn) resolve(ctx context.Context, accounts Accounts) Code {
	c.path = route(ctx, &c.req, accounts)
	code, data := openFile(realPath(c.cfg.DocRoot, c.path))
	c.file = data
	return code
}

// buildResponse assembles headers (and a canned body) for code. A
// malformed request always closes the connection after the response.
func (c *Conn) buildResponse(code Code) bool {
	status, title, body, ok := statusFor(code)
	if !ok {
		return false
	}
	if code == CodeMalformed {
		c.req.KeepAlive = false
	}
	c.status = status

	c.wr.reset()
	if !c.wr.statusLine(status, title) {
		return false
	}
	if code == CodeFileReady {
		if len(c.file) > 0 {
			if !c.wr.headers(len(c.file), c.req.KeepAlive) {
				return false
			}
			c.send.Set(c.wr.bytes(), c.file)
			return true
		}
		body = emptyPage
	}
	if !c.wr.headers(len(body), c.req.KeepAlive) || !c.wr.content(body) {
		return false
	}
	c.send.Set(c.wr.bytes())
	return true
}

// Write sends as much of the pending response as the socket accepts. On
// completion a keep-alive connection is reset for its next request.
func (c *Conn) Write() (int, Action) {
	if c.send.Remaining() == 0 {
		c.Reset()
		return 0, ActionRead
	}

	written := 0
	for {
		n, err := unix.Writev(c.fd, c.send.Pending())
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				return written, ActionWrite
			}
			c.unmap()
			return written, ActionClose
		}
		written += n
		c.send.Advance(n)

		if c.send.Done() {
			c.unmap()
			if c.req.KeepAlive {
				c.Reset()
				return written, ActionRead
			}
			return written, ActionClose
		}
	}
}

// Pending returns the number of response bytes not yet written.
func (c *Conn) Pending() int {
	return c.send.Remaining()
}

// Reset prepares the connection for a new request on the same socket.
func (c *Conn) Reset() {
	c.unmap()
	c.rbuf.Reset()
	c.state = StateRequestLine
	c.req.reset()
	c.wr.reset()
	c.send.Clear()
	c.status = 0
	c.path = ""
	c.started = time.Time{}
}

// Release frees the mapped file, if any. The socket itself is owned by the
// caller.
func (c *Conn) Release() {
	c.unmap()
}

func (c *Conn) unmap() {
	if c.file != nil {
		if err := unix.Munmap(c.file); err != nil {
			logger.Warn("Failed to unmap response body: %v", err)
		}
		c.file = nil
	}
}
