package httpconn

import "fmt"

const (
	title200 = "OK"
	title400 = "Bad Request"
	form400  = "Your request has bad syntax or is inherently impossible to satisfy.\n"
	title403 = "Forbidden"
	form403  = "You do not have permission to get file from this server.\n"
	title404 = "Not Found"
	form404  = "The requested file was not found on this server.\n"
	title500 = "Internal Error"
	form500  = "There was an unusual problem serving the request file.\n"

	// emptyPage is the body sent for a zero-length file.
	emptyPage = "<html><body></body></html>"
)

// responseWriter appends response text to a fixed-capacity buffer. Once an
// append does not fit, every later append fails as well.
type responseWriter struct {
	buf      []byte
	n        int
	overflow bool
}

func (w *responseWriter) reset() {
	w.n = 0
	w.overflow = false
}

func (w *responseWriter) add(format string, args ...any) bool {
	if w.overflow {
		return false
	}
	s := fmt.Sprintf(format, args...)
	if len(s) > len(w.buf)-1-w.n {
		w.overflow = true
		return false
	}
	w.n += copy(w.buf[w.n:], s)
	return true
}

func (w *responseWriter) statusLine(status int, title string) bool {
	return w.add("%s %d %s\r\n", "HTTP/1.1", status, title)
}

func (w *responseWriter) headers(contentLength int, keepAlive bool) bool {
	conn := "close"
	if keepAlive {
		conn = "keep-alive"
	}
	return w.add("Content-Length:%d\r\n", contentLength) &&
		w.add("Connection:%s\r\n", conn) &&
		w.add("%s", "\r\n")
}

func (w *responseWriter) content(body string) bool {
	return w.add("%s", body)
}

func (w *responseWriter) bytes() []byte {
	return w.buf[:w.n]
}

// statusFor maps a resolved code to its status line and canned body.
func statusFor(code Code) (status int, title, body string, ok bool) {
	switch code {
	case CodeFileReady:
		return 200, title200, "", true
	case CodeMalformed:
		return 400, title400, form400, true
	case CodeForbidden:
		return 403, title403, form403, true
	case CodeNotFound:
		return 404, title404, form404, true
	case CodeInternalError:
		return 500, title500, form500, true
	default:
		return 0, "", "", false
	}
}
