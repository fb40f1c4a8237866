package httpconn

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/marmos91/tinyhttpd/internal/logger"
)

// Method is a supported request method.
type Method int

const (
	MethodGet Method = iota
	MethodPost
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	default:
		return "UNKNOWN"
	}
}

// State is the position of the request parser.
type State int

const (
	StateRequestLine State = iota
	StateHeader
	StateContent
)

func (s State) String() string {
	switch s {
	case StateRequestLine:
		return "RequestLine"
	case StateHeader:
		return "Header"
	case StateContent:
		return "Content"
	default:
		return "Unknown"
	}
}

// Code is the result of processing buffered input.
type Code int

const (
	// CodeIncomplete means more input is needed.
	CodeIncomplete Code = iota
	// CodeComplete means a full request was parsed. It is resolved into one
	// of the codes below before a response is built.
	CodeComplete
	CodeMalformed
	CodeNotFound
	CodeForbidden
	CodeFileReady
	CodeInternalError
)

func (c Code) String() string {
	switch c {
	case CodeIncomplete:
		return "Incomplete"
	case CodeComplete:
		return "Complete"
	case CodeMalformed:
		return "Malformed"
	case CodeNotFound:
		return "NotFound"
	case CodeForbidden:
		return "Forbidden"
	case CodeFileReady:
		return "FileReady"
	case CodeInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// WelcomePage is served for the bare "/" target.
const WelcomePage = "judge.html"

// Request holds the parsed fields of the current request.
type Request struct {
	Method        Method
	Target        string
	Version       string
	Host          string
	ContentLength int
	KeepAlive     bool
	Body          []byte
}

func (r *Request) reset() {
	*r = Request{}
}

const separators = " \t"

// cutField splits s at the first space or tab and skips the separator run.
func cutField(s string) (field, rest string, ok bool) {
	i := strings.IndexAny(s, separators)
	if i < 0 {
		return s, "", false
	}
	return s[:i], strings.TrimLeft(s[i:], separators), true
}

// parseRequestLine fills method, target and version. It returns
// CodeIncomplete on success, meaning the parser continues with headers.
func (r *Request) parseRequestLine(line []byte) Code {
	method, rest, ok := cutField(string(line))
	if !ok {
		return CodeMalformed
	}
	switch {
	case strings.EqualFold(method, "GET"):
		r.Method = MethodGet
	case strings.EqualFold(method, "POST"):
		r.Method = MethodPost
	default:
		return CodeMalformed
	}

	target, version, ok := cutField(rest)
	if !ok {
		return CodeMalformed
	}
	if !strings.EqualFold(version, "HTTP/1.1") {
		return CodeMalformed
	}
	r.Version = version

	for _, scheme := range []string{"http://", "https://"} {
		if len(target) >= len(scheme) && strings.EqualFold(target[:len(scheme)], scheme) {
			target = target[len(scheme):]
			i := strings.IndexByte(target, '/')
			if i < 0 {
				return CodeMalformed
			}
			target = target[i:]
		}
	}
	if target == "" || target[0] != '/' {
		return CodeMalformed
	}
	if target == "/" {
		target += WelcomePage
	}
	r.Target = target
	return CodeIncomplete
}

func headerValue(line []byte, name string) (string, bool) {
	if len(line) < len(name)+1 || line[len(name)] != ':' {
		return "", false
	}
	if !bytes.EqualFold(line[:len(name)], []byte(name)) {
		return "", false
	}
	return strings.TrimLeft(string(line[len(name)+1:]), separators), true
}

// parseHeader handles one header line. A blank line ends the header block
// and yields CodeComplete when no body is expected.
func (r *Request) parseHeader(line []byte) (Code, bool) {
	if len(line) == 0 {
		if r.ContentLength != 0 {
			return CodeIncomplete, true
		}
		return CodeComplete, false
	}

	if v, ok := headerValue(line, "Connection"); ok {
		if strings.EqualFold(strings.TrimRight(v, separators), "keep-alive") {
			r.KeepAlive = true
		}
		return CodeIncomplete, false
	}
	if v, ok := headerValue(line, "Content-Length"); ok {
		n, err := strconv.Atoi(strings.TrimRight(v, separators))
		if err != nil || n < 0 {
			return CodeMalformed, false
		}
		r.ContentLength = n
		return CodeIncomplete, false
	}
	if v, ok := headerValue(line, "Host"); ok {
		r.Host = v
		return CodeIncomplete, false
	}

	logger.Debug("Ignoring unknown header: %s", line)
	return CodeIncomplete, false
}

// Form decodes the body as an ampersand-joined key=value form. Malformed
// escapes are kept verbatim rather than failing the request.
func (r *Request) Form() url.Values {
	values, err := url.ParseQuery(string(r.Body))
	if err != nil {
		values = make(url.Values)
		for _, pair := range strings.Split(string(r.Body), "&") {
			k, v, _ := strings.Cut(pair, "=")
			if k != "" {
				values.Add(k, v)
			}
		}
	}
	return values
}
