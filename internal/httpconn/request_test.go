package httpconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRequestLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		code   Code
		method Method
		target string
	}{
		{"get root", "GET / HTTP/1.1", CodeIncomplete, MethodGet, "/judge.html"},
		{"post", "POST /2CGISQL.cgi HTTP/1.1", CodeIncomplete, MethodPost, "/2CGISQL.cgi"},
		{"lowercase method", "get /a.html http/1.1", CodeIncomplete, MethodGet, "/a.html"},
		{"tabs and runs", "GET\t  /a.html \tHTTP/1.1", CodeIncomplete, MethodGet, "/a.html"},
		{"absolute http", "GET http://example.com/x.html HTTP/1.1", CodeIncomplete, MethodGet, "/x.html"},
		{"absolute https", "GET https://example.com/y HTTP/1.1", CodeIncomplete, MethodGet, "/y"},
		{"absolute without path", "GET http://example.com HTTP/1.1", CodeMalformed, 0, ""},
		{"unsupported method", "PUT /a HTTP/1.1", CodeMalformed, 0, ""},
		{"old version", "GET /a HTTP/1.0", CodeMalformed, 0, ""},
		{"missing version", "GET /a", CodeMalformed, 0, ""},
		{"missing target", "GET", CodeMalformed, 0, ""},
		{"relative target", "GET a.html HTTP/1.1", CodeMalformed, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Request
			code := r.parseRequestLine([]byte(tt.line))
			assert.Equal(t, tt.code, code)
			if code == CodeIncomplete {
				assert.Equal(t, tt.method, r.Method)
				assert.Equal(t, tt.target, r.Target)
			}
		})
	}
}

func TestParseHeader(t *testing.T) {
	t.Run("keep-alive", func(t *testing.T) {
		var r Request
		code, body := r.parseHeader([]byte("Connection: keep-alive"))
		assert.Equal(t, CodeIncomplete, code)
		assert.False(t, body)
		assert.True(t, r.KeepAlive)
	})

	t.Run("close", func(t *testing.T) {
		var r Request
		r.parseHeader([]byte("connection:\tclose"))
		assert.False(t, r.KeepAlive)
	})

	t.Run("content length and body", func(t *testing.T) {
		var r Request
		code, _ := r.parseHeader([]byte("content-length: 21"))
		assert.Equal(t, CodeIncomplete, code)
		assert.Equal(t, 21, r.ContentLength)

		code, body := r.parseHeader(nil)
		assert.Equal(t, CodeIncomplete, code)
		assert.True(t, body)
	})

	t.Run("bad content length", func(t *testing.T) {
		for _, v := range []string{"Content-Length: abc", "Content-Length: -4"} {
			var r Request
			code, _ := r.parseHeader([]byte(v))
			assert.Equal(t, CodeMalformed, code, v)
		}
	})

	t.Run("host", func(t *testing.T) {
		var r Request
		r.parseHeader([]byte("Host: example.com"))
		assert.Equal(t, "example.com", r.Host)
	})

	t.Run("unknown header ignored", func(t *testing.T) {
		var r Request
		code, body := r.parseHeader([]byte("Accept: */*"))
		assert.Equal(t, CodeIncomplete, code)
		assert.False(t, body)
	})

	t.Run("header prefix is not a match", func(t *testing.T) {
		var r Request
		r.parseHeader([]byte("Hostname: nope"))
		assert.Empty(t, r.Host)
	})

	t.Run("blank line without body completes", func(t *testing.T) {
		var r Request
		code, body := r.parseHeader([]byte{})
		assert.Equal(t, CodeComplete, code)
		assert.False(t, body)
	})
}

func TestForm(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		user     string
		password string
	}{
		{"simple", "user=bob&password=hi", "bob", "hi"},
		{"reordered", "password=hi&user=bob", "bob", "hi"},
		{"escaped", "user=b%40b&password=a+b", "b@b", "a b"},
		{"bad escape kept verbatim", "user=bob%zz&password=hi", "bob%zz", "hi"},
		{"missing password", "user=bob", "bob", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Request{Body: []byte(tt.body)}
			form := r.Form()
			assert.Equal(t, tt.user, form.Get("user"))
			assert.Equal(t, tt.password, form.Get("password"))
		})
	}
}

func TestSendCursor(t *testing.T) {
	var c SendCursor
	c.Set([]byte("header"), []byte("body-bytes"))
	assert.Equal(t, 16, c.Remaining())
	assert.Len(t, c.Pending(), 2)

	c.Advance(4)
	seg, off := c.Offsets()
	assert.Equal(t, 0, seg)
	assert.Equal(t, 4, off)
	assert.Equal(t, [][]byte{[]byte("er"), []byte("body-bytes")}, c.Pending())

	c.Advance(5)
	seg, off = c.Offsets()
	assert.Equal(t, 1, seg)
	assert.Equal(t, 3, off)
	assert.Equal(t, [][]byte{[]byte("y-bytes")}, c.Pending())
	assert.False(t, c.Done())

	c.Advance(7)
	assert.True(t, c.Done())
	assert.Equal(t, 16, c.Sent())
	assert.Empty(t, c.Pending())

	c.Set([]byte("x"), nil)
	assert.Equal(t, 1, c.Remaining())
	assert.Len(t, c.Pending(), 1)
}
