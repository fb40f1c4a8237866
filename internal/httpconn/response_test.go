package httpconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code   Code
		status int
		title  string
		body   string
	}{
		{CodeFileReady, 200, "OK", ""},
		{CodeMalformed, 400, "Bad Request", "Your request has bad syntax or is inherently impossible to satisfy.\n"},
		{CodeForbidden, 403, "Forbidden", "You do not have permission to get file from this server.\n"},
		{CodeNotFound, 404, "Not Found", "The requested file was not found on this server.\n"},
		{CodeInternalError, 500, "Internal Error", "There was an unusual problem serving the request file.\n"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			status, title, body, ok := statusFor(tt.code)
			assert.True(t, ok)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.body, body)
		})
	}

	_, _, _, ok := statusFor(CodeIncomplete)
	assert.False(t, ok, "incomplete requests have no response")
}
