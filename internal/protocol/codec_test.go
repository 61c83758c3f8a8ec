package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_RequestLine(t *testing.T) {
	req := Decode([]byte("GET /api/v1/player?name=Alice&token=abc HTTP/1.1\r\nHost: localhost\r\n\r\n"))

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/api/v1/player", req.Path)
	assert.Equal(t, "name=Alice&token=abc", req.Query)
	assert.Equal(t, "localhost", req.Headers["Host"])
	assert.Empty(t, req.Body)
	assert.False(t, req.Malformed())
}

func TestDecode_Headers(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\n" +
		"X-Dup: first\r\n" +
		"no colon here\r\n" +
		"X-Spaces:    padded\r\n" +
		"X-Dup: second\r\n" +
		"\r\n"
	req := Decode([]byte(raw))

	assert.Equal(t, "second", req.Headers["X-Dup"], "last value wins")
	assert.Equal(t, "padded", req.Headers["X-Spaces"])
	assert.Len(t, req.Headers, 2)
}

func TestDecode_Body(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"single line", "POST /x HTTP/1.1\r\n\r\nhello", "hello"},
		{"trailing newline stripped", "POST /x HTTP/1.1\r\n\r\nhello\n", "hello"},
		{"only one newline stripped", "POST /x HTTP/1.1\r\n\r\nhello\n\n", "hello\n"},
		{"multi line", "POST /x HTTP/1.1\r\n\r\na\nb\nc", "a\nb\nc"},
		{"bare LF separators", "POST /x HTTP/1.1\nA: 1\n\nbody", "body"},
		{"no blank line", "POST /x HTTP/1.1\r\nA: 1\r\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode([]byte(tt.raw)).Body)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []string{
		"",
		"\r\n\r\n",
		"GARBAGE\r\n\r\n",
	}

	for _, raw := range tests {
		req := Decode([]byte(raw))
		assert.True(t, req.Malformed(), "expected malformed for %q", raw)
		assert.Empty(t, req.Path)
	}
}

func TestDecodeEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		method, path, body string
	}{
		{"GET", "/", ""},
		{"POST", "/api/v1/players", "{\"a\":1}"},
		{"DELETE", "/a/b/c", "line1\nline2"},
	}

	for _, tt := range tests {
		raw := tt.method + " " + tt.path + " HTTP/1.1\r\nHeader: v\r\n\r\n" + tt.body
		req := Decode([]byte(raw))
		again := Decode(EncodeRequest(req))

		assert.Equal(t, tt.method, again.Method)
		assert.Equal(t, tt.path, again.Path)
		assert.Equal(t, tt.body, again.Body)
		assert.Equal(t, "v", again.Headers["Header"])
	}
}

func TestQueryParam(t *testing.T) {
	tests := []struct {
		query, key string
		want       string
		wantOK     bool
	}{
		{"token=abc", "token", "abc", true},
		{"name=Alice&token=abc", "token", "abc", true},
		{"token=first&token=second", "token", "first", true},
		{"token=", "token", "", true},
		{"token", "token", "", false},
		{"tokenx=abc", "token", "", false},
		{"name=a%20b", "name", "a%20b", true},
		{"k=a=b", "k", "a=b", true},
		{"", "token", "", false},
	}

	for _, tt := range tests {
		got, ok := QueryParam(tt.query, tt.key)
		assert.Equal(t, tt.wantOK, ok, "QueryParam(%q, %q)", tt.query, tt.key)
		assert.Equal(t, tt.want, got, "QueryParam(%q, %q)", tt.query, tt.key)
	}
}

func TestResponse_Encode(t *testing.T) {
	resp := NewResponse()
	resp.Headers["Content-Length"] = "999"
	resp.Headers["Connection"] = "keep-alive"
	require.NoError(t, resp.WriteJSON(map[string]string{"status": "healthy"}))

	out := string(resp.Encode())

	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, out, "Content-Type: application/json; charset=utf-8\r\n")
	assert.Contains(t, out, "Content-Length: 20\r\n")
	assert.Contains(t, out, "Connection: close\r\n")
	assert.NotContains(t, out, "999")
	assert.NotContains(t, out, "keep-alive")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n{\"status\":\"healthy\"}"))
}

func TestResponse_Error(t *testing.T) {
	resp := NewResponse()
	resp.Error(404, "Player not found")

	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "Not Found", resp.StatusText)
	assert.JSONEq(t, `{"error":"Player not found"}`, string(resp.Body))
}

func TestResponse_NoContent(t *testing.T) {
	resp := NewResponse()
	resp.SetStatus(204)

	out := string(resp.Encode())
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 204 No Content\r\n"))
	assert.True(t, strings.HasSuffix(out, "Content-Length: 0\r\nConnection: close\r\n\r\n"))
}
