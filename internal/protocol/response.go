package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ContentTypeJSON is set by SetJSON and WriteJSON
const ContentTypeJSON = "application/json; charset=utf-8"

// Response is filled in by handlers and serialized once per connection
type Response struct {
	StatusCode int
	StatusText string
	Headers    map[string]string
	Body       []byte
}

// NewResponse returns an empty 200 OK response
func NewResponse() *Response {
	return &Response{
		StatusCode: http.StatusOK,
		StatusText: http.StatusText(http.StatusOK),
		Headers:    make(map[string]string),
	}
}

// SetStatus sets the status code and its standard reason phrase
func (r *Response) SetStatus(code int) {
	r.StatusCode = code
	r.StatusText = http.StatusText(code)
	if r.StatusText == "" {
		r.StatusText = "Status"
	}
}

// SetJSON sets an already encoded JSON body
func (r *Response) SetJSON(body []byte) {
	r.Headers["Content-Type"] = ContentTypeJSON
	r.Body = body
}

// WriteJSON encodes v as the JSON body
func (r *Response) WriteJSON(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	r.SetJSON(body)
	return nil
}

// Error sets status code and a {"error": message} body
func (r *Response) Error(code int, message string) {
	r.SetStatus(code)
	body, _ := json.Marshal(errorBody{Error: message})
	r.SetJSON(body)
}

type errorBody struct {
	Error string `json:"error"`
}

// Encode serializes the response. Content-Length is computed from the body and every
// response carries "Connection: close"; caller-set values for either are dropped.
func (r *Response) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", r.StatusCode, r.StatusText)
	for _, k := range sortedKeys(r.Headers) {
		if strings.EqualFold(k, "Content-Length") || strings.EqualFold(k, "Connection") {
			continue
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", k, r.Headers[k])
	}
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(r.Body))
	buf.WriteString("Connection: close\r\n")
	buf.WriteString("\r\n")
	buf.Write(r.Body)
	return buf.Bytes()
}
