package protocol

import (
	"bytes"
	"sort"
	"strings"
)

// Request is a decoded HTTP/1.1 request. It is never modified after Decode.
type Request struct {
	Method string
	Path   string // without the query string
	Query  string // raw text after '?', not percent-decoded
	// Headers keeps one value per name; a repeated header overwrites the earlier one
	Headers map[string]string
	Body    string
}

// Malformed reports whether the request line could not be parsed
func (r *Request) Malformed() bool {
	return r.Method == "" || r.Path == ""
}

// Param returns the value of a query parameter, see QueryParam
func (r *Request) Param(key string) (string, bool) {
	return QueryParam(r.Query, key)
}

// Decode parses a raw request buffer.
//
// Decode never fails. A request line that does not contain a method and a target
// leaves Method and Path empty, header lines without ':' are skipped, and whatever
// follows the blank separator line becomes the body with one trailing '\n' removed.
func Decode(raw []byte) *Request {
	req := &Request{Headers: make(map[string]string)}
	rest := string(raw)

	// Request line: METHOD SP target SP version
	line, rest, ok := nextLine(rest)
	if !ok {
		return req
	}
	fields := strings.Fields(strings.TrimSuffix(line, "\r"))
	if len(fields) >= 1 {
		req.Method = fields[0]
	}
	if len(fields) >= 2 {
		target := fields[1]
		if i := strings.IndexByte(target, '?'); i >= 0 {
			req.Path = target[:i]
			req.Query = target[i+1:]
		} else {
			req.Path = target
		}
	}

	// Headers up to the first blank line
	for {
		line, rest, ok = nextLine(rest)
		if !ok {
			return req
		}
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			break
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		req.Headers[line[:colon]] = strings.TrimLeft(line[colon+1:], " ")
	}

	req.Body = strings.TrimSuffix(rest, "\n")
	return req
}

// nextLine splits off the next '\n'-terminated line. The final line does not need a
// terminator. ok is false once the input is exhausted.
func nextLine(s string) (line, rest string, ok bool) {
	if s == "" {
		return "", "", false
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", true
}

// EncodeRequest serializes a request in wire format. Headers are written in sorted order.
func EncodeRequest(req *Request) []byte {
	var buf bytes.Buffer
	target := req.Path
	if req.Query != "" {
		target += "?" + req.Query
	}
	buf.WriteString(req.Method + " " + target + " HTTP/1.1\r\n")
	for _, k := range sortedKeys(req.Headers) {
		buf.WriteString(k + ": " + req.Headers[k] + "\r\n")
	}
	buf.WriteString("\r\n")
	buf.WriteString(req.Body)
	return buf.Bytes()
}

// QueryParam looks up key in a raw query string. Segments are split on '&' and then on
// the first '='; the first segment whose key matches wins. Segments without '=' never
// match and values are returned as-is, without percent-decoding.
func QueryParam(query, key string) (string, bool) {
	for _, segment := range strings.Split(query, "&") {
		eq := strings.IndexByte(segment, '=')
		if eq < 0 {
			continue
		}
		if segment[:eq] == key {
			return segment[eq+1:], true
		}
	}
	return "", false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
