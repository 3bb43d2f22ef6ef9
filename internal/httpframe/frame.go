// Package httpframe implements the byte-exact HTTP/1.1-over-WebSocket
// framing the Tydom gateway speaks: CRLF-delimited request/response lines,
// a fixed header order for outgoing frames, and a lenient parser for
// incoming bytes.
package httpframe

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Headers is a case-insensitive header map. Keys are stored normalized
// (e.g. "Content-Length"); lookups normalize the same way so callers never
// need to rebrand a header name themselves.
type Headers map[string]string

// Set stores value under the canonical form of name.
func (h Headers) Set(name, value string) {
	h[canonicalHeader(name)] = value
}

// Get looks up a header case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	v, ok := h[canonicalHeader(name)]
	return v, ok
}

func canonicalHeader(name string) string {
	parts := strings.Split(name, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}

// Frame is a tagged union: exactly one of Request or Response is set,
// discriminated by IsRequest.
type Frame struct {
	IsRequest bool

	// Request fields.
	Method string
	Path   string

	// Response fields.
	Status int
	Reason string

	Headers Headers
	Body    []byte
}

// SerializeRequest renders an outgoing command frame, byte-identical to
// the gateway's wire format: request line, then
// Content-Length, Content-Type, Transac-Id (in that order), a blank line,
// and — when a body is present — the body followed by a trailing CRLF CRLF.
func SerializeRequest(method, path, txID string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte(' ')
	buf.WriteString(path)
	buf.WriteString(" HTTP/1.1\r\n")

	buf.WriteString("Content-Length: ")
	buf.WriteString(strconv.Itoa(len(body)))
	buf.WriteString("\r\n")

	buf.WriteString("Content-Type: application/json; charset=UTF-8\r\n")

	buf.WriteString("Transac-Id: ")
	buf.WriteString(txID)
	buf.WriteString("\r\n")

	buf.WriteString("\r\n")

	if len(body) > 0 {
		buf.Write(body)
		buf.WriteString("\r\n\r\n")
	}

	return buf.Bytes()
}

// ParseError is returned by Parse for malformed input; callers are
// expected to fall back to a Raw message rather than aborting the
// pipeline.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

// Parse decodes raw bytes into a Frame. It accepts either a response
// starting with "HTTP/1.1 <status> <reason>" or a request starting with
// "<method> <path> HTTP/1.1". Header names are matched case-insensitively.
// If Content-Length is present, exactly that many body bytes are read;
// otherwise the body is the remainder of the input (if any).
func Parse(data []byte) (Frame, error) {
	idx := bytes.Index(data, []byte("\r\n"))
	if idx < 0 {
		return Frame{}, &ParseError{Reason: "no CRLF-terminated start line"}
	}
	startLine := string(data[:idx])
	rest := data[idx+2:]

	frame := Frame{Headers: Headers{}}

	switch {
	case strings.HasPrefix(startLine, "HTTP/1.1 "):
		fields := strings.SplitN(strings.TrimPrefix(startLine, "HTTP/1.1 "), " ", 2)
		status, err := strconv.Atoi(fields[0])
		if err != nil {
			return Frame{}, &ParseError{Reason: fmt.Sprintf("invalid status line %q", startLine)}
		}
		frame.IsRequest = false
		frame.Status = status
		if len(fields) > 1 {
			frame.Reason = fields[1]
		}
	case strings.Contains(startLine, " HTTP/1.1"):
		fields := strings.SplitN(startLine, " ", 3)
		if len(fields) < 2 {
			return Frame{}, &ParseError{Reason: fmt.Sprintf("invalid request line %q", startLine)}
		}
		frame.IsRequest = true
		frame.Method = fields[0]
		frame.Path = fields[1]
	default:
		return Frame{}, &ParseError{Reason: fmt.Sprintf("unrecognized start line %q", startLine)}
	}

	headerBlock, body, err := splitHeadersAndBody(rest)
	if err != nil {
		return Frame{}, err
	}

	for _, line := range headerBlock {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		frame.Headers.Set(strings.TrimSpace(k), strings.TrimSpace(v))
	}

	if clRaw, ok := frame.Headers.Get("Content-Length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(clRaw))
		if err != nil {
			return Frame{}, &ParseError{Reason: fmt.Sprintf("invalid Content-Length %q", clRaw)}
		}
		if n > len(body) {
			return Frame{}, &ParseError{Reason: "declared Content-Length exceeds available bytes"}
		}
		if n > 0 {
			frame.Body = body[:n]
		}
	} else if len(body) > 0 {
		frame.Body = body
	}

	return frame, nil
}

// splitHeadersAndBody walks CRLF-delimited lines until the blank line that
// terminates the header block, returning the header lines and whatever
// follows as the (possibly over-long) body candidate.
func splitHeadersAndBody(data []byte) (headers []string, body []byte, err error) {
	for {
		idx := bytes.Index(data, []byte("\r\n"))
		if idx < 0 {
			return nil, nil, &ParseError{Reason: "unterminated header block"}
		}
		line := data[:idx]
		data = data[idx+2:]
		if len(line) == 0 {
			return headers, data, nil
		}
		headers = append(headers, string(line))
	}
}
