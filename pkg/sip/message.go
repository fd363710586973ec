package sip

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gb28181-simulator/pkg/errors"
)

const (
	// Version is the protocol token used on every start line.
	Version = "SIP/2.0"

	// UserAgent identifies this client on outbound messages.
	UserAgent = "GB28181-Simulator/1.0"
)

// Header is a single name/value pair. Order of headers is significant for
// serialization and is preserved as supplied.
type Header struct {
	Name  string
	Value string
}

// Message is a SIP request or response with an ordered header list and an
// optional raw body. A message is a response when StatusCode is nonzero,
// otherwise a request identified by Method and RequestURI.
type Message struct {
	Method     string
	RequestURI string

	StatusCode int
	Reason     string

	headers []Header
	Body    []byte
}

// NewRequest creates a request message with no headers.
func NewRequest(method, requestURI string) *Message {
	return &Message{Method: method, RequestURI: requestURI}
}

// IsResponse reports whether the message is a response.
func (m *Message) IsResponse() bool {
	return m.StatusCode != 0
}

// AddHeader appends a header, preserving insertion order.
func (m *Message) AddHeader(name, value string) {
	m.headers = append(m.headers, Header{Name: name, Value: value})
}

// SetHeader replaces the first header with the given name, or appends it.
// Name matching is case-insensitive.
func (m *Message) SetHeader(name, value string) {
	for i := range m.headers {
		if strings.EqualFold(m.headers[i].Name, name) {
			m.headers[i].Value = value
			return
		}
	}
	m.AddHeader(name, value)
}

// GetHeader returns the value of the first header with the given name.
// Name matching is case-insensitive; missing headers yield "".
func (m *Message) GetHeader(name string) string {
	for i := range m.headers {
		if strings.EqualFold(m.headers[i].Name, name) {
			return m.headers[i].Value
		}
	}
	return ""
}

// HasHeader reports whether a header with the given name is present.
func (m *Message) HasHeader(name string) bool {
	for i := range m.headers {
		if strings.EqualFold(m.headers[i].Name, name) {
			return true
		}
	}
	return false
}

// Headers returns the ordered header list.
func (m *Message) Headers() []Header {
	return m.headers
}

// StartLine renders the first line of the wire form.
func (m *Message) StartLine() string {
	if m.IsResponse() {
		return fmt.Sprintf("%s %d %s", Version, m.StatusCode, m.Reason)
	}
	return fmt.Sprintf("%s %s %s", m.Method, m.RequestURI, Version)
}

// Encode serializes the message to wire bytes: start line, headers in the
// order supplied, a blank line, then the body. Content-Length is always
// rewritten to the exact byte length of the body.
func (m *Message) Encode() []byte {
	m.SetHeader("Content-Length", strconv.Itoa(len(m.Body)))

	var buf bytes.Buffer
	buf.WriteString(m.StartLine())
	buf.WriteString("\r\n")
	for _, h := range m.headers {
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(m.Body)
	return buf.Bytes()
}

// Parse decodes a datagram into a Message. The first line determines request
// versus response: a line starting with the protocol token followed by a
// numeric status is a response, anything else is a request line whose first
// token is the method. Headers run up to the first blank line; the remainder
// is the body, taken verbatim even if it does not end on a line boundary.
func Parse(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, errors.NewParseError("empty datagram")
	}

	head := data
	var body []byte
	if idx := bytes.Index(data, []byte("\r\n\r\n")); idx >= 0 {
		head = data[:idx]
		body = data[idx+4:]
	}

	lines := strings.Split(string(head), "\r\n")
	msg, err := parseStartLine(lines[0])
	if err != nil {
		return nil, err
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			// Tolerate stray lines the way real devices do; they carry
			// no routing information.
			continue
		}
		msg.AddHeader(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	if len(body) > 0 {
		msg.Body = body
	}
	return msg, nil
}

func parseStartLine(line string) (*Message, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, errors.NewParseError("no parseable start line", map[string]interface{}{
			"line": line,
		})
	}

	if strings.HasPrefix(parts[0], "SIP/") {
		code, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, errors.NewParseError("non-numeric status code", map[string]interface{}{
				"line": line,
			})
		}
		msg := &Message{StatusCode: code}
		if len(parts) == 3 {
			msg.Reason = parts[2]
		}
		return msg, nil
	}

	if len(parts) < 3 || parts[2] != Version {
		return nil, errors.NewParseError("malformed request line", map[string]interface{}{
			"line": line,
		})
	}
	return &Message{Method: parts[0], RequestURI: parts[1]}, nil
}

// NewResponse builds a response correlated to req: Via, From, Call-ID and
// CSeq are copied verbatim, To is copied and gains toTag iff it carries no
// tag already.
func NewResponse(req *Message, statusCode int, reason, toTag string) *Message {
	resp := &Message{StatusCode: statusCode, Reason: reason}
	for _, name := range []string{"Via", "From", "To", "Call-ID", "CSeq"} {
		if !req.HasHeader(name) {
			continue
		}
		value := req.GetHeader(name)
		if name == "To" && toTag != "" && !strings.Contains(value, "tag=") {
			value += ";tag=" + toTag
		}
		resp.AddHeader(name, value)
	}
	resp.AddHeader("User-Agent", UserAgent)
	return resp
}
