// Package headerparse implements the stateless request-line/status-line
// plus headers parser described in the spec: given a byte slice it
// either reports how many bytes (including the terminating CRLFCRLF)
// were consumed, that more data is needed, or that the input is
// malformed. It holds no state across calls -- the incoming parser
// owns accumulation and retry.
package headerparse

import (
	"bytes"
	"strconv"
	"sync"

	"github.com/evanphx/wildcat"
)

// Return-code sentinels, matching the spec's (a)/(b)/(c) contract.
const (
	// Incomplete means the buffer does not yet contain a full
	// CRLFCRLF-terminated header block; the caller should buffer and
	// retry with more bytes.
	Incomplete = -2
	// Malformed means the request-line/status-line or headers are
	// invalid.
	Malformed = -1
)

var crlfcrlf = []byte("\r\n\r\n")

// HeaderField is a single raw "Name: value" pair in wire order.
type HeaderField struct {
	Name  string
	Value string
}

// Request is the parsed request-line plus headers.
type Request struct {
	Method  string
	Target  string
	Version string
	Headers []HeaderField
}

// Response is the parsed status-line plus headers.
type Response struct {
	Version    string
	StatusCode int
	StatusMsg  string
	Headers    []HeaderField
}

var wildcatPool = sync.Pool{
	New: func() any { return wildcat.NewHTTPParser() },
}

// ParseRequest parses a request-line and headers from data. It returns
// the parsed request and the number of bytes consumed (> 0), or nil and
// Incomplete/Malformed.
func ParseRequest(data []byte) (*Request, int) {
	idx := bytes.Index(data, crlfcrlf)
	if idx < 0 {
		return nil, Incomplete
	}
	consumed := idx + 4

	// wildcat gives a fast validated scan of the header block; a
	// failure here is a genuine framing error since we already know
	// the full CRLFCRLF-terminated block is present.
	p := wildcatPool.Get().(*wildcat.HTTPParser)
	_, err := p.Parse(data[:consumed])
	wildcatPool.Put(p)
	if err != nil {
		return nil, Malformed
	}

	lines := splitLines(data[:idx])
	if len(lines) == 0 {
		return nil, Malformed
	}

	method, target, version, ok := parseRequestLine(lines[0])
	if !ok {
		return nil, Malformed
	}

	fields, ok := parseHeaderLines(lines[1:])
	if !ok {
		return nil, Malformed
	}

	return &Request{Method: method, Target: target, Version: version, Headers: fields}, consumed
}

// ParseResponse parses a status-line and headers from data. The first
// byte must be 'H' (as in "HTTP/1.1") or the result fails fast with
// Malformed, per the spec.
func ParseResponse(data []byte) (*Response, int) {
	if len(data) == 0 {
		return nil, Incomplete
	}
	if data[0] != 'H' {
		return nil, Malformed
	}

	idx := bytes.Index(data, crlfcrlf)
	if idx < 0 {
		return nil, Incomplete
	}
	consumed := idx + 4

	lines := splitLines(data[:idx])
	if len(lines) == 0 {
		return nil, Malformed
	}

	version, code, msg, ok := parseStatusLine(lines[0])
	if !ok {
		return nil, Malformed
	}

	fields, ok := parseHeaderLines(lines[1:])
	if !ok {
		return nil, Malformed
	}

	return &Response{Version: version, StatusCode: code, StatusMsg: msg, Headers: fields}, consumed
}

func splitLines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	raw := bytes.Split(b, []byte("\r\n"))
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(l)
	}
	return lines
}

func parseRequestLine(line string) (method, target, version string, ok bool) {
	i := indexByte(line, ' ')
	if i < 0 {
		return "", "", "", false
	}
	method = line[:i]
	rest := line[i+1:]

	j := lastIndexByte(rest, ' ')
	if j < 0 {
		return "", "", "", false
	}
	target = rest[:j]
	version = rest[j+1:]

	if method == "" || target == "" || !isHTTPVersion(version) {
		return "", "", "", false
	}
	return method, target, version, true
}

func parseStatusLine(line string) (version string, code int, msg string, ok bool) {
	i := indexByte(line, ' ')
	if i < 0 {
		return "", 0, "", false
	}
	version = line[:i]
	if !isHTTPVersion(version) {
		return "", 0, "", false
	}
	rest := line[i+1:]

	j := indexByte(rest, ' ')
	var codeStr string
	if j < 0 {
		codeStr = rest
		msg = ""
	} else {
		codeStr = rest[:j]
		msg = rest[j+1:]
	}
	n, err := strconv.Atoi(codeStr)
	if err != nil || n < 100 || n > 999 {
		return "", 0, "", false
	}
	return version, n, msg, true
}

func parseHeaderLines(lines []string) ([]HeaderField, bool) {
	fields := make([]HeaderField, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		i := indexByte(line, ':')
		if i < 0 {
			return nil, false
		}
		name := trimOWS(line[:i])
		value := trimOWS(line[i+1:])
		if name == "" {
			return nil, false
		}
		fields = append(fields, HeaderField{Name: name, Value: value})
	}
	return fields, true
}

func isHTTPVersion(s string) bool {
	return len(s) == 8 && s[:5] == "HTTP/" && s[6] == '.' &&
		s[5] >= '0' && s[5] <= '9' && s[7] >= '0' && s[7] <= '9'
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func trimOWS(s string) string {
	start := 0
	for start < len(s) && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	end := len(s)
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
