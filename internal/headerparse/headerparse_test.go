package headerparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestBasic(t *testing.T) {
	raw := "GET /hello HTTP/1.1\r\nHost: h\r\nContent-Length: 12\r\n\r\n"
	req, n := ParseRequest([]byte(raw))
	require.Greater(t, n, 0)
	assert.Equal(t, len(raw), n, "consumed must equal index after \\r\\n\\r\\n")
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/hello", req.Target)
	assert.Equal(t, "HTTP/1.1", req.Version)
	require.Len(t, req.Headers, 2)
	assert.Equal(t, "Host", req.Headers[0].Name)
	assert.Equal(t, "h", req.Headers[0].Value)
	assert.Equal(t, "Content-Length", req.Headers[1].Name)
	assert.Equal(t, "12", req.Headers[1].Value)
}

func TestParseRequestIncomplete(t *testing.T) {
	_, n := ParseRequest([]byte("GET /hello HTTP/1.1\r\nHost: h\r\n"))
	assert.Equal(t, Incomplete, n)
}

func TestParseRequestIncompleteByteAtATime(t *testing.T) {
	raw := "GET /x HTTP/1.1\r\nHost: h\r\n\r\n"
	for i := 0; i < len(raw)-1; i++ {
		_, n := ParseRequest([]byte(raw[:i]))
		assert.Equal(t, Incomplete, n, "at prefix length %d", i)
	}
	_, n := ParseRequest([]byte(raw))
	assert.Equal(t, len(raw), n)
}

func TestParseRequestMalformedLine(t *testing.T) {
	_, n := ParseRequest([]byte("GET /hello\r\nHost: h\r\n\r\n"))
	assert.Equal(t, Malformed, n)
}

func TestParseRequestTrailingBytesNotConsumed(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: h\r\n\r\nEXTRA"
	req, n := ParseRequest([]byte(raw))
	require.NotNil(t, req)
	assert.Equal(t, len(raw)-len("EXTRA"), n)
}

func TestParseResponseBasic(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n"
	res, n := ParseResponse([]byte(raw))
	require.Equal(t, len(raw), n)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "OK", res.StatusMsg)
	assert.Equal(t, "HTTP/1.1", res.Version)
}

func TestParseResponseMustStartWithH(t *testing.T) {
	_, n := ParseResponse([]byte("XTTP/1.1 200 OK\r\n\r\n"))
	assert.Equal(t, Malformed, n)
}

func TestParseResponseIncomplete(t *testing.T) {
	_, n := ParseResponse([]byte("HTTP/1.1 200 OK\r\n"))
	assert.Equal(t, Incomplete, n)
}

func TestHeaderValueWhitespaceTrimmed(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nX-Foo:   bar  \r\n\r\n"
	req, _ := ParseRequest([]byte(raw))
	require.Len(t, req.Headers, 1)
	assert.Equal(t, "bar", req.Headers[0].Value)
}

func TestDuplicateHeadersPreserveWireOrder(t *testing.T) {
	// The header/line parser itself does not collapse duplicates -- that
	// last-write-wins decision belongs to the case-insensitive Headers
	// map built from these fields (see root package header.go).
	raw := "GET / HTTP/1.1\r\nX-A: 1\r\nX-A: 2\r\n\r\n"
	req, _ := ParseRequest([]byte(raw))
	require.Len(t, req.Headers, 2)
	assert.Equal(t, "1", req.Headers[0].Value)
	assert.Equal(t, "2", req.Headers[1].Value)
}
