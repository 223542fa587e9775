package kilat

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer boots srv on an OS-assigned loopback port and blocks
// until it accepts connections, returning the dial address and a stop
// func the test should defer.
func startTestServer(t *testing.T, srv *Server) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	go func() { _ = srv.Listen("tcp://"+addr, false) }()

	require.Eventually(t, func() bool {
		c, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond, "server never started accepting")

	t.Cleanup(func() {
		_ = srv.eng.Stop(context.Background())
	})
	return addr
}

// sendRaw writes req verbatim over a fresh connection to addr and
// returns the status line, headers and body it reads back.
func sendRaw(t *testing.T, addr, req string) (status string, headers map[string]string, body []byte) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	status, err = r.ReadString('\n')
	require.NoError(t, err)

	headers = make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = trimCRLF(line)
		if line == "" {
			break
		}
		if i := indexByte(line, ':'); i >= 0 {
			headers[line[:i]] = trimLeadingSpace(line[i+1:])
		}
	}

	if cl, ok := headers["Content-Length"]; ok {
		n := atoiOrZero(cl)
		body = make([]byte, n)
		_, err = readFull(r, body)
		require.NoError(t, err)
	}
	return trimCRLF(status), headers, body
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func trimLeadingSpace(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	return s
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func atoiOrZero(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0
		}
		n = n*10 + int(s[i]-'0')
	}
	return n
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TestServerHelloWorld covers scenario S1: a plain GET against a
// registered route returns 200, the handler's body, and the envelope
// defaults (Server, Connection, Accept-Ranges).
func TestServerHelloWorld(t *testing.T) {
	router := NewRouter()
	router.HandleFunc("/hello", func(req *Request, res *Response) {
		body := []byte("Hello, World!")
		res.ContentLength = int64(len(body))
		res.Body = BytesBody(body, 0)
	})

	cfg := DefaultConfig()
	cfg.DisableStartupMessage = true
	srv := NewServer(router, &cfg)
	addr := startTestServer(t, srv)

	status, headers, body := sendRaw(t, addr, "GET /hello HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")

	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "Hello, World!", string(body))
	assert.Equal(t, "13", headers["Content-Length"])
	assert.Equal(t, "kilat", headers["Server"])
	assert.Equal(t, "bytes", headers["Accept-Ranges"])
	assert.Equal(t, "Close", headers["Connection"])
}

// TestServerHead covers scenario S5: HEAD against a route with a body
// gets a 200 with Content-Length: 0 and an empty body.
func TestServerHead(t *testing.T) {
	router := NewRouter()
	router.HandleFunc("/hello", func(req *Request, res *Response) {
		body := []byte("Hello, World!")
		res.ContentLength = int64(len(body))
		res.Body = BytesBody(body, 0)
	})

	cfg := DefaultConfig()
	cfg.DisableStartupMessage = true
	srv := NewServer(router, &cfg)
	addr := startTestServer(t, srv)

	status, headers, body := sendRaw(t, addr, "HEAD /hello HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")

	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Empty(t, body)
	assert.Equal(t, "0", headers["Content-Length"])
}

// TestServerRange covers scenario S2: a ranged request against a
// static file is clamped, answered with 206 and Content-Range, and
// carries only the requested span.
func TestServerRange(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 256)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.bin"), data, 0o644))

	cfg := DefaultConfig()
	cfg.DisableStartupMessage = true
	cfg.StaticRoot = dir
	srv := NewServer(NewRouter(), &cfg)
	addr := startTestServer(t, srv)

	status, headers, body := sendRaw(t, addr, "GET /file.bin HTTP/1.1\r\nHost: x\r\nConnection: close\r\nRange: bytes=100-199\r\n\r\n")

	assert.Equal(t, "HTTP/1.1 206 Partial Content", status)
	assert.Equal(t, "100", headers["Content-Length"])
	assert.Equal(t, "bytes 100-199/1000", headers["Content-Range"])
	assert.Equal(t, data[100:200], body)
}

// TestServerRangeUnsatisfiable covers the 416 branch of the envelope
// rules: a range entirely past the end of the resource is rejected.
func TestServerRangeUnsatisfiable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.bin"), make([]byte, 10), 0o644))

	cfg := DefaultConfig()
	cfg.DisableStartupMessage = true
	cfg.StaticRoot = dir
	srv := NewServer(NewRouter(), &cfg)
	addr := startTestServer(t, srv)

	status, headers, _ := sendRaw(t, addr, "GET /file.bin HTTP/1.1\r\nHost: x\r\nConnection: close\r\nRange: bytes=100-200\r\n\r\n")

	assert.Equal(t, "HTTP/1.1 416 Range Not Satisfiable", status)
	assert.Equal(t, "bytes */10", headers["Content-Range"])
}

// TestServerNotFound exercises the unmatched-route path through the
// same envelope defaults as a matched one.
func TestServerNotFound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisableStartupMessage = true
	srv := NewServer(NewRouter(), &cfg)
	addr := startTestServer(t, srv)

	status, headers, _ := sendRaw(t, addr, "GET /missing HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")

	assert.Equal(t, "HTTP/1.1 404 Not Found", status)
	assert.Equal(t, "kilat", headers["Server"])
}
