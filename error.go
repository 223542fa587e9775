package kilat

import (
	"errors"
	"fmt"
)

// Error pairs an HTTP status with a message, for handlers that want to
// fail a request with both in one value.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Sentinel errors the incoming parser, content writer, and router can
// surface, matching the data model's UserCancelled/HttpHeaders/
// HttpChunked/OutOfMemory failure kinds.
var (
	ErrUserCancelled = errors.New("kilat: cancelled by caller")
	ErrHTTPHeaders   = errors.New("kilat: malformed request/status line or headers")
	ErrHTTPChunked   = errors.New("kilat: malformed chunked transfer-coding")
	ErrOutOfMemory   = errors.New("kilat: buffer pool exhausted")
	ErrInvalidURL    = errors.New("kilat: invalid url")
)

// SocketError wraps an underlying transport error (read/write/connect
// failure) so callers can tell protocol-level failures apart from
// socket-level ones without inspecting error strings.
type SocketError struct {
	Op  string
	Err error
}

func (e *SocketError) Error() string  { return fmt.Sprintf("kilat: socket %s: %v", e.Op, e.Err) }
func (e *SocketError) Unwrap() error  { return e.Err }

// FilesystemError wraps an underlying filesystem error encountered
// while serving or caching static content.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string { return fmt.Sprintf("kilat: filesystem %s: %v", e.Path, e.Err) }
func (e *FilesystemError) Unwrap() error { return e.Err }
