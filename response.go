package kilat

import (
	"strconv"

	"github.com/kilathq/kilat/internal/pool"
)

// Response is the inbound-or-outbound message shape the data model
// names: a status, optional content length, headers, an optional
// streaming body, and an optional releaser run once the body has been
// fully written or discarded.
type Response struct {
	StatusCode    int
	StatusMsg     string
	ContentLength int64 // -1 means unknown/streaming
	Headers       *Headers
	Body          Producer
	Release       func()
}

// NewResponse creates a Response with status code and the matching
// default reason phrase.
func NewResponse(statusCode int) *Response {
	return &Response{
		StatusCode:    statusCode,
		StatusMsg:     StatusText(statusCode),
		ContentLength: -1,
		Headers:       NewHeaders(),
	}
}

// IsOK reports whether the status is in 200..299.
func (r *Response) IsOK() bool { return r.StatusCode >= 200 && r.StatusCode <= 299 }

// IsRedirect reports whether the status is in 300..310, matching the
// data model's redirect range (wider than the standard 3xx class, to
// accommodate non-standard redirect codes some origins send).
func (r *Response) IsRedirect() bool { return r.StatusCode >= 300 && r.StatusCode <= 310 }

// Reset clears r for reuse from a pool. It also sets Release to nil
// without running it; ReleaseResponse runs Release before calling Reset.
func (r *Response) Reset() {
	r.StatusCode = 0
	r.StatusMsg = ""
	r.ContentLength = -1
	if r.Headers != nil {
		r.Headers.Reset()
	} else {
		r.Headers = NewHeaders()
	}
	r.Body = nil
	r.Release = nil
}

// WriteStatusLine appends "HTTP/1.1 <code> <msg>\r\n" to buf.
func (r *Response) WriteStatusLine(buf []byte) []byte {
	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(r.StatusCode), 10)
	buf = append(buf, ' ')
	buf = append(buf, r.StatusMsg...)
	buf = append(buf, '\r', '\n')
	return buf
}

var responsePool = pool.New(func() *Response { return NewResponse(StatusOK) })

// AcquireResponse gets a Response from the shared pool.
func AcquireResponse() *Response { return responsePool.Get() }

// ReleaseResponse runs r.Release if set, resets r, and returns it to
// the shared pool.
func ReleaseResponse(r *Response) {
	if r.Release != nil {
		r.Release()
	}
	r.Reset()
	responsePool.Put(r)
}
