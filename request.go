package kilat

import "github.com/kilathq/kilat/internal/pool"

// Range is an inclusive byte range parsed from a Range request header,
// or attached to an outbound request to ask the server for one.
// Begin < 0 denotes the suffix form ("bytes=-500"): End then holds the
// number of trailing bytes requested, resolved against the resource's
// length once it's known. Otherwise End == -1 means "to end of
// content" ("bytes=100-").
type Range struct {
	Begin int64
	End   int64
}

// Request is the inbound-or-outbound message shape the data model
// names: a method, a URL, case-insensitive last-write-wins headers, an
// optional streaming body, an optional parsed query map, and an
// optional byte range. The wire form of URL is always percent-encoded;
// Query is only populated, decoded, on demand.
type Request struct {
	Method  string
	URL     string
	Headers *Headers
	Body    Producer
	Query   map[string]string
	Range   *Range

	conn  any // gnet.Conn, kept untyped here to avoid importing gnet in the data model
	uri   string
	path  string
}

// NewRequest creates a Request with an initialized, empty header map.
func NewRequest(method, url string) *Request {
	return &Request{Method: method, URL: url, Headers: NewHeaders()}
}

// Reset clears r for reuse from a pool.
func (r *Request) Reset() {
	r.Method = ""
	r.URL = ""
	if r.Headers != nil {
		r.Headers.Reset()
	} else {
		r.Headers = NewHeaders()
	}
	r.Body = nil
	r.Query = nil
	r.Range = nil
	r.conn = nil
	r.uri = ""
	r.path = ""
}

var requestPool = pool.New(func() *Request { return &Request{Headers: NewHeaders()} })

// AcquireRequest gets a Request from the shared pool.
func AcquireRequest() *Request { return requestPool.Get() }

// ReleaseRequest resets r and returns it to the shared pool.
func ReleaseRequest(r *Request) {
	r.Reset()
	requestPool.Put(r)
}
