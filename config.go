package kilat

import "time"

// ErrorHandler builds a response body for a failed or unmatched
// request. res already has StatusCode/StatusMsg/Headers set to the
// default for err; the handler may overwrite any of them.
type ErrorHandler func(err error, res *Response)

// defaultErrorHandler writes err's message as a plain-text body, or the
// status's reason phrase when err is nil.
func defaultErrorHandler(err error, res *Response) {
	msg := res.StatusMsg
	if err != nil {
		msg = err.Error()
	}
	res.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	body := []byte(msg)
	res.ContentLength = int64(len(body))
	res.Body = BytesBody(body, 0)
}

// Config represents server configuration options.
type Config struct {
	// ReadTimeout is the maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration

	// DisableStartupMessage determines whether to print the startup message when the server starts.
	DisableStartupMessage bool

	// ErrorHandler customizes how the server responder turns a parse
	// failure or an unmatched route into a response. A nil
	// ErrorHandler falls back to defaultErrorHandler, which is also what
	// DefaultConfig sets.
	ErrorHandler ErrorHandler

	// BufferBaseline sets the pooled buffer size the protocol core
	// rounds reads and preload writes to. 0 uses bufpool.DefaultBaseline.
	BufferBaseline int

	// MaxAsyncConcurrency bounds the number of blocking tasks (file
	// reads, cache lookups) the loop façade runs off-thread at once.
	// 0 means unbounded.
	MaxAsyncConcurrency int64

	// MaxRedirects bounds how many 3xx hops the client requester will
	// follow for a single fetch before giving up.
	MaxRedirects int

	// StaticRoot is the filesystem directory the server responder's
	// static file route serves from. Empty disables static serving.
	StaticRoot string

	// RequestsPerSecond throttles the client requester's outbound
	// fetches. 0 disables throttling.
	RequestsPerSecond float64

	// RequestBurst is the client requester's token bucket burst size.
	// 0 defaults to 1 when RequestsPerSecond is set.
	RequestBurst int
}

// DefaultConfig returns a default server configuration with pre-configured timeouts
// and other settings suitable for most applications.
// The default configuration includes:
// - ReadTimeout: 5 seconds
// - WriteTimeout: 10 seconds
// - IdleTimeout: 15 seconds
// - DisableStartupMessage: false
// - ErrorHandler: default error handler
func DefaultConfig() Config {
	return Config{
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           15 * time.Second,
		DisableStartupMessage: false,
		ErrorHandler:          defaultErrorHandler,
		MaxAsyncConcurrency:   64,
		MaxRedirects:          10,
	}
}
