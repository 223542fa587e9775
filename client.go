package kilat

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/gnet/v2"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/time/rate"

	"github.com/kilathq/kilat/internal/bufpool"
	"github.com/kilathq/kilat/internal/contentwriter"
	"github.com/kilathq/kilat/internal/evloop"
	"github.com/kilathq/kilat/internal/headerparse"
	"github.com/kilathq/kilat/internal/incoming"
	"github.com/kilathq/kilat/internal/memory"
	"github.com/kilathq/kilat/internal/uri"
)

// OnResponse is called once a response's headers are parsed; returning
// false aborts before the body is read.
type OnResponse func(res *Response) bool

// OnContent is called with successive response body fragments. final is
// true on the call that completes the body (possibly with size == 0 for
// a body whose length wasn't known in advance). Returning false aborts.
type OnContent func(data []byte, size int, final bool) bool

// OnRedirect is called with the target of a redirect response; the
// callback may rewrite *url before returning whether to follow it.
type OnRedirect func(url *string) bool

// OnClientError reports a failure that ended a fetch: a malformed
// response, a socket error, or a filesystem error for Pull.
type OnClientError func(err error)

// OnBody delivers a fully-accumulated response body, or an error, once.
type OnBody func(body []byte, err error)

// ErrTooManyRedirects is returned when a fetch's redirect chain exceeds
// Config.MaxRedirects.
var ErrTooManyRedirects = errors.New("kilat: too many redirects")

type fetchHooks struct {
	onResponse OnResponse
	onContent  OnContent
	onRedirect OnRedirect
	onError    OnClientError
}

// requestState tracks one in-flight fetch, attached to its gnet.Conn via
// SetContext for the lifetime of the request/response exchange.
type requestState struct {
	parser *incoming.Parser
	hooks  fetchHooks

	uri *uri.URI
	req *Request

	response      *Response
	contentLength int64
	received      int64

	keepAlive   bool
	redirecting bool
	redirects   int
	traceID     string

	// closing is set by OnClose before it drives the parser's EOF, so
	// onReadEnd knows the socket is already gone and must not try to
	// park or close it again.
	closing bool
}

// idleConn marks a gnet.Conn parked in the per-host keep-alive cache; it
// replaces requestState as the connection's context once a response
// finishes cleanly.
type idleConn struct {
	key string
}

// Client is the embeddable HTTP/1.1 requester: a gnet client-mode event
// engine driving the incoming parser and content writer the same way
// Server does, plus a per-host cache of idle keep-alive sockets and a
// short-lived DNS answer cache for the resolving step.
type Client struct {
	gnet.BuiltinEventEngine

	config Config
	pool   *bufpool.Pool
	loop   *evloop.Loop
	eng    *gnet.Client

	addrCache *memory.Storage
	limiter   *rate.Limiter

	idleMu sync.Mutex
	idle   map[string][]gnet.Conn
}

// NewClient creates a Client and starts its event engine. A nil config
// uses DefaultConfig.
func NewClient(config *Config) (*Client, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	c := &Client{
		config:    cfg,
		pool:      bufpool.New(cfg.BufferBaseline),
		loop:      evloop.New(cfg.MaxAsyncConcurrency),
		addrCache: memory.New(time.Minute),
		idle:      make(map[string][]gnet.Conn),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.RequestBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	eng, err := gnet.NewClient(c)
	if err != nil {
		return nil, err
	}
	if err := eng.Start(); err != nil {
		return nil, err
	}
	c.eng = eng
	c.loop.Bind()
	return c, nil
}

// Close stops the loop façade's worker pool and the underlying client
// engine, closing any parked idle sockets.
func (c *Client) Close() error {
	c.idleMu.Lock()
	for _, conns := range c.idle {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}
	c.idle = make(map[string][]gnet.Conn)
	c.idleMu.Unlock()

	_ = c.loop.Stop()
	return c.eng.Stop()
}

// Fetch drives req through RESOLVING -> CONNECTING -> SENDING ->
// RECEIVING, following redirects up to Config.MaxRedirects. Hooks other
// than onResponse are optional. If the caller isn't on the loop's own
// goroutine, the operation is marshalled onto it first.
func (c *Client) Fetch(req *Request, onResponse OnResponse, onContent OnContent, onRedirect OnRedirect, onError OnClientError) error {
	hooks := fetchHooks{onResponse: onResponse, onContent: onContent, onRedirect: onRedirect, onError: onError}

	if c.limiter != nil {
		// Waiting for a token can block; run it off the loop thread
		// rather than stalling whatever called Fetch.
		c.loop.Async(func() error {
			_ = c.limiter.Wait(context.Background())
			return c.fetch(req, hooks, 0)
		})
		return nil
	}

	if c.loop.OnLoopThread() {
		return c.fetch(req, hooks, 0)
	}
	c.loop.QueueWork(func() {
		_ = c.fetch(req, hooks, 0)
	})
	return nil
}

// FetchBody is the accumulate-into-a-buffer convenience overload: it
// collects the full body and delivers it, with any error, exactly once.
func (c *Client) FetchBody(req *Request, onBody OnBody, onResponse OnResponse, onRedirect OnRedirect) error {
	var body []byte
	var statusErr error
	if onRedirect == nil {
		onRedirect = func(_ *string) bool { return true }
	}
	return c.Fetch(req, func(res *Response) bool {
		if onResponse != nil && !onResponse(res) {
			return false
		}
		if !res.IsOK() {
			statusErr = &Error{Status: res.StatusCode, Message: res.StatusMsg}
		}
		return true
	}, func(data []byte, size int, final bool) bool {
		if size > 0 {
			body = append(body, data...)
		}
		if final && onBody != nil {
			onBody(body, statusErr)
		}
		return true
	}, onRedirect, func(err error) {
		if onBody != nil {
			onBody(body, err)
		}
	})
}

// Pull drives a local file through the same on_content(data, size,
// final) contract as a network fetch, with at most one outstanding read
// at a time.
func (c *Client) Pull(path string, onContent OnContent, onError OnClientError) {
	c.loop.Async(func() error {
		f, err := os.Open(path)
		if err != nil {
			if onError != nil {
				onError(&FilesystemError{Path: path, Err: err})
			}
			return nil
		}
		defer f.Close()

		buf := make([]byte, bufpool.DefaultBaseline)
		for {
			n, rerr := f.Read(buf)
			if n > 0 && onContent != nil {
				if !onContent(buf[:n], n, false) {
					return nil
				}
			}
			if rerr != nil {
				if rerr != io.EOF {
					if onError != nil {
						onError(&FilesystemError{Path: path, Err: rerr})
					}
					return nil
				}
				if onContent != nil {
					onContent(nil, 0, true)
				}
				return nil
			}
		}
	})
}

func (c *Client) fetch(req *Request, hooks fetchHooks, redirects int) error {
	u, err := uri.Parse(req.URL)
	if err != nil {
		if hooks.onError != nil {
			hooks.onError(ErrInvalidURL)
		}
		return ErrInvalidURL
	}

	key := hostPortKey(u)
	if conn := c.takeIdle(key); conn != nil {
		return c.send(conn, u, req, hooks, redirects)
	}

	addr, err := c.resolveAddr(u.Host, u.Port)
	if err != nil {
		if hooks.onError != nil {
			hooks.onError(&SocketError{Op: "resolve", Err: err})
		}
		return err
	}

	conn, err := c.eng.Dial("tcp", addr)
	if err != nil {
		if hooks.onError != nil {
			hooks.onError(&SocketError{Op: "dial", Err: err})
		}
		return err
	}
	return c.send(conn, u, req, hooks, redirects)
}

// resolveAddr answers the RESOLVING step: a short-TTL cache of the last
// address a host resolved to, falling back to net.LookupHost on a miss.
func (c *Client) resolveAddr(host, port string) (string, error) {
	if cached, err := c.addrCache.Get(context.Background(), host); err == nil {
		return net.JoinHostPort(string(cached), port), nil
	}
	ips, err := net.LookupHost(host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", errors.New("kilat: no addresses for host " + host)
	}
	_ = c.addrCache.Set(context.Background(), host, []byte(ips[0]), time.Minute)
	return net.JoinHostPort(ips[0], port), nil
}

func (c *Client) send(conn gnet.Conn, u *uri.URI, req *Request, hooks fetchHooks, redirects int) error {
	rs := &requestState{hooks: hooks, uri: u, req: req, redirects: redirects, contentLength: -1, traceID: uuid.NewString()}
	logger.Debug().Msgf("[%s] %s %s", rs.traceID, req.Method, req.URL)
	rs.parser = incoming.New(incoming.ModeResponse, incoming.Hooks{
		OnHeadersParsed: func(_ *headerparse.Request, res *headerparse.Response) bool {
			return c.onHeadersParsed(conn, rs, res)
		},
		OnContentReceived: func(data []byte, size int) bool {
			return c.onContentReceived(rs, data, size)
		},
		OnReadEnd: func(fail *incoming.Failure) {
			c.onReadEnd(conn, rs, fail)
		},
	}, c.pool)
	conn.SetContext(rs)

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	header := c.buildRequestHeader(u, req, bb)
	writer := contentwriter.New(c.pool, func(data []byte) (bool, error) {
		n, werr := conn.Write(data)
		return n == len(data), werr
	})
	if werr := writer.Run(header, req.Body); werr != nil {
		if hooks.onError != nil {
			hooks.onError(&SocketError{Op: "write", Err: werr})
		}
		_ = conn.Close()
		return werr
	}
	return nil
}

// buildRequestHeader serialises the request line and headers into bb's
// backing array, filling in the defaults the SENDING step names when
// the caller left them unset.
func (c *Client) buildRequestHeader(u *uri.URI, req *Request, bb *bytebufferpool.ByteBuffer) []byte {
	if req.Headers == nil {
		req.Headers = NewHeaders()
	}
	if !req.Headers.Has("Host") {
		req.Headers.Set("Host", u.Host)
	}
	if !req.Headers.Has("User-Agent") {
		req.Headers.Set("User-Agent", "kilat")
	}
	if !req.Headers.Has("Accept-Encoding") {
		req.Headers.Set("Accept-Encoding", "identity")
	}
	if !req.Headers.Has("Connection") {
		req.Headers.Set("Connection", "Keep-Alive")
	}

	method := req.Method
	if method == "" {
		method = MethodGet
	}

	bb.B = append(bb.B, method...)
	bb.B = append(bb.B, ' ')
	bb.B = append(bb.B, uri.Encode(u.Path)...)
	bb.B = append(bb.B, " HTTP/1.1\r\n"...)
	bb.B = req.Headers.WriteTo(bb.B)
	bb.B = append(bb.B, '\r', '\n')
	return bb.B
}

func (c *Client) onHeadersParsed(conn gnet.Conn, rs *requestState, res *headerparse.Response) bool {
	logger.Debug().Msgf("[%s] <- %d", rs.traceID, res.StatusCode)
	response := AcquireResponse()
	response.StatusCode = res.StatusCode
	response.StatusMsg = res.StatusMsg
	response.ContentLength = -1
	for _, h := range res.Headers {
		response.Headers.Set(h.Name, h.Value)
		if strings.EqualFold(h.Name, "Content-Length") {
			if n, err := strconv.ParseInt(strings.TrimSpace(h.Value), 10, 64); err == nil {
				response.ContentLength = n
			}
		}
	}
	rs.contentLength = response.ContentLength
	rs.keepAlive = !connectionClose(response.Headers)

	if response.IsRedirect() && rs.hooks.onRedirect != nil {
		if loc, ok := response.Headers.Get("Location"); ok {
			location := loc
			if rs.hooks.onRedirect(&location) {
				ReleaseResponse(response)
				rs.redirecting = true
				c.scheduleRedirect(conn, rs, location)
				return false
			}
		}
	}

	rs.response = response
	if rs.hooks.onResponse != nil && !rs.hooks.onResponse(response) {
		return false
	}
	return true
}

func connectionClose(h *Headers) bool {
	v, ok := h.Get("Connection")
	return ok && strings.EqualFold(v, "close")
}

// scheduleRedirect closes the current socket and re-enters fetch at the
// RESOLVING step on the loop's work queue, matching the async redirect
// cycle the requester's on_headers_parsed describes.
func (c *Client) scheduleRedirect(conn gnet.Conn, rs *requestState, location string) {
	_ = conn.Close()
	if rs.redirects+1 > c.config.MaxRedirects {
		if rs.hooks.onError != nil {
			rs.hooks.onError(ErrTooManyRedirects)
		}
		return
	}

	req := rs.req
	req.URL = location
	hooks := rs.hooks
	redirects := rs.redirects + 1
	c.loop.QueueWork(func() {
		_ = c.fetch(req, hooks, redirects)
	})
}

func (c *Client) onContentReceived(rs *requestState, data []byte, size int) bool {
	rs.received += int64(size)
	final := rs.contentLength >= 0 && rs.received >= rs.contentLength
	if rs.hooks.onContent == nil {
		return true
	}
	return rs.hooks.onContent(data, size, final)
}

func (c *Client) onReadEnd(conn gnet.Conn, rs *requestState, fail *incoming.Failure) {
	if fail != nil {
		if fail.Kind == incoming.KindUserCancelled && rs.redirecting {
			// The cancellation is this fetch stepping aside for the
			// redirect cycle scheduleRedirect already queued.
			return
		}
		if rs.hooks.onError != nil {
			rs.hooks.onError(fail)
		}
		if rs.response != nil {
			ReleaseResponse(rs.response)
		}
		if !rs.closing {
			_ = conn.Close()
		}
		return
	}

	// A body whose length wasn't known up front never reaches "final"
	// through onContentReceived; signal completion here instead.
	if rs.contentLength < 0 && rs.hooks.onContent != nil {
		rs.hooks.onContent(nil, 0, true)
	}

	if rs.response != nil {
		ReleaseResponse(rs.response)
	}

	if rs.closing {
		// The socket is already gone (OnClose drove this completion);
		// parking or closing it again would be a use-after-close.
		return
	}

	if rs.keepAlive {
		c.parkIdle(hostPortKey(rs.uri), conn)
	} else {
		_ = conn.Close()
	}
}

func hostPortKey(u *uri.URI) string {
	return net.JoinHostPort(u.Host, u.Port)
}

func (c *Client) parkIdle(key string, conn gnet.Conn) {
	conn.SetContext(&idleConn{key: key})
	c.idleMu.Lock()
	c.idle[key] = append(c.idle[key], conn)
	c.idleMu.Unlock()
}

func (c *Client) takeIdle(key string) gnet.Conn {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	list := c.idle[key]
	if len(list) == 0 {
		return nil
	}
	conn := list[len(list)-1]
	c.idle[key] = list[:len(list)-1]
	return conn
}

// OnClose evicts a parked idle connection from the per-host cache when
// the peer closes it first, so a future fetch doesn't hand out a dead
// socket. For a connection with an active fetch, the peer closing is
// the normal terminator for a response whose length wasn't declared
// up front, so it's delivered to the parser as EOF rather than dropped
// silently, which would otherwise leak rs.response and never call
// onContent's final notification.
func (c *Client) OnClose(conn gnet.Conn, _ error) gnet.Action {
	switch ctx := conn.Context().(type) {
	case *idleConn:
		c.idleMu.Lock()
		list := c.idle[ctx.key]
		for i, cc := range list {
			if cc == conn {
				c.idle[ctx.key] = append(list[:i], list[i+1:]...)
				break
			}
		}
		c.idleMu.Unlock()
	case *requestState:
		ctx.closing = true
		ctx.parser.EOF()
	}
	return gnet.None
}

// OnTraffic feeds bytes to the requestState parser attached to conn. An
// idle, parked connection receiving unsolicited bytes (the usual case
// being the peer closing) is drained and otherwise ignored.
func (c *Client) OnTraffic(conn gnet.Conn) gnet.Action {
	rs, ok := conn.Context().(*requestState)
	if !ok {
		_, _ = conn.Next(-1)
		return gnet.None
	}
	buf, _ := conn.Next(-1)
	rs.parser.Feed(buf)
	return gnet.None
}
