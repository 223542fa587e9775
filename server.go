package kilat

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/gnet/v2"
	"github.com/valyala/bytebufferpool"

	"github.com/kilathq/kilat/internal/bufpool"
	"github.com/kilathq/kilat/internal/contentwriter"
	"github.com/kilathq/kilat/internal/evloop"
	"github.com/kilathq/kilat/internal/headerparse"
	"github.com/kilathq/kilat/internal/incoming"
	"github.com/kilathq/kilat/internal/uri"
)

// OnRequestStart is called once headers are parsed; returning false
// cancels the request before any body is read.
type OnRequestStart func(req *Request) bool

// OnRequestData is called with successive body fragments as they
// arrive; returning false cancels the request.
type OnRequestData func(data []byte, size int) bool

// OnRoute is the terminal handler for a matched route: it fills in res
// from req once the full request (headers and, if any, body) is
// available.
type OnRoute func(req *Request, res *Response)

// Route bundles the three hooks a router entry may carry, mirroring
// the spec's on_start/on_data/on_route contract. Only OnRoute is
// required; OnStart/OnData are nil unless a handler wants to inspect
// headers early or stream the body as it arrives.
type Route struct {
	OnStart OnRequestStart
	OnData  OnRequestData
	OnRoute OnRoute
}

type regexRoute struct {
	pattern *regexp.Regexp
	route   Route
}

// Router dispatches a path to a Route, first checking an exact-path
// map and falling back to a list of compiled regex patterns, matching
// the server responder's router table.
type Router struct {
	mu     sync.RWMutex
	exact  map[string]Route
	byList []regexRoute
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{exact: make(map[string]Route)}
}

// Handle registers route under the literal path (no wildcards).
func (r *Router) Handle(path string, route Route) {
	r.mu.Lock()
	r.exact[path] = route
	r.mu.Unlock()
}

// HandleFunc is a convenience for registering just an OnRoute hook.
func (r *Router) HandleFunc(path string, fn OnRoute) {
	r.Handle(path, Route{OnRoute: fn})
}

// HandlePattern registers route against pattern, a regular expression
// matched against the full request path.
func (r *Router) HandlePattern(pattern string, route Route) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.byList = append(r.byList, regexRoute{pattern: re, route: route})
	r.mu.Unlock()
	return nil
}

// Find looks up path, checking the exact map first, then the regex
// list in registration order.
func (r *Router) Find(path string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if route, ok := r.exact[path]; ok {
		return route, true
	}
	for _, rr := range r.byList {
		if rr.pattern.MatchString(path) {
			return rr.route, true
		}
	}
	return Route{}, false
}

// Server is a per-listener HTTP/1.1 server responder: a gnet event
// engine wired to the incoming parser and content writer, dispatching
// through a Router.
type Server struct {
	gnet.BuiltinEventEngine

	router *Router
	config Config
	pool   *bufpool.Pool
	loop   *evloop.Loop
	cache  *staticCache

	eng gnet.Engine
}

// NewServer creates a Server dispatching through router. A nil config
// uses DefaultConfig.
func NewServer(router *Router, config *Config) *Server {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	s := &Server{
		router: router,
		config: cfg,
		pool:   bufpool.New(cfg.BufferBaseline),
		loop:   evloop.New(cfg.MaxAsyncConcurrency),
	}
	if cfg.StaticRoot != "" {
		s.cache = newStaticCache(cfg.StaticRoot)
	}
	return s
}

// Listen starts serving on addr (e.g. "tcp://0.0.0.0:8080").
func (s *Server) Listen(addr string, multicore bool) error {
	if !s.config.DisableStartupMessage {
		displayStartupMessage(addr)
	}
	return gnet.Run(s, addr, gnet.WithMulticore(multicore))
}

// Stop shuts down the loop façade's worker pool; gnet's own engine is
// stopped by the caller via gnet.Stop(ctx, protoAddr).
func (s *Server) Stop() error { return s.loop.Stop() }

// RemoveCache evicts path from the static-file cache. Safe to call
// from any goroutine.
func (s *Server) RemoveCache(path string) {
	if s.cache != nil {
		s.cache.remove(path)
	}
}

// RemoveCacheAll clears the static-file cache entirely.
func (s *Server) RemoveCacheAll() {
	if s.cache != nil {
		s.cache.clear()
	}
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.eng = eng
	s.loop.Bind()
	return gnet.None
}

// connState tracks one connection's in-flight request.
type connState struct {
	parser    *incoming.Parser
	req       *Request
	route     Route
	matched   bool
	cancel    bool
	keepAlive bool
	traceID   string
}

func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	cs := &connState{req: AcquireRequest(), keepAlive: true, traceID: uuid.NewString()}
	cs.parser = s.newParser(c, cs)
	c.SetContext(cs)
	return nil, gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	if cs, ok := c.Context().(*connState); ok && cs.req != nil {
		ReleaseRequest(cs.req)
	}
	return gnet.None
}

func (s *Server) newParser(c gnet.Conn, cs *connState) *incoming.Parser {
	return incoming.New(incoming.ModeRequest, incoming.Hooks{
		OnHeadersParsed: func(req *headerparse.Request, _ *headerparse.Response) bool {
			return s.onHeadersParsed(cs, req)
		},
		OnContentReceived: func(data []byte, size int) bool {
			return s.onContentReceived(cs, data, size)
		},
		OnReadEnd: func(fail *incoming.Failure) {
			s.onReadEnd(c, cs, fail)
		},
	}, s.pool)
}

func (s *Server) onHeadersParsed(cs *connState, req *headerparse.Request) bool {
	logger.Debug().Msgf("[%s] %s %s", cs.traceID, req.Method, req.Target)
	cs.req.Method = req.Method
	for _, h := range req.Headers {
		cs.req.Headers.Set(h.Name, h.Value)
	}

	target := req.Target
	path := target
	if i := strings.IndexByte(target, '?'); i >= 0 {
		path = target[:i]
		cs.req.Query = uri.ParseQuery(target[i+1:])
	} else {
		cs.req.Query = nil
	}
	cs.req.URL = uri.Decode(path)

	if v, ok := cs.req.Headers.Get("Range"); ok {
		cs.req.Range, _ = parseRangeHeader(v)
	} else {
		cs.req.Range = nil
	}

	if v, ok := cs.req.Headers.Get("Connection"); ok {
		cs.keepAlive = !strings.EqualFold(v, "close")
	} else {
		cs.keepAlive = true
	}

	route, ok := s.router.Find(cs.req.URL)
	if !ok && s.cache != nil {
		route = Route{OnRoute: s.serveStaticRoute}
		ok = true
	}
	if !ok {
		return true
	}
	cs.route = route
	cs.matched = true

	if route.OnStart != nil && !route.OnStart(cs.req) {
		cs.cancel = true
		return false
	}
	return true
}

func (s *Server) serveStaticRoute(req *Request, res *Response) {
	served, ok := s.cache.serve(req.URL)
	if !ok {
		res.StatusCode = StatusNotFound
		res.StatusMsg = StatusText(StatusNotFound)
		res.Headers.Set("Content-Type", "text/plain; charset=utf-8")
		body := []byte("not found")
		res.ContentLength = int64(len(body))
		res.Body = BytesBody(body, 0)
		return
	}
	res.StatusCode = served.StatusCode
	res.StatusMsg = served.StatusMsg
	res.ContentLength = served.ContentLength
	res.Body = served.Body
	res.Release = served.Release
	served.Headers.Each(func(name, value string) { res.Headers.Set(name, value) })
}

func (s *Server) onContentReceived(cs *connState, data []byte, size int) bool {
	if size == 0 {
		return true
	}
	if cs.route.OnData != nil {
		return cs.route.OnData(data, size)
	}
	return true
}

func (s *Server) onReadEnd(c gnet.Conn, cs *connState, fail *incoming.Failure) {
	defer s.resetForNextRequest(c, cs)

	if fail != nil {
		s.writeFailureResponse(c, cs, fail)
		return
	}
	if !cs.matched {
		s.writeNotFound(c, cs)
		return
	}

	res := AcquireResponse()
	defer ReleaseResponse(res)
	cs.route.OnRoute(cs.req, res)
	s.writeResponse(c, cs, res)
}

func (s *Server) resetForNextRequest(c gnet.Conn, cs *connState) {
	cs.req.Reset()
	cs.route = Route{}
	cs.matched = false
	cs.keepAlive = true
	cs.traceID = uuid.NewString()
	cs.parser = s.newParser(c, cs)
}

// applyEnvelope applies the response envelope rules: a HEAD request
// always gets an empty body; otherwise a request Range is resolved
// against a known content length into either a 206 Partial Content (with
// the body narrowed to that span) or a 416 if it can't be satisfied.
func (s *Server) applyEnvelope(cs *connState, res *Response) {
	if cs.req.Method == MethodHead {
		res.Body = nil
		res.ContentLength = 0
		return
	}
	if res.ContentLength < 0 || cs.req.Range == nil {
		return
	}
	length := res.ContentLength
	if begin, end, ok := clampRange(cs.req.Range, length); ok {
		res.StatusCode = StatusPartialContent
		res.StatusMsg = StatusText(StatusPartialContent)
		if res.Body != nil {
			res.Body = newRangeProducer(res.Body, begin, end)
		}
		res.ContentLength = end - begin + 1
		res.Headers.Set("Content-Range", "bytes "+strconv.FormatInt(begin, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(length, 10))
	} else {
		res.StatusCode = StatusRangeNotSatisfiable
		res.StatusMsg = StatusText(StatusRangeNotSatisfiable)
		res.Body = nil
		res.ContentLength = 0
		res.Headers.Set("Content-Range", "bytes */"+strconv.FormatInt(length, 10))
	}
}

func (s *Server) writeResponse(c gnet.Conn, cs *connState, res *Response) {
	if res.StatusCode == 0 {
		res.StatusCode = StatusOK
	}
	if res.StatusMsg == "" {
		res.StatusMsg = StatusText(res.StatusCode)
	}
	s.applyEnvelope(cs, res)
	logger.Debug().Msgf("[%s] -> %d", cs.traceID, res.StatusCode)

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	header := s.buildHeader(cs, res, bb)
	if v, ok := res.Headers.Get("Connection"); ok && strings.EqualFold(v, "close") {
		cs.cancel = true
	}
	writer := contentwriter.New(s.pool, func(data []byte) (bool, error) {
		n, err := c.Write(data)
		return n == len(data), err
	})
	_ = writer.Run(header, res.Body)
}

// buildHeader serialises res's status line and headers into bb's
// backing array, defaulting the Content-Length/Accept-Ranges,
// Connection and Server headers the envelope rules require, and
// returning the resulting slice.
func (s *Server) buildHeader(cs *connState, res *Response, bb *bytebufferpool.ByteBuffer) []byte {
	bb.B = res.WriteStatusLine(bb.B)
	if res.ContentLength >= 0 {
		if !res.Headers.Has("Content-Length") {
			res.Headers.Set("Content-Length", strconv.FormatInt(res.ContentLength, 10))
		}
		if !res.Headers.Has("Accept-Ranges") {
			res.Headers.Set("Accept-Ranges", "bytes")
		}
		if !res.Headers.Has("Connection") {
			if cs.keepAlive {
				res.Headers.Set("Connection", "Keep-Alive")
			} else {
				res.Headers.Set("Connection", "Close")
			}
		}
	} else if !res.Headers.Has("Connection") {
		// Unknown-length bodies aren't re-chunked on the way out; the
		// connection closes once the body finishes instead.
		res.Headers.Set("Connection", "close")
	}
	if !res.Headers.Has("Server") {
		res.Headers.Set("Server", "kilat")
	}
	bb.B = res.Headers.WriteTo(bb.B)
	bb.B = append(bb.B, '\r', '\n')
	return bb.B
}

func (s *Server) errorHandler() ErrorHandler {
	if s.config.ErrorHandler != nil {
		return s.config.ErrorHandler
	}
	return defaultErrorHandler
}

func (s *Server) writeNotFound(c gnet.Conn, cs *connState) {
	res := NewResponse(StatusNotFound)
	s.errorHandler()(nil, res)
	s.writeResponse(c, cs, res)
}

func (s *Server) writeFailureResponse(c gnet.Conn, cs *connState, fail *incoming.Failure) {
	if fail.Kind == incoming.KindUserCancelled {
		return
	}
	res := NewResponse(StatusBadRequest)
	s.errorHandler()(fail, res)
	s.writeResponse(c, cs, res)
}

func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	cs, ok := c.Context().(*connState)
	if !ok {
		return gnet.Close
	}
	buf, _ := c.Next(-1)
	cs.parser.Feed(buf)
	if cs.cancel {
		cs.cancel = false
		return gnet.Close
	}
	return gnet.None
}
