// Package incoming drives the socket-read side of the protocol: it
// accumulates bytes into a pooled buffer, repeatedly offers them to the
// header/line parser, and once headers are complete inspects
// Transfer-Encoding/Content-Length to decide whether a chunked decoder
// needs to be attached before the body can be delivered to the caller.
package incoming

import (
	"io"
	"strconv"
	"strings"

	"github.com/kilathq/kilat/internal/bufpool"
	"github.com/kilathq/kilat/internal/chunked"
	"github.com/kilathq/kilat/internal/headerparse"
)

// Kind distinguishes why a Parser stopped making progress.
type Kind int

const (
	// KindOK means nothing went wrong; parsing can continue.
	KindOK Kind = iota
	// KindUserCancelled means a callback asked the parser to stop.
	KindUserCancelled
	// KindHTTPHeaders means the request/status line or headers were
	// malformed.
	KindHTTPHeaders
	// KindHTTPChunked means the chunked transfer-coding framing was
	// malformed.
	KindHTTPChunked
	// KindSocket wraps an error surfaced by the caller's read (EOF,
	// reset, etc.) so Failure can report a single reason consistently.
	KindSocket
)

// Failure is returned by Parser methods when parsing cannot continue.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Err.Error()
	}
	switch f.Kind {
	case KindUserCancelled:
		return "incoming: cancelled by caller"
	case KindHTTPHeaders:
		return "incoming: malformed headers"
	case KindHTTPChunked:
		return "incoming: malformed chunked body"
	default:
		return "incoming: socket error"
	}
}

// Mode selects which header-block shape to parse.
type Mode int

const (
	ModeRequest Mode = iota
	ModeResponse
)

// Hooks are the callbacks a Parser drives as it makes progress. All are
// optional; a nil hook is simply skipped.
type Hooks struct {
	// OnHeadersParsed is called once the request/status line and
	// headers are fully available. Returning false cancels parsing
	// with KindUserCancelled.
	OnHeadersParsed func(req *headerparse.Request, res *headerparse.Response) bool
	// OnContentReceived is called with successive body fragments. A
	// chunked body ends with a call where size == 0; identity and
	// read-until-close bodies get no such call, and their end is
	// signalled by OnReadEnd. Returning false cancels parsing with
	// KindUserCancelled.
	OnContentReceived func(data []byte, size int) bool
	// OnReadEnd is called once, however parsing finished: cleanly, on
	// cancellation, or on error.
	OnReadEnd func(fail *Failure)
}

type phase int

const (
	phaseHeaders phase = iota
	phaseBodyIdentity
	phaseBodyChunked
	phaseBodyUntilClose
	phaseBodyNone
	phaseDone
)

// bodyUntilClose is the classifyBody sentinel for "length unknown,
// read until the peer closes the connection" -- the spec's
// INT64_MAX-for-responses case, collapsed to a dedicated phase rather
// than an actual sentinel content length so feedIdentity's arithmetic
// never has to special-case it.
const bodyUntilClose int64 = -1

// Parser accumulates socket reads and drives Hooks as a request or
// response becomes available. One Parser is meant to live for the
// lifetime of a single message; the caller resets or discards it
// between messages.
type Parser struct {
	mode  Mode
	hooks Hooks
	pool  *bufpool.Pool
	buf   *bufpool.Buffer

	phase         phase
	contentLength int64
	received      int64
	dec           *chunked.Decoder
	cancelled     bool
	failure       *Failure
}

// New creates a Parser reading in mode, pulling scratch buffers from
// pool (nil uses a private default-baseline pool).
func New(mode Mode, hooks Hooks, pool *bufpool.Pool) *Parser {
	if pool == nil {
		pool = bufpool.New(0)
	}
	return &Parser{mode: mode, hooks: hooks, pool: pool}
}

// Feed delivers newly read bytes to the parser. It may call back into
// Hooks any number of times, including zero. The caller should keep
// calling Feed with further reads until Done or Failed is true.
func (p *Parser) Feed(data []byte) {
	if p.phase == phaseDone || p.failure != nil {
		return
	}

	if p.phase == phaseHeaders {
		// feedHeaders forwards any leftover bytes past the header
		// block into the body phase itself; nothing more to do here.
		p.feedHeaders(data)
		return
	}

	p.feedBody(data)
}

func (p *Parser) appendToBuf(data []byte) bool {
	if p.buf == nil {
		b, err := p.pool.Get(len(data))
		if err != nil {
			p.fail(KindSocket, err)
			return false
		}
		p.buf = b
	}
	if cap(p.buf.Bytes())-len(p.buf.Bytes()) < len(data) {
		bigger, err := p.pool.Get(len(p.buf.Bytes()) + len(data))
		if err != nil {
			p.fail(KindSocket, err)
			return false
		}
		bigger.Append(p.buf.Bytes())
		p.buf.Recycle()
		p.buf = bigger
	}
	p.buf.Append(data)
	return true
}

func (p *Parser) feedHeaders(data []byte) bool {
	if !p.appendToBuf(data) {
		return false
	}

	var consumed int
	var req *headerparse.Request
	var res *headerparse.Response

	if p.mode == ModeRequest {
		req, consumed = headerparse.ParseRequest(p.buf.Bytes())
	} else {
		res, consumed = headerparse.ParseResponse(p.buf.Bytes())
	}

	switch consumed {
	case headerparse.Incomplete:
		return false
	case headerparse.Malformed:
		p.fail(KindHTTPHeaders, nil)
		return false
	}

	headers := headerFields(req, res)
	if p.hooks.OnHeadersParsed != nil && !p.hooks.OnHeadersParsed(req, res) {
		p.cancel()
		return false
	}

	p.contentLength, p.dec = classifyBody(p.mode, headers)
	switch {
	case p.dec != nil:
		p.phase = phaseBodyChunked
	case p.contentLength > 0:
		p.phase = phaseBodyIdentity
	case p.contentLength == bodyUntilClose:
		p.phase = phaseBodyUntilClose
	default:
		p.phase = phaseBodyNone
	}

	leftover := append([]byte(nil), p.buf.Bytes()[consumed:]...)
	p.buf.Recycle()
	p.buf = nil

	if p.phase == phaseBodyNone {
		p.finishBody()
		return true
	}
	if len(leftover) > 0 {
		p.feedBody(leftover)
	}
	return true
}

func headerFields(req *headerparse.Request, res *headerparse.Response) []headerparse.HeaderField {
	if req != nil {
		return req.Headers
	}
	if res != nil {
		return res.Headers
	}
	return nil
}

// classifyBody inspects Transfer-Encoding/Content-Length per RFC 7230
// §3.3.3: a chunked Transfer-Encoding takes priority over any
// Content-Length present alongside it. A response with neither reads
// until the peer closes the connection (bodyUntilClose); a request
// with neither is assumed to carry no body.
func classifyBody(mode Mode, headers []headerparse.HeaderField) (contentLength int64, dec *chunked.Decoder) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, "Transfer-Encoding") && strings.Contains(strings.ToLower(h.Value), "chunked") {
			return 0, chunked.Get()
		}
	}
	for _, h := range headers {
		if strings.EqualFold(h.Name, "Content-Length") {
			n, err := strconv.ParseInt(strings.TrimSpace(h.Value), 10, 64)
			if err == nil && n >= 0 {
				return n, nil
			}
		}
	}
	if mode == ModeResponse {
		return bodyUntilClose, nil
	}
	return 0, nil
}

func (p *Parser) feedBody(data []byte) {
	switch p.phase {
	case phaseBodyIdentity:
		p.feedIdentity(data)
	case phaseBodyChunked:
		p.feedChunked(data)
	case phaseBodyUntilClose:
		p.feedUntilClose(data)
	default:
		// Body already finished or never existed; stray bytes here
		// belong to the next pipelined message and are the caller's
		// concern, not this Parser's.
	}
}

// feedUntilClose delivers bytes for a response whose length wasn't
// declared; there's no threshold to reach here, only EOF (see EOF
// below) ends this phase.
func (p *Parser) feedUntilClose(data []byte) {
	if len(data) == 0 {
		return
	}
	if p.hooks.OnContentReceived != nil && !p.hooks.OnContentReceived(data, len(data)) {
		p.cancel()
		return
	}
	p.received += int64(len(data))
}

func (p *Parser) feedIdentity(data []byte) {
	remaining := p.contentLength - p.received
	take := int64(len(data))
	if take > remaining {
		take = remaining
	}
	if take > 0 {
		if p.hooks.OnContentReceived != nil && !p.hooks.OnContentReceived(data[:take], int(take)) {
			p.cancel()
			return
		}
		p.received += take
	}
	if p.received >= p.contentLength {
		p.finishBody()
	}
}

func (p *Parser) feedChunked(data []byte) {
	cancelled := false
	res := p.dec.Feed(data, func(d []byte, size int) {
		if cancelled || p.hooks.OnContentReceived == nil {
			return
		}
		if !p.hooks.OnContentReceived(d, size) {
			cancelled = true
		}
	})
	if cancelled {
		p.cancel()
		return
	}
	switch {
	case res == chunked.Malformed:
		p.fail(KindHTTPChunked, nil)
	case res == chunked.NeedMore:
		// wait for more bytes
	default:
		chunked.Put(p.dec)
		p.dec = nil
		p.finishBody()
	}
}

func (p *Parser) finishBody() {
	p.phase = phaseDone
	if p.hooks.OnReadEnd != nil {
		p.hooks.OnReadEnd(nil)
	}
}

func (p *Parser) cancel() {
	p.cancelled = true
	p.fail(KindUserCancelled, nil)
}

func (p *Parser) fail(kind Kind, err error) {
	if p.failure != nil {
		return
	}
	p.failure = &Failure{Kind: kind, Err: err}
	p.phase = phaseDone
	if p.buf != nil {
		p.buf.Recycle()
		p.buf = nil
	}
	if p.dec != nil {
		chunked.Put(p.dec)
		p.dec = nil
	}
	if p.hooks.OnReadEnd != nil {
		p.hooks.OnReadEnd(p.failure)
	}
}

// EOF reports that the connection closed with no further bytes
// coming. For a response read until close (phaseBodyUntilClose) this
// is the normal terminator -- RFC 7230 §3.3.3's "EOF with unknown
// length is normal completion" -- and finishes the body cleanly. Any
// other open phase treats it as a socket failure: the message was cut
// short of its declared length or terminal chunk.
func (p *Parser) EOF() {
	if p.phase == phaseDone || p.failure != nil {
		return
	}
	if p.phase == phaseBodyUntilClose {
		p.finishBody()
		return
	}
	p.fail(KindSocket, io.ErrUnexpectedEOF)
}

// Done reports whether the message finished, successfully or not.
func (p *Parser) Done() bool { return p.phase == phaseDone }

// Failed returns the failure that ended parsing, or nil on a clean
// finish.
func (p *Parser) Failed() *Failure { return p.failure }
