// Package chunked implements a streaming, feedable RFC 7230 chunked
// transfer-coding decoder. It is a pure state machine: it owns no socket
// and no buffer pool, so it can be fed fragments of arbitrary size and
// resumes exactly where it left off.
package chunked

import "sync"

type state uint8

const (
	stateChunkSize state = iota
	stateChunkExt
	stateChunkData
	stateChunkCRLF
	stateTrailerLineHead
	stateTrailerLineMiddle
)

const maxHexDigits = 16 // sizeof(uint64)*2, per the spec's overflow rule

// Sink receives decoded body bytes. size == 0 signals end-of-body (the
// terminal chunk was reached). Cancellation is not a chunked-framing
// concept: a consumer that wants to abort does so one layer up, in the
// incoming parser's on_content_received hook, so the sink here has no
// bool return to overload with two different meanings.
type Sink func(data []byte, size int)

// Feed's int return values. Chunked framing errors are reported only
// through Feed's return (Malformed, -1); there is no error value.
const (
	// NeedMore is returned when Feed needs more bytes to make progress.
	NeedMore = 0
	// Malformed is returned when the chunked framing is invalid.
	Malformed = -1
)

// Decoder is a resumable chunked-transfer decoder. The zero value is
// ready to use.
type Decoder struct {
	state       state
	bytesInBody uint64 // bytes left in the current chunk
	hexDigits   int
	hexValue    uint64
	done        bool
}

var pool = sync.Pool{New: func() any { return &Decoder{} }}

// Get returns a pooled, reset Decoder.
func Get() *Decoder {
	d := pool.Get().(*Decoder)
	d.Reset()
	return d
}

// Put returns d to the pool.
func Put(d *Decoder) { pool.Put(d) }

// Reset rewinds the decoder to its initial state, for reuse across
// connections.
func (d *Decoder) Reset() {
	d.state = stateChunkSize
	d.bytesInBody = 0
	d.hexDigits = 0
	d.hexValue = 0
	d.done = false
}

// Done reports whether the terminal chunk (and its trailer section) has
// been consumed.
func (d *Decoder) Done() bool { return d.done }

// Feed decodes data, delivering body bytes to sink as they are found.
// It returns:
//   - > 0: the number of unconsumed bytes in data *after* the chunked
//     terminator (0\r\n\r\n). Pipelined data, if any, starts there.
//   - 0 (NeedMore): every byte was consumed. Either the terminator was
//     not yet reached (feed more bytes on the next read), or it ended
//     exactly at the last byte of data; Done tells the two apart.
//   - -1 (Malformed): the framing is invalid.
func (d *Decoder) Feed(data []byte, sink Sink) int {
	i := 0
	n := len(data)

	for i < n {
		switch d.state {
		case stateChunkSize:
			c := data[i]
			switch {
			case isHex(c):
				if d.hexDigits >= maxHexDigits {
					return Malformed
				}
				d.hexValue = d.hexValue<<4 | uint64(hexVal(c))
				d.hexDigits++
				i++
			case c == ';':
				d.state = stateChunkExt
				i++
			case c == '\r':
				i++
			case c == '\n':
				if d.hexDigits == 0 {
					return Malformed
				}
				d.bytesInBody = d.hexValue
				d.hexValue = 0
				d.hexDigits = 0
				if d.bytesInBody == 0 {
					d.state = stateTrailerLineHead
				} else {
					d.state = stateChunkData
				}
				i++
			default:
				return Malformed
			}

		case stateChunkExt:
			// Skip extension bytes until the line's LF, matching the
			// spec's "extensions are skipped until \n".
			if data[i] == '\n' {
				if d.hexDigits == 0 {
					return Malformed
				}
				d.bytesInBody = d.hexValue
				d.hexValue = 0
				d.hexDigits = 0
				if d.bytesInBody == 0 {
					d.state = stateTrailerLineHead
				} else {
					d.state = stateChunkData
				}
			}
			i++

		case stateChunkData:
			remaining := n - i
			take := remaining
			if uint64(take) > d.bytesInBody {
				take = int(d.bytesInBody)
			}
			if take > 0 {
				if sink != nil {
					sink(data[i:i+take], take)
				}
				d.bytesInBody -= uint64(take)
				i += take
			}
			if d.bytesInBody == 0 {
				d.state = stateChunkCRLF
			}

		case stateChunkCRLF:
			c := data[i]
			if c == '\r' {
				i++
				continue
			}
			if c == '\n' {
				d.state = stateChunkSize
				i++
				continue
			}
			return Malformed

		case stateTrailerLineHead:
			// Either an immediate CRLF (no trailers) or the start of a
			// trailer header line.
			c := data[i]
			if c == '\r' {
				i++
				continue
			}
			if c == '\n' {
				d.done = true
				if sink != nil {
					sink(nil, 0)
				}
				return n - (i + 1)
			}
			d.state = stateTrailerLineMiddle
			i++

		case stateTrailerLineMiddle:
			if data[i] == '\n' {
				d.state = stateTrailerLineHead
			}
			i++
		}
	}

	return NeedMore
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
