// Package contentwriter drives the write side of a connection: it pulls
// bytes from a producer (in-memory slice, streaming callback, or file)
// and pushes them out over a socket write function strictly in order,
// fusing small content onto the header write when it fits in a single
// pooled buffer and otherwise streaming it chunk by chunk.
package contentwriter

import (
	"errors"

	"github.com/kilathq/kilat/internal/bufpool"
)

// ErrCancelled is returned from Run when the producer or the socket
// write function asks for an early stop.
var ErrCancelled = errors.New("contentwriter: cancelled")

// Producer supplies body bytes on demand. It returns the next chunk (a
// view into storage the caller may reuse after Produce returns -- the
// writer copies what it needs before calling again), whether more data
// follows, and an error.
type Producer interface {
	Produce() (data []byte, more bool, err error)
}

// BytesProducer adapts a single in-memory slice to the Producer
// interface, splitting it into socket-sized writes.
type BytesProducer struct {
	data []byte
	pos  int
	size int
}

// NewBytesProducer creates a Producer over data, handed out in pieces
// no larger than chunkSize (0 uses the whole slice in one piece).
func NewBytesProducer(data []byte, chunkSize int) *BytesProducer {
	return &BytesProducer{data: data, size: chunkSize}
}

func (b *BytesProducer) Produce() ([]byte, bool, error) {
	if b.pos >= len(b.data) {
		return nil, false, nil
	}
	end := len(b.data)
	if b.size > 0 && b.pos+b.size < end {
		end = b.pos + b.size
	}
	chunk := b.data[b.pos:end]
	b.pos = end
	return chunk, b.pos < len(b.data), nil
}

// WriteFunc pushes a slice of bytes out over the socket. It must
// consume all of data or return an error; it returns false to ask the
// writer to stop without treating it as an error (e.g. a closed
// connection the caller is already tearing down).
type WriteFunc func(data []byte) (ok bool, err error)

// PreloadLimit is the largest content size that may be fused onto the
// header write inside a single pooled buffer, per the design note
// capping preload to one buffer.
const PreloadLimit = bufpool.DefaultBaseline

// Writer streams a header blob followed by a Producer's body over a
// WriteFunc, latching the first socket error it observes so repeated
// calls after a failed write are cheap no-ops.
type Writer struct {
	pool           *bufpool.Pool
	write          WriteFunc
	lastSocketErr  error
}

// New creates a Writer pulling scratch buffers from pool (nil uses a
// private default-baseline pool) and pushing bytes through write.
func New(pool *bufpool.Pool, write WriteFunc) *Writer {
	if pool == nil {
		pool = bufpool.New(0)
	}
	return &Writer{pool: pool, write: write}
}

// LastSocketError returns the first socket error this Writer observed,
// or nil.
func (w *Writer) LastSocketError() error { return w.lastSocketErr }

// Run writes header followed by everything body produces. If body's
// first chunk fits within PreloadLimit and no more chunks follow, it is
// fused onto header in a single write; otherwise header is flushed
// immediately and body is streamed chunk by chunk as it is produced.
func (w *Writer) Run(header []byte, body Producer) error {
	if w.lastSocketErr != nil {
		return w.lastSocketErr
	}

	if body == nil {
		return w.writeOut(header)
	}

	chunk, more, err := body.Produce()
	if err != nil {
		return err
	}
	if chunk == nil && !more {
		return w.writeOut(header)
	}

	if !more && len(header)+len(chunk) <= PreloadLimit {
		buf, err := w.pool.Get(len(header) + len(chunk))
		if err != nil {
			return err
		}
		defer buf.Recycle()
		buf.Append(header)
		buf.Append(chunk)
		return w.writeOut(buf.Bytes())
	}

	if err := w.writeOut(header); err != nil {
		return err
	}
	if err := w.writeOut(chunk); err != nil {
		return err
	}
	for more {
		chunk, more, err = body.Produce()
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			continue
		}
		if err := w.writeOut(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeOut(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	ok, err := w.write(data)
	if err != nil {
		w.lastSocketErr = err
		return err
	}
	if !ok {
		w.lastSocketErr = ErrCancelled
		return ErrCancelled
	}
	return nil
}
