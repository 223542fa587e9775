package contentwriter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectingWriter() (WriteFunc, func() []byte) {
	var out []byte
	return func(data []byte) (bool, error) {
		out = append(out, data...)
		return true, nil
	}, func() []byte { return out }
}

func TestRunFusesSmallBody(t *testing.T) {
	write, collected := collectingWriter()
	var writeCount int
	wrapped := func(data []byte) (bool, error) {
		writeCount++
		return write(data)
	}

	w := New(nil, wrapped)
	err := w.Run([]byte("HEADERS\r\n\r\n"), NewBytesProducer([]byte("hello"), 0))
	require.NoError(t, err)
	assert.Equal(t, "HEADERS\r\n\r\nhello", string(collected()))
	assert.Equal(t, 1, writeCount, "small body should fuse into a single write")
}

func TestRunStreamsLargeBody(t *testing.T) {
	write, collected := collectingWriter()
	var writeCount int
	wrapped := func(data []byte) (bool, error) {
		writeCount++
		return write(data)
	}

	w := New(nil, wrapped)
	body := NewBytesProducer([]byte("abcdefghij"), 3)
	err := w.Run([]byte("H"), body)
	require.NoError(t, err)
	assert.Equal(t, "Habcdefghij", string(collected()))
	assert.Greater(t, writeCount, 1, "multi-chunk body should stream, not fuse")
}

func TestRunNoBody(t *testing.T) {
	write, collected := collectingWriter()
	w := New(nil, write)
	err := w.Run([]byte("HEADERS\r\n\r\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "HEADERS\r\n\r\n", string(collected()))
}

func TestRunLatchesSocketError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	w := New(nil, func(data []byte) (bool, error) {
		calls++
		return false, boom
	})

	err := w.Run([]byte("H"), NewBytesProducer([]byte("x"), 0))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, boom, w.LastSocketError())

	err2 := w.Run([]byte("more"), nil)
	require.ErrorIs(t, err2, boom)
	assert.Equal(t, 1, calls, "a latched error must short-circuit further writes")
}

func TestRunCancelledWrite(t *testing.T) {
	w := New(nil, func(data []byte) (bool, error) { return false, nil })
	err := w.Run([]byte("H"), nil)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestBytesProducerChunking(t *testing.T) {
	p := NewBytesProducer([]byte("abcdef"), 2)
	chunk, more, err := p.Produce()
	require.NoError(t, err)
	assert.Equal(t, "ab", string(chunk))
	assert.True(t, more)

	chunk, more, err = p.Produce()
	require.NoError(t, err)
	assert.Equal(t, "cd", string(chunk))
	assert.True(t, more)

	chunk, more, err = p.Produce()
	require.NoError(t, err)
	assert.Equal(t, "ef", string(chunk))
	assert.False(t, more)

	chunk, more, err = p.Produce()
	require.NoError(t, err)
	assert.Nil(t, chunk)
	assert.False(t, more)
}
