package kilat

import "github.com/kilathq/kilat/internal/contentwriter"

// Producer is the public content-producer contract: anything that can
// hand back a request or response body in pieces, pulled on demand by
// the content writer. Implement it to stream from a file, a generator,
// or any other source the in-memory BytesBody doesn't fit.
type Producer = contentwriter.Producer

// BytesBody adapts a single in-memory slice to Producer, chunked at
// chunkSize bytes per pull (0 hands the whole slice back in one piece).
func BytesBody(data []byte, chunkSize int) Producer {
	return contentwriter.NewBytesProducer(data, chunkSize)
}
