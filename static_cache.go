package kilat

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/kilathq/kilat/internal/filebuffer"
	"github.com/kilathq/kilat/internal/filecache"
)

// smallFileLimit is the largest file size the in-memory cache will
// hold whole; anything bigger is served by streaming through a cached
// file descriptor instead, matching the file cache's chunked design
// without pinning large files entirely in memory.
const smallFileLimit = 4 * 1024 * 1024

// staticCache serves files under root, fully caching small ones and
// streaming larger ones through a reused file descriptor, invalidating
// either path on modification time change.
type staticCache struct {
	root    string
	memory  *filecache.Cache
	handles *filecache.FDCache
}

func newStaticCache(root string) *staticCache {
	return &staticCache{
		root:    root,
		memory:  filecache.NewCache(256*1024*1024, 4096),
		handles: filecache.NewFDCache(256, 5*time.Minute),
	}
}

func (sc *staticCache) remove(path string) {
	sc.memory.Remove(path)
	sc.handles.Remove(path)
}

func (sc *staticCache) clear() {
	sc.memory.Clear()
	sc.handles.Clear()
}

// serve builds a Response for the static file at the request's URL
// path, or reports ok == false if the path escapes root, doesn't
// exist, or is a directory.
func (sc *staticCache) serve(urlPath string) (*Response, bool) {
	cleaned := filepath.Clean("/" + urlPath)
	full := filepath.Join(sc.root, cleaned)
	if !strings.HasPrefix(full, filepath.Clean(sc.root)+string(filepath.Separator)) && full != filepath.Clean(sc.root) {
		return nil, false
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return nil, false
	}

	res := NewResponse(StatusOK)
	res.Headers.Set("Content-Type", MimeType(filepath.Ext(full)))
	res.Headers.Set("ETag", etag(full, info))
	res.ContentLength = info.Size()

	if info.Size() <= smallFileLimit {
		if cached, ok := sc.memory.Get(full); ok && !sc.memory.IsModified(full, info) {
			res.Body = BytesBody(cached.Data, 0)
			return res, true
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, false
		}
		sc.memory.Set(full, data, info.ModTime(), int64(len(data)), res.Headers.GetDefault("Content-Type", defaultMimeType))
		res.Body = BytesBody(data, 0)
		return res, true
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, false
	}
	sc.handles.Set(full, f, info.ModTime(), info.Size())
	res.Body = &fileProducer{f: f}
	res.Release = func() { sc.handles.Remove(full) }
	return res, true
}

// etag is a weak validator derived from the file's path and
// modification time, hashed with xxhash for a short, stable token
// rather than hex-encoding the path itself.
func etag(path string, info os.FileInfo) string {
	h := xxhash.New()
	_, _ = h.WriteString(path)
	_, _ = h.WriteString(info.ModTime().String())
	return `W/"` + strconv.FormatUint(h.Sum64(), 16) + `"`
}

// fileProducer streams an *os.File in fixed-size chunks pulled from the
// shared read-buffer pool, implementing Producer for files too large to
// hold fully in the in-memory cache.
type fileProducer struct {
	f   *os.File
	buf []byte
}

func (p *fileProducer) Produce() ([]byte, bool, error) {
	if p.buf == nil {
		p.buf = filebuffer.GetReadBuffer()
	}
	n, err := p.f.Read(p.buf)
	if n > 0 {
		return p.buf[:n], true, nil
	}
	p.release()
	if err != nil && err != io.EOF {
		return nil, false, &FilesystemError{Path: p.f.Name(), Err: err}
	}
	return nil, false, nil
}

func (p *fileProducer) release() {
	p.f.Close()
	if p.buf != nil {
		filebuffer.ReleaseReadBuffer(p.buf)
		p.buf = nil
	}
}
