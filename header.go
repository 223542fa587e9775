package kilat

import (
	"net/textproto"
	"strings"
	"sync"
)

// headerMutex protects Header operations from concurrent access
var headerMutex sync.RWMutex

// Header represents the key-value pairs in an HTTP header. Kept for the
// convenience accessors built on top of Headers (cookies, content
// negotiation) that want textproto's multi-value semantics; the
// connection-level parser and writer deal exclusively in Headers below.
// The keys should be in canonical form, as returned by
// textproto.CanonicalMIMEHeaderKey.
type Header map[string][]string

// Add adds the key, value pair to the header.
// It appends to any existing values associated with key.
// The key is case insensitive; it is canonicalized by
// textproto.CanonicalMIMEHeaderKey.
// This optimized version reduces allocations by appending directly when possible.
func (h Header) Add(key, value string) {
	key = textproto.CanonicalMIMEHeaderKey(key)

	// Use a single lock for the entire operation to avoid race conditions
	// This is simpler and often more efficient than using multiple locks
	headerMutex.Lock()
	defer headerMutex.Unlock()

	// Check if the key exists
	values, exists := h[key]

	if !exists || values == nil {
		// Need to create a new entry
		h[key] = []string{value}
		return
	}

	// Append to existing values
	// This will only allocate a new backing array if the capacity is exceeded
	h[key] = append(values, value)
}

// Set sets the header entries associated with key to the
// single element value. It replaces any existing values
// associated with key. The key is case insensitive; it is
// canonicalized by textproto.CanonicalMIMEHeaderKey.
// To use non-canonical keys, assign to the map directly.
func (h Header) Set(key, value string) {
	key = textproto.CanonicalMIMEHeaderKey(key)

	// Create the slice outside the lock
	values := []string{value}

	// Shorter critical section
	headerMutex.Lock()
	h[key] = values
	headerMutex.Unlock()
}

// Get gets the first value associated with the given key.
// If there are no values associated with the key, Get returns "".
// It is case insensitive; textproto.CanonicalMIMEHeaderKey is used
// to canonicalize the provided key.
// To use non-canonical keys, access the map directly.
func (h Header) Get(key string) string {
	key = textproto.CanonicalMIMEHeaderKey(key)

	headerMutex.RLock()
	values := h[key]
	headerMutex.RUnlock()

	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Values returns all values associated with the given key.
// It is case insensitive; textproto.CanonicalMIMEHeaderKey is
// used to canonicalize the provided key. To use non-canonical
// keys, access the map directly.
// The returned slice is a copy to avoid concurrent modification issues.
// This optimized version avoids unnecessary copying for single-value headers.
func (h Header) Values(key string) []string {
	key = textproto.CanonicalMIMEHeaderKey(key)

	headerMutex.RLock()
	values := h[key]
	headerMutex.RUnlock()

	// Fast path for empty values
	if len(values) == 0 {
		return nil
	}

	// Fast path for single-value headers (common case)
	// Return a new slice with the same backing array
	if len(values) == 1 {
		return values[:1:1] // Create a slice with capacity=1 to prevent appends
	}

	// For multi-value headers, create a copy to avoid concurrent modification
	result := make([]string, len(values))
	copy(result, values)
	return result
}

// Del deletes the values associated with key.
// The key is case insensitive; it is canonicalized by
// textproto.CanonicalMIMEHeaderKey.
func (h Header) Del(key string) {
	key = textproto.CanonicalMIMEHeaderKey(key)

	// Shorter critical section
	headerMutex.Lock()
	delete(h, key)
	headerMutex.Unlock()
}

// Clone returns a copy of h or nil if h is nil.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}

	// First, get a snapshot of the keys and count values
	// This reduces the time we hold the read lock
	headerMutex.RLock()
	keys := make([]string, 0, len(h))
	valuesCounts := make(map[string]int, len(h))
	totalValues := 0

	for k, vv := range h {
		keys = append(keys, k)
		count := len(vv)
		valuesCounts[k] = count
		totalValues += count
	}
	headerMutex.RUnlock()

	// Create a new header
	h2 := make(Header, len(keys))

	// If there are no values, return the empty header
	if totalValues == 0 {
		return h2
	}

	// Create a shared backing array for all values
	sv := make([]string, totalValues)

	// Copy values for each key with minimal locking
	svIndex := 0
	for _, k := range keys {
		headerMutex.RLock()
		vv, exists := h[k]
		if !exists {
			headerMutex.RUnlock()
			continue
		}

		// Copy the values while holding the lock
		n := copy(sv[svIndex:], vv)
		headerMutex.RUnlock()

		// Set up the slice in the new header
		h2[k] = sv[svIndex : svIndex+n : svIndex+n]
		svIndex += n
	}

	return h2
}

// WriteSubset writes a header in wire format.
// If exclude is not nil, keys where exclude[key] == true are not written.
// This optimized version reduces allocations by avoiding unnecessary copying.
func (h Header) WriteSubset(w stringWriter, exclude map[string]bool) error {
	// First, get a snapshot of the keys to process
	// This reduces the time we hold the read lock
	headerMutex.RLock()

	// Pre-allocate keys slice to avoid resizing
	keys := make([]string, 0, len(h))
	for key := range h {
		if exclude == nil || !exclude[key] {
			keys = append(keys, key)
		}
	}
	headerMutex.RUnlock()

	// Process each key individually with minimal locking
	for _, key := range keys {
		// Get the values for this key
		headerMutex.RLock()
		values, exists := h[key]
		if !exists || len(values) == 0 {
			headerMutex.RUnlock()
			continue
		}

		// Create a reference to the values slice to use outside the lock
		// This avoids copying the entire slice
		valuesCopy := values
		headerMutex.RUnlock()

		// Write each value
		for _, v := range valuesCopy {
			// Clean the value (trim spaces, replace newlines)
			// Only allocate a new string if necessary
			cleaned := v
			if strings.ContainsAny(v, "\r\n ") {
				cleaned = strings.TrimSpace(v)
				cleaned = strings.ReplaceAll(cleaned, "\n", " ")
				cleaned = strings.ReplaceAll(cleaned, "\r", " ")
			}

			// Write the header line
			if _, err := w.WriteString(key + ": " + cleaned + "\r\n"); err != nil {
				return err
			}
		}
	}

	return nil
}

// Write writes a header in wire format.
func (h Header) Write(w stringWriter) error {
	return h.WriteSubset(w, nil)
}

// NewHeader creates a new empty Header with pre-allocated capacity.
func NewHeader() *Header {
	h := make(Header, 8) // Pre-allocate with capacity for common headers
	return &h
}

// NewHeaderFromMap creates a new Header from a map[string][]string.
// This optimized version avoids unnecessary copying of values when possible.
func NewHeaderFromMap(m map[string][]string) *Header {
	// Fast path for empty map
	if len(m) == 0 {
		h := make(Header, 0)
		return &h
	}

	// Pre-allocate with exact size
	h := make(Header, len(m))

	// Copy only non-empty values
	for k, v := range m {
		if len(v) == 0 {
			continue
		}
		h[k] = v // Direct reference, no copy
	}

	return &h
}

// UpdateHeaderFromMap updates an existing Header with values from a map[string][]string.
// This function avoids allocating a new Header map, reducing memory allocations.
// It returns the updated Header.
func UpdateHeaderFromMap(h *Header, m map[string][]string) *Header {
	// Clear the existing header
	for k := range *h {
		delete(*h, k)
	}

	// Fast path for empty map
	if len(m) == 0 {
		return h
	}

	// Copy only non-empty values
	for k, v := range m {
		if len(v) == 0 {
			continue
		}
		(*h)[k] = v // Direct reference, no copy
	}

	return h
}

// stringWriter is the interface that wraps the WriteString method.
// It is used by Header.Write and Header.WriteSubset to write headers in wire format.
type stringWriter interface {
	// WriteString writes a string and returns the number of bytes written and any error encountered.
	WriteString(s string) (n int, err error)
}

// Headers is the case-insensitive, single-value, last-write-wins header
// map the data model calls for on the connection level: header names
// compare case-insensitively, and a repeated header overwrites rather
// than accumulates. Names are stored lower-cased for lookup; the case
// a header was last set with is what gets written back out.
type Headers struct {
	names  map[string]string // lower(name) -> last-set name, for WriteTo
	values map[string]string // lower(name) -> value
	order  []string          // lower(name), insertion order, for stable WriteTo
}

// NewHeaders creates an empty header map.
func NewHeaders() *Headers {
	return &Headers{
		names:  make(map[string]string, 8),
		values: make(map[string]string, 8),
	}
}

func canonKey(name string) string { return strings.ToLower(name) }

// Set stores name/value, overwriting any previous value for name
// (case-insensitively).
func (h *Headers) Set(name, value string) {
	key := canonKey(name)
	if _, exists := h.values[key]; !exists {
		h.order = append(h.order, key)
	}
	h.names[key] = name
	h.values[key] = value
}

// Get returns the value for name and whether it was present.
func (h *Headers) Get(name string) (string, bool) {
	v, ok := h.values[canonKey(name)]
	return v, ok
}

// GetDefault returns the value for name, or def if absent.
func (h *Headers) GetDefault(name, def string) string {
	if v, ok := h.Get(name); ok {
		return v
	}
	return def
}

// Has reports whether name is present, case-insensitively.
func (h *Headers) Has(name string) bool {
	_, ok := h.values[canonKey(name)]
	return ok
}

// Del removes name, case-insensitively.
func (h *Headers) Del(name string) {
	key := canonKey(name)
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	delete(h.names, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of distinct header names.
func (h *Headers) Len() int { return len(h.values) }

// Each calls fn for every header in insertion order.
func (h *Headers) Each(fn func(name, value string)) {
	for _, key := range h.order {
		fn(h.names[key], h.values[key])
	}
}

// Clone returns an independent copy of h.
func (h *Headers) Clone() *Headers {
	c := NewHeaders()
	h.Each(func(name, value string) { c.Set(name, value) })
	return c
}

// Reset empties h for reuse from a pool.
func (h *Headers) Reset() {
	for k := range h.values {
		delete(h.values, k)
	}
	for k := range h.names {
		delete(h.names, k)
	}
	h.order = h.order[:0]
}

// WriteTo appends the wire representation ("Name: value\r\n" per header)
// to buf and returns the extended slice. It does not append the blank
// line that terminates a header block; callers append that once after
// the status line and all headers have been written.
func (h *Headers) WriteTo(buf []byte) []byte {
	for _, key := range h.order {
		buf = append(buf, h.names[key]...)
		buf = append(buf, ':', ' ')
		buf = append(buf, h.values[key]...)
		buf = append(buf, '\r', '\n')
	}
	return buf
}

var headersPool = sync.Pool{New: func() any { return NewHeaders() }}

// AcquireHeaders gets a Headers from the shared pool.
func AcquireHeaders() *Headers { return headersPool.Get().(*Headers) }

// ReleaseHeaders resets h and returns it to the shared pool.
func ReleaseHeaders(h *Headers) {
	h.Reset()
	headersPool.Put(h)
}
