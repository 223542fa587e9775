package kilat

import (
	"strconv"
	"strings"
)

// parseRangeHeader parses a "Range: bytes=B-E" header value, supporting
// the open-ended "B-" and suffix "-E" forms. Only the first range of a
// multi-range header is honoured; anything else reports ok == false.
func parseRangeHeader(v string) (*Range, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(v, prefix) {
		return nil, false
	}
	spec := strings.TrimPrefix(v, prefix)
	if i := strings.IndexByte(spec, ','); i >= 0 {
		spec = spec[:i]
	}
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return nil, false
	}
	beginStr, endStr := spec[:dash], spec[dash+1:]

	if beginStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return nil, false
		}
		return &Range{Begin: -1, End: n}, true
	}

	begin, err := strconv.ParseInt(beginStr, 10, 64)
	if err != nil || begin < 0 {
		return nil, false
	}
	if endStr == "" {
		return &Range{Begin: begin, End: -1}, true
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < 0 {
		return nil, false
	}
	return &Range{Begin: begin, End: end}, true
}

// clampRange resolves rng against a known content length, returning the
// inclusive [begin, end] byte span to serve, or ok == false when the
// range can't be satisfied (out of bounds, empty, or inverted).
func clampRange(rng *Range, length int64) (begin, end int64, ok bool) {
	if length <= 0 {
		return 0, 0, false
	}
	if rng.Begin < 0 {
		suffix := rng.End
		if suffix > length {
			suffix = length
		}
		if suffix <= 0 {
			return 0, 0, false
		}
		return length - suffix, length - 1, true
	}
	if rng.Begin >= length {
		return 0, 0, false
	}
	end = rng.End
	if end < 0 || end >= length {
		end = length - 1
	}
	if end < rng.Begin {
		return 0, 0, false
	}
	return rng.Begin, end, true
}

// rangeProducer narrows an underlying Producer to the inclusive byte
// span [begin, end], discarding bytes before begin and stopping once
// end is reached, regardless of how the wrapped producer chunks its
// data. This lets range clamping sit in the response envelope path
// and work against any producer -- an in-memory body, a streamed file
// -- without either needing a seek-aware variant.
type rangeProducer struct {
	src       Producer
	skip      int64
	remaining int64
}

func newRangeProducer(src Producer, begin, end int64) Producer {
	return &rangeProducer{src: src, skip: begin, remaining: end - begin + 1}
}

func (p *rangeProducer) Produce() ([]byte, bool, error) {
	for p.remaining > 0 {
		data, more, err := p.src.Produce()
		if err != nil {
			return nil, false, err
		}
		if len(data) == 0 {
			if !more {
				return nil, false, nil
			}
			continue
		}
		if p.skip > 0 {
			if int64(len(data)) <= p.skip {
				p.skip -= int64(len(data))
				if !more {
					return nil, false, nil
				}
				continue
			}
			data = data[p.skip:]
			p.skip = 0
		}
		if int64(len(data)) > p.remaining {
			data = data[:p.remaining]
			more = false
		}
		p.remaining -= int64(len(data))
		if p.remaining == 0 {
			more = false
		}
		return data, more, nil
	}
	return nil, false, nil
}
