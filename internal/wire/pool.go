// Package wire implements the outbound buffer manager: buffer
// acquisition from size-classed pools, optional packing of multiple
// encoded messages into one transport buffer, and the write-again /
// flush-required back-pressure handling the transport contract exposes.
package wire

import "sync"

// Size classes mirror the small/medium/large split used elsewhere in
// this codebase's buffer pooling: most update messages are small, full
// refreshes and packed buffers run larger.
const (
	smallClass  = 512
	mediumClass = 4096
	largeClass  = 65536
)

type sizedPool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
}

func newSizedPool() *sizedPool {
	p := &sizedPool{}
	p.small.New = func() any { b := make([]byte, smallClass); return &b }
	p.medium.New = func() any { b := make([]byte, mediumClass); return &b }
	p.large.New = func() any { b := make([]byte, largeClass); return &b }
	return p
}

// get returns a buffer with capacity >= n, from the smallest class that
// fits, growing a fresh large-class allocation for anything bigger than
// largeClass (that allocation is not pooled, since it is sized for one
// exceptional message and would waste memory sitting in the pool).
func (p *sizedPool) get(n int) []byte {
	switch {
	case n <= smallClass:
		b := p.small.Get().(*[]byte)
		return (*b)[:n]
	case n <= mediumClass:
		b := p.medium.Get().(*[]byte)
		return (*b)[:n]
	case n <= largeClass:
		b := p.large.Get().(*[]byte)
		return (*b)[:n]
	default:
		return make([]byte, n)
	}
}

func (p *sizedPool) put(buf []byte) {
	c := cap(buf)
	full := buf[:c]
	switch c {
	case smallClass:
		p.small.Put(&full)
	case mediumClass:
		p.medium.Put(&full)
	case largeClass:
		p.large.Put(&full)
	default:
		// non-pooled oversized allocation; let the GC reclaim it.
	}
}
