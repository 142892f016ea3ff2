package buffer

import (
	"github.com/valyala/bytebufferpool"
)

// Pool hands out fixed-size byte slices for stream copy loops, backed by
// valyala/bytebufferpool so hot relay paths reuse buffers instead of
// allocating per connection.
type Pool struct {
	pool      bytebufferpool.Pool
	chunkSize int
}

// NewPool creates a Pool whose buffers are chunkSize bytes long.
func NewPool(chunkSize int) *Pool {
	return &Pool{chunkSize: chunkSize}
}

// Get returns a buffer whose B slice is exactly the pool's chunk size.
func (p *Pool) Get() *bytebufferpool.ByteBuffer {
	buf := p.pool.Get()
	if cap(buf.B) < p.chunkSize {
		buf.B = make([]byte, p.chunkSize)
	}
	buf.B = buf.B[:p.chunkSize]
	return buf
}

// Put returns a buffer to the pool.
func (p *Pool) Put(buf *bytebufferpool.ByteBuffer) {
	if buf != nil {
		p.pool.Put(buf)
	}
}
