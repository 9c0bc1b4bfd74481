package buffer

import (
	"runtime"

	"github.com/valyala/bytebufferpool"
)

// BufferPool is a thread-safe pool of byte slices used as copy chunks on the
// streaming path. Pooling keeps the per-request allocation cost flat no
// matter how many gigabytes flow through a stream.
type BufferPool struct {
	pool      *bytebufferpool.Pool
	chunkSize int
}

// NewBufferPool creates a BufferPool handing out buffers of chunkSize bytes.
func NewBufferPool(chunkSize int64) *BufferPool {
	return &BufferPool{
		chunkSize: int(chunkSize),
		pool:      &bytebufferpool.Pool{},
	}
}

// ChunkSize returns the configured chunk size in bytes.
func (bp *BufferPool) ChunkSize() int {
	return bp.chunkSize
}

// Get retrieves a buffer from the pool, grown to at least the configured
// chunk size. Slice it to [:ChunkSize()] for use as a read chunk.
func (bp *BufferPool) Get() *bytebufferpool.ByteBuffer {
	buf := bp.pool.Get()
	buf.Reset()
	if cap(buf.B) < bp.chunkSize {
		buf.B = make([]byte, 0, bp.chunkSize)
	}
	return buf
}

// Put returns a buffer to the pool.
func (bp *BufferPool) Put(buf *bytebufferpool.ByteBuffer) {
	if buf != nil {
		bp.pool.Put(buf)
	}
}

// Cleanup nudges the runtime to reclaim pooled memory. Called from the
// periodic maintenance loop, not the hot path.
func (bp *BufferPool) Cleanup() {
	runtime.GC()
}
