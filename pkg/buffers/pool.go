package buffers

import (
	"sync"
)

const (
	// DefaultIOSize is the default read and write window for streaming
	// transforms.
	DefaultIOSize = 8 * 1024 * 1024

	// DefaultSegmentSize is the default unit of work for parallel
	// transforms. It is a whole number of cipher words.
	DefaultSegmentSize = 4 * 1024 * 1024
)

// BufferPool maintains a pool of byte slices to reduce GC pressure
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a new buffer pool with the specified buffer size
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
		size: size,
	}
}

// Get retrieves a buffer from the pool
func (p *BufferPool) Get() []byte {
	buffer := *(p.pool.Get().(*[]byte))

	if cap(buffer) < p.size {
		buffer = make([]byte, p.size)
	} else {
		// Not zeroed: callers only read back what they filled.
		buffer = buffer[:p.size]
	}

	return buffer
}

// Put returns a buffer to the pool
func (p *BufferPool) Put(buffer []byte) {
	if buffer == nil || cap(buffer) < p.size {
		return // Don't keep undersized buffers
	}

	buffer = buffer[:p.size]
	p.pool.Put(&buffer)
}

var (
	poolsMu sync.Mutex
	pools   = map[int]*BufferPool{}
)

// ForSize returns the shared pool for buffers of the given size, creating
// it on first use.
func ForSize(size int) *BufferPool {
	poolsMu.Lock()
	defer poolsMu.Unlock()
	p, ok := pools[size]
	if !ok {
		p = NewBufferPool(size)
		pools[size] = p
	}
	return p
}
