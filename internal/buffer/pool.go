package buffer

import "sync"

// Size is the receive buffer size. A request longer than this is truncated.
const Size = 8192

// Pool provides a pool of receive buffers for reuse
var Pool = sync.Pool{
	New: func() interface{} {
		return make([]byte, Size)
	},
}

// Get retrieves a Size-byte buffer from the pool
func Get() []byte {
	return Pool.Get().([]byte)
}

// Put returns a buffer to the pool. Buffers smaller than Size are dropped.
func Put(buf []byte) {
	if cap(buf) >= Size {
		Pool.Put(buf[:Size])
	}
}
