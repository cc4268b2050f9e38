package comm

const defaultLinearBufferSize = 8 * 1024 * 1024

// LinearBuffer hands out consecutive slices of a large chunk. When the chunk is
// used up a new one is allocated and the old one is left to the GC, so slices
// returned earlier are never overwritten.
type LinearBuffer struct {
	buf    []byte
	offset int
	size   int
}

func NewLinearBuffer(size int) *LinearBuffer {
	if size <= 0 {
		size = defaultLinearBufferSize // 默认 8MB
	}
	return &LinearBuffer{
		buf:  make([]byte, size),
		size: size,
	}
}

// Get 获取一段空闲内存用于写入
func (lb *LinearBuffer) Get(length int) []byte {
	if length > lb.size {
		return make([]byte, length)
	}
	if lb.offset+length > lb.size {
		lb.buf = make([]byte, lb.size)
		lb.offset = 0
	}
	start := lb.offset
	lb.offset += length
	return lb.buf[start:lb.offset:lb.offset]
}

// Remaining reports how many bytes are left in the current chunk.
func (lb *LinearBuffer) Remaining() int {
	return lb.size - lb.offset
}
