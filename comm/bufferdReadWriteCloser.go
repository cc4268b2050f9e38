package comm

import (
	"bufio"
	"net"
	"time"
)

// BufferedReadWriteCloser buffers reads from a net.Conn and arms a fresh read
// deadline each time the buffer has to be refilled from the socket, so every
// blocking read is bounded by readTimeout.
type BufferedReadWriteCloser struct {
	net.Conn               // 底层连接
	br          *bufio.Reader
	readTimeout time.Duration
}

// NewBufferedReadWriteCloser 创建一个带缓冲的ReadWriteCloser. readTimeout <= 0 disables the deadline.
func NewBufferedReadWriteCloser(conn net.Conn, size int, readTimeout time.Duration) *BufferedReadWriteCloser {
	return &BufferedReadWriteCloser{
		Conn:        conn,
		br:          bufio.NewReaderSize(conn, size),
		readTimeout: readTimeout,
	}
}

// Read 实现了io.Reader接口，使用缓冲读
func (b *BufferedReadWriteCloser) Read(p []byte) (n int, err error) {
	if b.readTimeout > 0 && b.br.Buffered() == 0 {
		if err := b.Conn.SetReadDeadline(time.Now().Add(b.readTimeout)); err != nil {
			return 0, err
		}
	}
	return b.br.Read(p)
}

// Buffered returns the number of bytes already pulled off the socket.
func (b *BufferedReadWriteCloser) Buffered() int {
	return b.br.Buffered()
}

// Write writes straight to the connection; writes are never buffered.
func (b *BufferedReadWriteCloser) Write(p []byte) (n int, err error) {
	return b.Conn.Write(p)
}

func (b *BufferedReadWriteCloser) Close() error {
	return b.Conn.Close()
}
