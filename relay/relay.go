// Package relay forwards raw bytes between a local serial port and a TCP peer
// in both directions.
package relay

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/RogersSccot/STI-Vision/metrics"
)

// Port is the serial side of a relay.
type Port io.ReadWriteCloser

const (
	DefaultBufferSize  = 1024
	DefaultDialTimeout = 5 * time.Second
)

var ErrSerialClosed = errors.New("relay: serial port closed")

type options struct {
	bufferSize  int
	dialTimeout time.Duration
	metrics     *metrics.Collector
	verbose     bool
}

type Option func(*options)

func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithVerbose logs every forwarded chunk.
func WithVerbose(v bool) Option {
	return func(o *options) {
		o.verbose = v
	}
}

func buildOptions(opts []Option) options {
	o := options{bufferSize: DefaultBufferSize, dialTimeout: DefaultDialTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Listen binds addr and relays one client at a time to port. The serial port
// stays open across clients. It returns nil when ctx is cancelled.
func Listen(ctx context.Context, addr string, port Port, opts ...Option) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("[relay] TCP server listening on %s", ln.Addr())
	return Serve(ctx, ln, port, opts...)
}

// Serve is Listen on an existing listener. ln is closed on return.
func Serve(ctx context.Context, ln net.Listener, port Port, opts ...Option) error {
	o := buildOptions(opts)
	stopLn := context.AfterFunc(ctx, func() { ln.Close() })
	defer stopLn()
	defer ln.Close()

	serial := newSerialReader(port, o.bufferSize)
	defer serial.stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		log.Printf("[relay] Connection from %s", conn.RemoteAddr())

		err = bridge(ctx, conn, port, serial, o)
		if errors.Is(err, ErrSerialClosed) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Println("[relay] Connection has been closed.")
	}
}

// Dial connects to addr and relays until the peer closes or ctx is
// cancelled.
func Dial(ctx context.Context, addr string, port Port, opts ...Option) error {
	o := buildOptions(opts)
	dialer := net.Dialer{Timeout: o.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("[relay] Connected to %s", addr)

	serial := newSerialReader(port, o.bufferSize)
	defer serial.stop()

	err = bridge(ctx, conn, port, serial, o)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		log.Println("[relay] Connection has been closed.")
	}
	return err
}

// bridge pumps conn->port on a goroutine and serial->conn on the caller's. A
// nil return means the TCP peer went away.
func bridge(ctx context.Context, conn net.Conn, port Port, serial *serialReader, o options) error {
	o.metrics.RelayClient(1)
	defer o.metrics.RelayClient(-1)

	stopConn := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopConn()
	defer conn.Close()

	peerDone := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		peerDone <- pump(port, conn, o, metrics.DirectionToSerial)
	}()

	var err error
loop:
	for {
		select {
		case err = <-peerDone:
			break loop
		case chunk, ok := <-serial.chunks:
			if !ok {
				err = ErrSerialClosed
				break loop
			}
			if _, werr := conn.Write(chunk); werr != nil {
				// the peer side reports the real cause
				conn.Close()
				err = <-peerDone
				break loop
			}
			o.metrics.RelayBytes(metrics.DirectionToTCP, len(chunk))
			if o.verbose {
				log.Printf("[relay] Serial -> TCP: %q", chunk)
			}
		}
	}
	conn.Close()
	wg.Wait()
	return err
}

// pump copies TCP data into the serial port until the connection ends. A
// clean close by the peer returns nil.
func pump(dst io.Writer, src net.Conn, o options, direction string) error {
	buf := make([]byte, o.bufferSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			o.metrics.RelayBytes(direction, n)
			if o.verbose {
				log.Printf("[relay] TCP -> Serial: %q", buf[:n])
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// serialReader owns the only goroutine reading the serial port, so a client
// that disconnects never leaves a reader behind that would steal bytes from
// the next one. Chunks wait in the channel while no client is attached.
type serialReader struct {
	chunks chan []byte
	done   chan struct{}
	once   sync.Once
}

func newSerialReader(port Port, size int) *serialReader {
	s := &serialReader{
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go s.loop(port, size)
	return s
}

func (s *serialReader) loop(port Port, size int) {
	defer close(s.chunks)
	buf := make([]byte, size)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[relay] serial read: %v", err)
			}
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *serialReader) stop() {
	s.once.Do(func() { close(s.done) })
}
