// Package session drives one connection to a camera server: it sends the
// capture options, pulls frames off the socket, decodes them and hands the
// result to a rendering Handler through a bounded queue.
package session

import (
	"context"
	"fmt"
	"image"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RogersSccot/STI-Vision/camproto"
	"github.com/RogersSccot/STI-Vision/comm"
	"github.com/RogersSccot/STI-Vision/meter"
	"github.com/RogersSccot/STI-Vision/metrics"
)

var tracer = otel.Tracer("github.com/RogersSccot/STI-Vision/session")

type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

type Config struct {
	ReadTimeout    time.Duration // per blocking read, default 20s
	DialTimeout    time.Duration // default 5s
	ReadBufferSize int           // socket read buffer, default 64KB
	QueueSize      int           // frames waiting for the handler, default 3
	FPSSamples     int           // default 60
	NetRefresh     time.Duration // throughput refresh, default 0.4s
	Verbose        bool
	Metrics        *metrics.Collector
}

func DefaultConfig() Config {
	return Config{
		ReadTimeout:    20 * time.Second,
		DialTimeout:    5 * time.Second,
		ReadBufferSize: 64 * 1024,
		QueueSize:      3,
		FPSSamples:     meter.DefaultMaxSamples,
		NetRefresh:     400 * time.Millisecond,
	}
}

func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.FPSSamples <= 0 {
		c.FPSSamples = d.FPSSamples
	}
	if c.NetRefresh <= 0 {
		c.NetRefresh = d.NetRefresh
	}
}

// Session owns the socket, the frame reader and the instruments of a single
// camera connection.
type Session struct {
	ID       string
	endpoint Endpoint
	options  camproto.CaptureOptions
	cfg      Config

	mu       sync.RWMutex
	state    State
	sourceID string
	width    int
	height   int

	conn   *comm.BufferedReadWriteCloser
	reader *camproto.FrameReader
	fps    *meter.FPSCounter
	speed  *meter.NetSpeedCounter

	decodeErrors atomic.Uint64
	running      atomic.Bool
	stopped      atomic.Bool
	stopOnce     sync.Once
	done         chan struct{}
}

// Dial connects to the camera server and sends the capture options. When
// opts.Terminate is set the server is told to stop and the returned session is
// already Closed.
func Dial(ctx context.Context, ep Endpoint, opts camproto.CaptureOptions, cfg Config) (*Session, error) {
	cfg.fillDefaults()
	s := &Session{
		ID:       uuid.NewString(),
		endpoint: ep,
		options:  opts,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
	s.setState(Connecting)

	ctx, span := tracer.Start(ctx, "session.Dial",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("camera.endpoint", ep.String()),
			attribute.String("camera.options", opts.String()),
			attribute.String("session.id", s.ID),
		),
	)
	defer span.End()

	if err := s.connect(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.setState(Closed)
		return nil, err
	}

	if opts.Terminate {
		s.setState(Terminating)
		log.Println("[session] Terminate server")
		s.Stop()
		return s, nil
	}

	s.startStreaming()
	return s, nil
}

func (s *Session) connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.endpoint.String())
	if err != nil {
		return &ConnectError{Endpoint: s.endpoint.String(), Op: "dial", Err: err}
	}
	log.Printf("[session] IP is %s", s.endpoint)
	s.conn = comm.NewBufferedReadWriteCloser(conn, s.cfg.ReadBufferSize, s.cfg.ReadTimeout)

	_, span := tracer.Start(ctx, "session.SendOptions")
	defer span.End()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout))
	if _, err := s.conn.Write(camproto.EncodeOptions(s.options)); err != nil {
		s.conn.Close()
		span.RecordError(err)
		return &ConnectError{Endpoint: s.endpoint.String(), Op: "handshake", Err: err}
	}
	conn.SetWriteDeadline(time.Time{})
	log.Printf("[session] Send option: %s", s.options)
	s.setState(OptionsNegotiated)
	return nil
}

func (s *Session) startStreaming() {
	s.fps = meter.NewFPSCounter(s.cfg.FPSSamples)
	s.speed = meter.NewNetSpeedCounter(s.cfg.NetRefresh)
	s.reader = camproto.NewFrameReader(s.conn)

	source := s.endpoint.Host
	if source == "" {
		if addr, ok := s.conn.RemoteAddr().(*net.TCPAddr); ok {
			source = addr.IP.String()
		}
	}
	s.mu.Lock()
	s.sourceID = source
	s.mu.Unlock()

	s.setState(Streaming)
	log.Printf("[session] %s is ready", source)
}

// Run receives frames until the connection fails or the session is stopped.
// A stop (Stop or ctx cancellation) returns nil without calling OnFatal; any
// other end of the stream is reported once through OnFatal and returned.
func (s *Session) Run(ctx context.Context, dec Decoder, h Handler) error {
	if s.State() != Streaming || !s.running.CompareAndSwap(false, true) {
		return ErrNotStreaming
	}

	events := make(chan FrameEvent, s.cfg.QueueSize)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for ev := range events {
			h.OnFrame(ev)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()

	err := s.receive(dec, events)
	close(events)
	<-rendered

	stopped := s.stopped.Load()
	s.Stop()
	if err != nil && !stopped {
		log.Printf("[session] %s closed: %v", s.endpoint, err)
		h.OnFatal(err)
		return err
	}
	return nil
}

func (s *Session) receive(dec Decoder, events chan<- FrameEvent) error {
	m := s.cfg.Metrics
	for {
		payload, err := s.reader.Next()
		if err != nil {
			if s.stopped.Load() {
				return nil
			}
			if camproto.IsRecoverable(err) {
				m.FrameSkipped(metrics.SkipLength)
				continue
			}
			return err
		}
		s.speed.Update(float64(len(payload) * 8))
		m.FrameReceived(len(payload))

		img, err := dec.Decode(payload)
		if err != nil {
			s.decodeErrors.Add(1)
			m.FrameSkipped(metrics.SkipDecode)
			log.Printf("[session] Error: %v", err)
			continue
		}
		s.fps.Update()
		s.setFrameSize(img.Bounds())

		metricsNow := s.Metrics()
		m.SetRates(metricsNow.FPS, metricsNow.ThroughputMbit)
		ev := FrameEvent{Raster: img, Payload: payload, Metrics: metricsNow}

		select {
		case events <- ev:
		default:
			if s.cfg.Verbose {
				log.Println("[session] frame channel full, waiting to send frame...")
			}
			select {
			case events <- ev:
			case <-s.done:
				return nil
			}
		}
	}
}

// Stop closes the socket. A blocked Run returns nil shortly after.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
		s.setState(Closed)
	})
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

func (s *Session) Options() camproto.CaptureOptions {
	return s.options
}

// Metrics is safe to call from any goroutine.
func (s *Session) Metrics() Metrics {
	s.mu.RLock()
	m := Metrics{
		SourceID: s.sourceID,
		Width:    s.width,
		Height:   s.height,
	}
	s.mu.RUnlock()

	if s.fps != nil {
		m.FPS = s.fps.FPS()
	}
	if s.speed != nil {
		m.ThroughputMbit = s.speed.Mbit()
	}
	if s.reader != nil {
		st := s.reader.Stats()
		m.Frames = st.Frames
		m.Skipped = st.Skipped
		m.DiscardedBytes = st.DiscardedBytes
	}
	m.DecodeErrors = s.decodeErrors.Load()
	return m
}

// Overlay returns the two status lines drawn on rendered frames.
func (m Metrics) Overlay() []string {
	return []string{
		fmt.Sprintf("%s %dx%d", m.SourceID, m.Width, m.Height),
		fmt.Sprintf("Fps:%05.2f Net:%.3fMbit", m.FPS, m.ThroughputMbit),
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.cfg.Metrics.SetState(int(state))
}

func (s *Session) setFrameSize(b image.Rectangle) {
	s.mu.Lock()
	s.width, s.height = b.Dx(), b.Dy()
	s.mu.Unlock()
}
