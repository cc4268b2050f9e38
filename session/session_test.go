package session

import (
	"context"
	"errors"
	"image"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/RogersSccot/STI-Vision/camproto"
)

// serveCamera accepts a single client, reads its options and hands the
// connection to handle. The connection is closed when handle returns.
func serveCamera(t *testing.T, handle func(conn net.Conn, opts camproto.CaptureOptions)) Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, camproto.OptionsSize)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		opts, err := camproto.DecodeOptions(buf)
		if err != nil {
			return
		}
		handle(conn, opts)
	}()

	return Endpoint{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}
}

func frameBytes(t *testing.T, payload string) []byte {
	t.Helper()
	b, err := camproto.EncodeFrame([]byte(payload))
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return b
}

// textDecoder accepts any payload except "bad" and returns a 4x2 raster.
type textDecoder struct {
	mu   sync.Mutex
	seen []string
}

func (d *textDecoder) Decode(payload []byte) (image.Image, error) {
	d.mu.Lock()
	d.seen = append(d.seen, string(payload))
	d.mu.Unlock()
	if string(payload) == "bad" {
		return nil, errors.New("not an image")
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 2)), nil
}

type recorder struct {
	mu     sync.Mutex
	frames []FrameEvent
	fatals []error
	order  []string
}

func (r *recorder) OnFrame(ev FrameEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, ev)
	r.order = append(r.order, "frame")
}

func (r *recorder) OnFatal(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatals = append(r.fatals, err)
	r.order = append(r.order, "fatal")
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReadTimeout = 2 * time.Second
	cfg.DialTimeout = time.Second
	return cfg
}

func TestSessionDeliversFrameThenFatal(t *testing.T) {
	gotOpts := make(chan camproto.CaptureOptions, 1)
	ep := serveCamera(t, func(conn net.Conn, opts camproto.CaptureOptions) {
		gotOpts <- opts
		conn.Write(append(camproto.EncodeFrameHeader(5), "hello"...))
	})

	want := camproto.CaptureOptions{Width: 1920, Height: 1080, TargetFPS: 60, Quality: 80}
	s, err := Dial(context.Background(), ep, want, testConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if s.State() != Streaming {
		t.Fatalf("state = %v, want streaming", s.State())
	}
	if opts := <-gotOpts; opts != want {
		t.Errorf("server got %+v, want %+v", opts, want)
	}

	dec := &textDecoder{}
	rec := &recorder{}
	err = s.Run(context.Background(), dec, rec)
	if !errors.Is(err, camproto.ErrClosedByPeer) {
		t.Fatalf("Run error = %v, want ErrClosedByPeer", err)
	}

	if len(dec.seen) != 1 || dec.seen[0] != "hello" {
		t.Errorf("decoder saw %q, want [hello]", dec.seen)
	}
	if len(rec.frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(rec.frames))
	}
	if len(rec.fatals) != 1 || !errors.Is(rec.fatals[0], camproto.ErrClosedByPeer) {
		t.Errorf("fatals = %v", rec.fatals)
	}
	if got := rec.order; len(got) != 2 || got[0] != "frame" || got[1] != "fatal" {
		t.Errorf("callback order = %v", got)
	}

	m := rec.frames[0].Metrics
	if m.SourceID != "127.0.0.1" || m.Width != 4 || m.Height != 2 {
		t.Errorf("metrics = %+v", m)
	}
	if string(rec.frames[0].Payload) != "hello" {
		t.Errorf("payload = %q", rec.frames[0].Payload)
	}
	if s.State() != Closed {
		t.Errorf("state after Run = %v, want closed", s.State())
	}
}

func TestSessionTerminate(t *testing.T) {
	gotOpts := make(chan camproto.CaptureOptions, 1)
	ep := serveCamera(t, func(conn net.Conn, opts camproto.CaptureOptions) {
		gotOpts <- opts
	})

	s, err := Dial(context.Background(), ep, camproto.CaptureOptions{Terminate: true}, testConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if opts := <-gotOpts; !opts.Terminate {
		t.Errorf("server did not see the terminate flag: %+v", opts)
	}
	if s.State() != Closed {
		t.Errorf("state = %v, want closed", s.State())
	}
	if err := s.Run(context.Background(), &textDecoder{}, &recorder{}); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("Run on terminated session = %v, want ErrNotStreaming", err)
	}
}

func TestSessionSkipsBadFrames(t *testing.T) {
	ep := serveCamera(t, func(conn net.Conn, _ camproto.CaptureOptions) {
		var stream []byte
		stream = append(stream, "noise"...)
		stream = append(stream, camproto.EncodeFrameHeader(0)...)
		stream = append(stream, frameBytes(t, "bad")...)
		stream = append(stream, frameBytes(t, "good")...)
		conn.Write(stream)
	})

	s, err := Dial(context.Background(), ep, camproto.CaptureOptions{Width: 64, Height: 48}, testConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	dec := &textDecoder{}
	rec := &recorder{}
	if err := s.Run(context.Background(), dec, rec); !errors.Is(err, camproto.ErrClosedByPeer) {
		t.Fatalf("Run error = %v", err)
	}

	if len(rec.frames) != 1 || string(rec.frames[0].Payload) != "good" {
		t.Fatalf("frames = %d, want only the good one", len(rec.frames))
	}
	m := s.Metrics()
	if m.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", m.Skipped)
	}
	if m.DecodeErrors != 1 {
		t.Errorf("decode errors = %d, want 1", m.DecodeErrors)
	}
	if m.Frames != 2 {
		t.Errorf("frames = %d, want 2", m.Frames)
	}
	if m.DiscardedBytes != uint64(len("noise")) {
		t.Errorf("discarded = %d, want %d", m.DiscardedBytes, len("noise"))
	}
}

func TestSessionStopIsNotFatal(t *testing.T) {
	ep := serveCamera(t, func(conn net.Conn, _ camproto.CaptureOptions) {
		conn.Write(frameBytes(t, "one"))
		io.Copy(io.Discard, conn)
	})

	s, err := Dial(context.Background(), ep, camproto.CaptureOptions{}, testConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	h := HandlerFuncs{
		Frame: func(ev FrameEvent) {
			rec.OnFrame(ev)
			cancel()
		},
		Fatal: rec.OnFatal,
	}

	if err := s.Run(ctx, &textDecoder{}, h); err != nil {
		t.Fatalf("Run after cancel = %v, want nil", err)
	}
	if len(rec.fatals) != 0 {
		t.Errorf("OnFatal called on stop: %v", rec.fatals)
	}
	if s.State() != Closed {
		t.Errorf("state = %v, want closed", s.State())
	}
}

func TestSessionExplicitStop(t *testing.T) {
	ep := serveCamera(t, func(conn net.Conn, _ camproto.CaptureOptions) {
		io.Copy(io.Discard, conn)
	})
	s, err := Dial(context.Background(), ep, camproto.CaptureOptions{}, testConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	errc := make(chan error, 1)
	rec := &recorder{}
	go func() { errc <- s.Run(context.Background(), &textDecoder{}, rec) }()

	time.Sleep(50 * time.Millisecond)
	s.Stop()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if len(rec.fatals) != 0 {
		t.Errorf("OnFatal called on stop: %v", rec.fatals)
	}
}

func TestSessionReadTimeout(t *testing.T) {
	ep := serveCamera(t, func(conn net.Conn, _ camproto.CaptureOptions) {
		io.Copy(io.Discard, conn)
	})
	cfg := testConfig()
	cfg.ReadTimeout = 100 * time.Millisecond

	s, err := Dial(context.Background(), ep, camproto.CaptureOptions{}, cfg)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	rec := &recorder{}
	err = s.Run(context.Background(), &textDecoder{}, rec)

	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("Run error = %v, want a timeout", err)
	}
	if len(rec.fatals) != 1 {
		t.Errorf("OnFatal called %d times, want 1", len(rec.fatals))
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Dial(context.Background(), Endpoint{Host: "127.0.0.1", Port: port}, camproto.CaptureOptions{}, testConfig())
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Dial error = %v, want *ConnectError", err)
	}
	if ce.Op != "dial" {
		t.Errorf("op = %q, want dial", ce.Op)
	}
}

func TestMetricsOverlay(t *testing.T) {
	m := Metrics{SourceID: "nanopiduo2", Width: 1920, Height: 1080, FPS: 59.5, ThroughputMbit: 12.3456}
	lines := m.Overlay()
	if lines[0] != "nanopiduo2 1920x1080" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[1] != "Fps:59.50 Net:12.346Mbit" {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{OptionsNegotiated, "options_negotiated"},
		{Streaming, "streaming"},
		{Terminating, "terminating"},
		{Closed, "closed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
