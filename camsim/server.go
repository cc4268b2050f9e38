// Package camsim is a stand-in camera server. It speaks the producer side of
// the link: read the capture options, then stream JPEG frames until the
// viewer goes away.
package camsim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/RogersSccot/STI-Vision/camproto"
	"github.com/RogersSccot/STI-Vision/imgcodec"
	"github.com/RogersSccot/STI-Vision/meter"
)

const (
	DefaultAddr       = "0.0.0.0:6756"
	MaxDimension      = 4096
	handshakeDeadline = 10 * time.Second
)

type Server struct {
	Source Source

	mu       sync.Mutex
	clients  map[net.Conn]struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(src Source) *Server {
	if src == nil {
		src = PatternSource{Label: "STI-Vision camsim"}
	}
	return &Server{
		Source:  src,
		clients: make(map[net.Conn]struct{}),
		stopCh:  make(chan struct{}),
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("[camsim] listening on %s", ln.Addr())
	return s.Serve(ctx, ln)
}

// Serve accepts viewers until ctx is cancelled or a viewer sends the
// terminate flag. Both end with a nil error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()
	go func() {
		<-s.stopCh
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
			}
			s.Stop()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(conn)
		}()
	}
}

// Stop closes the listener and every streaming connection.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		for c := range s.clients {
			c.Close()
		}
		s.mu.Unlock()
	})
}

func (s *Server) track(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.clients, conn)
		return true
	}
	select {
	case <-s.stopCh:
		return false
	default:
	}
	s.clients[conn] = struct{}{}
	return true
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	if !s.track(conn, true) {
		return
	}
	defer s.track(conn, false)

	remote := conn.RemoteAddr().String()
	conn.SetReadDeadline(time.Now().Add(handshakeDeadline))
	buf := make([]byte, camproto.OptionsSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		log.Printf("[camsim] %s: read options: %v", remote, err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	opts, err := camproto.DecodeOptions(buf)
	if err != nil {
		log.Printf("[camsim] %s: %v", remote, err)
		return
	}
	log.Printf("[camsim] %s: options %s", remote, opts)

	if opts.Terminate {
		log.Printf("[camsim] terminate requested by %s", remote)
		s.Stop()
		return
	}

	if err := s.stream(conn, opts); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("[camsim] %s: stream ended: %v", remote, err)
	}
}

func (s *Server) stream(conn net.Conn, opts camproto.CaptureOptions) error {
	width := clamp(int(opts.Width), 1, MaxDimension)
	height := clamp(int(opts.Height), 1, MaxDimension)
	fps := opts.TargetFPS
	if fps <= 0 {
		fps = 30
	}
	rate := meter.NewFPSCounter(meter.DefaultMaxSamples)

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for n := 0; ; n++ {
		img := s.Source.Frame(n, width, height)
		if opts.OverlayFPS {
			img = withText(img, fmt.Sprintf("FPS: %.1f", rate.FPS()))
		}
		payload, err := imgcodec.EncodeBytes(img, int(opts.Quality))
		if err != nil {
			return err
		}
		frame, err := camproto.EncodeFrame(payload)
		if err != nil {
			return err
		}
		if _, err := conn.Write(frame); err != nil {
			return err
		}
		rate.Update()

		select {
		case <-ticker.C:
		case <-s.stopCh:
			return nil
		}
	}
}

func withText(src image.Image, text string) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	drawText(dst, 8, dst.Bounds().Dy()-8, text)
	return dst
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
