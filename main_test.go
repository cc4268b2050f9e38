package main

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/RogersSccot/STI-Vision/camproto"
	"github.com/RogersSccot/STI-Vision/camsim"
	"github.com/RogersSccot/STI-Vision/config"
	"github.com/RogersSccot/STI-Vision/session"
	"github.com/RogersSccot/STI-Vision/webservice"
)

func TestCameraFlagsApply(t *testing.T) {
	cfg := config.DefaultConfig()
	f := cameraFlags{host: "10.0.0.9", width: 640, timeout: 3 * time.Second}
	f.apply(&cfg.Camera)

	if cfg.Camera.Host != "10.0.0.9" || cfg.Camera.Width != 640 || cfg.Camera.Timeout != 3*time.Second {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	if cfg.Camera.Port != 6756 || cfg.Camera.Height != 1080 {
		t.Errorf("unset flags changed defaults: %+v", cfg.Camera)
	}
}

func TestStreamLoopDialFailure(t *testing.T) {
	refused := errors.New("refused")
	cam := config.DefaultConfig().Camera
	err := streamLoop(context.Background(), cam, func(context.Context) (*session.Session, error) {
		return nil, refused
	}, webservice.NewScreen(false, 80), nil)
	if !errors.Is(err, refused) {
		t.Errorf("streamLoop = %v, want refused", err)
	}
}

func TestStreamLoopAgainstSimulator(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := camsim.New(nil)
	go srv.Serve(context.Background(), ln)
	defer srv.Stop()

	cam := config.DefaultConfig().Camera
	cam.Host = "127.0.0.1"
	cam.Port = ln.Addr().(*net.TCPAddr).Port
	cam.Width, cam.Height, cam.FPS = 32, 24, 50

	screen := webservice.NewScreen(true, 80)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- streamLoop(ctx, cam, func(ctx context.Context) (*session.Session, error) {
			return session.Dial(ctx, cam.Endpoint(), cam.CaptureOptions(), cam.SessionConfig())
		}, screen, nil)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for screen.Latest() == nil && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if screen.Latest() == nil {
		t.Fatal("no frame rendered")
	}
	if s := screen.Session(); s == nil || s.State() != session.Streaming {
		t.Errorf("attached session not streaming")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("streamLoop after cancel = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("streamLoop did not stop")
	}
}

func TestTerminateOptions(t *testing.T) {
	opts := config.DefaultConfig().Camera.CaptureOptions()
	opts.Terminate = true
	buf := camproto.EncodeOptions(opts)
	got, err := camproto.DecodeOptions(buf)
	if err != nil || !got.Terminate {
		t.Errorf("terminate flag lost: %+v %v", got, err)
	}
}
