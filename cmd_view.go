package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/RogersSccot/STI-Vision/config"
	"github.com/RogersSccot/STI-Vision/discovery"
	"github.com/RogersSccot/STI-Vision/imgcodec"
	"github.com/RogersSccot/STI-Vision/metrics"
	"github.com/RogersSccot/STI-Vision/session"
	"github.com/RogersSccot/STI-Vision/webservice"
)

type cameraFlags struct {
	host       string
	port       int
	width      int32
	height     int32
	fps        int32
	quality    int32
	overlayFPS bool
	timeout    time.Duration
}

func (f *cameraFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.host, "host", "H", "", "Camera server host (default from config)")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "Camera server port (default from config)")
	cmd.Flags().Int32Var(&f.width, "width", 0, "Capture width")
	cmd.Flags().Int32Var(&f.height, "height", 0, "Capture height")
	cmd.Flags().Int32Var(&f.fps, "fps", 0, "Target frame rate")
	cmd.Flags().Int32Var(&f.quality, "quality", 0, "JPEG quality requested from the camera")
	cmd.Flags().BoolVar(&f.overlayFPS, "overlay-fps", false, "Ask the camera to draw its own frame rate")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-read socket timeout")
}

func (f *cameraFlags) apply(c *config.CameraConfig) {
	if f.host != "" {
		c.Host = f.host
	}
	if f.port > 0 {
		c.Port = f.port
	}
	if f.width > 0 {
		c.Width = f.width
	}
	if f.height > 0 {
		c.Height = f.height
	}
	if f.fps > 0 {
		c.FPS = f.fps
	}
	if f.quality > 0 {
		c.Quality = f.quality
	}
	if f.overlayFPS {
		c.OverlayFPS = true
	}
	if f.timeout > 0 {
		c.Timeout = f.timeout
	}
}

func viewCmd() *cobra.Command {
	var (
		cam       cameraFlags
		webAddr   string
		noOverlay bool
		reconnect bool
		snapDir   string
	)

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Stream a camera into the browser viewer",
		Long: `Connect to a camera server, send the capture options and show
the stream at http://<web address>/ with the status overlay.

Examples:
  stivision view
  stivision view --host 192.168.1.20 --width 1280 --height 720 --fps 30
  stivision view --reconnect --web :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cam.apply(&cfg.Camera)
			if webAddr != "" {
				cfg.Web.Addr = webAddr
			}
			if noOverlay {
				cfg.Web.Overlay = false
			}
			if reconnect {
				cfg.Camera.Reconnect = true
			}
			if snapDir != "" {
				cfg.Snapshot.Backend = config.BackendDir
				cfg.Snapshot.Dir = snapDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runView(cmd.Context(), cfg)
		},
	}

	cam.register(cmd)
	cmd.Flags().StringVar(&webAddr, "web", "", "Viewer listen address (default from config)")
	cmd.Flags().BoolVar(&noOverlay, "no-overlay", false, "Serve frames without the status overlay")
	cmd.Flags().BoolVar(&reconnect, "reconnect", false, "Dial again with backoff when the stream dies")
	cmd.Flags().StringVar(&snapDir, "snapshot-dir", "", "Save snapshots into this directory")

	return cmd
}

func runView(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(metrics.WithRegistry(reg))

	screen := webservice.NewScreen(cfg.Web.Overlay, cfg.Web.Quality)
	wm := webservice.New(webservice.WebMasterConfig{
		Addr:     cfg.Web.Addr,
		OnStop:   cancel,
		Gatherer: reg,
	}, screen, cfg.Snapshot.Store())

	webErr := make(chan error, 1)
	go func() {
		err := wm.Serve(ctx)
		if err != nil {
			log.Printf("[web] %v", err)
			cancel()
		}
		webErr <- err
	}()
	go wm.CamerasDiscovery(ctx, func(ctx context.Context) ([]discovery.Service, error) {
		return discovery.Browse(ctx, discovery.ServiceCamera, discovery.DefaultBrowseTimeout)
	}, 30*time.Second)

	scfg := cfg.Camera.SessionConfig()
	scfg.Metrics = m
	scfg.Verbose = debug
	dial := func(ctx context.Context) (*session.Session, error) {
		return session.Dial(ctx, cfg.Camera.Endpoint(), cfg.Camera.CaptureOptions(), scfg)
	}

	err := streamLoop(ctx, cfg.Camera, dial, screen, m)
	cancel()
	if werr := <-webErr; werr != nil && err == nil {
		err = werr
	}
	return err
}

// streamLoop runs sessions until the user stops, or the stream dies and
// reconnecting is off or gives up.
func streamLoop(ctx context.Context, cam config.CameraConfig, dial session.DialFunc, screen *webservice.Screen, m *metrics.Collector) error {
	for {
		var (
			s   *session.Session
			err error
		)
		if cam.Reconnect {
			s, err = session.Reconnect(ctx, dial, cam.ReconnectConfig(), m)
		} else {
			s, err = dial(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		screen.Attach(s)
		err = s.Run(ctx, imgcodec.JPEG{}, screen)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if !cam.Reconnect {
			return err
		}
		log.Printf("[session] stream lost, reconnecting: %v", err)
	}
}

func terminateCmd() *cobra.Command {
	var cam cameraFlags

	cmd := &cobra.Command{
		Use:   "terminate",
		Short: "Tell the camera server to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cam.apply(&cfg.Camera)

			opts := cfg.Camera.CaptureOptions()
			opts.Terminate = true
			s, err := session.Dial(cmd.Context(), cfg.Camera.Endpoint(), opts, cfg.Camera.SessionConfig())
			if err != nil {
				return err
			}
			fmt.Printf("terminate sent to %s (state %s)\n", s.Endpoint(), s.State())
			return nil
		},
	}

	cam.register(cmd)
	return cmd
}

