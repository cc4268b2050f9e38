// Package webservice is the browser viewer: it renders session frames and
// serves them over HTTP as a still image, MJPEG, websocket and WebRTC data
// channel.
package webservice

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RogersSccot/STI-Vision/discovery"
	"github.com/RogersSccot/STI-Vision/snapshot"
)

//go:embed static
var staticFS embed.FS

type WebMasterConfig struct {
	Addr       string
	ICEServers []string
	// OnStop runs when the browser asks to stop the session.
	OnStop func()
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

type WebMaster struct {
	config WebMasterConfig
	router *gin.Engine
	server *http.Server
	screen *Screen
	store  snapshot.Store

	cameras   map[string]discovery.Service
	camerasMu sync.RWMutex
}

func New(config WebMasterConfig, screen *Screen, store snapshot.Store) *WebMaster {
	if config.Addr == "" {
		config.Addr = ":8079"
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if store == nil {
		store = snapshot.NewDirStore(snapshot.DefaultDir)
	}
	wm := &WebMaster{
		config:  config,
		screen:  screen,
		store:   store,
		cameras: make(map[string]discovery.Service),
	}
	wm.setRouter()
	return wm
}

func (wm *WebMaster) setRouter() {
	r := gin.New()
	r.Use(gin.Recovery())
	subFS, _ := fs.Sub(staticFS, "static")
	r.GET("/", func(c *gin.Context) {
		c.FileFromFS("/", http.FS(subFS))
	})
	r.GET("/stream.mjpeg", wm.handleMJPEG)
	r.GET("/ws", wm.handleScreenWS)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(wm.config.Gatherer, promhttp.HandlerOpts{})))
	api := r.Group("/api")
	{
		api.GET("/session", wm.handleSessionInfo)
		api.GET("/frame.jpg", wm.handleFrame)
		api.GET("/cameras", wm.handleListCameras)
		api.POST("/snapshot", wm.handleSnapshot)
		api.POST("/session/stop", wm.handleStop)
		api.POST("/webrtc/offer", wm.handleWebRTCOffer)
	}

	wm.router = r
}

func (wm *WebMaster) Handler() http.Handler {
	return wm.router
}

// Serve blocks until ctx is cancelled or the listener fails.
func (wm *WebMaster) Serve(ctx context.Context) error {
	wm.server = &http.Server{Addr: wm.config.Addr, Handler: wm.router}
	errc := make(chan error, 1)
	go func() {
		log.Printf("[web] viewer on http://%s", wm.config.Addr)
		errc <- wm.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		wm.Close()
		return nil
	}
}

func (wm *WebMaster) Close() {
	wm.screen.Close()
	if wm.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := wm.server.Shutdown(ctx); err != nil {
		log.Printf("[web] shutdown: %v", err)
	}
}
