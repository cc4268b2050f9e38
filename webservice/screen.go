package webservice

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RogersSccot/STI-Vision/imgcodec"
	"github.com/RogersSccot/STI-Vision/overlay"
	"github.com/RogersSccot/STI-Vision/session"
)

// Frame is one rendered frame as served to browsers.
type Frame struct {
	Seq      uint64
	JPEG     []byte // overlaid, re-encoded
	Original []byte // payload as received from the camera
	Metrics  session.Metrics
	At       time.Time
}

// Screen is the rendering side of a camera session. It keeps the latest
// frame and fans frames out to browser subscribers.
type Screen struct {
	overlay bool
	quality int
	render  *overlay.Renderer // only touched from OnFrame

	seq     atomic.Uint64
	current atomic.Pointer[session.Session]

	mu      sync.RWMutex
	latest  *Frame
	lastErr error
	subs    map[chan *Frame]struct{}
	closed  bool
}

func NewScreen(withOverlay bool, quality int) *Screen {
	return &Screen{
		overlay: withOverlay,
		quality: quality,
		render:  overlay.New(),
		subs:    make(map[chan *Frame]struct{}),
	}
}

// Attach makes s the session reported by the web API.
func (sc *Screen) Attach(s *session.Session) {
	sc.current.Store(s)
	sc.mu.Lock()
	sc.lastErr = nil
	sc.mu.Unlock()
}

func (sc *Screen) Session() *session.Session {
	return sc.current.Load()
}

func (sc *Screen) OnFrame(ev session.FrameEvent) {
	img := ev.Raster
	var jpeg []byte
	if sc.overlay {
		out := sc.render.Render(img, ev.Metrics.Overlay()...)
		b, err := imgcodec.EncodeBytes(out, sc.quality)
		if err != nil {
			log.Printf("[web] encode frame: %v", err)
			return
		}
		jpeg = b
	} else {
		jpeg = ev.Payload
	}

	f := &Frame{
		Seq:      sc.seq.Add(1),
		JPEG:     jpeg,
		Original: ev.Payload,
		Metrics:  ev.Metrics,
		At:       time.Now(),
	}

	sc.mu.Lock()
	sc.latest = f
	for ch := range sc.subs {
		offer(ch, f)
	}
	sc.mu.Unlock()
}

func (sc *Screen) OnFatal(err error) {
	log.Printf("[web] session ended: %v", err)
	sc.mu.Lock()
	sc.lastErr = err
	sc.mu.Unlock()
}

// offer delivers f without blocking, dropping the oldest queued frame when a
// subscriber falls behind.
func offer(ch chan *Frame, f *Frame) {
	select {
	case ch <- f:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- f:
	default:
	}
}

func (sc *Screen) Latest() *Frame {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.latest
}

func (sc *Screen) LastError() error {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastErr
}

// Subscribe returns a channel receiving every new frame and a cancel func.
// The channel is closed by cancel or Close.
func (sc *Screen) Subscribe() (<-chan *Frame, func()) {
	ch := make(chan *Frame, 2)
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	sc.subs[ch] = struct{}{}
	sc.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sc.mu.Lock()
			if _, ok := sc.subs[ch]; ok {
				delete(sc.subs, ch)
				close(ch)
			}
			sc.mu.Unlock()
		})
	}
}

func (sc *Screen) Subscribers() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.subs)
}

// Close ends every subscription.
func (sc *Screen) Close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.closed = true
	for ch := range sc.subs {
		delete(sc.subs, ch)
		close(ch)
	}
}
