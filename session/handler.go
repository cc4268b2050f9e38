package session

import "image"

// Decoder turns a frame payload into a raster.
type Decoder interface {
	Decode(payload []byte) (image.Image, error)
}

// Handler is the rendering side of a session. OnFrame is called from a single
// goroutine, in receive order. OnFatal is called at most once, after the last
// OnFrame.
type Handler interface {
	OnFrame(ev FrameEvent)
	OnFatal(err error)
}

type FrameEvent struct {
	Raster  image.Image
	Payload []byte // encoded frame as received
	Metrics Metrics
}

type Metrics struct {
	FPS            float64 `json:"fps"`
	ThroughputMbit float64 `json:"throughput_mbit"`
	SourceID       string  `json:"source_id"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Frames         uint64  `json:"frames"`
	Skipped        uint64  `json:"skipped"`
	DecodeErrors   uint64  `json:"decode_errors"`
	DiscardedBytes uint64  `json:"discarded_bytes"`
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	Frame func(FrameEvent)
	Fatal func(error)
}

func (h HandlerFuncs) OnFrame(ev FrameEvent) {
	if h.Frame != nil {
		h.Frame(ev)
	}
}

func (h HandlerFuncs) OnFatal(err error) {
	if h.Fatal != nil {
		h.Fatal(err)
	}
}
