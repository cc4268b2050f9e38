package camproto

import (
	"encoding/binary"
	"fmt"
)

// OptionsSize is the length of the capture option record sent once per connection.
const OptionsSize = 24

type CaptureOptions struct {
	Width      int32 `json:"width"`
	Height     int32 `json:"height"`
	TargetFPS  int32 `json:"fps"`
	Quality    int32 `json:"quality"` // 0-100
	OverlayFPS bool  `json:"overlay_fps"`
	Terminate  bool  `json:"terminate"`
}

func (o CaptureOptions) String() string {
	return fmt.Sprintf("%dx%d@%d, %d%% quality, overlay_fps=%v, terminate=%v",
		o.Width, o.Height, o.TargetFPS, o.Quality, o.OverlayFPS, o.Terminate)
}

// EncodeOptions packs the options as six big-endian int32:
// width, height, fps, quality, overlay_fps, terminate.
func EncodeOptions(o CaptureOptions) []byte {
	buf := make([]byte, OptionsSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(o.Width))
	binary.BigEndian.PutUint32(buf[4:8], uint32(o.Height))
	binary.BigEndian.PutUint32(buf[8:12], uint32(o.TargetFPS))
	binary.BigEndian.PutUint32(buf[12:16], uint32(o.Quality))
	binary.BigEndian.PutUint32(buf[16:20], uint32(boolToInt32(o.OverlayFPS)))
	binary.BigEndian.PutUint32(buf[20:24], uint32(boolToInt32(o.Terminate)))
	return buf
}

// DecodeOptions is the camera side of EncodeOptions. Any non-zero flag
// value is treated as set.
func DecodeOptions(buf []byte) (CaptureOptions, error) {
	if len(buf) != OptionsSize {
		return CaptureOptions{}, fmt.Errorf("camproto: option record is %d bytes, want %d", len(buf), OptionsSize)
	}
	return CaptureOptions{
		Width:      int32(binary.BigEndian.Uint32(buf[0:4])),
		Height:     int32(binary.BigEndian.Uint32(buf[4:8])),
		TargetFPS:  int32(binary.BigEndian.Uint32(buf[8:12])),
		Quality:    int32(binary.BigEndian.Uint32(buf[12:16])),
		OverlayFPS: binary.BigEndian.Uint32(buf[16:20]) != 0,
		Terminate:  binary.BigEndian.Uint32(buf[20:24]) != 0,
	}, nil
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
