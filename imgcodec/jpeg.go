package imgcodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
)

var ErrDecode = errors.New("imgcodec: decode failed")

const DefaultQuality = 90

// JPEG decodes frame payloads produced by the camera server.
type JPEG struct{}

func (JPEG) Decode(payload []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Encode writes img as JPEG. quality outside 1..100 falls back to DefaultQuality.
func Encode(w io.Writer, img image.Image, quality int) error {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// EncodeBytes is Encode into a fresh buffer.
func EncodeBytes(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
