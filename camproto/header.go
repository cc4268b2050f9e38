package camproto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	MagicSize     = 6
	LengthSize    = 4
	HeaderSize    = MagicSize + LengthSize
	MaxFrameBytes = 1_000_000
)

// Magic precedes every frame on the camera stream.
var Magic = [MagicSize]byte{0x12, 0x23, 0x34, 0x45, 0x00, 0xFF}

var (
	ErrLengthOutOfRange = errors.New("camproto: payload length out of range")
	ErrHeaderTimeout    = errors.New("camproto: waiting for header timeout")
	ErrPayloadTimeout   = errors.New("camproto: waiting for payload timeout")
	ErrClosedByPeer     = errors.New("camproto: connection closed by peer")
)

type FrameHeader struct {
	PayloadLength uint32
}

// EncodeFrameHeader returns magic followed by n as a big-endian uint32.
func EncodeFrameHeader(n uint32) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic[:])
	binary.BigEndian.PutUint32(buf[MagicSize:], n)
	return buf
}

// ValidatePayloadLength accepts 0 < n <= MaxFrameBytes.
func ValidatePayloadLength(n int64) error {
	if n <= 0 || n > MaxFrameBytes {
		return fmt.Errorf("%w: %d", ErrLengthOutOfRange, n)
	}
	return nil
}

// EncodeFrame builds a complete wire frame for payload.
func EncodeFrame(payload []byte) ([]byte, error) {
	if err := ValidatePayloadLength(int64(len(payload))); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = append(buf, EncodeFrameHeader(uint32(len(payload)))...)
	return append(buf, payload...), nil
}

// IsRecoverable reports whether err only cost the current frame.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrLengthOutOfRange)
}
