package camproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"github.com/RogersSccot/STI-Vision/comm"
)

const (
	DefaultMaxHeaderReads  = 1_000_000
	DefaultMaxPayloadReads = 1_000_000
)

type ReaderStats struct {
	Frames         uint64 `json:"frames"`
	Skipped        uint64 `json:"skipped"`
	DiscardedBytes uint64 `json:"discarded_bytes"`
}

// FrameReader pulls magic-delimited frames off a byte stream. It is not safe
// for concurrent use; only Stats may be called from other goroutines.
type FrameReader struct {
	r io.Reader

	window [MagicSize]byte
	lenBuf [LengthSize]byte

	payloads *comm.LinearBuffer

	MaxHeaderReads  int
	MaxPayloadReads int

	frames    atomic.Uint64
	skipped   atomic.Uint64
	discarded atomic.Uint64
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:               r,
		payloads:        comm.NewLinearBuffer(0),
		MaxHeaderReads:  DefaultMaxHeaderReads,
		MaxPayloadReads: DefaultMaxPayloadReads,
	}
}

// Next returns the payload of the next frame on the stream.
//
// An error satisfying IsRecoverable means the header carried an invalid length
// and the frame was dropped; the caller should simply call Next again, which
// seeks the following magic. Any other error is fatal for the connection.
// The returned slice stays valid after later calls.
func (fr *FrameReader) Next() ([]byte, error) {
	headerBudget := fr.MaxHeaderReads
	if err := fr.seekMagic(&headerBudget); err != nil {
		return nil, err
	}
	if err := fr.readFull(fr.lenBuf[:], &headerBudget, ErrHeaderTimeout); err != nil {
		return nil, err
	}
	// the length is a signed int32 on the wire
	size := int64(int32(binary.BigEndian.Uint32(fr.lenBuf[:])))
	if err := ValidatePayloadLength(size); err != nil {
		fr.skipped.Add(1)
		log.Printf("[camproto] Size Error: %d", size)
		return nil, err
	}

	payload := fr.payloads.Get(int(size))
	payloadBudget := fr.MaxPayloadReads
	if err := fr.readFull(payload, &payloadBudget, ErrPayloadTimeout); err != nil {
		return nil, err
	}
	fr.frames.Add(1)
	return payload, nil
}

func (fr *FrameReader) Stats() ReaderStats {
	return ReaderStats{
		Frames:         fr.frames.Load(),
		Skipped:        fr.skipped.Load(),
		DiscardedBytes: fr.discarded.Load(),
	}
}

// seekMagic fills the rolling window and then slides it one byte at a time
// until it holds the magic sequence.
func (fr *FrameReader) seekMagic(budget *int) error {
	if err := fr.readFull(fr.window[:], budget, ErrHeaderTimeout); err != nil {
		return err
	}
	var one [1]byte
	for fr.window != Magic {
		if err := fr.readFull(one[:], budget, ErrHeaderTimeout); err != nil {
			return err
		}
		copy(fr.window[:], fr.window[1:])
		fr.window[MagicSize-1] = one[0]
		fr.discarded.Add(1)
	}
	return nil
}

// readFull reads len(buf) bytes, spending one unit of budget per Read call.
func (fr *FrameReader) readFull(buf []byte, budget *int, timeoutErr error) error {
	got := 0
	for got < len(buf) {
		if *budget <= 0 {
			return timeoutErr
		}
		*budget--
		n, err := fr.r.Read(buf[got:])
		got += n
		if err != nil {
			if got == len(buf) && errors.Is(err, io.EOF) {
				return nil
			}
			return readError(err)
		}
	}
	return nil
}

func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrClosedByPeer
	}
	return fmt.Errorf("camproto: read: %w", err)
}
