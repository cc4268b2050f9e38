package relay

import (
	"fmt"
	"log"
	"time"

	"go.bug.st/serial"
)

// SerialReadTimeout bounds a single serial read so the forwarding loop can
// notice shutdown.
const SerialReadTimeout = time.Millisecond

// OpenSerial opens a serial device in 8N1 mode.
func OpenSerial(name string, baud int) (Port, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("relay: open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(SerialReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("relay: set read timeout on %s: %w", name, err)
	}
	log.Printf("[relay] Serial port %s opened.", name)
	return p, nil
}

// SerialPorts lists the serial devices present on this machine.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
