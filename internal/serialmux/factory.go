package serialmux

import (
	"go.bug.st/serial"
)

// Dongle link settings. The receiver enumerates as a CDC serial device
// running 115200 8N1.
const (
	BaudRate = 115200
)

// NewRealSerialMux opens the serial port at the given path with the
// dongle's fixed link settings and wraps it in a SerialMux.
func NewRealSerialMux(path string, frameLen int) (*SerialMux[serial.Port], error) {
	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewSerialMux[serial.Port](port, frameLen), nil
}
