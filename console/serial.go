//go:build !tinygo

package console

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const serialReadTimeout = 500 * time.Millisecond

// ErrNoUSBSerial is returned by GetSerialPorts when no USB serial devices are attached
var ErrNoUSBSerial = errors.New("no USB serial ports found")

// SerialChannel is a Channel backed by a serial port
type SerialChannel struct {
	*StreamChannel
	Port serial.Port
}

// OpenSerial opens a serial port at the given baud rate with 8N1 framing
func OpenSerial(name string, baud int) (*SerialChannel, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("error opening serial port %q: %w", name, err)
	}

	err = port.SetReadTimeout(serialReadTimeout)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("error setting read timeout: %w", err)
	}

	return &SerialChannel{
		StreamChannel: NewStreamChannel(timeoutReader{port}, port),
		Port:          port,
	}, nil
}

// timeoutReader keeps reading through read timeouts, which go.bug.st/serial reports as a zero-length read
type timeoutReader struct {
	serial.Port
}

func (r timeoutReader) Read(p []byte) (int, error) {
	for {
		n, err := r.Port.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

// Close closes the port
func (r timeoutReader) Close() error {
	return r.Port.Close()
}

// GetSerialPorts lists the names of attached USB serial devices
func GetSerialPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("error listing serial ports: %w", err)
	}

	var result []string
	for _, port := range ports {
		if port.IsUSB {
			result = append(result, port.Name)
		}
	}

	if len(result) == 0 {
		return nil, ErrNoUSBSerial
	}

	return result, nil
}
