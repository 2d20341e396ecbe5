// Package serial connects a host serial device to a simulated UART bank.
package serial

import (
	"io"

	"vorhal/config"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory pipes for testing
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the configuration of a typical USB adapter
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 50,
	}
}

// FromBoard builds a Config from the board description.
func FromBoard(s config.Serial) *Config {
	return &Config{
		Device:      s.Device,
		Baud:        s.Baud,
		ReadTimeout: s.ReadTimeoutMs,
	}
}
