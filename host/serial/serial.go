// Package serial opens the board's USB console
package serial

import (
	"io"
	"time"
)

// Port is an open console connection. Native builds use
// github.com/tarm/serial; tests substitute any io.ReadWriteCloser.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate; USB CDC ignores it but the driver requires one
	Baud int

	// ReadTimeout bounds each Read (0 = blocking)
	ReadTimeout time.Duration
}

// DefaultConfig returns the console settings used by the firmware
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}
