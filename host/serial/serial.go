// Package serial defines the host-side transport abstraction used to
// talk to the MCU's line-oriented USB CDC serial port.
package serial

import "io"

// Port represents a serial port interface. This abstraction allows for
// different implementations:
//   - Native serial (using github.com/tarm/serial)
//   - Mock serial (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (ignored by USB CDC, but some boards still enforce a
	// DTR-toggle reset at a specific rate)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns a default configuration for a standalone-firmware
// MCU's USB CDC port.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000, // conventional G-code host baud rate
		ReadTimeout: 100,    // 100ms read timeout
	}
}
