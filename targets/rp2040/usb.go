//go:build rp2040

package main

import (
	"machine"
)

// InitUSB configures the RP2040's USB CDC-ACM serial port (TinyGo maps
// machine.Serial to USB CDC on this target, not a UART).
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes buffered for reading.
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte.
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes a slice of bytes, returning how many were written.
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
