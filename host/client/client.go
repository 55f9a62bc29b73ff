// Package client implements the host side of the firmware's line-based
// G-code protocol: send one line, block for its "ok"/"error" acknowledgment,
// and surface any report lines (M105/M114, etc.) queued ahead of it.
package client

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"gopper/host/serial"
)

// Client owns a connected serial port and the line-ack protocol on top of it.
type Client struct {
	port   serial.Port
	reader *bufio.Reader

	// Timeout bounds how long SendLine waits for "ok"/"error" before
	// giving up; a homing pass or a temperature wait can legitimately take
	// much longer than a typical move's ack, so this is intentionally
	// generous rather than matched to the fastest command.
	Timeout time.Duration
}

// Connect opens device at baud (0 uses the package default) and returns a
// ready Client.
func Connect(device string, baud int) (*Client, error) {
	cfg := serial.DefaultConfig(device)
	if baud > 0 {
		cfg.Baud = baud
	}
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		port:    port,
		reader:  bufio.NewReader(port),
		Timeout: 60 * time.Second,
	}, nil
}

// Close releases the underlying serial port.
func (c *Client) Close() error {
	return c.port.Close()
}

// SendLine writes one line of G-code (a trailing newline is added if
// missing) and blocks until the firmware's "ok" or "error: ..." response,
// returning every report line emitted before it.
func (c *Client) SendLine(line string) (reports []string, err error) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := c.port.Write([]byte(line)); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	deadline := time.Now().Add(c.Timeout)
	for time.Now().Before(deadline) {
		resp, err := c.reader.ReadString('\n')
		if err != nil {
			return reports, fmt.Errorf("read: %w", err)
		}
		resp = strings.TrimRight(resp, "\r\n")
		if resp == "" {
			continue
		}
		if resp == "ok" {
			return reports, nil
		}
		if strings.HasPrefix(resp, "error") || strings.HasPrefix(resp, "Error") {
			return reports, fmt.Errorf("%s", resp)
		}
		reports = append(reports, resp)
	}
	return reports, fmt.Errorf("timed out waiting for response to %q", strings.TrimSpace(line))
}
