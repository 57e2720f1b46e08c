// Package serial opens a serial port as the keystroke stream, so the
// element can be driven from a microcontroller or a second terminal.
package serial

import (
	"fmt"
	"io"

	srl "github.com/jacobsa/go-serial/serial"

	"github.td.teradata.com/sandbox/bouncer/internal/config"
)

// opener is replaced in tests.
var opener = srl.Open

// Options converts the serial configuration into port options.
func Options(c *config.Serial) (srl.OpenOptions, error) {
	parity, err := toParity(c.Parity)
	if err != nil {
		return srl.OpenOptions{}, err
	}
	stopBits, err := toStopBits(c.StopBits)
	if err != nil {
		return srl.OpenOptions{}, err
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return srl.OpenOptions{}, fmt.Errorf("invalid data bits %d", c.DataBits)
	}
	if c.BaudRate <= 0 {
		return srl.OpenOptions{}, fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	minRead := c.MinimumReadSize
	if minRead < 1 {
		minRead = 1
	}
	return srl.OpenOptions{
		PortName:        c.PortName,
		BaudRate:        uint(c.BaudRate),
		DataBits:        uint(c.DataBits),
		StopBits:        stopBits,
		ParityMode:      parity,
		MinimumReadSize: uint(minRead),
	}, nil
}

// Open opens the configured port.
func Open(c *config.Serial) (io.ReadWriteCloser, error) {
	opts, err := Options(c)
	if err != nil {
		return nil, err
	}
	port, err := opener(opts)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", c.PortName, err)
	}
	return port, nil
}

func toStopBits(value int) (uint, error) {
	switch value {
	case 1, 2:
		return uint(value), nil
	default:
		return 0, fmt.Errorf("invalid stop bits %d", value)
	}
}

func toParity(value int) (srl.ParityMode, error) {
	switch value {
	case 0:
		return srl.PARITY_NONE, nil
	case 1:
		return srl.PARITY_ODD, nil
	case 2:
		return srl.PARITY_EVEN, nil
	default:
		return 0, fmt.Errorf("invalid parity %d", value)
	}
}
