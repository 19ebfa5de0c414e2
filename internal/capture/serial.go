package capture

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is the usual speed of AIS receivers with a serial output
const DefaultBaudRate = 115200

// OpenSerial opens the configured serial device
func OpenSerial(cfg Config) (io.ReadCloser, error) {
	mode, err := SerialMode(cfg)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.SerialDevice, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// SerialMode converts the configuration into port settings
func SerialMode(cfg Config) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.SerialBaudRate,
		DataBits: cfg.SerialDataBits,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("invalid byte size %d", mode.DataBits)
	}

	switch strings.ToLower(cfg.SerialParity) {
	case "", "n", "none":
		mode.Parity = serial.NoParity
	case "e", "even":
		mode.Parity = serial.EvenParity
	case "o", "odd":
		mode.Parity = serial.OddParity
	case "m", "mark":
		mode.Parity = serial.MarkParity
	case "s", "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("invalid parity %q", cfg.SerialParity)
	}

	switch cfg.SerialStopBits {
	case "", "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %q", cfg.SerialStopBits)
	}

	return mode, nil
}
