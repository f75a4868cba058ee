package canlog

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

const DefaultBaudRate = 115200

// serialReadTimeout bounds each read so the reader can notice shutdown.
const serialReadTimeout = 200 * time.Millisecond

// SerialPort is a candump-over-UART adapter. A read that times out with no
// data reports io.EOF, so a following Reader polls instead of spinning.
type SerialPort struct {
	port serial.Port
	path string
}

// OpenSerial opens a serial CAN adapter at path.
func OpenSerial(path string, baud int) (*SerialPort, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}
	return &SerialPort{port: port, path: path}, nil
}

func (s *SerialPort) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

func (s *SerialPort) Close() error {
	return s.port.Close()
}

func (s *SerialPort) String() string {
	return s.path
}
