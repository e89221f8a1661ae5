package motion

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"plantbot/logging"
)

// SerialPorter is the subset of a serial port the actuator needs
type SerialPorter interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialOpener opens a port; replaced in tests
type SerialOpener func(path string, baud int) (SerialPorter, error)

func openSerial(path string, baud int) (SerialPorter, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// NewSerial returns an actuator speaking the line protocol over a serial
// link to the base's motion bridge.
func NewSerial(path string, baud int, opener SerialOpener) Actuator {
	if opener == nil {
		opener = openSerial
	}
	return &lineActuator{
		name: "serial",
		open: func() (lineTransport, error) {
			port, err := opener(path, baud)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			return &serialTransport{port: port, buf: make([]byte, 256)}, nil
		},
		timeout:    defaultTimeout,
		retryDelay: 100 * time.Millisecond,
		log:        logging.Named("MOTION"),
	}
}

type serialTransport struct {
	port    SerialPorter
	buf     []byte
	pending []byte
}

func (s *serialTransport) Send(line string) error {
	_, err := io.WriteString(s.port, line+"\n")
	return err
}

// Receive returns the next complete line. go.bug.st/serial reports a read
// timeout as 0, nil, so an empty read ends the wait.
func (s *serialTransport) Receive(deadline time.Time) (string, error) {
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := string(s.pending[:i])
			s.pending = s.pending[i+1:]
			return strings.TrimSpace(line), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrNoReply
		}
		if err := s.port.SetReadTimeout(remaining); err != nil {
			return "", err
		}
		n, err := s.port.Read(s.buf)
		s.pending = append(s.pending, s.buf[:n]...)
		if err != nil {
			return "", fmt.Errorf("read reply: %w", err)
		}
		if n == 0 {
			return "", ErrNoReply
		}
	}
}

func (s *serialTransport) Close() error {
	return s.port.Close()
}
