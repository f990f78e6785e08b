package port

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// serialPort hides read timeouts. A read returns only with data, an error,
// or after Close.
type serialPort struct {
	p      *serial.Port
	name   string
	closed atomic.Bool
}

// OpenSerial opens a local serial device.
func OpenSerial(cfg Config) (io.ReadWriteCloser, error) {
	cfg.defaults()
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Name, err)
	}
	cfg.Logger.WithFields(logrus.Fields{"port": cfg.Name, "baud": cfg.Baud}).Info("serial port open")
	return &serialPort{p: p, name: cfg.Name}, nil
}

func (s *serialPort) Read(b []byte) (int, error) {
	for {
		if s.closed.Load() {
			return 0, io.ErrClosedPipe
		}
		n, err := s.p.Read(b)
		if n > 0 {
			return n, nil
		}
		// tarm reports a timeout as an empty read, with io.EOF on some
		// platforms
		if err != nil && err != io.EOF {
			return 0, err
		}
	}
}

func (s *serialPort) Write(b []byte) (int, error) {
	if s.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return s.p.Write(b)
}

func (s *serialPort) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.p.Close()
}

func (s *serialPort) String() string { return s.name }
