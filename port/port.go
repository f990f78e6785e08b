// Package port opens byte streams to a machine: a local serial port or a
// serial port relayed by a websocket bridge.
package port

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBaud is the rate Makerbot-class boards talk at.
const DefaultBaud = 115200

// Config selects the port a machine is attached to.
type Config struct {
	// Name is the device path, or the port name on the bridge host.
	Name string
	Baud int
	// Bridge is the websocket URL of a serial bridge. Empty opens Name
	// locally.
	Bridge string

	ReadTimeout time.Duration
	Logger      logrus.FieldLogger
}

func (c *Config) defaults() {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Open opens the port described by cfg.
func Open(ctx context.Context, cfg Config) (io.ReadWriteCloser, error) {
	cfg.defaults()
	if cfg.Name == "" {
		return nil, errors.New("port: no port name")
	}
	if cfg.Bridge != "" {
		b, err := DialBridge(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return OpenSerial(cfg)
}

// Dialer returns a function that opens cfg each time it is called.
func Dialer(cfg Config) func(ctx context.Context) (io.ReadWriteCloser, error) {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		return Open(ctx, cfg)
	}
}
