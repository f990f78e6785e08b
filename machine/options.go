package machine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/magnomatos822/replicatorg/gcode"
	"github.com/magnomatos822/replicatorg/model"
	"github.com/magnomatos822/replicatorg/protocol"
)

// Options configures a Controller.
type Options struct {
	// Dial opens the byte stream to the machine. Required to connect.
	Dial func(ctx context.Context) (io.ReadWriteCloser, error)
	// Model describes the machine. Required. The controller works on its own
	// copy.
	Model *model.Machine
	// Variant defaults to protocol.Makerbot4G.
	Variant *protocol.Variant
	// NewInterpreter creates the translator used for each pass over a
	// source. Defaults to a plain G-code interpreter.
	NewInterpreter func() gcode.Translator

	// MaxRetries is how many times a command failing transiently is re-run
	// before the build is abandoned.
	MaxRetries int
	RetryDelay time.Duration

	// ResponseTimeout bounds a single packet round trip.
	ResponseTimeout time.Duration
	// ConnectTimeout bounds the connection handshake.
	ConnectTimeout time.Duration
	// DisposeTimeout bounds how long Dispose waits for the worker.
	DisposeTimeout time.Duration
	// RemotePollInterval is how often a remote build is polled.
	RemotePollInterval time.Duration

	// SimulationSpeedup paces simulated builds; zero runs them flat out.
	SimulationSpeedup float64

	Logger logrus.FieldLogger
}

const (
	DefaultMaxRetries         = 5
	DefaultRetryDelay         = 50 * time.Millisecond
	DefaultResponseTimeout    = time.Second
	DefaultConnectTimeout     = 10 * time.Second
	DefaultDisposeTimeout     = 5 * time.Second
	DefaultRemotePollInterval = time.Second
)

func (o *Options) defaults() error {
	if o.Model == nil {
		return errors.New("machine: a model is required")
	}
	if o.Variant == nil {
		o.Variant = protocol.Makerbot4G
	}
	if o.NewInterpreter == nil {
		o.NewInterpreter = func() gcode.Translator { return gcode.NewInterpreter() }
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.ResponseTimeout == 0 {
		o.ResponseTimeout = DefaultResponseTimeout
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.DisposeTimeout == 0 {
		o.DisposeTimeout = DefaultDisposeTimeout
	}
	if o.RemotePollInterval == 0 {
		o.RemotePollInterval = DefaultRemotePollInterval
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return nil
}
