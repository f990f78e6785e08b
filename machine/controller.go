package machine

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/driver/virtual"
	"github.com/magnomatos822/replicatorg/gcode"
	"github.com/magnomatos822/replicatorg/model"
)

// ErrDisposed is returned by calls made after Dispose.
var ErrDisposed = errors.New("machine: controller disposed")

// Controller is the public handle on one machine. Its methods queue a
// request for the worker and return at once; outcomes arrive as events.
type Controller struct {
	opts Options
	log  logrus.FieldLogger

	listeners listenerSet

	mx       sync.Mutex
	w        *worker
	events   *dispatcher
	source   gcode.Source
	disposed bool
}

// New starts a controller in NOT_CONNECTED.
func New(opts Options) (*Controller, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	c := &Controller{
		opts: opts,
		log:  opts.Logger.WithField("machine", opts.Model.Name),
	}
	c.start()
	return c, nil
}

// start creates a worker, and a dispatcher if the previous one is gone.
// Caller holds mx or has exclusive access.
func (c *Controller) start() {
	if c.events == nil || c.events.closed() {
		c.events = newDispatcher(c.listeners.snapshot, c.log)
	}
	c.w = newWorker(c.opts, c.events)
	go c.w.run()
}

func (c *Controller) push(r Request) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if !c.w.requests.Push(r) {
		return fmt.Errorf("machine: %s: worker stopped", r.Type)
	}
	return nil
}

// Connect opens the link and performs the handshake. A worker that
// terminated earlier is replaced first.
func (c *Controller) Connect() error {
	c.mx.Lock()
	if c.disposed {
		c.mx.Unlock()
		return ErrDisposed
	}
	if c.w.terminated() || c.w.requests.Closed() {
		c.start()
	}
	c.mx.Unlock()
	return c.push(Request{Type: RequestConnect})
}

func (c *Controller) Disconnect() error { return c.push(Request{Type: RequestDisconnect}) }
func (c *Controller) Reset() error      { return c.push(Request{Type: RequestReset}) }
func (c *Controller) Pause() error      { return c.push(Request{Type: RequestPause}) }
func (c *Controller) Unpause() error    { return c.push(Request{Type: RequestUnpause}) }
func (c *Controller) Stop() error       { return c.push(Request{Type: RequestStop}) }

// RunCommand executes cmd between build lines without changing state.
func (c *Controller) RunCommand(cmd driver.Command) error {
	if cmd == nil {
		return errors.New("machine: nil command")
	}
	return c.push(Request{Type: RequestRunCommand, Command: cmd})
}

// SetSource sets the command source used by later builds.
func (c *Controller) SetSource(src gcode.Source) {
	c.mx.Lock()
	c.source = src
	c.mx.Unlock()
}

// Source returns the configured command source.
func (c *Controller) Source() gcode.Source {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.source
}

// Estimate dry-runs src on a copy of the model and returns the predicted
// machine time and the number of lines.
func (c *Controller) Estimate(src gcode.Source) (time.Duration, int, error) {
	if src == nil {
		return 0, 0, errors.New("machine: no source")
	}
	st := c.Status()
	est := virtual.NewEstimator(c.Model())
	est.CommitPosition(st.Position)

	r, err := src.Open()
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()

	tr := c.opts.NewInterpreter()
	tr.Reset(st.Position)
	var lines int
	for {
		line, err := r.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, lines, err
		}
		lines++
		cmds, _ := tr.Line(line)
		for _, cmd := range cmds {
			if err := cmd.Run(est); err != nil {
				return 0, lines, fmt.Errorf("line %d: %w", lines, err)
			}
		}
	}
	return est.Total(), lines, nil
}

func (c *Controller) build(t RequestType, path, remote string) error {
	src := c.Source()
	if src == nil {
		return errors.New("machine: no source")
	}
	est, lines, err := c.Estimate(src)
	if err != nil {
		return fmt.Errorf("machine: estimate: %w", err)
	}
	c.log.WithFields(logrus.Fields{"source": src.Name(), "lines": lines, "estimate": est}).Info("estimated build")
	return c.push(Request{
		Type:       t,
		Source:     src,
		Path:       path,
		Remote:     remote,
		Estimate:   est,
		LinesTotal: lines,
	})
}

// Execute builds the configured source on the machine.
func (c *Controller) Execute() error { return c.build(RequestBuildDirect, "", "") }

// Simulate runs the configured source against a simulated machine.
func (c *Controller) Simulate() error { return c.build(RequestSimulate, "", "") }

// BuildToFile writes the packets for the configured source to a local file.
func (c *Controller) BuildToFile(path string) error {
	return c.build(RequestBuildToFile, path, "")
}

// Upload captures the configured source to a file on the machine's card.
func (c *Controller) Upload(name string) error {
	return c.build(RequestBuildToRemoteFile, "", name)
}

// BuildRemote plays back a file already on the machine's card.
func (c *Controller) BuildRemote(name string) error {
	return c.push(Request{Type: RequestBuildRemote, Remote: name})
}

// Dispose detaches from any remote build, disconnects, and waits up to
// DisposeTimeout for the worker to exit before closing the link under it.
func (c *Controller) Dispose() {
	c.mx.Lock()
	if c.disposed {
		c.mx.Unlock()
		return
	}
	c.disposed = true
	w, events := c.w, c.events
	c.mx.Unlock()

	w.requests.Push(Request{Type: RequestDisconnectRemoteBuild})
	w.requests.Close()

	select {
	case <-w.done:
	case <-time.After(c.opts.DisposeTimeout):
		c.log.Warn("worker did not stop in time, closing link")
		w.kill()
		select {
		case <-w.done:
		case <-time.After(c.opts.DisposeTimeout):
			c.log.Error("worker still running after dispose")
		}
	}
	events.Close()
	select {
	case <-events.done:
	case <-time.After(c.opts.DisposeTimeout):
		c.log.Warn("listeners still busy after dispose")
	}
}

// Done is closed when the current worker exits.
func (c *Controller) Done() <-chan struct{} {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.w.done
}

func (c *Controller) AddListener(l Listener)    { c.listeners.add(l) }
func (c *Controller) RemoveListener(l Listener) { c.listeners.remove(l) }

func (c *Controller) current() *worker {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.w
}

// Status returns the latest state snapshot.
func (c *Controller) Status() Status { return c.current().Status() }

func (c *Controller) State() State        { return c.Status().State }
func (c *Controller) IsPaused() bool      { return c.Status().State == Paused }
func (c *Controller) LinesProcessed() int { return c.Status().LinesProcessed }
func (c *Controller) Target() JobTarget   { return c.Status().Target }
func (c *Controller) MachineName() string { return c.opts.Model.Name }

// Model returns a copy of the machine model as last published by the worker.
func (c *Controller) Model() *model.Machine { return c.current().Model() }
