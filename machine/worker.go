package machine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/driver/s3g"
	"github.com/magnomatos822/replicatorg/model"
)

// worker is the single goroutine that owns the driver. All hardware I/O and
// all position and state changes happen on it. Other goroutines only push
// requests and read published snapshots.
type worker struct {
	opts     Options
	log      logrus.FieldLogger
	requests *queue[Request]
	events   *dispatcher

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	status   atomic.Pointer[Status]
	snapshot atomic.Pointer[model.Machine]

	// owned by the worker goroutine
	model *model.Machine
	drv   driver.Driver
	job   *BuildJob

	tmx       sync.Mutex
	transport io.Closer
}

func newWorker(opts Options, events *dispatcher) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		opts:     opts,
		log:      opts.Logger.WithField("machine", opts.Model.Name),
		requests: newQueue[Request](),
		events:   events,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		model:    opts.Model.Clone(),
	}
	w.status.Store(&Status{State: NotConnected})
	w.snapshot.Store(w.model.Clone())
	return w
}

// Status returns the latest snapshot. Safe from any goroutine.
func (w *worker) Status() Status { return *w.status.Load() }

// Model returns a copy of the latest published model.
func (w *worker) Model() *model.Machine { return w.snapshot.Load().Clone() }

func (w *worker) terminated() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *worker) run() {
	defer close(w.done)
	defer w.shutdown()
	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("panic", r).Error("worker crashed")
			w.requests.Close()
		}
	}()

	for {
		req, ok := w.requests.Pop()
		if !ok {
			return
		}
		w.handle(req)
	}
}

func (w *worker) shutdown() {
	if w.drv != nil {
		w.drv.Close()
		w.drv = nil
	}
	w.setTransport(nil)
	if w.Status().State != NotConnected {
		w.setState(NotConnected, nil)
	}
	w.cancel()
}

// kill releases the transport from outside the worker, interrupting any
// packet in flight. Used only when the worker does not exit in time.
func (w *worker) kill() {
	w.cancel()
	w.tmx.Lock()
	defer w.tmx.Unlock()
	if w.transport != nil {
		w.transport.Close()
	}
}

func (w *worker) setTransport(c io.Closer) {
	w.tmx.Lock()
	w.transport = c
	w.tmx.Unlock()
}

func (w *worker) update(fn func(s *Status)) (prev, next Status) {
	prev = w.Status()
	next = prev
	fn(&next)
	w.status.Store(&next)
	return prev, next
}

func (w *worker) setState(state State, err error) {
	prev, next := w.update(func(s *Status) {
		s.State = state
		s.Err = err
		if !state.Running() && state != Stopping {
			s.Target = TargetNone
		}
		if w.drv != nil {
			s.Position = w.drv.CurrentPosition()
		}
	})
	entry := w.log.WithFields(logrus.Fields{"from": prev.State, "state": state})
	if err != nil {
		entry.WithError(err).Warn("state change")
	} else {
		entry.Info("state change")
	}
	w.events.Send(StateChangeEvent{Previous: prev, Current: next})
}

// report surfaces a failure that does not change state.
func (w *worker) report(err error) {
	w.setState(w.Status().State, err)
}

func (w *worker) publishModel() {
	w.snapshot.Store(w.model.Clone())
}

func (w *worker) handle(req Request) {
	w.log.WithField("request", req.Type).Debug("handling request")
	switch {
	case req.Type == RequestConnect:
		w.connect()
	case req.Type == RequestDisconnect:
		w.disconnect(nil)
	case req.Type == RequestReset:
		w.reset()
	case req.Type == RequestRunCommand:
		w.runCommand(req.Command)
	case req.Type.isBuild():
		w.startJob(req)
	default:
		w.log.WithField("request", req.Type).Debug("no build running, ignoring")
	}
}

func (w *worker) connect() {
	if w.Status().State.Connected() {
		w.log.Debug("already connected")
		return
	}
	if w.drv != nil {
		w.drv.Close()
		w.drv = nil
	}
	if w.opts.Dial == nil {
		w.setState(NotConnected, errors.New("connect: no port configured"))
		return
	}
	w.setState(Connecting, nil)

	rwc, err := w.opts.Dial(w.ctx)
	if err != nil {
		w.setState(NotConnected, fmt.Errorf("connect: %w", err))
		return
	}
	w.setTransport(rwc)

	d := s3g.New(rwc, w.model, s3g.Options{
		Variant: w.opts.Variant,
		Timeout: w.opts.ResponseTimeout,
		Logger:  w.log,
	})
	ctx, cancel := context.WithTimeout(w.ctx, w.opts.ConnectTimeout)
	err = d.Initialize(ctx)
	cancel()
	if err != nil {
		d.Close()
		w.setTransport(nil)
		w.setState(NotConnected, fmt.Errorf("connect: %w", err))
		return
	}

	w.drv = d
	w.publishModel()
	w.update(func(s *Status) {
		s.Driver = d.Name()
		s.Version = d.Version()
	})
	w.setState(Ready, nil)
}

func (w *worker) disconnect(err error) {
	if w.drv != nil {
		if cerr := w.drv.Close(); cerr != nil {
			w.log.WithError(cerr).Debug("close driver")
		}
		w.drv = nil
	}
	w.setTransport(nil)
	w.setState(NotConnected, err)
}

// reset restarts the firmware and repeats the handshake.
func (w *worker) reset() {
	if w.drv == nil {
		w.log.Debug("reset: not connected")
		return
	}
	err := w.retry(w.drv.Reset)
	if err == nil {
		ctx, cancel := context.WithTimeout(w.ctx, w.opts.ConnectTimeout)
		err = w.drv.Initialize(ctx)
		cancel()
	}
	if err != nil {
		w.disconnect(fmt.Errorf("reset: %w", err))
		return
	}
	w.setState(Ready, nil)
}

// retry runs fn until it succeeds, fails fatally, or has been retried
// MaxRetries times.
func (w *worker) retry(fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !driver.IsRetryable(err) {
			return err
		}
		if attempt >= w.opts.MaxRetries {
			return driver.Fatal(fmt.Sprintf("giving up after %d attempts", attempt+1), err)
		}
		w.log.WithError(err).WithField("attempt", attempt+1).Warn("retrying")

		select {
		case <-time.After(w.opts.RetryDelay):
		case <-w.ctx.Done():
			return driver.Fatal("interrupted", w.ctx.Err())
		}
	}
}

// execute runs a command against drv with the retry policy. Successful
// tool commands are reported to listeners.
func (w *worker) execute(drv driver.Driver, cmd driver.Command) error {
	if err := w.retry(func() error { return cmd.Run(drv) }); err != nil {
		return fmt.Errorf("%v: %w", cmd, err)
	}
	if tc, ok := cmd.(driver.ToolCommand); ok {
		if t := drv.Machine().Tool(tc.ToolIndex()); t != nil {
			w.events.Send(ToolStatusEvent{Tool: *t})
		}
		if drv == w.drv {
			w.publishModel()
		}
	}
	return nil
}

// runCommand executes a single command against the connected machine
// without changing state.
func (w *worker) runCommand(cmd driver.Command) {
	if cmd == nil {
		return
	}
	if w.drv == nil {
		w.report(fmt.Errorf("run %v: not connected", cmd))
		return
	}
	if err := w.execute(w.drv, cmd); err != nil {
		w.report(err)
		return
	}
	w.update(func(s *Status) { s.Position = w.drv.CurrentPosition() })
}
