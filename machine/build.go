package machine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/driver/s3g"
	"github.com/magnomatos822/replicatorg/driver/virtual"
)

// control is what the worker must do after checking requests between lines.
type control int

const (
	ctlContinue control = iota
	ctlStop
	ctlDisconnect
	ctlDetach
)

var (
	errStopped    = errors.New("build stopped")
	errDisconnect = errors.New("disconnect requested")
	errDetached   = errors.New("detached from remote build")
)

func (w *worker) startJob(req Request) {
	st := w.Status().State
	allowed := st == Ready
	if req.Type == RequestBuildToFile {
		allowed = st == Ready || st == NotConnected
	}
	if !allowed {
		w.report(fmt.Errorf("%s: machine is %s", req.Type, st))
		return
	}
	if req.Type != RequestBuildRemote && req.Source == nil {
		w.report(fmt.Errorf("%s: no source", req.Type))
		return
	}

	job := newJob(req)
	log := w.log.WithField("job", job.ID)

	var (
		drv     driver.Driver
		running = Building
		cleanup = func() {}
	)
	switch req.Type {
	case RequestBuildDirect, RequestBuildToRemoteFile, RequestBuildRemote:
		drv = w.drv
	case RequestSimulate:
		sim := virtual.NewSimulator(w.model.Clone())
		sim.Speedup = w.opts.SimulationSpeedup
		sim.CommitPosition(w.drv.CurrentPosition())
		drv = sim
		running = Simulating
	case RequestBuildToFile:
		fd, err := os.Create(req.Path)
		if err != nil {
			w.report(fmt.Errorf("build to file: %w", err))
			return
		}
		drv = s3g.NewCapture(fd, w.model.Clone(), s3g.Options{Variant: w.opts.Variant, Logger: log})
		cleanup = func() {
			if err := drv.Close(); err != nil {
				log.WithError(err).Error("close capture file")
			}
		}
	}
	defer cleanup()

	w.job = job
	w.update(func(s *Status) {
		s.Target = job.Target
		s.JobID = job.ID
		s.LinesProcessed = 0
		s.LinesTotal = job.Lines
	})
	log.WithField("target", job.Target).Info("starting build")
	w.setState(running, nil)

	var err error
	switch req.Type {
	case RequestBuildRemote:
		err = w.runRemote(job)
	case RequestBuildToRemoteFile:
		err = w.runUpload(job)
	default:
		err = w.runJob(job, drv, running)
	}
	w.finish(job, drv, err)
}

// finish moves the worker out of a job according to how it ended.
func (w *worker) finish(job *BuildJob, drv driver.Driver, err error) {
	log := w.log.WithField("job", job.ID)
	w.job = nil

	idle := Ready
	if w.drv == nil {
		idle = NotConnected
	}

	switch {
	case err == nil:
		log.WithField("elapsed", time.Since(job.Started)).Info("build finished")
		w.setState(idle, nil)
	case errors.Is(err, errDetached):
		log.Info("detached from remote build")
		w.setState(idle, nil)
	case errors.Is(err, errDisconnect):
		w.disconnect(nil)
	case errors.Is(err, errStopped):
		w.setState(Stopping, nil)
		if job.Target.usesMachine() {
			if aerr := w.retry(w.drv.Abort); aerr != nil {
				log.WithError(aerr).Error("abort")
			}
			w.reconcile(nil)
			return
		}
		w.setState(idle, nil)
	default:
		log.WithError(err).Error("build failed")
		w.setState(Stopping, err)
		if job.Target.usesMachine() {
			w.reconcile(err)
			return
		}
		w.setState(idle, err)
	}
}

// reconcile resynchronizes the cached position with the machine and
// returns to READY. If the machine cannot be reached the worker ends in
// ERROR.
func (w *worker) reconcile(cause error) {
	var p coord.Point
	err := w.retry(func() error {
		var err error
		p, err = w.drv.ReconcilePosition()
		return err
	})
	if err != nil {
		if cause == nil {
			cause = err
		}
		w.drv.Close()
		w.drv = nil
		w.setTransport(nil)
		w.setState(Error, cause)
		return
	}
	w.log.WithField("position", p).Debug("position reconciled")
	w.setState(Ready, cause)
}

// control handles requests that arrived since the last line. A pause
// blocks here until unpaused, so a command already sent always completes
// first.
func (w *worker) control(running State, job *BuildJob) control {
	for {
		req, ok := w.requests.TryPop()
		if !ok {
			if w.requests.Closed() {
				return ctlDisconnect
			}
			return ctlContinue
		}
		switch req.Type {
		case RequestStop:
			return ctlStop
		case RequestDisconnect:
			return ctlDisconnect
		case RequestDisconnectRemoteBuild:
			if job.Target == TargetRemote {
				return ctlDetach
			}
		case RequestRunCommand:
			w.runCommand(req.Command)
		case RequestPause:
			if c := w.pause(running, job); c != ctlContinue {
				return c
			}
		case RequestUnpause:
		default:
			w.report(fmt.Errorf("%s: build in progress", req.Type))
		}
	}
}

func (w *worker) pause(running State, job *BuildJob) control {
	remote := job.Target == TargetRemote
	if remote {
		if err := w.retry(w.drv.Pause); err != nil {
			w.report(fmt.Errorf("pause: %w", err))
			return ctlContinue
		}
	}
	w.setState(Paused, nil)

	for {
		req, ok := w.requests.Pop()
		if !ok {
			return ctlDisconnect
		}
		switch req.Type {
		case RequestUnpause:
			if remote {
				if err := w.retry(w.drv.Pause); err != nil {
					w.report(fmt.Errorf("unpause: %w", err))
					continue
				}
			}
			w.setState(running, nil)
			return ctlContinue
		case RequestStop:
			return ctlStop
		case RequestDisconnect:
			return ctlDisconnect
		case RequestDisconnectRemoteBuild:
			if remote {
				return ctlDetach
			}
		case RequestRunCommand:
			w.runCommand(req.Command)
		case RequestPause:
		default:
			w.report(fmt.Errorf("%s: build paused", req.Type))
		}
	}
}

func controlErr(c control) error {
	switch c {
	case ctlStop:
		return errStopped
	case ctlDisconnect:
		return errDisconnect
	case ctlDetach:
		return errDetached
	}
	return nil
}

// runJob feeds the job's source through a fresh interpreter into drv, one
// line at a time.
func (w *worker) runJob(job *BuildJob, drv driver.Driver, running State) error {
	r, err := job.Source.Open()
	if err != nil {
		return driver.Fatal("open source", err)
	}
	defer r.Close()

	tr := w.opts.NewInterpreter()
	tr.Reset(drv.CurrentPosition())

	var lines int
	for {
		if err := controlErr(w.control(running, job)); err != nil {
			return err
		}

		line, err := r.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return driver.Fatal("read source", err)
		}

		cmds, err := tr.Line(line)
		if err != nil {
			w.log.WithError(err).WithField("line", lines+1).Warn("skipping line")
		}
		for _, c := range cmds {
			if err := w.execute(drv, c); err != nil {
				return fmt.Errorf("line %d: %w", lines+1, err)
			}
		}

		lines++
		w.progress(job, lines, drv)
	}
}

func (w *worker) progress(job *BuildJob, lines int, drv driver.Driver) {
	w.update(func(s *Status) {
		s.LinesProcessed = lines
		if drv == w.drv {
			s.Position = drv.CurrentPosition()
		}
	})
	w.events.Send(ProgressEvent{
		JobID:          job.ID,
		Target:         job.Target,
		LinesProcessed: lines,
		LinesTotal:     job.Lines,
		Elapsed:        time.Since(job.Started),
		Estimated:      job.Estimate,
	})
}

func (w *worker) capturer() (driver.Capturer, error) {
	c, ok := w.drv.(driver.Capturer)
	if !ok {
		return nil, driver.Fatal("remote build", driver.ErrUnsupported)
	}
	return c, nil
}

// runUpload captures the job to a file on the machine's card.
func (w *worker) runUpload(job *BuildJob) error {
	c, err := w.capturer()
	if err != nil {
		return err
	}
	if err := w.retry(func() error { return c.BeginCapture(job.Remote) }); err != nil {
		return err
	}
	buildErr := w.runJob(job, w.drv, Building)

	var n uint32
	endErr := w.retry(func() error {
		var err error
		n, err = c.EndCapture()
		return err
	})
	if buildErr != nil {
		return buildErr
	}
	if endErr != nil {
		return endErr
	}
	w.log.WithFields(logrus.Fields{"job": job.ID, "file": job.Remote, "bytes": n}).Info("captured to card")

	// the machine did not move while capturing
	return w.retry(func() error {
		_, err := w.drv.ReconcilePosition()
		return err
	})
}

// runRemote plays a card file back and waits for the machine to finish.
func (w *worker) runRemote(job *BuildJob) error {
	c, err := w.capturer()
	if err != nil {
		return err
	}
	if err := w.retry(func() error { return c.Playback(job.Remote) }); err != nil {
		return err
	}

	for {
		if err := controlErr(w.control(Building, job)); err != nil {
			return err
		}

		var done bool
		err := w.retry(func() error {
			var err error
			done, err = c.IsFinished()
			return err
		})
		if err != nil {
			return err
		}
		if done {
			return w.retry(func() error {
				_, err := w.drv.ReconcilePosition()
				return err
			})
		}
		w.progress(job, 0, w.drv)

		select {
		case <-time.After(w.opts.RemotePollInterval):
		case <-w.requests.Wait():
		case <-w.ctx.Done():
			return errDisconnect
		}
	}
}
