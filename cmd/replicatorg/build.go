package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/magnomatos822/replicatorg/gcode"
	"github.com/magnomatos822/replicatorg/machine"
)

func newBuildCmd(g *globalOptions) *cobra.Command {
	var (
		simulate bool
		output   string
		upload   string
		estimate bool
	)
	cmd := &cobra.Command{
		Use:   "build FILE",
		Short: "Build a G-code file",
		Long: "Builds a G-code file on the machine. With --output the packets are written to a local .s3g file " +
			"instead, with --upload they are captured to the machine's SD card.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := &gcode.FileSource{Path: args[0]}
			c, err := g.newController()
			if err != nil {
				return err
			}
			defer c.Dispose()

			if estimate {
				d, lines, err := c.Estimate(src)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d lines, about %s\n", src.Name(), lines, d.Round(time.Second))
				return nil
			}

			c.SetSource(src)
			s := newSession(c, g.log)
			defer s.close()

			if output != "" {
				return s.run(cmd.Context(), func() error { return c.BuildToFile(output) })
			}
			if err := s.connect(cmd.Context()); err != nil {
				return err
			}
			switch {
			case simulate:
				return s.run(cmd.Context(), c.Simulate)
			case upload != "":
				return s.run(cmd.Context(), func() error { return c.Upload(upload) })
			}
			return s.run(cmd.Context(), c.Execute)
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "run against a simulated machine")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write packets to a local .s3g file")
	cmd.Flags().StringVar(&upload, "upload", "", "capture to this file on the machine's SD card")
	cmd.Flags().BoolVar(&estimate, "estimate", false, "only print the estimated build time")
	return cmd
}

func newPlayCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "play NAME",
		Short: "Build a file from the machine's SD card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.newController()
			if err != nil {
				return err
			}
			defer c.Dispose()

			s := newSession(c, g.log)
			defer s.close()
			if err := s.connect(cmd.Context()); err != nil {
				return err
			}
			return s.run(cmd.Context(), func() error { return c.BuildRemote(filepath.Base(args[0])) })
		},
	}
}

// session follows a controller's events for one command-line build.
type session struct {
	c      *machine.Controller
	log    logrus.FieldLogger
	states chan machine.Status
	l      *machine.ListenerFuncs
}

func newSession(c *machine.Controller, log logrus.FieldLogger) *session {
	s := &session{c: c, log: log, states: make(chan machine.Status, 64)}
	var last time.Time
	s.l = &machine.ListenerFuncs{
		OnState: func(ev machine.StateChangeEvent) {
			if ev.Previous.State != ev.Current.State {
				s.states <- ev.Current
			}
		},
		OnProgress: func(ev machine.ProgressEvent) {
			if time.Since(last) < time.Second && ev.LinesProcessed != ev.LinesTotal {
				return
			}
			last = time.Now()
			s.log.WithFields(logrus.Fields{
				"lines":     fmt.Sprintf("%d/%d", ev.LinesProcessed, ev.LinesTotal),
				"elapsed":   ev.Elapsed.Round(time.Second),
				"estimated": ev.Estimated.Round(time.Second),
			}).Info("progress")
		},
	}
	c.AddListener(s.l)
	return s
}

func (s *session) close() { s.c.RemoveListener(s.l) }

func (s *session) wait(ctx context.Context, done func(machine.Status) bool) (machine.Status, error) {
	for {
		select {
		case st := <-s.states:
			if done(st) {
				return st, nil
			}
		case <-ctx.Done():
			return s.c.Status(), ctx.Err()
		}
	}
}

func (s *session) connect(ctx context.Context) error {
	if err := s.c.Connect(); err != nil {
		return err
	}
	st, err := s.wait(ctx, func(st machine.Status) bool { return st.State != machine.Connecting })
	if err != nil {
		return err
	}
	if st.State != machine.Ready {
		return fmt.Errorf("connect: %s", st.Message())
	}
	return nil
}

// run starts a build and waits for it to end. An interrupt stops the
// build and waits for the machine to settle.
func (s *session) run(ctx context.Context, start func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sig, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := start(); err != nil {
		return err
	}
	started := false
	finished := func(st machine.Status) bool {
		if st.State.Running() {
			started = true
			return false
		}
		return started && st.State != machine.Stopping
	}

	st, err := s.wait(sig, finished)
	if err != nil {
		s.log.Warn("interrupted, stopping build")
		s.c.Stop()
		st, err = s.wait(ctx, finished)
		if err != nil {
			return err
		}
		return errors.New("build stopped")
	}
	if st.State == machine.Error || st.Err != nil {
		return fmt.Errorf("build failed: %s", st.Message())
	}
	s.log.Info("build finished")
	return nil
}
