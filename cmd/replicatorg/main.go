package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/magnomatos822/replicatorg/driver/s3g"
	"github.com/magnomatos822/replicatorg/gcode"
	"github.com/magnomatos822/replicatorg/leveling"
	"github.com/magnomatos822/replicatorg/machine"
	"github.com/magnomatos822/replicatorg/model"
	"github.com/magnomatos822/replicatorg/port"
	"github.com/magnomatos822/replicatorg/protocol"
)

// Version is set via ldflags at build time.
var Version = "dev"

// defaultMachine is used when no machine description is given.
const defaultMachine = `
name: Cupcake CNC
driver: makerbot4g
axes:
  x: {steps_per_mm: 11.767463, max_feedrate: 5000}
  y: {steps_per_mm: 11.767463, max_feedrate: 5000}
  z: {steps_per_mm: 320, max_feedrate: 150}
tools:
  - name: extruder
    index: 0
    motor: {speed_rpm: 1.98, steps_per_rev: 200, direction: cw}
`

type globalOptions struct {
	logLevel    string
	machinePath string
	port        string
	baud        int
	bridge      string

	log *logrus.Logger
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func newLogger(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if level == "off" || level == "none" {
		logger.SetOutput(io.Discard)
		return logger
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetOutput(out)
	return logger
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "replicatorg",
		Short:         "Drive s3g fabrication machines",
		Long:          "replicatorg sends G-code builds to Makerbot-class machines over serial, to the machine's SD card, or to .s3g files.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			g.log = newLogger(g.logLevel, cmd.ErrOrStderr())
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&g.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (debug, info, warn, error, off)")
	f.StringVarP(&g.machinePath, "machine", "m", os.Getenv("REPG_MACHINE"), "machine description (YAML)")
	f.StringVarP(&g.port, "port", "p", envOr("REPG_PORT", "/dev/ttyUSB0"), "serial port (or port name on the bridge)")
	f.IntVar(&g.baud, "baud", envInt("REPG_BAUD", port.DefaultBaud), "serial baud rate")
	f.StringVar(&g.bridge, "bridge", os.Getenv("REPG_BRIDGE"), "websocket URL of a serial bridge")

	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newBuildCmd(g))
	cmd.AddCommand(newPlayCmd(g))
	cmd.AddCommand(newPortsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "replicatorg %s (host protocol %d)\n", Version, s3g.HostVersion)
		},
	}
}

func (g *globalOptions) loadMachine() (*model.Config, error) {
	if g.machinePath == "" {
		return model.ParseConfig([]byte(defaultMachine))
	}
	return model.LoadConfig(g.machinePath)
}

// newController builds a controller for the configured machine and port.
func (g *globalOptions) newController() (*machine.Controller, error) {
	cfg, err := g.loadMachine()
	if err != nil {
		return nil, err
	}
	variant, err := protocol.VariantByName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	newInterpreter := func() gcode.Translator { return gcode.NewInterpreter() }
	if cfg.Leveling != nil {
		if _, err := leveling.FromConfig(gcode.NewInterpreter(), cfg.Leveling); err != nil {
			return nil, fmt.Errorf("leveling: %w", err)
		}
		newInterpreter = func() gcode.Translator {
			l, _ := leveling.FromConfig(gcode.NewInterpreter(), cfg.Leveling)
			return l
		}
		g.log.WithField("points", len(cfg.Leveling.Points)).Info("bed leveling enabled")
	}

	return machine.New(machine.Options{
		Dial: port.Dialer(port.Config{
			Name:   g.port,
			Baud:   g.baud,
			Bridge: g.bridge,
			Logger: g.log,
		}),
		Model:          cfg.Machine(),
		Variant:        variant,
		NewInterpreter: newInterpreter,
		Logger:         g.log,
	})
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "replicatorg:", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
