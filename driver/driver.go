// Package driver defines what the machine worker needs from a machine
// implementation, the commands it executes, and the motion planning shared
// by hardware and virtual drivers.
package driver

import (
	"context"
	"time"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/model"
)

// Querier reads machine state.
type Querier interface {
	// Name identifies the protocol variant, e.g. "Makerbot4G".
	Name() string
	// Version is the firmware version reported at handshake.
	Version() uint16
	Machine() *model.Machine
	CurrentPosition() coord.Point
	// ReconcilePosition asks the hardware where it is.
	ReconcilePosition() (coord.Point, error)
}

// Mover executes motion commands.
type Mover interface {
	// QueuePoint moves to target (mm) at feedrate (mm/min). A move that does
	// not change any axis by at least one step is skipped.
	QueuePoint(target coord.Point, feedrate float64) error
	// SetCurrentPosition declares the machine to be at p without moving.
	SetCurrentPosition(p coord.Point) error
	Delay(d time.Duration) error
}

// Tooler executes tool commands.
type Tooler interface {
	SelectTool(index int) error
	SetTemperature(tool int, celsius float64) error
	SetPlatformTemperature(tool int, celsius float64) error
	EnableMotor(tool int) error
	DisableMotor(tool int) error
	SetMotorDirection(tool int, dir model.Direction) error
	SetMotorRPM(tool int, rpm float64) error
	SetFan(tool int, on bool) error
	WaitForTool(tool int, timeout time.Duration) error
	// ReadTemperature stores the current tool temperature in the model.
	ReadTemperature(tool int) error
}

// Capturer records commands on the machine's storage card and plays them
// back.
type Capturer interface {
	BeginCapture(name string) error
	// EndCapture closes the capture and returns the number of bytes written.
	EndCapture() (uint32, error)
	Playback(name string) error
	// IsFinished reports whether the machine has drained all queued work.
	IsFinished() (bool, error)
}

// Driver is a complete machine implementation. It is owned by exactly one
// worker and is not safe for concurrent use.
type Driver interface {
	Querier
	Mover
	Tooler

	// Initialize performs the connection handshake.
	Initialize(ctx context.Context) error
	// Abort stops all motion and clears queued commands.
	Abort() error
	// Pause toggles the firmware pause state.
	Pause() error
	// Reset restarts the firmware.
	Reset() error
	Close() error
}
