package driver

import (
	"fmt"
	"time"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/model"
)

// Command is a single driver-level operation produced from a source line.
//
// Run must be safe to repeat: motion targets are absolute, so re-running a
// command after a transient failure re-asserts the same state.
type Command interface {
	Run(d Driver) error
}

// ToolCommand is a command that changes the state of a tool.
type ToolCommand interface {
	Command
	ToolIndex() int
}

type Move struct {
	Target   coord.Point
	Feedrate float64
}

func (c Move) Run(d Driver) error { return d.QueuePoint(c.Target, c.Feedrate) }
func (c Move) String() string     { return fmt.Sprintf("move %s F%g", c.Target, c.Feedrate) }

type SetPosition struct {
	Position coord.Point
}

func (c SetPosition) Run(d Driver) error { return d.SetCurrentPosition(c.Position) }
func (c SetPosition) String() string     { return "set position " + c.Position.String() }

type Delay struct {
	Duration time.Duration
}

func (c Delay) Run(d Driver) error { return d.Delay(c.Duration) }
func (c Delay) String() string     { return "delay " + c.Duration.String() }

type SelectTool struct {
	Tool int
}

func (c SelectTool) Run(d Driver) error { return d.SelectTool(c.Tool) }
func (c SelectTool) ToolIndex() int     { return c.Tool }
func (c SelectTool) String() string     { return fmt.Sprintf("select tool %d", c.Tool) }

type SetTemperature struct {
	Tool    int
	Celsius float64
}

func (c SetTemperature) Run(d Driver) error { return d.SetTemperature(c.Tool, c.Celsius) }
func (c SetTemperature) ToolIndex() int     { return c.Tool }
func (c SetTemperature) String() string {
	return fmt.Sprintf("tool %d temperature %gC", c.Tool, c.Celsius)
}

type SetPlatformTemperature struct {
	Tool    int
	Celsius float64
}

func (c SetPlatformTemperature) Run(d Driver) error {
	return d.SetPlatformTemperature(c.Tool, c.Celsius)
}
func (c SetPlatformTemperature) ToolIndex() int { return c.Tool }
func (c SetPlatformTemperature) String() string {
	return fmt.Sprintf("tool %d platform temperature %gC", c.Tool, c.Celsius)
}

type EnableMotor struct {
	Tool int
}

func (c EnableMotor) Run(d Driver) error { return d.EnableMotor(c.Tool) }
func (c EnableMotor) ToolIndex() int     { return c.Tool }
func (c EnableMotor) String() string     { return fmt.Sprintf("tool %d motor on", c.Tool) }

type DisableMotor struct {
	Tool int
}

func (c DisableMotor) Run(d Driver) error { return d.DisableMotor(c.Tool) }
func (c DisableMotor) ToolIndex() int     { return c.Tool }
func (c DisableMotor) String() string     { return fmt.Sprintf("tool %d motor off", c.Tool) }

type SetMotorDirection struct {
	Tool      int
	Direction model.Direction
}

func (c SetMotorDirection) Run(d Driver) error { return d.SetMotorDirection(c.Tool, c.Direction) }
func (c SetMotorDirection) ToolIndex() int     { return c.Tool }
func (c SetMotorDirection) String() string {
	return fmt.Sprintf("tool %d motor %s", c.Tool, c.Direction)
}

type SetMotorRPM struct {
	Tool int
	RPM  float64
}

func (c SetMotorRPM) Run(d Driver) error { return d.SetMotorRPM(c.Tool, c.RPM) }
func (c SetMotorRPM) ToolIndex() int     { return c.Tool }
func (c SetMotorRPM) String() string     { return fmt.Sprintf("tool %d motor %grpm", c.Tool, c.RPM) }

type SetFan struct {
	Tool int
	On   bool
}

func (c SetFan) Run(d Driver) error { return d.SetFan(c.Tool, c.On) }
func (c SetFan) ToolIndex() int     { return c.Tool }
func (c SetFan) String() string     { return fmt.Sprintf("tool %d fan %t", c.Tool, c.On) }

type ReadTemperature struct {
	Tool int
}

func (c ReadTemperature) Run(d Driver) error { return d.ReadTemperature(c.Tool) }
func (c ReadTemperature) ToolIndex() int     { return c.Tool }
func (c ReadTemperature) String() string     { return fmt.Sprintf("read tool %d temperature", c.Tool) }

type WaitForTool struct {
	Tool    int
	Timeout time.Duration
}

func (c WaitForTool) Run(d Driver) error { return d.WaitForTool(c.Tool, c.Timeout) }
func (c WaitForTool) ToolIndex() int     { return c.Tool }
func (c WaitForTool) String() string     { return fmt.Sprintf("wait for tool %d", c.Tool) }
