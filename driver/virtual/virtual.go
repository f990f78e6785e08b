// Package virtual provides drivers with no hardware attached.
package virtual

import (
	"context"
	"time"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/model"
)

// machine implements every command against the model alone. Step is called
// with the duration of each timed command.
type machine struct {
	driver.Base
	name string
	step func(coord.Point, time.Duration)
}

func newMachine(name string, m *model.Machine, step func(coord.Point, time.Duration)) machine {
	base, _ := driver.NewBase(m)
	return machine{Base: base, name: name, step: step}
}

func (v *machine) Name() string                         { return v.name }
func (v *machine) Version() uint16                      { return 0 }
func (v *machine) Initialize(ctx context.Context) error { return nil }
func (v *machine) Abort() error                         { return nil }
func (v *machine) Pause() error                         { return nil }
func (v *machine) Reset() error                         { return nil }
func (v *machine) Close() error                         { return nil }

func (v *machine) ReconcilePosition() (coord.Point, error) {
	return v.CurrentPosition(), nil
}

func (v *machine) QueuePoint(target coord.Point, feedrate float64) error {
	plan, ok := v.PlanMove(target, feedrate)
	if !ok {
		return nil
	}
	v.CommitPosition(plan.Target)
	v.step(plan.Target, plan.Duration)
	return nil
}

func (v *machine) SetCurrentPosition(p coord.Point) error {
	v.CommitPosition(p)
	return nil
}

func (v *machine) Delay(d time.Duration) error {
	v.step(v.CurrentPosition(), d)
	return nil
}

func (v *machine) SelectTool(index int) error {
	return v.Machine().SelectTool(index)
}

func (v *machine) SetTemperature(tool int, c float64) error {
	return v.UpdateTool(tool, func(t *model.Tool) { t.TargetTemperature = c })
}

func (v *machine) SetPlatformTemperature(tool int, c float64) error {
	return v.UpdateTool(tool, func(t *model.Tool) { t.PlatformTargetTemperature = c })
}

func (v *machine) EnableMotor(tool int) error {
	return v.UpdateTool(tool, func(t *model.Tool) { t.MotorEnabled = true })
}

func (v *machine) DisableMotor(tool int) error {
	return v.UpdateTool(tool, func(t *model.Tool) { t.MotorEnabled = false })
}

func (v *machine) SetMotorDirection(tool int, dir model.Direction) error {
	return v.UpdateTool(tool, func(t *model.Tool) { t.MotorDirection = dir })
}

func (v *machine) SetMotorRPM(tool int, rpm float64) error {
	return v.UpdateTool(tool, func(t *model.Tool) { t.MotorSpeedRPM = rpm })
}

func (v *machine) SetFan(tool int, on bool) error {
	return v.UpdateTool(tool, func(t *model.Tool) { t.FanEnabled = on })
}

// ReadTemperature reports the tool as having reached its target.
func (v *machine) ReadTemperature(tool int) error {
	return v.UpdateTool(tool, func(t *model.Tool) { t.Temperature = t.TargetTemperature })
}

func (v *machine) WaitForTool(tool int, timeout time.Duration) error {
	_, err := v.Tool(tool)
	return err
}
