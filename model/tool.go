package model

import (
	"fmt"
	"strings"
)

// Direction is the rotation direction of a tool motor.
type Direction int

const (
	Clockwise Direction = iota
	CounterClockwise
)

func (d Direction) String() string {
	if d == CounterClockwise {
		return "ccw"
	}
	return "cw"
}

// ParseDirection accepts "cw", "clockwise", "ccw" and "counterclockwise".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cw", "clockwise":
		return Clockwise, nil
	case "ccw", "counterclockwise", "counter-clockwise":
		return CounterClockwise, nil
	}
	return Clockwise, fmt.Errorf("unknown motor direction %q", s)
}

// Tool describes an auxiliary motor (extruder, spindle) mounted on the machine.
type Tool struct {
	Index int
	Name  string

	MotorSpeedRPM    float64
	MotorStepsPerRev float64
	MotorDirection   Direction
	MotorEnabled     bool

	// StepAxis is the raw axis designator from the machine description.
	// Empty means the tool does not seize an axis.
	StepAxis string

	// Temperature is the last temperature read from the tool.
	Temperature               float64
	TargetTemperature         float64
	PlatformTargetTemperature float64
	FanEnabled                bool
}

// Clone returns a copy of t.
func (t *Tool) Clone() *Tool {
	c := *t
	return &c
}
