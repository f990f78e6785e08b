package model

import (
	"fmt"
	"math"

	"github.com/magnomatos822/replicatorg/coord"
)

// ConfigError reports a tool whose axis declaration could not be honored.
// The tool keeps working, just without axis control.
type ConfigError struct {
	Tool       string
	Designator string
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("tool %q: step axis %q: %s", e.Tool, e.Designator, e.Reason)
}

// SeizeAxes hands every axis declared by a tool's StepAxis over to that tool.
// A seized axis is removed from the available axes and is never again
// addressable as a motion axis.
//
// Problems are returned, not fatal: the affected tool simply operates without
// a seized axis. A tool that already owns its axis is skipped.
func (m *Machine) SeizeAxes() []error {
	var errs []error
	for _, t := range m.Tools {
		if t.StepAxis == "" {
			continue
		}
		a, err := coord.ParseAxis(t.StepAxis)
		if err != nil {
			errs = append(errs, &ConfigError{Tool: t.Name, Designator: t.StepAxis, Reason: "unintelligible axis designator"})
			continue
		}
		owner, ok := m.seized[a]
		if owner == t {
			continue
		}
		if ok {
			errs = append(errs, &ConfigError{Tool: t.Name, Designator: t.StepAxis, Reason: fmt.Sprintf("already claimed by tool %q", owner.Name)})
			continue
		}
		if !m.HasAxis(a) {
			errs = append(errs, &ConfigError{Tool: t.Name, Designator: t.StepAxis, Reason: "axis unavailable"})
			continue
		}
		m.seized[a] = t
		m.removeAxis(a)
	}
	return errs
}

// SeizedBy returns the tool that owns axis a, if any.
func (m *Machine) SeizedBy(a coord.Axis) *Tool { return m.seized[a] }

// SeizedAxes returns the seized axes in packet order.
func (m *Machine) SeizedAxes() []coord.Axis {
	var res []coord.Axis
	for _, a := range coord.Axes {
		if m.seized[a] != nil {
			res = append(res, a)
		}
	}
	return res
}

// RemapMove rewrites the seized axes of a move from prev to target.
//
// For each seized axis whose owning tool is current and has its motor
// enabled, the axis target becomes prev plus the distance the motor turns
// during the move (signed by direction, clockwise negative), and the
// feedrate becomes the euclidean norm of the original and the axis
// feedrate. Otherwise the axis holds its previous value.
//
// feedrate is in mm/min.
func (m *Machine) RemapMove(prev, target coord.Point, feedrate float64) (coord.Point, float64) {
	if len(m.seized) == 0 {
		return target, feedrate
	}

	delta := target.Sub(prev)
	for a := range m.seized {
		delta = delta.SetAxis(a, 0)
	}
	var minutes float64
	if feedrate > 0 {
		minutes = delta.Length() / feedrate
	}

	combined := feedrate
	cur := m.CurrentTool()
	for _, a := range m.SeizedAxes() {
		owner := m.seized[a]
		pos := prev.Axis(a)
		spm := m.StepsPerMM.Axis(a)
		if owner == cur && owner.MotorEnabled && spm > 0 && minutes > 0 {
			steps := owner.MotorSpeedRPM * minutes * owner.MotorStepsPerRev
			mm := steps / spm
			if owner.MotorDirection == Clockwise {
				pos -= mm
			} else {
				pos += mm
			}
			axisFeed := mm / minutes
			combined = math.Sqrt(combined*combined + axisFeed*axisFeed)
		}
		target = target.SetAxis(a, pos)
	}
	return target, combined
}
