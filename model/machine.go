// Package model describes a machine: its axes, step resolution and tools.
package model

import (
	"errors"
	"math"

	"github.com/magnomatos822/replicatorg/coord"
)

// DefaultMaxFeedrate is the axis limit in mm/min used when a machine
// description does not give one.
const DefaultMaxFeedrate = 5000.0

// Machine is the set of available axes, tools and per-axis conversion factors.
//
// A Machine is owned by a single driver; use Clone to hand a copy elsewhere.
type Machine struct {
	Name string

	StepsPerMM  coord.Point
	MaxFeedrate coord.Point

	Tools []*Tool

	axes    map[coord.Axis]bool
	seized  map[coord.Axis]*Tool
	current int
}

// NewMachine creates a model with the given axes available.
func NewMachine(name string, axes ...coord.Axis) *Machine {
	m := &Machine{
		Name:   name,
		axes:   make(map[coord.Axis]bool, len(axes)),
		seized: make(map[coord.Axis]*Tool),
	}
	for _, a := range axes {
		m.axes[a] = true
	}
	return m
}

// HasAxis reports whether a is available for motion.
func (m *Machine) HasAxis(a coord.Axis) bool { return m.axes[a] }

// AvailableAxes returns the motion axes in packet order.
func (m *Machine) AvailableAxes() []coord.Axis {
	var res []coord.Axis
	for _, a := range coord.Axes {
		if m.axes[a] {
			res = append(res, a)
		}
	}
	return res
}

func (m *Machine) removeAxis(a coord.Axis) { delete(m.axes, a) }

// AddTool appends a tool; the first tool added becomes current.
func (m *Machine) AddTool(t *Tool) {
	if len(m.Tools) == 0 {
		m.current = t.Index
	}
	m.Tools = append(m.Tools, t)
}

// Tool returns the tool with the given index, or nil.
func (m *Machine) Tool(index int) *Tool {
	for _, t := range m.Tools {
		if t.Index == index {
			return t
		}
	}
	return nil
}

// CurrentTool returns the selected tool, or nil if the machine has none.
func (m *Machine) CurrentTool() *Tool {
	return m.Tool(m.current)
}

// SelectTool makes the tool with the given index current.
func (m *Machine) SelectTool(index int) error {
	if m.Tool(index) == nil {
		return errors.New("no such tool")
	}
	m.current = index
	return nil
}

// MMToSteps converts a position into integer step counts per axis.
func (m *Machine) MMToSteps(p coord.Point) coord.Point {
	return p.Scale(m.StepsPerMM).Round()
}

// StepsToMM converts step counts back into millimeters.
func (m *Machine) StepsToMM(steps coord.Point) coord.Point {
	var p coord.Point
	for _, a := range coord.Axes {
		spm := m.StepsPerMM.Axis(a)
		if spm == 0 {
			continue
		}
		p = p.SetAxis(a, steps.Axis(a)/spm)
	}
	return p
}

// SafeFeedrate limits feedrate (mm/min) so that no axis exceeds its maximum
// along the direction of delta. A zero feedrate selects the fastest safe rate,
// or DefaultMaxFeedrate when no moving axis has a maximum.
func (m *Machine) SafeFeedrate(delta coord.Point, feedrate float64) float64 {
	length := delta.Length()
	if length == 0 {
		return feedrate
	}
	if feedrate <= 0 {
		feedrate = math.Inf(1)
	}
	for _, a := range coord.Axes {
		max := m.MaxFeedrate.Axis(a)
		d := math.Abs(delta.Axis(a))
		if max <= 0 || d == 0 {
			continue
		}
		if axisRate := feedrate * d / length; axisRate > max {
			feedrate = max * length / d
		}
	}
	if math.IsInf(feedrate, 1) {
		return DefaultMaxFeedrate
	}
	return feedrate
}

// Clone returns a deep copy. Seized-axis ownership is carried over to the
// cloned tools.
func (m *Machine) Clone() *Machine {
	c := &Machine{
		Name:        m.Name,
		StepsPerMM:  m.StepsPerMM,
		MaxFeedrate: m.MaxFeedrate,
		axes:        make(map[coord.Axis]bool, len(m.axes)),
		seized:      make(map[coord.Axis]*Tool, len(m.seized)),
		current:     m.current,
	}
	for a, ok := range m.axes {
		c.axes[a] = ok
	}
	byIndex := make(map[*Tool]*Tool, len(m.Tools))
	for _, t := range m.Tools {
		ct := t.Clone()
		byIndex[t] = ct
		c.Tools = append(c.Tools, ct)
	}
	for a, t := range m.seized {
		c.seized[a] = byIndex[t]
	}
	return c
}
