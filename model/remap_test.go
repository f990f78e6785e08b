package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnomatos822/replicatorg/coord"
)

func newTestMachine(tools ...*Tool) *Machine {
	m := NewMachine("test", coord.X, coord.Y, coord.Z, coord.A, coord.B)
	m.StepsPerMM = coord.Point{X: 100, Y: 100, Z: 400, A: 50, B: 50}
	for _, t := range tools {
		m.AddTool(t)
	}
	return m
}

func TestSeizeAxes(t *testing.T) {
	m := newTestMachine(
		&Tool{Index: 0, Name: "extruder", StepAxis: "A"},
		&Tool{Index: 1, Name: "second", StepAxis: "a"},
		&Tool{Index: 2, Name: "bogus", StepAxis: "Q"},
	)

	errs := m.SeizeAxes()
	require.Len(t, errs, 2)

	var cfgErr *ConfigError
	require.ErrorAs(t, errs[0], &cfgErr)
	assert.Equal(t, "second", cfgErr.Tool)
	require.ErrorAs(t, errs[1], &cfgErr)
	assert.Equal(t, "bogus", cfgErr.Tool)

	assert.False(t, m.HasAxis(coord.A))
	assert.Equal(t, []coord.Axis{coord.X, coord.Y, coord.Z, coord.B}, m.AvailableAxes())
	assert.Equal(t, "extruder", m.SeizedBy(coord.A).Name)
}

func TestSeizeAxes_Unavailable(t *testing.T) {
	m := NewMachine("xyz", coord.X, coord.Y, coord.Z)
	m.AddTool(&Tool{Index: 0, Name: "extruder", StepAxis: "B"})

	errs := m.SeizeAxes()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "unavailable")
	assert.Empty(t, m.SeizedAxes())
}

func TestRemapMove(t *testing.T) {
	tool := &Tool{
		Index:            0,
		Name:             "extruder",
		StepAxis:         "A",
		MotorSpeedRPM:    2,
		MotorStepsPerRev: 200,
		MotorDirection:   Clockwise,
		MotorEnabled:     true,
	}
	m := newTestMachine(tool)
	require.Empty(t, m.SeizeAxes())

	prev := coord.Point{A: 10}
	// 30mm at 60mm/min takes half a minute
	target := coord.Point{X: 30, A: 999}
	res, feed := m.RemapMove(prev, target, 60)

	// 2rpm * 0.5min * 200 steps/rev = 200 steps = 4mm on A, clockwise negative
	assert.InDelta(t, 6.0, res.A, 1e-9)
	assert.Equal(t, 30.0, res.X)
	// axis feedrate is 4mm / 0.5min = 8mm/min
	assert.InDelta(t, 60.5310, feed, 1e-3)

	tool.MotorDirection = CounterClockwise
	res, _ = m.RemapMove(prev, target, 60)
	assert.InDelta(t, 14.0, res.A, 1e-9)
}

func TestRemapMove_Disabled(t *testing.T) {
	tool := &Tool{Index: 0, Name: "extruder", StepAxis: "A", MotorSpeedRPM: 2, MotorStepsPerRev: 200}
	other := &Tool{Index: 1, Name: "other", MotorEnabled: true}
	m := newTestMachine(tool, other)
	require.Empty(t, m.SeizeAxes())

	prev := coord.Point{A: 10}
	res, feed := m.RemapMove(prev, coord.Point{X: 30, A: 5}, 60)
	assert.Equal(t, 10.0, res.A)
	assert.Equal(t, 60.0, feed)

	// enabled, but another tool is current
	tool.MotorEnabled = true
	require.NoError(t, m.SelectTool(1))
	res, _ = m.RemapMove(prev, coord.Point{X: 30}, 60)
	assert.Equal(t, 10.0, res.A)
}

func TestMachine_Clone(t *testing.T) {
	m := newTestMachine(&Tool{Index: 0, Name: "extruder", StepAxis: "B"})
	require.Empty(t, m.SeizeAxes())

	c := m.Clone()
	c.Tools[0].MotorEnabled = true
	assert.False(t, m.Tools[0].MotorEnabled)
	assert.Same(t, c.Tools[0], c.SeizedBy(coord.B))
	assert.False(t, c.HasAxis(coord.B))
}

func TestSafeFeedrate(t *testing.T) {
	m := newTestMachine()
	m.MaxFeedrate = coord.Point{X: 1000, Y: 1000, Z: 100}

	assert.Equal(t, 500.0, m.SafeFeedrate(coord.Point{X: 10}, 500))
	assert.Equal(t, 100.0, m.SafeFeedrate(coord.Point{Z: 1}, 500))
	assert.Equal(t, 1000.0, m.SafeFeedrate(coord.Point{X: 10}, 0))

	m.MaxFeedrate = coord.Point{}
	assert.Equal(t, DefaultMaxFeedrate, m.SafeFeedrate(coord.Point{X: 10}, 0))
	assert.Equal(t, 300.0, m.SafeFeedrate(coord.Point{X: 10}, 300))
}
