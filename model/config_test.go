package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnomatos822/replicatorg/coord"
)

const thingOMatic = `
name: Thing-O-Matic
driver: makerbot4g
axes:
  x: {steps_per_mm: 47.069852, max_feedrate: 5000}
  y: {steps_per_mm: 47.069852, max_feedrate: 5000}
  z: {steps_per_mm: 200, max_feedrate: 1000}
  a: {steps_per_mm: 50.235478806907409, max_feedrate: 1600}
tools:
  - name: Mk6 Stepstruder
    index: 0
    step_axis: A
    motor:
      speed_rpm: 3
      steps_per_rev: 200
      direction: cw
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(thingOMatic))
	require.NoError(t, err)
	assert.Equal(t, "Thing-O-Matic", cfg.Name)
	assert.Nil(t, cfg.Leveling)

	m := cfg.Machine()
	assert.Equal(t, []coord.Axis{coord.X, coord.Y, coord.Z, coord.A}, m.AvailableAxes())
	assert.Equal(t, 200.0, m.StepsPerMM.Z)
	require.Len(t, m.Tools, 1)
	assert.Equal(t, "A", m.Tools[0].StepAxis)
	assert.Equal(t, Clockwise, m.Tools[0].MotorDirection)

	require.Empty(t, m.SeizeAxes())
	assert.False(t, m.HasAxis(coord.A))
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte(`
axes:
  w: {steps_per_mm: 0}
  x: {steps_per_mm: 10, max_feedrate: -1}
tools:
  - {index: 0, motor: {direction: sideways}}
  - {index: 0}
leveling:
  points: [[0, 0, 0]]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "axes.w: unknown axis")
	assert.Contains(t, err.Error(), "steps_per_mm must be positive")
	assert.Contains(t, err.Error(), "axes.x.max_feedrate must be positive")
	assert.Contains(t, err.Error(), "unknown motor direction")
	assert.Contains(t, err.Error(), "index 0 is repeated")
	assert.Contains(t, err.Error(), "at least 3 points")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(thingOMatic+`
leveling:
  points:
    - [0, 0, 0.1]
    - [100, 0, 0.2]
    - [0, 100, 0]
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Leveling)
	assert.Equal(t, 5.0, cfg.Leveling.Granularity)
	assert.Equal(t, coord.Point{X: 100, Z: 0.2}, cfg.Leveling.Probes()[1])
}

func TestParseConfig_DefaultMaxFeedrate(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
axes:
  x: {steps_per_mm: 100}
  z: {steps_per_mm: 400, max_feedrate: 150}
`))
	require.NoError(t, err)
	m := cfg.Machine()
	assert.Equal(t, DefaultMaxFeedrate, m.MaxFeedrate.X)
	assert.Equal(t, 150.0, m.MaxFeedrate.Z)
	assert.Equal(t, DefaultMaxFeedrate, m.SafeFeedrate(coord.Point{X: 10}, 0))
}
