package leveling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/gcode"
	"github.com/magnomatos822/replicatorg/model"
)

// probes indicate a rise of 30mm over 100mm, or .3mm Z for every 1mm X
var probes = []coord.Point{
	{X: 0, Y: 0, Z: 0},
	{X: 0, Y: 100, Z: 0},
	{X: 100, Y: 0, Z: 30},
	{X: 100, Y: 100, Z: 30},
}

func TestMesh_OffsetZ(t *testing.T) {
	mesh, err := NewMesh(probes)
	require.NoError(t, err)

	ok, z := mesh.OffsetZ(50, 50)
	assert.True(t, ok)
	assert.InDelta(t, 15, z, 1e-9)

	ok, z = mesh.OffsetZ(100, 0)
	assert.True(t, ok)
	assert.InDelta(t, 30, z, 1e-9)

	ok, _ = mesh.OffsetZ(150, 50)
	assert.False(t, ok)

	_, err = NewMesh(probes[:2])
	assert.Error(t, err)
}

func TestTriangle(t *testing.T) {
	tri := Triangle{A: coord.Point{}, B: coord.Point{X: 10}, C: coord.Point{Y: 10, Z: 5}}
	assert.True(t, tri.ContainsXY(1, 1))
	assert.True(t, tri.ContainsXY(5, 5))
	assert.False(t, tri.ContainsXY(6, 6))
	assert.InDelta(t, 2.5, tri.Z(0, 5), 1e-9)
}

func TestLeveler(t *testing.T) {
	mesh, err := NewMesh(probes)
	require.NoError(t, err)

	l := New(gcode.NewInterpreter(), mesh, 1)
	l.Reset(coord.Point{X: 50, Y: 50, Z: 1})

	cmds, err := l.Line("G1 X53 F600")
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	for i, c := range cmds {
		m := c.(driver.Move)
		x := 51 + float64(i)
		assert.InDelta(t, x, m.Target.X, 1e-9)
		assert.InDelta(t, 1+x*0.3, m.Target.Z, 1e-9)
		assert.Equal(t, 600.0, m.Feedrate)
	}

	cmds, err = l.Line("M104 S200")
	require.NoError(t, err)
	assert.Equal(t, []driver.Command{driver.SetTemperature{Tool: 0, Celsius: 200}}, cmds)
}

func TestFromConfig(t *testing.T) {
	cfg := &model.LevelingConfig{
		Granularity: 5,
		Reference:   10,
		Points:      [][3]float64{{0, 0, 10}, {0, 100, 10}, {100, 0, 12}},
	}
	l, err := FromConfig(gcode.NewInterpreter(), cfg)
	require.NoError(t, err)

	ok, z := l.offsetter.OffsetZ(50, 0)
	assert.True(t, ok)
	assert.InDelta(t, 1, z, 1e-9)
}
