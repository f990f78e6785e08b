package virtual

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/model"
)

func testMachine() *model.Machine {
	m := model.NewMachine("test", coord.X, coord.Y, coord.Z)
	m.StepsPerMM = coord.Point{X: 100, Y: 100, Z: 400}
	m.AddTool(&model.Tool{Index: 0, Name: "extruder"})
	return m
}

func TestEstimator(t *testing.T) {
	e := NewEstimator(testMachine())

	cmds := []driver.Command{
		driver.Move{Target: coord.Point{X: 10}, Feedrate: 600},
		driver.Move{Target: coord.Point{X: 10, Y: 20}, Feedrate: 1200},
		driver.Move{Target: coord.Point{X: 10, Y: 20}, Feedrate: 1200},
		driver.Delay{Duration: 2 * time.Second},
		driver.SetTemperature{Tool: 0, Celsius: 200},
	}
	for _, c := range cmds {
		require.NoError(t, c.Run(e))
	}

	assert.InDelta(t, 4.0, e.Total().Seconds(), 1e-6)
	assert.Equal(t, 200.0, e.Machine().Tool(0).TargetTemperature)
	assert.Error(t, driver.SelectTool{Tool: 3}.Run(e))
}

func TestSimulator(t *testing.T) {
	s := NewSimulator(testMachine())

	require.NoError(t, s.QueuePoint(coord.Point{X: 1}, 600))
	require.NoError(t, s.QueuePoint(coord.Point{X: 1, Y: 1}, 600))
	require.NoError(t, s.SetCurrentPosition(coord.Point{}))

	assert.Equal(t, []coord.Point{{X: 1}, {X: 1, Y: 1}}, s.Path())
	assert.InDelta(t, 0.2, s.Elapsed().Seconds(), 1e-6)

	p, err := s.ReconcilePosition()
	require.NoError(t, err)
	assert.Equal(t, coord.Point{}, p)
}
