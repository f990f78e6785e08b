package virtual

import (
	"time"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/model"
)

// Simulator runs a build against the model, recording the toolpath. With a
// non-zero Speedup it sleeps for each move's duration divided by Speedup, so
// a simulated build paces like a real one.
type Simulator struct {
	machine

	Speedup float64

	path    []coord.Point
	elapsed time.Duration
}

var _ driver.Driver = &Simulator{}

func NewSimulator(m *model.Machine) *Simulator {
	s := &Simulator{}
	s.machine = newMachine("simulator", m, s.step)
	return s
}

func (s *Simulator) step(p coord.Point, d time.Duration) {
	s.path = append(s.path, p)
	s.elapsed += d
	if s.Speedup > 0 && d > 0 {
		time.Sleep(time.Duration(float64(d) / s.Speedup))
	}
}

// Path returns every position visited, in order.
func (s *Simulator) Path() []coord.Point { return s.path }

// Elapsed is the simulated machine time.
func (s *Simulator) Elapsed() time.Duration { return s.elapsed }
