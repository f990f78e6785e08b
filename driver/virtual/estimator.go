package virtual

import (
	"time"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/model"
)

// Estimator accumulates the time a build would take without touching a
// machine. Give it a clone of the model; it changes tool state as commands
// run.
type Estimator struct {
	machine
	total time.Duration
}

var _ driver.Driver = &Estimator{}

func NewEstimator(m *model.Machine) *Estimator {
	e := &Estimator{}
	e.machine = newMachine("estimator", m, func(_ coord.Point, d time.Duration) {
		e.total += d
	})
	return e
}

// Total is the accumulated build time.
func (e *Estimator) Total() time.Duration { return e.total }
