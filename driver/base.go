package driver

import (
	"fmt"
	"math"
	"time"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/model"
)

// Base holds the state every driver keeps: the machine model and the last
// committed position. Drivers embed it.
type Base struct {
	model *model.Machine
	pos   coord.Point
}

// NewBase binds m to a driver. Tools declaring a step axis seize it here;
// configuration problems are returned for logging and do not prevent use.
func NewBase(m *model.Machine) (Base, []error) {
	errs := m.SeizeAxes()
	return Base{model: m}, errs
}

func (b *Base) Machine() *model.Machine { return b.model }

func (b *Base) CurrentPosition() coord.Point { return b.pos }

// CommitPosition records p as the current position. Call only after the
// command that moved there succeeded, or after reconciling.
func (b *Base) CommitPosition(p coord.Point) { b.pos = p }

// Plan is a move ready to encode.
type Plan struct {
	// Target in mm, with seized axes rewritten.
	Target coord.Point
	// Steps is Target in absolute steps.
	Steps coord.Point
	// Feedrate is the combined feedrate in mm/min.
	Feedrate float64
	// Duration of the move, at least one microsecond.
	Duration time.Duration
	// DDA is the microseconds between steps of the longest axis.
	DDA uint32
}

// Micros is the move duration in whole microseconds.
func (p Plan) Micros() uint32 {
	return uint32(p.Duration / time.Microsecond)
}

// PlanMove prepares a move from the current position to target at feedrate
// (mm/min). ok is false when no axis would move by a whole step once seized
// axes are rewritten.
func (b *Base) PlanMove(target coord.Point, feedrate float64) (plan Plan, ok bool) {
	m := b.model
	prev := b.pos

	prevSteps := m.MMToSteps(prev)
	if m.MMToSteps(target).Sub(prevSteps).Longest() == 0 {
		return Plan{}, false
	}

	feedrate = m.SafeFeedrate(target.Sub(prev), feedrate)
	target, feedrate = m.RemapMove(prev, target, feedrate)

	plan = Plan{
		Target:   target,
		Steps:    m.MMToSteps(target),
		Feedrate: feedrate,
	}
	longest := plan.Steps.Sub(prevSteps).Longest()
	if longest == 0 {
		return Plan{}, false
	}
	if feedrate > 0 {
		minutes := target.Sub(prev).Length() / feedrate
		plan.Duration = time.Duration(minutes * float64(time.Minute))
	}
	if plan.Duration < time.Microsecond {
		plan.Duration = time.Microsecond
	}
	plan.DDA = uint32(math.Round(float64(plan.Duration/time.Microsecond) / longest))
	return plan, true
}

// Tool returns the tool with the given index.
func (b *Base) Tool(index int) (*model.Tool, error) {
	t := b.model.Tool(index)
	if t == nil {
		return nil, fmt.Errorf("no tool %d", index)
	}
	return t, nil
}

// UpdateTool applies fn to a tool after its hardware command succeeded.
func (b *Base) UpdateTool(index int, fn func(t *model.Tool)) error {
	t, err := b.Tool(index)
	if err != nil {
		return err
	}
	fn(t)
	return nil
}
