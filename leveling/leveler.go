package leveling

import (
	"math"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/gcode"
	"github.com/magnomatos822/replicatorg/model"
)

// Leveler wraps a translator, splitting long moves into segments no longer
// than the granularity in XY and raising or lowering each segment's Z by
// the bed offset at its end.
type Leveler struct {
	next        gcode.Translator
	offsetter   ZOffsetter
	granularity float64

	last coord.Point
}

var _ gcode.Translator = &Leveler{}

func New(next gcode.Translator, offsetter ZOffsetter, granularity float64) *Leveler {
	return &Leveler{next: next, offsetter: offsetter, granularity: granularity}
}

// FromConfig builds a mesh from the machine's leveling description and
// wraps next with it.
func FromConfig(next gcode.Translator, cfg *model.LevelingConfig) (*Leveler, error) {
	mesh, err := NewMesh(OffsetFrom(cfg.Reference, cfg.Probes()))
	if err != nil {
		return nil, err
	}
	return New(next, mesh, cfg.Granularity), nil
}

func (l *Leveler) Reset(pos coord.Point) {
	l.next.Reset(pos)
	l.last = pos
}

func (l *Leveler) Line(s string) ([]driver.Command, error) {
	cmds, err := l.next.Line(s)
	if err != nil {
		return nil, err
	}

	var res []driver.Command
	for _, c := range cmds {
		switch c := c.(type) {
		case driver.Move:
			res = append(res, l.split(c)...)
			l.last = c.Target
		case driver.SetPosition:
			res = append(res, c)
			l.last = c.Position
		default:
			res = append(res, c)
		}
	}
	return res, nil
}

func (l *Leveler) split(m driver.Move) []driver.Command {
	n := 1
	if dist := l.last.DistanceXY(m.Target.X, m.Target.Y); l.granularity > 0 && dist > l.granularity {
		n = int(math.Ceil(dist / l.granularity))
	}

	res := make([]driver.Command, 0, n)
	for _, p := range l.last.Split(m.Target, n) {
		if ok, off := l.offsetter.OffsetZ(p.X, p.Y); ok {
			p.Z += off
		}
		res = append(res, driver.Move{Target: p, Feedrate: m.Feedrate})
	}
	return res
}
