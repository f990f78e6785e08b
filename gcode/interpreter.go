package gcode

import (
	"fmt"
	"time"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/model"
)

// DefaultToolTimeout bounds M6 waits that do not give one.
const DefaultToolTimeout = 2 * time.Minute

// UnsupportedError is returned for words the interpreter does not know.
// The rest of the build is unaffected.
type UnsupportedError struct {
	Word Word
}

func (e *UnsupportedError) Error() string { return "unsupported code: " + e.Word.String() }

// Translator turns source lines into driver commands. Reset is called at
// the start of every pass with the machine position.
type Translator interface {
	Reset(pos coord.Point)
	Line(s string) ([]driver.Command, error)
}

var _ Translator = &Interpreter{}

// Interpreter tracks modal state and turns blocks into driver commands.
type Interpreter struct {
	pos   coord.Point
	modal [256]float64
	feed  float64
	tool  int
}

// NewInterpreter constructs an interpreter in absolute millimeter mode.
func NewInterpreter() *Interpreter {
	in := &Interpreter{}
	in.Reset(coord.Point{})
	return in
}

// Reset restores default modes and sets the starting position.
func (in *Interpreter) Reset(pos coord.Point) {
	in.pos = pos
	in.modal = [256]float64{}
	in.modal[ModalGroupMotion] = 0
	in.modal[ModalGroupDistanceMode] = 90
	in.modal[ModalGroupUnits] = 21
}

func (in *Interpreter) Inches() bool         { return in.modal[ModalGroupUnits] == 20 }
func (in *Interpreter) RelativeMotion() bool { return in.modal[ModalGroupDistanceMode] == 91 }

// Position is the target of the last motion.
func (in *Interpreter) Position() coord.Point { return in.pos }

// Feedrate is the modal feedrate in mm/min.
func (in *Interpreter) Feedrate() float64 { return in.feed }

// Tool is the index of the selected tool.
func (in *Interpreter) Tool() int { return in.tool }

// Line parses and runs one line of text.
func (in *Interpreter) Line(s string) ([]driver.Command, error) {
	b, err := ParseLine(s)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	return in.Run(b)
}

func (in *Interpreter) scale() float64 {
	if in.Inches() {
		return 25.4
	}
	return 1
}

func isSupported(g Word) bool {
	switch g.W {
	case 'X', 'Y', 'Z', 'A', 'B', 'F', 'S', 'P', 'R', 'T':
		return true
	case 'G':
		switch g.Arg {
		case 0, 1, 4, 20, 21, 90, 91, 92:
			return true
		}
	case 'M':
		switch g.Arg {
		case 0, 1, 2, 6, 18, 30, 101, 102, 103, 104, 105, 106, 107, 108, 109, 140:
			return true
		}
	}
	return false
}

// Run interprets a block. Modal state is updated only if the whole block is
// understood.
func (in *Interpreter) Run(b Block) ([]driver.Command, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	for _, g := range b {
		if !isSupported(g) {
			return nil, &UnsupportedError{Word: g}
		}
	}

	for _, g := range b {
		mg := g.ModalGroup()
		if mg != ModalGroupNone && mg != ModalGroupNonModal && mg != ModalGroupFeedRate {
			in.modal[mg] = g.Arg
		}
	}
	mul := in.scale()
	if ok, f := b.Arg('F'); ok {
		in.feed = f * mul
	}

	tool := in.tool
	hasT, t := b.Arg('T')
	if hasT {
		tool = int(t)
	}

	var cmds []driver.Command
	switch {
	case b.Has(Word{W: 'G', Arg: 4}):
		cmds = append(cmds, driver.Delay{Duration: dwell(b)})
	case b.Has(Word{W: 'G', Arg: 92}):
		in.pos = b.ApplyAxes(in.pos, mul)
		cmds = append(cmds, driver.SetPosition{Position: in.pos})
	case b.HasAxis():
		if in.RelativeMotion() {
			in.pos = in.pos.Add(b.ApplyAxes(coord.Point{}, mul))
		} else {
			in.pos = b.ApplyAxes(in.pos, mul)
		}
		feed := in.feed
		if in.modal[ModalGroupMotion] == 0 {
			feed = 0
		}
		cmds = append(cmds, driver.Move{Target: in.pos, Feedrate: feed})
	}

	if hasT && !hasMCode(b) {
		cmds = append(cmds, driver.SelectTool{Tool: tool})
		in.tool = tool
	}

	_, s := b.Arg('S')
	for _, g := range b {
		if g.W != 'M' {
			continue
		}
		switch g.Arg {
		case 6:
			timeout := DefaultToolTimeout
			if ok, p := b.Arg('P'); ok {
				timeout = time.Duration(p * float64(time.Second))
			}
			cmds = append(cmds, driver.WaitForTool{Tool: tool, Timeout: timeout})
		case 101:
			cmds = append(cmds,
				driver.SetMotorDirection{Tool: tool, Direction: model.Clockwise},
				driver.EnableMotor{Tool: tool},
			)
		case 102:
			cmds = append(cmds,
				driver.SetMotorDirection{Tool: tool, Direction: model.CounterClockwise},
				driver.EnableMotor{Tool: tool},
			)
		case 103:
			cmds = append(cmds, driver.DisableMotor{Tool: tool})
		case 104:
			cmds = append(cmds, driver.SetTemperature{Tool: tool, Celsius: s})
		case 105:
			cmds = append(cmds, driver.ReadTemperature{Tool: tool})
		case 106:
			cmds = append(cmds, driver.SetFan{Tool: tool, On: true})
		case 107:
			cmds = append(cmds, driver.SetFan{Tool: tool, On: false})
		case 108:
			rpm := s
			if ok, r := b.Arg('R'); ok {
				rpm = r
			}
			cmds = append(cmds, driver.SetMotorRPM{Tool: tool, RPM: rpm})
		case 109, 140:
			cmds = append(cmds, driver.SetPlatformTemperature{Tool: tool, Celsius: s})
		}
	}

	return cmds, nil
}

// hasMCode reports whether the block carries an M word that consumes T as
// its tool argument.
func hasMCode(b Block) bool {
	for _, g := range b {
		if g.W == 'M' && g.Arg != 0 && g.Arg != 1 && g.Arg != 2 && g.Arg != 18 && g.Arg != 30 {
			return true
		}
	}
	return false
}

// dwell reads G4 P (milliseconds) or S (seconds). Negative dwells are zero.
func dwell(b Block) time.Duration {
	var d time.Duration
	if ok, p := b.Arg('P'); ok {
		d = time.Duration(p * float64(time.Millisecond))
	} else if ok, s := b.Arg('S'); ok {
		d = time.Duration(s * float64(time.Second))
	}
	if d < 0 {
		return 0
	}
	return d
}

func (in *Interpreter) String() string {
	return fmt.Sprintf("pos=%s feed=%g tool=%d", in.pos, in.feed, in.tool)
}
