package protocol

import (
	"fmt"
	"strings"
)

// Op is a protocol operation whose code or field layout may differ between
// firmware generations.
type Op int

const (
	OpVersion Op = iota
	OpInit
	OpClearBuffer
	OpAbort
	OpPause
	OpReset
	OpIsFinished
	OpQueuePoint
	OpSetPosition
	OpGetPosition
	OpDelay
	OpChangeTool
	OpWaitForTool
	OpToolCommand
	OpToolQuery
	OpEnableAxes
	OpCaptureToFile
	OpEndCapture
	OpPlaybackCapture
)

var opNames = map[Op]string{
	OpVersion:         "version",
	OpInit:            "init",
	OpClearBuffer:     "clear-buffer",
	OpAbort:           "abort",
	OpPause:           "pause",
	OpReset:           "reset",
	OpIsFinished:      "is-finished",
	OpQueuePoint:      "queue-point",
	OpSetPosition:     "set-position",
	OpGetPosition:     "get-position",
	OpDelay:           "delay",
	OpChangeTool:      "change-tool",
	OpWaitForTool:     "wait-for-tool",
	OpToolCommand:     "tool-command",
	OpToolQuery:       "tool-query",
	OpEnableAxes:      "enable-axes",
	OpCaptureToFile:   "capture-to-file",
	OpEndCapture:      "end-capture",
	OpPlaybackCapture: "playback-capture",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Timing selects how a motion packet expresses speed.
type Timing int

const (
	TimingNone Timing = iota
	// TimingDDA sends microseconds between steps of the longest axis.
	TimingDDA
	// TimingMicros sends the total duration of the move in microseconds.
	TimingMicros
)

// Layout is the wire form of an operation: its command code, and for
// position-carrying operations the number of 32-bit axis fields and the
// timing field.
type Layout struct {
	Code   byte
	Axes   int
	Timing Timing
}

// Variant is a protocol generation. Operations missing from a variant are
// looked up in its parent.
type Variant struct {
	Name   string
	Parent *Variant
	ops    map[Op]Layout
}

// NewVariant creates a variant overriding the given operations of parent.
func NewVariant(name string, parent *Variant, ops map[Op]Layout) *Variant {
	return &Variant{Name: name, Parent: parent, ops: ops}
}

// Lookup returns the layout of op in v or its nearest ancestor.
func (v *Variant) Lookup(op Op) (Layout, bool) {
	for cur := v; cur != nil; cur = cur.Parent {
		if l, ok := cur.ops[op]; ok {
			return l, true
		}
	}
	return Layout{}, false
}

// Code is Lookup for callers that only need the command code. It panics for
// operations the variant does not define.
func (v *Variant) Code(op Op) byte {
	l, ok := v.Lookup(op)
	if !ok {
		panic(fmt.Sprintf("protocol %s: no code for %s", v.Name, op))
	}
	return l.Code
}

// Table flattens the variant, resolving every inherited operation.
func (v *Variant) Table() map[Op]Layout {
	res := make(map[Op]Layout)
	for cur := v; cur != nil; cur = cur.Parent {
		for op, l := range cur.ops {
			if _, ok := res[op]; !ok {
				res[op] = l
			}
		}
	}
	return res
}

// Validate checks that no two operations share a command code.
func (v *Variant) Validate() error {
	seen := make(map[byte]Op)
	for op, l := range v.Table() {
		if prev, ok := seen[l.Code]; ok {
			return fmt.Errorf("protocol %s: code %d used by both %s and %s", v.Name, l.Code, prev, op)
		}
		seen[l.Code] = op
	}
	return nil
}

// Sanguino3G is the base 3-axis protocol.
var Sanguino3G = NewVariant("Sanguino3G", nil, map[Op]Layout{
	OpVersion:         {Code: CodeVersion},
	OpInit:            {Code: CodeInit},
	OpClearBuffer:     {Code: CodeClearBuffer},
	OpAbort:           {Code: CodeAbort},
	OpPause:           {Code: CodePause},
	OpReset:           {Code: CodeReset},
	OpIsFinished:      {Code: CodeIsFinished},
	OpQueuePoint:      {Code: CodeQueuePointAbs, Axes: 3, Timing: TimingDDA},
	OpSetPosition:     {Code: CodeSetPosition, Axes: 3},
	OpGetPosition:     {Code: CodeGetPosition, Axes: 3},
	OpDelay:           {Code: CodeDelay},
	OpChangeTool:      {Code: CodeChangeTool},
	OpWaitForTool:     {Code: CodeWaitForTool},
	OpToolCommand:     {Code: CodeToolCommand},
	OpToolQuery:       {Code: CodeToolQuery},
	OpEnableAxes:      {Code: CodeEnableAxes},
	OpCaptureToFile:   {Code: CodeCaptureToFile},
	OpEndCapture:      {Code: CodeEndCapture},
	OpPlaybackCapture: {Code: CodePlaybackCapture},
})

// Makerbot4G extends Sanguino3G with 5-axis positioning and move timing in
// total microseconds.
var Makerbot4G = NewVariant("Makerbot4G", Sanguino3G, map[Op]Layout{
	OpQueuePoint:  {Code: CodeQueuePointExt, Axes: 5, Timing: TimingMicros},
	OpSetPosition: {Code: CodeSetPositionExt, Axes: 5},
	OpGetPosition: {Code: CodeGetPositionExt, Axes: 5},
})

var variants = []*Variant{Sanguino3G, Makerbot4G}

// VariantByName finds a known variant, ignoring case.
func VariantByName(name string) (*Variant, error) {
	for _, v := range variants {
		if strings.EqualFold(v.Name, name) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("unknown protocol variant %q", name)
}
