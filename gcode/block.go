package gcode

import (
	"fmt"
	"strings"

	"github.com/magnomatos822/replicatorg/coord"
)

// Block is the words of one line.
type Block []Word

// Arg returns the argument of the first word with the given letter.
func (b Block) Arg(letter byte) (bool, float64) {
	for _, g := range b {
		if g.W == letter {
			return true, g.Arg
		}
	}
	return false, 0
}

// Has reports whether the block contains the exact word.
func (b Block) Has(w Word) bool {
	for _, g := range b {
		if g == w {
			return true
		}
	}
	return false
}

func (b Block) HasAxis() bool {
	for _, g := range b {
		if g.IsAxis() {
			return true
		}
	}
	return false
}

// ApplyAxes returns p with every axis word of the block, times mul, written
// over it.
func (b Block) ApplyAxes(p coord.Point, mul float64) coord.Point {
	for _, g := range b {
		if a, ok := g.Axis(); ok {
			p = p.SetAxis(a, g.Arg*mul)
		}
	}
	return p
}

// Validate rejects blocks with repeated argument letters or two codes from
// the same modal group. G and M words may repeat.
func (b Block) Validate() error {
	var seenWord [256]bool
	var seenGroup [256]bool
	for _, g := range b {
		if !g.IsValid() {
			return fmt.Errorf("invalid word %q", g.W)
		}
		if g.W != 'G' && g.W != 'M' {
			if seenWord[g.W] {
				return fmt.Errorf("word %c repeated", g.W)
			}
			seenWord[g.W] = true
		}
		m := g.ModalGroup()
		if m == ModalGroupNone || m == ModalGroupFeedRate {
			continue
		}
		if seenGroup[m] {
			return fmt.Errorf("two %s codes on one line", m)
		}
		seenGroup[m] = true
	}
	return nil
}

func (b Block) String() string {
	parts := make([]string, len(b))
	for i, g := range b {
		parts[i] = g.String()
	}
	return strings.Join(parts, " ")
}
