package gcode

import (
	"strconv"
	"strings"

	"github.com/magnomatos822/replicatorg/coord"
)

// Word is a single letter and its numeric argument, like G1 or X10.5.
type Word struct {
	W   byte
	Arg float64
}

// Axis maps an axis letter to its motion channel.
func (w Word) Axis() (coord.Axis, bool) {
	switch w.W {
	case 'X':
		return coord.X, true
	case 'Y':
		return coord.Y, true
	case 'Z':
		return coord.Z, true
	case 'A':
		return coord.A, true
	case 'B':
		return coord.B, true
	}
	return 0, false
}

func (w Word) IsAxis() bool {
	_, ok := w.Axis()
	return ok
}

func (w Word) IsValid() bool { return w.W >= 'A' && w.W <= 'Z' }

func formatArg(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

func (w Word) String() string { return string(w.W) + formatArg(w.Arg) }
