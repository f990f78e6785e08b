package coord

import (
	"fmt"
	"math"
	"strings"
)

// Axis identifies one motion channel of the machine.
type Axis int

const (
	X Axis = iota
	Y
	Z
	A
	B
)

// Axes lists every axis in packet order.
var Axes = []Axis{X, Y, Z, A, B}

func (a Axis) String() string {
	switch a {
	case X:
		return "X"
	case Y:
		return "Y"
	case Z:
		return "Z"
	case A:
		return "A"
	case B:
		return "B"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// ParseAxis resolves an axis designator like "A" or "b".
func ParseAxis(s string) (Axis, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X":
		return X, nil
	case "Y":
		return Y, nil
	case "Z":
		return Z, nil
	case "A":
		return A, nil
	case "B":
		return B, nil
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// Point is a machine position in millimeters; A and B are auxiliary axes.
type Point struct{ X, Y, Z, A, B float64 }

// Axis returns the value of a single axis.
func (p Point) Axis(a Axis) float64 {
	switch a {
	case X:
		return p.X
	case Y:
		return p.Y
	case Z:
		return p.Z
	case A:
		return p.A
	case B:
		return p.B
	}
	return 0
}

// SetAxis returns p with a single axis replaced.
func (p Point) SetAxis(a Axis, v float64) Point {
	switch a {
	case X:
		p.X = v
	case Y:
		p.Y = v
	case Z:
		p.Z = v
	case A:
		p.A = v
	case B:
		p.B = v
	}
	return p
}

func (p Point) Cross(op Point) Point {
	return Point{
		X: p.Y*op.Z - p.Z*op.Y,
		Y: p.Z*op.X - p.X*op.Z,
		Z: p.X*op.Y - p.Y*op.X,
	}
}

// Dot is the XYZ dot product.
func (p Point) Dot(op Point) float64 {
	return p.X*op.X + p.Y*op.Y + p.Z*op.Z
}

func (p Point) Mul(val float64) Point {
	p.X *= val
	p.Y *= val
	p.Z *= val
	p.A *= val
	p.B *= val
	return p
}

func (p Point) Div(val float64) Point {
	p.X /= val
	p.Y /= val
	p.Z /= val
	p.A /= val
	p.B /= val
	return p
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	p.A += target.A
	p.B += target.B
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	p.A -= target.A
	p.B -= target.B
	return p
}

// Abs returns p with every axis made non-negative.
func (p Point) Abs() Point {
	for _, a := range Axes {
		p = p.SetAxis(a, math.Abs(p.Axis(a)))
	}
	return p
}

// Round rounds every axis to the nearest integer.
func (p Point) Round() Point {
	for _, a := range Axes {
		p = p.SetAxis(a, math.Round(p.Axis(a)))
	}
	return p
}

// Scale multiplies axis-by-axis.
func (p Point) Scale(f Point) Point {
	for _, a := range Axes {
		p = p.SetAxis(a, p.Axis(a)*f.Axis(a))
	}
	return p
}

// Length is the euclidean length over all five axes.
func (p Point) Length() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z + p.A*p.A + p.B*p.B)
}

// Longest returns the largest absolute axis value.
func (p Point) Longest() float64 {
	var m float64
	for _, a := range Axes {
		m = math.Max(m, math.Abs(p.Axis(a)))
	}
	return m
}

// Split will return a set of evenly spaced points
// from p to the target.
func (p Point) Split(target Point, n int) []Point {
	step := target.Sub(p).Div(float64(n))

	res := make([]Point, n)
	for i := range res {
		res[i] = p.Add(step.Mul(float64(i + 1)))
	}
	res[n-1] = target

	return res
}

// DistanceXY will return the 2D distance to p from (x,y).
func (p Point) DistanceXY(x, y float64) float64 {
	return math.Sqrt(math.Pow(x-p.X, 2) + math.Pow(y-p.Y, 2))
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g, %g)", p.X, p.Y, p.Z, p.A, p.B)
}
