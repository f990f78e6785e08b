package leveling

import (
	"math"

	"github.com/magnomatos822/replicatorg/coord"
)

const (
	// Epsilon is the max error when checking containment.
	Epsilon   = 0.001
	epsilonSq = Epsilon * Epsilon
)

// Triangle is one facet of a bed mesh.
type Triangle struct{ A, B, C coord.Point }

// ContainsXY returns true if the 2D projection of the triangle
// has the point x,y.
func (t Triangle) ContainsXY(x, y float64) bool {
	return pointInTriangle(
		t.A.X, t.A.Y,
		t.B.X, t.B.Y,
		t.C.X, t.C.Y,
		x, y)
}

// Z gives the height of the triangle's plane at x,y.
func (t Triangle) Z(x, y float64) float64 {
	ac := t.C.Sub(t.A)
	ab := t.B.Sub(t.A)

	n := ac.Cross(ab)
	d := n.Dot(t.C)

	return (d - n.X*x - n.Y*y) / n.Z
}

// see https://totologic.blogspot.com/2014/01/accurate-point-in-triangle-test.html

func side(x1, y1, x2, y2, x, y float64) float64 {
	return (y2-y1)*(x-x1) + (-x2+x1)*(y-y1)
}

func inBoundingBox(x1, y1, x2, y2, x3, y3, x, y float64) bool {
	xMin := math.Min(x1, math.Min(x2, x3)) - Epsilon
	xMax := math.Max(x1, math.Max(x2, x3)) + Epsilon
	yMin := math.Min(y1, math.Min(y2, y3)) - Epsilon
	yMax := math.Max(y1, math.Max(y2, y3)) + Epsilon

	return xMin <= x && x <= xMax && yMin <= y && y <= yMax
}

func distanceSqToSegment(x1, y1, x2, y2, x, y float64) float64 {
	segLenSq := (x2-x1)*(x2-x1) + (y2-y1)*(y2-y1)
	dot := ((x-x1)*(x2-x1) + (y-y1)*(y2-y1)) / segLenSq
	switch {
	case dot < 0:
		return (x-x1)*(x-x1) + (y-y1)*(y-y1)
	case dot <= 1:
		toStartSq := (x1-x)*(x1-x) + (y1-y)*(y1-y)
		return toStartSq - dot*dot*segLenSq
	}
	return (x-x2)*(x-x2) + (y-y2)*(y-y2)
}

func pointInTriangle(x1, y1, x2, y2, x3, y3, x, y float64) bool {
	if !inBoundingBox(x1, y1, x2, y2, x3, y3, x, y) {
		return false
	}

	// either winding
	s1 := side(x1, y1, x2, y2, x, y)
	s2 := side(x2, y2, x3, y3, x, y)
	s3 := side(x3, y3, x1, y1, x, y)
	if (s1 >= 0 && s2 >= 0 && s3 >= 0) || (s1 <= 0 && s2 <= 0 && s3 <= 0) {
		return true
	}

	return distanceSqToSegment(x1, y1, x2, y2, x, y) <= epsilonSq ||
		distanceSqToSegment(x2, y2, x3, y3, x, y) <= epsilonSq ||
		distanceSqToSegment(x3, y3, x1, y1, x, y) <= epsilonSq
}
