// Package leveling compensates for an uneven bed by adjusting the height of
// every move from a mesh of probed points.
package leveling

import (
	"errors"
	"math"

	"github.com/fogleman/delaunay"

	"github.com/magnomatos822/replicatorg/coord"
)

// ZOffsetter reports the bed height offset at a point.
type ZOffsetter interface {
	OffsetZ(x, y float64) (bool, float64)
}

// Mesh is a triangulated set of probe points.
type Mesh struct {
	minX, minY, maxX, maxY float64
	triangles              []Triangle
}

// NewMesh triangulates probe points. Z of each point is its height offset.
func NewMesh(points []coord.Point) (*Mesh, error) {
	if len(points) < 3 {
		return nil, errors.New("need at least 3 points to create a mesh")
	}

	points2d := make([]delaunay.Point, len(points))
	byXY := make(map[delaunay.Point]coord.Point, len(points))

	mesh := &Mesh{
		minX: points[0].X,
		minY: points[0].Y,
		maxX: points[0].X,
		maxY: points[0].Y,
	}
	for i, p := range points {
		mesh.minX = math.Min(mesh.minX, p.X)
		mesh.minY = math.Min(mesh.minY, p.Y)
		mesh.maxX = math.Max(mesh.maxX, p.X)
		mesh.maxY = math.Max(mesh.maxY, p.Y)

		d := delaunay.Point{X: p.X, Y: p.Y}
		byXY[d] = p
		points2d[i] = d
	}
	mesh.minX -= Epsilon
	mesh.minY -= Epsilon
	mesh.maxX += Epsilon
	mesh.maxY += Epsilon

	tri, err := delaunay.Triangulate(points2d)
	if err != nil {
		return nil, err
	}
	if len(tri.Triangles) == 0 {
		return nil, errors.New("probe points are collinear")
	}

	mesh.triangles = make([]Triangle, 0, len(tri.Triangles)/3)
	for i := 0; i < len(tri.Triangles); i += 3 {
		mesh.triangles = append(mesh.triangles, Triangle{
			A: byXY[tri.Points[tri.Triangles[i]]],
			B: byXY[tri.Points[tri.Triangles[i+1]]],
			C: byXY[tri.Points[tri.Triangles[i+2]]],
		})
	}

	return mesh, nil
}

// OffsetZ returns the height offset at x,y, or false outside the mesh.
func (m *Mesh) OffsetZ(x, y float64) (bool, float64) {
	if x < m.minX || m.maxX < x || y < m.minY || m.maxY < y {
		return false, 0
	}
	for _, t := range m.triangles {
		if t.ContainsXY(x, y) {
			return true, t.Z(x, y)
		}
	}
	return false, 0
}

// OffsetFrom makes probe heights relative to z.
func OffsetFrom(z float64, points []coord.Point) []coord.Point {
	p := make([]coord.Point, len(points))
	copy(p, points)

	for i := range p {
		p[i].Z -= z
	}
	return p
}
