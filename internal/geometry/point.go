// File: internal/geometry/point.go
package geometry

import "math"

// Point is a vertex of a footprint, either in the local planar system the host
// draws in or, after projection, in geographic degrees (X=lon, Y=lat).
type Point struct {
	X, Y float64
}

// Add returns the vector sum of p and other.
func (p Point) Add(other Point) Point {
	return Point{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the vector difference of p and other.
func (p Point) Sub(other Point) Point {
	return Point{X: p.X - other.X, Y: p.Y - other.Y}
}

// Mul returns p scaled by the scalar factor.
func (p Point) Mul(scalar float64) Point {
	return Point{X: p.X * scalar, Y: p.Y * scalar}
}

// Dist calculates the Euclidean distance between p and other.
func (p Point) Dist(other Point) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

// Equal reports whether both points coincide within a small tolerance.
func (p Point) Equal(other Point) bool {
	return p.Dist(other) < 1e-9
}

// Translate returns a copy of the ring moved by offset.
func Translate(ring []Point, offset Point) []Point {
	out := make([]Point, len(ring))
	for i, p := range ring {
		out[i] = p.Add(offset)
	}
	return out
}

// Rect returns the open ring of an axis-aligned rectangle with its lower left
// corner at origin.
func Rect(origin Point, width, height float64) []Point {
	return []Point{
		origin,
		origin.Add(Point{X: width}),
		origin.Add(Point{X: width, Y: height}),
		origin.Add(Point{Y: height}),
	}
}
