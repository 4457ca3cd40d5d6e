// File: internal/geometry/projection.go
package geometry

import "math"

// earthRadius is the WGS84 semi-major axis in meters, shared by the spherical
// Mercator inverse and the geodesic area approximation.
const earthRadius = 6378137.0

// Projection maps a point from the host's local coordinate system to the
// coordinate system polygons are built in.
type Projection interface {
	ToGeographic(p Point) Point
}

// WebMercator converts EPSG:3857 meters into WGS84 longitude/latitude degrees.
type WebMercator struct{}

// ToGeographic implements Projection.
func (WebMercator) ToGeographic(p Point) Point {
	lon := p.X / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(p.Y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return Point{X: lon, Y: lat}
}

// FromGeographic is the forward spherical Mercator transform. Only used to
// build fixtures and to hand coordinates back to the host.
func (WebMercator) FromGeographic(p Point) Point {
	x := p.X * math.Pi / 180 * earthRadius
	y := math.Log(math.Tan(math.Pi/4+p.Y*math.Pi/360)) * earthRadius
	return Point{X: x, Y: y}
}

// Identity keeps coordinates untouched. Combined with the Planar measure it
// turns the engine into a plain cartesian calculator.
type Identity struct{}

// ToGeographic implements Projection.
func (Identity) ToGeographic(p Point) Point { return p }
