// File: internal/geometry/geometry.go
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/peterstace/simplefeatures/geom"
)

// ErrDegenerateFootprint is returned when a footprint cannot form a valid areal polygon.
var ErrDegenerateFootprint = errors.New("degenerate footprint")

// Measure selects how polygon areas are computed.
type Measure int

const (
	// Geodesic treats coordinates as lon/lat degrees and returns km².
	Geodesic Measure = iota
	// Planar returns the cartesian area in squared coordinate units.
	Planar
)

// Polygon wraps an areal geometry. A nil *Polygon stands for "no intersection"
// throughout the code base and every method here accepts it.
type Polygon struct {
	g geom.Geometry
}

// Geometry exposes the underlying simplefeatures geometry.
func (p *Polygon) Geometry() geom.Geometry {
	if p == nil {
		return geom.Geometry{}
	}
	return p.g
}

// WKT renders the polygon, mostly for logs and test failures.
func (p *Polygon) WKT() string {
	if p == nil {
		return "POLYGON EMPTY"
	}
	return p.g.AsText()
}

// Engine builds polygons from footprints and performs overlay operations.
// It is stateless apart from its options and safe to share.
type Engine struct {
	proj    Projection
	measure Measure
}

// Option configures an Engine.
type Option func(*Engine)

// WithProjection overrides the footprint projection.
func WithProjection(p Projection) Option {
	return func(e *Engine) { e.proj = p }
}

// WithMeasure overrides the area measure.
func WithMeasure(m Measure) Option {
	return func(e *Engine) { e.measure = m }
}

// NewEngine returns an engine that reads footprints as Web Mercator meters and
// measures geodesic areas, matching what the GIS host hands over.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{proj: WebMercator{}, measure: Geodesic}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewPlanarEngine is shorthand for an identity projection with planar areas.
func NewPlanarEngine() *Engine {
	return NewEngine(WithProjection(Identity{}), WithMeasure(Planar))
}

// ToPolygon closes the open ring (if needed), reprojects every vertex and
// returns the resulting polygon.
func (e *Engine) ToPolygon(footprint []Point) (*Polygon, error) {
	ring := make([]Point, 0, len(footprint)+1)
	for _, p := range footprint {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return nil, fmt.Errorf("%w: non-finite vertex", ErrDegenerateFootprint)
		}
		ring = append(ring, e.proj.ToGeographic(p))
	}
	if len(ring) > 1 && ring[0].Equal(ring[len(ring)-1]) {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 vertices, got %d", ErrDegenerateFootprint, len(ring))
	}
	ring = append(ring, ring[0])

	coords := make([]float64, 0, 2*len(ring))
	for _, p := range ring {
		coords = append(coords, p.X, p.Y)
	}
	ls, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateFootprint, err)
	}
	poly, err := geom.NewPolygon([]geom.LineString{ls})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateFootprint, err)
	}
	g := poly.AsGeometry()
	if g.IsEmpty() || g.Area() == 0 {
		return nil, fmt.Errorf("%w: zero area", ErrDegenerateFootprint)
	}
	return &Polygon{g: g}, nil
}

// Intersect returns the areal overlap of a and b, or nil when they are
// disjoint or only touch along edges.
func (e *Engine) Intersect(a, b *Polygon) (*Polygon, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	res, err := geom.Intersection(a.g, b.g)
	if err != nil {
		return nil, fmt.Errorf("intersection failed: %w", err)
	}
	if res.IsEmpty() || res.Area() <= 0 {
		return nil, nil
	}
	return &Polygon{g: res}, nil
}

// Union merges a and b. A nil operand is treated as empty.
func (e *Engine) Union(a, b *Polygon) (*Polygon, error) {
	switch {
	case a == nil && b == nil:
		return nil, nil
	case a == nil:
		return b, nil
	case b == nil:
		return a, nil
	}
	res, err := geom.Union(a.g, b.g)
	if err != nil {
		return nil, fmt.Errorf("union failed: %w", err)
	}
	return &Polygon{g: res}, nil
}

// UnionAll folds Union over polys, skipping nils.
func (e *Engine) UnionAll(polys []*Polygon) (*Polygon, error) {
	var acc *Polygon
	for _, p := range polys {
		next, err := e.Union(acc, p)
		if err != nil {
			return acc, err
		}
		acc = next
	}
	return acc, nil
}

// Area returns the area of p, zero for nil.
func (e *Engine) Area(p *Polygon) float64 {
	if p == nil {
		return 0
	}
	if e.measure == Planar {
		return p.g.Area()
	}
	total := 0.0
	for _, poly := range polygonsOf(p.g) {
		a := math.Abs(ringArea(poly.ExteriorRing().Coordinates()))
		for i := 0; i < poly.NumInteriorRings(); i++ {
			a -= math.Abs(ringArea(poly.InteriorRingN(i).Coordinates()))
		}
		total += a
	}
	// m² -> km²
	return math.Max(total, 0) / 1e6
}

// polygonsOf flattens the areal members of g.
func polygonsOf(g geom.Geometry) []geom.Polygon {
	switch g.Type() {
	case geom.TypePolygon:
		if p, ok := g.AsPolygon(); ok {
			return []geom.Polygon{p}
		}
		return nil
	case geom.TypeMultiPolygon:
		mp, ok := g.AsMultiPolygon()
		if !ok {
			return nil
		}
		out := make([]geom.Polygon, 0, mp.NumPolygons())
		for i := 0; i < mp.NumPolygons(); i++ {
			out = append(out, mp.PolygonN(i))
		}
		return out
	case geom.TypeGeometryCollection:
		gc, ok := g.AsGeometryCollection()
		if !ok {
			return nil
		}
		var out []geom.Polygon
		for i := 0; i < gc.NumGeometries(); i++ {
			out = append(out, polygonsOf(gc.GeometryN(i))...)
		}
		return out
	default:
		return nil
	}
}

// ringArea approximates the signed spherical area (m²) of a closed lon/lat ring.
// See Chamberlain & Duquette, "Some Algorithms for Polygons on a Sphere", JPL 2007.
func ringArea(seq geom.Sequence) float64 {
	n := seq.Length()
	if n <= 2 {
		return 0
	}
	total := 0.0
	for i := 0; i < n; i++ {
		var lower, middle, upper int
		switch i {
		case n - 2:
			lower, middle, upper = n-2, n-1, 0
		case n - 1:
			lower, middle, upper = n-1, 0, 1
		default:
			lower, middle, upper = i, i+1, i+2
		}
		p1, p2, p3 := seq.GetXY(lower), seq.GetXY(middle), seq.GetXY(upper)
		total += (rad(p3.X) - rad(p1.X)) * math.Sin(rad(p2.Y))
	}
	return total * earthRadius * earthRadius / 2
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
