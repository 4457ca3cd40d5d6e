// File: internal/world/worldtest/worldtest.go
// Package worldtest builds small planar worlds for tests. The AOI is the
// 10x10 square at the origin, so a footprint of area 1 covers one percent.
package worldtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/aerialguide/internal/geometry"
	"github.com/xkilldash9x/aerialguide/internal/world"
)

// AOISize is the edge length of the test area of interest.
const AOISize = 10.0

// DetailScale and OverviewScale sit on either side of the default detail threshold.
const (
	DetailScale   = 10000.0
	OverviewScale = 50000.0
)

// AOI returns the test area of interest.
func AOI() []geometry.Point {
	return geometry.Rect(geometry.Point{}, AOISize, AOISize)
}

// Rect returns the footprint of an axis aligned rectangle.
func Rect(x, y, w, h float64) []geometry.Point {
	return geometry.Rect(geometry.Point{X: x, Y: y}, w, h)
}

// Strip returns a full-height strip of the AOI covering width/AOISize of it.
func Strip(x, width float64) []geometry.Point {
	return Rect(x, 0, width, AOISize)
}

// Detail builds a large scale image.
func Detail(id, sortie string, bildnr int, date string, owned bool, footprint []geometry.Point) world.ImageInput {
	return world.ImageInput{
		ID:        id,
		Footprint: footprint,
		Meta: world.Metadata{
			Sortie: sortie,
			Bildnr: bildnr,
			Datum:  date,
			Scale:  DetailScale,
			Owned:  owned,
		},
		Usage: world.UsageUnset,
	}
}

// Overview builds a small scale image.
func Overview(id, sortie string, bildnr int, date string, owned bool, footprint []geometry.Point) world.ImageInput {
	in := Detail(id, sortie, bildnr, date, owned, footprint)
	in.Meta.Scale = OverviewScale
	return in
}

// Params returns the default model constants with the given attack calendar.
func Params(attackDates ...string) world.Params {
	p := world.DefaultParams()
	p.AttackDates = attackDates
	return p
}

// NewState loads inputs into a planar world and sets the test AOI.
func NewState(t testing.TB, params world.Params, inputs ...world.ImageInput) *world.State {
	t.Helper()
	s := world.NewState(geometry.NewPlanarEngine(), params, zaptest.NewLogger(t), inputs)
	require.NoError(t, s.SetAreaOfInterest(AOI()))
	return s
}
