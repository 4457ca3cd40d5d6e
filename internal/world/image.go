// File: internal/world/image.go
package world

import (
	"strconv"
	"time"

	"github.com/xkilldash9x/aerialguide/internal/geometry"
)

// Usage is the analyst's decision on an image. The numeric values match the
// host protocol.
type Usage int

const (
	UsageDiscarded Usage = 0
	UsageUnset     Usage = 1
	UsageSelected  Usage = 2
)

// String implements fmt.Stringer.
func (u Usage) String() string {
	switch u {
	case UsageDiscarded:
		return "discarded"
	case UsageUnset:
		return "unset"
	case UsageSelected:
		return "selected"
	default:
		return "usage(" + strconv.Itoa(int(u)) + ")"
	}
}

// Valid reports whether u is one of the protocol values.
func (u Usage) Valid() bool {
	return u >= UsageDiscarded && u <= UsageSelected
}

// Metadata is the archive record attached to an aerial image.
type Metadata struct {
	Sortie string  `json:"Sortie" validate:"required"`
	Bildnr int     `json:"Bildnr" validate:"gte=0"`
	Datum  string  `json:"Datum" validate:"required"`
	Scale  float64 `json:"MASSTAB" validate:"gt=0"`
	Owned  bool    `json:"LBDB"`
}

// ImageInput is what the host hands over when loading images.
type ImageInput struct {
	ID        string           `json:"id" validate:"required"`
	Footprint []geometry.Point `json:"footprint"`
	Meta      Metadata         `json:"meta" validate:"required"`
	Usage     Usage            `json:"usage" validate:"gte=0,lte=2"`
}

// Image is an aerial image together with everything derived from its
// geometry. Usage and the prescribed flag can only be changed through State so
// that attack coverage stays consistent.
type Image struct {
	id        string
	meta      Metadata
	footprint []geometry.Point
	time      time.Time
	polarity  int

	polyFull      *geometry.Polygon
	polyAOI       *geometry.Polygon
	coverageRatio float64
	information   float64
	pairs         []string
	interestPre   float64
	interestPost  float64

	usage      Usage
	prescribed bool

	value       float64
	normalValue float64
}

func (a *Image) ID() string                     { return a.id }
func (a *Image) Meta() Metadata                 { return a.meta }
func (a *Image) Time() time.Time                { return a.time }
func (a *Image) Date() string                   { return a.meta.Datum }
func (a *Image) Polarity() int                  { return a.polarity }
func (a *Image) Footprint() []geometry.Point    { return append([]geometry.Point(nil), a.footprint...) }
func (a *Image) FullPolygon() *geometry.Polygon { return a.polyFull }
func (a *Image) AOIPolygon() *geometry.Polygon  { return a.polyAOI }
func (a *Image) CoverageRatio() float64         { return a.coverageRatio }
func (a *Image) InformationMeasure() float64    { return a.information }
func (a *Image) PairCandidates() []string       { return append([]string(nil), a.pairs...) }
func (a *Image) HasPairs() bool                 { return len(a.pairs) > 0 }
func (a *Image) InterestPre() float64           { return a.interestPre }
func (a *Image) InterestPost() float64          { return a.interestPost }
func (a *Image) Usage() Usage                   { return a.usage }
func (a *Image) Selected() bool                 { return a.usage == UsageSelected }
func (a *Image) Discarded() bool                { return a.usage == UsageDiscarded }
func (a *Image) Prescribed() bool               { return a.prescribed }
func (a *Image) Owned() bool                    { return a.meta.Owned }
func (a *Image) Value() float64                 { return a.value }
func (a *Image) NormalizedValue() float64       { return a.normalValue }
func (a *Image) Covers() bool                   { return a.polyAOI != nil }

// IsDetail reports whether the image counts as large scale under the given
// scale denominator threshold.
func (a *Image) IsDetail(detailScaleMax float64) bool {
	return a.meta.Scale <= detailScaleMax
}

// AdjacentTo reports whether b is the neighbouring frame of the same flight.
func (a *Image) AdjacentTo(b *Image) bool {
	if a == b || a.meta.Sortie != b.meta.Sortie {
		return false
	}
	d := a.meta.Bildnr - b.meta.Bildnr
	return d == 1 || d == -1
}

// SetValue records the marginal contribution computed by the orient step and
// its display normalization. Neither feeds back into coverage.
func (a *Image) SetValue(value, normalized float64) {
	a.value = value
	a.normalValue = normalized
}

// polarityOf derives the layout polarity from the leading frame digit.
func polarityOf(bildnr int) int {
	s := strconv.Itoa(bildnr)
	switch s[0] {
	case '3':
		return -1
	case '4':
		return 1
	default:
		return 0
	}
}

// parseDate accepts plain dates and RFC 3339 timestamps.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
