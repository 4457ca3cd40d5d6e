// File: internal/world/state.go
package world

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/geometry"
)

var (
	// ErrUnknownImage is returned when an event references an id that is not loaded.
	ErrUnknownImage = errors.New("unknown image")
	// ErrNoAreaOfInterest is returned by operations that need a loaded AOI.
	ErrNoAreaOfInterest = errors.New("area of interest not loaded")
	// ErrPrescriptionsClaimed is returned when the prescription handle of a
	// State is requested a second time.
	ErrPrescriptionsClaimed = errors.New("prescriptions already claimed")
)

const day = 24 * time.Hour

// Params holds the model constants.
type Params struct {
	// DayRange bounds interest normalization neighbourhoods, extended attack
	// windows and timebin attack membership.
	DayRange int `mapstructure:"day_range" yaml:"day_range"`
	// DetailScaleMax is the largest scale denominator still counted as detail.
	DetailScaleMax float64 `mapstructure:"detail_scale_max" yaml:"detail_scale_max"`
	// AttackDates lists the raid calendar (YYYY-MM-DD).
	AttackDates []string `mapstructure:"attack_dates" yaml:"attack_dates"`
}

// DefaultParams returns the constants the prototype was calibrated with.
func DefaultParams() Params {
	return Params{DayRange: 25, DetailScaleMax: 20000}
}

func (p Params) window() time.Duration {
	return time.Duration(p.DayRange) * day
}

// State is the single owner of the image set and everything derived from it.
// Attacks, timebins and classes refer to images by id and to timebins by index
// and are rebuilt, never patched, whenever footprints, the AOI or the image set
// change.
type State struct {
	engine *geometry.Engine
	params Params
	logger *zap.Logger

	images []*Image
	index  map[string]int
	dates  []string

	aoi     []geometry.Point
	aoiPoly *geometry.Polygon
	aoiArea float64

	timebins []Timebin
	attacks  []Attack
	classes  []EquivalenceClass

	claimed bool
}

// NewState sorts the inputs by capture date and drops images that have no
// footprint or an unreadable date.
func NewState(engine *geometry.Engine, params Params, logger *zap.Logger, inputs []ImageInput) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &State{
		engine: engine,
		params: params,
		logger: logger.Named("world"),
		index:  make(map[string]int),
	}

	for _, in := range inputs {
		if len(in.Footprint) == 0 {
			s.logger.Debug("Dropping image without footprint", zap.String("image_id", in.ID))
			continue
		}
		if _, dup := s.index[in.ID]; dup {
			s.logger.Warn("Dropping duplicate image id", zap.String("image_id", in.ID))
			continue
		}
		t, err := parseDate(in.Meta.Datum)
		if err != nil {
			s.logger.Warn("Dropping image with unreadable date",
				zap.String("image_id", in.ID), zap.String("datum", in.Meta.Datum), zap.Error(err))
			continue
		}
		meta := in.Meta
		meta.Datum = t.Format(time.DateOnly)
		usage := in.Usage
		if !usage.Valid() {
			usage = UsageUnset
		}
		img := &Image{
			id:        in.ID,
			meta:      meta,
			footprint: append([]geometry.Point(nil), in.Footprint...),
			time:      t,
			polarity:  polarityOf(meta.Bildnr),
			usage:     usage,
		}
		s.index[in.ID] = len(s.images)
		s.images = append(s.images, img)
	}

	sort.SliceStable(s.images, func(i, j int) bool {
		return s.images[i].time.Before(s.images[j].time)
	})
	for i, img := range s.images {
		s.index[img.id] = i
		if n := len(s.dates); n == 0 || s.dates[n-1] != img.meta.Datum {
			s.dates = append(s.dates, img.meta.Datum)
		}
	}
	return s
}

// Params returns the model constants.
func (s *State) Params() Params { return s.params }

// Engine returns the geometry engine used for every overlay.
func (s *State) Engine() *geometry.Engine { return s.engine }

// Images returns the images in capture order.
func (s *State) Images() []*Image { return append([]*Image(nil), s.images...) }

// Len returns the number of loaded images.
func (s *State) Len() int { return len(s.images) }

// Dates returns the distinct capture dates in ascending order.
func (s *State) Dates() []string { return append([]string(nil), s.dates...) }

// Lookup returns the image with the given id.
func (s *State) Lookup(id string) (*Image, error) {
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownImage, id)
	}
	return s.images[i], nil
}

// HasAreaOfInterest reports whether derived data is available.
func (s *State) HasAreaOfInterest() bool { return s.aoiPoly != nil }

// AOIArea returns the area of the area of interest.
func (s *State) AOIArea() float64 { return s.aoiArea }

// AreaOfInterest returns the AOI ring as loaded.
func (s *State) AreaOfInterest() []geometry.Point {
	return append([]geometry.Point(nil), s.aoi...)
}

// SetAreaOfInterest loads the AOI and recomputes polygons, coverage, interest,
// timebins, attacks and equivalence classes.
func (s *State) SetAreaOfInterest(points []geometry.Point) error {
	poly, err := s.engine.ToPolygon(points)
	if err != nil {
		return fmt.Errorf("invalid area of interest: %w", err)
	}
	area := s.engine.Area(poly)
	if area <= 0 {
		return fmt.Errorf("invalid area of interest: %w", geometry.ErrDegenerateFootprint)
	}
	s.aoi = append([]geometry.Point(nil), points...)
	s.aoiPoly = poly
	s.aoiArea = area
	s.logger.Info("Area of interest loaded", zap.Float64("area", area), zap.Int("images", len(s.images)))
	s.rebuild()
	return nil
}

// UpdateFootprint replaces an image footprint and recomputes all derived data.
func (s *State) UpdateFootprint(id string, points []geometry.Point) error {
	img, err := s.Lookup(id)
	if err != nil {
		return err
	}
	img.footprint = append([]geometry.Point(nil), points...)
	if s.HasAreaOfInterest() {
		s.rebuild()
	}
	return nil
}

// SetUsage records the analyst's decision and refreshes attack coverage. It
// returns the previous usage.
func (s *State) SetUsage(id string, usage Usage) (Usage, error) {
	if !usage.Valid() {
		return 0, fmt.Errorf("invalid usage %d", int(usage))
	}
	img, err := s.Lookup(id)
	if err != nil {
		return 0, err
	}
	prev := img.usage
	img.usage = usage
	s.calculateAttackCoverage()
	return prev, nil
}

// Prescriptions is the write handle for the guidance flag of one State. It is
// handed out once, so whoever claimed it is the only writer.
type Prescriptions struct {
	s *State
}

// ClaimPrescriptions returns the State's prescription handle. Every later call
// fails with ErrPrescriptionsClaimed.
func (s *State) ClaimPrescriptions() (*Prescriptions, error) {
	if s.claimed {
		return nil, ErrPrescriptionsClaimed
	}
	s.claimed = true
	return &Prescriptions{s: s}, nil
}

// Mark sets or clears the guidance flag and refreshes attack coverage.
// Repeating the same call is a no-op apart from the refresh.
func (p *Prescriptions) Mark(id string, prescribed bool) error {
	img, err := p.s.Lookup(id)
	if err != nil {
		return err
	}
	img.prescribed = prescribed
	p.s.calculateAttackCoverage()
	return nil
}

// SelectedIDs returns the ids of user-selected images in capture order.
func (s *State) SelectedIDs() []string {
	var ids []string
	for _, img := range s.images {
		if img.Selected() {
			ids = append(ids, img.id)
		}
	}
	return ids
}

// PrescribedIDs returns the ids carrying the guidance flag in capture order.
func (s *State) PrescribedIDs() []string {
	var ids []string
	for _, img := range s.images {
		if img.prescribed {
			ids = append(ids, img.id)
		}
	}
	return ids
}

// ImagesBetween returns the ids captured within [from, to].
func (s *State) ImagesBetween(from, to time.Time) []string {
	var ids []string
	for _, img := range s.images {
		if !img.time.Before(from) && !img.time.After(to) {
			ids = append(ids, img.id)
		}
	}
	return ids
}

// rebuild recomputes every derived structure from images and AOI.
func (s *State) rebuild() {
	s.annotate()
	s.buildTimebins()
	s.scoreInterest()
	s.normalizeInterest()
	s.buildAttacks()
	s.buildClasses()
	s.calculateAttackCoverage()
}
