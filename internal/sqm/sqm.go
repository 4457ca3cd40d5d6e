// File: internal/sqm/sqm.go
// Package sqm implements the selection quality model: the single objective
// used to rank images by marginal value and to compare candidate selections.
package sqm

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/xkilldash9x/aerialguide/internal/world"
)

const day = 24 * time.Hour

// sawCap is the largest reward a single gap between captures can earn, reached
// at a gap of 25 days.
const sawCap = 25 * 12.5

// Params holds the constants of the quality model.
type Params struct {
	// DelayThresholdDays bounds how long after an attack an image still covers it.
	DelayThresholdDays int `mapstructure:"delay_threshold_days" yaml:"delay_threshold_days"`
	// ProjectTimespanDays normalizes the temporal sawtooth reward.
	ProjectTimespanDays float64 `mapstructure:"project_timespan_days" yaml:"project_timespan_days"`
	// DetailScaleMax separates detail from overview images.
	DetailScaleMax float64 `mapstructure:"-" yaml:"-"`
}

// DefaultParams returns the calibrated constants.
func DefaultParams() Params {
	return Params{
		DelayThresholdDays:  20,
		ProjectTimespanDays: 21 * 30 * 25,
		DetailScaleMax:      20000,
	}
}

// Calendar provides the attack instants the economy index is measured against.
type Calendar interface {
	AttackTimes() []time.Time
}

// Indices are the independent sub-scores of a selection.
type Indices struct {
	Info    float64 `json:"info"`
	Owned   float64 `json:"owned"`
	Spatial float64 `json:"spatial"`
	TimeSaw float64 `json:"time_saw"`
	Economy float64 `json:"economy"`
}

// Model evaluates selections against a calendar.
type Model struct {
	params    Params
	composite Composite
	calendar  Calendar
}

// New returns a model. A nil composite selects RichComposite.
func New(params Params, composite Composite, calendar Calendar) *Model {
	if composite == nil {
		composite = RichComposite{}
	}
	return &Model{params: params, composite: composite, calendar: calendar}
}

// Params returns the model constants.
func (m *Model) Params() Params { return m.params }

// Composite returns the combination policy in use.
func (m *Model) Composite() Composite { return m.composite }

// Evaluate computes every sub-index. Non-finite results are reported as 0.
func (m *Model) Evaluate(selection []*world.Image) Indices {
	var attacks []time.Time
	if m.calendar != nil {
		attacks = m.calendar.AttackTimes()
	}
	return Indices{
		Info:    finite(InfoIndex(selection)),
		Owned:   finite(OwnedIndex(selection)),
		Spatial: finite(SpatialIndex(selection)),
		TimeSaw: finite(TimeSawIndex(selection, m.params.ProjectTimespanDays)),
		Economy: finite(EconomyIndex(selection, attacks, m.params)),
	}
}

// Quality is the composite score of selection. The empty selection scores 0.
func (m *Model) Quality(selection []*world.Image) float64 {
	if len(selection) == 0 {
		return 0
	}
	return finite(m.composite.Combine(m.Evaluate(selection)))
}

// InfoIndex is the mean information measure.
func InfoIndex(selection []*world.Image) float64 {
	return mean(selection, func(a *world.Image) float64 { return a.InformationMeasure() })
}

// OwnedIndex is the share of images already owned by the archive.
func OwnedIndex(selection []*world.Image) float64 {
	return mean(selection, func(a *world.Image) float64 {
		if a.Owned() {
			return 1
		}
		return 0
	})
}

// SpatialIndex is the mean coverage ratio.
func SpatialIndex(selection []*world.Image) float64 {
	return mean(selection, func(a *world.Image) float64 { return a.CoverageRatio() })
}

// TimeSawIndex rewards gaps between consecutive captures with an inverted-U
// of the gap in whole days, capped at sawCap, plus a terminal bonus for the
// earliest capture.
func TimeSawIndex(selection []*world.Image, projectTimespanDays float64) float64 {
	if len(selection) == 0 || projectTimespanDays <= 0 {
		return 0
	}
	sorted := append([]*world.Image(nil), selection...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time().After(sorted[j].Time())
	})
	agg := 0.0
	for i := 0; i+1 < len(sorted); i++ {
		agg += sawReward(sorted[i].Time().Sub(sorted[i+1].Time()))
	}
	return (agg + sawCap) / projectTimespanDays
}

func sawReward(gap time.Duration) float64 {
	d := math.Floor(gap.Hours()/24 + 0.5)
	return clamp(25*d-d*d/2, 0, sawCap)
}

// Shot tiers of the economy index, best first.
const (
	ShotPair         = 2.0
	ShotPairedDetail = 0.8
	ShotDetail       = 0.4
	ShotOverview     = 0.2
)

// BestShot grades the images covering one attack.
func BestShot(covering []*world.Image, detailScaleMax float64) float64 {
	var details, pairedDetails int
	for _, a := range covering {
		if !a.IsDetail(detailScaleMax) {
			continue
		}
		details++
		if a.HasPairs() {
			pairedDetails++
		}
	}
	switch {
	case details >= 2 && hasAdjacentPair(covering):
		return ShotPair
	case pairedDetails == 1:
		return ShotPairedDetail
	case details == 1:
		return ShotDetail
	default:
		return ShotOverview
	}
}

func hasAdjacentPair(images []*world.Image) bool {
	for i, a := range images {
		for _, b := range images[i+1:] {
			if a.AdjacentTo(b) {
				return true
			}
		}
	}
	return false
}

// Covering returns the images captured on or after at and less than
// threshold later.
func Covering(selection []*world.Image, at time.Time, threshold time.Duration) []*world.Image {
	var out []*world.Image
	for _, a := range selection {
		td := a.Time().Sub(at)
		if td >= 0 && td < threshold {
			out = append(out, a)
		}
	}
	return out
}

// EconomyIndex sums, over all attacks, the best shot grade shared among the
// covering images. An uncovered attack contributes nothing, except the last
// one: when the final attack is uncovered the whole index collapses to 0.
func EconomyIndex(selection []*world.Image, attacks []time.Time, p Params) float64 {
	if len(attacks) == 0 || p.DelayThresholdDays <= 0 {
		return 0
	}
	threshold := time.Duration(p.DelayThresholdDays) * day
	damping := 1 - 1/float64(p.DelayThresholdDays)
	agg := 0.0
	for j, at := range attacks {
		covering := Covering(selection, at, threshold)
		if len(covering) == 0 {
			if j == len(attacks)-1 {
				return 0
			}
			continue
		}
		shot := BestShot(covering, p.DetailScaleMax)
		agg += shot / float64(len(covering)) * damping / float64(len(attacks))
	}
	return agg
}

// Composite folds the sub-indices into one score.
type Composite interface {
	Name() string
	Combine(Indices) float64
}

// RichComposite scales the temporal reward by the economy of the selection and
// adds the three mean indices.
type RichComposite struct{}

func (RichComposite) Name() string { return "rich" }

func (RichComposite) Combine(ix Indices) float64 {
	return ix.Economy*ix.TimeSaw + (ix.Owned + ix.Spatial + ix.Info)
}

// LinearComposite is the early coverage-only objective.
type LinearComposite struct{}

func (LinearComposite) Name() string { return "linear" }

func (LinearComposite) Combine(ix Indices) float64 {
	return ix.Owned*0.05 + ix.Spatial
}

// CompositeByName resolves a configured composite.
func CompositeByName(name string) (Composite, error) {
	switch name {
	case "", "rich":
		return RichComposite{}, nil
	case "linear":
		return LinearComposite{}, nil
	default:
		return nil, fmt.Errorf("unknown quality composite %q", name)
	}
}

func mean(selection []*world.Image, f func(*world.Image) float64) float64 {
	if len(selection) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range selection {
		sum += finite(f(a))
	}
	return sum / float64(len(selection))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
