// File: internal/world/aggregation.go
package world

import (
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/geometry"
)

// Timebin groups every image captured on one date.
type Timebin struct {
	Date   string
	Time   time.Time
	Images []string
	// AggCoverage is the union coverage of the detail and overview subsets.
	AggCoverage [2]float64
	// Attacks lists the attack dates this timebin lies within DayRange after.
	Attacks []string
}

// Attack is one raid of the calendar together with the flights that can
// document it.
type Attack struct {
	Date     string
	Time     time.Time
	Position int
	// Flights are capture dates on/after this attack and before the next one.
	Flights []string
	// ExtFlights are capture dates within DayRange after the attack.
	ExtFlights []string
	// Coverage holds the union coverage of user selected and prescribed images
	// captured in ExtFlights.
	Coverage [2]float64
	// Prescribed is true while some prescribed image answers this attack.
	Prescribed bool
}

// UserCoverage is the AOI share covered by user selected images.
func (a Attack) UserCoverage() float64 { return a.Coverage[0] }

// PrescribedCoverage is the AOI share covered by prescribed images.
func (a Attack) PrescribedCoverage() float64 { return a.Coverage[1] }

// EquivalenceClass is a maximal run of consecutive timebins answering the
// same attacks. Timebins holds indices into State.Timebins.
type EquivalenceClass struct {
	Timebins []int
	Attacks  []string
}

// Timebins returns the timebins in date order.
func (s *State) Timebins() []Timebin { return slices.Clone(s.timebins) }

// Attacks returns the attacks, starting with the synthetic zero attack.
func (s *State) Attacks() []Attack { return slices.Clone(s.attacks) }

// Classes returns the equivalence classes in time order.
func (s *State) Classes() []EquivalenceClass { return slices.Clone(s.classes) }

// AttackDates returns the dates of all attacks including the zero attack.
func (s *State) AttackDates() []string {
	dates := make([]string, len(s.attacks))
	for i, a := range s.attacks {
		dates[i] = a.Date
	}
	return dates
}

// AttackTimes returns the attack instants including the zero attack.
func (s *State) AttackTimes() []time.Time {
	times := make([]time.Time, len(s.attacks))
	for i, a := range s.attacks {
		times[i] = a.Time
	}
	return times
}

func (s *State) buildTimebins() {
	s.timebins = s.timebins[:0]
	for _, d := range s.dates {
		tb := Timebin{Date: d}
		var details, overviews []*geometry.Polygon
		for _, img := range s.images {
			if img.meta.Datum != d {
				continue
			}
			tb.Time = img.time
			tb.Images = append(tb.Images, img.id)
			if !img.Covers() {
				continue
			}
			if img.IsDetail(s.params.DetailScaleMax) {
				details = append(details, img.polyAOI)
			} else {
				overviews = append(overviews, img.polyAOI)
			}
		}
		tb.AggCoverage = [2]float64{s.unionCoverage(details), s.unionCoverage(overviews)}
		s.timebins = append(s.timebins, tb)
	}
}

// buildAttacks prepends the zero attack at the first capture date and derives
// the flight windows of every attack. Calendar dates are sorted and unique.
func (s *State) buildAttacks() {
	s.attacks = s.attacks[:0]
	if len(s.dates) == 0 {
		return
	}

	calendar := make([]string, 0, len(s.params.AttackDates))
	for _, d := range s.params.AttackDates {
		t, err := parseDate(d)
		if err != nil {
			s.logger.Warn("Skipping unreadable attack date", zap.String("date", d), zap.Error(err))
			continue
		}
		calendar = append(calendar, t.Format(time.DateOnly))
	}
	sort.Strings(calendar)
	calendar = slices.Compact(calendar)
	// A raid on the first capture date is the zero attack itself.
	calendar = slices.DeleteFunc(calendar, func(d string) bool { return d == s.dates[0] })
	calendar = append([]string{s.dates[0]}, calendar...)

	window := s.params.window()
	for i, d := range calendar {
		at, _ := parseDate(d)
		a := Attack{Date: d, Time: at, Position: i}
		for _, fd := range s.dates {
			ft, _ := parseDate(fd)
			if ft.Before(at) {
				continue
			}
			if i+1 >= len(calendar) || fd < calendar[i+1] {
				a.Flights = append(a.Flights, fd)
			}
			if ft.Sub(at) < window {
				a.ExtFlights = append(a.ExtFlights, fd)
			}
		}
		s.attacks = append(s.attacks, a)
	}

	for i := range s.timebins {
		tb := &s.timebins[i]
		tb.Attacks = nil
		for _, a := range s.attacks {
			if !tb.Time.Before(a.Time) && tb.Time.Sub(a.Time) < window {
				tb.Attacks = append(tb.Attacks, a.Date)
			}
		}
	}
}

func (s *State) buildClasses() {
	keys := make([][]string, len(s.timebins))
	for i, tb := range s.timebins {
		keys[i] = tb.Attacks
	}
	s.classes = PartitionClasses(keys)
}

// PartitionClasses groups consecutive entries with equal (order sensitive)
// attack lists into maximal runs.
func PartitionClasses(attacks [][]string) []EquivalenceClass {
	var classes []EquivalenceClass
	for i, key := range attacks {
		if n := len(classes); n > 0 && slices.Equal(classes[n-1].Attacks, key) {
			classes[n-1].Timebins = append(classes[n-1].Timebins, i)
			continue
		}
		classes = append(classes, EquivalenceClass{
			Timebins: []int{i},
			Attacks:  slices.Clone(key),
		})
	}
	return classes
}

// ReducedClasses keeps the classes whose attacks are not all contained in the
// previous or the next class. Each survivor is a distinct documentation
// obligation.
func ReducedClasses(classes []EquivalenceClass) []EquivalenceClass {
	var out []EquivalenceClass
	for i, c := range classes {
		if i+1 < len(classes) && containsAll(classes[i+1].Attacks, c.Attacks) {
			continue
		}
		if i > 0 && containsAll(classes[i-1].Attacks, c.Attacks) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func containsAll(set, items []string) bool {
	for _, it := range items {
		if !slices.Contains(set, it) {
			return false
		}
	}
	return true
}

// ClassImages returns the ids of every image in the timebins of c.
func (s *State) ClassImages(c EquivalenceClass) []string {
	var ids []string
	for _, ti := range c.Timebins {
		if ti >= 0 && ti < len(s.timebins) {
			ids = append(ids, s.timebins[ti].Images...)
		}
	}
	return ids
}

// calculateAttackCoverage recomputes, for every attack, the coverage of the
// selected and prescribed images in its extended window.
func (s *State) calculateAttackCoverage() {
	for i := range s.attacks {
		a := &s.attacks[i]
		var selected, prescribed []string
		for _, img := range s.images {
			if !slices.Contains(a.ExtFlights, img.meta.Datum) {
				continue
			}
			if img.Selected() {
				selected = append(selected, img.id)
			}
			if img.prescribed {
				prescribed = append(prescribed, img.id)
			}
		}
		a.Coverage = [2]float64{s.AggregateCoverage(selected), s.AggregateCoverage(prescribed)}
		a.Prescribed = len(prescribed) > 0
	}
}

// AggregateCoverage is the share of the AOI covered by the union of the
// images' AOI intersections. Repeated ids are counted once.
func (s *State) AggregateCoverage(ids []string) float64 {
	seen := make(map[string]bool, len(ids))
	var polys []*geometry.Polygon
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		img, err := s.Lookup(id)
		if err != nil {
			continue
		}
		polys = append(polys, img.polyAOI)
	}
	return s.unionCoverage(polys)
}

func (s *State) unionCoverage(polys []*geometry.Polygon) float64 {
	if len(polys) == 0 || s.aoiArea <= 0 {
		return 0
	}
	u, err := s.engine.UnionAll(polys)
	if err != nil {
		s.logger.Warn("Coverage union failed", zap.Error(err))
	}
	return safeRatio(s.engine.Area(u), s.aoiArea)
}

// AttackMatrix returns, for each timebin, a 0/1 row over AttackDates.
func (s *State) AttackMatrix() [][]int {
	matrix := make([][]int, len(s.timebins))
	for i, tb := range s.timebins {
		row := make([]int, len(s.attacks))
		for j, a := range s.attacks {
			if slices.Contains(tb.Attacks, a.Date) {
				row[j] = 1
			}
		}
		matrix[i] = row
	}
	return matrix
}
