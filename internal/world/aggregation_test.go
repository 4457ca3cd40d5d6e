// File: internal/world/aggregation_test.go
package world_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/aerialguide/internal/world"
	"github.com/xkilldash9x/aerialguide/internal/world/worldtest"
)

func calendarState(t *testing.T) *world.State {
	t.Helper()
	return worldtest.NewState(t, worldtest.Params("1944-04-15", "1944-03-05"),
		worldtest.Detail("a", "S1", 4001, "1944-03-01", false, worldtest.Rect(0, 0, 5, 5)),
		worldtest.Detail("b", "S2", 4001, "1944-03-10", false, worldtest.Rect(5, 5, 5, 5)),
		worldtest.Detail("c", "S2", 4002, "1944-03-10", false, worldtest.Rect(0, 5, 5, 5)),
		worldtest.Overview("d", "S3", 3001, "1944-04-20", false, worldtest.Strip(0, 10)),
	)
}

func TestBuildAttacks(t *testing.T) {
	s := calendarState(t)

	attacks := s.Attacks()
	require.Len(t, attacks, 3)
	assert.Equal(t, []string{"1944-03-01", "1944-03-05", "1944-04-15"}, s.AttackDates(),
		"zero attack at the first capture date, calendar sorted")

	want := []struct{ flights, ext []string }{
		{[]string{"1944-03-01"}, []string{"1944-03-01", "1944-03-10"}},
		{[]string{"1944-03-10"}, []string{"1944-03-10"}},
		{[]string{"1944-04-20"}, []string{"1944-04-20"}},
	}
	for i, w := range want {
		assert.Equal(t, i, attacks[i].Position)
		assert.Equal(t, w.flights, attacks[i].Flights, attacks[i].Date)
		assert.Equal(t, w.ext, attacks[i].ExtFlights, attacks[i].Date)
	}
}

func TestBuildAttacks_RaidOnFirstCaptureDate(t *testing.T) {
	s := worldtest.NewState(t, worldtest.Params("1944-03-01", "1944-04-01", "1944-03-01"),
		worldtest.Detail("a", "S1", 4001, "1944-03-01", false, worldtest.Rect(0, 0, 5, 5)),
		worldtest.Detail("b", "S2", 4001, "1944-04-03", false, worldtest.Rect(5, 5, 5, 5)),
	)

	assert.Equal(t, []string{"1944-03-01", "1944-04-01"}, s.AttackDates())
	attacks := s.Attacks()
	require.Len(t, attacks, 2)
	assert.Equal(t, 1, attacks[1].Position)
	assert.Equal(t, []string{"1944-03-01"}, s.Timebins()[0].Attacks)
}

func TestTimebins(t *testing.T) {
	s := calendarState(t)

	tbs := s.Timebins()
	require.Len(t, tbs, 3)
	assert.Equal(t, []string{"a"}, tbs[0].Images)
	assert.Equal(t, []string{"b", "c"}, tbs[1].Images)
	assert.InDelta(t, 0.5, tbs[1].AggCoverage[0], 1e-9)
	assert.Zero(t, tbs[1].AggCoverage[1])
	assert.InDelta(t, 1.0, tbs[2].AggCoverage[1], 1e-9)

	assert.Equal(t, []string{"1944-03-01"}, tbs[0].Attacks)
	assert.Equal(t, []string{"1944-03-01", "1944-03-05"}, tbs[1].Attacks)
	assert.Equal(t, []string{"1944-04-15"}, tbs[2].Attacks)

	assert.Equal(t, [][]int{{1, 0, 0}, {1, 1, 0}, {0, 0, 1}}, s.AttackMatrix())
}

func TestAggregateCoverage(t *testing.T) {
	s := calendarState(t)

	assert.InDelta(t, 0.5, s.AggregateCoverage([]string{"a", "b"}), 1e-9, "disjoint quarters")
	assert.InDelta(t, 0.25, s.AggregateCoverage([]string{"a", "a"}), 1e-9, "set semantics")
	assert.InDelta(t, 1.0, s.AggregateCoverage([]string{"a", "b", "d"}), 1e-9)
	assert.Zero(t, s.AggregateCoverage(nil))
	assert.Zero(t, s.AggregateCoverage([]string{"missing"}))
}

func TestCalculateAttackCoverage(t *testing.T) {
	s := calendarState(t)

	_, err := s.SetUsage("b", world.UsageSelected)
	require.NoError(t, err)
	marks, err := s.ClaimPrescriptions()
	require.NoError(t, err)
	require.NoError(t, marks.Mark("c", true))

	attacks := s.Attacks()
	// b and c fly on 03-10, inside the extended window of the zero attack and 03-05.
	for _, i := range []int{0, 1} {
		assert.InDelta(t, 0.25, attacks[i].UserCoverage(), 1e-9, attacks[i].Date)
		assert.InDelta(t, 0.25, attacks[i].PrescribedCoverage(), 1e-9, attacks[i].Date)
		assert.True(t, attacks[i].Prescribed, attacks[i].Date)
	}
	assert.Zero(t, attacks[2].UserCoverage())
	assert.False(t, attacks[2].Prescribed)

	require.NoError(t, marks.Mark("c", false))
	for _, a := range s.Attacks() {
		assert.False(t, a.Prescribed, a.Date)
		assert.Zero(t, a.PrescribedCoverage(), a.Date)
	}
}

func TestPartitionClasses(t *testing.T) {
	keys := [][]string{{"x"}, {"x"}, {"x", "y"}, {"y"}, {"y"}, {}, {"y"}}
	classes := world.PartitionClasses(keys)

	var flat []int
	for _, c := range classes {
		flat = append(flat, c.Timebins...)
	}
	assert.Empty(t, cmp.Diff([]int{0, 1, 2, 3, 4, 5, 6}, flat), "classes cover the sequence in order")

	for i := 1; i < len(classes); i++ {
		assert.NotEqual(t, classes[i-1].Attacks, classes[i].Attacks, "adjacent classes must differ")
	}
	assert.Len(t, classes, 5)

	t.Run("order sensitive", func(t *testing.T) {
		classes := world.PartitionClasses([][]string{{"x", "y"}, {"y", "x"}})
		assert.Len(t, classes, 2)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, world.PartitionClasses(nil))
	})
}

func TestReducedClasses(t *testing.T) {
	classes := world.PartitionClasses([][]string{{"x"}, {"x", "y"}, {"y"}, {"z"}})
	reduced := world.ReducedClasses(classes)

	var got [][]string
	for _, c := range reduced {
		got = append(got, c.Attacks)
	}
	want := [][]string{{"x", "y"}, {"z"}}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestClassImages(t *testing.T) {
	s := calendarState(t)
	classes := s.Classes()
	require.Len(t, classes, 3)
	assert.Equal(t, []string{"b", "c"}, s.ClassImages(classes[1]))
}
