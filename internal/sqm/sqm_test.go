// File: internal/sqm/sqm_test.go
package sqm_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/aerialguide/internal/sqm"
	"github.com/xkilldash9x/aerialguide/internal/world"
	"github.com/xkilldash9x/aerialguide/internal/world/worldtest"
)

func images(t *testing.T, s *world.State, ids ...string) []*world.Image {
	t.Helper()
	out := make([]*world.Image, 0, len(ids))
	for _, id := range ids {
		img, err := s.Lookup(id)
		require.NoError(t, err)
		out = append(out, img)
	}
	return out
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

// pairedWorld has an overview on the zero attack and an adjacent detail pair
// five days after the 03-05 attack.
func pairedWorld(t *testing.T) *world.State {
	return worldtest.NewState(t, worldtest.Params("1944-03-05"),
		worldtest.Overview("o", "S0", 3001, "1944-03-01", false, worldtest.Strip(0, 10)),
		worldtest.Detail("d1", "S1", 4001, "1944-03-10", true, worldtest.Strip(0, 3)),
		worldtest.Detail("d2", "S1", 4002, "1944-03-10", false, worldtest.Strip(2, 3)),
	)
}

func TestQuality_EmptySelection(t *testing.T) {
	s := pairedWorld(t)
	for _, c := range []sqm.Composite{sqm.RichComposite{}, sqm.LinearComposite{}} {
		m := sqm.New(sqm.DefaultParams(), c, s)
		assert.Zero(t, m.Quality(nil), c.Name())
		assert.Equal(t, sqm.Indices{}, m.Evaluate(nil), c.Name())
	}
}

func TestQuality_NeverNaN(t *testing.T) {
	zeroScale := worldtest.Detail("zero-scale", "S1", 4003, "1944-03-02", false, worldtest.Strip(0, 1))
	zeroScale.Meta.Scale = 0
	s := worldtest.NewState(t, worldtest.Params("1944-03-05"),
		worldtest.Detail("outside", "S1", 4001, "1944-03-01", false, worldtest.Rect(40, 40, 1, 1)),
		zeroScale,
		worldtest.Overview("o", "S2", 3001, "1944-03-02", false, worldtest.Strip(0, 10)),
	)

	m := sqm.New(sqm.DefaultParams(), nil, s)
	all := s.Images()
	for i := range all {
		for j := i; j <= len(all); j++ {
			q := m.Quality(all[i:j])
			assert.False(t, math.IsNaN(q) || math.IsInf(q, 0), "selection %d:%d", i, j)
		}
	}

	broken := sqm.New(sqm.Params{}, nil, nil)
	q := broken.Quality(all)
	assert.False(t, math.IsNaN(q))
}

func TestBestShotTiers(t *testing.T) {
	lone := worldtest.NewState(t, worldtest.Params("1944-03-05"),
		worldtest.Detail("d1", "S1", 4001, "1944-03-10", false, worldtest.Strip(0, 3)),
		worldtest.Overview("o", "S0", 3001, "1944-03-10", false, worldtest.Strip(0, 10)),
	)
	assert.Equal(t, sqm.ShotDetail, sqm.BestShot(images(t, lone, "d1"), 20000), "one unpaired detail")
	assert.Equal(t, sqm.ShotDetail, sqm.BestShot(images(t, lone, "d1", "o"), 20000))
	assert.Equal(t, sqm.ShotOverview, sqm.BestShot(images(t, lone, "o"), 20000))

	paired := pairedWorld(t)
	assert.Equal(t, sqm.ShotPairedDetail, sqm.BestShot(images(t, paired, "d1"), 20000),
		"detail with a pair candidate outside the selection")
	assert.Equal(t, sqm.ShotPair, sqm.BestShot(images(t, paired, "d1", "d2"), 20000),
		"genuine adjacent pair")
}

func TestEconomyIndex(t *testing.T) {
	s := pairedWorld(t)
	p := sqm.DefaultParams()
	attacks := s.AttackTimes()
	require.Equal(t, []time.Time{date("1944-03-01"), date("1944-03-05")}, attacks)

	t.Run("all covered", func(t *testing.T) {
		// Zero attack: three covering images with a pair. 03-05: the pair alone.
		want := (2.0/3 + 2.0/2) * 0.95 / 2
		assert.InDelta(t, want, sqm.EconomyIndex(images(t, s, "o", "d1", "d2"), attacks, p), 1e-12)
	})

	t.Run("paired detail alone", func(t *testing.T) {
		assert.InDelta(t, 0.76, sqm.EconomyIndex(images(t, s, "d1"), attacks, p), 1e-12)
	})

	t.Run("uncovered last attack collapses the index", func(t *testing.T) {
		assert.Zero(t, sqm.EconomyIndex(images(t, s, "o"), attacks, p))
	})

	t.Run("uncovered earlier attack is skipped", func(t *testing.T) {
		early := []time.Time{date("1944-01-01"), date("1944-03-05")}
		assert.InDelta(t, 0.8*0.95/2, sqm.EconomyIndex(images(t, s, "d1"), early, p), 1e-12)
	})

	t.Run("no attacks", func(t *testing.T) {
		assert.Zero(t, sqm.EconomyIndex(images(t, s, "d1"), nil, p))
	})
}

func TestTimeSawIndex(t *testing.T) {
	s := worldtest.NewState(t, worldtest.Params(),
		worldtest.Detail("a", "S1", 4001, "1944-03-01", false, worldtest.Strip(0, 1)),
		worldtest.Detail("b", "S2", 4001, "1944-03-11", false, worldtest.Strip(0, 1)),
		worldtest.Detail("c", "S3", 4001, "1944-04-05", false, worldtest.Strip(0, 1)),
		worldtest.Detail("d", "S4", 4001, "1944-06-04", false, worldtest.Strip(0, 1)),
	)
	const span = 15750.0

	assert.Zero(t, sqm.TimeSawIndex(nil, span))
	assert.InDelta(t, 312.5/span, sqm.TimeSawIndex(images(t, s, "a"), span), 1e-12, "terminal bonus only")
	// 10 days: 25*10 - 100/2
	assert.InDelta(t, (200+312.5)/span, sqm.TimeSawIndex(images(t, s, "b", "a"), span), 1e-12)
	// 25 days hits the cap.
	assert.InDelta(t, (312.5+312.5)/span, sqm.TimeSawIndex(images(t, s, "b", "c"), span), 1e-12)
	// 60 days falls to zero.
	assert.InDelta(t, 312.5/span, sqm.TimeSawIndex(images(t, s, "c", "d"), span), 1e-12)
	assert.Zero(t, sqm.TimeSawIndex(images(t, s, "a"), 0))
}

func TestMeanIndices(t *testing.T) {
	s := pairedWorld(t)
	sel := images(t, s, "d1", "d2")
	assert.InDelta(t, 0.5, sqm.OwnedIndex(sel), 1e-12)
	assert.InDelta(t, 0.3, sqm.SpatialIndex(sel), 1e-12)
	assert.InDelta(t, 30/worldtest.DetailScale, sqm.InfoIndex(sel), 1e-12)
	assert.Zero(t, sqm.InfoIndex(nil))
}

func TestComposites(t *testing.T) {
	ix := sqm.Indices{Info: 0.01, Owned: 0.5, Spatial: 0.3, TimeSaw: 0.04, Economy: 0.5}
	assert.InDelta(t, 0.5*0.04+0.5+0.3+0.01, sqm.RichComposite{}.Combine(ix), 1e-12)
	assert.InDelta(t, 0.5*0.05+0.3, sqm.LinearComposite{}.Combine(ix), 1e-12)

	c, err := sqm.CompositeByName("")
	require.NoError(t, err)
	assert.Equal(t, "rich", c.Name())
	c, err = sqm.CompositeByName("linear")
	require.NoError(t, err)
	assert.Equal(t, "linear", c.Name())
	_, err = sqm.CompositeByName("quadratic")
	assert.Error(t, err)
}

func TestModelQualityMatchesIndices(t *testing.T) {
	s := pairedWorld(t)
	m := sqm.New(sqm.DefaultParams(), sqm.RichComposite{}, s)
	sel := images(t, s, "o", "d1", "d2")
	ix := m.Evaluate(sel)
	assert.InDelta(t, sqm.RichComposite{}.Combine(ix), m.Quality(sel), 1e-12)
	assert.Greater(t, m.Quality(sel), 0.0)
}
