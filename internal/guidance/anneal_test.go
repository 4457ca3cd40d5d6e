// File: internal/guidance/anneal_test.go
package guidance_test

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/aerialguide/internal/guidance"
	"github.com/xkilldash9x/aerialguide/internal/world"
)

func TestSimulatedAnnealing_MonotonicFloor(t *testing.T) {
	for _, acceptance := range []string{"prototype", "metropolis"} {
		for seed := int64(1); seed <= 8; seed++ {
			cfg := testConfig(seed)
			cfg.Anneal.Acceptance = acceptance
			f := newFixture(t, cfg)
			g := f.guide
			for _, id := range []string{"d1", "e1"} {
				require.NoError(t, g.Select(id))
			}
			start := g.Prescribed()
			before := g.PrescribedQuality()

			best := g.SimulatedAnnealing(start)
			assert.Equal(t, start, g.Prescribed(), "search must not touch the prescription")
			if best == nil {
				continue
			}
			assert.Greater(t, g.Quality(best), before, "%s seed %d", acceptance, seed)
			assert.Len(t, best, len(start))

			require.NoError(t, g.MakeNewPrescription(best))
			assert.ElementsMatch(t, best, g.Prescribed())
			assert.GreaterOrEqual(t, g.PrescribedQuality(), before)
		}
	}
}

func TestSimulatedAnnealing_NoImprovementPossible(t *testing.T) {
	f := newFixture(t, testConfig(1))
	g := f.guide
	// Everything else is discarded, so no swap exists.
	for _, img := range f.world.Images() {
		if img.ID() == "a1" {
			continue
		}
		_, err := f.world.SetUsage(img.ID(), world.UsageDiscarded)
		require.NoError(t, err)
	}
	require.NoError(t, g.Select("a1"))
	assert.Nil(t, g.SimulatedAnnealing(g.Prescribed()))
	assert.Nil(t, g.SimulatedAnnealing(nil))
}

func TestRandomSwap(t *testing.T) {
	f := newFixture(t, testConfig(7))
	g := f.guide
	require.NoError(t, g.Select("a1"))
	require.NoError(t, g.Select("c1"))
	_, err := f.world.SetUsage("c1", world.UsageSelected)
	require.NoError(t, err)
	_, err = f.world.SetUsage("b1", world.UsageDiscarded)
	require.NoError(t, err)

	set := []string{"a1", "c1"}
	for i := 0; i < 50; i++ {
		out, ok := g.RandomSwap(set)
		require.True(t, ok)
		assert.Equal(t, []string{"a1", "c1"}, set, "input is not mutated")
		assert.Len(t, out, 2)
		assert.Contains(t, out, "c1", "user selected images are locked")
		assert.NotContains(t, out, "a1")
		added := out[len(out)-1]
		assert.NotContains(t, []string{"a1", "c1", "b1"}, added)
	}

	t.Run("only locked elements", func(t *testing.T) {
		_, ok := g.RandomSwap([]string{"c1"})
		assert.False(t, ok)
	})
}

func TestMakeNewPrescription(t *testing.T) {
	f := newFixture(t, testConfig(1))
	g := f.guide
	require.NoError(t, g.Select("a1"))
	require.NoError(t, g.Select("a2"))

	require.NoError(t, g.MakeNewPrescription([]string{"a2", "c1"}))
	assert.Equal(t, []string{"a2", "c1"}, g.Prescribed())
	assert.False(t, f.image(t, "a1").Prescribed())
	assert.True(t, f.image(t, "c1").Prescribed())
	assert.Equal(t, 3, f.journal.count("prescribe"))
	assert.Equal(t, 1, f.journal.count("unprescribe"))
}

func TestRequestRefinement(t *testing.T) {
	f := newFixture(t, testConfig(5))
	g := f.guide
	require.NoError(t, g.Select("d1"))
	require.NoError(t, g.Select("e1"))
	before := g.PrescribedQuality()

	g.RequestRefinement()
	assert.Equal(t, guidance.Annealing, g.Phase())
	g.Tick()
	assert.Equal(t, guidance.Idle, g.Phase())
	assert.GreaterOrEqual(t, g.PrescribedQuality(), before)
	assert.Len(t, g.Prescribed(), 2)
}

func TestRefineAfterBuild(t *testing.T) {
	cfg := testConfig(2)
	cfg.BuildDelay = 2
	cfg.MaxPrescribed = 2
	cfg.RefineAfterBuild = true
	f := newFixture(t, cfg)
	g := f.guide

	sawAnnealing := false
	for i := 0; i < 1000 && (g.Phase() != guidance.Idle); i++ {
		g.Tick()
		sawAnnealing = sawAnnealing || g.Phase() == guidance.Annealing
	}
	assert.True(t, sawAnnealing)
	assert.Equal(t, guidance.Idle, g.Phase())
}

func TestAcceptancePolicies(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	// The prototype rule is not a probability: a large gain always passes even
	// at high temperature.
	proto := guidance.PrototypeAcceptance{}
	for i := 0; i < 100; i++ {
		assert.True(t, proto.Accept(10, 0, 100, rng))
	}
	// An equal candidate passes with 1/T.
	accepted := 0
	for i := 0; i < 10000; i++ {
		if proto.Accept(1, 1, 100, rng) {
			accepted++
		}
	}
	assert.InDelta(t, 100, accepted, 50)
	assert.False(t, proto.Accept(5, 0, 0, rng))

	metro := guidance.MetropolisAcceptance{}
	assert.True(t, metro.Accept(1, 0, 0.001, rng))
	for i := 0; i < 100; i++ {
		assert.False(t, metro.Accept(0, 50, 1, rng))
	}

	for _, name := range []string{"", "prototype", "metropolis"} {
		_, err := guidance.AcceptanceByName(name)
		assert.NoError(t, err, name)
	}
	_, err := guidance.AcceptanceByName("greedy")
	assert.Error(t, err)
}

func TestSetAcceptance(t *testing.T) {
	f := newFixture(t, testConfig(1))
	f.guide.SetAcceptance(nil)
	f.guide.SetAcceptance(guidance.MetropolisAcceptance{})
	require.NoError(t, f.guide.Select("a1"))
	res := f.guide.SimulatedAnnealing(f.guide.Prescribed())
	if res != nil {
		assert.False(t, slices.Equal(res, f.guide.Prescribed()))
	}
}
