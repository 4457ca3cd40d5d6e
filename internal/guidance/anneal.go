// File: internal/guidance/anneal.go
package guidance

import (
	"fmt"
	"math"
	"math/rand"
	"slices"

	"go.uber.org/zap"
)

// AcceptancePolicy decides whether the search moves to a candidate that does
// not beat the best known solution.
type AcceptancePolicy interface {
	Accept(candidate, current, temperature float64, rng *rand.Rand) bool
}

// PrototypeAcceptance accepts with exp(candidate-current)/T. The expression is
// not a probability: it exceeds 1 for large improvements and shrinks with T
// itself rather than with the scaled delta.
type PrototypeAcceptance struct{}

func (PrototypeAcceptance) Accept(candidate, current, temperature float64, rng *rand.Rand) bool {
	if temperature <= 0 {
		return false
	}
	return rng.Float64() < math.Exp(candidate-current)/temperature
}

// MetropolisAcceptance is the textbook rule: improvements always, otherwise
// exp(delta/T).
type MetropolisAcceptance struct{}

func (MetropolisAcceptance) Accept(candidate, current, temperature float64, rng *rand.Rand) bool {
	delta := candidate - current
	if delta >= 0 {
		return true
	}
	if temperature <= 0 {
		return false
	}
	return rng.Float64() < math.Exp(delta/temperature)
}

// AcceptanceByName resolves a configured policy.
func AcceptanceByName(name string) (AcceptancePolicy, error) {
	switch name {
	case "", "prototype":
		return PrototypeAcceptance{}, nil
	case "metropolis":
		return MetropolisAcceptance{}, nil
	default:
		return nil, fmt.Errorf("unknown acceptance policy %q", name)
	}
}

// SimulatedAnnealing searches around start for a set that strictly beats the
// current prescription. It returns nil when nothing better was found.
func (g *Guide) SimulatedAnnealing(start []string) []string {
	step := g.cfg.Anneal.Step
	if step <= 0 {
		return nil
	}
	current := slices.Clone(start)
	currentValue := g.Quality(current)
	bestValue := g.PrescribedQuality()
	var best []string
	iterations, accepted := 0, 0

	for t := g.cfg.Anneal.StartTemperature; t > 0; t -= step {
		iterations++
		candidate, ok := g.RandomSwap(current)
		if !ok {
			continue
		}
		candidateValue := g.Quality(candidate)
		switch {
		case candidateValue > bestValue:
			current, currentValue = candidate, candidateValue
			best, bestValue = slices.Clone(candidate), candidateValue
			accepted++
		case g.accept.Accept(candidateValue, currentValue, t, g.rng):
			current, currentValue = candidate, candidateValue
			accepted++
		}
	}

	g.logger.Debug("Annealing finished",
		zap.Int("iterations", iterations),
		zap.Int("accepted", accepted),
		zap.Bool("improved", best != nil),
		zap.Float64("best", bestValue))
	return best
}

// RandomSwap returns a copy of set with one random element that is not user
// selected replaced by a random image that is neither in set nor prescribed,
// selected or discarded. It reports false when no swap is possible.
func (g *Guide) RandomSwap(set []string) ([]string, bool) {
	if len(set) == 0 {
		return set, false
	}
	var removable []int
	for i, id := range set {
		img, err := g.world.Lookup(id)
		if err != nil || img.Selected() {
			continue
		}
		removable = append(removable, i)
	}
	if len(removable) == 0 {
		return set, false
	}

	var additions []string
	for _, img := range g.world.Images() {
		if slices.Contains(set, img.ID()) || img.Prescribed() || img.Selected() || img.Discarded() {
			continue
		}
		additions = append(additions, img.ID())
	}
	if len(additions) == 0 {
		return set, false
	}

	drop := removable[g.rng.Intn(len(removable))]
	add := additions[g.rng.Intn(len(additions))]
	out := make([]string, 0, len(set))
	out = append(out, set[:drop]...)
	out = append(out, set[drop+1:]...)
	return append(out, add), true
}

// MakeNewPrescription moves the prescription to next through the select and
// deselect primitives.
func (g *Guide) MakeNewPrescription(next []string) error {
	var toAdd, toRemove []string
	for _, id := range next {
		if !g.IsPrescribed(id) {
			toAdd = append(toAdd, id)
		}
	}
	for _, id := range g.prescribed {
		if !slices.Contains(next, id) {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toAdd {
		if err := g.Select(id); err != nil {
			return err
		}
	}
	for _, id := range toRemove {
		if err := g.Deselect(id); err != nil {
			return err
		}
	}
	return nil
}

func (g *Guide) refine() {
	before := g.PrescribedQuality()
	best := g.SimulatedAnnealing(g.prescribed)
	if best != nil {
		if err := g.MakeNewPrescription(best); err != nil {
			g.logger.Warn("Applying refined prescription failed", zap.Error(err))
		}
	}
	g.logger.Info("Refinement pass complete",
		zap.Bool("improved", best != nil),
		zap.Float64("before", before),
		zap.Float64("after", g.PrescribedQuality()))
	g.phase = Idle
}
