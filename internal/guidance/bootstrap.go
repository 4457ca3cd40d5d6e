// File: internal/guidance/bootstrap.go
package guidance

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/world"
)

// SeedFromClasses prescribes, for every reduced equivalence class, its most
// interesting image and that image's most interesting pair partner.
func (g *Guide) SeedFromClasses() error {
	if !g.world.HasAreaOfInterest() {
		return world.ErrNoAreaOfInterest
	}
	seeded := 0
	for _, class := range world.ReducedClasses(g.world.Classes()) {
		if len(g.prescribed) >= g.cfg.Cap() {
			break
		}
		pick := g.bestOf(g.world.ClassImages(class))
		if pick == nil {
			continue
		}
		if err := g.Select(pick.ID()); err != nil {
			return err
		}
		seeded++
		if partner := g.bestOf(pick.PairCandidates()); partner != nil && len(g.prescribed) < g.cfg.Cap() {
			if err := g.Select(partner.ID()); err != nil {
				return err
			}
			seeded++
		}
	}
	g.logger.Info("Seeded prescription from equivalence classes", zap.Int("images", seeded))
	return nil
}

// bestOf returns the covering, undiscarded image of highest normalized
// interest, or nil.
func (g *Guide) bestOf(ids []string) *world.Image {
	var best *world.Image
	for _, img := range g.resolve(ids) {
		if !img.Covers() || img.Discarded() {
			continue
		}
		if best == nil || img.InterestPost() > best.InterestPost() {
			best = img
		}
	}
	return best
}
