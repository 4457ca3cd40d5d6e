// File: internal/guidance/orient.go
package guidance

import (
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/world"
)

// Orient assigns every image its marginal value against the joint solution:
// the quality lost by removing a member, or gained by adding a non-member.
// The normalized value is for display only.
func (g *Guide) Orient() {
	joint := g.Joint()
	members := g.resolve(joint)
	base := g.model.Quality(members)
	g.qualityLog = append(g.qualityLog, base)

	images := g.world.Images()
	values := make([]float64, len(images))
	for i, img := range images {
		if idx := slices.Index(members, img); idx >= 0 {
			without := slices.Delete(slices.Clone(members), idx, idx+1)
			values[i] = g.model.Quality(without) - base
		} else {
			with := append(slices.Clone(members), img)
			values[i] = g.model.Quality(with) - base
		}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	span := hi - lo
	for i, img := range images {
		normalized := 0.0
		if span > 0 {
			normalized = (values[i] - lo) / span
		}
		img.SetValue(values[i], normalized)
	}
	g.oriented = true
	g.logger.Debug("Oriented", zap.Int("joint", len(joint)), zap.Float64("quality", base))
}

// Candidates returns the images Generate may prescribe.
func (g *Guide) Candidates() []*world.Image {
	var out []*world.Image
	for _, img := range g.world.Images() {
		if img.Prescribed() || img.Discarded() || img.Selected() {
			continue
		}
		out = append(out, img)
	}
	return out
}

// Generate prescribes the candidate of highest value if it is worth more than
// Epsilon and the cap is not reached. Otherwise the build cycle ends.
func (g *Guide) Generate() {
	g.oriented = false
	candidates := g.Candidates()
	if len(candidates) == 0 {
		g.finishBuild("no candidates")
		return
	}
	best := candidates[0]
	for _, img := range candidates[1:] {
		if img.Value() > best.Value() {
			best = img
		}
	}
	if best.Value() <= g.cfg.Epsilon {
		g.finishBuild("no valuable candidate")
		return
	}
	if len(g.prescribed) >= g.cfg.Cap() {
		g.finishBuild("cap reached")
		return
	}
	if err := g.Select(best.ID()); err != nil {
		g.logger.Warn("Prescription failed", zap.String("image_id", best.ID()), zap.Error(err))
		g.finishBuild("prescription failed")
	}
}
