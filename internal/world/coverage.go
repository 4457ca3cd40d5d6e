// File: internal/world/coverage.go
package world

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/geometry"
)

// ownershipWeight doubles the interest of images the archive already owns.
func ownershipWeight(owned bool) float64 {
	if owned {
		return 2
	}
	return 1
}

// annotate rebuilds per-image polygons, coverage and information measure.
func (s *State) annotate() {
	for _, img := range s.images {
		img.polyFull, img.polyAOI = nil, nil
		img.coverageRatio, img.information = 0, 0
		img.pairs = nil
		img.interestPre, img.interestPost = 0, 0

		full, err := s.engine.ToPolygon(img.footprint)
		if err != nil {
			s.logger.Warn("Footprint rejected, treating as zero coverage",
				zap.String("image_id", img.id), zap.Error(err))
			continue
		}
		img.polyFull = full

		inter, err := s.engine.Intersect(full, s.aoiPoly)
		if err != nil {
			s.logger.Warn("Intersection with AOI failed, treating as zero coverage",
				zap.String("image_id", img.id), zap.Error(err))
			continue
		}
		cvgArea := s.engine.Area(inter)
		ratio := safeRatio(cvgArea, s.aoiArea)
		if inter == nil || ratio <= 0 {
			continue
		}
		img.polyAOI = inter
		img.coverageRatio = math.Min(ratio, 1)
		if img.meta.Scale > 0 {
			img.information = cvgArea / img.meta.Scale
		}
	}
}

// scoreInterest assigns the raw interest of every image, timebin by timebin.
// Pairing is only considered within the same capture date.
func (s *State) scoreInterest() {
	for _, tb := range s.timebins {
		var details, overviews []*Image
		for _, id := range tb.Images {
			img := s.images[s.index[id]]
			if !img.Covers() {
				continue
			}
			if img.IsDetail(s.params.DetailScaleMax) {
				details = append(details, img)
			} else {
				overviews = append(overviews, img)
			}
		}

		for _, a := range details {
			a.interestPre = s.detailInterest(a, details)
		}

		var detailUnion *geometry.Polygon
		if len(details) > 0 {
			polys := make([]*geometry.Polygon, 0, len(details))
			for _, d := range details {
				polys = append(polys, d.polyAOI)
			}
			u, err := s.engine.UnionAll(polys)
			if err != nil {
				s.logger.Warn("Detail union failed", zap.String("date", tb.Date), zap.Error(err))
			}
			detailUnion = u
		}
		for _, a := range overviews {
			a.interestPre = s.overviewInterest(a, detailUnion)
		}
	}
}

// detailInterest scores a detail image. Adjacent frames of the same flight add
// the share of the AOI they cover together with a, owned partners at full
// weight and unowned ones at half weight.
func (s *State) detailInterest(a *Image, details []*Image) float64 {
	var owned, unowned []*Image
	for _, b := range details {
		if !a.AdjacentTo(b) {
			continue
		}
		a.pairs = append(a.pairs, b.id)
		if b.meta.Owned {
			owned = append(owned, b)
		} else {
			unowned = append(unowned, b)
		}
	}
	w := ownershipWeight(a.meta.Owned)
	if len(a.pairs) == 0 {
		return a.coverageRatio * w
	}
	paired := s.pairedShare(a, owned)*1 + s.pairedShare(a, unowned)*0.5
	return (a.coverageRatio + paired) * w
}

func (s *State) pairedShare(a *Image, partners []*Image) float64 {
	if len(partners) == 0 {
		return 0
	}
	polys := make([]*geometry.Polygon, 0, len(partners))
	for _, b := range partners {
		polys = append(polys, b.polyAOI)
	}
	union, err := s.engine.UnionAll(polys)
	if err != nil {
		s.logger.Warn("Pair union failed", zap.String("image_id", a.id), zap.Error(err))
		return 0
	}
	inter, err := s.engine.Intersect(a.polyAOI, union)
	if err != nil {
		s.logger.Warn("Pair intersection failed", zap.String("image_id", a.id), zap.Error(err))
		return 0
	}
	return safeRatio(s.engine.Area(inter), s.aoiArea)
}

// overviewInterest halves the score of small scale images and discounts the
// part of their coverage already explained by the same day's details. The
// difference is intentionally left unclamped.
func (s *State) overviewInterest(a *Image, detailUnion *geometry.Polygon) float64 {
	w := ownershipWeight(a.meta.Owned)
	if detailUnion == nil {
		return 0.5 * a.coverageRatio * w
	}
	inter, err := s.engine.Intersect(a.polyAOI, detailUnion)
	if err != nil {
		s.logger.Warn("Overview overlap failed", zap.String("image_id", a.id), zap.Error(err))
		return 0.5 * a.coverageRatio * w
	}
	overlap := safeRatio(s.engine.Area(inter), s.aoiArea)
	return 0.5 * (a.coverageRatio - overlap) * w
}

// normalizeInterest divides every raw interest by the maximum within its
// temporal neighbourhood.
func (s *State) normalizeInterest() {
	times := make([]time.Time, len(s.images))
	pre := make([]float64, len(s.images))
	for i, img := range s.images {
		times[i] = img.time
		pre[i] = img.interestPre
	}
	post := NormalizeInterest(times, pre, s.params.window())
	for i, img := range s.images {
		img.interestPost = post[i]
	}
}

// NormalizeInterest returns pre[i] divided by the largest value among entries
// whose time lies strictly within window of times[i]. A neighbourhood without a
// positive maximum yields 0.
func NormalizeInterest(times []time.Time, pre []float64, window time.Duration) []float64 {
	post := make([]float64, len(pre))
	for i := range pre {
		peak := 0.0
		for j := range pre {
			if absDuration(times[i].Sub(times[j])) < window && pre[j] > peak {
				peak = pre[j]
			}
		}
		post[i] = safeRatio(pre[i], peak)
	}
	return post
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// safeRatio divides and maps every non-finite or zero-denominator case to 0.
func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	r := num / den
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}
