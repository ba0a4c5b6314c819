package recommend

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/fitfeed/fitfeed/pkg/models"
)

// NormalizeScores min-max scales a candidate list to [0, 1]. A non-empty
// list whose scores are all equal maps every member to 1.0; the zero
// range would otherwise divide by zero, and a uniform list carries no
// ordering information worth preserving. An empty list normalizes to an
// empty mapping, so absent items score 0 in the blend.
func NormalizeScores(candidates []models.ScoredItem) map[int64]float64 {
	if len(candidates) == 0 {
		return map[int64]float64{}
	}

	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = c.Score
	}
	minScore, maxScore := floats.Min(scores), floats.Max(scores)

	normalized := make(map[int64]float64, len(candidates))
	if maxScore == minScore {
		for _, c := range candidates {
			normalized[c.ItemID] = 1.0
		}
		return normalized
	}
	for _, c := range candidates {
		normalized[c.ItemID] = (c.Score - minScore) / (maxScore - minScore)
	}
	return normalized
}

// BlendScores merges a collaborative-filtering candidate list and a
// content-based candidate list into one deterministic ranking:
//
//	final = alpha*cf_norm + (1-alpha)*cb_norm
//
// over the union of both normalized lists minus the exclusion set, with
// an item absent from one list contributing 0 for that term. The result
// is sorted by descending blended score, ties broken by ascending item
// id, truncated to n. The ordering is independent of input order, which
// keeps rankings reproducible.
func BlendScores(cf, cb []models.ScoredItem, alpha float64, exclude map[int64]struct{}, n int) ([]models.ScoredItem, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha %v outside [0, 1]: %w", alpha, ErrInvalidParameter)
	}
	if n < 0 {
		return nil, fmt.Errorf("n must be non-negative, got %d: %w", n, ErrInvalidParameter)
	}

	cfNorm := NormalizeScores(cf)
	cbNorm := NormalizeScores(cb)

	union := make(map[int64]struct{}, len(cfNorm)+len(cbNorm))
	for id := range cfNorm {
		union[id] = struct{}{}
	}
	for id := range cbNorm {
		union[id] = struct{}{}
	}

	blended := make([]models.ScoredItem, 0, len(union))
	for id := range union {
		if _, skip := exclude[id]; skip {
			continue
		}
		blended = append(blended, models.ScoredItem{
			ItemID: id,
			Score:  alpha*cfNorm[id] + (1-alpha)*cbNorm[id],
		})
	}

	sort.Slice(blended, func(i, j int) bool {
		if blended[i].Score != blended[j].Score {
			return blended[i].Score > blended[j].Score
		}
		return blended[i].ItemID < blended[j].ItemID
	})

	if len(blended) > n {
		blended = blended[:n]
	}
	return blended, nil
}
