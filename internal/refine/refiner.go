// Package refine implements the advisory-language refinement step: a bounded
// nudge of the overall score plus a short advisory paragraph, produced by a
// language model. The adjustment is clamped so refinement can color the
// verdict but never overturn it.
package refine

import (
	"context"
	"math"

	"github.com/sponsorscope/scope/internal/analysis"
)

// MaxAdjustment bounds how far refinement may move the overall score in
// either direction.
const MaxAdjustment = 5.0

// Refinement is the refiner's output. TokensUsed is the actual model
// consumption, reported upstream for budget accounting.
type Refinement struct {
	AdjustedOverall float64 `json:"adjusted_overall"`
	Advisory        string  `json:"advisory"`
	Model           string  `json:"model,omitempty"`
	TokensUsed      int     `json:"tokens_used"`
}

// Refiner adjusts a score card within the bounded range.
type Refiner interface {
	Refine(ctx context.Context, snap *analysis.ProfileSnapshot, card *analysis.ScoreCard) (*Refinement, error)
}

// clampAdjusted pins adjusted within MaxAdjustment of base and within 0-100.
func clampAdjusted(base, adjusted float64) float64 {
	lo := math.Max(0, base-MaxAdjustment)
	hi := math.Min(100, base+MaxAdjustment)
	return math.Min(hi, math.Max(lo, adjusted))
}
