package refine

import (
	"context"
	"fmt"

	"github.com/sponsorscope/scope/internal/analysis"
)

// StubRefiner is the offline refiner: deterministic, no network, reports a
// synthetic token count so budget accounting still exercises end to end.
type StubRefiner struct{}

// NewStubRefiner creates a StubRefiner.
func NewStubRefiner() *StubRefiner { return &StubRefiner{} }

// Refine nudges middling scores toward the center and leaves strong signals
// alone, always within the bounded range.
func (StubRefiner) Refine(_ context.Context, snap *analysis.ProfileSnapshot, card *analysis.ScoreCard) (*Refinement, error) {
	adjustment := 0.0
	if card.Overall > 40 && card.Overall < 60 {
		// Middling scores get a small verified-account tiebreak.
		if snap.Verified {
			adjustment = 2
		} else {
			adjustment = -2
		}
	}

	adjusted := clampAdjusted(card.Overall, card.Overall+adjustment)
	return &Refinement{
		AdjustedOverall: adjusted,
		Advisory: fmt.Sprintf("@%s on %s scores %.1f overall across %d pillars. Review the pillar findings before outreach.",
			snap.Handle, snap.Platform, adjusted, len(card.Pillars)),
		Model:      "stub",
		TokensUsed: 350 + len(snap.Posts)*20,
	}, nil
}
