package analysis

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Scorer turns a profile snapshot into pillar scores.
type Scorer interface {
	Score(ctx context.Context, snap *ProfileSnapshot) (*ScoreCard, error)
}

// HeuristicScorer computes pillar scores from snapshot arithmetic alone. It
// is deterministic for a given snapshot.
type HeuristicScorer struct {
	nowFunc func() time.Time
}

// NewHeuristicScorer creates a HeuristicScorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{nowFunc: time.Now}
}

// Score computes the four pillars: audience, engagement, consistency, and
// sponsorship readiness.
func (s *HeuristicScorer) Score(_ context.Context, snap *ProfileSnapshot) (*ScoreCard, error) {
	audience := s.audiencePillar(snap)
	engagement := s.engagementPillar(snap)
	consistency := s.consistencyPillar(snap)
	readiness := s.readinessPillar(snap)

	pillars := []PillarScore{audience, engagement, consistency, readiness}
	overall := 0.0
	for _, p := range pillars {
		overall += p.Score
	}
	overall = round1(overall / float64(len(pillars)))

	return &ScoreCard{
		Overall:    overall,
		Pillars:    pillars,
		SampleSize: len(snap.Posts),
		Summary: fmt.Sprintf("@%s scores %.1f across %d pillars from a %d-post sample",
			snap.Handle, overall, len(pillars), len(snap.Posts)),
		GeneratedAt: s.nowFunc(),
	}, nil
}

// audiencePillar rewards reach on a log scale; a million followers is not
// a thousand times better than a thousand.
func (s *HeuristicScorer) audiencePillar(snap *ProfileSnapshot) PillarScore {
	score := math.Min(100, 12*math.Log10(float64(snap.Followers)+1))
	findings := []string{fmt.Sprintf("%d followers", snap.Followers)}
	if snap.Verified {
		score = math.Min(100, score+5)
		findings = append(findings, "verified account")
	}
	return PillarScore{Name: "audience", Score: round1(score), Findings: findings}
}

func (s *HeuristicScorer) engagementPillar(snap *ProfileSnapshot) PillarScore {
	if len(snap.Posts) == 0 || snap.Followers == 0 {
		return PillarScore{Name: "engagement", Score: 0, Findings: []string{"no posts sampled"}}
	}
	total := 0
	for _, p := range snap.Posts {
		total += p.Likes + p.Comments + p.Shares
	}
	perPost := float64(total) / float64(len(snap.Posts))
	ratePct := 100 * perPost / float64(snap.Followers)

	// 3% engagement is a strong account; cap there.
	score := math.Min(100, ratePct/3.0*100)
	return PillarScore{
		Name:     "engagement",
		Score:    round1(score),
		Findings: []string{fmt.Sprintf("%.2f%% average engagement over %d posts", ratePct, len(snap.Posts))},
	}
}

func (s *HeuristicScorer) consistencyPillar(snap *ProfileSnapshot) PillarScore {
	if len(snap.Posts) < 2 {
		return PillarScore{Name: "consistency", Score: 0, Findings: []string{"insufficient post history"}}
	}
	span := snap.Posts[0].PostedAt.Sub(snap.Posts[len(snap.Posts)-1].PostedAt)
	if span <= 0 {
		return PillarScore{Name: "consistency", Score: 50}
	}
	perWeek := float64(len(snap.Posts)) / (span.Hours() / (24 * 7))
	// Two posts a week is a healthy cadence.
	score := math.Min(100, perWeek/2.0*100)
	return PillarScore{
		Name:     "consistency",
		Score:    round1(score),
		Findings: []string{fmt.Sprintf("%.1f posts per week", perWeek)},
	}
}

func (s *HeuristicScorer) readinessPillar(snap *ProfileSnapshot) PillarScore {
	sponsored := 0
	for _, p := range snap.Posts {
		if p.Sponsored {
			sponsored++
		}
	}
	findings := []string{fmt.Sprintf("%d of %d sampled posts sponsored", sponsored, len(snap.Posts))}
	if sponsored == 0 {
		// Untapped inventory scores well for prospecting.
		return PillarScore{Name: "sponsorship_readiness", Score: 80, Findings: findings}
	}
	frac := float64(sponsored) / float64(len(snap.Posts))
	// Past the halfway mark the account is saturated.
	score := 100 * (1 - math.Min(1, frac/0.5))
	return PillarScore{Name: "sponsorship_readiness", Score: round1(score), Findings: findings}
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
