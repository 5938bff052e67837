// Package analysis defines the collaborators the background worker delegates
// to: a Collector that snapshots a creator's public profile and a Scorer that
// turns the snapshot into pillar scores. The orchestration layer treats both
// as opaque; deterministic in-process implementations ship for tests and
// offline use.
package analysis

import "time"

// Post is one collected post with its engagement counts.
type Post struct {
	ID        string    `json:"id"`
	Caption   string    `json:"caption"`
	Likes     int       `json:"likes"`
	Comments  int       `json:"comments"`
	Shares    int       `json:"shares"`
	PostedAt  time.Time `json:"posted_at"`
	Sponsored bool      `json:"sponsored"`
}

// ProfileSnapshot is the raw material for scoring: profile-level counters
// plus a sample of recent posts.
type ProfileSnapshot struct {
	Handle      string    `json:"handle"`
	Platform    string    `json:"platform"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	PostCount   int       `json:"post_count"`
	Verified    bool      `json:"verified"`
	Bio         string    `json:"bio"`
	Posts       []Post    `json:"posts"`
	CollectedAt time.Time `json:"collected_at"`
}

// PillarScore is one scored dimension with its supporting findings.
type PillarScore struct {
	Name     string   `json:"name"`
	Score    float64  `json:"score"` // 0-100
	Findings []string `json:"findings,omitempty"`
}

// ScoreCard is the Scorer's output: an overall score with its pillar
// breakdown.
type ScoreCard struct {
	Overall     float64       `json:"overall"`
	Pillars     []PillarScore `json:"pillars"`
	SampleSize  int           `json:"sample_size"`
	Summary     string        `json:"summary"`
	GeneratedAt time.Time     `json:"generated_at"`
}
