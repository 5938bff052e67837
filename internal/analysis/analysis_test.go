package analysis

import (
	"context"
	"testing"
	"time"
)

func TestStubCollector_Deterministic(t *testing.T) {
	c := NewStubCollector(100)
	ctx := context.Background()

	a, err := c.Collect(ctx, "nike", "instagram")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Collect(ctx, "nike", "instagram")
	if err != nil {
		t.Fatal(err)
	}

	if a.Followers != b.Followers || a.PostCount != b.PostCount {
		t.Error("same handle should yield the same profile")
	}
	if len(a.Posts) == 0 {
		t.Fatal("expected sampled posts")
	}
	if a.Posts[0].Likes != b.Posts[0].Likes {
		t.Error("post engagement should be deterministic")
	}
}

func TestStubCollector_DistinctHandlesDiffer(t *testing.T) {
	c := NewStubCollector(100)
	ctx := context.Background()

	a, _ := c.Collect(ctx, "nike", "instagram")
	b, _ := c.Collect(ctx, "adidas", "instagram")
	if a.Followers == b.Followers && a.PostCount == b.PostCount {
		t.Error("distinct handles should not collide on every counter")
	}
}

func TestStubCollector_CancelledContext(t *testing.T) {
	c := NewStubCollector(0.0001) // effectively never admits a second call
	ctx := context.Background()
	if _, err := c.Collect(ctx, "first", "instagram"); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Collect(cancelled, "second", "instagram"); err == nil {
		t.Error("cancelled context should abort the pacing wait")
	}
}

func TestHeuristicScorer_Bounds(t *testing.T) {
	s := NewHeuristicScorer()
	c := NewStubCollector(100)
	ctx := context.Background()

	for _, handle := range []string{"nike", "tinyaccount", "megastar", "x"} {
		snap, err := c.Collect(ctx, handle, "instagram")
		if err != nil {
			t.Fatal(err)
		}
		card, err := s.Score(ctx, snap)
		if err != nil {
			t.Fatal(err)
		}
		if card.Overall < 0 || card.Overall > 100 {
			t.Errorf("%s: overall %.1f out of range", handle, card.Overall)
		}
		if len(card.Pillars) != 4 {
			t.Errorf("%s: expected 4 pillars, got %d", handle, len(card.Pillars))
		}
		for _, p := range card.Pillars {
			if p.Score < 0 || p.Score > 100 {
				t.Errorf("%s: pillar %s score %.1f out of range", handle, p.Name, p.Score)
			}
		}
	}
}

func TestHeuristicScorer_EmptySnapshot(t *testing.T) {
	s := NewHeuristicScorer()
	card, err := s.Score(context.Background(), &ProfileSnapshot{
		Handle:   "ghost",
		Platform: "instagram",
	})
	if err != nil {
		t.Fatal(err)
	}
	if card.Overall < 0 || card.Overall > 100 {
		t.Errorf("overall %.1f out of range for empty profile", card.Overall)
	}
}

func TestHeuristicScorer_SaturatedAccountScoresLowReadiness(t *testing.T) {
	s := NewHeuristicScorer()
	now := time.Now()
	posts := make([]Post, 10)
	for i := range posts {
		posts[i] = Post{ID: "p", Sponsored: true, PostedAt: now.AddDate(0, 0, -i)}
	}
	card, err := s.Score(context.Background(), &ProfileSnapshot{
		Handle: "adwall", Platform: "instagram", Followers: 10_000, Posts: posts,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range card.Pillars {
		if p.Name == "sponsorship_readiness" && p.Score != 0 {
			t.Errorf("fully sponsored feed should score 0 readiness, got %.1f", p.Score)
		}
	}
}
