package analysis

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Collector snapshots a creator's public profile and recent posts.
type Collector interface {
	Collect(ctx context.Context, handle, platform string) (*ProfileSnapshot, error)
}

// StubCollector synthesizes a deterministic snapshot from the handle alone.
// The same handle always yields the same profile, so scores are reproducible
// across runs without touching any platform API. A shared rate limiter paces
// calls the way a real adapter would be paced.
type StubCollector struct {
	limiter *rate.Limiter
	nowFunc func() time.Time
}

// NewStubCollector creates a collector pacing at perSec calls per second.
func NewStubCollector(perSec float64) *StubCollector {
	if perSec <= 0 {
		perSec = 1
	}
	return &StubCollector{
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		nowFunc: time.Now,
	}
}

// Collect returns the synthetic snapshot for the handle.
func (c *StubCollector) Collect(ctx context.Context, handle, platform string) (*ProfileSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "collector: pacing wait")
	}

	seed := hashSeed(platform + "/" + handle)
	now := c.nowFunc()

	followers := 1_000 + int(seed%5_000_000)
	postCount := 20 + int(seed%980)

	posts := make([]Post, 0, 12)
	for i := 0; i < 12; i++ {
		ps := hashSeed(fmt.Sprintf("%s/%s/%d", platform, handle, i))
		posts = append(posts, Post{
			ID:        fmt.Sprintf("%s-%d", handle, i),
			Caption:   fmt.Sprintf("post %d by @%s", i, handle),
			Likes:     int(ps % uint64(followers/10+1)),
			Comments:  int(ps % uint64(followers/200+1)),
			Shares:    int(ps % uint64(followers/500+1)),
			PostedAt:  now.AddDate(0, 0, -i*3),
			Sponsored: ps%4 == 0,
		})
	}

	return &ProfileSnapshot{
		Handle:      handle,
		Platform:    platform,
		Followers:   followers,
		Following:   100 + int(seed%4_900),
		PostCount:   postCount,
		Verified:    seed%5 == 0,
		Bio:         fmt.Sprintf("@%s on %s", handle, platform),
		Posts:       posts,
		CollectedAt: now,
	}, nil
}

func hashSeed(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
