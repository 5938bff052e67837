package governance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sponsorscope/scope/internal/config"
	"github.com/sponsorscope/scope/internal/statestore"
)

// Remaining reports quota left in each tier after a check.
type Remaining struct {
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
	Day    int `json:"day"`
}

// RateDecision is the outcome of a rate limit check.
type RateDecision struct {
	Allowed    bool
	Remaining  Remaining
	RetryAfter time.Duration
}

// RateInfo is the read-only standing of an identity, for the governance
// status endpoints.
type RateInfo struct {
	Allowed   bool       `json:"allowed"`
	Remaining Remaining  `json:"remaining"`
	Limits    RateLimits `json:"limits"`
}

// RateLimits echoes the configured tier limits.
type RateLimits struct {
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
	Day    int `json:"day"`
}

// tierWindow is one tier's counter tied to its window start.
type tierWindow struct {
	Count int   `json:"count"`
	Start int64 `json:"start"` // unix milliseconds
}

// rateState holds all three tiers for an identity in a single store key, so
// one atomic read-modify-write covers the whole check-then-increment.
type rateState struct {
	Minute tierWindow `json:"minute"`
	Hour   tierWindow `json:"hour"`
	Day    tierWindow `json:"day"`
}

// RateLimiter enforces per-identity request quotas across minute, hour, and
// day windows. A request is charged only if every tier admits it; rejection
// charges nothing, so retrying after the advertised delay is never penalized
// for the rejected attempts.
type RateLimiter struct {
	store  *degradableStore
	limits config.LimitsConfig

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewRateLimiter creates a rate limiter over the shared state store.
func NewRateLimiter(store *degradableStore, limits config.LimitsConfig) *RateLimiter {
	return &RateLimiter{store: store, limits: limits, nowFunc: time.Now}
}

const rateStateTTL = 25 * time.Hour // outlives the day window

type tierSpec struct {
	limit  int
	window time.Duration
}

func (r *RateLimiter) tiers() [3]tierSpec {
	return [3]tierSpec{
		{r.limits.RequestsPerMinute, time.Minute},
		{r.limits.RequestsPerHour, time.Hour},
		{r.limits.RequestsPerDay, 24 * time.Hour},
	}
}

// resetIfElapsed rolls a tier window forward when it has expired. A negative
// elapsed time (clock stepped backwards) counts as expired rather than
// freezing the counter in a future window.
func resetIfElapsed(w tierWindow, window time.Duration, now time.Time) tierWindow {
	elapsed := now.UnixMilli() - w.Start
	if elapsed < 0 || elapsed >= window.Milliseconds() {
		return tierWindow{Count: 0, Start: now.UnixMilli()}
	}
	return w
}

// CheckAndIncrement tests all three tiers for the identity and, only if every
// tier passes, charges all of them. On rejection nothing is charged and
// RetryAfter carries the soonest-to-reset failing tier's remaining window.
func (r *RateLimiter) CheckAndIncrement(ctx context.Context, identity string) (RateDecision, error) {
	key := "ratelimit:" + identity
	var decision RateDecision

	_, err := r.store.update(ctx, key, rateStateTTL, func(current string, exists bool) (string, error) {
		var state rateState
		if exists {
			_ = json.Unmarshal([]byte(current), &state)
		}

		now := r.nowFunc()
		specs := r.tiers()
		windows := [3]*tierWindow{&state.Minute, &state.Hour, &state.Day}
		for i, w := range windows {
			*w = resetIfElapsed(*w, specs[i].window, now)
		}

		allowed := true
		retryAfter := time.Duration(0)
		for i, w := range windows {
			if w.Count >= specs[i].limit {
				allowed = false
				tierRetry := specs[i].window - time.Duration(now.UnixMilli()-w.Start)*time.Millisecond
				if retryAfter == 0 || tierRetry < retryAfter {
					retryAfter = tierRetry
				}
			}
		}

		if !allowed {
			decision = RateDecision{
				Allowed:    false,
				Remaining:  r.remaining(state),
				RetryAfter: retryAfter,
			}
			return "", statestore.ErrSkipWrite
		}

		for _, w := range windows {
			w.Count++
		}
		decision = RateDecision{Allowed: true, Remaining: r.remaining(state)}

		encoded, marshalErr := json.Marshal(state)
		if marshalErr != nil {
			return "", marshalErr
		}
		return string(encoded), nil
	})
	if err != nil {
		return RateDecision{}, eris.Wrap(err, "ratelimit: check and increment")
	}
	return decision, nil
}

// Info returns the identity's current standing without charging any tier.
func (r *RateLimiter) Info(ctx context.Context, identity string) (RateInfo, error) {
	key := "ratelimit:" + identity

	val, exists, err := r.store.get(ctx, key)
	if err != nil {
		return RateInfo{}, eris.Wrap(err, "ratelimit: info")
	}

	var state rateState
	if exists {
		_ = json.Unmarshal([]byte(val), &state)
	}

	now := r.nowFunc()
	specs := r.tiers()
	state.Minute = resetIfElapsed(state.Minute, specs[0].window, now)
	state.Hour = resetIfElapsed(state.Hour, specs[1].window, now)
	state.Day = resetIfElapsed(state.Day, specs[2].window, now)

	rem := r.remaining(state)
	return RateInfo{
		Allowed:   rem.Minute > 0 && rem.Hour > 0 && rem.Day > 0,
		Remaining: rem,
		Limits: RateLimits{
			Minute: r.limits.RequestsPerMinute,
			Hour:   r.limits.RequestsPerHour,
			Day:    r.limits.RequestsPerDay,
		},
	}, nil
}

// Reset clears the identity's counters (admin operation).
func (r *RateLimiter) Reset(ctx context.Context, identity string) error {
	_, err := r.store.update(ctx, "ratelimit:"+identity, rateStateTTL, func(string, bool) (string, error) {
		encoded, marshalErr := json.Marshal(rateState{})
		if marshalErr != nil {
			return "", marshalErr
		}
		return string(encoded), nil
	})
	if err != nil {
		return eris.Wrap(err, "ratelimit: reset")
	}
	return nil
}

func (r *RateLimiter) remaining(state rateState) Remaining {
	clamp := func(limit, count int) int {
		if rem := limit - count; rem > 0 {
			return rem
		}
		return 0
	}
	return Remaining{
		Minute: clamp(r.limits.RequestsPerMinute, state.Minute.Count),
		Hour:   clamp(r.limits.RequestsPerHour, state.Hour.Count),
		Day:    clamp(r.limits.RequestsPerDay, state.Day.Count),
	}
}
