package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sponsorscope/scope/internal/config"
	"github.com/sponsorscope/scope/internal/cost"
)

// UsageSnapshot is the day's refinement consumption against its ceilings.
type UsageSnapshot struct {
	Date            string  `json:"date"`
	TokensUsed      int     `json:"tokens_used"`
	TokenLimit      int     `json:"token_limit"`
	SpendUSD        float64 `json:"spend_usd"`
	SpendLimitUSD   float64 `json:"spend_limit_usd"`
	TokensRemaining int     `json:"tokens_remaining"`
	PercentUsed     float64 `json:"percent_used"`
}

// budgetUsage is the stored per-day counter.
type budgetUsage struct {
	Tokens int     `json:"tokens"`
	Spend  float64 `json:"spend"`
}

// BudgetManager tracks daily refinement token and spend consumption. Keys are
// date-scoped (budget:usage:2026-08-28), so the midnight UTC reset is just a
// key change; no timer ever zeroes a counter.
type BudgetManager struct {
	store *degradableStore
	cfg   config.BudgetConfig
	calc  *cost.Calculator

	nowFunc func() time.Time
}

// NewBudgetManager creates a budget manager over the shared state store.
func NewBudgetManager(store *degradableStore, cfg config.BudgetConfig, calc *cost.Calculator) *BudgetManager {
	return &BudgetManager{store: store, cfg: cfg, calc: calc, nowFunc: time.Now}
}

func (b *BudgetManager) dayKey(now time.Time) string {
	return "budget:usage:" + now.UTC().Format("2006-01-02")
}

// budgetTTL keeps a day's counter readable slightly past its day for
// end-of-day snapshots, then lets it expire.
const budgetTTL = 48 * time.Hour

// HasCapacity reports whether admitting one more scan would stay under both
// ceilings, projecting the configured estimated tokens per scan. It never
// charges anything; the worker records actual consumption after the fact.
func (b *BudgetManager) HasCapacity(ctx context.Context) (bool, *BudgetExceededError, error) {
	usage, err := b.usage(ctx)
	if err != nil {
		return false, nil, err
	}

	if usage.Tokens+b.cfg.EstimatedTokens > b.cfg.DailyTokenLimit {
		return false, &BudgetExceededError{
			Reason:   fmt.Sprintf("daily token budget exhausted (%d of %d used)", usage.Tokens, b.cfg.DailyTokenLimit),
			Snapshot: b.snapshot(usage),
		}, nil
	}
	projected := usage.Spend + b.calc.Tokens("", b.cfg.EstimatedTokens)
	if projected > b.cfg.DailySpendUSD {
		return false, &BudgetExceededError{
			Reason:   fmt.Sprintf("daily spend ceiling reached ($%.2f of $%.2f used)", usage.Spend, b.cfg.DailySpendUSD),
			Snapshot: b.snapshot(usage),
		}, nil
	}
	return true, nil, nil
}

// RecordConsumption charges actual token usage for a model against the
// current day. Consumption is recorded even past the ceiling: work already
// done has already cost money, and overshoot keeps tomorrow's snapshot
// honest.
func (b *BudgetManager) RecordConsumption(ctx context.Context, model string, tokens int) error {
	spend := b.calc.Tokens(model, tokens)

	_, err := b.store.update(ctx, b.dayKey(b.nowFunc()), budgetTTL, func(current string, exists bool) (string, error) {
		var usage budgetUsage
		if exists {
			_ = json.Unmarshal([]byte(current), &usage)
		}
		usage.Tokens += tokens
		usage.Spend += spend

		encoded, marshalErr := json.Marshal(usage)
		if marshalErr != nil {
			return "", marshalErr
		}
		return string(encoded), nil
	})
	if err != nil {
		return eris.Wrap(err, "budget: record consumption")
	}
	return nil
}

// Reset zeroes the current day's counters (admin operation).
func (b *BudgetManager) Reset(ctx context.Context) error {
	_, err := b.store.update(ctx, b.dayKey(b.nowFunc()), budgetTTL, func(string, bool) (string, error) {
		return "{}", nil
	})
	if err != nil {
		return eris.Wrap(err, "budget: reset")
	}
	return nil
}

// Snapshot returns the current day's usage for the governance endpoints.
func (b *BudgetManager) Snapshot(ctx context.Context) (UsageSnapshot, error) {
	usage, err := b.usage(ctx)
	if err != nil {
		return UsageSnapshot{}, err
	}
	return b.snapshot(usage), nil
}

func (b *BudgetManager) usage(ctx context.Context) (budgetUsage, error) {
	val, exists, err := b.store.get(ctx, b.dayKey(b.nowFunc()))
	if err != nil {
		return budgetUsage{}, eris.Wrap(err, "budget: read usage")
	}
	var usage budgetUsage
	if exists {
		_ = json.Unmarshal([]byte(val), &usage)
	}
	return usage, nil
}

func (b *BudgetManager) snapshot(usage budgetUsage) UsageSnapshot {
	remaining := b.cfg.DailyTokenLimit - usage.Tokens
	if remaining < 0 {
		remaining = 0
	}
	percent := 0.0
	if b.cfg.DailyTokenLimit > 0 {
		percent = 100 * float64(usage.Tokens) / float64(b.cfg.DailyTokenLimit)
	}
	return UsageSnapshot{
		Date:            b.nowFunc().UTC().Format("2006-01-02"),
		TokensUsed:      usage.Tokens,
		TokenLimit:      b.cfg.DailyTokenLimit,
		SpendUSD:        usage.Spend,
		SpendLimitUSD:   b.cfg.DailySpendUSD,
		TokensRemaining: remaining,
		PercentUsed:     percent,
	}
}
