package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/sponsorscope/scope/internal/analysis"
	"github.com/sponsorscope/scope/internal/cost"
	"github.com/sponsorscope/scope/internal/governance"
	"github.com/sponsorscope/scope/internal/refine"
	"github.com/sponsorscope/scope/internal/resilience"
	"github.com/sponsorscope/scope/internal/statestore"
)

func buildCalculator() *cost.Calculator {
	rates := cost.DefaultRates()
	if cfg.Refine.CostPer1K > 0 {
		rates.DefaultPer1K = cfg.Refine.CostPer1K
	}
	return cost.NewCalculator(rates)
}

func buildStoreBreaker() *resilience.Breaker {
	bc := resilience.DefaultBreakerConfig()
	bc.OnStateChange = func(from, to resilience.BreakerState) {
		zap.L().Warn("state store breaker transition",
			zap.Stringer("from", from), zap.Stringer("to", to))
	}
	return resilience.NewBreaker(bc)
}

// buildPipeline opens the shared state store and wires the admission chain
// over it. The caller owns closing the returned store.
func buildPipeline(ctx context.Context) (*governance.Pipeline, statestore.Store, error) {
	store, err := statestore.Open(ctx, cfg.State)
	if err != nil {
		return nil, nil, err
	}
	return governance.NewPipeline(store, buildStoreBreaker(), cfg, buildCalculator()), store, nil
}

// buildRefiner selects the real refiner when an API key is configured, the
// offline stub otherwise.
func buildRefiner() refine.Refiner {
	if cfg.Refine.AnthropicKey != "" {
		return refine.NewAnthropicRefiner(cfg.Refine)
	}
	zap.L().Info("no anthropic key configured, using offline refiner")
	return refine.NewStubRefiner()
}

func buildCollaborators() (analysis.Collector, analysis.Scorer, refine.Refiner) {
	pace := cfg.Refine.PacePerSec
	if pace <= 0 {
		pace = 1
	}
	return analysis.NewStubCollector(pace), analysis.NewHeuristicScorer(), buildRefiner()
}
