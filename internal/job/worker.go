package job

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sponsorscope/scope/internal/analysis"
	"github.com/sponsorscope/scope/internal/refine"
	"github.com/sponsorscope/scope/internal/resilience"
)

// Phase progress milestones. Progress is phase-local and non-decreasing;
// these are the values clients see while polling.
const (
	progressScrapingStart = 10
	progressScrapingDone  = 30
	progressAnalysisStart = 35
	progressAnalysisDone  = 85
	progressFinalizing    = 90
)

// run drives one job through its phases. It owns all terminal writes: every
// exit path lands the job in completed or failed, never stuck mid-phase.
func (o *Orchestrator) run(jobID, handle, platform string) {
	ctx := o.runCtx

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.fail(jobID, PhasePending, err)
		return
	}
	defer o.sem.Release(1)

	log := zap.L().With(zap.String("job_id", jobID), zap.String("handle", handle))

	// Scraping.
	if err := o.registry.Transition(jobID, PhaseScraping, progressScrapingStart); err != nil {
		log.Error("job vanished before scraping", zap.Error(err))
		return
	}
	scrapeCfg := resilience.ScrapingRetryConfig()
	scrapeCfg.OnRetry = resilience.RetryLogger("scraping")
	snap, err := resilience.DoVal(ctx, scrapeCfg, func(ctx context.Context) (*analysis.ProfileSnapshot, error) {
		return o.collector.Collect(ctx, handle, platform)
	})
	if err != nil {
		o.fail(jobID, PhaseScraping, err)
		return
	}
	_ = o.registry.SetProgress(jobID, progressScrapingDone)

	// Analysis.
	if err := o.registry.Transition(jobID, PhaseAnalysis, progressAnalysisStart); err != nil {
		log.Error("analysis transition rejected", zap.Error(err))
		return
	}
	scoreCfg := resilience.AnalysisRetryConfig()
	scoreCfg.OnRetry = resilience.RetryLogger("analysis")
	card, err := resilience.DoVal(ctx, scoreCfg, func(ctx context.Context) (*analysis.ScoreCard, error) {
		return o.scorer.Score(ctx, snap)
	})
	if err != nil {
		o.fail(jobID, PhaseAnalysis, err)
		return
	}
	_ = o.registry.SetProgress(jobID, progressAnalysisDone)

	// Finalizing.
	if err := o.registry.Transition(jobID, PhaseFinalizing, progressFinalizing); err != nil {
		log.Error("finalizing transition rejected", zap.Error(err))
		return
	}
	refineCfg := resilience.FinalizingRetryConfig()
	refineCfg.OnRetry = resilience.RetryLogger("finalizing")
	ref, err := resilience.DoVal(ctx, refineCfg, func(ctx context.Context) (*refine.Refinement, error) {
		return o.refiner.Refine(ctx, snap, card)
	})
	if err != nil {
		o.fail(jobID, PhaseFinalizing, err)
		return
	}

	// Account actual consumption. Work already done stays done even if the
	// accounting write fails.
	if recErr := o.budget.RecordConsumption(ctx, ref.Model, ref.TokensUsed); recErr != nil {
		log.Warn("budget accounting failed", zap.Error(recErr))
	}

	report := &Report{
		Handle:      handle,
		Platform:    platform,
		Profile:     snap,
		Scores:      card,
		Refinement:  ref,
		GeneratedAt: snap.CollectedAt,
	}
	if err := o.registry.Complete(jobID, report); err != nil {
		log.Error("completion write rejected", zap.Error(err))
		return
	}
	log.Info("job completed",
		zap.Float64("overall", ref.AdjustedOverall),
		zap.Int("tokens", ref.TokensUsed))
}

// fail records the terminal failure with a human-readable cause.
func (o *Orchestrator) fail(jobID string, phase Phase, err error) {
	execErr := &ExecutionError{Phase: phase, Err: err}
	zap.L().Warn("job failed", zap.String("job_id", jobID), zap.Error(execErr))
	cause := fmt.Sprintf("%s stage could not complete: %v", phase, err)
	if failErr := o.registry.Fail(jobID, cause); failErr != nil {
		zap.L().Error("failure write rejected", zap.String("job_id", jobID), zap.Error(failErr))
	}
}
