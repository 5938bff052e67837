package job

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sponsorscope/scope/internal/analysis"
	"github.com/sponsorscope/scope/internal/config"
	"github.com/sponsorscope/scope/internal/refine"
)

// Submission statuses.
const (
	StatusAccepted = "accepted"
	StatusExisting = "existing"
)

// DefaultPlatform applies when a submission names no platform.
const DefaultPlatform = "instagram"

// SubmitResult is the orchestrator's answer to a submission.
type SubmitResult struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// BudgetRecorder receives actual refinement consumption for accounting.
type BudgetRecorder interface {
	RecordConsumption(ctx context.Context, model string, tokens int) error
}

// Orchestrator owns job creation and schedules background execution.
// Submission never blocks on execution: the worker goroutine is launched
// before Submit returns and acquires its concurrency slot on its own time.
type Orchestrator struct {
	registry  *Registry
	collector analysis.Collector
	scorer    analysis.Scorer
	refiner   refine.Refiner
	budget    BudgetRecorder

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	runCtx context.Context
	cancel context.CancelFunc

	lower cases.Caser
}

// NewOrchestrator wires the orchestrator and its collaborators.
func NewOrchestrator(registry *Registry, collector analysis.Collector, scorer analysis.Scorer, refiner refine.Refiner, budget BudgetRecorder, cfg config.JobsConfig) *Orchestrator {
	maxConcurrent := int64(cfg.MaxConcurrent)
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		registry:  registry,
		collector: collector,
		scorer:    scorer,
		refiner:   refiner,
		budget:    budget,
		sem:       semaphore.NewWeighted(maxConcurrent),
		runCtx:    ctx,
		cancel:    cancel,
		lower:     cases.Lower(language.Und),
	}
}

// NormalizeHandle canonicalizes a submitted handle: trimmed, leading @
// stripped, Unicode-lowercased. "@Nike " and "nike" are the same creator.
func (o *Orchestrator) NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	return o.lower.String(h)
}

// NormalizePlatform canonicalizes the platform, defaulting when empty.
func (o *Orchestrator) NormalizePlatform(platform string) string {
	p := strings.TrimSpace(strings.ToLower(platform))
	if p == "" {
		return DefaultPlatform
	}
	return p
}

// Submit creates or reuses a job for the handle and returns without waiting
// on any execution. Concurrent submissions for the same subject converge on
// one job ID.
func (o *Orchestrator) Submit(_ context.Context, handle, platform string) (SubmitResult, error) {
	h := o.NormalizeHandle(handle)
	if h == "" {
		return SubmitResult{}, eris.New("orchestrator: empty handle")
	}
	p := o.NormalizePlatform(platform)
	dedupKey := p + "/" + h

	j, created := o.registry.CreateOrGet(dedupKey, h, p)
	if !created {
		return SubmitResult{JobID: j.ID, Status: StatusExisting}, nil
	}

	zap.L().Info("job accepted",
		zap.String("job_id", j.ID),
		zap.String("handle", h),
		zap.String("platform", p))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(j.ID, h, p)
	}()

	return SubmitResult{JobID: j.ID, Status: StatusAccepted}, nil
}

// Status returns the polling view of the job.
func (o *Orchestrator) Status(jobID string) (Status, error) {
	j, err := o.registry.Get(jobID)
	if err != nil {
		return Status{}, err
	}
	return j.StatusView(), nil
}

// Result returns the completed job's report. ErrNotReady covers both
// still-running and failed jobs; the caller distinguishes via Status.
func (o *Orchestrator) Result(jobID string) (*Report, error) {
	j, err := o.registry.Get(jobID)
	if err != nil {
		return nil, err
	}
	if !j.Phase.Terminal() {
		return nil, ErrNotReady
	}
	if j.Phase == PhaseFailed {
		return nil, eris.Wrap(ErrNotReady, j.Error)
	}
	return j.Result, nil
}

// Registry exposes the registry for the monitoring snapshot.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Shutdown stops accepting slot acquisitions and waits for in-flight jobs,
// bounded by ctx. Client abandonment never cancels a job; only process
// shutdown does.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "orchestrator: shutdown wait")
	}
}
