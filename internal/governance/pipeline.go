package governance

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sponsorscope/scope/internal/config"
	"github.com/sponsorscope/scope/internal/cost"
	"github.com/sponsorscope/scope/internal/resilience"
	"github.com/sponsorscope/scope/internal/statestore"
)

// Request is one admission candidate.
type Request struct {
	// Identity is the caller identity, normally the client IP.
	Identity string
	// Handle and Platform name the subject, already canonicalized by the
	// caller (the orchestrator's normalization rules); together they form
	// the request key used for resubmission detection.
	Handle   string
	Platform string
}

// RequestKey is the dedup scope for resubmission detection: the same caller
// hammering the same subject.
func (r Request) RequestKey() string {
	return strings.ToLower(r.Platform) + "/" + strings.ToLower(r.Handle)
}

// Verdict reports an admitted request's standing, for response headers.
type Verdict struct {
	Remaining Remaining
}

// Pipeline runs the admission checks in fixed order: kill switch, rate
// limit, resubmission detection, budget. The first rejecting stage wins and
// later stages never run, so a rejected request is charged at most the
// stages it passed (kill switch and rate tiers charge nothing on rejection;
// resubmission recording is the point of that stage).
type Pipeline struct {
	killSwitch *KillSwitch
	rateLimit  *RateLimiter
	abuse      *AbuseDetector
	budget     *BudgetManager
	store      *degradableStore
}

// NewPipeline wires the full admission chain over a shared state store.
func NewPipeline(store statestore.Store, breaker *resilience.Breaker, cfg *config.Config, calc *cost.Calculator) *Pipeline {
	deg := newDegradableStore(store, breaker)
	return &Pipeline{
		killSwitch: NewKillSwitch(store, breaker, cfg.KillSwitch),
		rateLimit:  NewRateLimiter(deg, cfg.Limits),
		abuse:      NewAbuseDetector(deg, cfg.Abuse),
		budget:     NewBudgetManager(deg, cfg.Budget, calc),
		store:      deg,
	}
}

// Admit runs the full chain for a scan request. A nil error means admitted;
// otherwise the error is one of MaintenanceError, RateLimitError,
// AbuseDetectedError, or BudgetExceededError. Infrastructure faults never
// reject: each stage degrades internally and, if a stage still errors, the
// request passes that stage with a warning.
func (p *Pipeline) Admit(ctx context.Context, req Request) (Verdict, error) {
	if !p.killSwitch.IsEnabled(ctx, ComponentScans) {
		return Verdict{}, &MaintenanceError{
			Component: ComponentScans,
			Message:   p.killSwitch.MaintenanceMessage(),
			Notices:   p.killSwitch.Notices(ctx),
		}
	}

	verdict := Verdict{}
	decision, err := p.rateLimit.CheckAndIncrement(ctx, req.Identity)
	if err != nil {
		zap.L().Warn("rate limit check failed open", zap.String("identity", req.Identity), zap.Error(err))
	} else {
		verdict.Remaining = decision.Remaining
		if !decision.Allowed {
			return verdict, &RateLimitError{Remaining: decision.Remaining, RetryAfter: decision.RetryAfter}
		}
	}

	abusive, attempts, err := p.abuse.RecordAndCheck(ctx, req.Identity, req.RequestKey())
	if err != nil {
		zap.L().Warn("abuse check failed open", zap.String("identity", req.Identity), zap.Error(err))
	} else if abusive {
		return verdict, &AbuseDetectedError{Attempts: attempts, Window: p.abuse.cfg.ResubmissionWindow()}
	}

	ok, rejection, err := p.budget.HasCapacity(ctx)
	if err != nil {
		zap.L().Warn("budget check failed open", zap.Error(err))
	} else if !ok {
		return verdict, rejection
	}

	return verdict, nil
}

// AdmitRead gates read-path requests (status polls, report fetches). Reads
// skip rate limiting, resubmission detection, and budget: polling is the
// intended usage pattern and costs nothing.
func (p *Pipeline) AdmitRead(ctx context.Context) error {
	if !p.killSwitch.IsEnabled(ctx, ComponentRead) {
		return &MaintenanceError{
			Component: ComponentRead,
			Message:   p.killSwitch.MaintenanceMessage(),
			Notices:   p.killSwitch.Notices(ctx),
		}
	}
	return nil
}

// KillSwitch exposes the pipeline's kill switch for admin operations.
func (p *Pipeline) KillSwitch() *KillSwitch { return p.killSwitch }

// RateLimiter exposes the pipeline's rate limiter for admin operations.
func (p *Pipeline) RateLimiter() *RateLimiter { return p.rateLimit }

// Budget exposes the pipeline's budget manager.
func (p *Pipeline) Budget() *BudgetManager { return p.budget }

// StoreHealthy reports whether the shared state store is reachable.
func (p *Pipeline) StoreHealthy(ctx context.Context) bool { return p.store.healthy(ctx) }
