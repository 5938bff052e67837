// Package monitoring aggregates governance state into point-in-time
// snapshots and raises alerts when thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sponsorscope/scope/internal/governance"
	"github.com/sponsorscope/scope/internal/job"
)

// GovernanceSnapshot is the aggregate state served by the governance status
// endpoint and the govern CLI.
type GovernanceSnapshot struct {
	Timestamp    time.Time                   `json:"timestamp"`
	KillSwitch   governance.KillSwitchStatus `json:"killswitch"`
	Budget       governance.UsageSnapshot    `json:"budget"`
	JobsByPhase  map[string]int              `json:"jobs_by_phase"`
	ActiveJobs   int                         `json:"active_jobs"`
	FailedJobs   int                         `json:"failed_jobs"`
	StoreHealthy bool                        `json:"store_healthy"`
}

// Collector builds governance snapshots from the live components.
type Collector struct {
	pipeline *governance.Pipeline
	registry *job.Registry

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCollector creates a Collector.
func NewCollector(pipeline *governance.Pipeline, registry *job.Registry) *Collector {
	return &Collector{pipeline: pipeline, registry: registry, nowFunc: time.Now}
}

// Snapshot assembles the current governance state. Budget read failures are
// logged and leave a zero budget section rather than failing the snapshot.
func (c *Collector) Snapshot(ctx context.Context) GovernanceSnapshot {
	budget, err := c.pipeline.Budget().Snapshot(ctx)
	if err != nil {
		zap.L().Warn("monitoring: budget snapshot unavailable", zap.Error(err))
	}

	counts := c.registry.CountByPhase()
	byPhase := make(map[string]int, len(counts))
	active := 0
	for phase, n := range counts {
		byPhase[string(phase)] = n
		if !phase.Terminal() {
			active += n
		}
	}

	return GovernanceSnapshot{
		Timestamp:    c.nowFunc().UTC(),
		KillSwitch:   c.pipeline.KillSwitch().Status(ctx),
		Budget:       budget,
		JobsByPhase:  byPhase,
		ActiveJobs:   active,
		FailedJobs:   counts[job.PhaseFailed],
		StoreHealthy: c.pipeline.StoreHealthy(ctx),
	}
}
