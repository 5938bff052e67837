// Package job implements the background execution side of the service: an
// idempotent submission orchestrator, a TTL-bounded in-memory registry, and
// the phased worker that drives collection, scoring, and refinement.
package job

import (
	"time"

	"github.com/sponsorscope/scope/internal/analysis"
	"github.com/sponsorscope/scope/internal/refine"
)

// Phase is a job's position in the execution state machine.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseScraping   Phase = "scraping"
	PhaseAnalysis   Phase = "analysis"
	PhaseFinalizing Phase = "finalizing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// phaseRank orders phases for monotonicity checks. The two terminal phases
// share the top rank; failed is reachable from any non-terminal phase.
var phaseRank = map[Phase]int{
	PhasePending:    0,
	PhaseScraping:   1,
	PhaseAnalysis:   2,
	PhaseFinalizing: 3,
	PhaseCompleted:  4,
	PhaseFailed:     4,
}

// Terminal reports whether the phase is an end state.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseRank[p]
	return ok
}

// Report is a completed job's result payload.
type Report struct {
	Handle      string                    `json:"handle"`
	Platform    string                    `json:"platform"`
	Profile     *analysis.ProfileSnapshot `json:"profile"`
	Scores      *analysis.ScoreCard       `json:"scores"`
	Refinement  *refine.Refinement        `json:"refinement"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// Job is one tracked analysis run.
type Job struct {
	ID          string     `json:"job_id"`
	DedupKey    string     `json:"dedup_key"`
	Handle      string     `json:"handle"`
	Platform    string     `json:"platform"`
	Phase       Phase      `json:"phase"`
	Progress    int        `json:"progress"`
	Error       string     `json:"error,omitempty"`
	Result      *Report    `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Status is the polling view of a job.
type Status struct {
	JobID    string `json:"job_id"`
	Phase    Phase  `json:"phase"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// StatusView projects the job onto its polling shape.
func (j *Job) StatusView() Status {
	return Status{JobID: j.ID, Phase: j.Phase, Progress: j.Progress, Error: j.Error}
}
