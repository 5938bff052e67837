package job

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry is the authoritative in-memory job map with a dedup index.
// Create-or-get is atomic under one mutex, so two simultaneous submissions
// for the same new key cannot both create a job. Terminal jobs expire at
// completed_at + ttl; expiry is enforced lazily on every lookup and by a
// periodic sweep, so an expired job is never observable.
type Registry struct {
	mu     sync.Mutex
	jobs   map[string]*Job   // job_id → job
	byKey  map[string]string // dedup_key → job_id
	ttl    time.Duration
	stop   chan struct{}
	stopMu sync.Once

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewRegistry creates a registry and starts its periodic sweep.
func NewRegistry(ttl, cleanupInterval time.Duration) *Registry {
	r := &Registry{
		jobs:    make(map[string]*Job),
		byKey:   make(map[string]string),
		ttl:     ttl,
		stop:    make(chan struct{}),
		nowFunc: time.Now,
	}
	if cleanupInterval > 0 {
		go r.sweepLoop(cleanupInterval)
	}
	return r
}

// Close stops the periodic sweep.
func (r *Registry) Close() {
	r.stopMu.Do(func() { close(r.stop) })
}

func (r *Registry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				zap.L().Debug("registry: swept expired jobs", zap.Int("count", n))
			}
		}
	}
}

// Sweep removes expired jobs and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if r.expired(j) {
			r.evict(id, j)
			n++
		}
	}
	return n
}

// expired reports whether the job is past its TTL. Only terminal jobs
// expire. Callers hold r.mu.
func (r *Registry) expired(j *Job) bool {
	return j.CompletedAt != nil && r.nowFunc().After(j.CompletedAt.Add(r.ttl))
}

// evict removes the job and its dedup index entry. Callers hold r.mu.
func (r *Registry) evict(id string, j *Job) {
	delete(r.jobs, id)
	if r.byKey[j.DedupKey] == id {
		delete(r.byKey, j.DedupKey)
	}
}

// CreateOrGet returns the active job for the dedup key, or creates a new
// pending job when none is active. A terminal job under the same key does
// not block a fresh run.
func (r *Registry) CreateOrGet(dedupKey, handle, platform string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[dedupKey]; ok {
		if j, ok := r.jobs[id]; ok && !r.expired(j) && !j.Phase.Terminal() {
			return *j, false
		}
	}

	now := r.nowFunc()
	j := &Job{
		ID:        uuid.NewString(),
		DedupKey:  dedupKey,
		Handle:    handle,
		Platform:  platform,
		Phase:     PhasePending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[j.ID] = j
	r.byKey[dedupKey] = j.ID
	return *j, true
}

// Get returns a copy of the job, or ErrNotFound for unknown/expired IDs.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if r.expired(j) {
		r.evict(id, j)
		return Job{}, ErrNotFound
	}
	return *j, nil
}

// Transition advances the job to a later phase and sets its progress.
// Regressions (including any write to a terminal job) are rejected.
func (r *Registry) Transition(id string, phase Phase, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || r.expired(j) {
		return ErrNotFound
	}
	if j.Phase.Terminal() || phaseRank[phase] <= phaseRank[j.Phase] {
		return ErrRegressiveTransition
	}
	j.Phase = phase
	if progress > j.Progress {
		j.Progress = progress
	}
	j.UpdatedAt = r.nowFunc()
	return nil
}

// SetProgress raises the job's progress within its current phase. Lower
// values are ignored, keeping progress non-decreasing.
func (r *Registry) SetProgress(id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || r.expired(j) {
		return ErrNotFound
	}
	if j.Phase.Terminal() {
		return ErrRegressiveTransition
	}
	if progress > j.Progress {
		j.Progress = progress
		j.UpdatedAt = r.nowFunc()
	}
	return nil
}

// Complete moves the job to completed with its result.
func (r *Registry) Complete(id string, result *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || r.expired(j) {
		return ErrNotFound
	}
	if j.Phase.Terminal() {
		return ErrRegressiveTransition
	}
	now := r.nowFunc()
	j.Phase = PhaseCompleted
	j.Progress = 100
	j.Result = result
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}

// Fail moves the job to failed with a human-readable cause.
func (r *Registry) Fail(id string, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || r.expired(j) {
		return ErrNotFound
	}
	if j.Phase.Terminal() {
		return ErrRegressiveTransition
	}
	now := r.nowFunc()
	j.Phase = PhaseFailed
	j.Error = cause
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}

// CountByPhase tallies live jobs for the monitoring snapshot.
func (r *Registry) CountByPhase() map[Phase]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[Phase]int)
	for _, j := range r.jobs {
		if !r.expired(j) {
			counts[j.Phase]++
		}
	}
	return counts
}
