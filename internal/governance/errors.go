package governance

import (
	"fmt"
	"time"
)

// Rejection type tags carried in structured error responses.
const (
	TypeRateLimit   = "rate_limit"
	TypeAbuse       = "abuse_detection"
	TypeMaintenance = "maintenance"
	TypeTokenLimit  = "token_limit"
)

// MaintenanceError rejects a request because a kill switch is active.
type MaintenanceError struct {
	Component string
	Message   string
	Notices   []string
}

func (e *MaintenanceError) Error() string {
	return fmt.Sprintf("%s — please retry later", e.Message)
}

// Type returns the wire type tag.
func (e *MaintenanceError) Type() string { return TypeMaintenance }

// RateLimitError rejects a request because a rate tier is exhausted.
type RateLimitError struct {
	Remaining  Remaining
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded — wait %d seconds before retrying", int(e.RetryAfter.Seconds()))
}

// Type returns the wire type tag.
func (e *RateLimitError) Type() string { return TypeRateLimit }

// AbuseDetectedError rejects a request because the same request key was
// resubmitted too rapidly.
type AbuseDetectedError struct {
	Attempts int
	Window   time.Duration
}

func (e *AbuseDetectedError) Error() string {
	return fmt.Sprintf("rapid resubmission detected (%d attempts) — wait for the running analysis to finish before resubmitting", e.Attempts)
}

// Type returns the wire type tag.
func (e *AbuseDetectedError) Type() string { return TypeAbuse }

// BudgetExceededError rejects a request because a daily ceiling is reached.
type BudgetExceededError struct {
	Reason   string
	Snapshot UsageSnapshot
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s — capacity resets at midnight UTC, please retry tomorrow", e.Reason)
}

// Type returns the wire type tag.
func (e *BudgetExceededError) Type() string { return TypeTokenLimit }
