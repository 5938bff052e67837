package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/sponsorscope/scope/internal/governance"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

// rejectionBody is the structured shape of every governance rejection.
type rejectionBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Type    string         `json:"type"`
	Details map[string]any `json:"details,omitempty"`
}

// writeRejection maps a governance rejection onto its HTTP status and
// structured body, and marks the governance headers accordingly.
func writeRejection(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	body := rejectionBody{Error: "rejected", Message: err.Error()}

	var (
		maint  *governance.MaintenanceError
		rl     *governance.RateLimitError
		abuse  *governance.AbuseDetectedError
		budget *governance.BudgetExceededError
	)
	switch {
	case errors.As(err, &maint):
		status = http.StatusServiceUnavailable
		body.Error = "service unavailable"
		body.Type = maint.Type()
		body.Details = map[string]any{"component": maint.Component}
		if len(maint.Notices) > 0 {
			body.Details["notices"] = maint.Notices
		}
	case errors.As(err, &rl):
		status = http.StatusTooManyRequests
		body.Error = "rate limit exceeded"
		body.Type = rl.Type()
		body.Details = map[string]any{
			"retry_after_secs": int(rl.RetryAfter.Seconds()),
			"remaining":        rl.Remaining,
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.RetryAfter.Seconds())))
	case errors.As(err, &abuse):
		status = http.StatusForbidden
		body.Error = "abuse detected"
		body.Type = abuse.Type()
		body.Details = map[string]any{
			"attempts":    abuse.Attempts,
			"window_secs": int(abuse.Window.Seconds()),
		}
	case errors.As(err, &budget):
		status = http.StatusServiceUnavailable
		body.Error = "budget exceeded"
		body.Type = budget.Type()
		body.Details = map[string]any{"usage": budget.Snapshot}
	}

	w.Header().Set(headerGovernanceStatus, "rejected")
	w.Header().Set(headerGovernanceAction, body.Type)
	writeJSON(w, status, body)
}
