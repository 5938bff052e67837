package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sponsorscope/scope/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBudgetNearLimit AlertType = "budget_near_limit"
	AlertFailedJobs      AlertType = "failed_jobs"
	AlertStoreUnhealthy  AlertType = "store_unhealthy"
	AlertKillSwitchOff   AlertType = "killswitch_disabled"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates governance snapshots against configured thresholds and
// sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap GovernanceSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if a.cfg.BudgetAlertPct > 0 && snap.Budget.PercentUsed >= a.cfg.BudgetAlertPct {
		alerts = append(alerts, Alert{
			Type:     AlertBudgetNearLimit,
			Severity: "high",
			Message: fmt.Sprintf("Daily budget %.1f%% consumed (%d of %d tokens, $%.2f of $%.2f)",
				snap.Budget.PercentUsed, snap.Budget.TokensUsed, snap.Budget.TokenLimit,
				snap.Budget.SpendUSD, snap.Budget.SpendLimitUSD),
			Details: map[string]any{
				"percent_used": snap.Budget.PercentUsed,
				"threshold":    a.cfg.BudgetAlertPct,
			},
			Timestamp: now,
		})
	}

	if a.cfg.FailedJobsThreshold > 0 && snap.FailedJobs >= a.cfg.FailedJobsThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailedJobs,
			Severity: "high",
			Message:  fmt.Sprintf("%d failed jobs in the registry (threshold %d)", snap.FailedJobs, a.cfg.FailedJobsThreshold),
			Details: map[string]any{
				"failed":    snap.FailedJobs,
				"threshold": a.cfg.FailedJobsThreshold,
			},
			Timestamp: now,
		})
	}

	if !snap.StoreHealthy {
		alerts = append(alerts, Alert{
			Type:      AlertStoreUnhealthy,
			Severity:  "critical",
			Message:   "Shared state store unreachable; governance running on in-process fallbacks",
			Timestamp: now,
		})
	}

	if !snap.KillSwitch.ScansEnabled || !snap.KillSwitch.ReadEnabled {
		alerts = append(alerts, Alert{
			Type:     AlertKillSwitchOff,
			Severity: "info",
			Message:  "One or more kill switches are disabled",
			Details: map[string]any{
				"scans_enabled": snap.KillSwitch.ScansEnabled,
				"read_enabled":  snap.KillSwitch.ReadEnabled,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Send delivers alerts to the configured webhook. With no webhook configured
// the alerts are logged and dropped.
func (a *Alerter) Send(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	for _, alert := range alerts {
		zap.L().Warn("governance alert",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("message", alert.Message))
	}
	if a.cfg.WebhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"alerts": alerts})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alerts")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: send webhook")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return eris.Errorf("monitoring: webhook returned %d", resp.StatusCode)
	}
	return nil
}
