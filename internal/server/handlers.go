package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sponsorscope/scope/internal/governance"
	"github.com/sponsorscope/scope/internal/job"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type analyzeRequest struct {
	Handle   string `json:"handle"`
	Platform string `json:"platform"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid request",
			"message": "body must be JSON with a handle field",
		})
		return
	}
	// Canonicalize before admission so the abuse detector and the job dedup
	// agree on the subject: "@Nike" and "nike" must land in one abuse record
	// and one job.
	handle := s.orch.NormalizeHandle(req.Handle)
	if handle == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid request",
			"message": "handle must not be empty",
		})
		return
	}
	platform := s.orch.NormalizePlatform(req.Platform)

	admission := governance.Request{
		Identity: clientIP(r),
		Handle:   handle,
		Platform: platform,
	}
	if _, err := s.pipeline.Admit(r.Context(), admission); err != nil {
		writeRejection(w, err)
		return
	}

	res, err := s.orch.Submit(r.Context(), handle, platform)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid request",
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.AdmitRead(r.Context()); err != nil {
		writeRejection(w, err)
		return
	}

	st, err := s.orch.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not found",
			"message": "unknown or expired job id",
		})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.AdmitRead(r.Context()); err != nil {
		writeRejection(w, err)
		return
	}

	jobID := chi.URLParam(r, "jobID")
	st, err := s.orch.Status(jobID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not found",
			"message": "unknown or expired job id",
		})
		return
	}

	switch {
	case st.Phase == job.PhaseFailed:
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "job failed",
			"message": st.Error,
			"type":    "failed",
		})
	case !st.Phase.Terminal():
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "not ready",
			"message":  "analysis still in progress; poll status and retry",
			"type":     "not_ready",
			"phase":    st.Phase,
			"progress": st.Progress,
		})
	default:
		report, err := s.orch.Result(jobID)
		if err != nil {
			// The job can expire between the status read and here.
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error":   "not found",
				"message": "unknown or expired job id",
			})
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleGovernanceStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Snapshot(r.Context()))
}

func (s *Server) handleTokenUsage(w http.ResponseWriter, r *http.Request) {
	snap, err := s.pipeline.Budget().Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "internal",
			"message": "could not read usage",
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResetTokenUsage(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Budget().Reset(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "internal",
			"message": "could not reset usage",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleRateLimitInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.pipeline.RateLimiter().Info(r.Context(), chi.URLParam(r, "ip"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "internal",
			"message": "could not read rate standing",
		})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	component := chi.URLParam(r, "component")
	action := chi.URLParam(r, "action")

	if component != governance.ComponentScans && component != governance.ComponentRead {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid request",
			"message": "component must be scans or read",
		})
		return
	}
	var enabled bool
	switch action {
	case "enable":
		enabled = true
	case "disable":
		enabled = false
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid request",
			"message": "action must be enable or disable",
		})
		return
	}

	// A store fault is logged inside Set; the switch still takes effect
	// locally, so the admin call reports success with degraded scope.
	err := s.pipeline.KillSwitch().Set(r.Context(), component, enabled)
	writeJSON(w, http.StatusOK, map[string]any{
		"component":  component,
		"enabled":    enabled,
		"propagated": err == nil,
	})
}
