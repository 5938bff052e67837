// Package scopeclient is a small HTTP client for the SponsorScope API:
// submission, polling, and a bounded wait-for-report loop. The server never
// cancels a job when a client stops polling; the loop's timeout is a purely
// client-side condition.
package scopeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sponsorscope/scope/internal/resilience"
)

// Client talks to a running scope server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitResult is the server's answer to a submission.
type SubmitResult struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobStatus is the polling view of a job.
type JobStatus struct {
	JobID    string `json:"job_id"`
	Phase    string `json:"phase"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// Terminal reports whether the phase is an end state.
func (s JobStatus) Terminal() bool {
	return s.Phase == "completed" || s.Phase == "failed"
}

// APIError is a non-2xx response with its structured body.
type APIError struct {
	StatusCode int
	ErrorText  string `json:"error"`
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Submit requests analysis of the handle and returns the job identifier.
func (c *Client) Submit(ctx context.Context, handle, platform string) (SubmitResult, error) {
	body, err := json.Marshal(map[string]string{"handle": handle, "platform": platform})
	if err != nil {
		return SubmitResult{}, eris.Wrap(err, "scopeclient: encode submit")
	}

	var res SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/analyze", bytes.NewReader(body), &res); err != nil {
		return SubmitResult{}, err
	}
	return res, nil
}

// Status fetches the job's current phase and progress.
func (c *Client) Status(ctx context.Context, jobID string) (JobStatus, error) {
	var st JobStatus
	if err := c.do(ctx, http.MethodGet, "/api/status/"+jobID, nil, &st); err != nil {
		return JobStatus{}, err
	}
	return st, nil
}

// Report fetches the completed job's result as raw JSON.
func (c *Client) Report(ctx context.Context, jobID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/report/"+jobID, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "scopeclient: build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "scopeclient: "+method+" "+path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			apiErr.Message = resp.Status
		}
		// Retryable statuses (429, 5xx) are marked so WaitForReport keeps
		// polling through them instead of aborting.
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "scopeclient: decode response")
	}
	return nil
}
