package scopeclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/analyze":
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"job_id": "abc", "status": "accepted"})
		case "/api/status/abc":
			json.NewEncoder(w).Encode(map[string]any{"job_id": "abc", "phase": "scraping", "progress": 10})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "not found", "message": "unknown job"})
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	res, err := c.Submit(ctx, "nike", "instagram")
	require.NoError(t, err)
	assert.Equal(t, "abc", res.JobID)

	st, err := c.Status(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "scraping", st.Phase)
	assert.False(t, st.Terminal())

	_, err = c.Status(ctx, "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "unknown job", apiErr.Message)
}

func TestWaitForReport_CompletesAfterPolls(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status/abc":
			phase := "analysis"
			if polls.Add(1) >= 3 {
				phase = "completed"
			}
			json.NewEncoder(w).Encode(map[string]any{"job_id": "abc", "phase": phase, "progress": 60})
		case "/api/report/abc":
			json.NewEncoder(w).Encode(map[string]any{"handle": "nike", "scores": map[string]any{"overall": 62.0}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	raw, err := c.WaitForReport(context.Background(), "abc", PollOptions{
		MaxAttempts:     10,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, "nike", report["handle"])
}

func TestWaitForReport_RetriesTransientStatus(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status/abc":
			if polls.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"error": "maintenance", "message": "back soon"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"job_id": "abc", "phase": "completed", "progress": 100})
		case "/api/report/abc":
			json.NewEncoder(w).Encode(map[string]any{"handle": "nike"})
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	raw, err := c.WaitForReport(context.Background(), "abc", PollOptions{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	})
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, "nike", report["handle"])
}

func TestWaitForReport_NonRetryableStatusAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found", "message": "unknown job"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.WaitForReport(context.Background(), "gone", PollOptions{MaxAttempts: 5, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestWaitForReport_FailedJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"job_id": "abc", "phase": "failed", "error": "profile is private"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.WaitForReport(context.Background(), "abc", PollOptions{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile is private")
}

func TestWaitForReport_AttemptsExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"job_id": "abc", "phase": "pending", "progress": 0})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.WaitForReport(context.Background(), "abc", PollOptions{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestWaitForReport_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"job_id": "abc", "phase": "pending"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL)
	_, err := c.WaitForReport(ctx, "abc", PollOptions{MaxAttempts: 5, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second})
	require.Error(t, err)
}
