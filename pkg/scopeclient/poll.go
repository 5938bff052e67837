package scopeclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sponsorscope/scope/internal/resilience"
)

// PollOptions bounds the WaitForReport loop.
type PollOptions struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPollOptions matches the server's suggested polling cadence.
func DefaultPollOptions() PollOptions {
	return PollOptions{
		MaxAttempts:     30,
		InitialInterval: time.Second,
		MaxInterval:     15 * time.Second,
	}
}

// ErrPollTimeout is returned when the attempt budget runs out before the job
// reaches a terminal phase. The server-side job keeps running.
var ErrPollTimeout = eris.New("scopeclient: poll attempts exhausted")

// WaitForReport polls the job until it completes, fails, or the attempt
// budget is spent. Backoff doubles from the initial interval up to the cap.
// A failed job surfaces its recorded error.
func (c *Client) WaitForReport(ctx context.Context, jobID string, opts PollOptions) (json.RawMessage, error) {
	if opts.MaxAttempts <= 0 {
		opts = DefaultPollOptions()
	}

	interval := opts.InitialInterval
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		st, err := c.Status(ctx, jobID)
		switch {
		case err != nil && !resilience.IsTransient(err):
			return nil, err
		case err != nil:
			// Server hiccup (429, 5xx, network): spend the attempt and retry.
		case st.Phase == "completed":
			return c.Report(ctx, jobID)
		case st.Phase == "failed":
			return nil, eris.Errorf("scopeclient: job failed: %s", st.Error)
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "scopeclient: wait for report")
		case <-time.After(interval):
		}

		interval *= 2
		if interval > opts.MaxInterval {
			interval = opts.MaxInterval
		}
	}
	return nil, ErrPollTimeout
}
