package governance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sponsorscope/scope/internal/config"
)

// AbuseDetector flags rapid resubmission of the same request by the same
// identity. Each (identity, request key) pair keeps a sliding window of
// attempt timestamps; crossing the threshold within the window marks the
// pair abusive.
//
// Recording happens before the verdict, so the attempt that crosses the
// threshold is itself counted. Distinct request keys never interfere: a
// client scanning many different handles is not resubmission.
type AbuseDetector struct {
	store *degradableStore
	cfg   config.AbuseConfig

	nowFunc func() time.Time
}

// NewAbuseDetector creates a detector over the shared state store.
func NewAbuseDetector(store *degradableStore, cfg config.AbuseConfig) *AbuseDetector {
	return &AbuseDetector{store: store, cfg: cfg, nowFunc: time.Now}
}

// RecordAndCheck records an attempt for the pair and reports whether the pair
// is now over the resubmission threshold. Returns the attempt count inside
// the window after recording.
func (a *AbuseDetector) RecordAndCheck(ctx context.Context, identity, requestKey string) (abusive bool, attempts int, err error) {
	key := "abuse:" + identity + ":" + requestKey
	window := a.cfg.ResubmissionWindow()

	_, err = a.store.update(ctx, key, 2*window, func(current string, exists bool) (string, error) {
		var stamps []int64
		if exists {
			_ = json.Unmarshal([]byte(current), &stamps)
		}

		now := a.nowFunc().UnixMilli()
		cutoff := now - window.Milliseconds()
		kept := stamps[:0]
		for _, ts := range stamps {
			if ts > cutoff {
				kept = append(kept, ts)
			}
		}
		kept = append(kept, now)
		attempts = len(kept)

		encoded, marshalErr := json.Marshal(kept)
		if marshalErr != nil {
			return "", marshalErr
		}
		return string(encoded), nil
	})
	if err != nil {
		return false, 0, eris.Wrap(err, "abuse: record and check")
	}
	return attempts > a.cfg.ResubmissionThreshold, attempts, nil
}

// Clear forgets the pair's attempt history (admin operation).
func (a *AbuseDetector) Clear(ctx context.Context, identity, requestKey string) error {
	if err := a.store.set(ctx, "abuse:"+identity+":"+requestKey, "[]", a.cfg.ResubmissionWindow()); err != nil {
		return eris.Wrap(err, "abuse: clear")
	}
	return nil
}
