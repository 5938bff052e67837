package governance

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/sponsorscope/scope/internal/config"
	"github.com/sponsorscope/scope/internal/resilience"
	"github.com/sponsorscope/scope/internal/statestore"
)

// Kill switch components.
const (
	ComponentScans = "scans"
	ComponentRead  = "read"
)

const (
	keyKillSwitchScans   = "killswitch:scans"
	keyKillSwitchRead    = "killswitch:read"
	keyKillSwitchNotices = "killswitch:notices"

	maxNotices = 10
)

// KillSwitchStatus is a point-in-time view of the kill switch.
type KillSwitchStatus struct {
	ScansEnabled       bool     `json:"scans_enabled"`
	ReadEnabled        bool     `json:"read_enabled"`
	MaintenanceMessage string   `json:"maintenance_message"`
	SystemNotices      []string `json:"system_notices"`
	StoreHealthy       bool     `json:"store_healthy"`
}

// KillSwitch gates classes of operation process-wide (and, through the shared
// state store, cluster-wide). Reads are hot-path: when the store is
// unreachable they return the last value this process observed instead of
// failing, so store downtime never turns into blanket request failure. That
// fail-to-last-known policy is deliberate and covered by tests.
type KillSwitch struct {
	store   statestore.Store
	breaker *resilience.Breaker
	message string

	mu          sync.RWMutex
	lastScans   bool
	lastRead    bool
	lastNotices []string
}

// NewKillSwitch creates a kill switch seeded with process-start defaults.
func NewKillSwitch(store statestore.Store, breaker *resilience.Breaker, cfg config.KillSwitchConfig) *KillSwitch {
	return &KillSwitch{
		store:     store,
		breaker:   breaker,
		message:   cfg.MaintenanceMessage,
		lastScans: cfg.ScansEnabled,
		lastRead:  cfg.ReadEnabled,
	}
}

func componentKey(component string) string {
	if component == ComponentRead {
		return keyKillSwitchRead
	}
	return keyKillSwitchScans
}

// IsEnabled reports whether the component is enabled. Side-effect-free apart
// from refreshing the local last-known cache.
func (k *KillSwitch) IsEnabled(ctx context.Context, component string) bool {
	type lookup struct {
		value string
		found bool
	}
	res, err := resilience.ExecuteVal(ctx, k.breaker, func(ctx context.Context) (lookup, error) {
		v, present, err := k.store.Get(ctx, componentKey(component))
		return lookup{v, present}, err
	})

	k.mu.Lock()
	defer k.mu.Unlock()
	if err == nil && res.found {
		enabled := res.value == "enabled"
		if component == ComponentRead {
			k.lastRead = enabled
		} else {
			k.lastScans = enabled
		}
		return enabled
	}

	// No recorded value, or store fault: return last known. For a fresh
	// store that is the configured process-start default.
	if component == ComponentRead {
		return k.lastRead
	}
	return k.lastScans
}

// Set records the component state in the shared store and updates the local
// cache regardless of store health, so administrative action always takes
// effect at least process-locally.
func (k *KillSwitch) Set(ctx context.Context, component string, enabled bool) error {
	state := "disabled"
	if enabled {
		state = "enabled"
	}

	err := k.breaker.Execute(ctx, func(ctx context.Context) error {
		return k.store.Set(ctx, componentKey(component), state, 0)
	})
	if err != nil {
		zap.L().Warn("kill switch write did not reach shared store",
			zap.String("component", component), zap.Error(err))
	}

	k.mu.Lock()
	if component == ComponentRead {
		k.lastRead = enabled
	} else {
		k.lastScans = enabled
	}
	k.mu.Unlock()
	return err
}

// AddNotice prepends a system notice, keeping the most recent maxNotices.
func (k *KillSwitch) AddNotice(ctx context.Context, text string) error {
	_, err := resilience.ExecuteVal(ctx, k.breaker, func(ctx context.Context) (string, error) {
		return k.store.Update(ctx, keyKillSwitchNotices, 0, func(current string, exists bool) (string, error) {
			var notices []string
			if exists {
				_ = json.Unmarshal([]byte(current), &notices)
			}
			notices = append([]string{text}, notices...)
			if len(notices) > maxNotices {
				notices = notices[:maxNotices]
			}
			encoded, marshalErr := json.Marshal(notices)
			if marshalErr != nil {
				return "", marshalErr
			}
			return string(encoded), nil
		})
	})

	k.mu.Lock()
	k.lastNotices = append([]string{text}, k.lastNotices...)
	if len(k.lastNotices) > maxNotices {
		k.lastNotices = k.lastNotices[:maxNotices]
	}
	k.mu.Unlock()

	if err != nil {
		zap.L().Warn("system notice did not reach shared store", zap.Error(err))
	}
	return err
}

// Notices returns current system notices, most recent first.
func (k *KillSwitch) Notices(ctx context.Context) []string {
	val, err := resilience.ExecuteVal(ctx, k.breaker, func(ctx context.Context) (string, error) {
		v, present, err := k.store.Get(ctx, keyKillSwitchNotices)
		if err != nil {
			return "", err
		}
		if !present {
			return "[]", nil
		}
		return v, nil
	})
	if err != nil {
		k.mu.RLock()
		defer k.mu.RUnlock()
		return append([]string(nil), k.lastNotices...)
	}

	var notices []string
	if jsonErr := json.Unmarshal([]byte(val), &notices); jsonErr != nil {
		return nil
	}

	k.mu.Lock()
	k.lastNotices = append([]string(nil), notices...)
	k.mu.Unlock()
	return notices
}

// MaintenanceMessage returns the configured operator-facing message.
func (k *KillSwitch) MaintenanceMessage() string { return k.message }

// Status returns a full snapshot for the governance endpoints.
func (k *KillSwitch) Status(ctx context.Context) KillSwitchStatus {
	healthy := k.breaker.Execute(ctx, func(ctx context.Context) error {
		return k.store.Ping(ctx)
	}) == nil

	return KillSwitchStatus{
		ScansEnabled:       k.IsEnabled(ctx, ComponentScans),
		ReadEnabled:        k.IsEnabled(ctx, ComponentRead),
		MaintenanceMessage: k.message,
		SystemNotices:      k.Notices(ctx),
		StoreHealthy:       healthy,
	}
}
