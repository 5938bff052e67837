package governance

import (
	"context"
	"testing"
	"time"

	"github.com/sponsorscope/scope/internal/config"
	"github.com/sponsorscope/scope/internal/resilience"
	"github.com/sponsorscope/scope/internal/statestore"
)

func testKillSwitchConfig() config.KillSwitchConfig {
	return config.KillSwitchConfig{
		ScansEnabled:       true,
		ReadEnabled:        true,
		MaintenanceMessage: "SponsorScope is currently undergoing scheduled maintenance.",
	}
}

func newTestBreaker() *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Second})
}

func TestKillSwitch_DefaultsFromConfig(t *testing.T) {
	ks := NewKillSwitch(statestore.NewMemory(), newTestBreaker(), testKillSwitchConfig())
	ctx := context.Background()

	if !ks.IsEnabled(ctx, ComponentScans) {
		t.Error("scans should default enabled")
	}
	if !ks.IsEnabled(ctx, ComponentRead) {
		t.Error("read should default enabled")
	}
}

func TestKillSwitch_SetAndRead(t *testing.T) {
	ks := NewKillSwitch(statestore.NewMemory(), newTestBreaker(), testKillSwitchConfig())
	ctx := context.Background()

	if err := ks.Set(ctx, ComponentScans, false); err != nil {
		t.Fatal(err)
	}
	if ks.IsEnabled(ctx, ComponentScans) {
		t.Error("scans should be disabled after Set")
	}
	if !ks.IsEnabled(ctx, ComponentRead) {
		t.Error("read must be untouched by the scans switch")
	}

	if err := ks.Set(ctx, ComponentScans, true); err != nil {
		t.Fatal(err)
	}
	if !ks.IsEnabled(ctx, ComponentScans) {
		t.Error("scans should be re-enabled")
	}
}

func TestKillSwitch_SharedAcrossInstances(t *testing.T) {
	store := statestore.NewMemory()
	ctx := context.Background()

	a := NewKillSwitch(store, newTestBreaker(), testKillSwitchConfig())
	b := NewKillSwitch(store, newTestBreaker(), testKillSwitchConfig())

	if err := a.Set(ctx, ComponentScans, false); err != nil {
		t.Fatal(err)
	}
	if b.IsEnabled(ctx, ComponentScans) {
		t.Error("second instance should see the shared disable")
	}
}

func TestKillSwitch_FailsToLastKnown(t *testing.T) {
	store := statestore.NewMemory()
	breaker := newTestBreaker()
	ks := NewKillSwitch(store, breaker, testKillSwitchConfig())
	ctx := context.Background()

	if err := ks.Set(ctx, ComponentScans, false); err != nil {
		t.Fatal(err)
	}
	if ks.IsEnabled(ctx, ComponentScans) {
		t.Fatal("precondition: scans disabled")
	}

	// Backend goes away; the disable must stick via the local cache.
	ks.store = failingStore{}
	if ks.IsEnabled(ctx, ComponentScans) {
		t.Error("store fault should return last known state, not the default")
	}
	if !ks.IsEnabled(ctx, ComponentRead) {
		t.Error("read last-known state is still enabled")
	}
}

func TestKillSwitch_SetWithFaultedStoreIsLocal(t *testing.T) {
	ks := NewKillSwitch(failingStore{}, newTestBreaker(), testKillSwitchConfig())
	ctx := context.Background()

	if err := ks.Set(ctx, ComponentScans, false); err == nil {
		t.Fatal("expected a store error to surface")
	}
	// The switch still takes effect process-locally.
	if ks.IsEnabled(ctx, ComponentScans) {
		t.Error("local cache should honor the disable even when the store is down")
	}
}

func TestKillSwitch_Notices(t *testing.T) {
	ks := NewKillSwitch(statestore.NewMemory(), newTestBreaker(), testKillSwitchConfig())
	ctx := context.Background()

	for _, n := range []string{"first", "second", "third"} {
		if err := ks.AddNotice(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	got := ks.Notices(ctx)
	if len(got) != 3 {
		t.Fatalf("notices = %d, want 3", len(got))
	}
	if got[0] != "third" {
		t.Errorf("most recent first: got[0] = %q", got[0])
	}
}

func TestKillSwitch_NoticesCapped(t *testing.T) {
	ks := NewKillSwitch(statestore.NewMemory(), newTestBreaker(), testKillSwitchConfig())
	ctx := context.Background()

	for i := 0; i < maxNotices+5; i++ {
		if err := ks.AddNotice(ctx, "notice"); err != nil {
			t.Fatal(err)
		}
	}
	if got := ks.Notices(ctx); len(got) != maxNotices {
		t.Errorf("notices = %d, want cap %d", len(got), maxNotices)
	}
}

func TestKillSwitch_Status(t *testing.T) {
	ks := NewKillSwitch(statestore.NewMemory(), newTestBreaker(), testKillSwitchConfig())
	ctx := context.Background()

	if err := ks.Set(ctx, ComponentRead, false); err != nil {
		t.Fatal(err)
	}
	st := ks.Status(ctx)
	if !st.ScansEnabled || st.ReadEnabled {
		t.Errorf("status = %+v, want scans on / read off", st)
	}
	if !st.StoreHealthy {
		t.Error("memory store should report healthy")
	}
	if st.MaintenanceMessage == "" {
		t.Error("maintenance message missing")
	}
}
