package config

import (
	"testing"

	"github.com/spf13/viper"

	"reconciliation-core/internal/config"
)

func resetViper() {
	viper.Reset()
}

func TestLoadReconcilerConfigDefaultsWhenNothingSet(t *testing.T) {
	resetViper()
	defer resetViper()

	cfg, err := LoadReconcilerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := config.DefaultConfig()
	if *cfg != *want {
		t.Errorf("expected LoadReconcilerConfig to match DefaultConfig when nothing is set: got %+v, want %+v", cfg, want)
	}
}

func TestLoadReconcilerConfigAppliesOverrides(t *testing.T) {
	resetViper()
	defer resetViper()

	viper.Set("max_cluster_size", 42)
	viper.Set("fixed_gap_threshold_cents", int64(250))
	viper.Set("rescue_semantic_threshold", 0.5)

	cfg, err := LoadReconcilerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MaxClusterSize != 42 {
		t.Errorf("MaxClusterSize = %d, want 42", cfg.MaxClusterSize)
	}
	if cfg.FixedGapThresholdCents != 250 {
		t.Errorf("FixedGapThresholdCents = %d, want 250", cfg.FixedGapThresholdCents)
	}
	if cfg.RescueSemanticThreshold != 0.5 {
		t.Errorf("RescueSemanticThreshold = %f, want 0.5", cfg.RescueSemanticThreshold)
	}

	// Untouched fields still carry the package defaults.
	want := config.DefaultConfig()
	if cfg.BufferDays != want.BufferDays {
		t.Errorf("BufferDays = %d, want default %d", cfg.BufferDays, want.BufferDays)
	}
}

func TestLoadReconcilerConfigRejectsInvalidOverride(t *testing.T) {
	resetViper()
	defer resetViper()

	viper.Set("max_cluster_size", -1)

	if _, err := LoadReconcilerConfig(); err == nil {
		t.Error("expected an error for an invalid max_cluster_size override")
	}
}
