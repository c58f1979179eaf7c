package config

import "testing"

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	c := DefaultConfig()
	if c.BufferDays != 5 || c.HardCommitThresholdDays != -2 || c.MaxClusterSize != 100 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	c := DefaultConfig()
	c.TextSimilarityThreshold = 1.5
	if err := c.Validate(); err == nil {
		t.Error("expected validation error for out-of-range threshold")
	}

	c = DefaultConfig()
	c.HardCommitThresholdDays = 3
	if err := c.Validate(); err == nil {
		t.Error("expected validation error for positive hard_commit_threshold_days")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := DefaultConfig()
	clone := c.Clone()
	clone.BufferDays = 99
	if c.BufferDays == 99 {
		t.Error("mutating the clone should not affect the original")
	}
}
