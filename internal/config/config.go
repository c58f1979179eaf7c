// Package config holds the flat configuration record shared by every
// pipeline stage, in the teacher's Default*Config()/Validate()/Clone()
// idiom (see internal/matcher.MatchingConfig in the retrieval pack).
package config

import (
	"fmt"

	recerrors "reconciliation-core/pkg/errors"
)

// Config is the single flat record of recognized keys from spec.md §6.
type Config struct {
	BufferDays              int     `mapstructure:"buffer_days"`
	HardCommitThresholdDays int     `mapstructure:"hard_commit_threshold_days"`
	UniquenessWindowDays    int     `mapstructure:"uniqueness_window_days"`
	TextSimilarityThreshold float64 `mapstructure:"text_similarity_threshold"`
	MaxClusterSize          int     `mapstructure:"max_cluster_size"`
	LeidenResolution        float64 `mapstructure:"leiden_resolution"`
	TemporalDecayAlpha      float64 `mapstructure:"temporal_decay_alpha"`
	SolverTimeoutSeconds    int     `mapstructure:"solver_timeout_seconds"`
	MaxAbsDeltaCents        int64   `mapstructure:"max_abs_delta_cents"`
	RelDeltaRatio           float64 `mapstructure:"rel_delta_ratio"`
	FixedGapThresholdCents  int64   `mapstructure:"fixed_gap_threshold_cents"`
	CausalityBufferDays     int     `mapstructure:"causality_buffer_days"`
	HardStopClusterSize     int     `mapstructure:"hard_stop_cluster_size"`
	RescueSemanticThreshold float64 `mapstructure:"rescue_semantic_threshold"`
}

// DefaultConfig returns the configuration with every default listed in
// spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		BufferDays:              5,
		HardCommitThresholdDays: -2,
		UniquenessWindowDays:    2,
		TextSimilarityThreshold: 0.7,
		MaxClusterSize:          100,
		LeidenResolution:        1.0,
		TemporalDecayAlpha:      0.1,
		SolverTimeoutSeconds:    30,
		MaxAbsDeltaCents:        50,
		RelDeltaRatio:           0.001,
		FixedGapThresholdCents:  100,
		CausalityBufferDays:     3,
		HardStopClusterSize:     500,
		RescueSemanticThreshold: 0.8,
	}
}

// Validate checks every field is within a sane range, in the teacher's
// range-check style (internal/matcher.MatchingConfig.Validate).
func (c *Config) Validate() error {
	if c.BufferDays < 0 {
		return fieldErr("buffer_days", c.BufferDays, "must be >= 0")
	}
	if c.HardCommitThresholdDays > 0 {
		return fieldErr("hard_commit_threshold_days", c.HardCommitThresholdDays, "must be <= 0")
	}
	if c.UniquenessWindowDays < 0 {
		return fieldErr("uniqueness_window_days", c.UniquenessWindowDays, "must be >= 0")
	}
	if c.TextSimilarityThreshold < 0 || c.TextSimilarityThreshold > 1 {
		return fieldErr("text_similarity_threshold", c.TextSimilarityThreshold, "must be in [0,1]")
	}
	if c.MaxClusterSize <= 0 {
		return fieldErr("max_cluster_size", c.MaxClusterSize, "must be > 0")
	}
	if c.LeidenResolution <= 0 {
		return fieldErr("leiden_resolution", c.LeidenResolution, "must be > 0")
	}
	if c.TemporalDecayAlpha < 0 {
		return fieldErr("temporal_decay_alpha", c.TemporalDecayAlpha, "must be >= 0")
	}
	if c.SolverTimeoutSeconds <= 0 {
		return fieldErr("solver_timeout_seconds", c.SolverTimeoutSeconds, "must be > 0")
	}
	if c.MaxAbsDeltaCents < 0 {
		return fieldErr("max_abs_delta_cents", c.MaxAbsDeltaCents, "must be >= 0")
	}
	if c.RelDeltaRatio < 0 {
		return fieldErr("rel_delta_ratio", c.RelDeltaRatio, "must be >= 0")
	}
	if c.FixedGapThresholdCents < 0 {
		return fieldErr("fixed_gap_threshold_cents", c.FixedGapThresholdCents, "must be >= 0")
	}
	if c.CausalityBufferDays < 0 {
		return fieldErr("causality_buffer_days", c.CausalityBufferDays, "must be >= 0")
	}
	if c.HardStopClusterSize <= 0 {
		return fieldErr("hard_stop_cluster_size", c.HardStopClusterSize, "must be > 0")
	}
	if c.RescueSemanticThreshold < 0 || c.RescueSemanticThreshold > 1 {
		return fieldErr("rescue_semantic_threshold", c.RescueSemanticThreshold, "must be in [0,1]")
	}
	return nil
}

func fieldErr(field string, value interface{}, reason string) error {
	return recerrors.ConfigurationError(recerrors.CodeInvalidConfig, field, value, fmt.Errorf(reason))
}

// Clone returns a deep copy (Config has no reference fields today, but
// Clone is kept to match the teacher's MatchingConfig.Clone idiom and
// protect future additions).
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
