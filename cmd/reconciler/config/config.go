// Package config adapts the reconciliation core's flat Config record
// (internal/config.Config) to the CLI layer: it loads every key spec.md
// §6 names from viper (flags, env, and an optional config file bound in
// cmd/reconciler/cmd/root.go's initConfig), applying internal/config's
// own defaults for anything left unset.
package config

import (
	"reconciliation-core/internal/config"
	"reconciliation-core/internal/reporter"

	"github.com/spf13/viper"
)

// LoadReconcilerConfig builds an internal/config.Config from whatever
// viper has bound by the time a command runs, falling back to
// config.DefaultConfig()'s values key by key. Mirrors the teacher's
// CreateReconcilerConfig/CreateMatchingConfig pattern of building off
// a package-level Default*Config() and layering CLI overrides on top.
func LoadReconcilerConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	setIfPresent := func(key string, apply func()) {
		if viper.IsSet(key) {
			apply()
		}
	}

	setIfPresent("buffer_days", func() { cfg.BufferDays = viper.GetInt("buffer_days") })
	setIfPresent("hard_commit_threshold_days", func() { cfg.HardCommitThresholdDays = viper.GetInt("hard_commit_threshold_days") })
	setIfPresent("uniqueness_window_days", func() { cfg.UniquenessWindowDays = viper.GetInt("uniqueness_window_days") })
	setIfPresent("text_similarity_threshold", func() { cfg.TextSimilarityThreshold = viper.GetFloat64("text_similarity_threshold") })
	setIfPresent("max_cluster_size", func() { cfg.MaxClusterSize = viper.GetInt("max_cluster_size") })
	setIfPresent("leiden_resolution", func() { cfg.LeidenResolution = viper.GetFloat64("leiden_resolution") })
	setIfPresent("temporal_decay_alpha", func() { cfg.TemporalDecayAlpha = viper.GetFloat64("temporal_decay_alpha") })
	setIfPresent("solver_timeout_seconds", func() { cfg.SolverTimeoutSeconds = viper.GetInt("solver_timeout_seconds") })
	setIfPresent("max_abs_delta_cents", func() { cfg.MaxAbsDeltaCents = viper.GetInt64("max_abs_delta_cents") })
	setIfPresent("rel_delta_ratio", func() { cfg.RelDeltaRatio = viper.GetFloat64("rel_delta_ratio") })
	setIfPresent("fixed_gap_threshold_cents", func() { cfg.FixedGapThresholdCents = viper.GetInt64("fixed_gap_threshold_cents") })
	setIfPresent("causality_buffer_days", func() { cfg.CausalityBufferDays = viper.GetInt("causality_buffer_days") })
	setIfPresent("hard_stop_cluster_size", func() { cfg.HardStopClusterSize = viper.GetInt("hard_stop_cluster_size") })
	setIfPresent("rescue_semantic_threshold", func() { cfg.RescueSemanticThreshold = viper.GetFloat64("rescue_semantic_threshold") })

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReportConfigForFormat builds a reporter.ReportConfig for a CLI
// --output-format value, layering it onto reporter.DefaultReportConfig.
func ReportConfigForFormat(format string) *reporter.ReportConfig {
	cfg := reporter.DefaultReportConfig()
	cfg.Format = reporter.OutputFormat(format)
	return cfg
}
