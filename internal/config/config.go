package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RankingConfig carries every tunable the fusion engine and feed composer
// depend on. It is loaded once at startup and passed down explicitly; a bad
// value prevents the service from starting rather than failing per-request.
type RankingConfig struct {
	Fusion FusionConfig `yaml:"fusion"`
	Feed   FeedConfig   `yaml:"feed"`
	Ledger LedgerConfig `yaml:"ledger"`
}

type FusionConfig struct {
	TitleWeight      float64 `yaml:"title_weight"`
	SemanticWeight   float64 `yaml:"semantic_weight"`
	OCRWeight        float64 `yaml:"ocr_weight"`
	MultiSourceBoost float64 `yaml:"multi_source_boost"`
	AdapterTimeoutMS int     `yaml:"adapter_timeout_ms"`
}

type FeedConfig struct {
	PersonalRatio   float64 `yaml:"personal_ratio"`
	TrendingRatio   float64 `yaml:"trending_ratio"`
	FreshRatio      float64 `yaml:"fresh_ratio"`
	PerUploaderCap  int     `yaml:"per_uploader_cap"`
	FreshWindowDays int     `yaml:"fresh_window_days"`
	SeenWindowHours int     `yaml:"seen_window_hours"`
}

type LedgerConfig struct {
	DwellThresholdMS int `yaml:"dwell_threshold_ms"`
	RetentionDays    int `yaml:"retention_days"`
	StatsWindowDays  int `yaml:"stats_window_days"`
	MinImpressions   int `yaml:"min_impressions"`
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidWeight    ConfigErrorCode = "invalid_weight"
	ConfigErrorWeightSum        ConfigErrorCode = "weight_sum_exceeded"
	ConfigErrorInvalidBoost     ConfigErrorCode = "invalid_boost"
	ConfigErrorInvalidRatio     ConfigErrorCode = "invalid_ratio"
	ConfigErrorInvalidThreshold ConfigErrorCode = "invalid_threshold"
	ConfigErrorUnreadableFile   ConfigErrorCode = "unreadable_file"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Field string
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid ranking config"
	}
	switch e.Code {
	case ConfigErrorInvalidWeight:
		return fmt.Sprintf("fusion weight %s=%s must be in (0,1]", e.Field, e.Value)
	case ConfigErrorWeightSum:
		return fmt.Sprintf("fusion weights sum to %s; must be <= 1", e.Value)
	case ConfigErrorInvalidBoost:
		return fmt.Sprintf("multi_source_boost=%s must be > 1", e.Value)
	case ConfigErrorInvalidRatio:
		return fmt.Sprintf("feed ratio %s=%s invalid; ratios must be >= 0 and sum to 1", e.Field, e.Value)
	case ConfigErrorInvalidThreshold:
		return fmt.Sprintf("%s=%s must be a positive integer", e.Field, e.Value)
	case ConfigErrorUnreadableFile:
		return fmt.Sprintf("ranking config file %s unreadable", e.Value)
	default:
		return "invalid ranking config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Defaults mirror the tuning the ranking model shipped with. The weights are
// empirically chosen; treat them as configuration, not invariants.
func DefaultRankingConfig() RankingConfig {
	return RankingConfig{
		Fusion: FusionConfig{
			TitleWeight:      0.5,
			SemanticWeight:   0.3,
			OCRWeight:        0.2,
			MultiSourceBoost: 1.2,
			AdapterTimeoutMS: 3000,
		},
		Feed: FeedConfig{
			PersonalRatio:   0.6,
			TrendingRatio:   0.3,
			FreshRatio:      0.1,
			PerUploaderCap:  2,
			FreshWindowDays: 3,
			SeenWindowHours: 6,
		},
		Ledger: LedgerConfig{
			DwellThresholdMS: 600,
			RetentionDays:    90,
			StatsWindowDays:  7,
			MinImpressions:   5,
		},
	}
}

// Load builds the config from defaults, an optional YAML file pointed at by
// RANKING_CONFIG_PATH, then env var overrides, and validates the result.
func Load() (RankingConfig, error) {
	cfg := DefaultRankingConfig()

	if path := strings.TrimSpace(os.Getenv("RANKING_CONFIG_PATH")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return RankingConfig{}, &ConfigError{Code: ConfigErrorUnreadableFile, Value: path, Cause: err}
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return RankingConfig{}, &ConfigError{Code: ConfigErrorUnreadableFile, Value: path, Cause: err}
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return RankingConfig{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *RankingConfig) {
	overrideFloat("FUSION_TITLE_WEIGHT", &cfg.Fusion.TitleWeight)
	overrideFloat("FUSION_SEMANTIC_WEIGHT", &cfg.Fusion.SemanticWeight)
	overrideFloat("FUSION_OCR_WEIGHT", &cfg.Fusion.OCRWeight)
	overrideFloat("FUSION_MULTI_SOURCE_BOOST", &cfg.Fusion.MultiSourceBoost)
	overrideInt("FUSION_ADAPTER_TIMEOUT_MS", &cfg.Fusion.AdapterTimeoutMS)
	overrideFloat("FEED_PERSONAL_RATIO", &cfg.Feed.PersonalRatio)
	overrideFloat("FEED_TRENDING_RATIO", &cfg.Feed.TrendingRatio)
	overrideFloat("FEED_FRESH_RATIO", &cfg.Feed.FreshRatio)
	overrideInt("FEED_PER_UPLOADER_CAP", &cfg.Feed.PerUploaderCap)
	overrideInt("FEED_FRESH_WINDOW_DAYS", &cfg.Feed.FreshWindowDays)
	overrideInt("FEED_SEEN_WINDOW_HOURS", &cfg.Feed.SeenWindowHours)
	overrideInt("LEDGER_DWELL_THRESHOLD_MS", &cfg.Ledger.DwellThresholdMS)
	overrideInt("LEDGER_RETENTION_DAYS", &cfg.Ledger.RetentionDays)
	overrideInt("LEDGER_STATS_WINDOW_DAYS", &cfg.Ledger.StatsWindowDays)
	overrideInt("LEDGER_MIN_IMPRESSIONS", &cfg.Ledger.MinImpressions)
}

func overrideFloat(key string, dst *float64) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*dst = f
	}
}

func overrideInt(key string, dst *int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	if i, err := strconv.Atoi(raw); err == nil {
		*dst = i
	}
}

func (c RankingConfig) Validate() error {
	weights := map[string]float64{
		"title_weight":    c.Fusion.TitleWeight,
		"semantic_weight": c.Fusion.SemanticWeight,
		"ocr_weight":      c.Fusion.OCRWeight,
	}
	for field, w := range weights {
		if w <= 0 || w > 1 {
			return &ConfigError{Code: ConfigErrorInvalidWeight, Field: field, Value: formatFloat(w)}
		}
	}
	sum := c.Fusion.TitleWeight + c.Fusion.SemanticWeight + c.Fusion.OCRWeight
	if sum > 1+1e-9 {
		return &ConfigError{Code: ConfigErrorWeightSum, Value: formatFloat(sum)}
	}
	if c.Fusion.MultiSourceBoost <= 1 {
		return &ConfigError{Code: ConfigErrorInvalidBoost, Value: formatFloat(c.Fusion.MultiSourceBoost)}
	}

	ratios := map[string]float64{
		"personal_ratio": c.Feed.PersonalRatio,
		"trending_ratio": c.Feed.TrendingRatio,
		"fresh_ratio":    c.Feed.FreshRatio,
	}
	ratioSum := 0.0
	for field, r := range ratios {
		if r < 0 {
			return &ConfigError{Code: ConfigErrorInvalidRatio, Field: field, Value: formatFloat(r)}
		}
		ratioSum += r
	}
	if math.Abs(ratioSum-1) > 1e-6 {
		return &ConfigError{Code: ConfigErrorInvalidRatio, Field: "sum", Value: formatFloat(ratioSum)}
	}

	positives := map[string]int{
		"dwell_threshold_ms": c.Ledger.DwellThresholdMS,
		"retention_days":     c.Ledger.RetentionDays,
		"stats_window_days":  c.Ledger.StatsWindowDays,
		"adapter_timeout_ms": c.Fusion.AdapterTimeoutMS,
	}
	for field, v := range positives {
		if v <= 0 {
			return &ConfigError{Code: ConfigErrorInvalidThreshold, Field: field, Value: strconv.Itoa(v)}
		}
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
