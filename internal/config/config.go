// Package config provides configuration loading, validation, and
// hot-reload for the IntelliMaint agent.
//
// Configuration file: /etc/intellimaint/config.yaml (default)
// Schema version: 1
//
// Hot-reload:
//   - Agent listens for SIGHUP.
//   - On SIGHUP: re-read and re-validate config.yaml.
//   - If the new config is invalid, the old config remains active and an
//     error is logged. The agent does NOT crash on invalid hot-reload config.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (weights >= 0, alphas in [0,1]).
//   - Invalid config on startup: agent refuses to start (fatal error).
//   - Invalid config on hot-reload: logged, old config retained.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the build via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure. All fields have defaults;
// see Defaults() for values.
type Config struct {
	SchemaVersion string `yaml:"schema_version"`
	NodeID        string `yaml:"node_id"`

	Edge             EdgeConfig             `yaml:"edge"`
	Processing       ProcessingConfig       `yaml:"processing"`
	StoreForward     StoreForwardConfig     `yaml:"store_forward"`
	Network          NetworkConfig          `yaml:"network"`
	Collection       CollectionEngineConfig `yaml:"collection"`
	Alarm            AlarmEngineConfig      `yaml:"alarm"`
	Cycle            CycleConfig            `yaml:"cycle"`
	DynamicBaseline  DynamicBaselineConfig  `yaml:"dynamic_baseline"`
	HealthAssessment HealthAssessmentConfig `yaml:"health_assessment"`
	MultiScale       MultiScaleConfig       `yaml:"multi_scale"`
	TrendPrediction  TrendPredictionConfig  `yaml:"trend_prediction"`
	Degradation      DegradationConfig      `yaml:"degradation"`
	RulPrediction    RulPredictionConfig    `yaml:"rul_prediction"`
	DataCleanup      DataCleanupConfig      `yaml:"data_cleanup"`
	RateLimit        RateLimitConfig        `yaml:"rate_limit"`
	Retry            RetryConfig            `yaml:"retry"`
	Storage          StorageConfig          `yaml:"storage"`
	Observability    ObservabilityConfig    `yaml:"observability"`
}

// EdgeConfig bounds the cross-component ingestion channel and batch writer.
type EdgeConfig struct {
	QueueCapacityGlobal int `yaml:"queue_capacity_global"`

	WriterBatchSize    int   `yaml:"writer_batch_size"`
	WriterFlushMs      int64 `yaml:"writer_flush_ms"`
	WriterMaxRetries   int   `yaml:"writer_max_retries"`
	WriterRetryDelayMs int64 `yaml:"writer_retry_delay_ms"`
}

// ProcessingConfig holds the edge deadband/outlier filter defaults.
type ProcessingConfig struct {
	DefaultDeadband        float64 `yaml:"default_deadband"`
	DefaultDeadbandPercent float64 `yaml:"default_deadband_percent"`
	MinIntervalMs          int64   `yaml:"min_interval_ms"`
	ForceUploadIntervalMs  int64   `yaml:"force_upload_interval_ms"`

	OutlierSigmaThreshold float64 `yaml:"outlier_sigma_threshold"`
	OutlierAction         string  `yaml:"outlier_action"` // Drop|Mark|Pass
}

// StoreForwardConfig holds the local rolling-buffer spill policy.
type StoreForwardConfig struct {
	MaxStoreSizeMB       int64  `yaml:"max_store_size_mb"`
	RetentionDays        int    `yaml:"retention_days"`
	CompressionAlgorithm string `yaml:"compression_algorithm"` // Gzip|Brotli
}

// NetworkConfig holds the S&F transport's health-check and batching
// knobs, plus the server-side ingest listener's bind address.
type NetworkConfig struct {
	HealthCheckIntervalMs int64  `yaml:"health_check_interval_ms"`
	HealthCheckTimeoutMs  int64  `yaml:"health_check_timeout_ms"`
	OfflineThreshold      int    `yaml:"offline_threshold"`
	SendBatchSize         int    `yaml:"send_batch_size"`
	SendIntervalMs        int64  `yaml:"send_interval_ms"`
	IngestURL             string `yaml:"ingest_url"`
	HealthURL             string `yaml:"health_url"`
	IngestListenAddr      string `yaml:"ingest_listen_addr"`
}

// CollectionEngineConfig holds the collection-rule worker's tick period.
type CollectionEngineConfig struct {
	TickIntervalMs int64 `yaml:"tick_interval_ms"`
}

// AlarmEngineConfig holds the alarm evaluator's cache-refresh period.
type AlarmEngineConfig struct {
	RuleCacheRefreshSeconds int64 `yaml:"rule_cache_refresh_seconds"`
}

// CycleConfig holds the cycle analyzer's fixed scoring weights and
// duration bounds.
type CycleConfig struct {
	AngleThreshold    float64 `yaml:"angle_threshold"`
	MinCycleDurationS float64 `yaml:"min_cycle_duration_s"`
	MaxCycleDurationS float64 `yaml:"max_cycle_duration_s"`
	DeviationWeight   float64 `yaml:"deviation_weight"` // 0.5
	BalanceWeight     float64 `yaml:"balance_weight"`   // 0.3
	DurationWeight    float64 `yaml:"duration_weight"`  // 0.2
	AnomalyThreshold  float64 `yaml:"anomaly_threshold"` // 60
}

// DynamicBaselineConfig holds the motor baseline learner's online
// estimator tuning.
type DynamicBaselineConfig struct {
	IncrementalWeight      float64 `yaml:"incremental_weight"`
	AnomalyFilterThreshold float64 `yaml:"anomaly_filter_threshold"`
	MinSampleCount         int64   `yaml:"min_sample_count"`
	AgingFactor            float64 `yaml:"aging_factor"`
	ReservoirSize          int     `yaml:"reservoir_size"`
}

// HealthAssessmentConfig holds the health engine's weighted-score
// composition and level buckets.
type HealthAssessmentConfig struct {
	Weights               HealthWeights         `yaml:"weights"`
	LevelThresholds       HealthLevelThresholds `yaml:"level_thresholds"`
	DefaultWindowMinutes  int64                 `yaml:"default_window_minutes"`
	TrendSlopeK           float64               `yaml:"trend_slope_k"`
	StabilityK            float64               `yaml:"stability_k"`
	MinScore              float64               `yaml:"min_score"`
	ConsiderDuration      bool                  `yaml:"consider_duration"`
	DurationFactorPerHour float64               `yaml:"duration_factor_per_hour"`
	MaxMultiplier         float64               `yaml:"max_multiplier"`
	MinSampleCount        int64                 `yaml:"min_sample_count"`
	DefaultTagImportance  string                `yaml:"default_tag_importance"`
	ProblemTagsTopN       int                   `yaml:"problem_tags_top_n"`
}

// HealthWeights are the four composite weights; should sum to ~1.0.
type HealthWeights struct {
	Deviation float64 `yaml:"deviation"`
	Trend     float64 `yaml:"trend"`
	Stability float64 `yaml:"stability"`
	Alarm     float64 `yaml:"alarm"`
}

// HealthLevelThresholds bucket the composite index into HealthLevel.
type HealthLevelThresholds struct {
	HealthyMin   float64 `yaml:"healthy_min"`
	AttentionMin float64 `yaml:"attention_min"`
	WarningMin   float64 `yaml:"warning_min"`
}

// MultiScaleConfig holds the optional short/medium/long window weights.
type MultiScaleConfig struct {
	Enabled           bool    `yaml:"enabled"`
	ShortTermMinutes  int64   `yaml:"short_term_minutes"`
	ShortWeight       float64 `yaml:"short_weight"`
	MediumTermMinutes int64   `yaml:"medium_term_minutes"`
	MediumWeight      float64 `yaml:"medium_weight"`
	LongTermMinutes   int64   `yaml:"long_term_minutes"`
	LongWeight        float64 `yaml:"long_weight"`
}

// TrendPredictionConfig holds the prognostics trend-forecast tuning.
type TrendPredictionConfig struct {
	HistoryWindowHours     int64   `yaml:"history_window_hours"`
	PredictionHorizonHours int64   `yaml:"prediction_horizon_hours"`
	SmoothingAlpha         float64 `yaml:"smoothing_alpha"`
	ConfidenceThreshold    float64 `yaml:"confidence_threshold"`
}

// DegradationConfig holds the sustained-trend detector's tuning.
type DegradationConfig struct {
	NoiseFilterWindowHours   int64   `yaml:"noise_filter_window_hours"`
	DetectionWindowDays      int64   `yaml:"detection_window_days"`
	DegradationRateThreshold float64 `yaml:"degradation_rate_threshold"`
	ConfirmationCount        int     `yaml:"confirmation_count"`
}

// RulPredictionConfig holds the remaining-useful-life model selection.
type RulPredictionConfig struct {
	FailureThreshold        float64 `yaml:"failure_threshold"`
	ModelType               string  `yaml:"model_type"` // Linear|Exponential|Weibull
	HistoryWindowDays       int64   `yaml:"history_window_days"`
	NormalDegradationPerDay float64 `yaml:"normal_degradation_per_day"`
	AvgRepairLeadHours      float64 `yaml:"avg_repair_lead_hours"`
}

// DataCleanupConfig holds per-table retention windows and the cleanup
// worker's run interval.
type DataCleanupConfig struct {
	CleanupIntervalHours       int64 `yaml:"cleanup_interval_hours"`
	TelemetryRetentionDays     int64 `yaml:"telemetry_retention_days"`
	Telemetry1mRetentionDays   int64 `yaml:"telemetry_1m_retention_days"`
	Telemetry1hRetentionDays   int64 `yaml:"telemetry_1h_retention_days"`
	AlarmRetentionDays         int64 `yaml:"alarm_retention_days"`
	AuditLogRetentionDays      int64 `yaml:"audit_log_retention_days"`
	VacuumThreshold            int64 `yaml:"vacuum_threshold"`
	AggregationIntervalMinutes int64 `yaml:"aggregation_interval_minutes"`
}

// RateLimitConfig holds the ingest token bucket.
type RateLimitConfig struct {
	Capacity     int           `yaml:"capacity"`
	RefillPeriod time.Duration `yaml:"refill_period"`
}

// RetryConfig is the bounded exponential backoff schedule for transient
// infrastructure errors.
type RetryConfig struct {
	InitialDelayMs    int64   `yaml:"initial_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxDelayMs        int64   `yaml:"max_delay_ms"`
	MaxRetries        int     `yaml:"max_retries"`
}

// StorageConfig holds the Postgres and local BoltDB connection settings.
type StorageConfig struct {
	PostgresDSN         string `yaml:"postgres_dsn"`
	BoltDBPath          string `yaml:"boltdb_path"`
	QueryTimeoutSeconds int64  `yaml:"query_timeout_seconds"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Defaults returns a Config populated with all default values drawn from
// spec.md's recognized-configuration-options table.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Edge: EdgeConfig{
			QueueCapacityGlobal: 100,
			WriterBatchSize:     500,
			WriterFlushMs:       1000,
			WriterMaxRetries:    3,
			WriterRetryDelayMs:  200,
		},
		Processing: ProcessingConfig{
			DefaultDeadband:        0.0,
			DefaultDeadbandPercent: 0.0,
			MinIntervalMs:          0,
			ForceUploadIntervalMs:  60_000,
			OutlierSigmaThreshold:  4.0,
			OutlierAction:          "Mark",
		},
		StoreForward: StoreForwardConfig{
			MaxStoreSizeMB:       512,
			RetentionDays:        7,
			CompressionAlgorithm: "Gzip",
		},
		Network: NetworkConfig{
			HealthCheckIntervalMs: 5_000,
			HealthCheckTimeoutMs:  2_000,
			OfflineThreshold:      3,
			SendBatchSize:         100,
			SendIntervalMs:        1_000,
			IngestURL:             "http://localhost:8080/api/telemetry/batch",
			HealthURL:             "http://localhost:8080/health/live",
			IngestListenAddr:      ":8080",
		},
		Collection: CollectionEngineConfig{
			TickIntervalMs: 500,
		},
		Alarm: AlarmEngineConfig{
			RuleCacheRefreshSeconds: 30,
		},
		Cycle: CycleConfig{
			AngleThreshold:    5.0,
			MinCycleDurationS: 1.0,
			MaxCycleDurationS: 600.0,
			DeviationWeight:   0.5,
			BalanceWeight:     0.3,
			DurationWeight:    0.2,
			AnomalyThreshold:  60.0,
		},
		DynamicBaseline: DynamicBaselineConfig{
			IncrementalWeight:      0.1,
			AnomalyFilterThreshold: 3.0,
			MinSampleCount:         30,
			AgingFactor:            0.01,
			ReservoirSize:          2000,
		},
		HealthAssessment: HealthAssessmentConfig{
			Weights: HealthWeights{
				Deviation: 0.35,
				Trend:     0.25,
				Stability: 0.20,
				Alarm:     0.20,
			},
			LevelThresholds: HealthLevelThresholds{
				HealthyMin:   80,
				AttentionMin: 60,
				WarningMin:   40,
			},
			DefaultWindowMinutes:  60,
			TrendSlopeK:           100,
			StabilityK:            10,
			MinScore:              0,
			ConsiderDuration:      true,
			DurationFactorPerHour: 0.05,
			MaxMultiplier:         2.0,
			MinSampleCount:        30,
			DefaultTagImportance:  "Minor",
			ProblemTagsTopN:       5,
		},
		MultiScale: MultiScaleConfig{
			Enabled:           false,
			ShortTermMinutes:  5,
			ShortWeight:       0.4,
			MediumTermMinutes: 60,
			MediumWeight:      0.35,
			LongTermMinutes:   1440,
			LongWeight:        0.25,
		},
		TrendPrediction: TrendPredictionConfig{
			HistoryWindowHours:     24,
			PredictionHorizonHours: 72,
			SmoothingAlpha:         0.3,
			ConfidenceThreshold:    0.6,
		},
		Degradation: DegradationConfig{
			NoiseFilterWindowHours:   6,
			DetectionWindowDays:      7,
			DegradationRateThreshold: 0.5,
			ConfirmationCount:        3,
		},
		RulPrediction: RulPredictionConfig{
			FailureThreshold:        30,
			ModelType:               "Linear",
			HistoryWindowDays:       30,
			NormalDegradationPerDay: 0.5,
			AvgRepairLeadHours:      8,
		},
		DataCleanup: DataCleanupConfig{
			CleanupIntervalHours:       1,
			TelemetryRetentionDays:     7,
			Telemetry1mRetentionDays:   30,
			Telemetry1hRetentionDays:   365,
			AlarmRetentionDays:         180,
			AuditLogRetentionDays:      365,
			VacuumThreshold:            10_000,
			AggregationIntervalMinutes: 1,
		},
		RateLimit: RateLimitConfig{
			Capacity:     10_000,
			RefillPeriod: 60 * time.Second,
		},
		Retry: RetryConfig{
			InitialDelayMs:    200,
			BackoffMultiplier: 2.0,
			MaxDelayMs:        5_000,
			MaxRetries:        3,
		},
		Storage: StorageConfig{
			PostgresDSN:         "postgres://localhost:5432/intellimaint",
			BoltDBPath:          DefaultBoltDBPath,
			QueryTimeoutSeconds: 30,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// DefaultBoltDBPath is the local store-and-forward / audit ledger file.
const DefaultBoltDBPath = "/var/lib/intellimaint/intellimaint.db"

// Load reads and validates a config file from the given path. Returns the
// merged config (defaults overridden by file values).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness, accumulating every
// violation rather than failing on the first.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.Edge.QueueCapacityGlobal < 1 {
		errs = append(errs, fmt.Sprintf("edge.queue_capacity_global must be >= 1, got %d", cfg.Edge.QueueCapacityGlobal))
	}
	if cfg.Edge.WriterBatchSize < 1 {
		errs = append(errs, fmt.Sprintf("edge.writer_batch_size must be >= 1, got %d", cfg.Edge.WriterBatchSize))
	}
	if cfg.Processing.OutlierSigmaThreshold <= 0 {
		errs = append(errs, "processing.outlier_sigma_threshold must be > 0")
	}
	switch cfg.Processing.OutlierAction {
	case "Drop", "Mark", "Pass":
	default:
		errs = append(errs, fmt.Sprintf("processing.outlier_action must be one of Drop|Mark|Pass, got %q", cfg.Processing.OutlierAction))
	}
	switch cfg.StoreForward.CompressionAlgorithm {
	case "Gzip", "Brotli":
	default:
		errs = append(errs, fmt.Sprintf("store_forward.compression_algorithm must be Gzip|Brotli, got %q", cfg.StoreForward.CompressionAlgorithm))
	}
	if cfg.StoreForward.MaxStoreSizeMB < 1 {
		errs = append(errs, "store_forward.max_store_size_mb must be >= 1")
	}
	if cfg.Network.OfflineThreshold < 1 {
		errs = append(errs, "network.offline_threshold must be >= 1")
	}
	if cfg.Network.SendBatchSize < 1 {
		errs = append(errs, "network.send_batch_size must be >= 1")
	}
	w := cfg.HealthAssessment.Weights
	sum := w.Deviation + w.Trend + w.Stability + w.Alarm
	if w.Deviation < 0 || w.Trend < 0 || w.Stability < 0 || w.Alarm < 0 {
		errs = append(errs, "all health_assessment.weights must be >= 0")
	}
	if sum < 0.9 || sum > 1.1 {
		errs = append(errs, fmt.Sprintf("health_assessment.weights must sum to ~1.0, got %f", sum))
	}
	lt := cfg.HealthAssessment.LevelThresholds
	if !(lt.HealthyMin > lt.AttentionMin && lt.AttentionMin > lt.WarningMin) {
		errs = append(errs, "health_assessment.level_thresholds must satisfy healthy_min > attention_min > warning_min")
	}
	if cfg.DynamicBaseline.IncrementalWeight < 0 || cfg.DynamicBaseline.IncrementalWeight > 1 {
		errs = append(errs, "dynamic_baseline.incremental_weight must be in [0,1]")
	}
	if cfg.DynamicBaseline.AnomalyFilterThreshold <= 0 {
		errs = append(errs, "dynamic_baseline.anomaly_filter_threshold must be > 0")
	}
	if cfg.DynamicBaseline.ReservoirSize < 1 {
		errs = append(errs, "dynamic_baseline.reservoir_size must be >= 1")
	}
	if cfg.TrendPrediction.SmoothingAlpha < 0 || cfg.TrendPrediction.SmoothingAlpha > 1 {
		errs = append(errs, "trend_prediction.smoothing_alpha must be in [0,1]")
	}
	if cfg.Degradation.ConfirmationCount < 1 {
		errs = append(errs, "degradation.confirmation_count must be >= 1")
	}
	switch cfg.RulPrediction.ModelType {
	case "Linear", "Exponential", "Weibull":
	default:
		errs = append(errs, fmt.Sprintf("rul_prediction.model_type must be Linear|Exponential|Weibull, got %q", cfg.RulPrediction.ModelType))
	}
	if cfg.RateLimit.Capacity < 1 {
		errs = append(errs, "rate_limit.capacity must be >= 1")
	}
	if cfg.Retry.MaxRetries < 0 {
		errs = append(errs, "retry.max_retries must be >= 0")
	}
	if cfg.Retry.BackoffMultiplier < 1.0 {
		errs = append(errs, "retry.backoff_multiplier must be >= 1.0")
	}
	if cfg.Storage.BoltDBPath == "" {
		errs = append(errs, "storage.boltdb_path must not be empty")
	}
	if cfg.Storage.PostgresDSN == "" {
		errs = append(errs, "storage.postgres_dsn must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
