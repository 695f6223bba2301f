package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer" mapstructure:"analyzer"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Scorer     ScorerConfig     `yaml:"scorer" mapstructure:"scorer"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the relational store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SearchConfig configures the search index store.
type SearchConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AnalyzerConfig holds AI analyzer settings.
type AnalyzerConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxConcurrent  int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RequestsPerMin float64 `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTextChars   int     `yaml:"max_text_chars" mapstructure:"max_text_chars"`
}

// Timeout returns the per-call analyzer timeout.
func (c AnalyzerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ExtractionConfig configures the tiered orchestrator and golden record policy.
// All thresholds are policy values, tunable per deployment.
type ExtractionConfig struct {
	TargetConfidence     float64 `yaml:"target_confidence" mapstructure:"target_confidence"`
	ReviewThreshold      float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	FieldReviewThreshold float64 `yaml:"field_review_threshold" mapstructure:"field_review_threshold"`
	NumericTolerance     float64 `yaml:"numeric_tolerance" mapstructure:"numeric_tolerance"`
	MaxTier              int     `yaml:"max_tier" mapstructure:"max_tier"`
	TaskTimeoutSecs      int     `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs"`
	TierTimeoutSecs      int     `yaml:"tier_timeout_secs" mapstructure:"tier_timeout_secs"`
	DefaultCostCeiling   float64 `yaml:"default_cost_ceiling_usd" mapstructure:"default_cost_ceiling_usd"`
}

// TaskTimeout returns the total wall-clock budget for one task.
func (c ExtractionConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSecs) * time.Second
}

// TierTimeout returns the default per-strategy timeout within a tier.
func (c ExtractionConfig) TierTimeout() time.Duration {
	return time.Duration(c.TierTimeoutSecs) * time.Second
}

// ScorerConfig holds confidence scorer weights and heuristic knobs.
// SelfWeight, TextWeight and TableWeight must sum to 1.
type ScorerConfig struct {
	SelfWeight         float64 `yaml:"self_weight" mapstructure:"self_weight"`
	TextWeight         float64 `yaml:"text_weight" mapstructure:"text_weight"`
	TableWeight        float64 `yaml:"table_weight" mapstructure:"table_weight"`
	TextSaturationLen  int     `yaml:"text_saturation_len" mapstructure:"text_saturation_len"`
	TableNeutralScore  float64 `yaml:"table_neutral_score" mapstructure:"table_neutral_score"`
	KindBonusTable     float64 `yaml:"kind_bonus_table" mapstructure:"kind_bonus_table"`
	KindBonusSemantic  float64 `yaml:"kind_bonus_semantic" mapstructure:"kind_bonus_semantic"`
	DatasheetHintBonus float64 `yaml:"datasheet_hint_bonus" mapstructure:"datasheet_hint_bonus"`
}

// ExtractConfig configures deterministic PDF extraction.
type ExtractConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// RegistryConfig locates the expected-field registry file. Empty path means
// the built-in registry.
type RegistryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LAMBDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lambda.db")
	v.SetDefault("search.path", "lambda-search.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_documents", 4)
	v.SetDefault("analyzer.model", "claude-haiku-4-5-20251001")
	v.SetDefault("analyzer.max_tokens", 4096)
	v.SetDefault("analyzer.max_concurrent", 2)
	v.SetDefault("analyzer.requests_per_min", 30)
	v.SetDefault("analyzer.timeout_secs", 90)
	v.SetDefault("analyzer.max_text_chars", 60000)
	v.SetDefault("extraction.target_confidence", 0.75)
	v.SetDefault("extraction.review_threshold", 0.6)
	v.SetDefault("extraction.field_review_threshold", 0.35)
	v.SetDefault("extraction.numeric_tolerance", 0.01)
	v.SetDefault("extraction.max_tier", 2)
	v.SetDefault("extraction.task_timeout_secs", 300)
	v.SetDefault("extraction.tier_timeout_secs", 60)
	v.SetDefault("extraction.default_cost_ceiling_usd", 0.50)
	v.SetDefault("scorer.self_weight", 0.6)
	v.SetDefault("scorer.text_weight", 0.2)
	v.SetDefault("scorer.table_weight", 0.2)
	v.SetDefault("scorer.text_saturation_len", 1000)
	v.SetDefault("scorer.table_neutral_score", 0.5)
	v.SetDefault("scorer.kind_bonus_table", 0.03)
	v.SetDefault("scorer.kind_bonus_semantic", 0.05)
	v.SetDefault("scorer.datasheet_hint_bonus", 0.02)
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("registry.path", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
