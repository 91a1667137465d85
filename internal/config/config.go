package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Recognizer RecognizerConfig `yaml:"recognizer" mapstructure:"recognizer"`
	Parse      ParseConfig      `yaml:"parse" mapstructure:"parse"`
	Workflow   WorkflowConfig   `yaml:"workflow" mapstructure:"workflow"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Compare    CompareConfig    `yaml:"compare" mapstructure:"compare"`
	Window     WindowConfig     `yaml:"window" mapstructure:"window"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RecognizerConfig configures the text recognition engine.
type RecognizerConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // command | remote
	CommandPath string  `yaml:"command_path" mapstructure:"command_path"`
	RemoteURL   string  `yaml:"remote_url" mapstructure:"remote_url"`
	RemoteKey   string  `yaml:"remote_key" mapstructure:"remote_key"`
	Workers     int     `yaml:"workers" mapstructure:"workers"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ParseConfig bounds field extraction.
type ParseConfig struct {
	MaxRank         int     `yaml:"max_rank" mapstructure:"max_rank"`
	MinScoreDigits  int     `yaml:"min_score_digits" mapstructure:"min_score_digits"`
	ConfidenceFloor float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`
}

// WorkflowConfig holds the confidence-gate thresholds. These are tuned
// parameters, not derived values.
type WorkflowConfig struct {
	AutoAcceptThreshold float64 `yaml:"auto_accept_threshold" mapstructure:"auto_accept_threshold"`
	ConfirmThreshold    float64 `yaml:"confirm_threshold" mapstructure:"confirm_threshold"`
	ConfirmTimeoutSecs  int     `yaml:"confirm_timeout_secs" mapstructure:"confirm_timeout_secs"`
	MinImageBytes       int     `yaml:"min_image_bytes" mapstructure:"min_image_bytes"`
	MaxImageBytes       int     `yaml:"max_image_bytes" mapstructure:"max_image_bytes"`
}

// ReconcileConfig tunes cross-cycle conflict detection and identity memory.
type ReconcileConfig struct {
	// CycleDropRatio: a new-cycle score below this fraction of the prior
	// cycle's max is a plausible fresh start; at or above it the screenshot
	// likely belongs to the stale cycle.
	CycleDropRatio float64 `yaml:"cycle_drop_ratio" mapstructure:"cycle_drop_ratio"`
	// IdentityConfidenceThreshold: extracted name/tag fields below this
	// confidence are replaced from identity memory.
	IdentityConfidenceThreshold float64 `yaml:"identity_confidence_threshold" mapstructure:"identity_confidence_threshold"`
	MaxScore                    int64   `yaml:"max_score" mapstructure:"max_score"`
}

// CompareConfig tunes the peer comparison engine.
type CompareConfig struct {
	PowerBandWidth float64 `yaml:"power_band_width" mapstructure:"power_band_width"`
	BronzeMax      int64   `yaml:"bronze_max" mapstructure:"bronze_max"`
	SilverMax      int64   `yaml:"silver_max" mapstructure:"silver_max"`
	GoldMax        int64   `yaml:"gold_max" mapstructure:"gold_max"`
}

// WindowConfig configures event window defaults.
type WindowConfig struct {
	DefaultDurationHours int `yaml:"default_duration_hours" mapstructure:"default_duration_hours"`
}

// ServerConfig configures the HTTP surface.
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
	v.SetEnvPrefix("SCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "scorescribe.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("recognizer.provider", "command")
	v.SetDefault("recognizer.command_path", "tesseract")
	v.SetDefault("recognizer.workers", 4)
	v.SetDefault("recognizer.rate_per_sec", 2.0)
	v.SetDefault("recognizer.timeout_secs", 30)
	v.SetDefault("parse.max_rank", 10000)
	v.SetDefault("parse.min_score_digits", 4)
	v.SetDefault("parse.confidence_floor", 0.05)
	v.SetDefault("workflow.auto_accept_threshold", 0.99)
	v.SetDefault("workflow.confirm_threshold", 0.95)
	v.SetDefault("workflow.confirm_timeout_secs", 120)
	v.SetDefault("workflow.min_image_bytes", 1024)
	v.SetDefault("workflow.max_image_bytes", 8*1024*1024)
	v.SetDefault("reconcile.cycle_drop_ratio", 0.6)
	v.SetDefault("reconcile.identity_confidence_threshold", 0.8)
	v.SetDefault("reconcile.max_score", 500_000_000)
	v.SetDefault("compare.power_band_width", 0.10)
	v.SetDefault("compare.bronze_max", 250_000)
	v.SetDefault("compare.silver_max", 800_000)
	v.SetDefault("compare.gold_max", 2_000_000)
	v.SetDefault("window.default_duration_hours", 144)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
