package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"nofomo/internal/engine"
	"nofomo/internal/logging"
)

// Decision log drivers.
const (
	DriverJSONL    = "jsonl"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverWAL      = "wal"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Server      ServerConfig      `mapstructure:"server"`
	Engine      engine.Params     `mapstructure:"engine"`
	DecisionLog DecisionLogConfig `mapstructure:"decision_log"`
	Enrichment  EnrichmentConfig  `mapstructure:"enrichment"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Digest      DigestConfig      `mapstructure:"digest"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig covers the HTTP boundary.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

// DecisionLogConfig selects and tunes the append-only decision log.
// Path is a file for jsonl and sqlite and a directory for wal.
type DecisionLogConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	SyncWrites      bool          `mapstructure:"sync_writes"`
	QueueSize       int           `mapstructure:"queue_size"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// EnrichmentConfig controls filling missing snapshot fields from public feeds.
type EnrichmentConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BinanceBaseURL string        `mapstructure:"binance_base_url"`
	FearGreedURL   string        `mapstructure:"fear_greed_url"`
	QuoteAsset     string        `mapstructure:"quote_asset"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AlertingConfig defines alert routing for high-risk decisions.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Actions  []string       `mapstructure:"actions"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot target.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DigestConfig governs the periodic decision summary.
type DigestConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	TopSymbols    int           `mapstructure:"top_symbols"`

	// AdvisoryLockKey keeps replicas sharing a postgres log from sending the same digest.
	AdvisoryLockKey int64 `mapstructure:"advisory_lock_key"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOFOMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "nofomo")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_body_bytes", 64<<10)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)

	params := engine.DefaultParams()
	v.SetDefault("engine.weights.volatility", params.Weights.Volatility)
	v.SetDefault("engine.weights.alignment", params.Weights.Alignment)
	v.SetDefault("engine.weights.extremity", params.Weights.Extremity)
	tiers := make([]map[string]any, 0, len(params.VolatilityTiers))
	for _, tier := range params.VolatilityTiers {
		tiers = append(tiers, map[string]any{"min_abs_change": tier.MinAbsChange, "score": tier.Score})
	}
	v.SetDefault("engine.volatility_tiers", tiers)
	v.SetDefault("engine.warn_threshold", params.WarnThreshold)
	v.SetDefault("engine.block_threshold", params.BlockThreshold)
	v.SetDefault("engine.warn_cooling_seconds", params.WarnCoolingSeconds)
	v.SetDefault("engine.block_cooling_seconds", params.BlockCoolingSeconds)
	v.SetDefault("engine.materiality_points", params.MaterialityPoints)
	v.SetDefault("engine.confidence.base", params.Confidence.Base)
	v.SetDefault("engine.confidence.missing_change", params.Confidence.MissingChange)
	v.SetDefault("engine.confidence.missing_fear_greed", params.Confidence.MissingFearGreed)
	v.SetDefault("engine.confidence.missing_sentiment", params.Confidence.MissingSentiment)

	v.SetDefault("decision_log.driver", DriverJSONL)
	v.SetDefault("decision_log.path", "")
	v.SetDefault("decision_log.sync_writes", false)
	v.SetDefault("decision_log.queue_size", 1024)
	v.SetDefault("decision_log.dsn", "")
	v.SetDefault("decision_log.max_conns", 10)
	v.SetDefault("decision_log.min_conns", 1)
	v.SetDefault("decision_log.conn_max_lifetime", "30m")

	v.SetDefault("enrichment.enabled", false)
	v.SetDefault("enrichment.request_timeout", "2s")
	v.SetDefault("enrichment.binance_base_url", "https://api.binance.com")
	v.SetDefault("enrichment.fear_greed_url", "https://api.alternative.me/fng/")
	v.SetDefault("enrichment.quote_asset", "USDT")
	v.SetDefault("enrichment.user_agent", "nofomo/1.0")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.actions", []string{string(engine.ActionBlock)})
	v.SetDefault("alerting.cooldown", "10m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("digest.enabled", false)
	v.SetDefault("digest.interval", "1h")
	v.SetDefault("digest.align_to_bucket", true)
	v.SetDefault("digest.startup_delay", "0s")
	v.SetDefault("digest.top_symbols", 3)
	v.SetDefault("digest.advisory_lock_key", 0x6e6f666f)

	v.SetDefault("export.max_entries", 500)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be greater than zero")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst cannot be negative")
	}

	c.DecisionLog.Driver = strings.ToLower(strings.TrimSpace(c.DecisionLog.Driver))
	switch c.DecisionLog.Driver {
	case DriverJSONL, DriverSQLite, DriverWAL:
	case DriverPostgres:
		if c.DecisionLog.DSN == "" {
			return fmt.Errorf("decision_log.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("decision_log.driver %q is not supported", c.DecisionLog.Driver)
	}
	if c.DecisionLog.QueueSize <= 0 {
		return fmt.Errorf("decision_log.queue_size must be greater than zero")
	}

	if c.Enrichment.Enabled && c.Enrichment.RequestTimeout <= 0 {
		return fmt.Errorf("enrichment.request_timeout must be greater than zero")
	}

	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	for _, raw := range c.Alerting.Actions {
		switch engine.Action(strings.ToUpper(strings.TrimSpace(raw))) {
		case engine.ActionAllow, engine.ActionWarn, engine.ActionBlock:
		default:
			return fmt.Errorf("alerting.actions: unknown action %q", raw)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}

	if c.Digest.Enabled && c.Digest.Interval <= 0 {
		return fmt.Errorf("digest.interval must be greater than zero")
	}
	if c.Export.MaxEntries <= 0 {
		return fmt.Errorf("export.max_entries must be greater than zero")
	}
	return nil
}

// ResolvePath returns the configured log location or the driver default.
func (d DecisionLogConfig) ResolvePath() string {
	if d.Path != "" {
		return d.Path
	}
	switch d.Driver {
	case DriverSQLite:
		return filepath.Join("data", "decision-log.db")
	case DriverWAL:
		return filepath.Join("data", "decision-wal")
	default:
		return filepath.Join("data", "decision-log.jsonl")
	}
}

// AlertActions returns the set of actions that trigger an alert.
func (a AlertingConfig) AlertActions() map[engine.Action]bool {
	set := make(map[engine.Action]bool, len(a.Actions))
	for _, raw := range a.Actions {
		set[engine.Action(strings.ToUpper(strings.TrimSpace(raw)))] = true
	}
	return set
}

// ResolveMaxEntries returns either the CLI override or config default.
func (c *Config) ResolveMaxEntries(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxEntries
}
