package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nofomo/internal/engine"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nofomo", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(64<<10), cfg.Server.MaxBodyBytes)
	assert.Equal(t, DriverJSONL, cfg.DecisionLog.Driver)
	assert.Equal(t, filepath.Join("data", "decision-log.jsonl"), cfg.DecisionLog.ResolvePath())
	assert.Equal(t, engine.DefaultParams(), cfg.Engine)
	assert.Equal(t, 10*time.Minute, cfg.Alerting.Cooldown)
	assert.True(t, cfg.Alerting.AlertActions()[engine.ActionBlock])
	assert.False(t, cfg.Enrichment.Enabled)
	assert.Equal(t, int64(0x6e6f666f), cfg.Digest.AdvisoryLockKey)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  addr: "127.0.0.1:9090"
engine:
  warn_threshold: 25
  block_threshold: 70
  volatility_tiers:
    - min_abs_change: 4
      score: 40
    - min_abs_change: 12
      score: 90
decision_log:
  driver: SQLITE
alerting:
  actions: "warn,block"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("NOFOMO_DIGEST_INTERVAL", "15m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, 25, cfg.Engine.WarnThreshold)
	assert.Equal(t, 70, cfg.Engine.BlockThreshold)
	assert.Len(t, cfg.Engine.VolatilityTiers, 2)
	assert.Equal(t, DriverSQLite, cfg.DecisionLog.Driver)
	assert.Equal(t, filepath.Join("data", "decision-log.db"), cfg.DecisionLog.ResolvePath())
	assert.Equal(t, 15*time.Minute, cfg.Digest.Interval)

	actions := cfg.Alerting.AlertActions()
	assert.True(t, actions[engine.ActionWarn])
	assert.True(t, actions[engine.ActionBlock])
	assert.False(t, actions[engine.ActionAllow])
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:      ServerConfig{Addr: ":8080", MaxBodyBytes: 1024},
			Engine:      engine.DefaultParams(),
			DecisionLog: DecisionLogConfig{Driver: DriverJSONL, QueueSize: 8},
			Export:      ExportConfig{MaxEntries: 10},
		}
	}
	base := valid()
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"bad engine":          func(c *Config) { c.Engine.BlockThreshold = 10 },
		"missing addr":        func(c *Config) { c.Server.Addr = "" },
		"unknown driver":      func(c *Config) { c.DecisionLog.Driver = "mongo" },
		"postgres needs dsn":  func(c *Config) { c.DecisionLog.Driver = DriverPostgres },
		"empty queue":         func(c *Config) { c.DecisionLog.QueueSize = 0 },
		"unknown alert":       func(c *Config) { c.Alerting.Actions = []string{"PANIC"} },
		"telegram needs bot":  func(c *Config) { c.Alerting.Telegram.Enabled = true },
		"digest needs period": func(c *Config) { c.Digest.Enabled = true },
		"export entries":      func(c *Config) { c.Export.MaxEntries = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolveMaxEntries(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxEntries: 500}}
	assert.Equal(t, 500, cfg.ResolveMaxEntries(0))
	assert.Equal(t, 20, cfg.ResolveMaxEntries(20))
}
