package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "scorescribe.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "command", cfg.Recognizer.Provider)
	assert.Equal(t, "tesseract", cfg.Recognizer.CommandPath)
	assert.Equal(t, 4, cfg.Recognizer.Workers)
	assert.Equal(t, 10000, cfg.Parse.MaxRank)
	assert.Equal(t, 4, cfg.Parse.MinScoreDigits)
	assert.InDelta(t, 0.99, cfg.Workflow.AutoAcceptThreshold, 0.001)
	assert.InDelta(t, 0.95, cfg.Workflow.ConfirmThreshold, 0.001)
	assert.Equal(t, 120, cfg.Workflow.ConfirmTimeoutSecs)
	assert.InDelta(t, 0.6, cfg.Reconcile.CycleDropRatio, 0.001)
	assert.InDelta(t, 0.8, cfg.Reconcile.IdentityConfidenceThreshold, 0.001)
	assert.InDelta(t, 0.10, cfg.Compare.PowerBandWidth, 0.001)
	assert.Equal(t, int64(250_000), cfg.Compare.BronzeMax)
	assert.Equal(t, int64(800_000), cfg.Compare.SilverMax)
	assert.Equal(t, int64(2_000_000), cfg.Compare.GoldMax)
	assert.Equal(t, 144, cfg.Window.DefaultDurationHours)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/scribe
workflow:
  auto_accept_threshold: 0.98
  confirm_timeout_secs: 60
reconcile:
  cycle_drop_ratio: 0.5
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/scribe", cfg.Store.DatabaseURL)
	assert.InDelta(t, 0.98, cfg.Workflow.AutoAcceptThreshold, 0.001)
	assert.Equal(t, 60, cfg.Workflow.ConfirmTimeoutSecs)
	assert.InDelta(t, 0.5, cfg.Reconcile.CycleDropRatio, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched values keep defaults.
	assert.InDelta(t, 0.95, cfg.Workflow.ConfirmThreshold, 0.001)
	assert.Equal(t, 144, cfg.Window.DefaultDurationHours)
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
