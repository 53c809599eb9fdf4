package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "data", cfg.DataDir)
	require.NotEmpty(t, cfg.Remote.BaseURL)
	require.Equal(t, 30, cfg.Crawl.TopN)
	require.Equal(t, 5, cfg.Crawl.MaxPages)
	require.InDelta(t, 0.6, cfg.Crawl.LikeWeight, 0.001)
	require.InDelta(t, 0.3, cfg.Crawl.CommentWeight, 0.001)
	require.InDelta(t, 0.1, cfg.Crawl.RepostWeight, 0.001)
	require.Equal(t, 45*time.Minute, cfg.EscalationThreshold())
	require.Equal(t, 10*time.Minute, cfg.PollInterval())
	require.Equal(t, time.Minute, cfg.CatchupInterval())
	require.Equal(t, time.Hour, cfg.HourlyCacheTTL())
	require.Equal(t, 120, cfg.Heat.MaxDays)
	require.Contains(t, cfg.Crawl.DetailSearchURL, "%s")
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/hotarchive
scheduler:
  lookback_days: 3
  escalation_minutes: 90
crawl:
  top_n: 10
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/hotarchive", cfg.DataDir)
	require.Equal(t, 3, cfg.Scheduler.LookbackDays)
	require.Equal(t, 90*time.Minute, cfg.EscalationThreshold())
	require.Equal(t, 10, cfg.Crawl.TopN)
	// Untouched keys keep their defaults.
	require.Equal(t, 5, cfg.Crawl.MaxPages)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.DataDir = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Crawl.TopN = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Scheduler.EscalationMinutes = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Crawl.BackoffInitialMs = 10_000
	cfg.Crawl.BackoffMaxMs = 1_000
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Scheduler.CatchupIntervalSeconds = cfg.Scheduler.PollIntervalSeconds + 1
	require.Error(t, cfg.Validate())

	require.NoError(t, base().Validate())
}
