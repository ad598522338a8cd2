package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/rankradar/pkg/rank"
)

func clearStoreEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RANKRADAR_STORE_URL", "SUPABASE_URL", "RANKRADAR_STORE_KEY", "SUPABASE_KEY"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "https://openrouter.ai/rankings", cfg.Site.ModelsURL())
	assert.Equal(t, "https://openrouter.ai/rankings", cfg.Site.AppsURL(), "both leaderboards live on one page")

	periods, err := cfg.ModelPeriods()
	require.NoError(t, err)
	assert.Equal(t, []rank.Period{rank.PeriodDay, rank.PeriodWeek, rank.PeriodMonth, rank.PeriodTrending}, periods)

	periods, err = cfg.AppPeriods()
	require.NoError(t, err)
	assert.Len(t, periods, 3)
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	clearStoreEnv(t)
	path := writeConfig(t, `
store:
  url: ./rankings.db
  key: local
models:
  periods: [week]
  selectors:
    row: tr
http:
  timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./rankings.db", cfg.Store.URL)
	assert.Equal(t, []string{"week"}, cfg.Models.Periods)
	assert.Equal(t, "tr", cfg.Models.Selectors.Row)
	assert.Equal(t, "Top today", cfg.Models.Selectors.Section, "unset selectors keep their defaults")
	assert.Empty(t, cfg.Models.Selectors.Container)
	assert.Equal(t, "5s", cfg.HTTP.Timeout)
	assert.Equal(t, 3, cfg.HTTP.MaxAttempts)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesPrecedence(t *testing.T) {
	clearStoreEnv(t)
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_KEY", "anon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://abc.supabase.co", cfg.Store.URL)
	assert.Equal(t, "anon", cfg.Store.Key)

	t.Setenv("RANKRADAR_STORE_URL", "postgres://localhost/rank")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/rank", cfg.Store.URL)
	assert.Equal(t, "anon", cfg.Store.Key)
}

func TestValidateStoreRequiresBoth(t *testing.T) {
	tests := []struct {
		name  string
		store StoreConfig
		field string
	}{
		{"missing url", StoreConfig{Key: "k"}, "store.url"},
		{"missing key", StoreConfig{URL: "https://x.supabase.co"}, "store.key"},
		{"blank url", StoreConfig{URL: "  ", Key: "k"}, "store.url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Store = tt.store

			err := cfg.Validate()
			var cerr *ConfigurationError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Store = StoreConfig{URL: "x.db", Key: "k"}
	cfg.Models.Periods = []string{"day", "yesterday"}
	cfg.Apps.Periods = []string{"week", "This Week"}
	cfg.Schedule.Cron = "every hour"
	cfg.HTTP.MaxAttempts = 0
	cfg.Alerts.Slack.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"models.periods", "apps.periods", "schedule.cron", "http.max_attempts", "alerts.slack.webhook_url"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestParseSchedule(t *testing.T) {
	_, err := ParseSchedule("0 */6 * * *")
	assert.NoError(t, err)
	_, err = ParseSchedule("@hourly")
	assert.NoError(t, err)
	_, err = ParseSchedule("* * *")
	assert.Error(t, err)
}

func TestDurationFallbacks(t *testing.T) {
	h := HTTPConfig{Timeout: "bogus", InitialBackoff: ""}
	assert.Equal(t, "30s", h.ParseTimeout().String())
	assert.Equal(t, "1s", h.ParseInitialBackoff().String())
}
