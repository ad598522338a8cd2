package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/elonfeng/rankradar/pkg/rank"
	"github.com/elonfeng/rankradar/pkg/source"
)

// Config is the root configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Site     SiteConfig     `yaml:"site"`
	HTTP     HTTPConfig     `yaml:"http"`
	Models   ModelsConfig   `yaml:"models"`
	Apps     AppsConfig     `yaml:"apps"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// StoreConfig locates the destination store. URL is a PostgREST base
// (http/https), a postgres:// DSN, or a SQLite path / sqlite:// URL.
type StoreConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// SiteConfig locates the ranking pages.
type SiteConfig struct {
	BaseURL     string `yaml:"base_url"`
	ModelsPath  string `yaml:"models_path"`
	AppsPath    string `yaml:"apps_path"`
	PeriodParam string `yaml:"period_param"`
}

// ModelsURL returns the absolute models ranking URL.
func (s SiteConfig) ModelsURL() string { return joinURL(s.BaseURL, s.ModelsPath) }

// AppsURL returns the absolute apps ranking URL.
func (s SiteConfig) AppsURL() string { return joinURL(s.BaseURL, s.AppsPath) }

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// HTTPConfig configures page fetching.
type HTTPConfig struct {
	Timeout        string `yaml:"timeout"`
	UserAgent      string `yaml:"user_agent"`
	MaxAttempts    int    `yaml:"max_attempts"`
	InitialBackoff string `yaml:"initial_backoff"`
}

// ParseTimeout returns the request timeout as time.Duration.
func (h HTTPConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(h.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ParseInitialBackoff returns the first retry delay as time.Duration.
func (h HTTPConfig) ParseInitialBackoff() time.Duration {
	d, err := time.ParseDuration(h.InitialBackoff)
	if err != nil {
		return time.Second
	}
	return d
}

// ModelsConfig configures the models pipeline.
type ModelsConfig struct {
	Periods   []string              `yaml:"periods"`
	MaxRows   int                   `yaml:"max_rows"`
	Selectors source.ModelSelectors `yaml:"selectors"`
}

// AppsConfig configures the apps pipeline.
type AppsConfig struct {
	Periods   []string            `yaml:"periods"`
	MaxRows   int                 `yaml:"max_rows"`
	Selectors source.AppSelectors `yaml:"selectors"`
}

// ScheduleConfig configures the run daemon.
type ScheduleConfig struct {
	Cron       string `yaml:"cron"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// PipelineConfig holds pipeline-wide options.
type PipelineConfig struct {
	// FallbackDir receives a JSON dump of any batch that fails to persist.
	FallbackDir string `yaml:"fallback_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AlertsConfig configures failure alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ConfigurationError reports a missing or invalid setting. It is raised
// before any network activity.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:     rank.DefaultSiteURL,
			ModelsPath:  "/rankings",
			AppsPath:    "/rankings",
			PeriodParam: "view",
		},
		HTTP: HTTPConfig{
			Timeout:        "30s",
			MaxAttempts:    3,
			InitialBackoff: "1s",
		},
		Models: ModelsConfig{
			Periods:   []string{"day", "week", "month", "trending"},
			MaxRows:   source.DefaultMaxRows,
			Selectors: source.DefaultModelSelectors(),
		},
		Apps: AppsConfig{
			Periods:   []string{"day", "week", "month"},
			MaxRows:   source.DefaultMaxRows,
			Selectors: source.DefaultAppSelectors(),
		},
		Schedule: ScheduleConfig{Cron: "0 */6 * * *"},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
// RANKRADAR_* names win over the SUPABASE_* names.
func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("RANKRADAR_STORE_URL", "SUPABASE_URL"); v != "" {
		cfg.Store.URL = v
	}
	if v := firstEnv("RANKRADAR_STORE_KEY", "SUPABASE_KEY"); v != "" {
		cfg.Store.Key = v
	}
	if v := os.Getenv("RANKRADAR_SITE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}
	if v := os.Getenv("RANKRADAR_SCHEDULE"); v != "" {
		cfg.Schedule.Cron = v
	}
	if v := os.Getenv("RANKRADAR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RANKRADAR_FALLBACK_DIR"); v != "" {
		cfg.Pipeline.FallbackDir = v
	}
	if v := os.Getenv("RANKRADAR_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.MaxAttempts = n
		}
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("RANKRADAR_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
	if v := os.Getenv("RANKRADAR_WEBHOOK_SECRET"); v != "" {
		cfg.Alerts.Webhook.Secret = v
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// ValidateStore checks the store credentials. Both are required.
func (c *Config) ValidateStore() error {
	if strings.TrimSpace(c.Store.URL) == "" {
		return &ConfigurationError{Field: "store.url", Reason: "missing (set RANKRADAR_STORE_URL or SUPABASE_URL)"}
	}
	if strings.TrimSpace(c.Store.Key) == "" {
		return &ConfigurationError{Field: "store.key", Reason: "missing (set RANKRADAR_STORE_KEY or SUPABASE_KEY)"}
	}
	return nil
}

// Validate checks every setting. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ValidateStore(); err != nil {
		errs = append(errs, err)
	}
	if !strings.HasPrefix(c.Site.BaseURL, "http://") && !strings.HasPrefix(c.Site.BaseURL, "https://") {
		errs = append(errs, &ConfigurationError{Field: "site.base_url", Reason: fmt.Sprintf("%q is not an http(s) URL", c.Site.BaseURL)})
	}
	if _, err := rank.ParsePeriods(c.Models.Periods); err != nil {
		errs = append(errs, &ConfigurationError{Field: "models.periods", Reason: err.Error()})
	}
	if _, err := rank.ParsePeriods(c.Apps.Periods); err != nil {
		errs = append(errs, &ConfigurationError{Field: "apps.periods", Reason: err.Error()})
	}
	if c.Models.MaxRows < 0 {
		errs = append(errs, &ConfigurationError{Field: "models.max_rows", Reason: "must not be negative"})
	}
	if c.Apps.MaxRows < 0 {
		errs = append(errs, &ConfigurationError{Field: "apps.max_rows", Reason: "must not be negative"})
	}
	if c.HTTP.MaxAttempts < 1 {
		errs = append(errs, &ConfigurationError{Field: "http.max_attempts", Reason: "must be at least 1"})
	}
	for field, v := range map[string]string{"http.timeout": c.HTTP.Timeout, "http.initial_backoff": c.HTTP.InitialBackoff} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			errs = append(errs, &ConfigurationError{Field: field, Reason: fmt.Sprintf("invalid duration %q", v)})
		}
	}
	if err := c.Schedule.validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Alerts.Slack.Enabled && c.Alerts.Slack.WebhookURL == "" {
		errs = append(errs, &ConfigurationError{Field: "alerts.slack.webhook_url", Reason: "required when slack alerts are enabled"})
	}
	if c.Alerts.Discord.Enabled && c.Alerts.Discord.WebhookURL == "" {
		errs = append(errs, &ConfigurationError{Field: "alerts.discord.webhook_url", Reason: "required when discord alerts are enabled"})
	}
	if c.Alerts.Webhook.Enabled && c.Alerts.Webhook.URL == "" {
		errs = append(errs, &ConfigurationError{Field: "alerts.webhook.url", Reason: "required when webhook alerts are enabled"})
	}
	return errors.Join(errs...)
}

func (s ScheduleConfig) validate() error {
	if s.Cron == "" {
		return nil
	}
	if _, err := ParseSchedule(s.Cron); err != nil {
		return &ConfigurationError{Field: "schedule.cron", Reason: err.Error()}
	}
	return nil
}

// CronParser accepts standard five-field expressions and descriptors
// such as @hourly.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a cron expression with CronParser.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return CronParser.Parse(spec)
}

// ModelPeriods returns the configured models periods, parsed.
func (c *Config) ModelPeriods() ([]rank.Period, error) {
	return rank.ParsePeriods(c.Models.Periods)
}

// AppPeriods returns the configured apps periods, parsed.
func (c *Config) AppPeriods() ([]rank.Period, error) {
	return rank.ParsePeriods(c.Apps.Periods)
}
