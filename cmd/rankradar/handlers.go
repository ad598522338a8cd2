package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/elonfeng/rankradar/internal/config"
	"github.com/elonfeng/rankradar/internal/logger"
	"github.com/elonfeng/rankradar/internal/pipeline"
	"github.com/elonfeng/rankradar/internal/scheduler"
	"github.com/elonfeng/rankradar/internal/store"
	"github.com/elonfeng/rankradar/pkg/alert"
	"github.com/elonfeng/rankradar/pkg/rank"
	"github.com/elonfeng/rankradar/pkg/source"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// Credentials are checked before anything touches the network.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// env holds what every store-backed command needs.
type env struct {
	cfg   *config.Config
	log   logger.Logger
	store store.Store
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store.URL, cfg.Store.Key)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &env{cfg: cfg, log: log, store: st}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn("close store", logger.Error(err))
	}
	_ = e.log.Sync()
}

func buildPipeline(e *env) *pipeline.Pipeline {
	cfg := e.cfg
	fetcher := source.NewHTTPFetcher(source.FetcherOptions{
		Timeout:        cfg.HTTP.ParseTimeout(),
		UserAgent:      cfg.HTTP.UserAgent,
		PeriodParam:    cfg.Site.PeriodParam,
		MaxAttempts:    cfg.HTTP.MaxAttempts,
		InitialBackoff: cfg.HTTP.ParseInitialBackoff(),
	})
	return pipeline.New(
		pipeline.Config{
			SiteURL:     cfg.Site.BaseURL,
			ModelsURL:   cfg.Site.ModelsURL(),
			AppsURL:     cfg.Site.AppsURL(),
			FallbackDir: cfg.Pipeline.FallbackDir,
		},
		fetcher,
		source.NewModelsExtractor(cfg.Models.Selectors, cfg.Site.BaseURL, cfg.Models.MaxRows),
		source.NewAppsExtractor(cfg.Apps.Selectors, cfg.Site.BaseURL, cfg.Apps.MaxRows),
		e.store,
		e.log,
	)
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

// choosePeriods parses flag values, falling back to the configured list.
func choosePeriods(flagValues, configured []string) ([]rank.Period, error) {
	if len(flagValues) > 0 {
		return rank.ParsePeriods(flagValues)
	}
	return rank.ParsePeriods(configured)
}

func runScrape(ctx context.Context, modelPeriods, appPeriods []string, doModels, doApps bool) error {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	p := buildPipeline(e)
	var reports []pipeline.Report

	if doModels {
		periods, err := choosePeriods(modelPeriods, e.cfg.Models.Periods)
		if err != nil {
			return fmt.Errorf("models: %w", err)
		}
		reports = append(reports, p.RunModels(ctx, periods)...)
	}
	if doApps {
		periods, err := choosePeriods(appPeriods, e.cfg.Apps.Periods)
		if err != nil {
			return fmt.Errorf("apps: %w", err)
		}
		reports = append(reports, p.RunApps(ctx, periods)...)
	}

	renderReports(os.Stderr, reports)

	if err := pipeline.NotifyFailures(ctx, buildAlertManager(e.cfg), reports); err != nil {
		e.log.Error("alert delivery failed", logger.Error(err))
	}
	return pipeline.Errors(reports)
}

func runLatest(ctx context.Context, w io.Writer, kind, period string, limit int, format string) error {
	switch format {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("unknown format %q (want table, json or csv)", format)
	}
	opts := store.ListOpts{Limit: limit}
	if period != "" {
		p, err := rank.ParsePeriod(period)
		if err != nil {
			return err
		}
		opts.Period = p
	}

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	switch rank.Kind(kind) {
	case rank.KindModels:
		models, err := e.store.ListModels(ctx, opts)
		if err != nil {
			return fmt.Errorf("list models: %w", err)
		}
		switch format {
		case "json":
			return writeJSON(w, models)
		case "csv":
			return writeModelsCSV(w, models)
		}
		renderModels(w, models)
	case rank.KindApps:
		apps, err := e.store.ListApps(ctx, opts)
		if err != nil {
			return fmt.Errorf("list apps: %w", err)
		}
		switch format {
		case "json":
			return writeJSON(w, apps)
		case "csv":
			return writeAppsCSV(w, apps)
		}
		renderApps(w, apps)
	default:
		return fmt.Errorf("unknown ranking %q (want models or apps)", kind)
	}
	return nil
}

func runDaemon(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	schedule, err := config.ParseSchedule(e.cfg.Schedule.Cron)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	modelPeriods, err := e.cfg.ModelPeriods()
	if err != nil {
		return fmt.Errorf("models: %w", err)
	}
	appPeriods, err := e.cfg.AppPeriods()
	if err != nil {
		return fmt.Errorf("apps: %w", err)
	}

	sched := scheduler.New(buildPipeline(e), buildAlertManager(e.cfg), scheduler.Options{
		Schedule:     schedule,
		ModelPeriods: modelPeriods,
		AppPeriods:   appPeriods,
		RunOnStart:   e.cfg.Schedule.RunOnStart,
	}, e.log)

	e.log.Info("daemon starting", logger.String("schedule", e.cfg.Schedule.Cron))
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runSchema(w io.Writer, dialect string) error {
	ddl, err := store.Schema(store.Dialect(dialect))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, ddl)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeModelsCSV writes one line per record under the store's column names.
func writeModelsCSV(w io.Writer, models []rank.ModelRecord) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"rank", "model_name", "author", "tokens", "trend_percentage", "trend_direction",
		"trend_icon", "trend_color", "model_url", "author_url", "logo_url", "time_period", "scraped_at",
	})
	for _, m := range models {
		_ = cw.Write([]string{
			strconv.Itoa(m.Rank), m.ModelName, m.Author, m.Tokens, m.TrendPercentage, m.TrendDirection,
			m.TrendIcon, m.TrendColor, m.ModelURL, m.AuthorURL, m.LogoURL, string(m.TimePeriod),
			m.ScrapedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	return cw.Error()
}

func writeAppsCSV(w io.Writer, apps []rank.AppRecord) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"rank", "app_name", "description", "tokens", "is_new", "app_url", "domain", "image_url", "time_period", "scraped_at",
	})
	for _, a := range apps {
		_ = cw.Write([]string{
			strconv.Itoa(a.Rank), a.AppName, a.Description, a.Tokens, strconv.FormatBool(a.IsNew),
			a.AppURL, a.Domain, a.ImageURL, string(a.TimePeriod), a.ScrapedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	return cw.Error()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderReports(w io.Writer, reports []pipeline.Report) {
	if len(reports) == 0 {
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Kind", "Period", "Extracted", "Persisted", "Elapsed", "Status"})
	for _, r := range reports {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		t.AppendRow(table.Row{r.Kind, r.Period, r.Extracted, r.Persisted, r.Duration.Round(time.Millisecond), status})
	}
	t.Render()
}

func renderModels(w io.Writer, models []rank.ModelRecord) {
	if len(models) == 0 {
		fmt.Fprintln(w, "no snapshots found (try scraping first: rankradar models)")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Period", "Rank", "Model", "Author", "Tokens", "Trend", "Scraped At"})
	for _, m := range models {
		t.AppendRow(table.Row{
			m.TimePeriod, m.Rank, m.ModelName, m.Author, m.Tokens,
			m.TrendIcon + " " + m.TrendPercentage,
			m.ScrapedAt.UTC().Format(time.RFC3339),
		})
	}
	t.Render()
}

func renderApps(w io.Writer, apps []rank.AppRecord) {
	if len(apps) == 0 {
		fmt.Fprintln(w, "no snapshots found (try scraping first: rankradar apps)")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Period", "Rank", "App", "Domain", "Tokens", "New", "Scraped At"})
	for _, a := range apps {
		isNew := ""
		if a.IsNew {
			isNew = "yes"
		}
		t.AppendRow(table.Row{
			a.TimePeriod, a.Rank, a.AppName, a.Domain, a.Tokens, isNew,
			a.ScrapedAt.UTC().Format(time.RFC3339),
		})
	}
	t.Render()
}
