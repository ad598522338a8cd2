// Package pipeline runs the fetch, extract, normalize and persist steps for
// the models and apps rankings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/elonfeng/rankradar/internal/logger"
	"github.com/elonfeng/rankradar/internal/store"
	"github.com/elonfeng/rankradar/pkg/rank"
)

// Fetcher downloads a ranking page for a period.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string, period rank.Period) ([]byte, error)
}

// ModelExtractor pulls raw model rows out of markup.
type ModelExtractor interface {
	Extract(markup []byte) ([]rank.RawModel, error)
}

// AppExtractor pulls raw app rows out of markup.
type AppExtractor interface {
	Extract(markup []byte) ([]rank.RawApp, error)
}

// Config locates the ranking pages and the fallback directory.
type Config struct {
	SiteURL   string
	ModelsURL string
	AppsURL   string
	// FallbackDir, when set, receives a JSON dump of every batch that
	// failed to persist.
	FallbackDir string
}

// Pipeline runs both ranking pipelines against one store. The two share
// no state; a failure in one never affects the other.
type Pipeline struct {
	cfg     Config
	fetcher Fetcher
	models  ModelExtractor
	apps    AppExtractor
	store   store.Store
	log     logger.Logger
	now     func() time.Time
}

// New creates a Pipeline.
func New(cfg Config, f Fetcher, models ModelExtractor, apps AppExtractor, st store.Store, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{
		cfg:     cfg,
		fetcher: f,
		models:  models,
		apps:    apps,
		store:   st,
		log:     log,
		now:     time.Now,
	}
}

// Report summarizes one (kind, period) run.
type Report struct {
	RunID        string
	Kind         rank.Kind
	Period       rank.Period
	CapturedAt   time.Time
	Duration     time.Duration
	Extracted    int
	Persisted    int
	Failures     []store.Failure
	FallbackPath string
	Err          error
}

// OK reports whether the run completed without any error.
func (r Report) OK() bool { return r.Err == nil }

// Errors joins the errors of failed reports, labelled by kind and period.
func Errors(reports []Report) error {
	var errs []error
	for _, r := range reports {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", r.Kind, r.Period, r.Err))
		}
	}
	return errors.Join(errs...)
}

// RunModels scrapes and persists the models ranking for each period. Every
// record of the run shares one capture timestamp.
func (p *Pipeline) RunModels(ctx context.Context, periods []rank.Period) []Report {
	runID := uuid.New().String()
	now := p.now()

	reports := make([]Report, 0, len(periods))
	for _, period := range periods {
		norm := rank.NewNormalizer(period, p.cfg.SiteURL, now)
		reports = append(reports, runOne(ctx, p, job[rank.ModelRecord]{
			runID:   runID,
			kind:    rank.KindModels,
			pageURL: p.cfg.ModelsURL,
			norm:    norm,
			extract: func(markup []byte) ([]rank.ModelRecord, error) {
				raws, err := p.models.Extract(markup)
				if err != nil {
					return nil, err
				}
				return norm.Models(raws), nil
			},
			upsert: p.store.UpsertModels,
		}))
	}
	return reports
}

// RunApps scrapes and persists the apps ranking for each period.
func (p *Pipeline) RunApps(ctx context.Context, periods []rank.Period) []Report {
	runID := uuid.New().String()
	now := p.now()

	reports := make([]Report, 0, len(periods))
	for _, period := range periods {
		norm := rank.NewNormalizer(period, p.cfg.SiteURL, now)
		reports = append(reports, runOne(ctx, p, job[rank.AppRecord]{
			runID:   runID,
			kind:    rank.KindApps,
			pageURL: p.cfg.AppsURL,
			norm:    norm,
			extract: func(markup []byte) ([]rank.AppRecord, error) {
				raws, err := p.apps.Extract(markup)
				if err != nil {
					return nil, err
				}
				return norm.Apps(raws), nil
			},
			upsert: p.store.UpsertApps,
		}))
	}
	return reports
}

type job[T any] struct {
	runID   string
	kind    rank.Kind
	pageURL string
	norm    *rank.Normalizer
	extract func(markup []byte) ([]T, error)
	upsert  func(ctx context.Context, records []T) error
}

// runOne fetches, extracts and persists one period. Nothing is written
// unless extraction of the whole page succeeded.
func runOne[T any](ctx context.Context, p *Pipeline, j job[T]) Report {
	start := time.Now()
	rep := Report{RunID: j.runID, Kind: j.kind, Period: j.norm.Period, CapturedAt: j.norm.CapturedAt}
	log := p.log.With(
		logger.String("run_id", j.runID),
		logger.String("kind", string(j.kind)),
		logger.String("period", string(j.norm.Period)),
		logger.Time("captured_at", j.norm.CapturedAt),
	)
	finish := func(err error) Report {
		rep.Err = err
		rep.Duration = time.Since(start)
		return rep
	}

	markup, err := p.fetcher.Fetch(ctx, j.pageURL, j.norm.Period)
	if err != nil {
		log.Error("fetch failed", logger.String("url", j.pageURL), logger.Error(err))
		return finish(err)
	}

	records, err := j.extract(markup)
	if err != nil {
		log.Error("extract failed", logger.Error(err))
		return finish(err)
	}
	rep.Extracted = len(records)
	if len(records) == 0 {
		log.Warn("ranking is empty")
		return finish(nil)
	}

	if err := j.upsert(ctx, records); err != nil {
		var batchErr *store.BatchError
		if errors.As(err, &batchErr) {
			rep.Failures = batchErr.Failures
			rep.Persisted = len(records) - len(batchErr.Failures)
			log.Error("persist failed",
				logger.Int("failed", len(batchErr.Failures)),
				logger.Strings("failed_keys", keyStrings(batchErr.Keys())),
			)
			for _, f := range batchErr.Failures {
				log.Debug("record rejected", logger.String("key", f.Key.String()), logger.Error(f.Err))
			}
		} else {
			log.Error("persist failed", logger.Error(err))
		}
		rep.Err = err
		rep.FallbackPath = p.dumpFallback(log, rep, records)
		return finish(err)
	}

	rep.Persisted = len(records)
	log.Info("snapshot persisted",
		logger.Int("extracted", rep.Extracted),
		logger.Int("persisted", rep.Persisted),
		logger.Duration("elapsed", time.Since(start)),
	)
	return finish(nil)
}

func keyStrings(keys []rank.NaturalKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
