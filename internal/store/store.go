package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/elonfeng/rankradar/pkg/rank"
)

// Destination tables.
const (
	ModelsTable = "openrouter_models"
	AppsTable   = "openrouter_apps"
)

// ListOpts controls snapshot listing.
type ListOpts struct {
	// Period restricts the listing to one period. Empty lists every period.
	Period rank.Period
	// Limit caps rows per period. Zero means 50.
	Limit int
}

func (o ListOpts) limit() int {
	if o.Limit <= 0 {
		return 50
	}
	return o.Limit
}

// Store is the persistence interface. Upserts insert new natural keys and
// overwrite every non-key column of existing ones, scraped_at included.
type Store interface {
	UpsertModels(ctx context.Context, records []rank.ModelRecord) error
	UpsertApps(ctx context.Context, records []rank.AppRecord) error

	// ListModels returns the most recent capture of each requested period,
	// ordered by period then rank.
	ListModels(ctx context.Context, opts ListOpts) ([]rank.ModelRecord, error)
	ListApps(ctx context.Context, opts ListOpts) ([]rank.AppRecord, error)

	Close() error
}

// Failure is one record the store rejected.
type Failure struct {
	Key rank.NaturalKey
	Err error
}

// BatchError reports the records of an upsert that were not written. The
// remaining records of the batch were written.
type BatchError struct {
	Table     string
	Attempted int
	Failures  []Failure
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("upsert %s: batch failed", e.Table)
	}
	first := e.Failures[0]
	return fmt.Sprintf("upsert %s: %d of %d records failed (first %s: %v)",
		e.Table, len(e.Failures), e.Attempted, first.Key, first.Err)
}

// Unwrap exposes every per-record error to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Keys returns the natural keys that failed.
func (e *BatchError) Keys() []rank.NaturalKey {
	keys := make([]rank.NaturalKey, len(e.Failures))
	for i, f := range e.Failures {
		keys[i] = f.Key
	}
	return keys
}

// Open picks a Store from the URL scheme: http(s) is a PostgREST endpoint
// authenticated with key, postgres:// is a direct connection, and
// sqlite:// or a bare path is a local SQLite file. key is unused by the
// SQL stores.
func Open(ctx context.Context, rawURL, key string) (Store, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("store url is empty")
	}

	var (
		st  Store
		err error
	)
	lower := strings.ToLower(rawURL)
	switch {
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		return NewRESTStore(rawURL, key, RESTOptions{}), nil
	case strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://"):
		st, err = OpenPostgres(ctx, rawURL)
	case strings.HasPrefix(lower, "sqlite://"):
		st, err = OpenSQLite(ctx, rawURL[len("sqlite://"):])
	case strings.Contains(rawURL, "://"):
		scheme, _, _ := strings.Cut(rawURL, "://")
		return nil, fmt.Errorf("unsupported store scheme %q", scheme)
	default:
		st, err = OpenSQLite(ctx, rawURL)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}
