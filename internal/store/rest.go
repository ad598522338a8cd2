package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/elonfeng/rankradar/pkg/rank"
)

// RESTOptions configures a RESTStore. Zero values take defaults.
type RESTOptions struct {
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// RESTStore implements Store against a PostgREST endpoint such as a
// Supabase project. Upserts use on_conflict with merge-duplicates.
type RESTStore struct {
	baseURL        string
	key            string
	client         *http.Client
	maxAttempts    int
	initialBackoff time.Duration
}

// NewRESTStore creates a store for the project at baseURL.
func NewRESTStore(baseURL, key string, opts RESTOptions) *RESTStore {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	return &RESTStore{
		baseURL:        strings.TrimRight(baseURL, "/"),
		key:            key,
		client:         &http.Client{Timeout: opts.Timeout},
		maxAttempts:    opts.MaxAttempts,
		initialBackoff: opts.InitialBackoff,
	}
}

// APIError is an error response from the REST endpoint.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("rest api %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("rest api %d: %s", e.StatusCode, msg)
}

func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *RESTStore) UpsertModels(ctx context.Context, records []rank.ModelRecord) error {
	rows := make([]any, len(records))
	keys := make([]rank.NaturalKey, len(records))
	for i, r := range records {
		rows[i], keys[i] = r, r.Key()
	}
	return s.upsert(ctx, modelsTable, rows, keys)
}

func (s *RESTStore) UpsertApps(ctx context.Context, records []rank.AppRecord) error {
	rows := make([]any, len(records))
	keys := make([]rank.NaturalKey, len(records))
	for i, r := range records {
		rows[i], keys[i] = r, r.Key()
	}
	return s.upsert(ctx, appsTable, rows, keys)
}

// upsert posts the whole batch. When the batch is rejected it falls back to
// one request per row so failures can be attributed to natural keys.
func (s *RESTStore) upsert(ctx context.Context, t table, rows []any, keys []rank.NaturalKey) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.post(ctx, t, rows)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("upsert %s: %w", t.name, err)
	}

	batchErr := &BatchError{Table: t.name, Attempted: len(rows)}
	for i, row := range rows {
		if err := s.post(ctx, t, []any{row}); err != nil {
			batchErr.Failures = append(batchErr.Failures, Failure{Key: keys[i], Err: err})
		}
	}
	if len(batchErr.Failures) > 0 {
		return batchErr
	}
	return nil
}

func (s *RESTStore) post(ctx context.Context, t table, rows []any) error {
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s rows: %w", t.name, err)
	}

	q := url.Values{}
	q.Set("on_conflict", strings.Join(t.key, ","))
	target := s.tableURL(t) + "?" + q.Encode()

	return s.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		s.authorize(req)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")
		return s.do(req, nil)
	})
}

func (s *RESTStore) ListModels(ctx context.Context, opts ListOpts) ([]rank.ModelRecord, error) {
	var out []rank.ModelRecord
	err := s.eachLatest(ctx, modelsTable, opts, func(q url.Values) error {
		var page []rank.ModelRecord
		if err := s.get(ctx, modelsTable, q, &page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return out, nil
}

func (s *RESTStore) ListApps(ctx context.Context, opts ListOpts) ([]rank.AppRecord, error) {
	var out []rank.AppRecord
	err := s.eachLatest(ctx, appsTable, opts, func(q url.Values) error {
		var page []rank.AppRecord
		if err := s.get(ctx, appsTable, q, &page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return out, nil
}

// eachLatest finds the newest capture of every requested period and calls
// fetch with the query selecting its rows.
func (s *RESTStore) eachLatest(ctx context.Context, t table, opts ListOpts, fetch func(url.Values) error) error {
	periods := rank.AllPeriods()
	if opts.Period != "" {
		periods = []rank.Period{opts.Period}
	}

	for _, p := range periods {
		var newest []struct {
			ScrapedAt time.Time `json:"scraped_at"`
		}
		q := url.Values{}
		q.Set("select", "scraped_at")
		q.Set("time_period", "eq."+string(p))
		q.Set("order", "scraped_at.desc")
		q.Set("limit", "1")
		if err := s.get(ctx, t, q, &newest); err != nil {
			return err
		}
		if len(newest) == 0 {
			continue
		}

		q = url.Values{}
		q.Set("select", strings.Join(t.columns, ","))
		q.Set("time_period", "eq."+string(p))
		q.Set("scraped_at", "eq."+newest[0].ScrapedAt.UTC().Format(time.RFC3339Nano))
		q.Set("rank", "lte."+strconv.Itoa(opts.limit()))
		q.Set("order", "rank.asc")
		if err := fetch(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *RESTStore) get(ctx context.Context, t table, q url.Values, out any) error {
	target := s.tableURL(t) + "?" + q.Encode()
	return s.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		s.authorize(req)
		req.Header.Set("Accept", "application/json")
		return s.do(req, out)
	})
}

func (s *RESTStore) tableURL(t table) string {
	return s.baseURL + "/rest/v1/" + t.name
}

func (s *RESTStore) authorize(req *http.Request) {
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
}

// do sends req and decodes a 2xx JSON body into out when out is non-nil.
// 429 and 5xx responses are retryable; other failures are permanent.
func (s *RESTStore) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if data, rerr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); rerr == nil {
			if jerr := json.Unmarshal(data, apiErr); jerr != nil {
				apiErr.Message = strings.TrimSpace(string(data))
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (s *RESTStore) retry(ctx context.Context, op func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.initialBackoff
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(s.maxAttempts-1)), ctx)

	err := backoff.Retry(op, policy)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
