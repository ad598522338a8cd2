package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/html/charset"

	"github.com/elonfeng/rankradar/pkg/rank"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// FetcherOptions configures an HTTPFetcher. Zero values take defaults.
type FetcherOptions struct {
	Timeout        time.Duration
	UserAgent      string
	PeriodParam    string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBodyBytes   int64
}

// HTTPFetcher downloads ranking pages, retrying transient failures.
type HTTPFetcher struct {
	client         *http.Client
	userAgent      string
	periodParam    string
	maxAttempts    int
	initialBackoff time.Duration
	maxBodyBytes   int64
}

// NewHTTPFetcher creates a fetcher.
func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.PeriodParam == "" {
		opts.PeriodParam = "view"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	return &HTTPFetcher{
		client:         &http.Client{Timeout: opts.Timeout},
		userAgent:      opts.UserAgent,
		periodParam:    opts.PeriodParam,
		maxAttempts:    opts.MaxAttempts,
		initialBackoff: opts.InitialBackoff,
		maxBodyBytes:   opts.MaxBodyBytes,
	}
}

// Fetch returns the UTF-8 markup of pageURL for period. An empty period
// fetches the page's default view. Failures are *NetworkError.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string, period rank.Period) ([]byte, error) {
	target, err := f.periodURL(pageURL, period)
	if err != nil {
		return nil, &NetworkError{URL: pageURL, Err: err}
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = f.initialBackoff
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(f.maxAttempts-1)), ctx)

	body, err := backoff.RetryWithData(func() ([]byte, error) {
		return f.fetchOnce(ctx, target)
	}, policy)
	if err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			return nil, netErr
		}
		return nil, &NetworkError{URL: target, Err: err}
	}
	return body, nil
}

func (f *HTTPFetcher) periodURL(pageURL string, period rank.Period) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", pageURL)
	}
	if period != "" {
		q := u.Query()
		q.Set(f.periodParam, string(period))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(&NetworkError{URL: target, Err: err})
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		netErr := &NetworkError{URL: target, Err: err}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(netErr)
		}
		return nil, netErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		netErr := &NetworkError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("http status %d", resp.StatusCode),
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, netErr
		}
		return nil, backoff.Permanent(netErr)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, &NetworkError{URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	// Oversized pages are rejected, never truncated.
	if int64(len(raw)) > f.maxBodyBytes {
		return nil, backoff.Permanent(&NetworkError{URL: target, Err: fmt.Errorf("body exceeds %d bytes", f.maxBodyBytes)})
	}

	r, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, backoff.Permanent(&NetworkError{URL: target, Err: fmt.Errorf("decode body: %w", err)})
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, backoff.Permanent(&NetworkError{URL: target, Err: fmt.Errorf("decode body: %w", err)})
	}
	return body, nil
}
