package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/rankradar/pkg/rank"
)

func testFetcher() *HTTPFetcher {
	return NewHTTPFetcher(FetcherOptions{
		Timeout:        2 * time.Second,
		UserAgent:      "rankradar-test",
		InitialBackoff: time.Millisecond,
	})
}

func TestFetchSendsPeriodAndHeaders(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("view")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	body, err := testFetcher().Fetch(context.Background(), srv.URL+"/rankings", rank.PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
	assert.Equal(t, "week", gotQuery)
	assert.Equal(t, "rankradar-test", gotUA)
}

func TestFetchWithoutPeriodKeepsURL(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL+"/apps", "")
	require.NoError(t, err)
	assert.Empty(t, rawQuery)
}

func TestFetchDecodesLatin1(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte{'c', 'a', 'f', 0xe9})
	}))
	defer srv.Close()

	body, err := testFetcher().Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "café", string(body))
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	body, err := testFetcher().Fetch(context.Background(), srv.URL, rank.PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL, rank.PeriodDay)
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusBadGateway, netErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL+"/missing", rank.PeriodDay)
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusNotFound, netErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := testFetcher().Fetch(context.Background(), addr, "")
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Zero(t, netErr.StatusCode)
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := testFetcher().Fetch(context.Background(), "not a url", "")
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(strings.Repeat("x", 17)))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetcherOptions{InitialBackoff: time.Millisecond, MaxBodyBytes: 16})
	_, err := f.Fetch(context.Background(), srv.URL, rank.PeriodDay)
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Contains(t, err.Error(), "body exceeds 16 bytes")
	assert.Equal(t, int32(1), calls.Load(), "an oversized page is not retried")
}

func TestFetchAcceptsBodyAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 16)))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetcherOptions{InitialBackoff: time.Millisecond, MaxBodyBytes: 16})
	body, err := f.Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Len(t, body, 16)
}
