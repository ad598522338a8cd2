package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Notification {
	return &Notification{
		Title:      "rankradar: models/day failed",
		Body:       "upsert openrouter_models: 1 of 3 records failed",
		RunID:      "5f1c2d8e-0000-4000-8000-000000000000",
		Kind:       "models",
		Period:     "day",
		Extracted:  3,
		Persisted:  2,
		FailedKeys: []string{"Beta/Acme/day"},
		Error:      "rejected",
		OccurredAt: time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC),
	}
}

func capture(t *testing.T, status int) (*httptest.Server, *[]byte, *http.Header) {
	t.Helper()
	var body []byte
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		header = r.Header.Clone()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &body, &header
}

func TestWebhookSignsBody(t *testing.T) {
	srv, body, header := capture(t, http.StatusNoContent)

	require.NoError(t, NewWebhook(srv.URL, "s3cret").Send(context.Background(), sample()))

	assert.Equal(t, "sha256="+Sign("s3cret", *body), header.Get("X-Signature-256"))
	assert.Equal(t, "application/json", header.Get("Content-Type"))

	var got Notification
	require.NoError(t, json.Unmarshal(*body, &got))
	assert.Equal(t, "models", got.Kind)
	assert.Equal(t, []string{"Beta/Acme/day"}, got.FailedKeys)
}

func TestWebhookWithoutSecretIsUnsigned(t *testing.T) {
	srv, _, header := capture(t, http.StatusOK)

	require.NoError(t, NewWebhook(srv.URL, "").Send(context.Background(), sample()))
	assert.Empty(t, header.Get("X-Signature-256"))
}

func TestSlackPayload(t *testing.T) {
	srv, body, _ := capture(t, http.StatusOK)

	require.NoError(t, NewSlack(srv.URL).Send(context.Background(), sample()))

	var payload struct {
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(*body, &payload))
	require.Len(t, payload.Blocks, 4)
	assert.Equal(t, "header", payload.Blocks[0]["type"])
	assert.Contains(t, string(*body), "Beta/Acme/day")
}

func TestDiscordPayload(t *testing.T) {
	srv, body, _ := capture(t, http.StatusNoContent)

	require.NoError(t, NewDiscord(srv.URL).Send(context.Background(), sample()))
	assert.Contains(t, string(*body), `"embeds"`)
	assert.Contains(t, string(*body), "2026-10-19T06:00:00Z")
}

func TestNonSuccessStatusIsError(t *testing.T) {
	srv, _, _ := capture(t, http.StatusInternalServerError)

	err := NewSlack(srv.URL).Send(context.Background(), sample())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

type stubNotifier struct {
	name string
	err  error
	sent int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Send(context.Context, *Notification) error {
	s.sent++
	return s.err
}

func TestBroadcastReachesEveryNotifier(t *testing.T) {
	failing := &stubNotifier{name: "slack", err: errors.New("down")}
	ok := &stubNotifier{name: "webhook"}
	m := NewManager([]Notifier{failing, ok})

	err := m.Broadcast(context.Background(), sample())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: down")
	assert.Equal(t, 1, ok.sent)
	assert.True(t, m.HasNotifiers())
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.HasNotifiers())
	assert.NoError(t, m.Broadcast(context.Background(), sample()))
}
