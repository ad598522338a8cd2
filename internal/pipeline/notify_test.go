package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/rankradar/internal/store"
	"github.com/elonfeng/rankradar/pkg/alert"
	"github.com/elonfeng/rankradar/pkg/rank"
)

type collectNotifier struct {
	got []*alert.Notification
}

func (c *collectNotifier) Name() string { return "collect" }

func (c *collectNotifier) Send(_ context.Context, n *alert.Notification) error {
	c.got = append(c.got, n)
	return nil
}

func TestNotifyFailuresSkipsSuccessfulReports(t *testing.T) {
	c := &collectNotifier{}
	mgr := alert.NewManager([]alert.Notifier{c})
	at := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)

	reports := []Report{
		{RunID: "r1", Kind: rank.KindModels, Period: rank.PeriodDay, CapturedAt: at, Extracted: 3, Persisted: 3},
		{
			RunID: "r1", Kind: rank.KindModels, Period: rank.PeriodWeek, CapturedAt: at,
			Extracted: 3, Persisted: 2,
			Failures:     []store.Failure{{Key: rank.NaturalKey{"Beta", "Acme", "week"}, Err: errors.New("rejected")}},
			FallbackPath: "/var/lib/rankradar/models_week.json",
			Err:          errors.New("upsert openrouter_models: 1 of 3 records failed"),
		},
	}

	require.NoError(t, NotifyFailures(context.Background(), mgr, reports))
	require.Len(t, c.got, 1)
	n := c.got[0]
	assert.Equal(t, "week", n.Period)
	assert.Equal(t, []string{"Beta/Acme/week"}, n.FailedKeys)
	assert.Contains(t, n.Body, "models_week.json")
	assert.Equal(t, at, n.OccurredAt)
}

func TestNotifyFailuresWithoutNotifiers(t *testing.T) {
	reports := []Report{{Err: errors.New("boom")}}
	assert.NoError(t, NotifyFailures(context.Background(), nil, reports))
	assert.NoError(t, NotifyFailures(context.Background(), alert.NewManager(nil), reports))
}
