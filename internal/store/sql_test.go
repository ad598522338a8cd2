package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/rankradar/pkg/rank"
)

func newMemoryStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func model(r int, name, author string, period rank.Period, at time.Time) rank.ModelRecord {
	return rank.ModelRecord{
		Rank:       r,
		ModelName:  name,
		Author:     author,
		Tokens:     "1.2B",
		ModelURL:   "https://openrouter.ai/" + author + "/" + name,
		AuthorURL:  "https://openrouter.ai/" + author,
		TimePeriod: period,
		ScrapedAt:  at,
	}
}

func countRows(t *testing.T, s *SQLStore, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func TestSchemaIsIdempotent(t *testing.T) {
	s := newMemoryStore(t)
	schema, err := Schema(DialectSQLite)
	require.NoError(t, err)
	_, err = s.db.Exec(schema)
	assert.NoError(t, err)

	_, err = Schema("oracle")
	assert.Error(t, err)
}

func TestUpsertModelSameKeyTwice(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	first := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	second := first.Add(6 * time.Hour)

	rec := model(3, "Alpha", "Acme", rank.PeriodDay, first)
	require.NoError(t, s.UpsertModels(ctx, []rank.ModelRecord{rec}))

	rec.Rank = 1
	rec.Tokens = "9.9B"
	rec.TrendDirection = rank.TrendUp
	rec.ScrapedAt = second
	require.NoError(t, s.UpsertModels(ctx, []rank.ModelRecord{rec}))

	assert.Equal(t, 1, countRows(t, s, ModelsTable))

	got, err := s.ListModels(ctx, ListOpts{Period: rank.PeriodDay})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "9.9B", got[0].Tokens)
	assert.Equal(t, rank.TrendUp, got[0].TrendDirection)
	assert.True(t, second.Equal(got[0].ScrapedAt), "scraped_at %v", got[0].ScrapedAt)
}

func TestUpsertModelDifferentPeriods(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	at := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertModels(ctx, []rank.ModelRecord{
		model(1, "Alpha", "Acme", rank.PeriodDay, at),
		model(1, "Alpha", "Acme", rank.PeriodWeek, at),
	}))
	assert.Equal(t, 2, countRows(t, s, ModelsTable))
}

func TestUpsertModelSameNameDifferentAuthor(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	at := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertModels(ctx, []rank.ModelRecord{
		model(1, "Chat", "Acme", rank.PeriodDay, at),
		model(2, "Chat", "Zeta", rank.PeriodDay, at),
	}))
	assert.Equal(t, 2, countRows(t, s, ModelsTable))
}

func TestModelsEndToEndRerun(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	run1 := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	run2 := run1.Add(6 * time.Hour)

	require.NoError(t, s.UpsertModels(ctx, []rank.ModelRecord{
		model(1, "Alpha", "Acme", rank.PeriodDay, run1),
		model(2, "Beta", "Acme", rank.PeriodDay, run1),
		model(3, "Gamma", "Zeta", rank.PeriodDay, run1),
	}))
	assert.Equal(t, 3, countRows(t, s, ModelsTable))

	require.NoError(t, s.UpsertModels(ctx, []rank.ModelRecord{
		model(1, "Alpha", "Acme", rank.PeriodDay, run2),
		model(2, "BetaPlus", "Acme", rank.PeriodDay, run2),
		model(3, "Gamma", "Zeta", rank.PeriodDay, run2),
	}))
	assert.Equal(t, 4, countRows(t, s, ModelsTable), "BetaPlus is new, Beta is kept")

	var beta rank.ModelRecord
	require.NoError(t, s.db.Get(&beta, "SELECT rank, model_name, author, tokens, trend_percentage, trend_direction, trend_icon, trend_color, model_url, author_url, logo_url, time_period, scraped_at FROM "+ModelsTable+" WHERE model_name = ?", "Beta"))
	assert.True(t, run1.Equal(beta.ScrapedAt), "Beta keeps its first capture")

	latest, err := s.ListModels(ctx, ListOpts{Period: rank.PeriodDay})
	require.NoError(t, err)
	require.Len(t, latest, 3)
	names := []string{latest[0].ModelName, latest[1].ModelName, latest[2].ModelName}
	assert.Equal(t, []string{"Alpha", "BetaPlus", "Gamma"}, names)
	for i, m := range latest {
		assert.Equal(t, i+1, m.Rank)
		assert.Equal(t, rank.PeriodDay, m.TimePeriod)
		assert.True(t, run2.Equal(m.ScrapedAt))
	}
}

func TestListModelsLimitAndAllPeriods(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	at := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertModels(ctx, []rank.ModelRecord{
		model(1, "A", "x", rank.PeriodDay, at),
		model(2, "B", "x", rank.PeriodDay, at),
		model(3, "C", "x", rank.PeriodDay, at),
		model(1, "A", "x", rank.PeriodWeek, at),
	}))

	got, err := s.ListModels(ctx, ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, rank.PeriodDay, got[0].TimePeriod)
	assert.Equal(t, rank.PeriodWeek, got[2].TimePeriod)
}

func TestUpsertAppsAndList(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	at := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	apps := []rank.AppRecord{
		{Rank: 1, AppName: "Kilo Code", Tokens: "99.2B", AppURL: "https://kilocode.ai/", Domain: "kilocode.ai", TimePeriod: rank.PeriodDay, ScrapedAt: at},
		{Rank: 2, AppName: "HammerAI", Tokens: "3.54B", IsNew: true, TimePeriod: rank.PeriodDay, ScrapedAt: at},
	}
	require.NoError(t, s.UpsertApps(ctx, apps))
	require.NoError(t, s.UpsertApps(ctx, apps))
	assert.Equal(t, 2, countRows(t, s, AppsTable))

	got, err := s.ListApps(ctx, ListOpts{Period: rank.PeriodDay})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Kilo Code", got[0].AppName)
	assert.Equal(t, "kilocode.ai", got[0].Domain)
	assert.False(t, got[0].IsNew)
	assert.True(t, got[1].IsNew)
}

func TestUpsertEmptyBatch(t *testing.T) {
	s := newMemoryStore(t)
	assert.NoError(t, s.UpsertModels(context.Background(), nil))
	assert.NoError(t, s.UpsertApps(context.Background(), []rank.AppRecord{}))
}

func TestUpsertPartialFailureKeepsSiblings(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "postgres")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS openrouter_models").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLStore(context.Background(), db, DialectPostgres)
	require.NoError(t, err)

	at := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	records := []rank.ModelRecord{
		model(1, "Alpha", "Acme", rank.PeriodDay, at),
		model(2, "Beta", "Acme", rank.PeriodDay, at),
		model(3, "Gamma", "Zeta", rank.PeriodDay, at),
	}

	insert := `INSERT INTO openrouter_models \(rank, model_name`
	mock.ExpectExec(insert).
		WithArgs(1, "Alpha", "Acme", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "day", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WillReturnError(errors.New("value too long for type character varying"))
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.UpsertModels(context.Background(), records)
	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, ModelsTable, batchErr.Table)
	assert.Equal(t, 3, batchErr.Attempted)
	require.Len(t, batchErr.Failures, 1)
	assert.Equal(t, rank.NaturalKey{"Beta", "Acme", "day"}, batchErr.Failures[0].Key)
	assert.Contains(t, err.Error(), "Beta/Acme/day")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQLUsesDollarPlaceholdersForPostgres(t *testing.T) {
	db := sqlx.NewDb(nil, "postgres")
	q := db.Rebind(modelsTable.upsertSQL())
	assert.Contains(t, q, "$13")
	assert.Contains(t, q, "ON CONFLICT (model_name, author, time_period) DO UPDATE SET")
	assert.Contains(t, q, "scraped_at = excluded.scraped_at")
	assert.NotContains(t, q, "author = excluded.author")
}

func TestOpenSchemes(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, "https://abc.supabase.co", "anon")
	require.NoError(t, err)
	assert.IsType(t, &RESTStore{}, st)

	st, err = Open(ctx, "sqlite://:memory:", "k")
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, "redis://localhost", "k")
	assert.Error(t, err)

	_, err = Open(ctx, "   ", "k")
	assert.Error(t, err)
}
