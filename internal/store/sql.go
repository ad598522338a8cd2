package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/rankradar/pkg/rank"
)

// SQLStore implements Store over SQLite or PostgreSQL.
type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect
}

// OpenSQLite opens (or creates) a SQLite database and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_time_format=sqlite"
	if !strings.HasPrefix(path, ":memory:") {
		dsn += "&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: SQLite has a single writer, and each connection to
	// ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	return NewSQLStore(ctx, db, DialectSQLite)
}

// OpenPostgres connects to PostgreSQL and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewSQLStore(ctx, db, DialectPostgres)
}

// NewSQLStore wraps an open database and runs migrations.
func NewSQLStore(ctx context.Context, db *sqlx.DB, dialect Dialect) (*SQLStore, error) {
	schema, err := Schema(dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) UpsertModels(ctx context.Context, records []rank.ModelRecord) error {
	return upsertEach(ctx, s.db, modelsTable, records, modelArgs, rank.ModelRecord.Key)
}

func (s *SQLStore) UpsertApps(ctx context.Context, records []rank.AppRecord) error {
	return upsertEach(ctx, s.db, appsTable, records, appArgs, rank.AppRecord.Key)
}

// upsertEach writes records one statement at a time so a rejected record
// does not roll back its siblings.
func upsertEach[T any](
	ctx context.Context,
	db *sqlx.DB,
	t table,
	records []T,
	args func(T) []any,
	key func(T) rank.NaturalKey,
) error {
	query := db.Rebind(t.upsertSQL())
	batchErr := &BatchError{Table: t.name, Attempted: len(records)}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upsert %s: %w", t.name, err)
		}
		if _, err := db.ExecContext(ctx, query, args(r)...); err != nil {
			batchErr.Failures = append(batchErr.Failures, Failure{Key: key(r), Err: err})
		}
	}

	if len(batchErr.Failures) > 0 {
		return batchErr
	}
	return nil
}

func (s *SQLStore) ListModels(ctx context.Context, opts ListOpts) ([]rank.ModelRecord, error) {
	var out []rank.ModelRecord
	query, args := s.latest(modelsTable, opts)
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ListApps(ctx context.Context, opts ListOpts) ([]rank.AppRecord, error) {
	var out []rank.AppRecord
	query, args := s.latest(appsTable, opts)
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return out, nil
}

func (s *SQLStore) latest(t table, opts ListOpts) (string, []any) {
	args := []any{opts.limit()}
	if opts.Period != "" {
		args = append(args, string(opts.Period))
	}
	return s.db.Rebind(t.latestSQL(opts.Period != "")), args
}
