package store

import "fmt"

// Dialect selects SQL syntax for a relational backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Schema returns the DDL that provisions both ranking tables. It is
// idempotent and applied whenever a SQL store is opened.
func Schema(d Dialect) (string, error) {
	switch d {
	case DialectSQLite:
		return sqliteSchema, nil
	case DialectPostgres:
		return postgresSchema, nil
	}
	return "", fmt.Errorf("unknown dialect %q", d)
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS openrouter_models (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    rank             INTEGER NOT NULL,
    model_name       TEXT NOT NULL,
    author           TEXT NOT NULL,
    tokens           TEXT NOT NULL DEFAULT '',
    trend_percentage TEXT NOT NULL DEFAULT '',
    trend_direction  TEXT NOT NULL DEFAULT '',
    trend_icon       TEXT NOT NULL DEFAULT '',
    trend_color      TEXT NOT NULL DEFAULT '',
    model_url        TEXT NOT NULL DEFAULT '',
    author_url       TEXT NOT NULL DEFAULT '',
    logo_url         TEXT NOT NULL DEFAULT '',
    time_period      TEXT NOT NULL,
    scraped_at       DATETIME NOT NULL,
    UNIQUE(model_name, author, time_period)
);

CREATE INDEX IF NOT EXISTS idx_models_time_period ON openrouter_models(time_period);
CREATE INDEX IF NOT EXISTS idx_models_scraped_at ON openrouter_models(scraped_at);
CREATE INDEX IF NOT EXISTS idx_models_rank ON openrouter_models(rank);

CREATE TABLE IF NOT EXISTS openrouter_apps (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    rank        INTEGER NOT NULL,
    app_name    TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    tokens      TEXT NOT NULL DEFAULT '',
    is_new      BOOLEAN NOT NULL DEFAULT 0,
    app_url     TEXT NOT NULL DEFAULT '',
    domain      TEXT NOT NULL DEFAULT '',
    image_url   TEXT NOT NULL DEFAULT '',
    time_period TEXT NOT NULL,
    scraped_at  DATETIME NOT NULL,
    UNIQUE(app_name, time_period)
);

CREATE INDEX IF NOT EXISTS idx_apps_time_period ON openrouter_apps(time_period);
CREATE INDEX IF NOT EXISTS idx_apps_scraped_at ON openrouter_apps(scraped_at);
CREATE INDEX IF NOT EXISTS idx_apps_rank ON openrouter_apps(rank);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS openrouter_models (
    id               BIGSERIAL PRIMARY KEY,
    rank             INTEGER NOT NULL,
    model_name       TEXT NOT NULL,
    author           TEXT NOT NULL,
    tokens           TEXT NOT NULL DEFAULT '',
    trend_percentage TEXT NOT NULL DEFAULT '',
    trend_direction  TEXT NOT NULL DEFAULT '',
    trend_icon       TEXT NOT NULL DEFAULT '',
    trend_color      TEXT NOT NULL DEFAULT '',
    model_url        TEXT NOT NULL DEFAULT '',
    author_url       TEXT NOT NULL DEFAULT '',
    logo_url         TEXT NOT NULL DEFAULT '',
    time_period      TEXT NOT NULL,
    scraped_at       TIMESTAMPTZ NOT NULL,
    CONSTRAINT openrouter_models_natural_key UNIQUE (model_name, author, time_period)
);

CREATE INDEX IF NOT EXISTS idx_models_time_period ON openrouter_models(time_period);
CREATE INDEX IF NOT EXISTS idx_models_scraped_at ON openrouter_models(scraped_at);
CREATE INDEX IF NOT EXISTS idx_models_rank ON openrouter_models(rank);

CREATE TABLE IF NOT EXISTS openrouter_apps (
    id          BIGSERIAL PRIMARY KEY,
    rank        INTEGER NOT NULL,
    app_name    TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    tokens      TEXT NOT NULL DEFAULT '',
    is_new      BOOLEAN NOT NULL DEFAULT FALSE,
    app_url     TEXT NOT NULL DEFAULT '',
    domain      TEXT NOT NULL DEFAULT '',
    image_url   TEXT NOT NULL DEFAULT '',
    time_period TEXT NOT NULL,
    scraped_at  TIMESTAMPTZ NOT NULL,
    CONSTRAINT openrouter_apps_natural_key UNIQUE (app_name, time_period)
);

CREATE INDEX IF NOT EXISTS idx_apps_time_period ON openrouter_apps(time_period);
CREATE INDEX IF NOT EXISTS idx_apps_scraped_at ON openrouter_apps(scraped_at);
CREATE INDEX IF NOT EXISTS idx_apps_rank ON openrouter_apps(rank);
`
