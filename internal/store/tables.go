package store

import (
	"strings"

	"github.com/elonfeng/rankradar/pkg/rank"
)

// table describes a destination table: its natural key and the columns
// written on upsert, in argument order.
type table struct {
	name    string
	key     []string
	columns []string
}

var modelsTable = table{
	name: ModelsTable,
	key:  []string{"model_name", "author", "time_period"},
	columns: []string{
		"rank", "model_name", "author", "tokens",
		"trend_percentage", "trend_direction", "trend_icon", "trend_color",
		"model_url", "author_url", "logo_url", "time_period", "scraped_at",
	},
}

var appsTable = table{
	name: AppsTable,
	key:  []string{"app_name", "time_period"},
	columns: []string{
		"rank", "app_name", "description", "tokens", "is_new",
		"app_url", "domain", "image_url", "time_period", "scraped_at",
	},
}

func modelArgs(m rank.ModelRecord) []any {
	return []any{
		m.Rank, m.ModelName, m.Author, m.Tokens,
		m.TrendPercentage, m.TrendDirection, m.TrendIcon, m.TrendColor,
		m.ModelURL, m.AuthorURL, m.LogoURL, string(m.TimePeriod), m.ScrapedAt.UTC(),
	}
}

func appArgs(a rank.AppRecord) []any {
	return []any{
		a.Rank, a.AppName, a.Description, a.Tokens, a.IsNew,
		a.AppURL, a.Domain, a.ImageURL, string(a.TimePeriod), a.ScrapedAt.UTC(),
	}
}

func (t table) conflictTarget() string {
	return strings.Join(t.key, ", ")
}

func (t table) isKey(col string) bool {
	for _, k := range t.key {
		if k == col {
			return true
		}
	}
	return false
}

// upsertSQL builds an INSERT ... ON CONFLICT DO UPDATE statement with "?"
// placeholders. Every non-key column is overwritten.
func (t table) upsertSQL() string {
	var b strings.Builder
	b.WriteString("INSERT INTO " + t.name + " (" + strings.Join(t.columns, ", ") + ")\nVALUES (")
	b.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", "))
	b.WriteString(")\nON CONFLICT (" + t.conflictTarget() + ") DO UPDATE SET\n")

	var sets []string
	for _, c := range t.columns {
		if !t.isKey(c) {
			sets = append(sets, "\t"+c+" = excluded."+c)
		}
	}
	b.WriteString(strings.Join(sets, ",\n"))
	return b.String()
}

// latestSQL selects the newest capture of each period. Ranks are contiguous
// from 1, so "rank <= ?" caps rows per period.
func (t table) latestSQL(byPeriod bool) string {
	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		cols[i] = "cur." + c
	}
	q := "SELECT " + strings.Join(cols, ", ") + "\nFROM " + t.name + " AS cur\n" +
		"WHERE cur.scraped_at = (SELECT MAX(prev.scraped_at) FROM " + t.name + " AS prev WHERE prev.time_period = cur.time_period)\n" +
		"AND cur.rank <= ?\n"
	if byPeriod {
		q += "AND cur.time_period = ?\n"
	}
	return q + "ORDER BY cur.time_period, cur.rank"
}
