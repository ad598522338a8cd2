package rank

import (
	"fmt"
	"strings"
	"time"
)

// Kind names a ranking pipeline.
type Kind string

const (
	KindModels Kind = "models"
	KindApps   Kind = "apps"
)

// Period is the time bucket a ranking snapshot belongs to.
type Period string

const (
	PeriodDay      Period = "day"
	PeriodWeek     Period = "week"
	PeriodMonth    Period = "month"
	PeriodTrending Period = "trending"
	PeriodAllTime  Period = "all-time"
)

// AllPeriods returns every known period.
func AllPeriods() []Period {
	return []Period{PeriodDay, PeriodWeek, PeriodMonth, PeriodTrending, PeriodAllTime}
}

// periodLabels maps the site's tab labels onto periods.
var periodLabels = map[string]Period{
	"day":            PeriodDay,
	"today":          PeriodDay,
	"top today":      PeriodDay,
	"week":           PeriodWeek,
	"this week":      PeriodWeek,
	"top this week":  PeriodWeek,
	"month":          PeriodMonth,
	"this month":     PeriodMonth,
	"top this month": PeriodMonth,
	"trending":       PeriodTrending,
	"all-time":       PeriodAllTime,
	"all time":       PeriodAllTime,
	"alltime":        PeriodAllTime,
}

// ParsePeriod resolves a canonical period name or a site label.
func ParsePeriod(s string) (Period, error) {
	p, ok := periodLabels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown time period %q", s)
	}
	return p, nil
}

// ParsePeriods resolves a list of period names, rejecting duplicates.
func ParsePeriods(names []string) ([]Period, error) {
	seen := make(map[Period]bool, len(names))
	out := make([]Period, 0, len(names))
	for _, n := range names {
		p, err := ParsePeriod(n)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			return nil, fmt.Errorf("duplicate time period %q", n)
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// Trend direction values.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// NaturalKey identifies the same logical entity across scrapes.
type NaturalKey []string

func (k NaturalKey) String() string {
	return strings.Join(k, "/")
}

// ModelRecord is one model observed at one scrape instant for one period.
type ModelRecord struct {
	Rank            int       `json:"rank" db:"rank"`
	ModelName       string    `json:"model_name" db:"model_name"`
	Author          string    `json:"author" db:"author"`
	Tokens          string    `json:"tokens" db:"tokens"`
	TrendPercentage string    `json:"trend_percentage" db:"trend_percentage"`
	TrendDirection  string    `json:"trend_direction" db:"trend_direction"`
	TrendIcon       string    `json:"trend_icon" db:"trend_icon"`
	TrendColor      string    `json:"trend_color" db:"trend_color"`
	ModelURL        string    `json:"model_url" db:"model_url"`
	AuthorURL       string    `json:"author_url" db:"author_url"`
	LogoURL         string    `json:"logo_url" db:"logo_url"`
	TimePeriod      Period    `json:"time_period" db:"time_period"`
	ScrapedAt       time.Time `json:"scraped_at" db:"scraped_at"`
}

// Key returns (model_name, author, time_period).
func (m ModelRecord) Key() NaturalKey {
	return NaturalKey{m.ModelName, m.Author, string(m.TimePeriod)}
}

// AppRecord is one application observed at one scrape instant for one period.
type AppRecord struct {
	Rank        int       `json:"rank" db:"rank"`
	AppName     string    `json:"app_name" db:"app_name"`
	Description string    `json:"description" db:"description"`
	Tokens      string    `json:"tokens" db:"tokens"`
	IsNew       bool      `json:"is_new" db:"is_new"`
	AppURL      string    `json:"app_url" db:"app_url"`
	Domain      string    `json:"domain" db:"domain"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	TimePeriod  Period    `json:"time_period" db:"time_period"`
	ScrapedAt   time.Time `json:"scraped_at" db:"scraped_at"`
}

// Key returns (app_name, time_period).
func (a AppRecord) Key() NaturalKey {
	return NaturalKey{a.AppName, string(a.TimePeriod)}
}
