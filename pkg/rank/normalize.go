package rank

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultSiteURL is the ranking site the fallback links point at.
const DefaultSiteURL = "https://openrouter.ai"

// Arrow is the trend glyph detected in a row's markup.
type Arrow string

const (
	ArrowNone Arrow = ""
	ArrowUp   Arrow = "up"
	ArrowDown Arrow = "down"
)

// RawModel is the unvalidated field-set of one model row.
type RawModel struct {
	Name      string
	Author    string
	ModelHref string
	Tokens    string
	TrendText string
	Arrow     Arrow
	LogoSrc   string
}

// RawApp is the unvalidated field-set of one app row.
type RawApp struct {
	Name        string
	Description string
	Tokens      string
	NewBadge    bool
	AppURL      string
	ImageSrc    string
}

// Normalizer turns raw rows into typed records. All records produced by one
// Normalizer share the same period and capture timestamp.
type Normalizer struct {
	Period     Period
	CapturedAt time.Time
	SiteURL    string
}

// NewNormalizer stamps a run with now, truncated to the second in UTC.
func NewNormalizer(period Period, siteURL string, now time.Time) *Normalizer {
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	return &Normalizer{
		Period:     period,
		CapturedAt: now.UTC().Truncate(time.Second),
		SiteURL:    strings.TrimRight(siteURL, "/"),
	}
}

// Models normalizes rows in source order, assigning ranks 1..N.
func (n *Normalizer) Models(raws []RawModel) []ModelRecord {
	out := make([]ModelRecord, 0, len(raws))
	for i, raw := range raws {
		out = append(out, n.Model(i+1, raw))
	}
	return out
}

// Model normalizes a single model row.
func (n *Normalizer) Model(rank int, raw RawModel) ModelRecord {
	name := collapseSpace(raw.Name)
	author := collapseSpace(raw.Author)
	pct := normalizePercentage(raw.TrendText)
	dir, icon, color := classifyTrend(raw.Arrow, pct)

	modelURL := strings.TrimSpace(raw.ModelHref)
	if modelURL == "" {
		modelURL = n.SiteURL + "/" + slug(author) + "/" + slug(name)
	}

	logo := strings.TrimSpace(raw.LogoSrc)
	if logo == "" && author != "" {
		logo = FaviconURL("https://" + authorDomain(author))
	}

	return ModelRecord{
		Rank:            rank,
		ModelName:       name,
		Author:          author,
		Tokens:          NormalizeTokens(raw.Tokens),
		TrendPercentage: pct,
		TrendDirection:  dir,
		TrendIcon:       icon,
		TrendColor:      color,
		ModelURL:        modelURL,
		AuthorURL:       n.SiteURL + "/" + slug(author),
		LogoURL:         logo,
		TimePeriod:      n.Period,
		ScrapedAt:       n.CapturedAt,
	}
}

// Apps normalizes rows in source order, assigning ranks 1..N.
func (n *Normalizer) Apps(raws []RawApp) []AppRecord {
	out := make([]AppRecord, 0, len(raws))
	for i, raw := range raws {
		out = append(out, n.App(i+1, raw))
	}
	return out
}

// App normalizes a single app row.
func (n *Normalizer) App(rank int, raw RawApp) AppRecord {
	name := collapseSpace(raw.Name)
	appURL := strings.TrimSpace(raw.AppURL)

	var domain string
	if u, err := url.Parse(appURL); err == nil {
		domain = u.Host
	}

	image := strings.TrimSpace(raw.ImageSrc)
	if image == "" && domain != "" {
		image = FaviconURL(appURL)
	}
	if appURL == "" {
		appURL = n.SiteURL + "/apps/" + appSlug(name)
	}

	return AppRecord{
		Rank:        rank,
		AppName:     name,
		Description: collapseSpace(raw.Description),
		Tokens:      NormalizeTokens(raw.Tokens),
		IsNew:       raw.NewBadge,
		AppURL:      appURL,
		Domain:      domain,
		ImageURL:    image,
		TimePeriod:  n.Period,
		ScrapedAt:   n.CapturedAt,
	}
}

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	tokensRe    = regexp.MustCompile(`(?i)\s*tokens?$`)
	unitRe      = regexp.MustCompile(`^([\d.,]+)\s*([kmbtKMBT])$`)
	percentRe   = regexp.MustCompile(`^[+-]?[\d,.]+%$`)
	slugDropper = strings.NewReplacer("(", "", ")", "")
	appDropper  = strings.NewReplacer(":", "", ".", "")
)

// NormalizeTokens canonicalizes a token-volume display string. The value
// stays textual: "1.2m tokens" becomes "1.2M", "12,345 tokens" becomes
// "12,345".
func NormalizeTokens(s string) string {
	s = collapseSpace(s)
	s = strings.TrimSpace(tokensRe.ReplaceAllString(s, ""))
	if m := unitRe.FindStringSubmatch(s); m != nil {
		return m[1] + strings.ToUpper(m[2])
	}
	return s
}

func normalizePercentage(s string) string {
	s = strings.ReplaceAll(collapseSpace(s), " ", "")
	if strings.EqualFold(s, "new") {
		return "new"
	}
	if percentRe.MatchString(s) {
		return s
	}
	return ""
}

// classifyTrend treats a "new" badge as up, then prefers the arrow glyph,
// then the percentage sign.
func classifyTrend(arrow Arrow, pct string) (dir, icon, color string) {
	if pct == "new" {
		return TrendUp, "^", "green"
	}
	switch arrow {
	case ArrowUp:
		return TrendUp, "^", "green"
	case ArrowDown:
		return TrendDown, "v", "red"
	}
	if pct == "" {
		return "", "", ""
	}
	v, err := strconv.ParseFloat(strings.NewReplacer(",", "", "%", "").Replace(pct), 64)
	switch {
	case err != nil:
		return TrendFlat, "->", "gray"
	case v > 0:
		return TrendUp, "^", "green"
	case v < 0:
		return TrendDown, "v", "red"
	}
	return TrendFlat, "->", "gray"
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func slug(s string) string {
	return strings.ReplaceAll(slugDropper.Replace(strings.ToLower(collapseSpace(s))), " ", "-")
}

func appSlug(s string) string {
	return strings.ReplaceAll(appDropper.Replace(strings.ToLower(collapseSpace(s))), " ", "-")
}

const faviconBase = "https://t0.gstatic.com/faviconV2?client=SOCIAL&type=FAVICON&fallback_opts=TYPE,SIZE,URL&size=256&url="

// FaviconURL returns the gstatic favicon URL for a site.
func FaviconURL(siteURL string) string {
	return faviconBase + url.QueryEscape(siteURL)
}

// authorDomains maps author names to the domain their favicon is served from.
var authorDomains = map[string]string{
	"openai":       "openai.com",
	"anthropic":    "anthropic.com",
	"google":       "google.com",
	"meta":         "meta.com",
	"meta-llama":   "meta.com",
	"microsoft":    "microsoft.com",
	"cohere":       "cohere.com",
	"mistral ai":   "mistral.ai",
	"mistralai":    "mistral.ai",
	"hugging face": "huggingface.co",
	"stability ai": "stability.ai",
	"perplexity":   "perplexity.ai",
	"deepseek":     "deepseek.com",
	"qwen":         "qwenlm.com",
	"x-ai":         "x.ai",
	"moonshotai":   "moonshot.cn",
	"moonshot":     "moonshot.cn",
	"minimax":      "minimax.chat",
	"z-ai":         "zhipuai.cn",
	"zhipu":        "zhipuai.cn",
	"01-ai":        "01.ai",
	"nvidia":       "nvidia.com",
	"amazon":       "amazon.com",
	"cerebras":     "cerebras.net",
	"databricks":   "databricks.com",
	"inflection":   "inflection.ai",
	"nousresearch": "nousresearch.com",
	"openrouter":   "openrouter.ai",
	"together":     "together.ai",
	"baidu":        "baidu.com",
	"tencent":      "tencent.com",
	"bytedance":    "bytedance.com",
	"inception":    "inceptionlabs.ai",
	"thudm":        "zhipuai.cn",
	"liquid":       "liquid.ai",
	"ai21":         "ai21.com",
	"arcee-ai":     "arcee.ai",
}

func authorDomain(author string) string {
	key := strings.ToLower(collapseSpace(author))
	if d, ok := authorDomains[key]; ok {
		return d
	}
	return strings.NewReplacer(" ", "", "-", "").Replace(key) + ".com"
}
