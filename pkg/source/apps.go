package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/elonfeng/rankradar/pkg/rank"
)

// AppSelectors locate the apps ranking in page markup. Each app is found by
// its Link; the row is the widest block around the link that holds no other
// app and does not reach the Section heading.
type AppSelectors struct {
	Container   string `yaml:"container"`
	Section     string `yaml:"section"`
	Link        string `yaml:"link"`
	Description string `yaml:"description"`
}

// DefaultAppSelectors matches the "Top Apps" leaderboard on /rankings, where
// every app links through "/apps?url=<encoded site>".
func DefaultAppSelectors() AppSelectors {
	return AppSelectors{
		Section:     "Top Apps",
		Link:        `a[href^="/apps?url="]`,
		Description: "div.truncate.text-xs",
	}
}

// AppsExtractor pulls app rows out of the apps leaderboard.
type AppsExtractor struct {
	sel     AppSelectors
	base    *url.URL
	maxRows int
}

// NewAppsExtractor creates an extractor. baseURL resolves relative links.
func NewAppsExtractor(sel AppSelectors, baseURL string, maxRows int) *AppsExtractor {
	def := DefaultAppSelectors()
	if sel.Section == "" {
		sel.Section = def.Section
	}
	if sel.Link == "" {
		sel.Link = def.Link
	}
	if sel.Description == "" {
		sel.Description = def.Description
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &AppsExtractor{sel: sel, base: parseBase(baseURL), maxRows: maxRows}
}

// Extract returns one raw field-set per app in source order.
func (x *AppsExtractor) Extract(markup []byte) ([]rank.RawApp, error) {
	doc, err := loadDocument(markup)
	if err != nil {
		return nil, &ParseError{Kind: rank.KindApps, Err: fmt.Errorf("load document: %w", err)}
	}

	scope, err := scopeOf(doc, rank.KindApps, x.sel.Container)
	if err != nil {
		return nil, err
	}
	links := scope.Find(x.sel.Link)
	if links.Length() == 0 && !leaderboardPresent(scope, x.sel.Container, x.sel.Section) {
		return nil, &ParseError{Kind: rank.KindApps, Selector: x.sel.Link, Section: x.sel.Section}
	}

	rows := []rank.RawApp{}
	seen := make(map[string]bool)
	links.EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href := link.AttrOr("href", "")
		if seen[href] {
			return true
		}
		seen[href] = true
		if raw, ok := x.extractRow(x.rowOf(link, scope)); ok {
			rows = append(rows, raw)
		}
		return len(rows) < x.maxRows
	})
	return rows, nil
}

// rowOf widens link to its enclosing row block.
func (x *AppsExtractor) rowOf(link, scope *goquery.Selection) *goquery.Selection {
	row := link
	for {
		parent := row.Parent()
		if parent.Length() == 0 || parent.IsSelection(scope) ||
			distinctHrefs(parent.Find(x.sel.Link)) > 1 || mentions(parent, x.sel.Section) {
			return row
		}
		row = parent
	}
}

func distinctHrefs(links *goquery.Selection) int {
	hrefs := make(map[string]bool)
	links.Each(func(_ int, a *goquery.Selection) {
		hrefs[a.AttrOr("href", "")] = true
	})
	return len(hrefs)
}

func (x *AppsExtractor) extractRow(row *goquery.Selection) (rank.RawApp, bool) {
	var raw rank.RawApp

	// The favicon may be wrapped in the same link; the name is the link
	// that carries text.
	row.Find(x.sel.Link).AddBackFiltered(x.sel.Link).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if text := cleanText(a.Text()); text != "" {
			raw.Name = text
			raw.AppURL = appTarget(resolve(x.base, a.AttrOr("href", "")))
			return false
		}
		return true
	})
	if raw.Name == "" {
		return raw, false
	}

	ls := leaves(row)
	raw.Description = cleanText(row.Find(x.sel.Description).First().Text())
	raw.Tokens = tokenText(ls)
	raw.NewBadge = hasLeaf(ls, "new")

	row.Find("img[src]").EachWithBreak(func(i int, img *goquery.Selection) bool {
		src := img.AttrOr("src", "")
		if i == 0 || strings.Contains(src, "favicon") {
			raw.ImageSrc = resolve(x.base, src)
		}
		return !strings.Contains(src, "favicon")
	})
	return raw, true
}

// appTarget unwraps the site's "/apps?url=<encoded>" links to the app's own
// URL. Other links are returned unchanged.
func appTarget(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("url"); target != "" {
		return target
	}
	return href
}
