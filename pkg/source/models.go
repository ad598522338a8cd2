package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/elonfeng/rankradar/pkg/rank"
)

// Arrow icons drawn next to the trend percentage on the models ranking.
const (
	upArrowPath   = "M11.47 2.47a.75.75 0 0 1 1.06 0l7.5 7.5a.75.75 0 1 1-1.06 1.06l-6.22-6.22V21a.75.75 0 0 1-1.5 0V4.81l-6.22 6.22a.75.75 0 1 1-1.06-1.06l7.5-7.5Z"
	downArrowPath = "M12 2.25a.75.75 0 0 1 .75.75v16.19l6.22-6.22a.75.75 0 1 1 1.06 1.06l-7.5 7.5a.75.75 0 0 1-1.06 0l-7.5-7.5a.75.75 0 1 1 1.06-1.06l6.22 6.22V3a.75.75 0 0 1 .75-.75Z"
)

// ModelSelectors locate the models ranking in page markup. Container is
// optional; when empty the whole page is searched for rows, and Section is
// the text that shows the leaderboard is on the page even when it has no
// rows.
type ModelSelectors struct {
	Container string `yaml:"container"`
	Section   string `yaml:"section"`
	Row       string `yaml:"row"`
}

// DefaultModelSelectors matches the leaderboard on /rankings: one
// twelve-column grid per model, led by a "N." rank cell, under the period
// tabs ("Top today", "Top this week", ...).
func DefaultModelSelectors() ModelSelectors {
	return ModelSelectors{
		Section: "Top today",
		Row:     "div.grid.grid-cols-12.items-center",
	}
}

// ModelsExtractor pulls model rows out of the rankings page.
type ModelsExtractor struct {
	sel     ModelSelectors
	base    *url.URL
	maxRows int
}

// NewModelsExtractor creates an extractor. baseURL resolves relative links.
func NewModelsExtractor(sel ModelSelectors, baseURL string, maxRows int) *ModelsExtractor {
	def := DefaultModelSelectors()
	if sel.Section == "" {
		sel.Section = def.Section
	}
	if sel.Row == "" {
		sel.Row = def.Row
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &ModelsExtractor{sel: sel, base: parseBase(baseURL), maxRows: maxRows}
}

// Extract returns one raw field-set per ranking row in source order.
// A page without the leaderboard is a *ParseError; a leaderboard with no
// rows is not.
func (x *ModelsExtractor) Extract(markup []byte) ([]rank.RawModel, error) {
	doc, err := loadDocument(markup)
	if err != nil {
		return nil, &ParseError{Kind: rank.KindModels, Err: fmt.Errorf("load document: %w", err)}
	}

	scope, err := scopeOf(doc, rank.KindModels, x.sel.Container)
	if err != nil {
		return nil, err
	}
	found := scope.Find(x.sel.Row)
	if found.Length() == 0 && !leaderboardPresent(scope, x.sel.Container, x.sel.Section) {
		return nil, &ParseError{Kind: rank.KindModels, Selector: x.sel.Row, Section: x.sel.Section}
	}

	rows := []rank.RawModel{}
	found.EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if raw, ok := x.extractRow(row); ok {
			rows = append(rows, raw)
		}
		return len(rows) < x.maxRows
	})
	return rows, nil
}

func (x *ModelsExtractor) extractRow(row *goquery.Selection) (rank.RawModel, bool) {
	var raw rank.RawModel

	row.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := resolve(x.base, a.AttrOr("href", ""))
		text := cleanText(a.Text())
		if href == "" || text == "" {
			return
		}
		segs := pathSegments(href)
		if len(segs) > 0 && segs[0] == "apps" {
			return
		}
		switch {
		case len(segs) == 2 && raw.Name == "":
			raw.Name = text
			raw.ModelHref = href
		case len(segs) == 1 && raw.Author == "":
			raw.Author = text
		}
	})

	ls := leaves(row)
	if raw.Name == "" {
		raw.Name = firstNameLeaf(ls)
	}
	if raw.Author == "" {
		raw.Author = authorAfterBy(ls)
	}
	if raw.Name == "" || raw.Author == "" {
		return raw, false
	}

	raw.Tokens = tokenText(ls)
	raw.TrendText = trendText(ls)
	raw.Arrow = arrow(row)
	if src, ok := row.Find("img[src]").First().Attr("src"); ok {
		raw.LogoSrc = resolve(x.base, src)
	}
	return raw, true
}

// arrow reports which trend icon the row draws, if any.
func arrow(row *goquery.Selection) rank.Arrow {
	found := rank.ArrowNone
	row.Find("svg path[d]").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		switch strings.TrimSpace(p.AttrOr("d", "")) {
		case upArrowPath:
			found = rank.ArrowUp
		case downArrowPath:
			found = rank.ArrowDown
		}
		return found == rank.ArrowNone
	})
	return found
}

// firstNameLeaf is the fallback for rows whose model name is not a link: the
// first leaf after the rank number.
func firstNameLeaf(ls []leaf) string {
	for _, l := range ls {
		if rankRe.MatchString(l.text) || strings.EqualFold(l.text, "by") {
			continue
		}
		return l.text
	}
	return ""
}

func authorAfterBy(ls []leaf) string {
	for i, l := range ls {
		if strings.EqualFold(l.text, "by") && i+1 < len(ls) {
			return ls[i+1].text
		}
		if rest, ok := strings.CutPrefix(l.text, "by "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
