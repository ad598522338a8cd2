package source

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/elonfeng/rankradar/pkg/rank"
)

// DefaultMaxRows is how many ranking rows the site shows before "Show more".
const DefaultMaxRows = 20

var (
	spaceRe   = regexp.MustCompile(`\s+`)
	percentRe = regexp.MustCompile(`^[+-]?[\d,.]+%$`)
	rankRe    = regexp.MustCompile(`^\d+\.?$`)
	volumeRe  = regexp.MustCompile(`(?i)^[\d.,]+\s*[kmbt]?$`)

	tokenLabelRe = regexp.MustCompile(`(?i)^[\d.,]+\s*[kmbt]?\s*tokens?$`)
)

// leaf is an element with no element children and non-empty text.
type leaf struct {
	text string
	sel  *goquery.Selection
}

func loadDocument(markup []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(markup))
}

// scopeOf returns the element rows are searched in: the container when one
// is configured, else the whole document.
func scopeOf(doc *goquery.Document, kind rank.Kind, container string) (*goquery.Selection, error) {
	if container == "" {
		return doc.Selection, nil
	}
	c := doc.Find(container).First()
	if c.Length() == 0 {
		return nil, &ParseError{Kind: kind, Selector: container}
	}
	return c, nil
}

// leaderboardPresent reports whether a ranking with no rows is still on the
// page: its configured container matched, or its section label appears.
func leaderboardPresent(scope *goquery.Selection, container, section string) bool {
	return container != "" || mentions(scope, section)
}

func mentions(sel *goquery.Selection, label string) bool {
	if label == "" {
		return false
	}
	return strings.Contains(strings.ToLower(cleanText(sel.Text())), strings.ToLower(label))
}

func cleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// leaves returns the text-bearing leaf elements of sel in document order.
func leaves(sel *goquery.Selection) []leaf {
	var out []leaf
	sel.Find("*").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 || goquery.NodeName(s) == "script" || goquery.NodeName(s) == "style" {
			return
		}
		if t := cleanText(s.Text()); t != "" {
			out = append(out, leaf{text: t, sel: s})
		}
	})
	return out
}

// tokenText finds the token-volume label among leaves. The site renders it
// either as one "3.5B tokens" element or as a value followed by a separate
// "tokens" element.
func tokenText(ls []leaf) string {
	for i, l := range ls {
		if tokenLabelRe.MatchString(l.text) {
			return l.text
		}
		if strings.EqualFold(l.text, "tokens") && i > 0 && volumeRe.MatchString(ls[i-1].text) {
			return ls[i-1].text + " " + l.text
		}
	}
	return ""
}

// trendText finds a "12%" or "new" label among leaves.
func trendText(ls []leaf) string {
	for _, l := range ls {
		if percentRe.MatchString(strings.ReplaceAll(l.text, " ", "")) || strings.EqualFold(l.text, "new") {
			return l.text
		}
	}
	return ""
}

func hasLeaf(ls []leaf, text string) bool {
	for _, l := range ls {
		if strings.EqualFold(l.text, text) {
			return true
		}
	}
	return false
}

// resolve makes href absolute against base. Unparseable hrefs resolve to "".
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// pathSegments splits the path of href into its non-empty segments.
func pathSegments(href string) []string {
	u, err := url.Parse(href)
	if err != nil {
		return nil
	}
	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func parseBase(raw string) *url.URL {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}
