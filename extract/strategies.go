package extract

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"inventory_watch/models"
)

const (
	StrategyLinkPattern   = "link_pattern"
	StrategyInventoryLink = "inventory_link"
	StrategyTextPattern   = "text_pattern"
	StrategyAnchorText    = "anchor_text"
)

const (
	listingSelector = "div, section, article, li"
	maxTextTitle    = 120
)

// DefaultStrategies returns the cascade in priority order: detail-page link
// shapes, inventory links mentioning the model, free text, then any anchor
// whose text names both make and model.
func DefaultStrategies(kw Keywords) []Strategy {
	return []Strategy{
		{Name: StrategyLinkPattern, Find: LinkPatterns(kw)},
		{Name: StrategyInventoryLink, Find: InventoryLinks(kw)},
		{Name: StrategyTextPattern, Find: TextPatterns(kw)},
		{Name: StrategyAnchorText, Find: AnchorText(kw)},
	}
}

// LinkPatterns matches anchors whose href looks like a vehicle detail page.
func LinkPatterns(kw Keywords) FindFunc {
	mk, md := regexp.QuoteMeta(kw.Make), regexp.QuoteMeta(kw.Model)
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`(?i)/new/` + mk + `/.*` + md),
		regexp.MustCompile(`(?i)/used/` + mk + `/.*` + md),
		regexp.MustCompile(`(?i)/inventory/.*` + mk + `.*` + md),
		regexp.MustCompile(`(?i)\?.*model.*` + md),
	}

	return func(doc *goquery.Document, pageURL *url.URL) []models.RawCandidate {
		var out []models.RawCandidate
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			for _, p := range patterns {
				if p.MatchString(href) {
					out = append(out, fromAnchor(a, pageURL))
					return
				}
			}
		})
		return out
	}
}

// InventoryLinks matches listing-page links whose resolved URL mentions the model.
func InventoryLinks(kw Keywords) FindFunc {
	mk := regexp.QuoteMeta(kw.Make)
	inventory := regexp.MustCompile(`(?i)inventory.*` + mk + `|` + mk + `.*inventory`)
	model := strings.ToLower(kw.Model)

	return func(doc *goquery.Document, pageURL *url.URL) []models.RawCandidate {
		var out []models.RawCandidate
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if !inventory.MatchString(href) {
				return
			}
			c := fromAnchor(a, pageURL)
			if strings.Contains(strings.ToLower(c.Href), model) {
				out = append(out, c)
			}
		})
		return out
	}
}

// variantWords are the type words accepted after a bare model name, on top of
// the configured trims and sub-variants.
var variantWords = []string{"Hybrid", "Sport", "EX", "LX"}

// TextPatterns scans visible text for "<year> <make> <model> ...", then bare
// "<make> <model> ..." and finally "<model> <variant> ..." mentions. A match
// inside the span of an earlier pattern is skipped. Candidates carry the page
// URL as a placeholder href.
func TextPatterns(kw Keywords) FindFunc {
	mk, md := regexp.QuoteMeta(kw.Make), regexp.QuoteMeta(kw.Model)
	words := tokenAlternation(append(append([]string(nil), kw.Tokens...), variantWords...))
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b20\d{2}\s+` + mk + `\s+` + md + `\b[^\n]*`),
		regexp.MustCompile(`(?i)\b` + mk + `\s+` + md + `\b[^\n]*`),
		regexp.MustCompile(`(?i)\b` + md + `\s+(?:` + words + `)\b[^\n]*`),
	}

	return func(doc *goquery.Document, pageURL *url.URL) []models.RawCandidate {
		text := VisibleText(doc)
		page := pageURL.String()

		var out []models.RawCandidate
		var spans [][]int
		for _, p := range patterns {
			var found [][]int
			for _, s := range p.FindAllStringIndex(text, -1) {
				if within(s, spans) {
					continue
				}
				found = append(found, s)
				out = append(out, textCandidate(text[s[0]:s[1]], page))
			}
			spans = append(spans, found...)
		}
		return out
	}
}

// AnchorText matches any anchor whose text names both make and model.
func AnchorText(kw Keywords) FindFunc {
	mk, md := regexp.QuoteMeta(kw.Make), regexp.QuoteMeta(kw.Model)
	pattern := regexp.MustCompile(`(?i)` + mk + `.*` + md + `|` + md + `.*` + mk)

	return func(doc *goquery.Document, pageURL *url.URL) []models.RawCandidate {
		var out []models.RawCandidate
		doc.Find("a").Each(func(_ int, a *goquery.Selection) {
			if !pattern.MatchString(collapseSpace(a.Text())) {
				return
			}
			c := fromAnchor(a, pageURL)
			if _, ok := a.Attr("href"); !ok || strings.TrimSpace(c.Href) == "" {
				c.Href = pageURL.String()
				c.Placeholder = true
			}
			out = append(out, c)
		})
		return out
	}
}

func fromAnchor(a *goquery.Selection, pageURL *url.URL) models.RawCandidate {
	href, _ := a.Attr("href")
	c := models.RawCandidate{
		AnchorText: collapseSpace(a.Text()),
		Href:       resolve(pageURL, href),
	}

	listing := a.Parent().Closest(listingSelector)
	if listing.Length() == 0 {
		return c
	}
	if sharedListing(listing, c.Href, pageURL) {
		text, markup := cardSegment(listing.Nodes[0], a.Nodes[0], c.Href, pageURL)
		c.ContextText = collapseSpace(text)
		c.Markup = markup
	} else {
		c.ContextText = collapseSpace(listing.Text())
		c.Markup, _ = goquery.OuterHtml(listing)
	}
	c.Price = FindPrice(c.ContextText)
	return c
}

// sharedListing reports whether the element also holds links to sibling
// vehicle pages, i.e. it is a results grid rather than a single card.
func sharedListing(listing *goquery.Selection, href string, pageURL *url.URL) bool {
	shared := false
	listing.Find("a[href]").EachWithBreak(func(_ int, other *goquery.Selection) bool {
		h, _ := other.Attr("href")
		shared = siblingPage(href, resolve(pageURL, h))
		return !shared
	})
	return shared
}

// siblingPage reports whether other is a different page in the same directory
// as href, which is how listing grids link their vehicles.
func siblingPage(href, other string) bool {
	if other == "" || other == href {
		return false
	}
	a, err := url.Parse(href)
	if err != nil {
		return false
	}
	b, err := url.Parse(other)
	if err != nil {
		return false
	}
	return a.Host == b.Host && path.Dir(a.Path) == path.Dir(b.Path)
}

// cardSegment renders the anchor's branch of a shared listing plus the
// following siblings up to the next branch linking to a sibling page.
func cardSegment(listing, anchor *html.Node, href string, pageURL *url.URL) (string, string) {
	start := anchor
	for start.Parent != nil && start.Parent != listing {
		start = start.Parent
	}

	var text []string
	var markup strings.Builder
	for n := start; n != nil; n = n.NextSibling {
		if n != start && linksSibling(n, href, pageURL) {
			break
		}
		_ = html.Render(&markup, n)
		text = append(text, nodeText(n))
	}
	return strings.Join(text, " "), markup.String()
}

func linksSibling(n *html.Node, href string, pageURL *url.URL) bool {
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, attr := range n.Attr {
			if attr.Key == "href" && siblingPage(href, resolve(pageURL, attr.Val)) {
				return true
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if linksSibling(c, href, pageURL) {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		parts = append(parts, nodeText(c))
	}
	return strings.Join(parts, " ")
}

func textCandidate(match, page string) models.RawCandidate {
	title := collapseSpace(match)
	if len(title) > maxTextTitle {
		title = strings.TrimSpace(title[:maxTextTitle])
		if i := strings.LastIndex(title, " "); i > 0 {
			title = title[:i]
		}
	}
	return models.RawCandidate{
		AnchorText:  title,
		Href:        page,
		ContextText: collapseSpace(match),
		Price:       FindPrice(match),
		Placeholder: true,
	}
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func tokenAlternation(tokens []string) string {
	sorted := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			sorted = append(sorted, t)
		}
	}
	// Longest first so "Sport Touring" wins over "Sport".
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	quoted := make([]string, len(sorted))
	for i, t := range sorted {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(t), " ", `\s+`)
	}
	return strings.Join(quoted, "|")
}

func within(span []int, spans [][]int) bool {
	for _, s := range spans {
		if span[0] >= s[0] && span[1] <= s[1] {
			return true
		}
	}
	return false
}

var skipText = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// VisibleText joins the document's rendered text nodes with newlines.
func VisibleText(doc *goquery.Document) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipText[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(parts, "\n")
}
