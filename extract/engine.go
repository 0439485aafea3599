package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"inventory_watch/models"
	"inventory_watch/search"
)

// Keywords parameterise the strategies for one make and model family.
type Keywords struct {
	Make  string
	Model string // family keyword, e.g. "Civic"

	// Tokens are trim or type words accepted after "<make> <model>" in free text.
	Tokens []string
}

// KeywordsFor derives the keywords for one model variant. Tokens are the
// configured trims plus the extra words of every variant in the same family,
// so "Civic Hybrid" contributes "Hybrid" to the "Civic" family.
func KeywordsFor(makeName, variant string, variants, trims []string) Keywords {
	kw := Keywords{Make: strings.TrimSpace(makeName), Model: search.FamilyKeyword(variant)}
	kw.Tokens = append(kw.Tokens, trims...)
	for _, v := range variants {
		f := strings.Fields(v)
		if len(f) > 1 && strings.EqualFold(search.FamilyKeyword(v), kw.Model) {
			kw.Tokens = append(kw.Tokens, strings.Join(f[1:], " "))
		}
	}
	return kw
}

// FindFunc is one extraction heuristic. It must not mutate the document.
type FindFunc func(doc *goquery.Document, pageURL *url.URL) []models.RawCandidate

type Strategy struct {
	Name string
	Find FindFunc
}

// Observer is called once per strategy that actually ran.
type Observer func(strategy string, found int)

type Option func(*Engine)

func WithStrategies(strategies ...Strategy) Option {
	return func(e *Engine) {
		e.strategies = strategies
	}
}

func WithObserver(obs Observer) Option {
	return func(e *Engine) {
		e.observer = obs
	}
}

// Engine runs an ordered cascade of strategies against a page and stops at the
// first strategy that yields anything.
type Engine struct {
	strategies []Strategy
	observer   Observer
}

func NewEngine(kw Keywords, opts ...Option) *Engine {
	e := &Engine{strategies: DefaultStrategies(kw)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the within-page deduplicated candidates of the first
// productive strategy. An empty result is not an error.
func (e *Engine) Extract(doc *goquery.Document, pageURL string) []models.RawCandidate {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = &url.URL{}
	}

	for _, s := range e.strategies {
		found := s.Find(doc, base)
		if e.observer != nil {
			e.observer(s.Name, len(found))
		}
		if len(found) == 0 {
			continue
		}
		for i := range found {
			found[i].Strategy = s.Name
		}
		return Dedup(found)
	}
	return nil
}

// Dedup keeps the first candidate per href, or per title when the href is
// only the page placeholder. Order is preserved.
func Dedup(candidates []models.RawCandidate) []models.RawCandidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]models.RawCandidate, 0, len(candidates))
	for _, c := range candidates {
		key := dedupKey(c)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func dedupKey(c models.RawCandidate) string {
	if c.Href != "" && !c.Placeholder {
		return "href:" + c.Href
	}
	if title := strings.ToLower(collapseSpace(c.AnchorText)); title != "" {
		return "title:" + title
	}
	return ""
}
