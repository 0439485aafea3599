package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"inventory_watch/extract"
	"inventory_watch/models"
	"inventory_watch/search"
)

var (
	textYear = regexp.MustCompile(`\b(20[0-2]\d)\b`)
	pathYear = regexp.MustCompile(`(?:^|[^0-9])(20[0-2]\d)(?:[^0-9]|$)`)
)

const minTitleLength = 8

var pathWords = strings.NewReplacer("-", " ", "_", " ", "/", " ", "+", " ")

// Source is the call context stamped onto every record.
type Source struct {
	Dealership string
	Location   string
	Kind       models.InventoryKind
	Model      string // searched variant; its family labels generic titles
}

// Normalizer turns raw candidates into typed records for one make.
type Normalizer struct {
	Make   string
	Models []string // acceptable variants, e.g. "Civic Hybrid", "Civic"
	Trims  []string
}

func New(mk string, variants, trims []string) *Normalizer {
	n := &Normalizer{Make: mk}
	n.Models = longestFirst(variants)
	n.Trims = longestFirst(trims)
	return n
}

// Normalize never fails; fields the candidate does not expose stay nil.
func (n *Normalizer) Normalize(c models.RawCandidate, src Source) models.VehicleRecord {
	rec := models.VehicleRecord{
		Make:          n.Make,
		URL:           c.Href,
		URLIsPage:     c.Placeholder,
		Dealership:    src.Dealership,
		Location:      src.Location,
		InventoryKind: src.Kind,
	}

	var u *url.URL
	if !c.Placeholder && c.Href != "" {
		u, _ = url.Parse(c.Href)
	}

	structured := false
	queryYear := ""
	if u != nil {
		q := u.Query()
		if mk := firstNonEmpty(q["make"]); mk != "" {
			rec.Make = mk
		}
		if model := pickModel(q["model"], n.family(src)); model != "" {
			rec.Model = models.StringPtr(model)
			structured = true
		}
		if trims := nonEmpty(q["trim"]); len(trims) > 0 {
			rec.Trim = models.StringPtr(strings.Join(trims, ", "))
		}
		rec.Color = models.StringPtr(firstNonEmpty(q["normalExteriorColor"], q["color"]))
		rec.BodyStyle = models.StringPtr(firstNonEmpty(q["normalBodyStyle"], q["bodyStyle"]))
		queryYear = q.Get("year")
	}

	slug := ""
	if u != nil {
		slug = pathWords.Replace(u.Path)
	}
	if rec.Model == nil {
		rec.Model = models.StringPtr(firstMatch(n.Models, c.AnchorText, slug))
	}
	if rec.Trim == nil {
		rec.Trim = models.StringPtr(firstMatch(n.Trims, c.AnchorText, slug))
	}

	rec.Year = n.year(queryYear, c.AnchorText, u)
	if rec.Year != nil && rec.Model != nil {
		structured = true
	}
	rec.Price = models.StringPtr(n.price(c))
	rec.VIN = models.StringPtr(n.vin(c))
	rec.Title = n.title(rec, c.AnchorText, n.family(src), structured)
	return rec
}

// pickModel prefers the query value naming the searched family.
func pickModel(values []string, family string) string {
	values = nonEmpty(values)
	family = strings.ToLower(family)
	for _, v := range values {
		if family != "" && strings.Contains(strings.ToLower(v), family) {
			return v
		}
	}
	if len(values) > 0 {
		return values[0]
	}
	return ""
}

// Family is the generic model label used when a source names no variant, e.g.
// "Civic".
func (n *Normalizer) Family() string {
	shortest := ""
	for _, m := range n.Models {
		if f := search.FamilyKeyword(m); f != "" && (shortest == "" || len(f) < len(shortest)) {
			shortest = f
		}
	}
	return shortest
}

func (n *Normalizer) family(src Source) string {
	if f := search.FamilyKeyword(src.Model); f != "" {
		return f
	}
	return n.Family()
}

// year prefers an explicit query value, then the anchor text, then the URL path.
func (n *Normalizer) year(query, text string, u *url.URL) *int {
	if y, err := strconv.Atoi(strings.TrimSpace(query)); err == nil && models.PlausibleYear(y) {
		return models.IntPtr(y)
	}
	if m := textYear.FindStringSubmatch(text); m != nil {
		if y, _ := strconv.Atoi(m[1]); models.PlausibleYear(y) {
			return models.IntPtr(y)
		}
	}
	if u != nil {
		if m := pathYear.FindStringSubmatch(u.Path); m != nil {
			if y, _ := strconv.Atoi(m[1]); models.PlausibleYear(y) {
				return models.IntPtr(y)
			}
		}
	}
	return nil
}

func (n *Normalizer) price(c models.RawCandidate) string {
	if c.Price != "" {
		return c.Price
	}
	if p := extract.FindPrice(c.ContextText); p != "" {
		return p
	}
	return extract.FindPrice(c.AnchorText)
}

func (n *Normalizer) vin(c models.RawCandidate) string {
	text := c.Markup
	if !c.Placeholder {
		text += " " + c.Href
	}
	return extract.FindVIN(text)
}

// title builds "<year> <make> <model> (<trim>) in <color>" when enough
// structured fields were recovered, else uses the anchor text, else
// "<make> <model>".
func (n *Normalizer) title(rec models.VehicleRecord, anchor, family string, structured bool) string {
	if structured {
		var parts []string
		if rec.Year != nil {
			parts = append(parts, strconv.Itoa(*rec.Year))
		}
		parts = append(parts, rec.Make, models.Deref(rec.Model))
		if rec.Trim != nil {
			parts = append(parts, fmt.Sprintf("(%s)", *rec.Trim))
		}
		if rec.Color != nil {
			parts = append(parts, "in "+*rec.Color)
		}
		if t := strings.Join(strings.Fields(strings.Join(parts, " ")), " "); t != "" {
			return t
		}
	}

	anchor = strings.Join(strings.Fields(anchor), " ")
	if !trivial(anchor) {
		return anchor
	}

	generic := strings.TrimSpace(rec.Make + " " + family)
	if generic == "" {
		return "Vehicle"
	}
	return generic
}

// trivial reports whether anchor text is too thin to stand alone as a title,
// e.g. a single badge word like "Hybrid".
func trivial(s string) bool {
	return len(strings.Fields(s)) < 2 || len(s) < minTitleLength
}

func firstMatch(candidates []string, texts ...string) string {
	for _, text := range texts {
		if m := matchWord(text, candidates); m != "" {
			return m
		}
	}
	return ""
}

// matchWord returns the first candidate found in text as a whole word,
// case-insensitively. Candidates are expected longest first.
func matchWord(text string, candidates []string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		p := `(?i)\b` + strings.ReplaceAll(regexp.QuoteMeta(c), " ", `\s+`) + `\b`
		if regexp.MustCompile(p).MatchString(text) {
			return c
		}
	}
	return ""
}

func longestFirst(values []string) []string {
	out := nonEmpty(values)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstNonEmpty(lists ...[]string) string {
	for _, l := range lists {
		if v := nonEmpty(l); len(v) > 0 {
			return v[0]
		}
	}
	return ""
}
