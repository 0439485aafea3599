package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Details is what a vehicle detail page adds to a listing sighting.
type Details struct {
	Price string            `json:"price,omitempty"`
	VIN   string            `json:"vin,omitempty"`
	Color string            `json:"color,omitempty"`
	Specs map[string]string `json:"specs,omitempty"`
}

var (
	priceLabel = regexp.MustCompile(`MSRP|Price`)
	specLabel  = regexp.MustCompile(`(?i)Engine|Transmission|MPG|Color|Drivetrain|Mileage`)
)

// ParseDetails reads price, VIN and "Label: value" specs from a detail page.
func ParseDetails(doc *goquery.Document) *Details {
	d := &Details{Specs: map[string]string{}}

	doc.Find("span, div, p, dd, td, li, strong").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		own := ownText(s)
		if !priceLabel.MatchString(own) {
			return true
		}
		if p := FindPrice(collapseSpace(s.Text())); p != "" {
			d.Price = p
			return false
		}
		if p := FindPrice(collapseSpace(s.Parent().Text())); p != "" {
			d.Price = p
			return false
		}
		return true
	})

	doc.Find("dt, dd, li").Each(func(_ int, s *goquery.Selection) {
		text := collapseSpace(s.Text())
		if !specLabel.MatchString(text) {
			return
		}
		key, value, ok := strings.Cut(text, ":")
		if !ok {
			return
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return
		}
		if _, exists := d.Specs[key]; !exists {
			d.Specs[key] = value
		}
	})

	for _, key := range []string{"exterior color", "exterior", "color"} {
		if value, ok := d.Specs[key]; ok {
			d.Color = value
			break
		}
	}

	markup, _ := doc.Html()
	d.VIN = FindVIN(markup)
	return d
}

func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String()
}
