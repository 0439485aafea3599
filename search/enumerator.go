package search

import (
	"fmt"
	"net/url"
	"strings"

	"inventory_watch/config"
	"inventory_watch/models"
)

// Query keys understood by the dealer inventory pages. Repeated keys are
// treated by the sites as OR filters.
const (
	paramMake      = "make"
	paramModel     = "model"
	paramTrim      = "trim"
	paramColor     = "normalExteriorColor"
	paramBodyStyle = "normalBodyStyle"
)

// Enumerate expands locations x inventory kinds x model variants into fetch
// targets. Order is stable: locations as given, new before used, models as
// configured.
func Enumerate(locations []*config.LocationConfig, criteria config.CriteriaConfig) ([]models.SearchTarget, error) {
	if len(locations) == 0 {
		return nil, config.ErrNoLocations
	}
	if len(criteria.Models) == 0 {
		return nil, config.ErrNoModels
	}

	var targets []models.SearchTarget
	for _, loc := range locations {
		for _, kind := range models.InventoryKinds {
			base := baseURLFor(loc, kind)
			if base == "" {
				continue
			}
			for _, model := range criteria.Models {
				u, err := BuildURL(base, criteria, model)
				if err != nil {
					return nil, fmt.Errorf("location %s: %w", loc.ID, err)
				}
				targets = append(targets, models.SearchTarget{
					LocationID:    loc.ID,
					LocationName:  loc.Name,
					LocationLabel: loc.Location,
					Kind:          kind,
					BaseURL:       base,
					Model:         model,
					URL:           u,
				})
			}
		}
	}
	return targets, nil
}

func baseURLFor(loc *config.LocationConfig, kind models.InventoryKind) string {
	switch kind {
	case models.InventoryNew:
		return loc.NewURL
	case models.InventoryUsed:
		return loc.UsedURL
	}
	return ""
}

// BuildURL appends the search criteria for one model variant to base.
func BuildURL(base string, criteria config.CriteriaConfig, model string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}

	var parts []string
	if u.RawQuery != "" {
		parts = append(parts, u.RawQuery)
	}
	add := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			parts = append(parts, key+"="+escape(value))
		}
	}

	add(paramMake, criteria.Make)
	add(paramModel, model)
	for _, trim := range criteria.Trims {
		add(paramTrim, trim)
	}
	for _, color := range splitValues(criteria.Color) {
		add(paramColor, color)
	}
	for _, body := range splitValues(criteria.BodyStyle) {
		add(paramBodyStyle, body)
	}

	u.RawQuery = strings.Join(parts, "&")
	return u.String(), nil
}

// FamilyKeyword is the word identifying a model family, e.g. "Civic" for
// "Civic Hybrid".
func FamilyKeyword(model string) string {
	fields := strings.Fields(model)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func escape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

func splitValues(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
