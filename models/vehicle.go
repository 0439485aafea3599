package models

import "strings"

type InventoryKind string

const (
	InventoryNew  InventoryKind = "new"
	InventoryUsed InventoryKind = "used"
)

// InventoryKinds is the enumeration order used when expanding search targets.
var InventoryKinds = []InventoryKind{InventoryNew, InventoryUsed}

// SearchTarget is one page fetch: a dealership, an inventory kind and a model variant.
type SearchTarget struct {
	LocationID    string        `json:"location_id"`
	LocationName  string        `json:"location_name"`
	LocationLabel string        `json:"location_label"`
	Kind          InventoryKind `json:"kind"`
	BaseURL       string        `json:"base_url"`
	Model         string        `json:"model"`
	URL           string        `json:"url"`
}

// RawCandidate is an unvalidated extraction result from a single page.
type RawCandidate struct {
	AnchorText  string
	Href        string
	ContextText string // text of the enclosing listing element
	Markup      string // outer HTML of the listing card, or of the anchor's slice of a shared grid
	Price       string
	Strategy    string

	// Placeholder is set when Href is the page URL rather than a vehicle URL.
	Placeholder bool
}

// VehicleRecord is the canonical, typed form of a sighting. Optional fields are
// nil when the source page did not expose them.
type VehicleRecord struct {
	Title         string        `json:"title"`
	Year          *int          `json:"year,omitempty"`
	Make          string        `json:"make"`
	Model         *string       `json:"model,omitempty"`
	Trim          *string       `json:"trim,omitempty"`
	Color         *string       `json:"color,omitempty"`
	BodyStyle     *string       `json:"body_style,omitempty"`
	Price         *string       `json:"price,omitempty"`
	VIN           *string       `json:"vin,omitempty"`
	URL           string        `json:"url"`
	URLIsPage     bool          `json:"url_is_page,omitempty"`
	Dealership    string        `json:"dealership"`
	Location      string        `json:"location"`
	InventoryKind InventoryKind `json:"inventory_type"`
}

const (
	MinPlausibleYear = 2000
	MaxPlausibleYear = 2029
)

func PlausibleYear(y int) bool {
	return y >= MinPlausibleYear && y <= MaxPlausibleYear
}

// StringPtr returns nil for blank strings so absent values stay absent.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func IntPtr(i int) *int {
	return &i
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
