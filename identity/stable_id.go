package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"inventory_watch/models"
)

// IDStrategy derives an identity for a record, or "" when it does not apply.
type IDStrategy interface {
	Name() string
	ID(rec models.VehicleRecord) string
}

// Chain tries each strategy in order; the first non-empty ID wins.
type Chain []IDStrategy

// DefaultChain is VIN, then URL slug, then title+price hash.
var DefaultChain = Chain{VINStrategy{}, URLStrategy{}, TitleHashStrategy{}}

func (c Chain) ID(rec models.VehicleRecord) string {
	for _, s := range c {
		if id := s.ID(rec); id != "" {
			return id
		}
	}
	return ""
}

// StableID is DefaultChain.ID.
func StableID(rec models.VehicleRecord) string {
	return DefaultChain.ID(rec)
}

type VINStrategy struct{}

func (VINStrategy) Name() string { return "vin" }

func (VINStrategy) ID(rec models.VehicleRecord) string {
	vin := strings.ToUpper(strings.TrimSpace(models.Deref(rec.VIN)))
	if vin == "" {
		return ""
	}
	return "vin_" + vin
}

// URLStrategy uses the last path segment of the vehicle URL, ignoring query
// and fragment. Page placeholder URLs are skipped.
type URLStrategy struct{}

func (URLStrategy) Name() string { return "url" }

func (URLStrategy) ID(rec models.VehicleRecord) string {
	if rec.URLIsPage {
		return ""
	}
	seg := LastSegment(rec.URL)
	if seg == "" {
		return ""
	}
	return "url_" + seg
}

func LastSegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		path = raw[:i]
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path
}

// TitleHashStrategy is the weakest signal: listings sharing a title and price
// collapse to one ID.
type TitleHashStrategy struct{}

func (TitleHashStrategy) Name() string { return "title" }

func (TitleHashStrategy) ID(rec models.VehicleRecord) string {
	return "title_" + Fingerprint(rec.Title+"_"+models.Deref(rec.Price))
}

// Fingerprint is the hex of the first 16 bytes of sha256(input).
func Fingerprint(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}
