package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"inventory_watch/logging"
	"inventory_watch/models"
)

// Dashboard is the document served to the static dashboard page.
type Dashboard struct {
	LastUpdated      time.Time  `json:"last_updated"`
	LastSearch       *time.Time `json:"last_search"`
	TotalSearches    int        `json:"total_searches"`
	VehiclesTracked  int        `json:"vehicles_tracked"`
	DealershipsCount int        `json:"dealerships_count"`
	Matches          []Match    `json:"matches"`
}

type Match struct {
	ID         string               `json:"id"`
	Title      string               `json:"title"`
	Year       *int                 `json:"year"`
	Make       string               `json:"make"`
	Model      string               `json:"model"`
	Trim       string               `json:"trim"`
	Color      string               `json:"color,omitempty"`
	Type       models.InventoryKind `json:"type"`
	Price      string               `json:"price"`
	FoundDate  time.Time            `json:"found_date"`
	Dealership string               `json:"dealership"`
	Location   string               `json:"location"`
	Link       string               `json:"link"`
}

const priceUnavailable = "Not available"

// BuildDashboard flattens the ledger into dashboard rows. Entries that share
// dealership, inventory kind and URL collapse to the earliest one; rows are
// ordered newest first.
func BuildDashboard(doc models.LedgerDocument, now time.Time) Dashboard {
	d := Dashboard{
		LastUpdated:   now,
		TotalSearches: doc.TotalSearches,
		Matches:       []Match{},
	}
	if doc.LastSearch != nil && !doc.LastSearch.IsZero() {
		t := doc.LastSearch.Time
		d.LastSearch = &t
	}

	seen := make(map[string]bool, len(doc.PreviousMatches))
	dealers := make(map[string]bool)
	for _, e := range doc.PreviousMatches {
		key := fmt.Sprintf("%s_%s_%s", e.Dealership, e.InventoryKind, e.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		if e.Dealership != "" {
			dealers[e.Dealership] = true
		}
		d.Matches = append(d.Matches, toMatch(e))
	}

	sort.SliceStable(d.Matches, func(i, j int) bool {
		return d.Matches[i].FoundDate.After(d.Matches[j].FoundDate)
	})
	d.VehiclesTracked = len(d.Matches)
	d.DealershipsCount = len(dealers)
	return d
}

func toMatch(e models.LedgerEntry) Match {
	price := models.Deref(e.Price)
	if price == "" {
		price = priceUnavailable
	}
	return Match{
		ID:         e.ID,
		Title:      e.Title,
		Year:       e.Year,
		Make:       e.Make,
		Model:      models.Deref(e.Model),
		Trim:       models.Deref(e.Trim),
		Color:      models.Deref(e.Color),
		Type:       e.InventoryKind,
		Price:      price,
		FoundDate:  e.FirstSeen.Time,
		Dealership: e.Dealership,
		Location:   e.Location,
		Link:       e.URL,
	}
}

func (d Dashboard) Encode() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// WriteFile writes the dashboard to path through a temp file and rename.
func WriteFile(path string, d Dashboard) error {
	data, err := d.Encode()
	if err != nil {
		return fmt.Errorf("encode dashboard: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dashboard dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write dashboard: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close dashboard: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Uploader puts an object into remote storage.
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

// Publisher writes the dashboard locally and, with an uploader, mirrors it to
// object storage. Either target may be disabled by leaving it empty.
type Publisher struct {
	path     string
	uploader Uploader
	key      string
	now      func() time.Time
}

func NewPublisher(path string, uploader Uploader, key string) *Publisher {
	return &Publisher{path: path, uploader: uploader, key: key, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, doc models.LedgerDocument) (Dashboard, error) {
	d := BuildDashboard(doc, p.now())

	if p.path != "" {
		if err := WriteFile(p.path, d); err != nil {
			return d, err
		}
		logging.Debugf("dashboard written to %s (%d vehicles)", p.path, d.VehiclesTracked)
	}

	if p.uploader != nil && p.key != "" {
		data, err := d.Encode()
		if err != nil {
			return d, fmt.Errorf("encode dashboard: %w", err)
		}
		if err := p.uploader.Upload(ctx, p.key, bytes.NewReader(data), "application/json"); err != nil {
			return d, fmt.Errorf("upload dashboard: %w", err)
		}
		logging.Debugf("dashboard uploaded to %s", p.key)
	}
	return d, nil
}
