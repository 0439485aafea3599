package export

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory_watch/models"
)

func entry(id, dealer, url string, seen time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		VehicleRecord: models.VehicleRecord{
			Title:         "2024 Honda Civic (Sport)",
			Year:          models.IntPtr(2024),
			Make:          "Honda",
			Model:         models.StringPtr("Civic"),
			URL:           url,
			Dealership:    dealer,
			InventoryKind: models.InventoryNew,
		},
		ID:        id,
		FirstSeen: models.NewTimestamp(seen),
	}
}

func TestBuildDashboard(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	last := models.NewTimestamp(base.Add(time.Hour))
	doc := models.LedgerDocument{
		PreviousMatches: []models.LedgerEntry{
			entry("vin_A", "Leith Honda Raleigh", "https://a/1.htm", base),
			entry("vin_B", "Leith Honda Raleigh", "https://a/1.htm", base.Add(time.Minute)),
			entry("vin_C", "AutoPark Honda", "https://b/2.htm", base.Add(48*time.Hour)),
		},
		LastSearch:    &last,
		TotalSearches: 14,
	}

	d := BuildDashboard(doc, base.Add(72*time.Hour))

	require.Len(t, d.Matches, 2)
	assert.Equal(t, "vin_C", d.Matches[0].ID, "newest first")
	assert.Equal(t, "vin_A", d.Matches[1].ID, "first occurrence wins")
	assert.Equal(t, 2, d.VehiclesTracked)
	assert.Equal(t, 2, d.DealershipsCount)
	assert.Equal(t, 14, d.TotalSearches)
	assert.Equal(t, priceUnavailable, d.Matches[0].Price)
	require.NotNil(t, d.LastSearch)
	assert.True(t, d.LastSearch.Equal(last.Time))
}

func TestBuildDashboard_EmptyLedger(t *testing.T) {
	d := BuildDashboard(models.NewLedgerDocument(), time.Now())
	assert.Nil(t, d.LastSearch)
	assert.NotNil(t, d.Matches)

	data, err := d.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"matches": []`)
}

type fakeUploader struct {
	key  string
	body []byte
	ct   string
}

func (f *fakeUploader) Upload(_ context.Context, key string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.key, f.body, f.ct = key, b, contentType
	return nil
}

func TestPublisher_WritesAndUploads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs", "data.json")
	up := &fakeUploader{}
	p := NewPublisher(path, up, "dashboard/data.json")

	doc := models.NewLedgerDocument()
	doc.PreviousMatches = append(doc.PreviousMatches,
		entry("vin_A", "Leith Honda Raleigh", "https://a/1.htm", time.Now()))

	d, err := p.Publish(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 1, d.VehiclesTracked)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.EqualValues(t, 1, onDisk["vehicles_tracked"])

	assert.Equal(t, "dashboard/data.json", up.key)
	assert.Equal(t, "application/json", up.ct)
	assert.JSONEq(t, string(raw), string(up.body))
}
