package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"inventory_watch/identity"
	"inventory_watch/logging"
	"inventory_watch/models"
)

// No-matches notification frequencies.
const (
	FrequencyNever  = "never"
	FrequencyAlways = "always"
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// Store owns the ledger document. Every mutation holds the in-process mutex
// and an exclusive lock on path+".lock", reloads the document from disk, and
// ends with a whole-document rewrite, so a CLI run and the daemon never undo
// each other's writes.
type Store struct {
	mu   sync.Mutex
	path string
	file *flock.Flock
	doc  models.LedgerDocument
	ids  map[string]bool
	now  func() time.Time
	id   func(models.VehicleRecord) string
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDChain(chain identity.Chain) Option {
	return func(s *Store) { s.id = chain.ID }
}

// Open loads the ledger at path. A missing file is an empty ledger; an
// unreadable or corrupt one is logged and replaced in memory by an empty
// ledger, leaving the file until the next save.
func Open(path string, opts ...Option) *Store {
	s := &Store{
		path: path,
		file: flock.New(path + ".lock"),
		doc:  models.NewLedgerDocument(),
		now:  time.Now,
		id:   identity.StableID,
	}
	for _, opt := range opts {
		opt(s)
	}

	if doc, ok := s.read(); ok {
		s.doc = doc
	}
	s.reindex()
	return s
}

// read loads the document from disk. ok is false when the file is missing or
// unusable, in which case the caller keeps what it has.
func (s *Store) read() (models.LedgerDocument, bool) {
	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		return models.LedgerDocument{}, false
	case err != nil:
		logging.Warnf("ledger %s unreadable, starting empty: %v", s.path, err)
		return models.LedgerDocument{}, false
	}

	var doc models.LedgerDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Warnf("ledger %s corrupt, starting empty: %v", s.path, err)
		return models.LedgerDocument{}, false
	}
	if doc.PreviousMatches == nil {
		doc.PreviousMatches = []models.LedgerEntry{}
	}
	if doc.SearchHistory == nil {
		doc.SearchHistory = []models.SearchRun{}
	}
	return doc, true
}

// locked runs fn under the cross-process file lock against a freshly loaded
// document. The caller holds s.mu.
func (s *Store) locked(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	if err := s.file.Lock(); err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	defer func() {
		if err := s.file.Unlock(); err != nil {
			logging.Warnf("ledger %s unlock failed: %v", s.path, err)
		}
	}()

	if doc, ok := s.read(); ok {
		s.doc = doc
		s.reindex()
	}
	return fn()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) reindex() {
	s.ids = make(map[string]bool, len(s.doc.PreviousMatches))
	for _, e := range s.doc.PreviousMatches {
		s.ids[e.ID] = true
	}
}

// ID returns the stable identity the store uses for rec.
func (s *Store) ID(rec models.VehicleRecord) string {
	return s.id(rec)
}

// NewVehicles returns entries for the records whose ID is not yet in the
// ledger, stamped with an ID and first-seen time. Duplicates within the batch
// are reported once. The ledger is not modified.
func (s *Store) NewVehicles(records []models.VehicleRecord) []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.LedgerEntry
	if err := s.locked(func() error {
		out = s.novel(records)
		return nil
	}); err != nil {
		logging.Warnf("ledger %s: %v", s.path, err)
		out = s.novel(records)
	}
	return out
}

func (s *Store) novel(records []models.VehicleRecord) []models.LedgerEntry {
	now := models.NewTimestamp(s.now())
	batch := make(map[string]bool)
	var out []models.LedgerEntry
	for _, rec := range records {
		id := s.id(rec)
		if s.ids[id] || batch[id] {
			continue
		}
		batch[id] = true
		out = append(out, models.LedgerEntry{VehicleRecord: rec, ID: id, FirstSeen: now})
	}
	return out
}

// Add appends entries whose IDs are still unseen and saves. Entries already
// present are ignored, never updated.
func (s *Store) Add(entries []models.LedgerEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	err := s.locked(func() error {
		for _, e := range entries {
			if e.ID == "" {
				e.ID = s.id(e.VehicleRecord)
			}
			if e.FirstSeen.IsZero() {
				e.FirstSeen = models.NewTimestamp(s.now())
			}
			if s.ids[e.ID] {
				continue
			}
			s.ids[e.ID] = true
			s.doc.PreviousMatches = append(s.doc.PreviousMatches, e)
			added++
		}
		if added == 0 {
			return nil
		}
		return s.save()
	})
	return added, err
}

// Merge computes novelty and appends the novel entries in one critical section.
func (s *Store) Merge(records []models.VehicleRecord) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []models.LedgerEntry
	err := s.locked(func() error {
		fresh = s.novel(records)
		if len(fresh) == 0 {
			return nil
		}
		for _, e := range fresh {
			s.ids[e.ID] = true
		}
		s.doc.PreviousMatches = append(s.doc.PreviousMatches, fresh...)
		return s.save()
	})
	return fresh, err
}

// RunSummary is what a pipeline run reports for bookkeeping.
type RunSummary struct {
	VehiclesFound             int
	NewVehicles               int
	NotificationsSent         bool
	NoMatchesNotificationSent bool
}

// RecordRun updates the search counters and appends to the capped history.
func (s *Store) RecordRun(sum RunSummary) (models.SearchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := models.NewTimestamp(s.now())
	run := models.SearchRun{
		ID:                        uuid.New(),
		Timestamp:                 now,
		VehiclesFound:             sum.VehiclesFound,
		NewVehicles:               sum.NewVehicles,
		NotificationsSent:         sum.NotificationsSent,
		NoMatchesNotificationSent: sum.NoMatchesNotificationSent,
	}

	err := s.locked(func() error {
		s.doc.LastSearch = &now
		s.doc.TotalSearches++
		if sum.NotificationsSent {
			s.doc.NotificationsSent++
		}
		if sum.NoMatchesNotificationSent {
			s.doc.NoMatchesNotificationsSent++
			s.doc.LastNoMatchesNotification = &now
		}

		s.doc.SearchHistory = append(s.doc.SearchHistory, run)
		if n := len(s.doc.SearchHistory); n > models.MaxSearchHistory {
			s.doc.SearchHistory = append([]models.SearchRun(nil), s.doc.SearchHistory[n-models.MaxSearchHistory:]...)
		}
		return s.save()
	})
	return run, err
}

// Prune drops entries first seen before now-retention, and entries with no
// first-seen time. It saves only when something was removed.
func (s *Store) Prune(retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-retention)
	removed := 0
	err := s.locked(func() error {
		kept := s.doc.PreviousMatches[:0:0]
		for _, e := range s.doc.PreviousMatches {
			if !e.FirstSeen.IsZero() && e.FirstSeen.After(cutoff) {
				kept = append(kept, e)
			}
		}

		removed = len(s.doc.PreviousMatches) - len(kept)
		if removed == 0 {
			return nil
		}
		s.doc.PreviousMatches = kept
		s.reindex()
		return s.save()
	})
	return removed, err
}

// ShouldSendNoMatchesNotification applies the never/always/daily/weekly policy
// against the last no-matches notification time.
func (s *Store) ShouldSendNoMatchesNotification(frequency string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch frequency {
	case FrequencyNever:
		return false
	case FrequencyAlways:
		return true
	}

	if err := s.locked(func() error { return nil }); err != nil {
		logging.Warnf("ledger %s: %v", s.path, err)
	}
	last := s.doc.LastNoMatchesNotification
	if last == nil || last.IsZero() {
		return true
	}
	elapsed := s.now().Sub(last.Time)

	switch frequency {
	case FrequencyDaily:
		return elapsed >= 24*time.Hour
	case FrequencyWeekly:
		return elapsed >= 7*24*time.Hour
	}
	return false
}

func (s *Store) Stats() models.LedgerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.LedgerStats{
		TotalMatchesTracked:        len(s.doc.PreviousMatches),
		TotalSearches:              s.doc.TotalSearches,
		NotificationsSent:          s.doc.NotificationsSent,
		NoMatchesNotificationsSent: s.doc.NoMatchesNotificationsSent,
	}
	if s.doc.LastSearch != nil {
		t := s.doc.LastSearch.Time
		stats.LastSearch = &t
	}
	if s.doc.LastNoMatchesNotification != nil {
		t := s.doc.LastNoMatchesNotification.Time
		stats.LastNoMatchesNotification = &t
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.DataFileSize = info.Size()
	}
	return stats
}

// RecentMatches returns entries first seen within the last days.
func (s *Store) RecentMatches(days int) []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().AddDate(0, 0, -days)
	var out []models.LedgerEntry
	for _, e := range s.doc.PreviousMatches {
		if !e.FirstSeen.IsZero() && e.FirstSeen.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns a copy of the ledger entries in insertion order.
func (s *Store) Entries() []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LedgerEntry(nil), s.doc.PreviousMatches...)
}

// Document returns a copy of the whole document.
func (s *Store) Document() models.LedgerDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.doc
	doc.PreviousMatches = append([]models.LedgerEntry{}, s.doc.PreviousMatches...)
	doc.SearchHistory = append([]models.SearchRun{}, s.doc.SearchHistory...)
	return doc
}

// Export writes the document to filename, or to a timestamped file in the
// ledger's directory when filename is empty.
func (s *Store) Export(filename string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if filename == "" {
		filename = filepath.Join(filepath.Dir(s.path),
			fmt.Sprintf("inventory_watch_export_%s.json", s.now().Format("20060102_150405")))
	}
	if err := writeJSON(filename, s.doc); err != nil {
		return "", fmt.Errorf("export ledger: %w", err)
	}
	return filename, nil
}

// Reset clears all history and counters.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.locked(func() error {
		s.doc = models.NewLedgerDocument()
		s.reindex()
		return s.save()
	})
}

func (s *Store) save() error {
	if err := writeJSON(s.path, s.doc); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// writeJSON replaces path via a temp file and rename so readers never see a
// truncated document.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
