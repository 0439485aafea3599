package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is a vehicle as it looked the first time it was seen.
// Entries are never updated once written.
type LedgerEntry struct {
	VehicleRecord
	ID        string    `json:"id"`
	FirstSeen Timestamp `json:"first_seen"`
}

// UnmarshalJSON also reads entries written by older ledgers, which store the
// year as a string.
func (e *LedgerEntry) UnmarshalJSON(data []byte) error {
	type plain LedgerEntry
	aux := struct {
		*plain
		Year legacyYear `json:"year"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Year = aux.Year.value
	return nil
}

// legacyYear accepts a JSON number, a numeric string or null. Strings that are
// not a year decode to nil rather than failing the whole document.
type legacyYear struct {
	value *int
}

func (y *legacyYear) UnmarshalJSON(data []byte) error {
	var n *int
	if err := json.Unmarshal(data, &n); err == nil {
		y.value = n
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		y.value = &v
	}
	return nil
}

// SearchRun summarises one pipeline run in the ledger's search history.
type SearchRun struct {
	ID                        uuid.UUID `json:"id"`
	Timestamp                 Timestamp `json:"timestamp"`
	VehiclesFound             int       `json:"vehicles_found"`
	NewVehicles               int       `json:"new_vehicles"`
	NotificationsSent         bool      `json:"notifications_sent"`
	NoMatchesNotificationSent bool      `json:"no_matches_notification_sent"`
}

// LedgerDocument is the on-disk ledger, read and written as a whole.
type LedgerDocument struct {
	PreviousMatches            []LedgerEntry `json:"previous_matches"`
	LastSearch                 *Timestamp    `json:"last_search"`
	TotalSearches              int           `json:"total_searches"`
	NotificationsSent          int           `json:"notifications_sent"`
	NoMatchesNotificationsSent int           `json:"no_matches_notifications_sent"`
	LastNoMatchesNotification  *Timestamp    `json:"last_no_matches_notification,omitempty"`
	SearchHistory              []SearchRun   `json:"search_history"`
}

// MaxSearchHistory bounds LedgerDocument.SearchHistory.
const MaxSearchHistory = 100

func NewLedgerDocument() LedgerDocument {
	return LedgerDocument{
		PreviousMatches: []LedgerEntry{},
		SearchHistory:   []SearchRun{},
	}
}

// LedgerStats is the summary shown by the stats command.
type LedgerStats struct {
	TotalMatchesTracked        int
	TotalSearches              int
	NotificationsSent          int
	NoMatchesNotificationsSent int
	LastSearch                 *time.Time
	LastNoMatchesNotification  *time.Time
	DataFileSize               int64
}
