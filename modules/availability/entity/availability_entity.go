package entity

import (
	"fmt"
	"time"
)

// Studio identifiers. The business rents two rooms at the Record Co.
const (
	StudioC = "C"
	StudioD = "D"
)

// Time slot identifiers. Each slot is a fixed 4-hour booking window:
// morning 10:30-14:30, afternoon 15:00-19:00, evening 19:30-23:30.
const (
	SlotMorning   = "morning"
	SlotAfternoon = "afternoon"
	SlotEvening   = "evening"
)

// Provenance tags for availability facts.
const (
	SourceDefault  = "default"
	SourceRecordCo = "recordco"
	SourceCalendar = "calendar"
	SourceManual   = "manual"
)

// Sync status tags describing how a fact was last written.
const (
	SyncStatusDefault        = "default"
	SyncStatusSynced         = "synced"
	SyncStatusManualOverride = "manual_override"
)

// Sync log outcomes.
const (
	SyncLogSuccess = "success"
	SyncLogError   = "error"
	SyncLogPartial = "partial"
)

// DateLayout is the wire format for calendar dates throughout the API.
const DateLayout = "2006-01-02"

func Studios() []string {
	return []string{StudioC, StudioD}
}

func Slots() []string {
	return []string{SlotMorning, SlotAfternoon, SlotEvening}
}

func ValidStudio(id string) bool {
	return id == StudioC || id == StudioD
}

func ValidSlot(id string) bool {
	return id == SlotMorning || id == SlotAfternoon || id == SlotEvening
}

// ParseDate parses a YYYY-MM-DD string into a midnight-UTC time. All date
// comparisons in the engine are on calendar-date granularity.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// DateOnly truncates a timestamp to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AvailabilityFact is the authoritative availability record for one
// (date, studio, slot) key.
type AvailabilityFact struct {
	ID          int64     `db:"id" json:"-"`
	Date        time.Time `db:"date" json:"date"`
	StudioID    string    `db:"studio_id" json:"studio_id"`
	TimeSlotID  string    `db:"time_slot_id" json:"time_slot_id"`
	Available   bool      `db:"available" json:"available"`
	Source      string    `db:"source" json:"source"`
	LastUpdated time.Time `db:"last_updated" json:"last_updated"`
	SyncStatus  string    `db:"sync_status" json:"sync_status"`
}

// Key returns the upsert key for the fact.
func (f *AvailabilityFact) Key() string {
	return fmt.Sprintf("%s/%s/%s", f.Date.Format(DateLayout), f.StudioID, f.TimeSlotID)
}

// SyncLog is one append-only audit row per reconciliation run.
type SyncLog struct {
	ID             int64     `db:"id" json:"id"`
	SyncTime       time.Time `db:"sync_time" json:"sync_time"`
	Status         string    `db:"status" json:"status"`
	RecordsUpdated int       `db:"records_updated" json:"records_updated"`
	Errors         *string   `db:"errors" json:"errors"`
	Details        string    `db:"details" json:"details"`
}
