package dto

import "time"

// AvailabilityResponse is the per-date grid the booking UI renders.
// Slots absent from the store read as false: unknown means not bookable.
type AvailabilityResponse struct {
	Date    string          `json:"date"`
	StudioC map[string]bool `json:"studioC"`
	StudioD map[string]bool `json:"studioD"`
}

// CalendarEventRecord is one pre-normalized fact pushed by a
// calendar-reading client.
type CalendarEventRecord struct {
	Date       string `json:"date"`
	StudioID   string `json:"studio_id"`
	TimeSlotID string `json:"time_slot_id"`
	Available  bool   `json:"available"`
}

// SyncCalendarRequest is the POST /api/sync-calendar body.
type SyncCalendarRequest struct {
	Events []CalendarEventRecord `json:"events"`
}

// SyncResponse reports the outcome of a sync trigger.
type SyncResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	RecordsUpdated int    `json:"records_updated"`
}

// SyncStatusResponse summarizes the last reconciliation run and store size.
type SyncStatusResponse struct {
	LastSyncTime   *time.Time `json:"last_sync_time"`
	LastSyncStatus string     `json:"last_sync_status"`
	RecordsInDB    int        `json:"records_in_db"`
	LatestDate     *string    `json:"latest_date"`
}

// OverrideRequest is the admin manual-override body.
type OverrideRequest struct {
	Date       string `json:"date"`
	StudioID   string `json:"studio_id"`
	TimeSlotID string `json:"time_slot_id"`
	Available  bool   `json:"available"`
}

// OverrideResponse acknowledges an override.
type OverrideResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SiteSyncRequest is the POST /api/sync-recordco body. Zero values mean
// "from today, default window".
type SiteSyncRequest struct {
	StartDate string `json:"start_date"`
	Days      int    `json:"days"`
}

// ErrorResponse is the plain error body the availability API returns.
type ErrorResponse struct {
	Error string `json:"error"`
}
