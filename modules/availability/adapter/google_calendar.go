package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"riq-studio-api/core/constants"
	"riq-studio-api/core/logger"
	"riq-studio-api/modules/availability/entity"
)

// GoogleCalendarAdapter derives availability facts from the per-studio
// Google calendars. Every event that maps onto one of the fixed booking
// slots becomes an available=true fact for that slot.
type GoogleCalendarAdapter struct {
	apiKey    string
	calendars map[string]string // studio ID -> calendar ID
	baseURL   string
	client    *http.Client
}

func NewGoogleCalendarAdapter(apiKey, studioCCalendarID, studioDCalendarID string, timeout time.Duration) *GoogleCalendarAdapter {
	calendars := make(map[string]string)
	if studioCCalendarID != "" {
		calendars[entity.StudioC] = studioCCalendarID
	}
	if studioDCalendarID != "" {
		calendars[entity.StudioD] = studioDCalendarID
	}

	return &GoogleCalendarAdapter{
		apiKey:    apiKey,
		calendars: calendars,
		baseURL:   constants.GoogleCalendarAPIBase,
		client:    &http.Client{Timeout: timeout},
	}
}

// SetBaseURL points the adapter at a different API host. Used in tests.
func (a *GoogleCalendarAdapter) SetBaseURL(u string) {
	a.baseURL = u
}

func (a *GoogleCalendarAdapter) Source() string {
	return entity.SourceCalendar
}

func (a *GoogleCalendarAdapter) Fetch(ctx context.Context, from, to time.Time) ([]entity.AvailabilityFact, error) {
	var facts []entity.AvailabilityFact

	for studioID, calendarID := range a.calendars {
		events, err := a.fetchEvents(ctx, calendarID, from, to)
		if err != nil {
			return nil, NewFetchError(entity.SourceCalendar, fmt.Errorf("studio %s: %w", studioID, err))
		}

		logger.Info("GoogleCalendarAdapter:Fetch", "studio_id", studioID, "events", len(events))

		for _, ev := range events {
			fact, ok := a.eventToFact(studioID, ev)
			if !ok {
				continue
			}
			facts = append(facts, fact)
		}
	}

	return facts, nil
}

type calendarEvent struct {
	ID      string            `json:"id"`
	Summary string            `json:"summary"`
	Start   calendarEventTime `json:"start"`
	End     calendarEventTime `json:"end"`
}

type calendarEventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

func (t calendarEventTime) parse() (time.Time, error) {
	if t.DateTime != "" {
		return time.Parse(time.RFC3339, t.DateTime)
	}
	if t.Date != "" {
		return time.Parse(entity.DateLayout, t.Date)
	}
	return time.Time{}, fmt.Errorf("event time missing both dateTime and date")
}

func (a *GoogleCalendarAdapter) fetchEvents(ctx context.Context, calendarID string, from, to time.Time) ([]calendarEvent, error) {
	params := url.Values{}
	params.Set("key", a.apiKey)
	params.Set("timeMin", from.UTC().Format(time.RFC3339))
	params.Set("timeMax", to.UTC().Format(time.RFC3339))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")
	params.Set("maxResults", fmt.Sprintf("%d", constants.GoogleCalendarMaxResults))

	reqURL := fmt.Sprintf("%s/calendars/%s/events?%s", a.baseURL, url.PathEscape(calendarID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Google Calendar API error: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Items []calendarEvent `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.Items, nil
}

func (a *GoogleCalendarAdapter) eventToFact(studioID string, ev calendarEvent) (entity.AvailabilityFact, bool) {
	start, err := ev.Start.parse()
	if err != nil {
		logger.Warn("GoogleCalendarAdapter:EventDropped", "event_id", ev.ID, "reason", "unparseable start", "error", err)
		return entity.AvailabilityFact{}, false
	}
	end, err := ev.End.parse()
	if err != nil {
		logger.Warn("GoogleCalendarAdapter:EventDropped", "event_id", ev.ID, "reason", "unparseable end", "error", err)
		return entity.AvailabilityFact{}, false
	}

	slot, ok := SlotForEvent(start, end)
	if !ok {
		logger.Debug("GoogleCalendarAdapter:EventSkipped", "event_id", ev.ID, "start", start, "end", end)
		return entity.AvailabilityFact{}, false
	}

	return entity.AvailabilityFact{
		Date:       entity.DateOnly(start),
		StudioID:   studioID,
		TimeSlotID: slot,
		Available:  true,
		Source:     entity.SourceCalendar,
		SyncStatus: entity.SyncStatusSynced,
	}, true
}

// SlotForEvent maps an event's hour range onto one of the fixed booking
// slots. Events fitting entirely inside a slot window map to it; events of
// four hours or more that span windows map by start hour (before 14 ->
// morning, before 19 -> afternoon, otherwise evening). Anything else does
// not represent a bookable session and is dropped.
func SlotForEvent(start, end time.Time) (string, bool) {
	startHour := start.Hour()
	endHour := end.Hour()

	switch {
	case startHour >= 10 && endHour <= 14:
		return entity.SlotMorning, true
	case startHour >= 15 && endHour <= 19:
		return entity.SlotAfternoon, true
	case startHour >= 19 && endHour <= 23:
		return entity.SlotEvening, true
	}

	if end.Sub(start) >= 4*time.Hour {
		switch {
		case startHour < 14:
			return entity.SlotMorning, true
		case startHour < 19:
			return entity.SlotAfternoon, true
		default:
			return entity.SlotEvening, true
		}
	}

	return "", false
}
