package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"riq-studio-api/core/cache"
	"riq-studio-api/core/errors"
	"riq-studio-api/core/logger"
	"riq-studio-api/core/utils"
	"riq-studio-api/modules/availability/adapter"
	"riq-studio-api/modules/availability/dto"
	"riq-studio-api/modules/availability/entity"
	"riq-studio-api/modules/availability/repository"
)

// AvailabilityService is the reconciliation engine: it merges candidate
// facts from the source adapters and manual overrides into the store with
// last-writer-wins semantics, and decides when a read needs a refresh.
//
// Precedence is a caller contract, not engine logic: callers apply batches
// in priority order (defaults, then external sync, then manual overrides)
// so the later write wins for a shared key. The engine never ranks sources.
type AvailabilityService interface {
	Reconcile(ctx context.Context, facts []entity.AvailabilityFact) (int, error)
	EnsureFresh(ctx context.Context, date time.Time) ([]entity.AvailabilityFact, error)
	GetAvailability(ctx context.Context, date time.Time) (*dto.AvailabilityResponse, error)
	ManualOverride(ctx context.Context, date time.Time, studioID, slotID string, available bool) error
	ClearDate(ctx context.Context, date time.Time) error
	SyncFromEvents(ctx context.Context, events []dto.CalendarEventRecord) (int, error)
	RunCalendarSync(ctx context.Context) (int, error)
	RunSiteSync(ctx context.Context, start time.Time, days int) (int, error)
	PruneOldFacts(ctx context.Context) (int64, error)
	GetSyncStatus(ctx context.Context) (*dto.SyncStatusResponse, error)
	FormatForResponse(date time.Time, facts []entity.AvailabilityFact) *dto.AvailabilityResponse
}

// Options tunes the engine. Zero values fall back to the documented
// defaults.
type Options struct {
	Staleness     time.Duration // default 1 hour
	WindowDays    int           // scheduled sync lookahead, default 30
	RetentionDays int           // prune horizon, default 90
	Clock         Clock
}

type availabilityService struct {
	repo     repository.AvailabilityRepository
	calendar adapter.SourceAdapter
	site     adapter.SourceAdapter
	cache    cache.Cache
	defaults *DefaultRuleGenerator
	clock    Clock

	staleness     time.Duration
	windowDays    int
	retentionDays int
}

func NewAvailabilityService(
	repo repository.AvailabilityRepository,
	calendar adapter.SourceAdapter,
	site adapter.SourceAdapter,
	c cache.Cache,
	opts Options,
) AvailabilityService {
	if opts.Staleness <= 0 {
		opts.Staleness = time.Hour
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 30
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 90
	}
	if opts.Clock == nil {
		opts.Clock = NewRealClock()
	}

	return &availabilityService{
		repo:          repo,
		calendar:      calendar,
		site:          site,
		cache:         c,
		defaults:      NewDefaultRuleGenerator(),
		clock:         opts.Clock,
		staleness:     opts.Staleness,
		windowDays:    opts.WindowDays,
		retentionDays: opts.RetentionDays,
	}
}

// ===================== Reconciliation =====================

func (s *availabilityService) Reconcile(ctx context.Context, facts []entity.AvailabilityFact) (int, error) {
	return s.reconcile(ctx, facts, "reconcile")
}

// reconcile applies one batch as an all-or-nothing unit. Within the batch
// the last fact for a key wins; across batches the later call wins. Every
// run appends exactly one sync log row.
func (s *availabilityService) reconcile(ctx context.Context, facts []entity.AvailabilityFact, trigger string) (int, error) {
	now := s.clock.Now()

	batch := make([]entity.AvailabilityFact, len(facts))
	copy(batch, facts)
	for i := range batch {
		batch[i].Date = entity.DateOnly(batch[i].Date)
		batch[i].LastUpdated = now
		if batch[i].SyncStatus == "" {
			batch[i].SyncStatus = entity.SyncStatusSynced
		}
	}

	updated, err := s.repo.UpsertFacts(ctx, batch)
	if err != nil {
		s.logSync(ctx, entity.SyncLogError, 0, err.Error(), trigger)
		return 0, errors.NewAppError(errors.ErrStoreWrite, "availability batch write failed", err)
	}

	s.logSync(ctx, entity.SyncLogSuccess, updated, "", trigger)
	s.invalidateDates(ctx, batch)

	logger.Info("AvailabilityService:Reconcile", "trigger", trigger, "records_updated", updated)
	return updated, nil
}

// EnsureFresh returns the facts for a date, generating defaults when the
// date has never been written and attempting one calendar refresh when the
// newest fact is older than the staleness threshold. A failed refresh falls
// back to the stale data; reads never fail on adapter errors.
func (s *availabilityService) EnsureFresh(ctx context.Context, date time.Time) ([]entity.AvailabilityFact, error) {
	date = entity.DateOnly(date)

	facts, err := s.repo.GetFactsByDate(ctx, date)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to read availability", err)
	}

	if len(facts) == 0 {
		if _, err := s.reconcile(ctx, s.defaults.Generate(date), "defaults"); err != nil {
			return nil, err
		}
		facts, err = s.repo.GetFactsByDate(ctx, date)
		if err != nil {
			return nil, errors.NewAppError(errors.ErrInternalServer, "failed to read availability", err)
		}
		return facts, nil
	}

	newest := facts[0].LastUpdated
	for _, f := range facts[1:] {
		if f.LastUpdated.After(newest) {
			newest = f.LastUpdated
		}
	}

	if s.clock.Now().Sub(newest) > s.staleness {
		refreshed, ferr := s.calendar.Fetch(ctx, date, date.AddDate(0, 0, 1))
		if ferr != nil {
			logger.Warn("AvailabilityService:EnsureFresh:RefreshFailed",
				"date", date.Format(entity.DateLayout), "error", ferr)
			s.logSync(ctx, entity.SyncLogError, 0, ferr.Error(), "on-demand refresh")
			return facts, nil
		}
		if len(refreshed) > 0 {
			if _, err := s.reconcile(ctx, refreshed, "on-demand refresh"); err != nil {
				return nil, err
			}
			facts, err = s.repo.GetFactsByDate(ctx, date)
			if err != nil {
				return nil, errors.NewAppError(errors.ErrInternalServer, "failed to read availability", err)
			}
		}
	}

	return facts, nil
}

func (s *availabilityService) GetAvailability(ctx context.Context, date time.Time) (*dto.AvailabilityResponse, error) {
	date = entity.DateOnly(date)
	key := cacheKey(date)

	if cached, err := s.cache.Get(ctx, key); err == nil {
		var resp dto.AvailabilityResponse
		if jsonErr := json.Unmarshal([]byte(cached), &resp); jsonErr == nil {
			return &resp, nil
		}
	}

	facts, err := s.EnsureFresh(ctx, date)
	if err != nil {
		return nil, err
	}

	resp := s.FormatForResponse(date, facts)

	if payload, jsonErr := json.Marshal(resp); jsonErr == nil {
		if cacheErr := s.cache.Set(ctx, key, string(payload), s.staleness); cacheErr != nil {
			logger.Warn("AvailabilityService:GetAvailability:CacheSet", "error", cacheErr)
		}
	}

	return resp, nil
}

// ManualOverride writes one manually-set fact. It is durable until the next
// write to the same key, whatever its source.
func (s *availabilityService) ManualOverride(ctx context.Context, date time.Time, studioID, slotID string, available bool) error {
	if !entity.ValidStudio(studioID) {
		return errors.NewAppError(errors.ErrInvalidInput, fmt.Sprintf("unknown studio_id %q", studioID), nil)
	}
	if !entity.ValidSlot(slotID) {
		return errors.NewAppError(errors.ErrInvalidInput, fmt.Sprintf("unknown time_slot_id %q", slotID), nil)
	}

	fact := entity.AvailabilityFact{
		Date:       entity.DateOnly(date),
		StudioID:   studioID,
		TimeSlotID: slotID,
		Available:  available,
		Source:     entity.SourceManual,
		SyncStatus: entity.SyncStatusManualOverride,
	}

	if _, err := s.reconcile(ctx, []entity.AvailabilityFact{fact}, "manual override"); err != nil {
		return err
	}

	logger.Info("AvailabilityService:ManualOverride",
		"date", fact.Date.Format(entity.DateLayout),
		"studio_id", studioID, "time_slot_id", slotID, "available", available)
	return nil
}

// ClearDate removes every fact for a date. Used before reloading
// calendar-sourced facts so slots the calendar no longer lists do not
// linger as available.
func (s *availabilityService) ClearDate(ctx context.Context, date time.Time) error {
	date = entity.DateOnly(date)
	if err := s.repo.DeleteFactsByDate(ctx, date); err != nil {
		return errors.NewAppError(errors.ErrStoreWrite, "failed to clear availability", err)
	}
	if err := s.cache.Delete(ctx, cacheKey(date)); err != nil {
		logger.Warn("AvailabilityService:ClearDate:CacheDelete", "error", err)
	}
	return nil
}

// SyncFromEvents reconciles pre-normalized calendar records pushed by a
// client. The whole request is validated before the engine runs; a bad
// record rejects the batch.
func (s *availabilityService) SyncFromEvents(ctx context.Context, events []dto.CalendarEventRecord) (int, error) {
	facts := make([]entity.AvailabilityFact, 0, len(events))
	for i, ev := range events {
		date, err := entity.ParseDate(ev.Date)
		if err != nil {
			return 0, errors.NewAppError(errors.ErrInvalidInput, fmt.Sprintf("event %d: %v", i, err), err)
		}
		if !entity.ValidStudio(ev.StudioID) {
			return 0, errors.NewAppError(errors.ErrInvalidInput, fmt.Sprintf("event %d: unknown studio_id %q", i, ev.StudioID), nil)
		}
		if !entity.ValidSlot(ev.TimeSlotID) {
			return 0, errors.NewAppError(errors.ErrInvalidInput, fmt.Sprintf("event %d: unknown time_slot_id %q", i, ev.TimeSlotID), nil)
		}

		facts = append(facts, entity.AvailabilityFact{
			Date:       date,
			StudioID:   ev.StudioID,
			TimeSlotID: ev.TimeSlotID,
			Available:  ev.Available,
			Source:     entity.SourceCalendar,
			SyncStatus: entity.SyncStatusSynced,
		})
	}

	return s.reconcile(ctx, facts, "calendar push")
}

// RunCalendarSync is one full scheduled pass: fetch the calendar window,
// clear each reported date, then reconcile the batch.
func (s *availabilityService) RunCalendarSync(ctx context.Context) (int, error) {
	runID := utils.GenerateID()
	from := entity.DateOnly(s.clock.Now())
	to := from.AddDate(0, 0, s.windowDays)

	logger.Info("AvailabilityService:RunCalendarSync:Start",
		"run_id", runID,
		"from", from.Format(entity.DateLayout),
		"to", to.Format(entity.DateLayout))

	facts, err := s.calendar.Fetch(ctx, from, to)
	if err != nil {
		logger.Error("AvailabilityService:RunCalendarSync:FetchFailed", "run_id", runID, "error", err)
		s.logSync(ctx, entity.SyncLogError, 0, err.Error(), "scheduled calendar sync")
		return 0, errors.NewAppError(errors.ErrAdapterFetch, "calendar fetch failed", err)
	}

	for _, date := range uniqueDates(facts) {
		if err := s.ClearDate(ctx, date); err != nil {
			return 0, err
		}
	}

	updated, err := s.reconcile(ctx, facts, "scheduled calendar sync")
	if err != nil {
		return 0, err
	}

	logger.Info("AvailabilityService:RunCalendarSync:Complete", "run_id", runID, "records_updated", updated)
	return updated, nil
}

// RunSiteSync reconciles the scraped Record Co grid for a window starting at
// start (today when zero).
func (s *availabilityService) RunSiteSync(ctx context.Context, start time.Time, days int) (int, error) {
	runID := utils.GenerateID()
	if start.IsZero() {
		start = s.clock.Now()
	}
	if days <= 0 {
		days = s.windowDays
	}
	from := entity.DateOnly(start)
	to := from.AddDate(0, 0, days)

	logger.Info("AvailabilityService:RunSiteSync:Start",
		"run_id", runID,
		"from", from.Format(entity.DateLayout),
		"days", days)

	facts, err := s.site.Fetch(ctx, from, to)
	if err != nil {
		logger.Error("AvailabilityService:RunSiteSync:FetchFailed", "run_id", runID, "error", err)
		s.logSync(ctx, entity.SyncLogError, 0, err.Error(), "recordco sync")
		return 0, errors.NewAppError(errors.ErrAdapterFetch, "recordco fetch failed", err)
	}

	return s.reconcile(ctx, facts, "recordco sync")
}

// PruneOldFacts deletes facts older than the retention horizon.
func (s *availabilityService) PruneOldFacts(ctx context.Context) (int64, error) {
	cutoff := entity.DateOnly(s.clock.Now()).AddDate(0, 0, -s.retentionDays)
	deleted, err := s.repo.DeleteFactsBefore(ctx, cutoff)
	if err != nil {
		return 0, errors.NewAppError(errors.ErrStoreWrite, "failed to prune availability", err)
	}
	if deleted > 0 {
		logger.Info("AvailabilityService:PruneOldFacts", "deleted", deleted, "cutoff", cutoff.Format(entity.DateLayout))
	}
	return deleted, nil
}

// ===================== Reads =====================

func (s *availabilityService) GetSyncStatus(ctx context.Context) (*dto.SyncStatusResponse, error) {
	last, err := s.repo.GetLastSyncLog(ctx)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to read sync log", err)
	}

	count, err := s.repo.CountFacts(ctx)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to count availability", err)
	}

	latest, err := s.repo.LatestDate(ctx)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to read latest date", err)
	}

	resp := &dto.SyncStatusResponse{
		LastSyncStatus: "never",
		RecordsInDB:    count,
	}
	if last != nil {
		t := last.SyncTime
		resp.LastSyncTime = &t
		resp.LastSyncStatus = last.Status
	}
	if latest != nil {
		d := latest.Format(entity.DateLayout)
		resp.LatestDate = &d
	}
	return resp, nil
}

// FormatForResponse builds the per-studio slot grid. Combinations absent
// from facts read as false.
func (s *availabilityService) FormatForResponse(date time.Time, facts []entity.AvailabilityFact) *dto.AvailabilityResponse {
	resp := &dto.AvailabilityResponse{
		Date:    entity.DateOnly(date).Format(entity.DateLayout),
		StudioC: make(map[string]bool, len(entity.Slots())),
		StudioD: make(map[string]bool, len(entity.Slots())),
	}

	for _, slot := range entity.Slots() {
		resp.StudioC[slot] = false
		resp.StudioD[slot] = false
	}

	for _, fact := range facts {
		switch fact.StudioID {
		case entity.StudioC:
			resp.StudioC[fact.TimeSlotID] = fact.Available
		case entity.StudioD:
			resp.StudioD[fact.TimeSlotID] = fact.Available
		}
	}

	return resp
}

// ===================== Internals =====================

func cacheKey(date time.Time) string {
	return "availability:" + date.Format(entity.DateLayout)
}

func uniqueDates(facts []entity.AvailabilityFact) []time.Time {
	seen := make(map[string]bool)
	var dates []time.Time
	for _, fact := range facts {
		date := entity.DateOnly(fact.Date)
		key := date.Format(entity.DateLayout)
		if !seen[key] {
			seen[key] = true
			dates = append(dates, date)
		}
	}
	return dates
}

func (s *availabilityService) invalidateDates(ctx context.Context, facts []entity.AvailabilityFact) {
	dates := uniqueDates(facts)
	if len(dates) == 0 {
		return
	}
	keys := make([]string, len(dates))
	for i, date := range dates {
		keys[i] = cacheKey(date)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logger.Warn("AvailabilityService:InvalidateDates", "error", err)
	}
}

// logSync appends the audit row for a run. Audit failures are logged but do
// not mask the run's own outcome.
func (s *availabilityService) logSync(ctx context.Context, status string, updated int, errMsg, trigger string) {
	entry := &entity.SyncLog{
		SyncTime:       s.clock.Now(),
		Status:         status,
		RecordsUpdated: updated,
		Details:        fmt.Sprintf("%s: %d records", trigger, updated),
	}
	if errMsg != "" {
		entry.Errors = &errMsg
	}
	if err := s.repo.InsertSyncLog(ctx, entry); err != nil {
		logger.Error("AvailabilityService:LogSync", "status", status, "error", err)
	}
}
