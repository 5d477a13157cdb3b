package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"riq-studio-api/core/cache"
	"riq-studio-api/core/errors"
	"riq-studio-api/modules/availability/adapter"
	"riq-studio-api/modules/availability/dto"
	"riq-studio-api/modules/availability/entity"
)

// ===================== Fakes =====================

// fakeRepo is an in-memory AvailabilityRepository. UpsertFacts mirrors the
// transactional contract: a failing batch applies nothing.
type fakeRepo struct {
	mu    sync.Mutex
	facts map[string]entity.AvailabilityFact
	logs  []entity.SyncLog

	upsertErr error
	readErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{facts: make(map[string]entity.AvailabilityFact)}
}

func (r *fakeRepo) UpsertFacts(ctx context.Context, facts []entity.AvailabilityFact) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.upsertErr != nil {
		return 0, r.upsertErr
	}
	for _, f := range facts {
		r.facts[f.Key()] = f
	}
	return len(facts), nil
}

func (r *fakeRepo) GetFactsByDate(ctx context.Context, date time.Time) ([]entity.AvailabilityFact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.readErr != nil {
		return nil, r.readErr
	}
	var out []entity.AvailabilityFact
	for _, f := range r.facts {
		if f.Date.Equal(entity.DateOnly(date)) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeRepo) DeleteFactsByDate(ctx context.Context, date time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, f := range r.facts {
		if f.Date.Equal(entity.DateOnly(date)) {
			delete(r.facts, key)
		}
	}
	return nil
}

func (r *fakeRepo) DeleteFactsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for key, f := range r.facts {
		if f.Date.Before(cutoff) {
			delete(r.facts, key)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeRepo) CountFacts(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.facts), nil
}

func (r *fakeRepo) LatestDate(ctx context.Context) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *time.Time
	for _, f := range r.facts {
		if latest == nil || f.Date.After(*latest) {
			d := f.Date
			latest = &d
		}
	}
	return latest, nil
}

func (r *fakeRepo) InsertSyncLog(ctx context.Context, log *entity.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log.ID = int64(len(r.logs) + 1)
	r.logs = append(r.logs, *log)
	return nil
}

func (r *fakeRepo) GetLastSyncLog(ctx context.Context) (*entity.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.logs) == 0 {
		return nil, nil
	}
	last := r.logs[len(r.logs)-1]
	return &last, nil
}

func (r *fakeRepo) get(key string) (entity.AvailabilityFact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.facts[key]
	return f, ok
}

func (r *fakeRepo) logCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

// fakeSource is a programmable SourceAdapter counting Fetch calls.
type fakeSource struct {
	mu     sync.Mutex
	source string
	facts  []entity.AvailabilityFact
	err    error
	calls  int
}

func (a *fakeSource) Source() string { return a.source }

func (a *fakeSource) Fetch(ctx context.Context, from, to time.Time) ([]entity.AvailabilityFact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	var out []entity.AvailabilityFact
	for _, f := range a.facts {
		if !f.Date.Before(from) && f.Date.Before(to) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (a *fakeSource) fetchCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ===================== Harness =====================

type serviceFixture struct {
	repo     *fakeRepo
	calendar *fakeSource
	site     *fakeSource
	clock    *fakeClock
	svc      AvailabilityService
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	repo := newFakeRepo()
	calendar := &fakeSource{source: entity.SourceCalendar}
	site := &fakeSource{source: entity.SourceRecordCo}
	clock := &fakeClock{now: time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)}

	svc := NewAvailabilityService(repo, calendar, site, cache.NewMemoryCache(), Options{
		Staleness:  time.Hour,
		WindowDays: 7,
		Clock:      clock,
	})

	return &serviceFixture{repo: repo, calendar: calendar, site: site, clock: clock, svc: svc}
}

func fact(date time.Time, studio, slot string, available bool, source string) entity.AvailabilityFact {
	return entity.AvailabilityFact{
		Date:       date,
		StudioID:   studio,
		TimeSlotID: slot,
		Available:  available,
		Source:     source,
	}
}

var testDate = time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC) // Tuesday

// ===================== Reconcile =====================

func TestAvailabilityService_Reconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps facts and logs one sync row", func(t *testing.T) {
		fx := newFixture(t)

		n, err := fx.svc.Reconcile(ctx, []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceCalendar),
		})
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if n != 1 {
			t.Fatalf("records updated = %d, want 1", n)
		}

		got, ok := fx.repo.get("2025-06-03/C/morning")
		if !ok {
			t.Fatal("fact not stored")
		}
		if !got.LastUpdated.Equal(fx.clock.Now()) {
			t.Errorf("last_updated = %v, want clock time %v", got.LastUpdated, fx.clock.Now())
		}
		if got.SyncStatus != entity.SyncStatusSynced {
			t.Errorf("sync_status = %q, want %q", got.SyncStatus, entity.SyncStatusSynced)
		}
		if fx.repo.logCount() != 1 {
			t.Errorf("sync log rows = %d, want 1", fx.repo.logCount())
		}
	})

	t.Run("idempotent for the same batch", func(t *testing.T) {
		fx := newFixture(t)
		batch := []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceCalendar),
			fact(testDate, entity.StudioD, entity.SlotEvening, false, entity.SourceCalendar),
		}

		if _, err := fx.svc.Reconcile(ctx, batch); err != nil {
			t.Fatalf("first Reconcile() error = %v", err)
		}
		first, _ := fx.repo.get("2025-06-03/C/morning")

		if _, err := fx.svc.Reconcile(ctx, batch); err != nil {
			t.Fatalf("second Reconcile() error = %v", err)
		}
		second, _ := fx.repo.get("2025-06-03/C/morning")

		if count, _ := fx.repo.CountFacts(ctx); count != 2 {
			t.Errorf("fact count after replay = %d, want 2", count)
		}
		if first.Available != second.Available || first.Source != second.Source {
			t.Errorf("replay changed fact: %+v vs %+v", first, second)
		}
	})

	t.Run("later batch wins for a shared key", func(t *testing.T) {
		fx := newFixture(t)

		defaults := []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotEvening, true, entity.SourceDefault),
		}
		synced := []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotEvening, false, entity.SourceCalendar),
		}

		if _, err := fx.svc.Reconcile(ctx, defaults); err != nil {
			t.Fatal(err)
		}
		if _, err := fx.svc.Reconcile(ctx, synced); err != nil {
			t.Fatal(err)
		}

		got, _ := fx.repo.get("2025-06-03/C/evening")
		if got.Available || got.Source != entity.SourceCalendar {
			t.Errorf("got %+v, want calendar fact to win", got)
		}
	})

	t.Run("store failure writes error sync row and nothing else", func(t *testing.T) {
		fx := newFixture(t)
		fx.repo.upsertErr = stderrors.New("connection reset")

		_, err := fx.svc.Reconcile(ctx, []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceCalendar),
		})
		if err == nil {
			t.Fatal("Reconcile() error = nil, want store write failure")
		}

		var appErr *errors.AppError
		if !stderrors.As(err, &appErr) || appErr.Code != errors.ErrStoreWrite {
			t.Errorf("error = %v, want AppError with code %s", err, errors.ErrStoreWrite)
		}

		if count, _ := fx.repo.CountFacts(ctx); count != 0 {
			t.Errorf("fact count = %d, want 0 after failed batch", count)
		}

		last, _ := fx.repo.GetLastSyncLog(ctx)
		if last == nil || last.Status != entity.SyncLogError {
			t.Errorf("last sync log = %+v, want status %q", last, entity.SyncLogError)
		}
		if last != nil && last.Errors == nil {
			t.Error("error sync row missing error message")
		}
	})

	t.Run("does not mutate the caller's batch", func(t *testing.T) {
		fx := newFixture(t)

		batch := []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceCalendar),
		}
		if _, err := fx.svc.Reconcile(ctx, batch); err != nil {
			t.Fatal(err)
		}
		if !batch[0].LastUpdated.IsZero() {
			t.Errorf("caller batch mutated: last_updated = %v", batch[0].LastUpdated)
		}
	})
}

// ===================== EnsureFresh =====================

func TestAvailabilityService_EnsureFresh(t *testing.T) {
	ctx := context.Background()

	t.Run("empty date gets defaults", func(t *testing.T) {
		fx := newFixture(t)

		facts, err := fx.svc.EnsureFresh(ctx, testDate)
		if err != nil {
			t.Fatalf("EnsureFresh() error = %v", err)
		}
		if len(facts) != 6 {
			t.Fatalf("got %d facts, want 6 defaults", len(facts))
		}
		for _, f := range facts {
			if f.Source != entity.SourceDefault {
				t.Errorf("fact %s source = %q, want default", f.Key(), f.Source)
			}
			if !f.Available {
				t.Errorf("fact %s closed on a Tuesday", f.Key())
			}
		}
		if fx.calendar.fetchCalls() != 0 {
			t.Errorf("calendar fetches = %d, want 0 for a fresh write", fx.calendar.fetchCalls())
		}
	})

	t.Run("fresh data is returned without fetching", func(t *testing.T) {
		fx := newFixture(t)

		if _, err := fx.svc.EnsureFresh(ctx, testDate); err != nil {
			t.Fatal(err)
		}
		fx.clock.Advance(30 * time.Minute) // still inside the staleness window

		if _, err := fx.svc.EnsureFresh(ctx, testDate); err != nil {
			t.Fatal(err)
		}
		if fx.calendar.fetchCalls() != 0 {
			t.Errorf("calendar fetches = %d, want 0", fx.calendar.fetchCalls())
		}
	})

	t.Run("stale data triggers exactly one fetch", func(t *testing.T) {
		fx := newFixture(t)
		fx.calendar.facts = []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotEvening, false, entity.SourceCalendar),
		}

		if _, err := fx.svc.EnsureFresh(ctx, testDate); err != nil {
			t.Fatal(err)
		}
		fx.clock.Advance(2 * time.Hour)

		facts, err := fx.svc.EnsureFresh(ctx, testDate)
		if err != nil {
			t.Fatalf("EnsureFresh() error = %v", err)
		}
		if fx.calendar.fetchCalls() != 1 {
			t.Fatalf("calendar fetches = %d, want 1", fx.calendar.fetchCalls())
		}

		var evening *entity.AvailabilityFact
		for i := range facts {
			if facts[i].StudioID == entity.StudioC && facts[i].TimeSlotID == entity.SlotEvening {
				evening = &facts[i]
			}
		}
		if evening == nil {
			t.Fatal("evening fact missing after refresh")
		}
		if evening.Available || evening.Source != entity.SourceCalendar {
			t.Errorf("evening fact = %+v, want refreshed calendar fact", evening)
		}
	})

	t.Run("failed refresh falls back to stale facts", func(t *testing.T) {
		fx := newFixture(t)

		if _, err := fx.svc.EnsureFresh(ctx, testDate); err != nil {
			t.Fatal(err)
		}
		logsBefore := fx.repo.logCount()

		fx.clock.Advance(2 * time.Hour)
		fx.calendar.err = adapter.NewFetchError(entity.SourceCalendar, stderrors.New("api quota exceeded"))

		facts, err := fx.svc.EnsureFresh(ctx, testDate)
		if err != nil {
			t.Fatalf("EnsureFresh() error = %v, want stale fallback", err)
		}
		if len(facts) != 6 {
			t.Errorf("got %d facts, want the 6 stale defaults", len(facts))
		}

		last, _ := fx.repo.GetLastSyncLog(ctx)
		if fx.repo.logCount() != logsBefore+1 || last == nil || last.Status != entity.SyncLogError {
			t.Errorf("want one new error sync row, got %+v", last)
		}
	})

	t.Run("empty refresh keeps existing facts", func(t *testing.T) {
		fx := newFixture(t)

		if _, err := fx.svc.EnsureFresh(ctx, testDate); err != nil {
			t.Fatal(err)
		}
		fx.clock.Advance(2 * time.Hour)

		facts, err := fx.svc.EnsureFresh(ctx, testDate)
		if err != nil {
			t.Fatal(err)
		}
		if len(facts) != 6 {
			t.Errorf("got %d facts, want 6", len(facts))
		}
		if fx.calendar.fetchCalls() != 1 {
			t.Errorf("calendar fetches = %d, want 1", fx.calendar.fetchCalls())
		}
	})
}

// ===================== Overrides and precedence =====================

func TestAvailabilityService_ManualOverride(t *testing.T) {
	ctx := context.Background()

	t.Run("writes a manual fact", func(t *testing.T) {
		fx := newFixture(t)

		if err := fx.svc.ManualOverride(ctx, testDate, entity.StudioC, entity.SlotMorning, false); err != nil {
			t.Fatalf("ManualOverride() error = %v", err)
		}

		got, ok := fx.repo.get("2025-06-03/C/morning")
		if !ok {
			t.Fatal("override not stored")
		}
		if got.Available || got.Source != entity.SourceManual || got.SyncStatus != entity.SyncStatusManualOverride {
			t.Errorf("stored fact = %+v", got)
		}
	})

	t.Run("rejects unknown studio and slot", func(t *testing.T) {
		fx := newFixture(t)

		for _, tt := range []struct {
			studio, slot string
		}{
			{"E", entity.SlotMorning},
			{entity.StudioC, "midnight"},
		} {
			err := fx.svc.ManualOverride(ctx, testDate, tt.studio, tt.slot, true)
			var appErr *errors.AppError
			if !stderrors.As(err, &appErr) || appErr.Code != errors.ErrInvalidInput {
				t.Errorf("ManualOverride(%q, %q) error = %v, want invalid input", tt.studio, tt.slot, err)
			}
		}

		if count, _ := fx.repo.CountFacts(ctx); count != 0 {
			t.Errorf("fact count = %d, want 0 after rejected overrides", count)
		}
	})

	t.Run("a later sync batch overwrites the override", func(t *testing.T) {
		fx := newFixture(t)

		if err := fx.svc.ManualOverride(ctx, testDate, entity.StudioC, entity.SlotMorning, false); err != nil {
			t.Fatal(err)
		}
		if _, err := fx.svc.Reconcile(ctx, []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceCalendar),
		}); err != nil {
			t.Fatal(err)
		}

		got, _ := fx.repo.get("2025-06-03/C/morning")
		if !got.Available || got.Source != entity.SourceCalendar {
			t.Errorf("got %+v, want the later calendar write to win", got)
		}
	})

	t.Run("override survives until the next write to its key", func(t *testing.T) {
		fx := newFixture(t)

		if err := fx.svc.ManualOverride(ctx, testDate, entity.StudioD, entity.SlotEvening, false); err != nil {
			t.Fatal(err)
		}
		// A sync touching other keys leaves the override alone.
		if _, err := fx.svc.Reconcile(ctx, []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceCalendar),
		}); err != nil {
			t.Fatal(err)
		}

		got, _ := fx.repo.get("2025-06-03/D/evening")
		if got.Available || got.Source != entity.SourceManual {
			t.Errorf("got %+v, want untouched manual override", got)
		}
	})
}

// ===================== ClearDate =====================

func TestAvailabilityService_ClearDate(t *testing.T) {
	ctx := context.Background()

	t.Run("clear then read regenerates defaults", func(t *testing.T) {
		fx := newFixture(t)

		if err := fx.svc.ManualOverride(ctx, testDate, entity.StudioC, entity.SlotMorning, false); err != nil {
			t.Fatal(err)
		}
		if err := fx.svc.ClearDate(ctx, testDate); err != nil {
			t.Fatalf("ClearDate() error = %v", err)
		}
		if count, _ := fx.repo.CountFacts(ctx); count != 0 {
			t.Fatalf("fact count = %d, want 0 after clear", count)
		}

		facts, err := fx.svc.EnsureFresh(ctx, testDate)
		if err != nil {
			t.Fatal(err)
		}
		if len(facts) != 6 {
			t.Fatalf("got %d facts, want 6 regenerated defaults", len(facts))
		}
		for _, f := range facts {
			if f.Source != entity.SourceDefault {
				t.Errorf("fact %s source = %q, want default", f.Key(), f.Source)
			}
		}
	})

	t.Run("only clears the given date", func(t *testing.T) {
		fx := newFixture(t)
		other := testDate.AddDate(0, 0, 1)

		if _, err := fx.svc.Reconcile(ctx, []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceCalendar),
			fact(other, entity.StudioC, entity.SlotMorning, false, entity.SourceCalendar),
		}); err != nil {
			t.Fatal(err)
		}

		if err := fx.svc.ClearDate(ctx, testDate); err != nil {
			t.Fatal(err)
		}

		if _, ok := fx.repo.get("2025-06-03/C/morning"); ok {
			t.Error("cleared date still present")
		}
		if _, ok := fx.repo.get("2025-06-04/C/morning"); !ok {
			t.Error("neighbour date was cleared too")
		}
	})
}

// ===================== SyncFromEvents =====================

func TestAvailabilityService_SyncFromEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("reconciles valid events", func(t *testing.T) {
		fx := newFixture(t)

		n, err := fx.svc.SyncFromEvents(ctx, []dto.CalendarEventRecord{
			{Date: "2025-06-03", StudioID: entity.StudioC, TimeSlotID: entity.SlotMorning, Available: false},
			{Date: "2025-06-03", StudioID: entity.StudioD, TimeSlotID: entity.SlotEvening, Available: true},
		})
		if err != nil {
			t.Fatalf("SyncFromEvents() error = %v", err)
		}
		if n != 2 {
			t.Errorf("records updated = %d, want 2", n)
		}

		got, _ := fx.repo.get("2025-06-03/C/morning")
		if got.Available || got.Source != entity.SourceCalendar || got.SyncStatus != entity.SyncStatusSynced {
			t.Errorf("stored fact = %+v", got)
		}
	})

	t.Run("one bad event rejects the whole batch", func(t *testing.T) {
		fx := newFixture(t)

		tests := []struct {
			name   string
			events []dto.CalendarEventRecord
		}{
			{
				"bad date",
				[]dto.CalendarEventRecord{
					{Date: "2025-06-03", StudioID: entity.StudioC, TimeSlotID: entity.SlotMorning},
					{Date: "06/03/2025", StudioID: entity.StudioD, TimeSlotID: entity.SlotMorning},
				},
			},
			{
				"bad studio",
				[]dto.CalendarEventRecord{
					{Date: "2025-06-03", StudioID: "Z", TimeSlotID: entity.SlotMorning},
				},
			},
			{
				"bad slot",
				[]dto.CalendarEventRecord{
					{Date: "2025-06-03", StudioID: entity.StudioC, TimeSlotID: "night"},
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := fx.svc.SyncFromEvents(ctx, tt.events)
				var appErr *errors.AppError
				if !stderrors.As(err, &appErr) || appErr.Code != errors.ErrInvalidInput {
					t.Errorf("error = %v, want invalid input", err)
				}
			})
		}

		if count, _ := fx.repo.CountFacts(ctx); count != 0 {
			t.Errorf("fact count = %d, want 0 after rejected batches", count)
		}
	})
}

// ===================== Scheduled syncs =====================

func TestAvailabilityService_RunCalendarSync(t *testing.T) {
	ctx := context.Background()

	t.Run("clears reported dates before reconciling", func(t *testing.T) {
		fx := newFixture(t)

		// A slot the calendar no longer lists must not survive the sync.
		if _, err := fx.svc.Reconcile(ctx, []entity.AvailabilityFact{
			fact(testDate, entity.StudioD, entity.SlotMorning, true, entity.SourceCalendar),
		}); err != nil {
			t.Fatal(err)
		}

		fx.calendar.facts = []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotEvening, false, entity.SourceCalendar),
		}

		n, err := fx.svc.RunCalendarSync(ctx)
		if err != nil {
			t.Fatalf("RunCalendarSync() error = %v", err)
		}
		if n != 1 {
			t.Errorf("records updated = %d, want 1", n)
		}

		if _, ok := fx.repo.get("2025-06-03/D/morning"); ok {
			t.Error("stale fact survived a full calendar sync of its date")
		}
		if _, ok := fx.repo.get("2025-06-03/C/evening"); !ok {
			t.Error("synced fact missing")
		}
	})

	t.Run("fetch failure surfaces an adapter error and logs it", func(t *testing.T) {
		fx := newFixture(t)
		fx.calendar.err = adapter.NewFetchError(entity.SourceCalendar, stderrors.New("403 forbidden"))

		_, err := fx.svc.RunCalendarSync(ctx)
		var appErr *errors.AppError
		if !stderrors.As(err, &appErr) || appErr.Code != errors.ErrAdapterFetch {
			t.Fatalf("error = %v, want adapter fetch failure", err)
		}

		var fetchErr *adapter.FetchError
		if !stderrors.As(err, &fetchErr) {
			t.Error("FetchError not reachable through errors.As")
		}

		last, _ := fx.repo.GetLastSyncLog(ctx)
		if last == nil || last.Status != entity.SyncLogError {
			t.Errorf("last sync log = %+v, want error row", last)
		}
	})
}

func TestAvailabilityService_RunSiteSync(t *testing.T) {
	ctx := context.Background()

	t.Run("reconciles scraped facts", func(t *testing.T) {
		fx := newFixture(t)
		fx.site.facts = []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceRecordCo),
			fact(testDate, entity.StudioC, entity.SlotAfternoon, false, entity.SourceRecordCo),
		}

		n, err := fx.svc.RunSiteSync(ctx, time.Time{}, 0)
		if err != nil {
			t.Fatalf("RunSiteSync() error = %v", err)
		}
		if n != 2 {
			t.Errorf("records updated = %d, want 2", n)
		}

		got, _ := fx.repo.get("2025-06-03/C/morning")
		if !got.Available || got.Source != entity.SourceRecordCo {
			t.Errorf("stored fact = %+v", got)
		}
	})

	t.Run("window excludes dates past the horizon", func(t *testing.T) {
		fx := newFixture(t)
		farOut := testDate.AddDate(0, 0, 10)
		fx.site.facts = []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceRecordCo),
			fact(farOut, entity.StudioC, entity.SlotMorning, true, entity.SourceRecordCo),
		}

		n, err := fx.svc.RunSiteSync(ctx, testDate, 3)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("records updated = %d, want only the in-window fact", n)
		}
	})
}

// ===================== Pruning =====================

func TestAvailabilityService_PruneOldFacts(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	old := testDate.AddDate(0, 0, -120)
	if _, err := fx.svc.Reconcile(ctx, []entity.AvailabilityFact{
		fact(old, entity.StudioC, entity.SlotMorning, true, entity.SourceDefault),
		fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceDefault),
	}); err != nil {
		t.Fatal(err)
	}

	deleted, err := fx.svc.PruneOldFacts(ctx)
	if err != nil {
		t.Fatalf("PruneOldFacts() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, ok := fx.repo.get("2025-06-03/C/morning"); !ok {
		t.Error("recent fact pruned")
	}
}

// ===================== Reads =====================

func TestAvailabilityService_GetAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("formats the grid with absent combinations false", func(t *testing.T) {
		fx := newFixture(t)

		// Seed a single scraped fact; the other five combinations are
		// absent from the store.
		if _, err := fx.svc.Reconcile(ctx, []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotEvening, true, entity.SourceRecordCo),
		}); err != nil {
			t.Fatal(err)
		}

		resp, err := fx.svc.GetAvailability(ctx, testDate)
		if err != nil {
			t.Fatalf("GetAvailability() error = %v", err)
		}

		if resp.Date != "2025-06-03" {
			t.Errorf("date = %q", resp.Date)
		}
		if !resp.StudioC[entity.SlotEvening] {
			t.Error("studioC evening = false, want true")
		}
		for _, slot := range []string{entity.SlotMorning, entity.SlotAfternoon} {
			if resp.StudioC[slot] {
				t.Errorf("studioC %s = true, want false for an absent combination", slot)
			}
		}
		for _, slot := range entity.Slots() {
			if resp.StudioD[slot] {
				t.Errorf("studioD %s = true, want false", slot)
			}
		}
	})

	t.Run("second read is served from cache", func(t *testing.T) {
		fx := newFixture(t)

		if _, err := fx.svc.GetAvailability(ctx, testDate); err != nil {
			t.Fatal(err)
		}

		// A cached read must not hit the store again even when stale.
		fx.repo.readErr = stderrors.New("db down")
		fx.clock.Advance(30 * time.Minute)

		resp, err := fx.svc.GetAvailability(ctx, testDate)
		if err != nil {
			t.Fatalf("cached GetAvailability() error = %v", err)
		}
		if resp.Date != "2025-06-03" {
			t.Errorf("date = %q", resp.Date)
		}
	})

	t.Run("writes invalidate the cached grid", func(t *testing.T) {
		fx := newFixture(t)

		first, err := fx.svc.GetAvailability(ctx, testDate)
		if err != nil {
			t.Fatal(err)
		}
		if !first.StudioC[entity.SlotMorning] {
			t.Fatal("expected Tuesday default to be open")
		}

		if err := fx.svc.ManualOverride(ctx, testDate, entity.StudioC, entity.SlotMorning, false); err != nil {
			t.Fatal(err)
		}

		second, err := fx.svc.GetAvailability(ctx, testDate)
		if err != nil {
			t.Fatal(err)
		}
		if second.StudioC[entity.SlotMorning] {
			t.Error("override not visible, stale cache served")
		}
	})
}

func TestAvailabilityService_GetSyncStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store reads never", func(t *testing.T) {
		fx := newFixture(t)

		status, err := fx.svc.GetSyncStatus(ctx)
		if err != nil {
			t.Fatalf("GetSyncStatus() error = %v", err)
		}
		if status.LastSyncStatus != "never" {
			t.Errorf("last_sync_status = %q, want never", status.LastSyncStatus)
		}
		if status.LastSyncTime != nil || status.LatestDate != nil {
			t.Errorf("empty store status = %+v", status)
		}
		if status.RecordsInDB != 0 {
			t.Errorf("records_in_db = %d, want 0", status.RecordsInDB)
		}
	})

	t.Run("reflects the most recent run", func(t *testing.T) {
		fx := newFixture(t)
		other := testDate.AddDate(0, 0, 5)

		if _, err := fx.svc.Reconcile(ctx, []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceCalendar),
			fact(other, entity.StudioD, entity.SlotEvening, false, entity.SourceCalendar),
		}); err != nil {
			t.Fatal(err)
		}

		status, err := fx.svc.GetSyncStatus(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if status.LastSyncStatus != entity.SyncLogSuccess {
			t.Errorf("last_sync_status = %q, want success", status.LastSyncStatus)
		}
		if status.RecordsInDB != 2 {
			t.Errorf("records_in_db = %d, want 2", status.RecordsInDB)
		}
		if status.LatestDate == nil || *status.LatestDate != "2025-06-08" {
			t.Errorf("latest_date = %v, want 2025-06-08", status.LatestDate)
		}
		if status.LastSyncTime == nil || !status.LastSyncTime.Equal(fx.clock.Now()) {
			t.Errorf("last_sync_time = %v, want clock time", status.LastSyncTime)
		}
	})
}

func TestAvailabilityService_FormatForResponse(t *testing.T) {
	fx := newFixture(t)

	t.Run("no facts means everything false", func(t *testing.T) {
		resp := fx.svc.FormatForResponse(testDate, nil)

		for _, slot := range entity.Slots() {
			if resp.StudioC[slot] || resp.StudioD[slot] {
				t.Errorf("slot %s not false in empty grid", slot)
			}
		}
	})

	t.Run("facts land in the right cell", func(t *testing.T) {
		resp := fx.svc.FormatForResponse(testDate, []entity.AvailabilityFact{
			fact(testDate, entity.StudioC, entity.SlotMorning, true, entity.SourceDefault),
			fact(testDate, entity.StudioD, entity.SlotAfternoon, true, entity.SourceManual),
		})

		if !resp.StudioC[entity.SlotMorning] {
			t.Error("studioC morning = false, want true")
		}
		if !resp.StudioD[entity.SlotAfternoon] {
			t.Error("studioD afternoon = false, want true")
		}
		if resp.StudioC[entity.SlotAfternoon] || resp.StudioD[entity.SlotMorning] {
			t.Error("unrelated cells flipped")
		}
	})

	t.Run("facts for unknown studios are ignored", func(t *testing.T) {
		unknown := fact(testDate, "Z", entity.SlotMorning, true, entity.SourceDefault)
		resp := fx.svc.FormatForResponse(testDate, []entity.AvailabilityFact{unknown})

		for _, slot := range entity.Slots() {
			if resp.StudioC[slot] || resp.StudioD[slot] {
				t.Error("unknown studio fact leaked into the grid")
			}
		}
	})
}

// ===================== End to end =====================

// The full loop the booking UI depends on: scrape marks one slot busy, the
// grid shows exactly that, an admin override flips it back.
func TestAvailabilityService_SiteSyncToGrid(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	fx.site.facts = []entity.AvailabilityFact{
		fact(testDate, entity.StudioC, entity.SlotMorning, false, entity.SourceRecordCo),
		fact(testDate, entity.StudioC, entity.SlotAfternoon, true, entity.SourceRecordCo),
		fact(testDate, entity.StudioC, entity.SlotEvening, true, entity.SourceRecordCo),
		fact(testDate, entity.StudioD, entity.SlotMorning, true, entity.SourceRecordCo),
		fact(testDate, entity.StudioD, entity.SlotAfternoon, true, entity.SourceRecordCo),
		fact(testDate, entity.StudioD, entity.SlotEvening, false, entity.SourceRecordCo),
	}

	if _, err := fx.svc.RunSiteSync(ctx, testDate, 1); err != nil {
		t.Fatalf("RunSiteSync() error = %v", err)
	}

	resp, err := fx.svc.GetAvailability(ctx, testDate)
	if err != nil {
		t.Fatalf("GetAvailability() error = %v", err)
	}
	if resp.StudioC[entity.SlotMorning] {
		t.Error("studioC morning should be booked")
	}
	if !resp.StudioC[entity.SlotAfternoon] || !resp.StudioD[entity.SlotMorning] {
		t.Error("open slots missing from the grid")
	}
	if resp.StudioD[entity.SlotEvening] {
		t.Error("studioD evening should be booked")
	}

	if err := fx.svc.ManualOverride(ctx, testDate, entity.StudioC, entity.SlotMorning, true); err != nil {
		t.Fatal(err)
	}

	resp, err = fx.svc.GetAvailability(ctx, testDate)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.StudioC[entity.SlotMorning] {
		t.Error("override not reflected in the grid")
	}
}
