package repository

import (
	"context"
	"database/sql"
	"time"

	"riq-studio-api/core/database"
	"riq-studio-api/core/logger"
	"riq-studio-api/modules/availability/entity"
)

// AvailabilityRepository owns the availability facts table and the
// append-only sync log.
type AvailabilityRepository interface {
	// UpsertFacts applies the whole batch in one transaction, keyed by
	// (date, studio_id, time_slot_id). Any row failure rolls back the
	// entire batch.
	UpsertFacts(ctx context.Context, facts []entity.AvailabilityFact) (int, error)
	GetFactsByDate(ctx context.Context, date time.Time) ([]entity.AvailabilityFact, error)
	DeleteFactsByDate(ctx context.Context, date time.Time) error
	DeleteFactsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountFacts(ctx context.Context) (int, error)
	LatestDate(ctx context.Context) (*time.Time, error)

	InsertSyncLog(ctx context.Context, log *entity.SyncLog) error
	GetLastSyncLog(ctx context.Context) (*entity.SyncLog, error)
}

type availabilityRepository struct {
	db database.IDatabase
}

func NewAvailabilityRepository(db database.IDatabase) AvailabilityRepository {
	return &availabilityRepository{db: db}
}

func (r *availabilityRepository) UpsertFacts(ctx context.Context, facts []entity.AvailabilityFact) (int, error) {
	if len(facts) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx)
	if err != nil {
		logger.Error("AvailabilityRepository:UpsertFacts:Begin", err)
		return 0, err
	}

	query := `
		INSERT INTO availability (date, studio_id, time_slot_id, available, source, last_updated, sync_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (date, studio_id, time_slot_id) DO UPDATE
		SET available = EXCLUDED.available,
		    source = EXCLUDED.source,
		    last_updated = EXCLUDED.last_updated,
		    sync_status = EXCLUDED.sync_status
	`

	updated := 0
	for _, fact := range facts {
		if _, err := tx.ExecContext(ctx, query,
			fact.Date, fact.StudioID, fact.TimeSlotID,
			fact.Available, fact.Source, fact.LastUpdated, fact.SyncStatus,
		); err != nil {
			tx.Rollback()
			logger.Error("AvailabilityRepository:UpsertFacts:Exec", "key", fact.Key(), "error", err)
			return 0, err
		}
		updated++
	}

	if err := tx.Commit(); err != nil {
		logger.Error("AvailabilityRepository:UpsertFacts:Commit", err)
		return 0, err
	}

	return updated, nil
}

func (r *availabilityRepository) GetFactsByDate(ctx context.Context, date time.Time) ([]entity.AvailabilityFact, error) {
	query := `
		SELECT id, date, studio_id, time_slot_id, available, source, last_updated, sync_status
		FROM availability
		WHERE date = $1
		ORDER BY studio_id, time_slot_id
	`

	var facts []entity.AvailabilityFact
	if err := r.db.SelectContext(ctx, &facts, query, date); err != nil {
		logger.Error("AvailabilityRepository:GetFactsByDate", err)
		return nil, err
	}
	return facts, nil
}

func (r *availabilityRepository) DeleteFactsByDate(ctx context.Context, date time.Time) error {
	query := `DELETE FROM availability WHERE date = $1`
	if err := r.db.ExecContext(ctx, query, date); err != nil {
		logger.Error("AvailabilityRepository:DeleteFactsByDate", err)
		return err
	}
	return nil
}

func (r *availabilityRepository) DeleteFactsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.NamedExecContext(ctx, `DELETE FROM availability WHERE date < :cutoff`,
		map[string]any{"cutoff": cutoff})
	if err != nil {
		logger.Error("AvailabilityRepository:DeleteFactsBefore", err)
		return 0, err
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

func (r *availabilityRepository) CountFacts(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM availability`); err != nil {
		logger.Error("AvailabilityRepository:CountFacts", err)
		return 0, err
	}
	return count, nil
}

func (r *availabilityRepository) LatestDate(ctx context.Context) (*time.Time, error) {
	var latest sql.NullTime
	if err := r.db.GetContext(ctx, &latest, `SELECT MAX(date) FROM availability`); err != nil {
		logger.Error("AvailabilityRepository:LatestDate", err)
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

func (r *availabilityRepository) InsertSyncLog(ctx context.Context, log *entity.SyncLog) error {
	query := `
		INSERT INTO sync_logs (sync_time, status, records_updated, errors, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		log.SyncTime, log.Status, log.RecordsUpdated, log.Errors, log.Details,
	).Scan(&log.ID)
	if err != nil {
		logger.Error("AvailabilityRepository:InsertSyncLog", err)
		return err
	}
	return nil
}

func (r *availabilityRepository) GetLastSyncLog(ctx context.Context) (*entity.SyncLog, error) {
	query := `
		SELECT id, sync_time, status, records_updated, errors, details
		FROM sync_logs
		ORDER BY sync_time DESC, id DESC
		LIMIT 1
	`

	var log entity.SyncLog
	if err := r.db.GetContext(ctx, &log, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("AvailabilityRepository:GetLastSyncLog", err)
		return nil, err
	}
	return &log, nil
}
