package availability

import (
	"time"

	"riq-studio-api/core/cache"
	"riq-studio-api/core/config"
	"riq-studio-api/core/database"
	"riq-studio-api/core/middleware"
	"riq-studio-api/modules/availability/adapter"
	"riq-studio-api/modules/availability/controller"
	"riq-studio-api/modules/availability/repository"
	"riq-studio-api/modules/availability/router"
	"riq-studio-api/modules/availability/scheduler"
	"riq-studio-api/modules/availability/service"

	"github.com/labstack/echo/v4"
)

// Init wires the availability module and returns the scheduler so the
// server owns its lifecycle.
func Init(e *echo.Echo, db database.IDatabase, c cache.Cache, cfg *config.Config) *scheduler.Scheduler {
	adapterTimeout := time.Duration(cfg.Sync.AdapterTimeoutSeconds) * time.Second

	calendarAdapter := adapter.NewGoogleCalendarAdapter(
		cfg.GoogleAPI.APIKey,
		cfg.GoogleAPI.StudioCCalendarID,
		cfg.GoogleAPI.StudioDCalendarID,
		adapterTimeout,
	)
	siteAdapter := adapter.NewRecordCoAdapter(
		cfg.RecordCo.GridURL,
		cfg.RecordCo.Username,
		cfg.RecordCo.Password,
		adapterTimeout,
	)

	repo := repository.NewAvailabilityRepository(db)
	svc := service.NewAvailabilityService(repo, calendarAdapter, siteAdapter, c, service.Options{
		Staleness:  time.Duration(cfg.Sync.StalenessSeconds) * time.Second,
		WindowDays: cfg.Sync.WindowDays,
	})

	availabilityController := controller.NewAvailabilityController(svc)
	mw := middleware.NewMiddleware(cfg.Admin.APIKey)
	router.NewAvailabilityRouter(availabilityController).Setup(e, mw)

	return scheduler.New(svc,
		time.Duration(cfg.Sync.IntervalSeconds)*time.Second,
		time.Duration(cfg.Sync.CooldownSeconds)*time.Second,
	)
}
