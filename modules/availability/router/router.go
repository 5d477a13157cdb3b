package router

import (
	"riq-studio-api/core/middleware"
	"riq-studio-api/modules/availability/controller"

	"github.com/labstack/echo/v4"
)

type AvailabilityRouter struct {
	controller *controller.AvailabilityController
}

func NewAvailabilityRouter(controller *controller.AvailabilityController) *AvailabilityRouter {
	return &AvailabilityRouter{
		controller: controller,
	}
}

func (r *AvailabilityRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	e.GET("/health", r.controller.Health)

	api := e.Group("/api")

	// Public read path consumed by the booking UI
	api.GET("/availability/:date", r.controller.GetAvailability)
	api.GET("/sync-status", r.controller.GetSyncStatus)

	// Sync triggers
	api.POST("/sync-calendar", r.controller.SyncCalendar)
	api.POST("/sync-recordco", r.controller.SyncRecordCo, mw.AdminKeyMiddleware())

	// Admin
	api.POST("/availability/override", r.controller.Override, mw.AdminKeyMiddleware())
}
