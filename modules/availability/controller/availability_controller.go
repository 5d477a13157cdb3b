package controller

import (
	"fmt"
	"net/http"
	"time"

	apperrors "riq-studio-api/core/errors"
	"riq-studio-api/core/logger"
	"riq-studio-api/modules/availability/dto"
	"riq-studio-api/modules/availability/entity"
	"riq-studio-api/modules/availability/service"

	"github.com/labstack/echo/v4"
)

type AvailabilityController struct {
	service service.AvailabilityService
}

func NewAvailabilityController(service service.AvailabilityService) *AvailabilityController {
	return &AvailabilityController{service: service}
}

// GetAvailability returns the per-studio slot grid for a date.
// GET /api/availability/:date
func (c *AvailabilityController) GetAvailability(ctx echo.Context) error {
	date, err := entity.ParseDate(ctx.Param("date"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	resp, err := c.service.GetAvailability(ctx.Request().Context(), date)
	if err != nil {
		logger.Error("AvailabilityController:GetAvailability", "date", ctx.Param("date"), "error", err)
		return ctx.JSON(statusForError(err), dto.ErrorResponse{
			Error: fmt.Sprintf("Failed to get availability: %s", messageForError(err)),
		})
	}

	return ctx.JSON(http.StatusOK, resp)
}

// SyncCalendar reconciles pre-normalized calendar records pushed by a
// client.
// POST /api/sync-calendar
func (c *AvailabilityController) SyncCalendar(ctx echo.Context) error {
	var req dto.SyncCalendarRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.SyncResponse{
			Success: false,
			Message: "Invalid request body",
		})
	}

	updated, err := c.service.SyncFromEvents(ctx.Request().Context(), req.Events)
	if err != nil {
		return ctx.JSON(statusForError(err), dto.SyncResponse{
			Success: false,
			Message: fmt.Sprintf("Calendar sync failed: %s", messageForError(err)),
		})
	}

	return ctx.JSON(http.StatusOK, dto.SyncResponse{
		Success:        true,
		Message:        fmt.Sprintf("Successfully synced %d availability records from calendar", updated),
		RecordsUpdated: updated,
	})
}

// SyncRecordCo triggers a scrape-based sync of the third-party grid.
// POST /api/sync-recordco
func (c *AvailabilityController) SyncRecordCo(ctx echo.Context) error {
	var req dto.SiteSyncRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.SyncResponse{
			Success: false,
			Message: "Invalid request body",
		})
	}

	var start time.Time
	if req.StartDate != "" {
		parsed, err := entity.ParseDate(req.StartDate)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, dto.SyncResponse{
				Success: false,
				Message: err.Error(),
			})
		}
		start = parsed
	}

	updated, err := c.service.RunSiteSync(ctx.Request().Context(), start, req.Days)
	if err != nil {
		return ctx.JSON(statusForError(err), dto.SyncResponse{
			Success: false,
			Message: fmt.Sprintf("Record Co sync failed: %s", messageForError(err)),
		})
	}

	return ctx.JSON(http.StatusOK, dto.SyncResponse{
		Success:        true,
		Message:        fmt.Sprintf("Successfully synced %d availability records from Record Co", updated),
		RecordsUpdated: updated,
	})
}

// GetSyncStatus reports the last reconciliation run and store size.
// GET /api/sync-status
func (c *AvailabilityController) GetSyncStatus(ctx echo.Context) error {
	status, err := c.service.GetSyncStatus(ctx.Request().Context())
	if err != nil {
		logger.Error("AvailabilityController:GetSyncStatus", "error", err)
		return ctx.JSON(statusForError(err), dto.ErrorResponse{
			Error: fmt.Sprintf("Failed to get sync status: %s", messageForError(err)),
		})
	}
	return ctx.JSON(http.StatusOK, status)
}

// Override sets a manual availability override for one slot.
// POST /api/availability/override
func (c *AvailabilityController) Override(ctx echo.Context) error {
	var req dto.OverrideRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.OverrideResponse{
			Success: false,
			Message: "Invalid request body",
		})
	}

	date, err := entity.ParseDate(req.Date)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.OverrideResponse{
			Success: false,
			Message: err.Error(),
		})
	}

	if err := c.service.ManualOverride(ctx.Request().Context(), date, req.StudioID, req.TimeSlotID, req.Available); err != nil {
		return ctx.JSON(statusForError(err), dto.OverrideResponse{
			Success: false,
			Message: messageForError(err),
		})
	}

	return ctx.JSON(http.StatusOK, dto.OverrideResponse{
		Success: true,
		Message: fmt.Sprintf("Manual override set: %s %s %s = %t", req.Date, req.StudioID, req.TimeSlotID, req.Available),
	})
}

// Health is a liveness probe.
// GET /health
func (c *AvailabilityController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func statusForError(err error) int {
	if ae, ok := err.(*apperrors.AppError); ok {
		switch ae.Code {
		case apperrors.ErrInvalidInput, apperrors.ErrInvalidRequestData:
			return http.StatusBadRequest
		case apperrors.ErrNotFound:
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

func messageForError(err error) string {
	if ae, ok := err.(*apperrors.AppError); ok && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
