package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatmirror/chatmirror/internal/backfill"
	"github.com/chatmirror/chatmirror/internal/config"
)

// BackfillHandler exposes the historical-import trigger.
type BackfillHandler struct {
	logger  *slog.Logger
	service *backfill.Service
}

// NewBackfillHandler creates the backfill trigger handler.
func NewBackfillHandler(log *slog.Logger, service *backfill.Service) *BackfillHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BackfillHandler{
		logger:  log.With(slog.String("handler", "backfill")),
		service: service,
	}
}

// Register registers the trigger route.
func (h *BackfillHandler) Register(e *echo.Echo) {
	e.POST("/backfill", h.Trigger)
}

// Trigger runs a full historical import and returns its report. A missing
// upstream configuration is the one caller-visible failure.
func (h *BackfillHandler) Trigger(c echo.Context) error {
	report, err := h.service.Run(c.Request().Context())
	if err != nil {
		if errors.Is(err, config.ErrUpstreamNotConfigured) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
