package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chatmirror/chatmirror/internal/ingest"
)

const webhookMaxBodyBytes int64 = 1 << 20 // 1 MiB

// formPayloadFields are probed in order when the provider delivers the JSON
// document form-encoded instead of as a raw body.
var formPayloadFields = []string{"payload", "body", "data"}

// WebhookHandler is the live-delivery intake. It acknowledges every payload:
// shape problems are dropped inside the pipeline, never surfaced to the
// provider, so deliveries are not retried into duplicates.
type WebhookHandler struct {
	logger *slog.Logger
	ingest *ingest.Service
}

// NewWebhookHandler creates the webhook intake handler.
func NewWebhookHandler(log *slog.Logger, ingestService *ingest.Service) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger: log.With(slog.String("handler", "webhook")),
		ingest: ingestService,
	}
}

// Register registers the webhook intake route.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Handle)
	e.GET("/webhook", h.HandleProbe)
}

// HandleProbe answers provider URL-verification probes.
func (h *WebhookHandler) HandleProbe(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Handle ingests one webhook delivery.
func (h *WebhookHandler) Handle(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body failed")
	}
	if int64(len(body)) > webhookMaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}

	payload := body
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEApplicationForm) {
		payload = formPayload(body)
	}

	deliveryID := uuid.NewString()
	accepted := h.ingest.IngestPayload(c.Request().Context(), payload)
	h.logger.Info("webhook delivery processed",
		slog.String("delivery_id", deliveryID),
		slog.Int("body_bytes", len(body)),
		slog.Int("accepted", accepted))

	return c.JSON(http.StatusOK, map[string]int{"received": accepted})
}

// formPayload pulls the JSON document out of a form-encoded body. Known field
// names are probed first; failing those, the first non-empty value is taken.
func formPayload(body []byte) []byte {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return body
	}
	for _, field := range formPayloadFields {
		if v := values.Get(field); v != "" {
			return []byte(v)
		}
	}
	for _, vs := range values {
		for _, v := range vs {
			if v != "" {
				return []byte(v)
			}
		}
	}
	return body
}
