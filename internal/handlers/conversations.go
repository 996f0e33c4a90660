package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chatmirror/chatmirror/internal/chatlog"
)

// ConversationsHandler serves the read-side projections over the stores.
type ConversationsHandler struct {
	logger *slog.Logger
	store  *chatlog.Store
}

// MessagesPage is the paginated messages response. NextCursor is null once
// the log is exhausted.
type MessagesPage struct {
	Items      []chatlog.MessageRecord `json:"items"`
	NextCursor *int                    `json:"nextCursor"`
}

// NewConversationsHandler creates the read-side handler.
func NewConversationsHandler(log *slog.Logger, store *chatlog.Store) *ConversationsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ConversationsHandler{
		logger: log.With(slog.String("handler", "conversations")),
		store:  store,
	}
}

// Register registers the read routes.
func (h *ConversationsHandler) Register(e *echo.Echo) {
	e.GET("/conversations", h.List)
	e.GET("/conversations/:id/messages", h.Messages)
}

// List returns every conversation summary, most recent activity first.
func (h *ConversationsHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.ListConversations())
}

// Messages returns one page of a conversation's newest-first message log.
func (h *ConversationsHandler) Messages(c echo.Context) error {
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}
	cursor := intQuery(c, "cursor", 0)
	pageSize := intQuery(c, "pageSize", chatlog.DefaultPageSize)

	items, next := h.store.PageMessages(conversationID, cursor, pageSize)
	return c.JSON(http.StatusOK, MessagesPage{Items: items, NextCursor: next})
}

func intQuery(c echo.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
