package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatmirror/chatmirror/internal/chatlog"
	"github.com/chatmirror/chatmirror/internal/ingest"
)

func newWebhookEnv() (*echo.Echo, *chatlog.Store) {
	store := chatlog.NewStore()
	e := echo.New()
	NewWebhookHandler(nil, ingest.NewService(nil, store)).Register(e)
	return e, store
}

func postWebhook(e *echo.Echo, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcceptsMessage(t *testing.T) {
	e, store := newWebhookEnv()

	rec := postWebhook(e, echo.MIMEApplicationJSON,
		`{"type":"message","message":{"chatId":"551199@c.us","body":"hi","timestamp":1700000000}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["received"])
	assert.Equal(t, 1, store.ConversationCount())
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	e, store := newWebhookEnv()

	for _, body := range []string{
		`not json`,
		`{"type":"PresenceChatCallback","phone":"5511"}`,
		`{"unrelated":true}`,
		``,
	} {
		rec := postWebhook(e, echo.MIMEApplicationJSON, body)
		assert.Equal(t, http.StatusOK, rec.Code, "body %q must be acknowledged", body)
	}
	assert.Zero(t, store.ConversationCount())
}

func TestWebhookFormEncodedPayload(t *testing.T) {
	e, store := newWebhookEnv()

	form := url.Values{}
	form.Set("payload", `{"chatId":"551199@c.us","body":"from form","timestamp":1700000000}`)
	rec := postWebhook(e, echo.MIMEApplicationForm, form.Encode())
	assert.Equal(t, http.StatusOK, rec.Code)

	items, _ := store.PageMessages("551199@c.us", 0, 50)
	require.Len(t, items, 1)
	assert.Equal(t, "from form", items[0].Text)
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	e, _ := newWebhookEnv()

	rec := postWebhook(e, echo.MIMEApplicationJSON, strings.Repeat("a", int(webhookMaxBodyBytes)+10))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhookProbe(t *testing.T) {
	e, _ := newWebhookEnv()

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
