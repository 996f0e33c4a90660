package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedExtractor(ms int64) *Extractor {
	return &Extractor{now: func() time.Time { return time.UnixMilli(ms) }}
}

func TestExtractConversationIDAliases(t *testing.T) {
	tests := []struct {
		name      string
		candidate map[string]any
		wantID    string
	}{
		{"chatId wins", map[string]any{"chatId": "a@c.us", "from": "b@c.us"}, "a@c.us"},
		{"from", map[string]any{"from": "b@c.us"}, "b@c.us"},
		{"jid", map[string]any{"jid": "c@c.us"}, "c@c.us"},
		{"remoteJid", map[string]any{"remoteJid": "d@c.us"}, "d@c.us"},
		{"phone normalized", map[string]any{"phone": "+55 (11) 99001-122"}, "551199001122@c.us"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _, err := fixedExtractor(1).Extract(tt.candidate)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, rec.ConversationID)
		})
	}
}

func TestExtractFailsWithoutIdentity(t *testing.T) {
	_, _, err := fixedExtractor(1).Extract(map[string]any{"body": "orphan"})
	assert.True(t, errors.Is(err, ErrNoConversationID))
}

func TestExtractTimestampDerivation(t *testing.T) {
	e := fixedExtractor(999_000)

	// "momment" is already milliseconds.
	rec, _, err := e.Extract(map[string]any{"chatId": "a@c.us", "momment": float64(1700000000123)})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), rec.Ts)

	// "timestamp" is seconds since epoch.
	rec, _, err = e.Extract(map[string]any{"chatId": "a@c.us", "timestamp": float64(1700000000)})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), rec.Ts)

	// No provider timestamp: wall clock fallback.
	rec, _, err = e.Extract(map[string]any{"chatId": "a@c.us"})
	require.NoError(t, err)
	assert.Equal(t, int64(999_000), rec.Ts)
}

func TestExtractTextAliases(t *testing.T) {
	tests := []struct {
		name      string
		candidate map[string]any
		want      string
	}{
		{"body", map[string]any{"chatId": "a", "body": "from body"}, "from body"},
		{"string text", map[string]any{"chatId": "a", "text": "from text"}, "from text"},
		{"text object message", map[string]any{"chatId": "a", "text": map[string]any{"message": "nested"}}, "nested"},
		{"text object caption", map[string]any{"chatId": "a", "text": map[string]any{"caption": "cap"}}, "cap"},
		{"caption", map[string]any{"chatId": "a", "caption": "top cap"}, "top cap"},
		{"none", map[string]any{"chatId": "a"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _, err := fixedExtractor(1).Extract(tt.candidate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Text)
		})
	}
}

func TestExtractKind(t *testing.T) {
	e := fixedExtractor(1)

	rec, _, err := e.Extract(map[string]any{"chatId": "a", "type": "document"})
	require.NoError(t, err)
	assert.Equal(t, "document", rec.Kind)

	// ReceivedCallback canonicalizes to chat.
	rec, _, err = e.Extract(map[string]any{"chatId": "a", "type": "ReceivedCallback"})
	require.NoError(t, err)
	assert.Equal(t, "chat", rec.Kind)

	// Media reference without a declared type infers image.
	rec, _, err = e.Extract(map[string]any{"chatId": "a", "imageUrl": "https://cdn.example/p.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "image", rec.Kind)
	assert.Equal(t, "https://cdn.example/p.jpg", rec.MediaRef)

	// Default.
	rec, _, err = e.Extract(map[string]any{"chatId": "a", "body": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "chat", rec.Kind)
}

func TestExtractMediaRefNestedObject(t *testing.T) {
	rec, _, err := fixedExtractor(1).Extract(map[string]any{
		"chatId": "a",
		"image":  map[string]any{"imageUrl": "https://cdn.example/n.jpg", "caption": "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/n.jpg", rec.MediaRef)
	assert.Equal(t, "image", rec.Kind)
}

func TestExtractMessageID(t *testing.T) {
	e := fixedExtractor(1)

	rec, _, err := e.Extract(map[string]any{"chatId": "a", "messageId": "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", rec.ID)

	rec, _, err = e.Extract(map[string]any{"chatId": "a", "key": map[string]any{"id": "k1"}})
	require.NoError(t, err)
	assert.Equal(t, "k1", rec.ID)

	// Absent upstream id: left empty for the store to synthesize.
	rec, _, err = e.Extract(map[string]any{"chatId": "a"})
	require.NoError(t, err)
	assert.Empty(t, rec.ID)
}

func TestExtractFromMeCoercion(t *testing.T) {
	e := fixedExtractor(1)
	tests := []struct {
		name      string
		candidate map[string]any
		want      bool
	}{
		{"bool", map[string]any{"chatId": "a", "fromMe": true}, true},
		{"string", map[string]any{"chatId": "a", "fromMe": "true"}, true},
		{"number", map[string]any{"chatId": "a", "fromMe": float64(1)}, true},
		{"nested key", map[string]any{"chatId": "a", "key": map[string]any{"fromMe": true}}, true},
		{"absent", map[string]any{"chatId": "a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _, err := e.Extract(tt.candidate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.FromMe)
		})
	}
}

func TestExtractPreviewTruncation(t *testing.T) {
	e := fixedExtractor(1)
	long := strings.Repeat("x", 200)

	_, patch, err := e.Extract(map[string]any{"chatId": "a", "body": long})
	require.NoError(t, err)
	assert.Equal(t, "chat", patch.PreviewKind)
	assert.Len(t, patch.PreviewText, 120)

	_, patch, err = e.Extract(map[string]any{"chatId": "a", "type": "image", "caption": long})
	require.NoError(t, err)
	assert.Equal(t, "image", patch.PreviewKind)
	assert.Equal(t, "[image] "+strings.Repeat("x", 80), patch.PreviewText)
}

func TestExtractNameAndPhone(t *testing.T) {
	_, patch, err := fixedExtractor(1).Extract(map[string]any{
		"chatId":     "551199001122@c.us",
		"senderName": "Alice",
		"body":       "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", patch.Name)
	assert.Equal(t, "551199001122", patch.Phone)

	// Name falls back to the derived phone.
	_, patch, err = fixedExtractor(1).Extract(map[string]any{"chatId": "551199001122@c.us", "body": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "551199001122", patch.Name)
}

func TestConversationIDOfAndSummaryPatchOf(t *testing.T) {
	item := map[string]any{
		"chatId":     "551199@c.us",
		"senderName": "Bob",
		"photo":      "https://cdn.example/b.jpg",
	}
	assert.Equal(t, "551199@c.us", ConversationIDOf(item))

	patch := SummaryPatchOf(item)
	assert.Equal(t, "Bob", patch.Name)
	assert.Equal(t, "https://cdn.example/b.jpg", patch.AvatarRef)
	assert.Zero(t, patch.LastTs)

	assert.Equal(t, "5511@c.us", ConversationIDOf(map[string]any{"phone": "55-11"}))
	assert.Empty(t, ConversationIDOf(map[string]any{"name": "nobody"}))
}
