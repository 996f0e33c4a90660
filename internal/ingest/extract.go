package ingest

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/chatmirror/chatmirror/internal/chatlog"
)

// DefaultDomainSuffix completes a bare phone number into a provider-native
// conversation id.
const DefaultDomainSuffix = "@c.us"

const (
	chatPreviewLimit  = 120
	mediaPreviewLimit = 80
)

// ErrNoConversationID marks a candidate from which no conversation identity
// could be derived. Such candidates are dropped without touching the stores.
var ErrNoConversationID = errors.New("candidate has no derivable conversation id")

var (
	conversationIDKeys = []string{"chatId", "from", "jid", "remoteJid"}
	nameKeys           = []string{"senderName", "chatName", "name"}
	avatarKeys         = []string{"senderPhoto", "photo", "avatarUrl"}
	kindKeys           = []string{"type", "messageType"}
	messageIDKeys      = []string{"messageId", "id"}
	mediaKeys          = []string{"mediaUrl", "imageUrl", "documentUrl"}
)

// Extractor derives canonical message records from candidate objects by
// probing ordered field-name alias chains per attribute.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates an extractor using the wall clock for the last-resort
// timestamp fallback.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// Extract derives the canonical message record and the conversation summary
// patch it implies. It fails only when no conversation id can be derived.
func (e *Extractor) Extract(candidate map[string]any) (chatlog.MessageRecord, chatlog.ConversationPatch, error) {
	conversationID := e.conversationID(candidate)
	if conversationID == "" {
		return chatlog.MessageRecord{}, chatlog.ConversationPatch{}, ErrNoConversationID
	}

	phone := stringField(candidate, "phone")
	phone = digitsOnly(phone)
	if phone == "" {
		phone = localPartDigits(conversationID)
	}

	name := stringField(candidate, nameKeys...)
	if name == "" {
		name = phone
	}

	ts := e.timestamp(candidate)
	mediaRef := mediaRef(candidate)
	kind := kind(candidate, mediaRef)
	text := text(candidate)

	rec := chatlog.MessageRecord{
		ID:             messageID(candidate),
		ConversationID: conversationID,
		FromMe:         boolField(candidate, "fromMe"),
		Kind:           kind,
		Text:           text,
		MediaRef:       mediaRef,
		Ts:             ts,
	}
	patch := chatlog.ConversationPatch{
		Name:        name,
		Phone:       phone,
		AvatarRef:   stringField(candidate, avatarKeys...),
		PreviewKind: kind,
		PreviewText: previewText(kind, text),
		LastTs:      ts,
	}
	return rec, patch, nil
}

func (e *Extractor) conversationID(candidate map[string]any) string {
	if id := stringField(candidate, conversationIDKeys...); id != "" {
		return id
	}
	// A bare phone still identifies the conversation once normalized.
	if phone := digitsOnly(stringField(candidate, "phone")); phone != "" {
		return phone + DefaultDomainSuffix
	}
	return ""
}

func (e *Extractor) timestamp(candidate map[string]any) int64 {
	// "momment" is the already-milliseconds field some gateway plans emit;
	// the misspelling is the upstream's, probed alongside the spelled form.
	for _, key := range []string{"momment", "moment"} {
		if ms, ok := numberField(candidate, key); ok && ms > 0 {
			return int64(ms)
		}
	}
	if sec, ok := numberField(candidate, "timestamp"); ok && sec > 0 {
		return int64(sec) * 1000
	}
	// Last resort only: wall clock makes id-less duplicates unreproducible.
	return e.now().UnixMilli()
}

func kind(candidate map[string]any, mediaRef string) string {
	k := stringField(candidate, kindKeys...)
	if k == receivedCallbackType || k == "message" {
		return "chat"
	}
	if k != "" {
		return k
	}
	if mediaRef != "" {
		return "image"
	}
	return "chat"
}

func text(candidate map[string]any) string {
	if body, ok := candidate["body"].(string); ok {
		return body
	}
	switch t := candidate["text"].(type) {
	case string:
		return t
	case map[string]any:
		if msg, ok := t["message"].(string); ok {
			return msg
		}
		if caption, ok := t["caption"].(string); ok {
			return caption
		}
	}
	if caption, ok := candidate["caption"].(string); ok {
		return caption
	}
	return ""
}

func mediaRef(candidate map[string]any) string {
	if ref := stringField(candidate, mediaKeys...); ref != "" {
		return ref
	}
	// Media may arrive as a nested {image: {imageUrl: ...}} style object.
	for _, key := range []string{"image", "document"} {
		if nested, ok := candidate[key].(map[string]any); ok {
			if ref := stringField(nested, "mediaUrl", "imageUrl", "documentUrl", "url"); ref != "" {
				return ref
			}
		}
	}
	return ""
}

func messageID(candidate map[string]any) string {
	if id := stringField(candidate, messageIDKeys...); id != "" {
		return id
	}
	if key, ok := candidate["key"].(map[string]any); ok {
		if id := stringField(key, "id"); id != "" {
			return id
		}
	}
	return ""
}

// ConversationIDOf derives the conversation id from an upstream list item
// using the same alias chain the extractor probes, so both ingestion sources
// key conversations identically.
func ConversationIDOf(item map[string]any) string {
	if id := stringField(item, conversationIDKeys...); id != "" {
		return id
	}
	if phone := digitsOnly(stringField(item, "phone")); phone != "" {
		return phone + DefaultDomainSuffix
	}
	return ""
}

// SummaryPatchOf derives the display metadata an upstream conversation list
// item carries. List items have no message content, so the patch never
// touches preview or lastTs.
func SummaryPatchOf(item map[string]any) chatlog.ConversationPatch {
	return chatlog.ConversationPatch{
		Name:      stringField(item, nameKeys...),
		Phone:     digitsOnly(stringField(item, "phone")),
		AvatarRef: stringField(item, avatarKeys...),
	}
}

// previewText renders the conversation-listing preview: plain chat text cut
// to 120 chars, anything else tagged "[kind] " and cut to 80.
func previewText(kind, text string) string {
	if kind == "chat" {
		return truncate(text, chatPreviewLimit)
	}
	return "[" + kind + "] " + truncate(text, mediaPreviewLimit)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func numberField(obj map[string]any, key string) (float64, bool) {
	n, ok := obj[key].(float64)
	return n, ok
}

func boolField(obj map[string]any, key string) bool {
	switch v := obj[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	case float64:
		return v != 0
	}
	if key == "fromMe" {
		if nested, ok := obj["key"].(map[string]any); ok {
			return boolField(nested, key)
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func localPartDigits(conversationID string) string {
	local := conversationID
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	return digitsOnly(local)
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
