// Package chatlog holds the canonical conversation and message records and the
// in-memory store the ingestion pipeline writes into. The store is volatile:
// it lives for the process lifetime and is rebuilt from webhooks and backfill.
package chatlog

// Preview is the truncated most-recent-message summary shown in conversation
// listings. The full text stays on the MessageRecord; only the preview is cut.
type Preview struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// ConversationSummary is the single mutable record kept per conversation id.
type ConversationSummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	LastTs    int64   `json:"lastTs"`
	AvatarRef string  `json:"avatarRef,omitempty"`
	Preview   Preview `json:"preview"`
}

// MessageRecord is one immutable entry in a conversation's message log.
type MessageRecord struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	FromMe         bool   `json:"fromMe"`
	Kind           string `json:"kind"`
	Text           string `json:"text"`
	MediaRef       string `json:"mediaRef,omitempty"`
	Ts             int64  `json:"ts"`
}

// ConversationPatch carries the summary fields one ingested event contributes.
// Empty string means "not supplied"; merge semantics never let an absent value
// erase a present one.
type ConversationPatch struct {
	Name        string
	Phone       string
	AvatarRef   string
	PreviewKind string
	PreviewText string
	LastTs      int64
}
