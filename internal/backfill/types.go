package backfill

// ConversationFailure records a conversation whose history import could not
// complete. A failure after the first page means the stored history for that
// conversation has a gap.
type ConversationFailure struct {
	ConversationID string `json:"conversationId"`
	Error          string `json:"error"`
}

// Report summarizes one backfill run.
type Report struct {
	Conversations int                   `json:"conversations"`
	Messages      int                   `json:"messages"`
	Failed        []ConversationFailure `json:"failed,omitempty"`
}
