package chatlog

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
)

const (
	shardCount = 32

	// DefaultPageSize is applied when a messages read supplies no page size.
	DefaultPageSize = 50
	maxPageSize     = 200
)

type conversationState struct {
	summary  ConversationSummary
	messages []MessageRecord
	seen     map[string]struct{}
	synthSeq uint64
}

type shard struct {
	mu    sync.Mutex
	convs map[string]*conversationState
}

// Store owns both the conversation summaries and the per-conversation message
// logs. Conversations are partitioned across fixed shards so concurrent
// webhook deliveries and backfill workers only contend per conversation group.
type Store struct {
	shards [shardCount]*shard
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{convs: map[string]*conversationState{}}
	}
	return s
}

func (s *Store) shardFor(conversationID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return s.shards[h.Sum32()%shardCount]
}

func (sh *shard) getOrCreate(conversationID string) *conversationState {
	state, ok := sh.convs[conversationID]
	if !ok {
		state = &conversationState{
			summary: ConversationSummary{ID: conversationID},
			seen:    map[string]struct{}{},
		}
		sh.convs[conversationID] = state
	}
	return state
}

// UpsertConversation merges the supplied fields into the conversation summary,
// creating it on first sighting. Present values replace stored ones; absent
// values keep whatever is already there. LastTs never decreases.
func (s *Store) UpsertConversation(conversationID string, patch ConversationPatch) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return
	}
	sh := s.shardFor(conversationID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	state := sh.getOrCreate(conversationID)
	summary := &state.summary

	if patch.Name != "" {
		summary.Name = patch.Name
	}
	if patch.Phone != "" {
		summary.Phone = patch.Phone
	}
	if patch.AvatarRef != "" {
		summary.AvatarRef = patch.AvatarRef
	}
	if patch.PreviewKind != "" || patch.PreviewText != "" {
		summary.Preview = Preview{Kind: patch.PreviewKind, Text: patch.PreviewText}
	}
	if patch.LastTs > summary.LastTs {
		summary.LastTs = patch.LastTs
	}
	if summary.Phone == "" {
		summary.Phone = localDigits(conversationID)
	}
	if summary.Name == "" {
		if summary.Phone != "" {
			summary.Name = summary.Phone
		} else {
			summary.Name = conversationID
		}
	}
}

// PushMessage prepends the record to its conversation's log. A record whose id
// is already present is dropped. Records without an id get a synthesized
// "{conversationId}-{ts}-{seq}" id; the per-conversation sequence keeps two
// distinct id-less records with the same timestamp from deduplicating each
// other. Reports whether the record was stored.
func (s *Store) PushMessage(rec MessageRecord) bool {
	rec.ConversationID = strings.TrimSpace(rec.ConversationID)
	if rec.ConversationID == "" {
		return false
	}
	sh := s.shardFor(rec.ConversationID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	state := sh.getOrCreate(rec.ConversationID)
	if rec.ID == "" {
		state.synthSeq++
		rec.ID = fmt.Sprintf("%s-%d-%d", rec.ConversationID, rec.Ts, state.synthSeq)
	}
	if _, dup := state.seen[rec.ID]; dup {
		return false
	}
	state.seen[rec.ID] = struct{}{}
	// Newest-first insertion order; out-of-order arrivals are not re-sorted.
	state.messages = append([]MessageRecord{rec}, state.messages...)
	return true
}

// ListConversations returns a snapshot of every summary, most recent activity
// first.
func (s *Store) ListConversations() []ConversationSummary {
	var out []ConversationSummary
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, state := range sh.convs {
			out = append(out, state.summary)
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastTs != out[j].LastTs {
			return out[i].LastTs > out[j].LastTs
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PageMessages returns a window of the conversation's newest-first log.
// nextCursor is cursor+pageSize when more records remain, nil at the end.
func (s *Store) PageMessages(conversationID string, cursor, pageSize int) ([]MessageRecord, *int) {
	if cursor < 0 {
		cursor = 0
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	sh := s.shardFor(conversationID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	state, ok := sh.convs[conversationID]
	if !ok || cursor >= len(state.messages) {
		return []MessageRecord{}, nil
	}
	end := cursor + pageSize
	if end > len(state.messages) {
		end = len(state.messages)
	}
	items := make([]MessageRecord, end-cursor)
	copy(items, state.messages[cursor:end])

	if end >= len(state.messages) {
		return items, nil
	}
	next := end
	return items, &next
}

// ConversationCount reports how many conversations the store holds.
func (s *Store) ConversationCount() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.convs)
		sh.mu.Unlock()
	}
	return n
}

// localDigits derives a bare phone from a provider-native id such as
// "551199001122@c.us" by keeping the digits of the local part.
func localDigits(conversationID string) string {
	local := conversationID
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	var b strings.Builder
	for _, r := range local {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
