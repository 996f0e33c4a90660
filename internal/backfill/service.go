// Package backfill imports historical conversations and messages from the
// upstream provider's REST surface. The upstream exposes several generations
// of list/messages endpoints with inconsistent shapes, so every discovery
// step probes an ordered list of candidates and the first usable response
// wins. Imported pages flow through the same extraction pipeline as live
// webhook deliveries.
package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chatmirror/chatmirror/internal/chatlog"
	"github.com/chatmirror/chatmirror/internal/config"
	"github.com/chatmirror/chatmirror/internal/ingest"
)

// Ingestor feeds one upstream message item into the stores. Satisfied by
// *ingest.Service.
type Ingestor interface {
	IngestCandidate(ctx context.Context, candidate map[string]any) bool
}

// listEndpoint is one candidate conversation-listing surface: a path plus the
// wrapper field names its generation of the API may use around the array.
type listEndpoint struct {
	name     string
	path     string
	wrappers []string
}

// pageEndpoint is one candidate per-conversation message-history surface.
// The path receives the escaped conversation id; wrappers as above.
type pageEndpoint struct {
	name     string
	path     func(conversationID string) string
	wrappers []string
}

var conversationEndpoints = []listEndpoint{
	{name: "chats", path: "/chats", wrappers: []string{"chats", "items"}},
	{name: "contacts", path: "/contacts", wrappers: []string{"contacts", "items"}},
	{name: "conversations", path: "/conversations", wrappers: []string{"conversations", "items"}},
}

var messageEndpoints = []pageEndpoint{
	{
		name:     "chat-messages",
		path:     func(id string) string { return "/chat-messages/" + url.PathEscape(id) },
		wrappers: []string{"messages", "items"},
	},
	{
		name:     "messages",
		path:     func(id string) string { return "/messages?chatId=" + url.QueryEscape(id) },
		wrappers: []string{"messages", "items"},
	},
}

// Service drives the historical import. Conversations are imported
// concurrently under a worker limit; pages within one conversation are
// inherently sequential because each page's cursor comes from the previous
// response.
type Service struct {
	logger   *slog.Logger
	client   *http.Client
	cfg      config.UpstreamConfig
	store    *chatlog.Store
	ingestor Ingestor
}

// NewService creates a backfill service.
func NewService(log *slog.Logger, cfg config.UpstreamConfig, store *chatlog.Store, ingestor Ingestor) *Service {
	if log == nil {
		log = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultUpstreamTimeoutS) * time.Second
	}
	return &Service{
		logger:   log.With(slog.String("service", "backfill")),
		client:   &http.Client{Timeout: timeout},
		cfg:      cfg,
		store:    store,
		ingestor: ingestor,
	}
}

// Run executes one full historical import and reports the result. A missing
// upstream configuration fails before any network call. List-endpoint
// exhaustion degrades to an empty conversation set; per-conversation page
// failures are collected in the report instead of aborting the run.
func (s *Service) Run(ctx context.Context) (Report, error) {
	if err := s.cfg.Validate(); err != nil {
		return Report{}, err
	}

	conversations := s.listConversations(ctx)
	s.logger.InfoContext(ctx, "backfill discovered conversations", slog.Int("count", len(conversations)))

	var (
		mu       sync.Mutex
		report   = Report{Conversations: len(conversations)}
		workers  = s.cfg.BackfillWorkers
		pageSize = s.cfg.PageSize
	)
	if workers <= 0 {
		workers = config.DefaultBackfillWorkers
	}
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, conversationID := range conversations {
		conversationID := conversationID
		group.Go(func() error {
			imported, err := s.importConversation(groupCtx, conversationID, pageSize)
			mu.Lock()
			report.Messages += imported
			if err != nil {
				report.Failed = append(report.Failed, ConversationFailure{
					ConversationID: conversationID,
					Error:          err.Error(),
				})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report, err
	}

	s.logger.InfoContext(ctx, "backfill finished",
		slog.Int("conversations", report.Conversations),
		slog.Int("messages", report.Messages),
		slog.Int("failed", len(report.Failed)))
	return report, nil
}

// listConversations probes the candidate list endpoints in priority order and
// returns the conversation ids of the first usable response. Exhausting every
// candidate yields an empty set rather than an error.
func (s *Service) listConversations(ctx context.Context) []string {
	for _, endpoint := range conversationEndpoints {
		payload, err := s.fetchJSON(ctx, s.cfg.BaseURL+endpoint.path)
		if err != nil {
			s.logger.DebugContext(ctx, "conversation list candidate failed",
				slog.String("endpoint", endpoint.name), slog.Any("error", err))
			continue
		}
		items, ok := itemsOf(payload, endpoint.wrappers)
		if !ok {
			continue
		}
		var ids []string
		seen := map[string]struct{}{}
		for _, item := range items {
			id := ingest.ConversationIDOf(item)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			s.store.UpsertConversation(id, ingest.SummaryPatchOf(item))
		}
		s.logger.InfoContext(ctx, "conversation list resolved",
			slog.String("endpoint", endpoint.name), slog.Int("count", len(ids)))
		return ids
	}
	s.logger.WarnContext(ctx, "all conversation list endpoints failed; proceeding with empty set")
	return nil
}

// importConversation pulls the full message history of one conversation.
// Candidate endpoints are probed only for the first page; once an endpoint
// has answered, a later page failure is a reportable gap, not a reason to
// retry another candidate.
func (s *Service) importConversation(ctx context.Context, conversationID string, pageSize int) (int, error) {
	for _, endpoint := range messageEndpoints {
		items, cursor, err := s.fetchPage(ctx, endpoint, conversationID, pageSize, "")
		if err != nil {
			s.logger.DebugContext(ctx, "message page candidate failed",
				slog.String("endpoint", endpoint.name),
				slog.String("conversation_id", conversationID),
				slog.Any("error", err))
			continue
		}

		imported := s.ingestItems(ctx, items)
		for cursor != "" {
			items, cursor, err = s.fetchPage(ctx, endpoint, conversationID, pageSize, cursor)
			if err != nil {
				return imported, fmt.Errorf("page after cursor failed on %s: %w", endpoint.name, err)
			}
			imported += s.ingestItems(ctx, items)
		}
		return imported, nil
	}
	return 0, fmt.Errorf("no message endpoint answered for conversation %s", conversationID)
}

func (s *Service) ingestItems(ctx context.Context, items []map[string]any) int {
	imported := 0
	for _, item := range items {
		if s.ingestor.IngestCandidate(ctx, item) {
			imported++
		}
	}
	return imported
}

// fetchPage requests one history page and extracts its items plus the cursor
// for the next page ("" when the endpoint reports no continuation).
func (s *Service) fetchPage(ctx context.Context, endpoint pageEndpoint, conversationID string, pageSize int, cursor string) ([]map[string]any, string, error) {
	target := s.cfg.BaseURL + endpoint.path(conversationID)
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	target += sep + "limit=" + strconv.Itoa(pageSize)
	if cursor != "" {
		target += "&cursor=" + url.QueryEscape(cursor)
	}

	payload, err := s.fetchJSON(ctx, target)
	if err != nil {
		return nil, "", err
	}
	items, ok := itemsOf(payload, endpoint.wrappers)
	if !ok {
		return nil, "", fmt.Errorf("response from %s has no recognizable item array", endpoint.name)
	}
	return items, nextCursorOf(payload), nil
}

func (s *Service) fetchJSON(ctx context.Context, target string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode upstream body: %w", err)
	}
	return payload, nil
}

// itemsOf accepts either a bare array or an object wrapping the array under
// one of the given field names.
func itemsOf(payload any, wrappers []string) ([]map[string]any, bool) {
	switch v := payload.(type) {
	case []any:
		return objects(v), true
	case map[string]any:
		for _, wrapper := range wrappers {
			if arr, ok := v[wrapper].([]any); ok {
				return objects(arr), true
			}
		}
	}
	return nil, false
}

func nextCursorOf(payload any) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	switch cursor := obj["nextCursor"].(type) {
	case string:
		return strings.TrimSpace(cursor)
	case float64:
		if cursor <= 0 {
			return ""
		}
		return strconv.FormatInt(int64(cursor), 10)
	}
	return ""
}

func objects(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
