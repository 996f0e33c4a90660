package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chatmirror/chatmirror/internal/chatlog"
)

// Service runs the full pipeline for one webhook delivery: normalize the body
// into candidates, drop noise, extract canonical fields, and write both
// stores. It never fails: the webhook boundary acknowledges everything.
type Service struct {
	logger    *slog.Logger
	store     *chatlog.Store
	extractor *Extractor
}

// NewService creates the ingestion service.
func NewService(log *slog.Logger, store *chatlog.Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		logger:    log.With(slog.String("service", "ingest")),
		store:     store,
		extractor: NewExtractor(),
	}
}

// IngestPayload processes one raw webhook body and returns how many candidate
// records were accepted into the stores.
func (s *Service) IngestPayload(ctx context.Context, body []byte) int {
	candidates := NormalizeRaw(body)
	if len(candidates) == 0 {
		s.logger.DebugContext(ctx, "payload yielded no candidates", slog.Int("body_bytes", len(body)))
		return 0
	}
	accepted := 0
	for _, candidate := range candidates {
		if s.IngestCandidate(ctx, candidate) {
			accepted++
		}
	}
	return accepted
}

// IngestCandidate classifies, extracts, and stores a single candidate record.
// Backfill pages reuse this path so both ingestion sources produce identical
// shapes. Reports whether the candidate reached the stores.
func (s *Service) IngestCandidate(ctx context.Context, candidate map[string]any) bool {
	rawType := stringField(candidate, "type", "event", "status")
	if IsNoise(rawType) {
		return false
	}
	rec, patch, err := s.extractor.Extract(candidate)
	if err != nil {
		if !errors.Is(err, ErrNoConversationID) {
			s.logger.WarnContext(ctx, "extract candidate failed", slog.Any("error", err))
		}
		return false
	}
	s.store.UpsertConversation(rec.ConversationID, patch)
	s.store.PushMessage(rec)
	return true
}
