package inmemory

import (
	"context"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/watermark"
)

// Store is an in-memory implementation of watermark.Store.
// It is safe for concurrent use. Records are lost on restart, so it suits
// tests and single-run CLI refreshes.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.ProcessedMessage
	latest  int64
	hasAny  bool
}

// NewStore creates an empty in-memory watermark store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]domain.ProcessedMessage),
	}
}

// IsProcessed implements watermark.Store.
func (s *Store) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	if err := watermark.CheckID(messageID); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.records[messageID]
	return exists, nil
}

// MarkProcessed implements watermark.Store.
func (s *Store) MarkProcessed(ctx context.Context, messageID string, timestampMillis int64) error {
	if err := watermark.CheckID(messageID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[messageID]; exists {
		return nil
	}
	s.records[messageID] = domain.ProcessedMessage{
		MessageID:       messageID,
		Processed:       true,
		TimestampMillis: timestampMillis,
	}
	if !s.hasAny || timestampMillis > s.latest {
		s.latest = timestampMillis
		s.hasAny = true
	}
	return nil
}

// LatestProcessedDate implements watermark.Store.
func (s *Store) LatestProcessedDate(ctx context.Context) (*civil.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasAny {
		return nil, nil
	}
	return watermark.DateOf(s.latest), nil
}

// Records returns a copy of every stored record.
func (s *Store) Records() []domain.ProcessedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ProcessedMessage, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

// Ensure Store implements watermark.Store interface.
var _ watermark.Store = (*Store)(nil)
