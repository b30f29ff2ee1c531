// Package firestore keeps the processed-message watermark and a copy of every
// transaction in Cloud Firestore.
package firestore

import (
	"context"
	"fmt"
	"strconv"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/watermark"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// processedDoc is the document written per processed message. timestamp keeps
// the milliseconds as text; timestamp_ms is the same value for ordering.
type processedDoc struct {
	Processed   bool   `firestore:"processed"`
	Timestamp   string `firestore:"timestamp"`
	TimestampMs int64  `firestore:"timestamp_ms"`
}

func newProcessedDoc(timestampMillis int64) processedDoc {
	return processedDoc{
		Processed:   true,
		Timestamp:   strconv.FormatInt(timestampMillis, 10),
		TimestampMs: timestampMillis,
	}
}

// NewClient opens a Firestore client for projectID.
func NewClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}
	return client, nil
}

// WatermarkStore implements watermark.Store with one document per message id.
type WatermarkStore struct {
	client     *firestore.Client
	collection string
}

// NewWatermarkStore creates a store writing to collection.
func NewWatermarkStore(client *firestore.Client, collection string) *WatermarkStore {
	return &WatermarkStore{client: client, collection: collection}
}

// IsProcessed implements watermark.Store.
func (s *WatermarkStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	if err := watermark.CheckID(messageID); err != nil {
		return false, fmt.Errorf("IsProcessed: %w", err)
	}
	snap, err := s.client.Collection(s.collection).Doc(messageID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsProcessed: %s: %w", messageID, err)
	}
	var doc processedDoc
	if err := snap.DataTo(&doc); err != nil {
		return false, fmt.Errorf("IsProcessed: decode %s: %w", messageID, err)
	}
	return doc.Processed, nil
}

// MarkProcessed implements watermark.Store. Create fails on an existing
// document, which keeps the first record.
func (s *WatermarkStore) MarkProcessed(ctx context.Context, messageID string, timestampMillis int64) error {
	if err := watermark.CheckID(messageID); err != nil {
		return fmt.Errorf("MarkProcessed: %w", err)
	}
	_, err := s.client.Collection(s.collection).Doc(messageID).Create(ctx, newProcessedDoc(timestampMillis))
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	if err != nil {
		return fmt.Errorf("MarkProcessed: %s: %w", messageID, err)
	}
	return nil
}

// LatestProcessedDate implements watermark.Store.
func (s *WatermarkStore) LatestProcessedDate(ctx context.Context) (*civil.Date, error) {
	it := s.client.Collection(s.collection).
		OrderBy("timestamp_ms", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer it.Stop()

	snap, err := it.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestProcessedDate: %w", err)
	}
	var doc processedDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("LatestProcessedDate: decode %s: %w", snap.Ref.ID, err)
	}
	return watermark.DateOf(doc.TimestampMs), nil
}

// TransactionSink writes each transaction as a document keyed by its id.
type TransactionSink struct {
	client     *firestore.Client
	collection string
}

// NewTransactionSink creates a sink writing to collection.
func NewTransactionSink(client *firestore.Client, collection string) *TransactionSink {
	return &TransactionSink{client: client, collection: collection}
}

// WriteTransaction stores tx under its transaction id, replacing any earlier write.
func (s *TransactionSink) WriteTransaction(ctx context.Context, tx domain.Transaction) error {
	if tx.TransactionID == "" {
		return fmt.Errorf("WriteTransaction: transaction id is required: %w", domain.ErrInvalidArgument)
	}
	if _, err := s.client.Collection(s.collection).Doc(tx.TransactionID).Set(ctx, tx); err != nil {
		return fmt.Errorf("WriteTransaction: %s: %w", tx.TransactionID, err)
	}
	return nil
}

// Ensure WatermarkStore implements watermark.Store interface.
var _ watermark.Store = (*WatermarkStore)(nil)
