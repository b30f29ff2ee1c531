// Package watermark tracks which mailbox messages have already been handled.
//
// A message is recorded once, whether or not it produced a transaction, so a
// malformed message is never retried. The newest recorded timestamp bounds the
// next mailbox listing.
package watermark

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/domain"
)

// Store records processed message ids.
type Store interface {
	// IsProcessed reports whether messageID has been recorded.
	IsProcessed(ctx context.Context, messageID string) (bool, error)

	// MarkProcessed records messageID with the provider's send timestamp.
	// Recording an id twice keeps the first record.
	MarkProcessed(ctx context.Context, messageID string, timestampMillis int64) error

	// LatestProcessedDate returns the UTC date of the newest recorded timestamp,
	// or nil when nothing has been recorded.
	LatestProcessedDate(ctx context.Context) (*civil.Date, error)
}

// CheckID rejects an empty message id.
func CheckID(messageID string) error {
	if messageID == "" {
		return fmt.Errorf("message id is required: %w", domain.ErrInvalidArgument)
	}
	return nil
}

// DateOf converts a stored max timestamp into the value LatestProcessedDate returns.
func DateOf(timestampMillis int64) *civil.Date {
	d := domain.UTCDateFromMillis(timestampMillis)
	return &d
}
