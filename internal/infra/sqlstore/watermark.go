package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/watermark"
	"gorm.io/gorm/clause"
)

// IsProcessed implements watermark.Store.
func (s *Store) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	if err := watermark.CheckID(messageID); err != nil {
		return false, fmt.Errorf("IsProcessed: %w", err)
	}
	var n int64
	err := s.conn(ctx).Model(&ProcessedMessageModel{}).
		Where("message_id = ? AND processed = ?", messageID, true).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("IsProcessed: %s: %w", messageID, err)
	}
	return n > 0, nil
}

// MarkProcessed implements watermark.Store. An existing record is left untouched.
func (s *Store) MarkProcessed(ctx context.Context, messageID string, timestampMillis int64) error {
	if err := watermark.CheckID(messageID); err != nil {
		return fmt.Errorf("MarkProcessed: %w", err)
	}
	m := ProcessedMessageModel{MessageID: messageID, Processed: true, TimestampMs: timestampMillis}
	if err := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("MarkProcessed: %s: %w", messageID, err)
	}
	return nil
}

// LatestProcessedDate implements watermark.Store.
func (s *Store) LatestProcessedDate(ctx context.Context) (*civil.Date, error) {
	var latest sql.NullInt64
	err := s.conn(ctx).Model(&ProcessedMessageModel{}).
		Select("MAX(timestamp_ms)").
		Scan(&latest).Error
	if err != nil {
		return nil, fmt.Errorf("LatestProcessedDate: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	return watermark.DateOf(latest.Int64), nil
}
