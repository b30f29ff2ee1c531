// Package redisstore keeps the processed-message watermark in Redis.
//
// Each processed id is a key set with SETNX so the first record wins. A sorted
// set scored by the send timestamp, written with ZADD NX, answers the
// newest-message query.
package redisstore

import (
	"context"
	"fmt"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/watermark"
	"github.com/go-redis/redis/v8"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "mailledger"

// WatermarkStore implements watermark.Store on Redis.
type WatermarkStore struct {
	rdb    redis.Cmdable
	prefix string
}

// NewWatermarkStore creates a store on rdb using DefaultPrefix.
func NewWatermarkStore(rdb redis.Cmdable) *WatermarkStore {
	return &WatermarkStore{rdb: rdb, prefix: DefaultPrefix}
}

func (s *WatermarkStore) key(messageID string) string {
	return fmt.Sprintf("%s:processed:%s", s.prefix, messageID)
}

func (s *WatermarkStore) indexKey() string {
	return s.prefix + ":processed_ts"
}

// IsProcessed implements watermark.Store.
func (s *WatermarkStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	if err := watermark.CheckID(messageID); err != nil {
		return false, fmt.Errorf("IsProcessed: %w", err)
	}
	n, err := s.rdb.Exists(ctx, s.key(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("IsProcessed: %s: %w", messageID, err)
	}
	return n > 0, nil
}

// MarkProcessed implements watermark.Store.
func (s *WatermarkStore) MarkProcessed(ctx context.Context, messageID string, timestampMillis int64) error {
	if err := watermark.CheckID(messageID); err != nil {
		return fmt.Errorf("MarkProcessed: %w", err)
	}
	if err := s.rdb.SetNX(ctx, s.key(messageID), strconv.FormatInt(timestampMillis, 10), 0).Err(); err != nil {
		return fmt.Errorf("MarkProcessed: %s: %w", messageID, err)
	}
	// The index is written on every call so a retry repairs a failed ZADD.
	// NX keeps the first score.
	if err := s.rdb.ZAddNX(ctx, s.indexKey(), &redis.Z{Score: float64(timestampMillis), Member: messageID}).Err(); err != nil {
		return fmt.Errorf("MarkProcessed: index %s: %w", messageID, err)
	}
	return nil
}

// LatestProcessedDate implements watermark.Store.
func (s *WatermarkStore) LatestProcessedDate(ctx context.Context) (*civil.Date, error) {
	top, err := s.rdb.ZRevRangeWithScores(ctx, s.indexKey(), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("LatestProcessedDate: %w", err)
	}
	if len(top) == 0 {
		return nil, nil
	}
	return watermark.DateOf(int64(top[0].Score)), nil
}

// Ensure WatermarkStore implements watermark.Store interface.
var _ watermark.Store = (*WatermarkStore)(nil)
