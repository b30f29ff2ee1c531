package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dvloznov/mailledger/internal/domain"
)

func TestStore_MarkAndCheck(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	ok, err := s.IsProcessed(ctx, "m1")
	if err != nil || ok {
		t.Fatalf("IsProcessed on empty store = %v, %v", ok, err)
	}

	if err := s.MarkProcessed(ctx, "m1", 1727839800000); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	ok, err = s.IsProcessed(ctx, "m1")
	if err != nil || !ok {
		t.Errorf("IsProcessed after mark = %v, %v", ok, err)
	}
}

func TestStore_EmptyID(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.IsProcessed(ctx, ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("IsProcessed(\"\") error = %v", err)
	}
	if err := s.MarkProcessed(ctx, "", 1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("MarkProcessed(\"\") error = %v", err)
	}
}

func TestStore_LatestProcessedDate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	d, err := s.LatestProcessedDate(ctx)
	if err != nil || d != nil {
		t.Fatalf("LatestProcessedDate on empty store = %v, %v", d, err)
	}

	// 2024-10-02T03:30:00Z, then an older message marked later.
	_ = s.MarkProcessed(ctx, "new", 1727839800000)
	_ = s.MarkProcessed(ctx, "old", 1727740800000)

	d, err = s.LatestProcessedDate(ctx)
	if err != nil {
		t.Fatalf("LatestProcessedDate failed: %v", err)
	}
	if d == nil || d.String() != "2024-10-02" {
		t.Errorf("LatestProcessedDate = %v, want 2024-10-02", d)
	}
}

func TestStore_FirstRecordWins(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.MarkProcessed(ctx, "m1", 1000)
	_ = s.MarkProcessed(ctx, "m1", 2000)

	records := s.Records()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].TimestampMillis != 1000 || !records[0].Processed {
		t.Errorf("Unexpected record %+v", records[0])
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.MarkProcessed(ctx, "m", int64(i))
			_, _ = s.IsProcessed(ctx, "m")
		}(i)
	}
	wg.Wait()

	if len(s.Records()) != 1 {
		t.Errorf("Expected a single record, got %d", len(s.Records()))
	}
}
