package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockNotionService struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePageFunc    func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	DeletePageFunc    func(ctx context.Context, pageID string) error

	created []notionapi.Properties
	updated []string
	deleted []string
}

func (m *mockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, databaseID, properties)
	}
	m.created = append(m.created, properties)
	return &notionapi.Page{ID: "new-page"}, nil
}

func (m *mockNotionService) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.UpdatePageFunc != nil {
		return m.UpdatePageFunc(ctx, pageID, properties)
	}
	m.updated = append(m.updated, pageID)
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *mockNotionService) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryDatabaseFunc != nil {
		return m.QueryDatabaseFunc(ctx, databaseID, filter)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (m *mockNotionService) DeletePage(ctx context.Context, pageID string) error {
	if m.DeletePageFunc != nil {
		return m.DeletePageFunc(ctx, pageID)
	}
	m.deleted = append(m.deleted, pageID)
	return nil
}

type sourceFunc func(ctx context.Context, start, end civil.Date) ([]domain.Transaction, error)

func (f sourceFunc) QueryTransactionsByDateRange(ctx context.Context, start, end civil.Date) ([]domain.Transaction, error) {
	return f(ctx, start, end)
}

func staticSource(txs ...domain.Transaction) TransactionSource {
	return sourceFunc(func(ctx context.Context, start, end civil.Date) ([]domain.Transaction, error) {
		return txs, nil
	})
}

func page(id, txID string, date time.Time) notionapi.Page {
	d := notionapi.Date(date)
	return notionapi.Page{
		ID: notionapi.ObjectID(id),
		Properties: notionapi.Properties{
			PropTransactionID: &notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: txID}},
			},
			PropDate: &notionapi.DateProperty{
				Date: &notionapi.DateObject{Start: &d},
			},
		},
	}
}

var (
	rangeStart = civil.Date{Year: 2024, Month: 10, Day: 1}
	rangeEnd   = civil.Date{Year: 2024, Month: 10, Day: 31}
)

func sampleTx(id, merchant string) domain.Transaction {
	return domain.Transaction{
		TransactionID:   id,
		TransactionDate: "2024-10-02",
		Merchant:        merchant,
		Bucket:          domain.BucketExpense,
		Amount:          "-12.34",
		AccountName:     "Chase",
		IsRecurring:     domain.RecurringFalse,
	}
}

func TestSyncTransactions_CreatesAndUpdates(t *testing.T) {
	notion := &mockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{page("page-1", "t1", time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC))},
			}, nil
		},
	}

	res, err := SyncTransactions(context.Background(), staticSource(sampleTx("t1", "Uber"), sampleTx("t2", "Lyft")), notion, "db", rangeStart, rangeEnd, Options{})
	require.NoError(t, err)

	assert.Equal(t, Result{Created: 1, Updated: 1}, res)
	assert.Equal(t, []string{"page-1"}, notion.updated)
	require.Len(t, notion.created, 1)
	title := notion.created[0][PropMerchant].(notionapi.TitleProperty)
	assert.Equal(t, "Lyft", title.Title[0].Text.Content)
}

func TestSyncTransactions_DryRunTouchesNothing(t *testing.T) {
	notion := &mockNotionService{}

	res, err := SyncTransactions(context.Background(), staticSource(sampleTx("t1", "Uber")), notion, "db", rangeStart, rangeEnd, Options{DryRun: true, Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Empty(t, notion.created)
	assert.Empty(t, notion.updated)
	assert.Empty(t, notion.deleted)
}

func TestSyncTransactions_PrunesOnlyInRange(t *testing.T) {
	notion := &mockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{
				page("stale-in-range", "gone", time.Date(2024, 10, 5, 0, 0, 0, 0, time.UTC)),
				page("stale-out-of-range", "old", time.Date(2024, 9, 5, 0, 0, 0, 0, time.UTC)),
				{ID: "manual", Properties: notionapi.Properties{}},
			}}, nil
		},
	}

	res, err := SyncTransactions(context.Background(), staticSource(), notion, "db", rangeStart, rangeEnd, Options{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, []string{"stale-in-range"}, notion.deleted)
}

func TestSyncTransactions_FollowsCursor(t *testing.T) {
	var calls int
	notion := &mockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			calls++
			if filter.StartCursor == "" {
				return &notionapi.DatabaseQueryResponse{
					Results:    []notionapi.Page{page("p1", "t1", time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC))},
					HasMore:    true,
					NextCursor: "next",
				}, nil
			}
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{page("p2", "t2", time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC))},
			}, nil
		},
	}

	res, err := SyncTransactions(context.Background(), staticSource(sampleTx("t1", "A"), sampleTx("t2", "B")), notion, "db", rangeStart, rangeEnd, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, res.Updated)
}

func TestSyncTransactions_CountsPageFailures(t *testing.T) {
	notion := &mockNotionService{
		CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
			return nil, errors.New("rate limited")
		},
	}

	res, err := SyncTransactions(context.Background(), staticSource(sampleTx("t1", "Uber")), notion, "db", rangeStart, rangeEnd, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Created)
}

func TestSyncTransactions_SourceError(t *testing.T) {
	source := sourceFunc(func(ctx context.Context, start, end civil.Date) ([]domain.Transaction, error) {
		return nil, errors.New("database down")
	})

	_, err := SyncTransactions(context.Background(), source, &mockNotionService{}, "db", rangeStart, rangeEnd, Options{})
	assert.Error(t, err)
}

func TestTransactionToNotionProperties(t *testing.T) {
	tx := sampleTx("t1", "Uber")
	tx.Category = "Transport"

	props := TransactionToNotionProperties(tx)

	assert.Equal(t, -12.34, props[PropAmount].(notionapi.NumberProperty).Number)
	assert.Equal(t, "Transport", props[PropCategory].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, "Chase", props[PropAccount].(notionapi.SelectProperty).Select.Name)
	assert.False(t, props[PropRecurring].(notionapi.CheckboxProperty).Checkbox)
	_, hasSub := props[PropSubcategory]
	assert.False(t, hasSub)

	date := props[PropDate].(notionapi.DateProperty)
	assert.Equal(t, time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC), time.Time(*date.Date.Start))
}
