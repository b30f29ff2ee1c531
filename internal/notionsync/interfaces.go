package notionsync

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/jomei/notionapi"
)

// NotionService is the subset of the Notion API the sync uses.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	// DeletePage archives the page.
	DeletePage(ctx context.Context, pageID string) error
}

// TransactionSource reads stored transactions dated within [start, end].
type TransactionSource interface {
	QueryTransactionsByDateRange(ctx context.Context, start, end civil.Date) ([]domain.Transaction, error)
}
