package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/logger"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const transactionsTable = "transactions"

// TransactionStore writes to and reads from <project>.<dataset>.transactions.
type TransactionStore struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	owned     bool
	now       func() time.Time
}

// NewTransactionStore creates a store with its own BigQuery client.
func NewTransactionStore(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*TransactionStore, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewTransactionStore: creating client: %w", err)
	}
	s := NewTransactionStoreWithClient(client, projectID, datasetID)
	s.owned = true
	return s, nil
}

// NewTransactionStoreWithClient creates a store on a shared client. Close does
// not close the client.
func NewTransactionStoreWithClient(client *bigquery.Client, projectID, datasetID string) *TransactionStore {
	return &TransactionStore{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		now:       time.Now,
	}
}

// Close closes the BigQuery client when the store created it.
func (s *TransactionStore) Close() error {
	if s.owned && s.client != nil {
		return s.client.Close()
	}
	return nil
}

// WriteTransaction appends tx to the table.
func (s *TransactionStore) WriteTransaction(ctx context.Context, tx domain.Transaction) error {
	return s.InsertTransactions(ctx, []domain.Transaction{tx})
}

// InsertTransactions streams txs into the table. The transaction id is used as
// the insert id so BigQuery drops retried duplicates on a best-effort basis.
func (s *TransactionStore) InsertTransactions(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	ingestedAt := s.now()
	savers := make([]*bigquery.StructSaver, 0, len(txs))
	for _, tx := range txs {
		row, err := RowFromTransaction(tx, ingestedAt)
		if err != nil {
			return fmt.Errorf("InsertTransactions: %w", err)
		}
		savers = append(savers, &bigquery.StructSaver{Struct: row, InsertID: row.TransactionID})
	}

	table := s.client.DatasetInProject(s.projectID, s.datasetID).Table(transactionsTable)
	if err := table.Inserter().Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().Int("rows", len(txs)).Msg("Inserted transactions into BigQuery")
	return nil
}

// QueryTransactionsByDateRange returns transactions dated within [start, end]
// ordered by date and ingestion time.
func (s *TransactionStore) QueryTransactionsByDateRange(ctx context.Context, start, end civil.Date) ([]domain.Transaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			transaction_date,
			merchant,
			bucket,
			amount,
			category,
			subcategory,
			account_name,
			is_recurring,
			ingested_at
		FROM `+"`%s.%s.%s`"+`
		WHERE transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date, ingested_at
	`, s.projectID, s.datasetID, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: start},
		{Name: "end_date", Value: end},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByDateRange: query read: %w", err)
	}

	var out []domain.Transaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByDateRange: iter next: %w", err)
		}
		out = append(out, r.Transaction())
	}
	return out, nil
}
