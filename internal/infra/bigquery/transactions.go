// Package bigquery appends extracted transactions to a BigQuery table and reads
// them back by date range.
package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/shopspring/decimal"
)

type TransactionRow struct {
	TransactionID   string     `bigquery:"transaction_id"`   // REQUIRED
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED DATE
	Merchant        string     `bigquery:"merchant"`         // REQUIRED

	Bucket bigquery.NullString `bigquery:"bucket"` // NULLABLE

	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC

	Category    bigquery.NullString `bigquery:"category"`    // NULLABLE
	Subcategory bigquery.NullString `bigquery:"subcategory"` // NULLABLE

	AccountName string            `bigquery:"account_name"` // REQUIRED
	IsRecurring bigquery.NullBool `bigquery:"is_recurring"` // NULLABLE

	IngestedAt time.Time `bigquery:"ingested_at"` // REQUIRED TIMESTAMP
}

// RowFromTransaction converts tx into a row stamped with ingestedAt.
func RowFromTransaction(tx domain.Transaction, ingestedAt time.Time) (*TransactionRow, error) {
	date, err := domain.ParseDate(tx.TransactionDate)
	if err != nil {
		return nil, fmt.Errorf("RowFromTransaction: %s: %w", tx.TransactionID, err)
	}
	amount, err := domain.ParseAmount(tx.Amount)
	if err != nil {
		return nil, fmt.Errorf("RowFromTransaction: %s: %w", tx.TransactionID, err)
	}

	return &TransactionRow{
		TransactionID:   tx.TransactionID,
		TransactionDate: date,
		Merchant:        tx.Merchant,
		Bucket:          nullString(tx.Bucket),
		Amount:          amount.Rat(),
		Category:        nullString(tx.Category),
		Subcategory:     nullString(tx.Subcategory),
		AccountName:     tx.AccountName,
		IsRecurring:     bigquery.NullBool{Bool: tx.IsRecurring == "True", Valid: tx.IsRecurring != ""},
		IngestedAt:      ingestedAt.UTC(),
	}, nil
}

// Transaction converts the row back into the flat text record.
func (r *TransactionRow) Transaction() domain.Transaction {
	amount := ""
	if r.Amount != nil {
		amount = decimal.NewFromBigRat(r.Amount, 2).StringFixed(2)
	}
	recurring := ""
	if r.IsRecurring.Valid {
		recurring = domain.RecurringFalse
		if r.IsRecurring.Bool {
			recurring = "True"
		}
	}

	return domain.Transaction{
		TransactionID:   r.TransactionID,
		TransactionDate: r.TransactionDate.String(),
		Merchant:        r.Merchant,
		Bucket:          r.Bucket.StringVal,
		Amount:          amount,
		Category:        r.Category.StringVal,
		Subcategory:     r.Subcategory.StringVal,
		AccountName:     r.AccountName,
		IsRecurring:     recurring,
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
