package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowFromTransaction(t *testing.T) {
	ingested := time.Date(2024, 10, 2, 4, 0, 0, 0, time.UTC)
	tx := domain.Transaction{
		TransactionID:   "t1",
		TransactionDate: "2024-10-01",
		Merchant:        "WHOLE FOODS MARKET",
		Bucket:          domain.BucketExpense,
		Amount:          "-1,234.50",
		AccountName:     "AmEx",
		IsRecurring:     domain.RecurringFalse,
	}

	row, err := RowFromTransaction(tx, ingested)
	require.NoError(t, err)

	assert.Equal(t, civil.Date{Year: 2024, Month: 10, Day: 1}, row.TransactionDate)
	assert.Equal(t, 0, row.Amount.Cmp(big.NewRat(-123450, 100)))
	assert.True(t, row.Bucket.Valid)
	assert.False(t, row.Category.Valid)
	assert.True(t, row.IsRecurring.Valid)
	assert.False(t, row.IsRecurring.Bool)
	assert.Equal(t, ingested, row.IngestedAt)

	back := row.Transaction()
	assert.Equal(t, "-1234.50", back.Amount)
	assert.Equal(t, "2024-10-01", back.TransactionDate)
	assert.Equal(t, domain.RecurringFalse, back.IsRecurring)
	assert.Equal(t, "", back.Category)
}

func TestRowFromTransaction_Invalid(t *testing.T) {
	_, err := RowFromTransaction(domain.Transaction{TransactionID: "t1", TransactionDate: "10/01/2024", Amount: "1"}, time.Now())
	assert.Error(t, err)

	_, err = RowFromTransaction(domain.Transaction{TransactionID: "t1", TransactionDate: "2024-10-01", Amount: "abc"}, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
