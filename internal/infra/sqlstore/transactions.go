package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WriteTransaction inserts tx, replacing any row with the same id.
func (s *Store) WriteTransaction(ctx context.Context, tx domain.Transaction) error {
	m := transactionToModel(tx)
	err := s.conn(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "transaction_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"transaction_date", "merchant", "bucket", "amount",
				"category", "subcategory", "account_name", "is_recurring",
			}),
		}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("WriteTransaction: %s: %w", tx.TransactionID, err)
	}
	return nil
}

// ListTransactions returns transactions matching filter ordered by date then id.
// Text filters match exactly; dates bound the range inclusively.
func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	q := s.conn(ctx).Model(&TransactionModel{})
	if filter.Merchant != "" {
		q = q.Where("merchant = ?", filter.Merchant)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Subcategory != "" {
		q = q.Where("subcategory = ?", filter.Subcategory)
	}
	if filter.AccountName != "" {
		q = q.Where("account_name = ?", filter.AccountName)
	}
	if filter.StartDate != "" {
		q = q.Where("transaction_date >= ?", filter.StartDate)
	}
	if filter.EndDate != "" {
		q = q.Where("transaction_date <= ?", filter.EndDate)
	}

	var rows []TransactionModel
	if err := q.Order("transaction_date").Order("transaction_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}

	out := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// QueryTransactionsByDateRange returns transactions dated within [start, end].
func (s *Store) QueryTransactionsByDateRange(ctx context.Context, start, end civil.Date) ([]domain.Transaction, error) {
	return s.ListTransactions(ctx, domain.TransactionFilter{StartDate: start.String(), EndDate: end.String()})
}

// GetTransaction returns the transaction with id or domain.ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var m TransactionModel
	err := s.conn(ctx).Where("transaction_id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("GetTransaction: %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %s: %w", id, err)
	}
	tx := m.toDomain()
	return &tx, nil
}

// UpdateTransaction patches the fields set in update and returns the stored result.
func (s *Store) UpdateTransaction(ctx context.Context, id string, update domain.TransactionUpdate) (*domain.Transaction, error) {
	if update.IsEmpty() {
		return nil, fmt.Errorf("UpdateTransaction: no fields to update: %w", domain.ErrInvalidArgument)
	}
	res := s.conn(ctx).Model(&TransactionModel{}).Where("transaction_id = ?", id).Updates(update.Fields())
	if res.Error != nil {
		return nil, fmt.Errorf("UpdateTransaction: %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("UpdateTransaction: %s: %w", id, domain.ErrNotFound)
	}
	return s.GetTransaction(ctx, id)
}

// DeleteTransaction removes the transaction with id.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res := s.conn(ctx).Where("transaction_id = ?", id).Delete(&TransactionModel{})
	if res.Error != nil {
		return fmt.Errorf("DeleteTransaction: %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("DeleteTransaction: %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdateMerchant implements rules.TransactionStore.
func (s *Store) UpdateMerchant(ctx context.Context, transactionID, merchant string) error {
	err := s.conn(ctx).Model(&TransactionModel{}).
		Where("transaction_id = ?", transactionID).
		Update("merchant", merchant).Error
	if err != nil {
		return fmt.Errorf("UpdateMerchant: %s: %w", transactionID, err)
	}
	return nil
}
