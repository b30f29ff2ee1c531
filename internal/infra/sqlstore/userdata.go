package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/mailledger/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListUserData returns every user_data row ordered by name.
func (s *Store) ListUserData(ctx context.Context) ([]domain.UserData, error) {
	var rows []UserDataModel
	if err := s.conn(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListUserData: %w", err)
	}
	out := make([]domain.UserData, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.UserData{Name: r.Name, LastTransactionRefresh: r.LastTransactionRefresh})
	}
	return out, nil
}

// LastRefresh returns the stored refresh time for name, or "" when none is recorded.
func (s *Store) LastRefresh(ctx context.Context, name string) (string, error) {
	var m UserDataModel
	err := s.conn(ctx).Where("name = ?", name).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("LastRefresh: %s: %w", name, err)
	}
	return m.LastTransactionRefresh, nil
}

// SetLastRefresh stores value as the refresh time for name, creating the row if needed.
func (s *Store) SetLastRefresh(ctx context.Context, name, value string) error {
	m := UserDataModel{Name: name, LastTransactionRefresh: value}
	err := s.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_transaction_refresh"}),
		}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("SetLastRefresh: %s: %w", name, err)
	}
	return nil
}
