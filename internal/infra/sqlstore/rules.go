package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/mailledger/internal/domain"
	"gorm.io/gorm"
)

// ListRules returns every merchant rule in creation order.
func (s *Store) ListRules(ctx context.Context) ([]domain.MerchantRule, error) {
	var rows []RuleModel
	if err := s.conn(ctx).Order("rule_created_date").Order("rule_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListRules: %w", err)
	}
	out := make([]domain.MerchantRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// GetRule returns the rule with ruleID or domain.ErrNotFound.
func (s *Store) GetRule(ctx context.Context, ruleID string) (*domain.MerchantRule, error) {
	var m RuleModel
	err := s.conn(ctx).Where("rule_id = ?", ruleID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("GetRule: %s: %w", ruleID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetRule: %s: %w", ruleID, err)
	}
	r := m.toDomain()
	return &r, nil
}

// CreateRule inserts rule.
func (s *Store) CreateRule(ctx context.Context, rule domain.MerchantRule) error {
	m := ruleToModel(rule)
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("CreateRule: %w", err)
	}
	return nil
}

// UpdateRule overwrites both names of an existing rule.
func (s *Store) UpdateRule(ctx context.Context, rule domain.MerchantRule) error {
	res := s.conn(ctx).Model(&RuleModel{}).
		Where("rule_id = ?", rule.RuleID).
		Updates(map[string]interface{}{
			"merchant_original_name": rule.MerchantOriginalName,
			"merchant_renamed_name":  rule.MerchantRenamedName,
		})
	if res.Error != nil {
		return fmt.Errorf("UpdateRule: %s: %w", rule.RuleID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("UpdateRule: %s: %w", rule.RuleID, domain.ErrNotFound)
	}
	return nil
}

// DeleteRule removes the rule with ruleID.
func (s *Store) DeleteRule(ctx context.Context, ruleID string) error {
	res := s.conn(ctx).Where("rule_id = ?", ruleID).Delete(&RuleModel{})
	if res.Error != nil {
		return fmt.Errorf("DeleteRule: %s: %w", ruleID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("DeleteRule: %s: %w", ruleID, domain.ErrNotFound)
	}
	return nil
}
