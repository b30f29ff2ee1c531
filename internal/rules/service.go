package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
)

// RuleUpdate carries a partial rule update; nil fields are left unchanged.
type RuleUpdate struct {
	MerchantOriginalName *string `json:"merchant_original_name,omitempty"`
	MerchantRenamedName  *string `json:"merchant_renamed_name,omitempty"`
}

// Service manages rules and keeps stored transactions in line with them.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a rule service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// List returns every rule in creation order.
func (s *Service) List(ctx context.Context) ([]domain.MerchantRule, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return rules, nil
}

// Create stores a new rule and backfills it over existing transactions.
// It returns the rule and the number of transactions rewritten.
func (s *Service) Create(ctx context.Context, original, renamed string) (domain.MerchantRule, int, error) {
	rule, err := domain.NewMerchantRule(original, renamed, s.now())
	if err != nil {
		return domain.MerchantRule{}, 0, err
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return domain.MerchantRule{}, 0, fmt.Errorf("Create: store rule: %w", err)
	}

	n, err := Backfill(ctx, s.store)
	if err != nil {
		return rule, n, fmt.Errorf("Create: %w", err)
	}
	return rule, n, nil
}

// Update patches a rule and backfills. An update that sets nothing is rejected.
func (s *Service) Update(ctx context.Context, ruleID string, update RuleUpdate) (domain.MerchantRule, int, error) {
	if update.MerchantOriginalName == nil && update.MerchantRenamedName == nil {
		return domain.MerchantRule{}, 0, fmt.Errorf("Update: no fields to update: %w", domain.ErrInvalidArgument)
	}

	rule, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		return domain.MerchantRule{}, 0, fmt.Errorf("Update: get rule %s: %w", ruleID, err)
	}
	if update.MerchantOriginalName != nil {
		if strings.TrimSpace(*update.MerchantOriginalName) == "" {
			return domain.MerchantRule{}, 0, fmt.Errorf("Update: merchant_original_name is required: %w", domain.ErrInvalidArgument)
		}
		rule.MerchantOriginalName = *update.MerchantOriginalName
	}
	if update.MerchantRenamedName != nil {
		rule.MerchantRenamedName = *update.MerchantRenamedName
	}

	if err := s.store.UpdateRule(ctx, *rule); err != nil {
		return domain.MerchantRule{}, 0, fmt.Errorf("Update: store rule %s: %w", ruleID, err)
	}

	n, err := Backfill(ctx, s.store)
	if err != nil {
		return *rule, n, fmt.Errorf("Update: %w", err)
	}
	return *rule, n, nil
}

// Delete removes a rule. Transactions it already renamed keep their merchant.
func (s *Service) Delete(ctx context.Context, ruleID string) error {
	if err := s.store.DeleteRule(ctx, ruleID); err != nil {
		return fmt.Errorf("Delete: rule %s: %w", ruleID, err)
	}
	return nil
}

// Backfill reapplies all rules to all stored transactions.
func (s *Service) Backfill(ctx context.Context) (int, error) {
	return Backfill(ctx, s.store)
}
