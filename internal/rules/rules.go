// Package rules renames merchants using user-defined literal substitutions.
//
// Rules run in creation order and each one sees the output of the previous one,
// so the result depends on rule order.
package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/logger"
)

// RuleStore persists merchant rules. ListRules returns them in creation order.
type RuleStore interface {
	ListRules(ctx context.Context) ([]domain.MerchantRule, error)
	GetRule(ctx context.Context, ruleID string) (*domain.MerchantRule, error)
	CreateRule(ctx context.Context, rule domain.MerchantRule) error
	UpdateRule(ctx context.Context, rule domain.MerchantRule) error
	DeleteRule(ctx context.Context, ruleID string) error
}

// TransactionStore is the slice of transaction persistence a backfill needs.
type TransactionStore interface {
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	UpdateMerchant(ctx context.Context, transactionID, merchant string) error
}

// Store combines rule and transaction persistence.
type Store interface {
	RuleStore
	TransactionStore
}

// Apply runs every rule over merchant in order and returns the result.
// Rules with an empty pattern are ignored.
func Apply(merchant string, rules []domain.MerchantRule) string {
	for _, r := range rules {
		if r.MerchantOriginalName == "" {
			continue
		}
		if strings.Contains(merchant, r.MerchantOriginalName) {
			merchant = strings.ReplaceAll(merchant, r.MerchantOriginalName, r.MerchantRenamedName)
		}
	}
	return merchant
}

// ApplyTo rewrites tx.Merchant in place and reports whether it changed.
func ApplyTo(tx *domain.Transaction, rules []domain.MerchantRule) bool {
	renamed := Apply(tx.Merchant, rules)
	if renamed == tx.Merchant {
		return false
	}
	tx.Merchant = renamed
	return true
}

// Backfill applies the current rules to every stored transaction and writes back
// the merchants that changed. It returns how many rows were rewritten.
func Backfill(ctx context.Context, store Store) (int, error) {
	log := logger.FromContext(ctx)

	rules, err := store.ListRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("Backfill: list rules: %w", err)
	}
	txs, err := store.ListTransactions(ctx, domain.TransactionFilter{})
	if err != nil {
		return 0, fmt.Errorf("Backfill: list transactions: %w", err)
	}

	updated := 0
	for _, tx := range txs {
		renamed := Apply(tx.Merchant, rules)
		if renamed == tx.Merchant {
			continue
		}
		if err := store.UpdateMerchant(ctx, tx.TransactionID, renamed); err != nil {
			return updated, fmt.Errorf("Backfill: update transaction %s: %w", tx.TransactionID, err)
		}
		updated++
	}

	log.Info().
		Int("rules", len(rules)).
		Int("scanned", len(txs)).
		Int("updated", updated).
		Msg("Backfilled merchant rules")
	return updated, nil
}
