package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
)

// memStore is an in-memory Store for testing
type memStore struct {
	rules []domain.MerchantRule
	txs   []domain.Transaction

	UpdateMerchantFunc func(ctx context.Context, transactionID, merchant string) error
}

func (m *memStore) ListRules(ctx context.Context) ([]domain.MerchantRule, error) {
	return append([]domain.MerchantRule(nil), m.rules...), nil
}

func (m *memStore) GetRule(ctx context.Context, ruleID string) (*domain.MerchantRule, error) {
	for _, r := range m.rules {
		if r.RuleID == ruleID {
			r := r
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) CreateRule(ctx context.Context, rule domain.MerchantRule) error {
	m.rules = append(m.rules, rule)
	return nil
}

func (m *memStore) UpdateRule(ctx context.Context, rule domain.MerchantRule) error {
	for i := range m.rules {
		if m.rules[i].RuleID == rule.RuleID {
			m.rules[i] = rule
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) DeleteRule(ctx context.Context, ruleID string) error {
	for i := range m.rules {
		if m.rules[i].RuleID == ruleID {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	return append([]domain.Transaction(nil), m.txs...), nil
}

func (m *memStore) UpdateMerchant(ctx context.Context, transactionID, merchant string) error {
	if m.UpdateMerchantFunc != nil {
		if err := m.UpdateMerchantFunc(ctx, transactionID, merchant); err != nil {
			return err
		}
	}
	for i := range m.txs {
		if m.txs[i].TransactionID == transactionID {
			m.txs[i].Merchant = merchant
			return nil
		}
	}
	return domain.ErrNotFound
}

func rule(original, renamed string) domain.MerchantRule {
	return domain.MerchantRule{MerchantOriginalName: original, MerchantRenamedName: renamed}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		merchant string
		rules    []domain.MerchantRule
		want     string
	}{
		{
			name:     "no rules",
			merchant: "SQ *BLUE BOTTLE",
			want:     "SQ *BLUE BOTTLE",
		},
		{
			name:     "substring replaced",
			merchant: "SQ *BLUE BOTTLE",
			rules:    []domain.MerchantRule{rule("SQ *", "")},
			want:     "BLUE BOTTLE",
		},
		{
			name:     "every occurrence replaced",
			merchant: "AMZN Mktp AMZN",
			rules:    []domain.MerchantRule{rule("AMZN", "Amazon")},
			want:     "Amazon Mktp Amazon",
		},
		{
			name:     "rules chain in order",
			merchant: "SQ *COFFEE",
			rules:    []domain.MerchantRule{rule("SQ *", ""), rule("COFFEE", "Coffee Shop")},
			want:     "Coffee Shop",
		},
		{
			name:     "case sensitive",
			merchant: "starbucks",
			rules:    []domain.MerchantRule{rule("STARBUCKS", "Starbucks")},
			want:     "starbucks",
		},
		{
			name:     "empty pattern ignored",
			merchant: "Alice",
			rules:    []domain.MerchantRule{rule("", "X")},
			want:     "Alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Apply(tt.merchant, tt.rules); got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.merchant, got, tt.want)
			}
		})
	}
}

func TestApply_OrderMatters(t *testing.T) {
	a := rule("A", "B")
	b := rule("B", "C")

	if got := Apply("A", []domain.MerchantRule{a, b}); got != "C" {
		t.Errorf("A then B: got %q, want %q", got, "C")
	}
	if got := Apply("A", []domain.MerchantRule{b, a}); got != "B" {
		t.Errorf("B then A: got %q, want %q", got, "B")
	}
}

func TestApplyTo(t *testing.T) {
	tx := &domain.Transaction{Merchant: "SQ *COFFEE"}

	if !ApplyTo(tx, []domain.MerchantRule{rule("SQ *", "")}) {
		t.Fatal("Expected merchant to change")
	}
	if tx.Merchant != "COFFEE" {
		t.Errorf("Merchant = %q, want COFFEE", tx.Merchant)
	}
	if ApplyTo(tx, []domain.MerchantRule{rule("TEA", "Tea")}) {
		t.Error("Expected no change")
	}
}

func TestBackfill(t *testing.T) {
	store := &memStore{
		rules: []domain.MerchantRule{rule("SQ *", "")},
		txs: []domain.Transaction{
			{TransactionID: "t1", Merchant: "SQ *COFFEE"},
			{TransactionID: "t2", Merchant: "Alice"},
			{TransactionID: "t3", Merchant: "SQ *BAGELS"},
		},
	}
	ctx := context.Background()

	n, err := Backfill(ctx, store)
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Backfill updated %d, want 2", n)
	}
	if store.txs[0].Merchant != "COFFEE" || store.txs[2].Merchant != "BAGELS" {
		t.Errorf("Unexpected merchants: %+v", store.txs)
	}
	if store.txs[1].Merchant != "Alice" {
		t.Errorf("Untouched merchant changed: %q", store.txs[1].Merchant)
	}

	n, err = Backfill(ctx, store)
	if err != nil {
		t.Fatalf("Second backfill failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Second backfill updated %d, want 0", n)
	}
}

func TestBackfill_UpdateError(t *testing.T) {
	wantErr := errors.New("db down")
	store := &memStore{
		rules: []domain.MerchantRule{rule("SQ *", "")},
		txs:   []domain.Transaction{{TransactionID: "t1", Merchant: "SQ *COFFEE"}},
		UpdateMerchantFunc: func(ctx context.Context, transactionID, merchant string) error {
			return wantErr
		},
	}

	_, err := Backfill(context.Background(), store)
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected wrapped db error, got %v", err)
	}
}

func fixedService(store Store) *Service {
	s := NewService(store)
	s.now = func() time.Time { return time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestService_Create(t *testing.T) {
	store := &memStore{txs: []domain.Transaction{
		{TransactionID: "t1", Merchant: "AMZN Mktp US"},
		{TransactionID: "t2", Merchant: "Target"},
	}}
	svc := fixedService(store)

	r, n, err := svc.Create(context.Background(), "AMZN Mktp US", "Amazon")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if r.RuleID == "" {
		t.Error("Expected rule id")
	}
	if r.RuleCreatedDate != "2024-10-01 12:00:00.000000" {
		t.Errorf("RuleCreatedDate = %q", r.RuleCreatedDate)
	}
	if n != 1 {
		t.Errorf("Backfilled %d, want 1", n)
	}
	if store.txs[0].Merchant != "Amazon" {
		t.Errorf("Merchant = %q, want Amazon", store.txs[0].Merchant)
	}
}

func TestService_CreateEmptyPattern(t *testing.T) {
	store := &memStore{}
	_, _, err := fixedService(store).Create(context.Background(), "", "X")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
	if len(store.rules) != 0 {
		t.Error("Rule should not be stored")
	}
}

func TestService_Update(t *testing.T) {
	store := &memStore{
		rules: []domain.MerchantRule{{RuleID: "r1", MerchantOriginalName: "UBER", MerchantRenamedName: "Uber"}},
		txs:   []domain.Transaction{{TransactionID: "t1", Merchant: "LYFT RIDE"}},
	}
	svc := fixedService(store)
	ctx := context.Background()

	pattern := "LYFT"
	r, n, err := svc.Update(ctx, "r1", RuleUpdate{MerchantOriginalName: &pattern})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if r.MerchantOriginalName != "LYFT" || r.MerchantRenamedName != "Uber" {
		t.Errorf("Unexpected rule %+v", r)
	}
	if n != 1 || store.txs[0].Merchant != "Uber RIDE" {
		t.Errorf("Backfill result n=%d merchant=%q", n, store.txs[0].Merchant)
	}

	if _, _, err := svc.Update(ctx, "r1", RuleUpdate{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for empty update, got %v", err)
	}

	empty := " "
	if _, _, err := svc.Update(ctx, "r1", RuleUpdate{MerchantOriginalName: &empty}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for blank pattern, got %v", err)
	}

	if _, _, err := svc.Update(ctx, "missing", RuleUpdate{MerchantOriginalName: &pattern}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestService_DeleteDoesNotBackfill(t *testing.T) {
	store := &memStore{
		rules: []domain.MerchantRule{{RuleID: "r1", MerchantOriginalName: "UBER", MerchantRenamedName: "Uber"}},
		txs:   []domain.Transaction{{TransactionID: "t1", Merchant: "Uber"}},
	}
	svc := fixedService(store)

	if err := svc.Delete(context.Background(), "r1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(store.rules) != 0 {
		t.Error("Rule not deleted")
	}
	if store.txs[0].Merchant != "Uber" {
		t.Errorf("Merchant changed to %q", store.txs[0].Merchant)
	}

	if err := svc.Delete(context.Background(), "r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
