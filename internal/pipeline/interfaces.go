package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/extract"
)

// Sink persists extracted transactions.
type Sink interface {
	WriteTransaction(ctx context.Context, tx domain.Transaction) error
}

// MultiSink writes every transaction to each of its sinks. All sinks are tried
// and their errors joined.
type MultiSink []Sink

// WriteTransaction implements Sink.
func (m MultiSink) WriteTransaction(ctx context.Context, tx domain.Transaction) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteTransaction(ctx, tx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Extractor turns one normalized message into a transaction. *extract.Engine implements it.
type Extractor interface {
	Extract(ctx context.Context, in extract.Input, cutoff time.Time) (*domain.Transaction, error)
}

// RuleLister loads the merchant rules in creation order.
type RuleLister interface {
	ListRules(ctx context.Context) ([]domain.MerchantRule, error)
}

// RefreshStore keeps the per-user last refresh time in its stored text form.
type RefreshStore interface {
	// LastRefresh returns "" when nothing is stored for name.
	LastRefresh(ctx context.Context, name string) (string, error)
	SetLastRefresh(ctx context.Context, name, value string) error
}

// Ensure implementations satisfy the interfaces.
var (
	_ Sink      = MultiSink(nil)
	_ Extractor = (*extract.Engine)(nil)
)
