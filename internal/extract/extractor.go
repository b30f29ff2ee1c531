// Package extract turns institution notification emails into transactions.
//
// Each supported institution has an Extractor. The Engine routes a message to
// the extractor registered for its sender address.
package extract

import (
	"fmt"
	"regexp"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
)

// Extractor pulls a transaction out of one institution's notification emails.
//
// TryExtract returns (nil, nil) when the subject does not describe a transaction.
// It returns an error wrapping domain.ErrExtractionMismatch when the subject
// triggered a rule but a required field could not be found.
type Extractor interface {
	Institution() string
	TryExtract(subject, body string, timestampMillis int64) (*domain.Transaction, error)
}

// clock stamps the identity and date fields shared by every extractor.
type clock struct {
	loc *time.Location
}

func (c clock) newTransaction(timestampMillis int64) *domain.Transaction {
	return &domain.Transaction{
		TransactionID:   domain.NewTransactionID(),
		TransactionDate: domain.DateFromMillis(timestampMillis, c.loc),
		IsRecurring:     domain.RecurringFalse,
	}
}

func mismatch(institution, field string) error {
	return fmt.Errorf("%s: %s not found: %w", institution, field, domain.ErrExtractionMismatch)
}

// group returns the first capture group of re in s.
func group(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// checkAmount rejects amounts that are not numeric once commas are removed.
func checkAmount(institution, amount string) error {
	if _, err := domain.ParseAmount(amount); err != nil {
		return fmt.Errorf("%s: amount %q is not numeric: %w", institution, amount, domain.ErrExtractionMismatch)
	}
	return nil
}
