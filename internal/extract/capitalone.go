package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
)

const capitalOneSubject = "A new transaction was charged to your account"

var (
	capitalOneMerchant = regexp.MustCompile(`at (.*?), a pending authorization or purchase`)
	capitalOneAmount   = regexp.MustCompile(`amount of \$(\d+\.\d{2})`)
	capitalOneAccount  = regexp.MustCompile(`ending in (\d{4})`)
)

// CapitalOne handles new charge notifications.
type CapitalOne struct {
	clock
}

// NewCapitalOne returns a Capital One extractor that dates transactions in loc.
func NewCapitalOne(loc *time.Location) *CapitalOne {
	return &CapitalOne{clock{loc: loc}}
}

func (c *CapitalOne) Institution() string { return "Capital One" }

func (c *CapitalOne) TryExtract(subject, body string, timestampMillis int64) (*domain.Transaction, error) {
	if subject != capitalOneSubject {
		return nil, nil
	}

	merchant, ok := group(capitalOneMerchant, body)
	if !ok {
		return nil, mismatch(c.Institution(), "merchant")
	}
	// "... at ACME at MAIN ST, a pending ..." keeps the last segment.
	segments := strings.Split(merchant, " at ")
	merchant = segments[len(segments)-1]

	amount, ok := group(capitalOneAmount, body)
	if !ok {
		return nil, mismatch(c.Institution(), "amount")
	}
	account, ok := group(capitalOneAccount, body)
	if !ok {
		return nil, mismatch(c.Institution(), "account")
	}

	tx := c.newTransaction(timestampMillis)
	tx.Merchant = merchant
	tx.Amount = amount
	tx.AccountName = "Capital One " + account
	return tx, nil
}
