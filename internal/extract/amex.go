package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
)

const amexSubject = "Large Purchase Approved"

// amexMerchantLine is the body line holding the merchant name.
const amexMerchantLine = 9

var (
	amexAmount  = regexp.MustCompile(`\n\$([0-9]+\.[0-9]{2})\*`)
	amexAccount = regexp.MustCompile(`Account Ending: (\d{5})`)
)

// Amex handles American Express large purchase alerts.
type Amex struct {
	clock
}

// NewAmex returns an American Express extractor that dates transactions in loc.
func NewAmex(loc *time.Location) *Amex {
	return &Amex{clock{loc: loc}}
}

func (a *Amex) Institution() string { return "American Express" }

func (a *Amex) TryExtract(subject, body string, timestampMillis int64) (*domain.Transaction, error) {
	if subject != amexSubject {
		return nil, nil
	}

	lines := strings.Split(body, "\n")
	if len(lines) <= amexMerchantLine {
		return nil, mismatch(a.Institution(), "merchant line")
	}
	amount, ok := group(amexAmount, body)
	if !ok {
		return nil, mismatch(a.Institution(), "amount")
	}
	account, ok := group(amexAccount, body)
	if !ok {
		return nil, mismatch(a.Institution(), "account")
	}
	if err := checkAmount(a.Institution(), amount); err != nil {
		return nil, err
	}

	tx := a.newTransaction(timestampMillis)
	tx.Merchant = lines[amexMerchantLine]
	tx.Bucket = domain.BucketExpense
	tx.Amount = amount
	tx.AccountName = "American Express " + account
	return tx, nil
}
