package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
)

var (
	wellsFargoMerchant = regexp.MustCompile(`(?s)Merchant detail\s*(.*?)\s*View Accounts`)
	wellsFargoAmount   = regexp.MustCompile(`Amount\s*\$([0-9,]+\.\d{2})\s*Merchant detail`)
	wellsFargoAccount  = regexp.MustCompile(`Credit card\s*\.\.\.(\d+)\s*Amount`)
)

// WellsFargo handles credit card purchase notifications. Amounts keep their commas.
type WellsFargo struct {
	clock
}

// NewWellsFargo returns a Wells Fargo extractor that dates transactions in loc.
func NewWellsFargo(loc *time.Location) *WellsFargo {
	return &WellsFargo{clock{loc: loc}}
}

func (w *WellsFargo) Institution() string { return "Wells Fargo" }

func (w *WellsFargo) TryExtract(subject, body string, timestampMillis int64) (*domain.Transaction, error) {
	if !strings.Contains(subject, "You made a credit card purchase of") {
		return nil, nil
	}

	merchant, ok := group(wellsFargoMerchant, body)
	if !ok {
		return nil, mismatch(w.Institution(), "merchant")
	}
	amount, ok := group(wellsFargoAmount, body)
	if !ok {
		return nil, mismatch(w.Institution(), "amount")
	}
	account, ok := group(wellsFargoAccount, body)
	if !ok {
		return nil, mismatch(w.Institution(), "account")
	}
	if err := checkAmount(w.Institution(), amount); err != nil {
		return nil, err
	}

	tx := w.newTransaction(timestampMillis)
	tx.Merchant = strings.TrimSpace(merchant)
	tx.Amount = amount
	tx.AccountName = "Wells Fargo " + account
	return tx, nil
}
