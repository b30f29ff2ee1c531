package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
)

// CategoryPaychecks is assigned to direct deposits.
const CategoryPaychecks = "Paychecks"

var (
	// transfers ("You sent ...")
	chaseTransferMerchant = regexp.MustCompile(`Recipient\n(.*?)\nAmount`)
	chaseTransferAmount   = regexp.MustCompile(`Amount\n\$(\d+\.\d{2})`)
	chaseTransferAccount  = regexp.MustCompile(`Account ending in\n\(\.\.\.(\d{4})\)\nSent on`)

	// card purchases ("... transaction with ...")
	chaseCardMerchant = regexp.MustCompile(`transaction with ([A-Za-z0-9\s*.#']+)`)
	chaseCardAmount   = regexp.MustCompile(`\$(\d+\.\d{2})`)
	chaseCardAccount  = regexp.MustCompile(`\(\.\.\.(\d+)\)`)

	// direct deposits
	chaseDepositAmount  = regexp.MustCompile(`\$([\d,]+\.\d{2})`)
	chaseDepositAccount = regexp.MustCompile(`\((\.\.\.\d{4})\)`)
)

// Chase handles transfers, card purchases and direct deposits.
type Chase struct {
	clock
	employer string
}

// NewChase returns a Chase extractor. employer names the payer of direct deposits.
func NewChase(employer string, loc *time.Location) *Chase {
	return &Chase{clock: clock{loc: loc}, employer: employer}
}

func (c *Chase) Institution() string { return "Chase" }

func (c *Chase) TryExtract(subject, body string, timestampMillis int64) (*domain.Transaction, error) {
	switch {
	case strings.Contains(subject, "You sent"):
		return c.transfer(body, timestampMillis)
	case strings.Contains(subject, "transaction with"):
		return c.cardPurchase(subject, body, timestampMillis)
	case strings.Contains(subject, "direct deposit"):
		return c.directDeposit(subject, timestampMillis)
	default:
		return nil, nil
	}
}

func (c *Chase) transfer(body string, timestampMillis int64) (*domain.Transaction, error) {
	merchant, ok := group(chaseTransferMerchant, body)
	if !ok {
		return nil, mismatch(c.Institution(), "transfer recipient")
	}
	amount, ok := group(chaseTransferAmount, body)
	if !ok {
		return nil, mismatch(c.Institution(), "transfer amount")
	}
	account, ok := group(chaseTransferAccount, body)
	if !ok {
		return nil, mismatch(c.Institution(), "transfer account")
	}

	tx := c.newTransaction(timestampMillis)
	tx.Merchant = merchant
	tx.Amount = amount
	tx.AccountName = "Chase " + account
	return tx, nil
}

func (c *Chase) cardPurchase(subject, body string, timestampMillis int64) (*domain.Transaction, error) {
	merchant, ok := group(chaseCardMerchant, subject)
	if !ok {
		return nil, mismatch(c.Institution(), "card merchant")
	}
	amount, ok := group(chaseCardAmount, subject)
	if !ok {
		return nil, mismatch(c.Institution(), "card amount")
	}
	account, ok := group(chaseCardAccount, body)
	if !ok {
		return nil, mismatch(c.Institution(), "card account")
	}

	tx := c.newTransaction(timestampMillis)
	tx.Merchant = merchant
	tx.Amount = amount
	tx.AccountName = "Chase " + account
	return tx, nil
}

func (c *Chase) directDeposit(subject string, timestampMillis int64) (*domain.Transaction, error) {
	if c.employer == "" {
		return nil, mismatch(c.Institution(), "configured employer")
	}
	amount, ok := group(chaseDepositAmount, subject)
	if !ok {
		return nil, mismatch(c.Institution(), "deposit amount")
	}
	masked, ok := group(chaseDepositAccount, subject)
	if !ok {
		return nil, mismatch(c.Institution(), "deposit account")
	}
	amount = strings.ReplaceAll(amount, ",", "")
	if err := checkAmount(c.Institution(), amount); err != nil {
		return nil, err
	}

	tx := c.newTransaction(timestampMillis)
	tx.Merchant = c.employer
	tx.Bucket = domain.BucketIncome
	tx.Amount = amount
	tx.Category = CategoryPaychecks
	tx.AccountName = "Chase " + masked[len(masked)-4:]
	return tx, nil
}
