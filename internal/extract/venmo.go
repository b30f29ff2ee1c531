package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
)

var venmoYouPaidMerchant = regexp.MustCompile(`You paid (.+?) \$\d+\.\d{2}`)

// Venmo handles "You paid X $N" and "X paid you $N" notifications.
type Venmo struct {
	clock
}

// NewVenmo returns a Venmo extractor that dates transactions in loc.
func NewVenmo(loc *time.Location) *Venmo {
	return &Venmo{clock{loc: loc}}
}

func (v *Venmo) Institution() string { return "Venmo" }

func (v *Venmo) TryExtract(subject, _ string, timestampMillis int64) (*domain.Transaction, error) {
	youPaid := strings.Contains(subject, "You paid")
	if !youPaid && !strings.Contains(subject, "paid you") {
		return nil, nil
	}

	parts := strings.Split(subject, "$")
	if len(parts) < 2 {
		return nil, mismatch(v.Institution(), "amount")
	}
	amount := strings.TrimSpace(parts[1])

	var merchant string
	if youPaid {
		m, ok := group(venmoYouPaidMerchant, subject)
		if !ok {
			return nil, mismatch(v.Institution(), "merchant")
		}
		merchant = m
	} else {
		merchant = strings.SplitN(subject, " paid you", 2)[0]
		amount = "-" + amount
	}
	if err := checkAmount(v.Institution(), amount); err != nil {
		return nil, err
	}

	tx := v.newTransaction(timestampMillis)
	tx.Merchant = merchant
	tx.Bucket = domain.BucketExpense
	tx.Amount = amount
	tx.AccountName = "Venmo"
	return tx, nil
}
