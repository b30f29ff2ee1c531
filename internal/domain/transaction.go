package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bucket values a transaction can be classified under.
const (
	BucketExpense = "Expense"
	BucketIncome  = "Income"
	BucketNone    = ""
)

// RecurringFalse is the value every extracted transaction carries for is_recurring.
// Recurrence detection does not exist; the field is reserved.
const RecurringFalse = "False"

// Transaction is one normalized transaction extracted from a notification email.
// Fields are kept as text to match the flat record written to every sink.
type Transaction struct {
	TransactionID   string `json:"transaction_id" firestore:"-"`
	TransactionDate string `json:"transaction_date" firestore:"transaction_date"` // YYYY-MM-DD
	Merchant        string `json:"merchant" firestore:"merchant"`
	Bucket          string `json:"bucket" firestore:"bucket"`
	Amount          string `json:"amount" firestore:"amount"` // optionally signed, may contain commas
	Category        string `json:"category" firestore:"category"`
	Subcategory     string `json:"subcategory" firestore:"subcategory"`
	AccountName     string `json:"account_name" firestore:"account_name"`
	IsRecurring     string `json:"is_recurring" firestore:"is_recurring"`
}

// NewTransactionID returns a fresh random transaction identifier.
func NewTransactionID() string {
	return uuid.NewString()
}

// ParseAmount converts the textual amount into a decimal, ignoring thousands separators.
func ParseAmount(amount string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(amount), ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("ParseAmount: empty amount: %w", ErrInvalidArgument)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ParseAmount: %q: %w", amount, ErrInvalidArgument)
	}
	return d, nil
}

// Validate reports whether t is a fully populated record that may be persisted.
func (t *Transaction) Validate() error {
	var missing []string
	if t.TransactionID == "" {
		missing = append(missing, "transaction_id")
	}
	if t.TransactionDate == "" {
		missing = append(missing, "transaction_date")
	}
	if t.Merchant == "" {
		missing = append(missing, "merchant")
	}
	if t.AccountName == "" {
		missing = append(missing, "account_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("transaction %s: missing %s: %w", t.TransactionID, strings.Join(missing, ", "), ErrInvalidArgument)
	}
	if _, err := ParseDate(t.TransactionDate); err != nil {
		return fmt.Errorf("transaction %s: %w", t.TransactionID, err)
	}
	if _, err := ParseAmount(t.Amount); err != nil {
		return fmt.Errorf("transaction %s: %w", t.TransactionID, err)
	}
	return nil
}

// TransactionUpdate carries a partial update; nil fields are left unchanged.
type TransactionUpdate struct {
	TransactionDate *string `json:"transaction_date,omitempty"`
	Merchant        *string `json:"merchant,omitempty"`
	Bucket          *string `json:"bucket,omitempty"`
	Amount          *string `json:"amount,omitempty"`
	Category        *string `json:"category,omitempty"`
	Subcategory     *string `json:"subcategory,omitempty"`
	AccountName     *string `json:"account_name,omitempty"`
	IsRecurring     *string `json:"is_recurring,omitempty"`
}

// IsEmpty reports whether the update sets no field at all.
func (u TransactionUpdate) IsEmpty() bool {
	return u.TransactionDate == nil && u.Merchant == nil && u.Bucket == nil && u.Amount == nil &&
		u.Category == nil && u.Subcategory == nil && u.AccountName == nil && u.IsRecurring == nil
}

// Fields returns the update as a column -> value map for stores that patch by column.
func (u TransactionUpdate) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	set := func(col string, v *string) {
		if v != nil {
			fields[col] = *v
		}
	}
	set("transaction_date", u.TransactionDate)
	set("merchant", u.Merchant)
	set("bucket", u.Bucket)
	set("amount", u.Amount)
	set("category", u.Category)
	set("subcategory", u.Subcategory)
	set("account_name", u.AccountName)
	set("is_recurring", u.IsRecurring)
	return fields
}

// TransactionFilter narrows a transaction listing. Empty fields do not filter.
type TransactionFilter struct {
	Merchant    string
	StartDate   string
	EndDate     string
	Category    string
	Subcategory string
	AccountName string
}
