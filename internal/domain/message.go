package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProcessedMessage records that a mail provider message has been handled.
// Records are written once and never updated.
type ProcessedMessage struct {
	MessageID       string
	Processed       bool
	TimestampMillis int64
}

// MerchantRule renames merchants by literal substring replacement.
type MerchantRule struct {
	RuleID               string `json:"rule_id"`
	MerchantOriginalName string `json:"merchant_original_name"`
	MerchantRenamedName  string `json:"merchant_renamed_name"`
	RuleCreatedDate      string `json:"rule_created_date"`
}

// NewMerchantRule builds a rule with a fresh id stamped with now.
func NewMerchantRule(original, renamed string, now time.Time) (MerchantRule, error) {
	if strings.TrimSpace(original) == "" {
		return MerchantRule{}, fmt.Errorf("NewMerchantRule: merchant_original_name is required: %w", ErrInvalidArgument)
	}
	return MerchantRule{
		RuleID:               uuid.NewString(),
		MerchantOriginalName: original,
		MerchantRenamedName:  renamed,
		RuleCreatedDate:      FormatRefreshTime(now),
	}, nil
}

// UserData holds the per-user refresh bookkeeping.
type UserData struct {
	Name                   string `json:"name"`
	LastTransactionRefresh string `json:"last_transaction_refresh"`
}
