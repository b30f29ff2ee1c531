package sqlstore

import (
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
)

// TransactionModel is a row of the transactions table. Values are stored as text
// in the same shape every other sink receives.
type TransactionModel struct {
	TransactionID   string    `gorm:"column:transaction_id;primaryKey"`
	TransactionDate string    `gorm:"column:transaction_date;not null;index"`
	Merchant        string    `gorm:"column:merchant;not null"`
	Bucket          string    `gorm:"column:bucket;not null;default:''"`
	Amount          string    `gorm:"column:amount;not null"`
	Category        string    `gorm:"column:category;not null;default:''"`
	Subcategory     string    `gorm:"column:subcategory;not null;default:''"`
	AccountName     string    `gorm:"column:account_name;not null"`
	IsRecurring     string    `gorm:"column:is_recurring;not null;default:'False'"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (TransactionModel) TableName() string { return "transactions" }

// RuleModel is a row of the transaction_rules table.
type RuleModel struct {
	RuleID               string `gorm:"column:rule_id;primaryKey"`
	MerchantOriginalName string `gorm:"column:merchant_original_name;not null"`
	MerchantRenamedName  string `gorm:"column:merchant_renamed_name;not null;default:''"`
	RuleCreatedDate      string `gorm:"column:rule_created_date;not null"`
}

func (RuleModel) TableName() string { return "transaction_rules" }

// ProcessedMessageModel is a row of the processed_messages table.
type ProcessedMessageModel struct {
	MessageID   string `gorm:"column:message_id;primaryKey"`
	Processed   bool   `gorm:"column:processed;not null;default:true"`
	TimestampMs int64  `gorm:"column:timestamp_ms;not null;index"`
}

func (ProcessedMessageModel) TableName() string { return "processed_messages" }

// UserDataModel is a row of the user_data table.
type UserDataModel struct {
	Name                   string `gorm:"column:name;primaryKey"`
	LastTransactionRefresh string `gorm:"column:last_transaction_refresh;not null;default:''"`
}

func (UserDataModel) TableName() string { return "user_data" }

func transactionToModel(t domain.Transaction) TransactionModel {
	return TransactionModel{
		TransactionID:   t.TransactionID,
		TransactionDate: t.TransactionDate,
		Merchant:        t.Merchant,
		Bucket:          t.Bucket,
		Amount:          t.Amount,
		Category:        t.Category,
		Subcategory:     t.Subcategory,
		AccountName:     t.AccountName,
		IsRecurring:     t.IsRecurring,
	}
}

func (m TransactionModel) toDomain() domain.Transaction {
	return domain.Transaction{
		TransactionID:   m.TransactionID,
		TransactionDate: m.TransactionDate,
		Merchant:        m.Merchant,
		Bucket:          m.Bucket,
		Amount:          m.Amount,
		Category:        m.Category,
		Subcategory:     m.Subcategory,
		AccountName:     m.AccountName,
		IsRecurring:     m.IsRecurring,
	}
}

func ruleToModel(r domain.MerchantRule) RuleModel {
	return RuleModel{
		RuleID:               r.RuleID,
		MerchantOriginalName: r.MerchantOriginalName,
		MerchantRenamedName:  r.MerchantRenamedName,
		RuleCreatedDate:      r.RuleCreatedDate,
	}
}

func (m RuleModel) toDomain() domain.MerchantRule {
	return domain.MerchantRule{
		RuleID:               m.RuleID,
		MerchantOriginalName: m.MerchantOriginalName,
		MerchantRenamedName:  m.MerchantRenamedName,
		RuleCreatedDate:      m.RuleCreatedDate,
	}
}
