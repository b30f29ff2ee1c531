package notionsync

import (
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the transactions database.
const (
	PropMerchant      = "Merchant"
	PropTransactionID = "Transaction ID"
	PropDate          = "Date"
	PropAmount        = "Amount"
	PropBucket        = "Bucket"
	PropCategory      = "Category"
	PropSubcategory   = "Subcategory"
	PropAccount       = "Account"
	PropRecurring     = "Recurring"
)

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

// TransactionToNotionProperties converts a transaction to the properties of a
// page in the transactions database. Empty optional fields are omitted.
func TransactionToNotionProperties(tx domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		PropMerchant: notionapi.TitleProperty{
			Title: richText(tx.Merchant),
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.TransactionID),
		},
		PropAccount: notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.AccountName},
		},
		PropRecurring: notionapi.CheckboxProperty{
			Checkbox: tx.IsRecurring == "True",
		},
	}

	if d, err := domain.ParseDate(tx.TransactionDate); err == nil {
		start := notionapi.Date(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC))
		props[PropDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &start},
		}
	}

	if amount, err := domain.ParseAmount(tx.Amount); err == nil {
		f, _ := amount.Float64()
		props[PropAmount] = notionapi.NumberProperty{Number: f}
	}

	for name, value := range map[string]string{
		PropBucket:      tx.Bucket,
		PropCategory:    tx.Category,
		PropSubcategory: tx.Subcategory,
	} {
		if value != "" {
			props[name] = notionapi.SelectProperty{
				Select: notionapi.Option{Name: value},
			}
		}
	}

	return props
}

// extractTransactionID returns the Transaction ID property of page, or "".
func extractTransactionID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropTransactionID]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok && len(rt.RichText) > 0 {
			if rt.RichText[0].PlainText != "" {
				return rt.RichText[0].PlainText
			}
			if rt.RichText[0].Text != nil {
				return rt.RichText[0].Text.Content
			}
		}
	}
	return ""
}

// extractDate returns the start of the Date property of page.
func extractDate(page notionapi.Page) (time.Time, bool) {
	prop, ok := page.Properties[PropDate].(*notionapi.DateProperty)
	if !ok || prop.Date == nil || prop.Date.Start == nil {
		return time.Time{}, false
	}
	return time.Time(*prop.Date.Start), true
}
