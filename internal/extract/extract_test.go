package extract

import (
	"testing"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/htmltext"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-10-02T03:30:00Z
const sentAt = int64(1727839800000)

const amexHTML = `<html><head><title>Large Purchase Approved</title>
<style>td { font-family: Arial; }</style></head>
<body><table>
<tr><td>American Express</td></tr>
<tr><td>Large Purchase Approved</td></tr>
<tr><td>Hi Jane,</td></tr>
<tr><td>We approved a large purchase on your Card.</td></tr>
<tr><td>Account Ending: 71002</td></tr>
<tr><td>Purchase Details</td></tr>
<tr><td>Date</td></tr>
<tr><td>Oct 1, 2024</td></tr>
<tr><td>WHOLE FOODS MARKET</td></tr>
<tr><td>$142.37*</td></tr>
<tr><td>*Pending charges may change.</td></tr>
</table></body></html>`

const chaseTransferHTML = `<html><body><table>
<tr><td>You sent $25.00 to Bob Smith</td></tr>
<tr><td>Recipient</td><td>Bob Smith</td></tr>
<tr><td>Amount</td><td>$25.00</td></tr>
<tr><td>Account ending in</td><td>(...1234)</td></tr>
<tr><td>Sent on</td><td>Oct 1, 2024</td></tr>
</table></body></html>`

const chaseCardHTML = `<html><body>
<p>Chase Freedom Unlimited (...5678)</p>
<p>Merchant</p><p>STARBUCKS STORE 123</p>
</body></html>`

const capitalOneHTML = `<html><body>
<p>Hi Jane,</p>
<p>As requested, we're notifying you that on October 1, 2024, at AMAZON.COM, a pending authorization or purchase in the amount of $25.99 was placed or charged on your Capital One VentureOne card ending in 9876.</p>
</body></html>`

const wellsFargoHTML = `<html><body>
<table>
<tr><td>Credit card</td><td>...4455</td></tr>
<tr><td>Amount</td><td>$1,234.56</td></tr>
<tr><td>Merchant detail</td><td>BEST BUY 00012345</td></tr>
</table>
<a href="https://wellsfargo.com">View Accounts</a>
</body></html>`

func assertFreshID(t *testing.T, tx *domain.Transaction) {
	t.Helper()
	id, err := uuid.Parse(tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
}

func TestVenmo(t *testing.T) {
	v := NewVenmo(time.UTC)

	tests := []struct {
		subject  string
		merchant string
		amount   string
	}{
		{"You paid Alice $12.34", "Alice", "12.34"},
		{"You paid Alice Wong $120.00", "Alice Wong", "120.00"},
		{"Bob paid you $5.00", "Bob", "-5.00"},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			tx, err := v.TryExtract(tt.subject, "", sentAt)
			require.NoError(t, err)
			require.NotNil(t, tx)

			assertFreshID(t, tx)
			assert.Equal(t, "2024-10-02", tx.TransactionDate)
			assert.Equal(t, tt.merchant, tx.Merchant)
			assert.Equal(t, tt.amount, tx.Amount)
			assert.Equal(t, "Expense", tx.Bucket)
			assert.Equal(t, "Venmo", tx.AccountName)
			assert.Equal(t, "", tx.Category)
			assert.Equal(t, "", tx.Subcategory)
			assert.Equal(t, "False", tx.IsRecurring)
		})
	}
}

func TestVenmo_NonTransaction(t *testing.T) {
	tx, err := NewVenmo(time.UTC).TryExtract("Alice requests $10.00", "", sentAt)
	assert.NoError(t, err)
	assert.Nil(t, tx)
}

func TestVenmo_Malformed(t *testing.T) {
	v := NewVenmo(time.UTC)

	_, err := v.TryExtract("You paid Alice", "", sentAt)
	assert.ErrorIs(t, err, domain.ErrExtractionMismatch)

	_, err = v.TryExtract("You paid Alice $lots", "", sentAt)
	assert.ErrorIs(t, err, domain.ErrExtractionMismatch)
}

func TestAmex(t *testing.T) {
	body := htmltext.Normalize(amexHTML)

	tx, err := NewAmex(time.UTC).TryExtract("Large Purchase Approved", body, sentAt)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assertFreshID(t, tx)
	assert.Equal(t, "WHOLE FOODS MARKET", tx.Merchant)
	assert.Equal(t, "142.37", tx.Amount)
	assert.Equal(t, "American Express 71002", tx.AccountName)
	assert.Equal(t, "Expense", tx.Bucket)
	assert.Equal(t, "2024-10-02", tx.TransactionDate)
	assert.Equal(t, "False", tx.IsRecurring)
}

func TestAmex_SubjectMustMatchExactly(t *testing.T) {
	body := htmltext.Normalize(amexHTML)

	tx, err := NewAmex(time.UTC).TryExtract("Fwd: Large Purchase Approved", body, sentAt)
	assert.NoError(t, err)
	assert.Nil(t, tx)
}

func TestAmex_ShortBody(t *testing.T) {
	_, err := NewAmex(time.UTC).TryExtract("Large Purchase Approved", "only\nthree\nlines", sentAt)
	assert.ErrorIs(t, err, domain.ErrExtractionMismatch)
}

func TestChase(t *testing.T) {
	c := NewChase("Acme Corp", time.UTC)

	tests := []struct {
		name     string
		subject  string
		body     string
		merchant string
		amount   string
		account  string
		bucket   string
		category string
	}{
		{
			name:     "transfer",
			subject:  "You sent $25.00 to Bob Smith",
			body:     htmltext.Normalize(chaseTransferHTML),
			merchant: "Bob Smith",
			amount:   "25.00",
			account:  "Chase 1234",
		},
		{
			name:     "card purchase",
			subject:  "Your $12.34 transaction with STARBUCKS STORE 123",
			body:     htmltext.Normalize(chaseCardHTML),
			merchant: "STARBUCKS STORE 123",
			amount:   "12.34",
			account:  "Chase 5678",
		},
		{
			name:     "card purchase with punctuation",
			subject:  "Your $8.00 transaction with SQ *JOE'S #4",
			body:     htmltext.Normalize(chaseCardHTML),
			merchant: "SQ *JOE'S #4",
			amount:   "8.00",
			account:  "Chase 5678",
		},
		{
			name:     "direct deposit",
			subject:  "You have a direct deposit of $2,345.67 in account (...4321)",
			merchant: "Acme Corp",
			amount:   "2345.67",
			account:  "Chase 4321",
			bucket:   "Income",
			category: "Paychecks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := c.TryExtract(tt.subject, tt.body, sentAt)
			require.NoError(t, err)
			require.NotNil(t, tx)

			assertFreshID(t, tx)
			assert.Equal(t, tt.merchant, tx.Merchant)
			assert.Equal(t, tt.amount, tx.Amount)
			assert.Equal(t, tt.account, tx.AccountName)
			assert.Equal(t, tt.bucket, tx.Bucket)
			assert.Equal(t, tt.category, tx.Category)
			assert.Equal(t, "", tx.Subcategory)
			assert.Equal(t, "False", tx.IsRecurring)
		})
	}
}

func TestChase_FirstMatchingCaseWins(t *testing.T) {
	// "You sent" is checked before "transaction with".
	subject := "You sent a payment: transaction with Bob $10.00"
	tx, err := NewChase("Acme Corp", time.UTC).TryExtract(subject, htmltext.Normalize(chaseTransferHTML), sentAt)
	require.NoError(t, err)
	assert.Equal(t, "Bob Smith", tx.Merchant)
	assert.Equal(t, "25.00", tx.Amount)
}

func TestChase_NonTransactionAndMismatch(t *testing.T) {
	c := NewChase("Acme Corp", time.UTC)

	tx, err := c.TryExtract("Your statement is ready", "", sentAt)
	assert.NoError(t, err)
	assert.Nil(t, tx)

	_, err = c.TryExtract("You sent $25.00 to Bob Smith", "Thanks for using Zelle", sentAt)
	assert.ErrorIs(t, err, domain.ErrExtractionMismatch)

	_, err = NewChase("", time.UTC).TryExtract("You have a direct deposit of $1.00 in account (...4321)", "", sentAt)
	assert.ErrorIs(t, err, domain.ErrExtractionMismatch)
}

func TestCapitalOne(t *testing.T) {
	body := htmltext.Normalize(capitalOneHTML)

	tx, err := NewCapitalOne(time.UTC).TryExtract("A new transaction was charged to your account", body, sentAt)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assertFreshID(t, tx)
	assert.Equal(t, "AMAZON.COM", tx.Merchant)
	assert.Equal(t, "25.99", tx.Amount)
	assert.Equal(t, "Capital One 9876", tx.AccountName)
	assert.Equal(t, "", tx.Bucket)
	assert.Equal(t, "False", tx.IsRecurring)
}

func TestCapitalOne_NestedAt(t *testing.T) {
	body := "Charged at SQ at BLUE BOTTLE, a pending authorization or purchase in the amount of $4.50 on card ending in 1111."

	tx, err := NewCapitalOne(time.UTC).TryExtract("A new transaction was charged to your account", body, sentAt)
	require.NoError(t, err)
	assert.Equal(t, "BLUE BOTTLE", tx.Merchant)
}

func TestCapitalOne_Mismatch(t *testing.T) {
	_, err := NewCapitalOne(time.UTC).TryExtract("A new transaction was charged to your account", "Your payment posted.", sentAt)
	assert.ErrorIs(t, err, domain.ErrExtractionMismatch)
}

func TestWellsFargo(t *testing.T) {
	body := htmltext.Normalize(wellsFargoHTML)

	tx, err := NewWellsFargo(time.UTC).TryExtract("You made a credit card purchase of $1,234.56", body, sentAt)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assertFreshID(t, tx)
	assert.Equal(t, "BEST BUY 00012345", tx.Merchant)
	assert.Equal(t, "1,234.56", tx.Amount)
	assert.Equal(t, "Wells Fargo 4455", tx.AccountName)
	assert.Equal(t, "", tx.Bucket)
}

func TestWellsFargo_MultiLineMerchant(t *testing.T) {
	body := "Credit card\n...4455\nAmount\n$9.99\nMerchant detail\n  NETFLIX.COM\nLOS GATOS CA  \nView Accounts"

	tx, err := NewWellsFargo(time.UTC).TryExtract("You made a credit card purchase of $9.99", body, sentAt)
	require.NoError(t, err)
	assert.Equal(t, "NETFLIX.COM\nLOS GATOS CA", tx.Merchant)
}

func TestWellsFargo_Mismatch(t *testing.T) {
	_, err := NewWellsFargo(time.UTC).TryExtract("You made a credit card purchase of $9.99", "Merchant detail\nNETFLIX", sentAt)
	assert.ErrorIs(t, err, domain.ErrExtractionMismatch)
}

func TestTransactionDateUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tx, err := NewVenmo(ny).TryExtract("You paid Alice $12.34", "", sentAt)
	require.NoError(t, err)
	assert.Equal(t, "2024-10-01", tx.TransactionDate)
}

func TestEachExtractionGetsANewID(t *testing.T) {
	v := NewVenmo(time.UTC)
	a, err := v.TryExtract("You paid Alice $12.34", "", sentAt)
	require.NoError(t, err)
	b, err := v.TryExtract("You paid Alice $12.34", "", sentAt)
	require.NoError(t, err)
	assert.NotEqual(t, a.TransactionID, b.TransactionID)
}
