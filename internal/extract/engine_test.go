package extract

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine() *Engine {
	return New(Senders{
		Venmo:      "venmo@venmo.com",
		Amex:       "AmericanExpress@welcome.americanexpress.com",
		Chase:      "no.reply.alerts@chase.com",
		CapitalOne: "capitalone@notification.capitalone.com",
		WellsFargo: "",
	}, Options{Employer: "Acme Corp", Location: time.UTC})
}

func TestNew_SkipsEmptySenders(t *testing.T) {
	senders := testEngine().Senders()
	sort.Strings(senders)

	assert.Equal(t, []string{
		"americanexpress@welcome.americanexpress.com",
		"capitalone@notification.capitalone.com",
		"no.reply.alerts@chase.com",
		"venmo@venmo.com",
	}, senders)
}

func TestLookup_CaseInsensitive(t *testing.T) {
	ex, ok := testEngine().Lookup("  Venmo@Venmo.com ")
	require.True(t, ok)
	assert.Equal(t, "Venmo", ex.Institution())
}

func TestInScope(t *testing.T) {
	at := domain.TimeFromMillis(sentAt)

	assert.True(t, InScope(sentAt, time.Time{}))
	assert.True(t, InScope(sentAt, at.Add(-time.Millisecond)))
	assert.False(t, InScope(sentAt, at))
	assert.False(t, InScope(sentAt, at.Add(time.Hour)))

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.False(t, InScope(sentAt, at.In(ny)))
}

func TestExtract(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	tx, err := e.Extract(ctx, Input{
		MessageID:       "m1",
		Subject:         "You paid Alice $12.34",
		Sender:          "venmo@venmo.com",
		TimestampMillis: sentAt,
	}, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "Alice", tx.Merchant)
	assert.Equal(t, "12.34", tx.Amount)
}

func TestExtract_OutOfScope(t *testing.T) {
	e := testEngine()
	cutoff := domain.TimeFromMillis(sentAt)

	// Even a malformed message is ignored when it predates the cutoff.
	tx, err := e.Extract(context.Background(), Input{
		MessageID:       "m1",
		Subject:         "Large Purchase Approved",
		Sender:          "AmericanExpress@welcome.americanexpress.com",
		TimestampMillis: sentAt,
		Body:            "too short",
	}, cutoff)
	assert.NoError(t, err)
	assert.Nil(t, tx)
}

func TestExtract_UnknownSender(t *testing.T) {
	tx, err := testEngine().Extract(context.Background(), Input{
		MessageID:       "m1",
		Subject:         "You paid Alice $12.34",
		Sender:          "alerts@example.com",
		TimestampMillis: sentAt,
	}, time.Time{})
	assert.NoError(t, err)
	assert.Nil(t, tx)
}

func TestExtract_UnregisteredInstitution(t *testing.T) {
	// Wells Fargo has no configured address, so its mail is never routed.
	tx, err := testEngine().Extract(context.Background(), Input{
		MessageID:       "m1",
		Subject:         "You made a credit card purchase of $9.99",
		Sender:          "alerts@notify.wellsfargo.com",
		TimestampMillis: sentAt,
	}, time.Time{})
	assert.NoError(t, err)
	assert.Nil(t, tx)
}

func TestExtract_NonTransaction(t *testing.T) {
	tx, err := testEngine().Extract(context.Background(), Input{
		MessageID:       "m1",
		Subject:         "Your statement is ready",
		Sender:          "no.reply.alerts@chase.com",
		TimestampMillis: sentAt,
	}, time.Time{})
	assert.NoError(t, err)
	assert.Nil(t, tx)
}

func TestExtract_MismatchLogsRawBody(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))

	tx, err := testEngine().Extract(ctx, Input{
		MessageID:       "m1",
		Subject:         "A new transaction was charged to your account",
		Sender:          "capitalone@notification.capitalone.com",
		TimestampMillis: sentAt,
		Body:            "Your payment posted.",
	}, time.Time{})

	assert.Nil(t, tx)
	assert.ErrorIs(t, err, domain.ErrExtractionMismatch)
	assert.True(t, strings.Contains(buf.String(), `"raw_body":"Your payment posted."`), buf.String())
	assert.True(t, strings.Contains(buf.String(), `"message_id":"m1"`), buf.String())
}

func TestRegister_Custom(t *testing.T) {
	e := NewEngine()
	e.Register("", NewVenmo(time.UTC))
	assert.Empty(t, e.Senders())

	e.Register("Pay@Example.com", NewVenmo(time.UTC))
	_, ok := e.Lookup("pay@example.com")
	assert.True(t, ok)
}
