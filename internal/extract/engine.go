package extract

import (
	"context"
	"strings"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/logger"
)

// Senders holds the sender address configured for each institution.
type Senders struct {
	Venmo      string
	Amex       string
	Chase      string
	CapitalOne string
	WellsFargo string
}

// Options tune the extractors built by New.
type Options struct {
	// Employer is the merchant recorded for Chase direct deposits.
	Employer string
	// Location is the zone transaction dates are rendered in. Nil means time.Local.
	Location *time.Location
}

// Input is one message ready for extraction. Body is normalized plain text.
type Input struct {
	MessageID       string
	Subject         string
	Sender          string
	TimestampMillis int64
	Body            string
}

// Engine routes messages to the extractor registered for their sender.
// It holds no mutable state after construction.
type Engine struct {
	extractors map[string]Extractor
}

// NewEngine returns an engine with no extractors registered.
func NewEngine() *Engine {
	return &Engine{extractors: make(map[string]Extractor)}
}

// New returns an engine with the five institution extractors registered under senders.
// Institutions with an empty address are not registered.
func New(senders Senders, opts Options) *Engine {
	e := NewEngine()
	e.Register(senders.Venmo, NewVenmo(opts.Location))
	e.Register(senders.Amex, NewAmex(opts.Location))
	e.Register(senders.Chase, NewChase(opts.Employer, opts.Location))
	e.Register(senders.CapitalOne, NewCapitalOne(opts.Location))
	e.Register(senders.WellsFargo, NewWellsFargo(opts.Location))
	return e
}

// Register routes mail from sender to ex. Addresses compare case-insensitively.
func (e *Engine) Register(sender string, ex Extractor) {
	key := senderKey(sender)
	if key == "" {
		return
	}
	e.extractors[key] = ex
}

// Lookup returns the extractor registered for sender.
func (e *Engine) Lookup(sender string) (Extractor, bool) {
	ex, ok := e.extractors[senderKey(sender)]
	return ex, ok
}

// Senders lists the registered sender addresses.
func (e *Engine) Senders() []string {
	out := make([]string, 0, len(e.extractors))
	for s := range e.extractors {
		out = append(out, s)
	}
	return out
}

// InScope reports whether a message sent at timestampMillis is newer than cutoff.
func InScope(timestampMillis int64, cutoff time.Time) bool {
	return domain.TimeFromMillis(timestampMillis).After(cutoff.UTC())
}

// Extract returns the transaction described by in, or nil when there is none.
//
// Messages at or before cutoff and messages from unknown senders yield nil with
// no error. A triggered rule whose fields are missing is logged with the raw body
// and returned as an error wrapping domain.ErrExtractionMismatch.
func (e *Engine) Extract(ctx context.Context, in Input, cutoff time.Time) (*domain.Transaction, error) {
	log := logger.FromContext(ctx).With().
		Str("message_id", in.MessageID).
		Str("sender", in.Sender).
		Logger()

	if !InScope(in.TimestampMillis, cutoff) {
		log.Debug().Time("cutoff", cutoff).Msg("Message was part of an earlier refresh, skipping")
		return nil, nil
	}

	ex, ok := e.Lookup(in.Sender)
	if !ok {
		log.Debug().Msg("No extractor registered for sender")
		return nil, nil
	}

	tx, err := ex.TryExtract(in.Subject, in.Body, in.TimestampMillis)
	if err != nil {
		log.Error().
			Err(err).
			Str("institution", ex.Institution()).
			Str("subject", in.Subject).
			Str("raw_body", in.Body).
			Msg("Failed to extract transaction")
		return nil, err
	}
	if tx == nil {
		log.Info().
			Str("institution", ex.Institution()).
			Str("subject", in.Subject).
			Msg("Non-transaction email detected")
		return nil, nil
	}

	log.Info().
		Str("institution", ex.Institution()).
		Str("transaction_id", tx.TransactionID).
		Msg("Parsed transaction")
	return tx, nil
}

func senderKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
