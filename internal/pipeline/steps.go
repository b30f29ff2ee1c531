package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/mailledger/internal/archive"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/extract"
	"github.com/dvloznov/mailledger/internal/htmltext"
	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/dvloznov/mailledger/internal/mailsource"
	"github.com/dvloznov/mailledger/internal/queue"
	"github.com/dvloznov/mailledger/internal/rules"
	"github.com/dvloznov/mailledger/internal/watermark"
)

// Outcome is what happened to one message.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSkipped
	OutcomeNoTransaction
	OutcomeMismatched
	OutcomeExtracted
	OutcomeWritten
	OutcomePublished
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNoTransaction:
		return "no_transaction"
	case OutcomeMismatched:
		return "mismatched"
	case OutcomeExtracted:
		return "extracted"
	case OutcomeWritten:
		return "written"
	case OutcomePublished:
		return "published"
	default:
		return "pending"
	}
}

// MessageState holds the shared state across the steps run for one message.
type MessageState struct {
	MessageID string
	Cutoff    time.Time
	Rules     []domain.MerchantRule

	Message     *mailsource.Message
	Body        string // normalized
	Transaction *domain.Transaction
	ArchiveURI  string

	Outcome Outcome
	// Done stops the pipeline before the next step.
	Done bool
}

// settled reports whether an earlier step already decided there is nothing to write.
func (s *MessageState) settled() bool {
	return s.Outcome == OutcomeNoTransaction || s.Outcome == OutcomeMismatched
}

// Step represents a single step in a message pipeline.
type Step interface {
	Execute(ctx context.Context, state *MessageState) error
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps sequentially until one fails or marks the state done.
func (p *Pipeline) Execute(ctx context.Context, state *MessageState) error {
	for i, step := range p.steps {
		if state.Done {
			return nil
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%T) failed: %w", i+1, step, err)
		}
	}
	return nil
}

// SkipProcessedStep ends the pipeline for messages already recorded.
type SkipProcessedStep struct {
	Store watermark.Store
}

func (s *SkipProcessedStep) Execute(ctx context.Context, state *MessageState) error {
	done, err := s.Store.IsProcessed(ctx, state.MessageID)
	if err != nil {
		return err
	}
	if done {
		log := logger.FromContext(ctx)
		log.Debug().Str("message_id", state.MessageID).Msg("Message already processed, skipping")
		state.Outcome = OutcomeSkipped
		state.Done = true
	}
	return nil
}

// FetchMessageStep loads the message from the mailbox. A message without a
// usable body is settled as a mismatch so it is recorded and never retried.
type FetchMessageStep struct {
	Source mailsource.Source
}

func (s *FetchMessageStep) Execute(ctx context.Context, state *MessageState) error {
	msg, err := s.Source.Fetch(ctx, state.MessageID)
	if errors.Is(err, mailsource.ErrNoBody) && msg != nil {
		state.Message = msg
		state.Outcome = OutcomeMismatched
		return nil
	}
	if err != nil {
		return err
	}
	state.Message = msg
	return nil
}

// NormalizeBodyStep converts the raw HTML body to the line-oriented text extractors expect.
type NormalizeBodyStep struct{}

func (s *NormalizeBodyStep) Execute(ctx context.Context, state *MessageState) error {
	if state.Message == nil || state.settled() {
		return nil
	}
	state.Body = htmltext.Normalize(state.Message.Body)
	return nil
}

// ExtractStep runs the extraction engine. A mismatch is archived when an
// archiver is configured and then settled without an error.
type ExtractStep struct {
	Extractor Extractor
	Archiver  archive.Archiver
}

func (s *ExtractStep) Execute(ctx context.Context, state *MessageState) error {
	if state.Message == nil || state.settled() {
		return nil
	}
	in := extract.Input{
		MessageID:       state.MessageID,
		Subject:         state.Message.Subject,
		Sender:          state.Message.SenderAddress,
		TimestampMillis: state.Message.TimestampMillis,
		Body:            state.Body,
	}

	tx, err := s.Extractor.Extract(ctx, in, state.Cutoff)
	if errors.Is(err, domain.ErrExtractionMismatch) {
		state.Outcome = OutcomeMismatched
		s.archive(ctx, state)
		return nil
	}
	if err != nil {
		return err
	}
	if tx == nil {
		state.Outcome = OutcomeNoTransaction
		return nil
	}
	state.Transaction = tx
	state.Outcome = OutcomeExtracted
	return nil
}

func (s *ExtractStep) archive(ctx context.Context, state *MessageState) {
	if s.Archiver == nil {
		return
	}
	log := logger.FromContext(ctx).With().Str("message_id", state.MessageID).Logger()
	uri, err := s.Archiver.Put(ctx, state.MessageID, state.Body)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to archive mismatched message")
		return
	}
	state.ArchiveURI = uri
	log.Info().Str("archive_uri", uri).Msg("Archived mismatched message")
}

// ApplyRulesStep rewrites the merchant with the rules carried in the state.
type ApplyRulesStep struct{}

func (s *ApplyRulesStep) Execute(ctx context.Context, state *MessageState) error {
	if state.Transaction == nil {
		return nil
	}
	before := state.Transaction.Merchant
	if rules.ApplyTo(state.Transaction, state.Rules) {
		log := logger.FromContext(ctx)
		log.Debug().
			Str("transaction_id", state.Transaction.TransactionID).
			Str("merchant_before", before).
			Str("merchant", state.Transaction.Merchant).
			Msg("Applied merchant rules")
	}
	return nil
}

// ValidateStep rejects incomplete records before they reach a sink. An invalid
// record is settled as a mismatch.
type ValidateStep struct{}

func (s *ValidateStep) Execute(ctx context.Context, state *MessageState) error {
	if state.Transaction == nil {
		return nil
	}
	if err := state.Transaction.Validate(); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).
			Str("message_id", state.MessageID).
			Str("raw_body", state.Body).
			Msg("Extracted transaction failed validation")
		state.Transaction = nil
		state.Outcome = OutcomeMismatched
	}
	return nil
}

// PersistStep writes the transaction to the sink.
type PersistStep struct {
	Sink Sink
}

func (s *PersistStep) Execute(ctx context.Context, state *MessageState) error {
	if state.Transaction == nil {
		return nil
	}
	if err := s.Sink.WriteTransaction(ctx, *state.Transaction); err != nil {
		return err
	}
	state.Outcome = OutcomeWritten
	return nil
}

// PublishStep hands the normalized message to the queue.
type PublishStep struct {
	Publisher queue.Publisher
}

func (s *PublishStep) Execute(ctx context.Context, state *MessageState) error {
	if state.Message == nil || state.settled() {
		return nil
	}
	env := &queue.MessageEnvelope{
		MessageID:        state.MessageID,
		MessageSender:    state.Message.SenderAddress,
		MessageSubject:   state.Message.Subject,
		MessageTimestamp: state.Message.TimestampMillis,
		MessageBody:      state.Body,
	}
	if err := s.Publisher.PublishMessage(ctx, env); err != nil {
		return err
	}
	state.Outcome = OutcomePublished
	return nil
}

// MarkProcessedStep records the message in the watermark store.
type MarkProcessedStep struct {
	Store watermark.Store
}

func (s *MarkProcessedStep) Execute(ctx context.Context, state *MessageState) error {
	if state.Message == nil {
		return nil
	}
	return s.Store.MarkProcessed(ctx, state.MessageID, state.Message.TimestampMillis)
}
