package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/mailledger/internal/archive"
	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/dvloznov/mailledger/internal/mailsource"
	"github.com/dvloznov/mailledger/internal/queue"
)

// Writer turns queued envelopes into stored transactions.
type Writer struct {
	rules    RuleLister
	pipeline *Pipeline
}

// NewWriter creates a writer. archiver may be nil.
func NewWriter(extractor Extractor, ruleLister RuleLister, sink Sink, archiver archive.Archiver) *Writer {
	return &Writer{
		rules: ruleLister,
		pipeline: NewPipeline(
			&ExtractStep{Extractor: extractor, Archiver: archiver},
			&ApplyRulesStep{},
			&ValidateStep{},
			&PersistStep{Sink: sink},
		),
	}
}

// Handle implements queue.Handler. Messages without a transaction and
// mismatches return nil so the transport does not redeliver them; rule loading
// and sink failures return an error.
func (w *Writer) Handle(ctx context.Context, env *queue.MessageEnvelope) error {
	log := logger.FromContext(ctx).With().Str("message_id", env.MessageID).Logger()
	ctx = logger.WithContext(ctx, log)

	ruleSet, err := w.rules.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("Handle: load rules: %w", err)
	}

	state := &MessageState{
		MessageID: env.MessageID,
		Cutoff:    time.Time{},
		Rules:     ruleSet,
		Message: &mailsource.Message{
			ID:              env.MessageID,
			Subject:         env.MessageSubject,
			SenderAddress:   env.MessageSender,
			TimestampMillis: env.MessageTimestamp,
			Body:            env.MessageBody,
		},
		Body: env.MessageBody,
	}
	if err := w.pipeline.Execute(ctx, state); err != nil {
		return fmt.Errorf("Handle: %w", err)
	}

	log.Info().Str("outcome", state.Outcome.String()).Msg("Handled message")
	return nil
}

// Ensure Writer.Handle satisfies queue.Handler.
var _ queue.Handler = (*Writer)(nil).Handle
