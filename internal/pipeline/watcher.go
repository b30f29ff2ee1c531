package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/dvloznov/mailledger/internal/mailsource"
	"github.com/dvloznov/mailledger/internal/queue"
	"github.com/dvloznov/mailledger/internal/watermark"
)

// Watcher lists new mail and publishes each unseen message for a Writer.
type Watcher struct {
	source    mailsource.Source
	watermark watermark.Store
	senders   []string
	pipeline  *Pipeline
}

// NewWatcher creates a watcher publishing to publisher.
func NewWatcher(source mailsource.Source, store watermark.Store, publisher queue.Publisher, senders []string) *Watcher {
	return &Watcher{
		source:    source,
		watermark: store,
		senders:   senders,
		pipeline: NewPipeline(
			&SkipProcessedStep{Store: store},
			&FetchMessageStep{Source: source},
			&NormalizeBodyStep{},
			&PublishStep{Publisher: publisher},
			&MarkProcessedStep{Store: store},
		),
	}
}

// Run performs one listing pass. A message is recorded only after it was
// published, so a publish failure is retried on the next pass. A transient
// listing failure ends the pass with no messages.
func (w *Watcher) Run(ctx context.Context) (Summary, error) {
	log := logger.FromContext(ctx)
	var summary Summary

	latest, err := w.watermark.LatestProcessedDate(ctx)
	if err != nil {
		return summary, fmt.Errorf("Run: read watermark: %w", err)
	}
	query := mailsource.BuildQuery(w.senders, latest)
	ids, err := listCandidates(ctx, w.source, query, &summary)
	if err != nil {
		return summary, fmt.Errorf("Run: list messages: %w", err)
	}
	summary.Listed = len(ids)
	log.Info().Str("query", query).Int("listed", len(ids)).Msg("Listed candidate messages")

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("Run: %w", err)
		}
		state := &MessageState{MessageID: id}
		if err := w.pipeline.Execute(ctx, state); err != nil {
			summary.Failed++
			log.Error().Err(err).Str("message_id", id).Msg("Failed to forward message")
			continue
		}
		summary.record(state.Outcome)
	}

	log.Info().
		Int("listed", summary.Listed).
		Int("skipped", summary.Skipped).
		Int("published", summary.Published).
		Int("mismatched", summary.Mismatched).
		Int("failed", summary.Failed).
		Msg("Watch pass completed")
	return summary, nil
}
