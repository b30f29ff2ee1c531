package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/archive"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/dvloznov/mailledger/internal/mailsource"
	"github.com/dvloznov/mailledger/internal/watermark"
)

// Summary counts the outcome of every listed message in one run.
type Summary struct {
	Listed        int  `json:"listed"`
	Skipped       int  `json:"skipped"`
	Extracted     int  `json:"extracted"`
	NoTransaction int  `json:"no_transaction"`
	Mismatched    int  `json:"mismatched"`
	Failed        int  `json:"failed"`
	Written       int  `json:"written"`
	Published     int  `json:"published"`
	// ListFailed is set when the mailbox could not be listed and the run saw no messages.
	ListFailed    bool `json:"list_failed,omitempty"`
}

func (s *Summary) record(o Outcome) {
	switch o {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeNoTransaction:
		s.NoTransaction++
	case OutcomeMismatched:
		s.Mismatched++
	case OutcomeExtracted:
		s.Extracted++
	case OutcomeWritten:
		s.Extracted++
		s.Written++
	case OutcomePublished:
		s.Published++
	}
}

// RefreshOptions tune a single refresh.
type RefreshOptions struct {
	// Cutoff replaces the stored last refresh time when set. Same layout as the stored value.
	Cutoff string
}

// RunnerDeps are the collaborators of a Runner. Archiver may be nil.
type RunnerDeps struct {
	Source    mailsource.Source
	Watermark watermark.Store
	Extractor Extractor
	Rules     RuleLister
	Sink      Sink
	Refresh   RefreshStore
	Archiver  archive.Archiver
}

// Runner performs a synchronous refresh: list, fetch, extract, rename, persist
// and record every new message in one pass.
type Runner struct {
	deps     RunnerDeps
	userName string
	senders  []string
	pipeline *Pipeline
	now      func() time.Time
}

// NewRunner creates a runner for userName reading mail from senders.
func NewRunner(deps RunnerDeps, userName string, senders []string) *Runner {
	return &Runner{
		deps:     deps,
		userName: userName,
		senders:  senders,
		now:      time.Now,
		pipeline: NewPipeline(
			&SkipProcessedStep{Store: deps.Watermark},
			&FetchMessageStep{Source: deps.Source},
			&NormalizeBodyStep{},
			&ExtractStep{Extractor: deps.Extractor, Archiver: deps.Archiver},
			&ApplyRulesStep{},
			&ValidateStep{},
			&PersistStep{Sink: deps.Sink},
			&MarkProcessedStep{Store: deps.Watermark},
		),
	}
}

// Refresh imports every transaction mailed since the last refresh.
//
// Reading the cutoff, the watermark or the rules aborts the run. A transient
// listing failure is logged and treated as an empty mailbox. Failures on single
// messages are counted and leave the message unrecorded. The stored last refresh
// only advances when the listing succeeded and no message failed.
func (r *Runner) Refresh(ctx context.Context, opts RefreshOptions) (Summary, error) {
	log := logger.FromContext(ctx)
	var summary Summary

	cutoff, err := r.resolveCutoff(ctx, opts)
	if err != nil {
		return summary, err
	}

	latest, err := r.deps.Watermark.LatestProcessedDate(ctx)
	if err != nil {
		return summary, fmt.Errorf("Refresh: read watermark: %w", err)
	}
	listDate := latest
	if listDate == nil && !cutoff.IsZero() {
		d := civil.DateOf(cutoff)
		listDate = &d
	}

	ruleSet, err := r.deps.Rules.ListRules(ctx)
	if err != nil {
		return summary, fmt.Errorf("Refresh: load rules: %w", err)
	}

	query := mailsource.BuildQuery(r.senders, listDate)
	ids, err := listCandidates(ctx, r.deps.Source, query, &summary)
	if err != nil {
		return summary, fmt.Errorf("Refresh: list messages: %w", err)
	}
	summary.Listed = len(ids)
	log.Info().
		Str("query", query).
		Time("cutoff", cutoff).
		Int("listed", len(ids)).
		Int("rules", len(ruleSet)).
		Msg("Starting refresh")

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("Refresh: %w", err)
		}
		state := &MessageState{MessageID: id, Cutoff: cutoff, Rules: ruleSet}
		if err := r.pipeline.Execute(ctx, state); err != nil {
			summary.Failed++
			log.Error().Err(err).Str("message_id", id).Msg("Failed to process message")
			continue
		}
		summary.record(state.Outcome)
	}

	if summary.ListFailed {
		log.Warn().Msg("Keeping last refresh time because listing failed")
	} else if summary.Failed > 0 {
		log.Warn().Int("failed", summary.Failed).Msg("Keeping last refresh time because some messages failed")
	} else if err := r.deps.Refresh.SetLastRefresh(ctx, r.userName, domain.FormatRefreshTime(r.now())); err != nil {
		return summary, fmt.Errorf("Refresh: store last refresh: %w", err)
	}

	log.Info().
		Int("listed", summary.Listed).
		Int("skipped", summary.Skipped).
		Int("written", summary.Written).
		Int("no_transaction", summary.NoTransaction).
		Int("mismatched", summary.Mismatched).
		Int("failed", summary.Failed).
		Msg("Refresh completed")
	return summary, nil
}

func (r *Runner) resolveCutoff(ctx context.Context, opts RefreshOptions) (time.Time, error) {
	if opts.Cutoff != "" {
		t, err := domain.ParseRefreshTime(opts.Cutoff)
		if err != nil {
			return time.Time{}, fmt.Errorf("Refresh: cutoff override: %w", err)
		}
		return t, nil
	}

	stored, err := r.deps.Refresh.LastRefresh(ctx, r.userName)
	if err != nil {
		return time.Time{}, fmt.Errorf("Refresh: read last refresh: %w", err)
	}
	if stored == "" {
		return time.Time{}, nil
	}
	t, err := domain.ParseRefreshTime(stored)
	if err != nil {
		return time.Time{}, fmt.Errorf("Refresh: stored last refresh: %w", err)
	}
	return t, nil
}

// listCandidates lists message ids. A transient source error is logged and
// yields no ids with summary.ListFailed set; any other error is returned.
func listCandidates(ctx context.Context, source mailsource.Source, query string, summary *Summary) ([]string, error) {
	ids, err := source.ListCandidates(ctx, query)
	if err == nil {
		return ids, nil
	}
	if !errors.Is(err, domain.ErrTransientSource) {
		return nil, err
	}
	log := logger.FromContext(ctx)
	log.Error().Err(err).Str("query", query).Msg("Failed to list messages, continuing with none")
	summary.ListFailed = true
	return nil, nil
}
