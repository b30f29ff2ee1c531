// Package notionsync mirrors stored transactions into a Notion database.
package notionsync

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/jomei/notionapi"
)

const (
	// BatchSize defines the number of transactions to process in a single batch
	BatchSize = 100
)

// Options controls a sync run.
type Options struct {
	// DryRun logs the changes without calling Notion.
	DryRun bool

	// Prune archives pages dated within the range whose transaction no longer exists.
	Prune bool
}

// Result counts what a sync run did.
type Result struct {
	Created int
	Updated int
	Deleted int
	Failed  int
}

// SyncTransactions copies transactions dated within [start, end] into the Notion
// database. Pages are matched by their Transaction ID property: a match is
// updated in place, so merchant renames reach Notion, and anything else is
// created. Failures on single pages are logged and counted.
func SyncTransactions(ctx context.Context, source TransactionSource, notionClient NotionService, notionDBID string, start, end civil.Date, opts Options) (Result, error) {
	log := logger.FromContext(ctx)
	var res Result

	log.Info().
		Str("start_date", start.String()).
		Str("end_date", end.String()).
		Bool("dry_run", opts.DryRun).
		Bool("prune", opts.Prune).
		Msg("Starting transaction sync to Notion")

	transactions, err := source.QueryTransactionsByDateRange(ctx, start, end)
	if err != nil {
		return res, fmt.Errorf("SyncTransactions: query transactions: %w", err)
	}
	log.Info().Int("transaction_count", len(transactions)).Msg("Retrieved transactions")

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return res, fmt.Errorf("SyncTransactions: query Notion pages: %w", err)
	}
	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	pageByTxID := make(map[string]string, len(notionPages))
	for _, page := range notionPages {
		if txID := extractTransactionID(page); txID != "" {
			pageByTxID[txID] = string(page.ID)
		}
	}

	current := make(map[string]bool, len(transactions))
	for i := 0; i < len(transactions); i += BatchSize {
		batchEnd := i + BatchSize
		if batchEnd > len(transactions) {
			batchEnd = len(transactions)
		}
		batch := transactions[i:batchEnd]
		log.Info().
			Int("batch_start", i).
			Int("batch_end", batchEnd).
			Int("batch_size", len(batch)).
			Msg("Processing batch")

		for _, tx := range batch {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("SyncTransactions: %w", err)
			}
			current[tx.TransactionID] = true
			txLog := log.With().Str("transaction_id", tx.TransactionID).Logger()
			props := TransactionToNotionProperties(tx)

			if pageID, ok := pageByTxID[tx.TransactionID]; ok {
				if opts.DryRun {
					txLog.Info().Str("page_id", pageID).Msg("[DRY RUN] Would update existing Notion page")
					res.Updated++
					continue
				}
				if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
					txLog.Warn().Err(err).Str("page_id", pageID).Msg("Failed to update Notion page")
					res.Failed++
					continue
				}
				res.Updated++
				continue
			}

			if opts.DryRun {
				txLog.Info().Msg("[DRY RUN] Would create new Notion page")
				res.Created++
				continue
			}
			page, err := notionClient.CreatePage(ctx, notionDBID, props)
			if err != nil {
				txLog.Warn().Err(err).Msg("Failed to create Notion page")
				res.Failed++
				continue
			}
			txLog.Debug().Str("page_id", string(page.ID)).Msg("Created Notion page")
			res.Created++
		}
	}

	if opts.Prune {
		deleted, failed := pruneStale(ctx, notionClient, notionPages, current, start, end, opts.DryRun)
		res.Deleted += deleted
		res.Failed += failed
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("deleted", res.Deleted).
		Int("failed", res.Failed).
		Int("total", len(transactions)).
		Msg("Transaction sync to Notion completed")
	return res, nil
}

// pruneStale archives pages in [start, end] whose transaction is not in current.
// Pages without a Transaction ID are left alone.
func pruneStale(ctx context.Context, notionClient NotionService, pages []notionapi.Page, current map[string]bool, start, end civil.Date, dryRun bool) (deleted, failed int) {
	log := logger.FromContext(ctx)

	for _, page := range pages {
		txID := extractTransactionID(page)
		if txID == "" || current[txID] {
			continue
		}
		date, ok := extractDate(page)
		if !ok || !inRange(civil.DateOf(date), start, end) {
			continue
		}

		pageLog := log.With().Str("transaction_id", txID).Str("page_id", string(page.ID)).Logger()
		if dryRun {
			pageLog.Info().Msg("[DRY RUN] Would delete stale Notion page")
			deleted++
			continue
		}
		if err := notionClient.DeletePage(ctx, string(page.ID)); err != nil {
			pageLog.Warn().Err(err).Msg("Failed to delete stale Notion page")
			failed++
			continue
		}
		pageLog.Info().Msg("Deleted stale Notion page")
		deleted++
	}
	return deleted, failed
}

func inRange(d, start, end civil.Date) bool {
	return !d.Before(start) && !d.After(end)
}

// queryAllNotionPages follows the cursor until every page of the database is read.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return allPages, nil
}
