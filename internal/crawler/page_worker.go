package crawler

import (
	"context"
	"fmt"
	"time"

	"sjsage522/pricecrawler/helpers"
	"sjsage522/pricecrawler/logger"
	apperrors "sjsage522/pricecrawler/pkg/errors"

	"golang.org/x/sync/errgroup"
)

// PageWorker turns one page number into a batch of enriched records
type PageWorker struct {
	Pages   PageFetcher
	Parser  PageParser
	History HistoryFetcher

	// PageAttempts bounds how often a timed out page fetch is tried
	PageAttempts int
	PageBackoff  time.Duration

	HistoryAttempts    int
	HistoryBackoff     time.Duration
	HistoryConcurrency int

	// SkipParseFailures emits zero records for a page whose fields do not
	// align instead of failing the run
	SkipParseFailures bool

	// Reporter records skipped pages for the operator; may be nil
	Reporter helpers.LoggerInterface
}

// ProcessPage fetches, parses and enriches one listing page.
// Records keep the in-page order of the listing.
func (w *PageWorker) ProcessPage(ctx context.Context, page int) ([]CommunityRecord, error) {
	log := logger.ForPage(page)
	start := time.Now()

	var content []byte
	err := helpers.Retry(ctx, w.PageAttempts, w.PageBackoff, func(ctx context.Context) error {
		var fetchErr error
		content, fetchErr = w.Pages.FetchPage(ctx, page)
		if apperrors.IsTimeout(fetchErr) {
			log.Debug().Err(fetchErr).Msg("Page fetch timed out")
		}
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}

	entries, err := w.Parser.Parse(content)
	if err != nil {
		if w.SkipParseFailures && apperrors.IsParsing(err) {
			log.Warn().Err(err).Msg("Skipping page with misaligned fields")
			if w.Reporter != nil {
				w.Reporter.LogError(fmt.Sprintf("page %d", page), err)
			}
			return []CommunityRecord{}, nil
		}
		return nil, fmt.Errorf("page %d: %w", page, err)
	}

	histories := w.fetchHistories(ctx, entries)

	records := make([]CommunityRecord, len(entries))
	for i, entry := range entries {
		records[i] = CommunityRecord{
			Name:         entry.Name,
			ID:           entry.ID,
			Location:     entry.Location,
			CurrentPrice: entry.CurrentPrice,
			History:      histories[i].Reduce(),
		}
	}

	log.Info().
		Int("communities", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("Page processed")

	return records, nil
}

// fetchHistories looks up every entry's history with bounded parallelism.
// Slot i always belongs to entries[i]; failures degrade to the nil sentinel.
func (w *PageWorker) fetchHistories(ctx context.Context, entries []ListingEntry) []History {
	histories := make([]History, len(entries))
	if w.History == nil {
		return histories
	}

	var g errgroup.Group
	g.SetLimit(max(w.HistoryConcurrency, 1))

	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			histories[i] = w.fetchHistory(ctx, entry.ID)
			return nil
		})
	}
	_ = g.Wait()

	return histories
}

func (w *PageWorker) fetchHistory(ctx context.Context, id int64) History {
	var history History
	err := helpers.Retry(ctx, w.HistoryAttempts, w.HistoryBackoff, func(ctx context.Context) error {
		var fetchErr error
		history, fetchErr = w.History.FetchHistory(ctx, id)
		return fetchErr
	})
	if err != nil {
		logger.Warn("history for community %d unavailable, storing zeros: %v", id, err)
		return nil
	}
	return history
}
