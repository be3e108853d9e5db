package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"sjsage522/pricecrawler/helpers"
	"sjsage522/pricecrawler/internal/crawler"
	"sjsage522/pricecrawler/logger"
	apperrors "sjsage522/pricecrawler/pkg/errors"
	"sjsage522/pricecrawler/services/publisher"
	"sjsage522/pricecrawler/services/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// EventKey is the stream field the completion event is published under
const EventKey = "b64_crawl"

// PageProcessor turns one page number into its batch of records
type PageProcessor interface {
	ProcessPage(ctx context.Context, page int) ([]crawler.CommunityRecord, error)
}

// Result summarizes a finished crawl
type Result struct {
	RunID    string        `json:"run_id"`
	Pages    int           `json:"pages"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration_ns"`
}

// CrawlJob drives the pages [1, maxPage] through a bounded pool of page workers
type CrawlJob struct {
	ID        string
	pages     PageProcessor
	sink      storage.Sink
	publisher publisher.Publisher
	logger    helpers.LoggerInterface
	maxPage   int
	workers   int
}

// NewCrawlJob creates a crawl job; pub may be nil when no event stream is configured
func NewCrawlJob(
	pages PageProcessor,
	sink storage.Sink,
	pub publisher.Publisher,
	logger helpers.LoggerInterface,
	maxPage int,
	workers int,
) *CrawlJob {
	return &CrawlJob{
		ID:        uuid.NewString(),
		pages:     pages,
		sink:      sink,
		publisher: pub,
		logger:    logger,
		maxPage:   maxPage,
		workers:   max(workers, 1),
	}
}

// Run processes every page and returns the flattened records in page order.
// The first page failure stops dispatching; pages already running finish
// and their results are discarded.
func (j *CrawlJob) Run(ctx context.Context) ([]crawler.CommunityRecord, error) {
	log := logger.ForWorker().WithField("run_id", j.ID)

	batches := make([][]crawler.CommunityRecord, j.maxPage)
	var failed atomic.Bool

	var g errgroup.Group
	g.SetLimit(j.workers)

	for page := 1; page <= j.maxPage; page++ {
		if failed.Load() || ctx.Err() != nil {
			break
		}

		page := page
		g.Go(func() error {
			// A slot may have been freed by the page that failed
			if failed.Load() || ctx.Err() != nil {
				return nil
			}
			records, err := j.pages.ProcessPage(ctx, page)
			if err != nil {
				failed.Store(true)
				j.logger.LogError(fmt.Sprintf("page %d", page), err)
				return err
			}
			batches[page-1] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Crawl aborted")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawl cancelled: %w", err)
	}

	total := 0
	for _, batch := range batches {
		total += len(batch)
	}
	records := make([]crawler.CommunityRecord, 0, total)
	for _, batch := range batches {
		records = append(records, batch...)
	}

	log.Info().
		Int("pages", j.maxPage).
		Int("records", len(records)).
		Msg("All pages processed")

	return records, nil
}

// Crawl runs the job, writes every record in one bulk call and announces completion
func (j *CrawlJob) Crawl(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{RunID: j.ID, Pages: j.maxPage}

	records, err := j.Run(ctx)
	if err != nil {
		return result, err
	}

	if err := j.sink.Write(ctx, records); err != nil {
		if !apperrors.IsType(err, apperrors.ErrorTypePersistence) {
			err = apperrors.NewPersistence("sink", "bulk write failed", err)
		}
		j.logger.LogError("PersistenceSink", err)
		return result, err
	}

	result.Records = len(records)
	result.Duration = time.Since(start)

	j.publishCompletion(ctx, result)

	j.logger.LogInfo("Crawl %s finished: %d records from %d pages in %s",
		j.ID, result.Records, result.Pages, result.Duration)

	return result, nil
}

// publishCompletion announces the committed crawl; failures only get logged
func (j *CrawlJob) publishCompletion(ctx context.Context, result Result) {
	if j.publisher == nil {
		return
	}

	event, err := json.Marshal(result)
	if err != nil {
		j.logger.LogError("Publisher", err)
		return
	}

	if err := j.publisher.Publish(ctx, EventKey, event); err != nil {
		logger.ForPublisher().Warn().Err(err).Str("run_id", j.ID).Msg("Failed to publish crawl event")
		return
	}

	if err := j.publisher.TrimStreams(ctx); err != nil {
		j.logger.LogError("StreamTrimming", err)
	}
}
