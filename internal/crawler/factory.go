package crawler

import (
	"sjsage522/pricecrawler/config"
	"sjsage522/pricecrawler/helpers"
	"sjsage522/pricecrawler/services/cache"
)

// Both retry policies allow exactly one retry after the first timeout
const (
	pageAttempts    = 2
	historyAttempts = 2
)

// NewParser returns the page parser selected by the configuration
func NewParser(cfg *config.Config) PageParser {
	if cfg.Parser == config.ParserSelector {
		return NewSelectorParser(DefaultSelectors)
	}
	return NewPatternParser()
}

// NewPageWorker wires a page worker from the configuration; cacheSvc and reporter may be nil
func NewPageWorker(cfg *config.Config, cacheSvc cache.CacheService, reporter helpers.LoggerInterface) *PageWorker {
	client := helpers.NewHTTPClient(cfg.RequestTimeout)

	return &PageWorker{
		Pages:              NewHTTPPageFetcher(cfg.PageURLTemplate, client),
		Parser:             NewParser(cfg),
		History:            NewHTTPHistoryFetcher(cfg.HistoryURL, client, cacheSvc, cfg.HistoryCacheTTL),
		PageAttempts:       pageAttempts,
		PageBackoff:        cfg.PageRetryBackoff,
		HistoryAttempts:    historyAttempts,
		HistoryBackoff:     cfg.HistoryRetryBackoff,
		HistoryConcurrency: cfg.HistoryConcurrency,
		SkipParseFailures:  cfg.ParseFailurePolicy == config.ParseFailureSkip,
		Reporter:           reporter,
	}
}
