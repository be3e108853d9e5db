package internal

import (
	"sjsage522/pricecrawler/logger"
	"sjsage522/pricecrawler/services/cache"
	"sjsage522/pricecrawler/services/publisher"
	"sjsage522/pricecrawler/services/storage"
)

// Dependencies holds all service dependencies of a crawl run.
// Cache and Publisher are optional and may be nil.
type Dependencies struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Sink      storage.Sink
}

// Cleanup closes every service that holds a connection
func (d *Dependencies) Cleanup() {
	if d.Publisher != nil {
		if err := d.Publisher.Close(); err != nil {
			logger.ForPublisher().Warn().Err(err).Msg("Failed to close publisher")
		}
	}
	if d.Sink != nil {
		if err := d.Sink.Close(); err != nil {
			logger.ForStorage().Warn().Err(err).Msg("Failed to close sink")
		}
	}
}
