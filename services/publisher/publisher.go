package publisher

import "context"

// Publisher represents a service for publishing crawl events
type Publisher interface {
	// Publish publishes a message to the stream under the given field key
	Publish(ctx context.Context, key string, message []byte) error

	// TrimStreams trims the stream to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}
