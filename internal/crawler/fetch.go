package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"sjsage522/pricecrawler/helpers"
)

// HTTPPageFetcher fetches listing pages from a page-indexed URL
type HTTPPageFetcher struct {
	URLTemplate string
	Client      *http.Client
}

// NewHTTPPageFetcher creates a page fetcher; urlTemplate must contain one %d verb
func NewHTTPPageFetcher(urlTemplate string, client *http.Client) *HTTPPageFetcher {
	return &HTTPPageFetcher{
		URLTemplate: urlTemplate,
		Client:      client,
	}
}

// PageURL returns the address of a 1-based page
func (f *HTTPPageFetcher) PageURL(page int) string {
	return fmt.Sprintf(f.URLTemplate, page)
}

// FetchPage implements PageFetcher
func (f *HTTPPageFetcher) FetchPage(ctx context.Context, page int) ([]byte, error) {
	utf8Body, err := helpers.FetchWithRandomHeaders(ctx, f.Client, f.PageURL(page))
	if err != nil {
		return nil, err
	}

	content, err := io.ReadAll(utf8Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %d: %w", page, err)
	}
	return content, nil
}
