package crawler

import (
	"context"
	"fmt"
	"strconv"

	apperrors "sjsage522/pricecrawler/pkg/errors"
)

// ReportingDates are the fixed historical checkpoints stored for every community
var ReportingDates = [HistoryLen]int{201212, 201306, 201312, 201406, 201412}

// HistoryLen is the number of reporting dates carried by a CommunityRecord
const HistoryLen = 5

// CommunityRecord is one normalized output row
type CommunityRecord struct {
	Name         string          `json:"name"`
	ID           int64           `json:"id"`
	Location     string          `json:"location"`
	CurrentPrice int             `json:"current_price"`
	History      [HistoryLen]int `json:"history"`
}

// HistoryAt returns the price stored for a reporting date, 0 when the date is not tracked
func (r CommunityRecord) HistoryAt(date int) int {
	for i, d := range ReportingDates {
		if d == date {
			return r.History[i]
		}
	}
	return 0
}

// ListingEntry is one aligned (id, name, location, price) tuple from a listing page
type ListingEntry struct {
	ID           int64
	Name         string
	Location     string
	CurrentPrice int
}

// RawFieldBatch holds the independently extracted field sequences of one page.
// The Nth element of each sequence describes the same community.
type RawFieldBatch struct {
	Names     []string
	IDs       []int64
	Locations []string
	Prices    []int
}

// Validate enforces the alignment invariant
func (b RawFieldBatch) Validate() error {
	n := len(b.IDs)
	if len(b.Names) != n || len(b.Locations) != n || len(b.Prices) != n {
		return apperrors.NewParsing("listing page",
			fmt.Sprintf("field count mismatch: names=%d ids=%d locations=%d prices=%d",
				len(b.Names), len(b.IDs), len(b.Locations), len(b.Prices)), nil)
	}
	return nil
}

// Entries zips the sequences by index after validating their alignment
func (b RawFieldBatch) Entries() ([]ListingEntry, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	entries := make([]ListingEntry, len(b.IDs))
	for i := range b.IDs {
		entries[i] = ListingEntry{
			ID:           b.IDs[i],
			Name:         b.Names[i],
			Location:     b.Locations[i],
			CurrentPrice: b.Prices[i],
		}
	}
	return entries, nil
}

// History maps a reporting date ("201406") to a price.
// A nil History is the "no history available" sentinel.
type History map[string]int

// At reduces the history to a single reporting date, 0 when unavailable
func (h History) At(date int) int {
	if h == nil {
		return 0
	}
	return h[strconv.Itoa(date)]
}

// Reduce projects the history onto ReportingDates
func (h History) Reduce() [HistoryLen]int {
	var out [HistoryLen]int
	for i, date := range ReportingDates {
		out[i] = h.At(date)
	}
	return out
}

// PageParser turns one listing page into aligned entries
type PageParser interface {
	Parse(content []byte) ([]ListingEntry, error)
}

// PageFetcher retrieves the raw markup of a listing page
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) ([]byte, error)
}

// HistoryFetcher retrieves the price history of one community.
// A nil History with a nil error means the upstream had no data.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, id int64) (History, error)
}

// Selectors contains CSS selectors for the selector-based parser
type Selectors struct {
	Item     string
	IDLink   string
	Name     string
	Location string
	Price    string
}

// DefaultSelectors match the community list markup of the source site
var DefaultSelectors = Selectors{
	Item:     "div.list_item, li.list_item",
	IDLink:   "a[title]",
	Name:     "a.t[id^='comm_name']",
	Location: "p",
	Price:    "span.price",
}
