package storage

import (
	"context"
	"strconv"

	"sjsage522/pricecrawler/internal/crawler"
)

// Sink persists the flattened records of a finished crawl in one call
type Sink interface {
	// Write stores every record or none of them
	Write(ctx context.Context, records []crawler.CommunityRecord) error

	// Close releases the sink's resources
	Close() error
}

// Columns is the column order of the communities table
var Columns = []string{
	"community_name",
	"cid",
	"location",
	"cur_price",
	"price201212",
	"price201306",
	"price201312",
	"price201406",
	"price201412",
}

// Rows converts records into column-ordered values, one row per record
func Rows(records []crawler.CommunityRecord) [][]any {
	rows := make([][]any, len(records))
	for i, r := range records {
		row := make([]any, 0, len(Columns))
		row = append(row, r.Name, r.ID, r.Location, r.CurrentPrice)
		for _, price := range r.History {
			row = append(row, price)
		}
		rows[i] = row
	}
	return rows
}

// stringRow renders a record for text outputs
func stringRow(r crawler.CommunityRecord) []string {
	row := make([]string, 0, len(Columns))
	row = append(row, r.Name, strconv.FormatInt(r.ID, 10), r.Location, strconv.Itoa(r.CurrentPrice))
	for _, price := range r.History {
		row = append(row, strconv.Itoa(price))
	}
	return row
}
