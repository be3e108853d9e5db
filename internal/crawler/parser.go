package crawler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sjsage522/pricecrawler/helpers"
	apperrors "sjsage522/pricecrawler/pkg/errors"
)

// NoDataPriceMarker is what the listing shows when a community has no price
const NoDataPriceMarker = "-"

// Patterns for the community list. ID, name and price patterns are matched
// against whitespace-stripped markup; location keeps its inner spacing.
var (
	idPattern       = regexp.MustCompile(`"list_item"><ahref=".*?(\d+)"title`)
	namePattern     = regexp.MustCompile(`<aclass="t"id="comm_name.*?>(.*?)<`)
	pricePattern    = regexp.MustCompile(`<spanclass="price">(?:<spanclass="sp1">)?(\d+|-).*?<`)
	locationPattern = regexp.MustCompile(`<p>.*?](.*?)</p>`)
)

// PatternParser extracts the four field sequences independently and zips them by position
type PatternParser struct{}

// NewPatternParser creates a pattern-based page parser
func NewPatternParser() *PatternParser {
	return &PatternParser{}
}

// Parse implements PageParser
func (p *PatternParser) Parse(content []byte) ([]ListingEntry, error) {
	batch, err := p.Extract(content)
	if err != nil {
		return nil, err
	}
	return batch.Entries()
}

// Extract returns the raw field sequences without checking their alignment
func (p *PatternParser) Extract(content []byte) (RawFieldBatch, error) {
	raw := string(content)
	stripped := helpers.StripWhitespace(raw)

	var batch RawFieldBatch

	for _, m := range idPattern.FindAllStringSubmatch(stripped, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return RawFieldBatch{}, apperrors.NewParsing("listing page", fmt.Sprintf("invalid community id %q", m[1]), err)
		}
		batch.IDs = append(batch.IDs, id)
	}

	for _, m := range namePattern.FindAllStringSubmatch(stripped, -1) {
		batch.Names = append(batch.Names, m[1])
	}

	for _, m := range locationPattern.FindAllStringSubmatch(raw, -1) {
		batch.Locations = append(batch.Locations, strings.TrimSpace(m[1]))
	}

	for _, m := range pricePattern.FindAllStringSubmatch(stripped, -1) {
		price, err := ParsePrice(m[1])
		if err != nil {
			return RawFieldBatch{}, err
		}
		batch.Prices = append(batch.Prices, price)
	}

	return batch, nil
}

// ParsePrice normalizes the no-data marker to 0 and parses anything else as an integer
func ParsePrice(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == NoDataPriceMarker || s == "" {
		return 0, nil
	}
	price, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil || price < 0 {
		return 0, apperrors.NewParsing("listing page", fmt.Sprintf("invalid price %q", s), err)
	}
	return price, nil
}
