package crawler

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "sjsage522/pricecrawler/pkg/errors"

	"github.com/PuerkitoBio/goquery"
)

var trailingDigits = regexp.MustCompile(`(\d+)/?$`)

// SelectorParser extracts one entry per listing item, so the fields of a
// community can never drift apart the way independent sequences can.
type SelectorParser struct {
	Selectors Selectors
}

// NewSelectorParser creates a CSS-selector based page parser
func NewSelectorParser(selectors Selectors) *SelectorParser {
	return &SelectorParser{Selectors: selectors}
}

// Parse implements PageParser
func (p *SelectorParser) Parse(content []byte) ([]ListingEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, apperrors.NewParsing("listing page", "HTML parsing error", err)
	}

	items := doc.Find(p.Selectors.Item)
	entries := make([]ListingEntry, 0, items.Length())

	var parseErr error
	items.EachWithBreak(func(i int, s *goquery.Selection) bool {
		entry, err := p.processItem(s)
		if err != nil {
			parseErr = apperrors.NewParsing("listing page", fmt.Sprintf("item %d", i), err)
			return false
		}
		entries = append(entries, entry)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return entries, nil
}

// processItem pulls all four fields out of a single listing item
func (p *SelectorParser) processItem(s *goquery.Selection) (ListingEntry, error) {
	linkSel := s.Find(p.Selectors.IDLink).First()
	href, exists := linkSel.Attr("href")
	if !exists {
		return ListingEntry{}, fmt.Errorf("missing id link %q", p.Selectors.IDLink)
	}
	m := trailingDigits.FindStringSubmatch(strings.TrimSpace(href))
	if m == nil {
		return ListingEntry{}, fmt.Errorf("no community id in %q", href)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return ListingEntry{}, fmt.Errorf("invalid community id %q: %w", m[1], err)
	}

	nameSel := s.Find(p.Selectors.Name).First()
	if nameSel.Length() == 0 {
		return ListingEntry{}, fmt.Errorf("missing name %q", p.Selectors.Name)
	}
	name := strings.TrimSpace(nameSel.Text())

	locationSel := s.Find(p.Selectors.Location).First()
	if locationSel.Length() == 0 {
		return ListingEntry{}, fmt.Errorf("missing location %q", p.Selectors.Location)
	}
	location := cleanLocation(locationSel.Text())

	priceSel := s.Find(p.Selectors.Price).First()
	if priceSel.Length() == 0 {
		return ListingEntry{}, fmt.Errorf("missing price %q", p.Selectors.Price)
	}
	price, err := ParsePrice(leadingPrice(priceSel.Text()))
	if err != nil {
		return ListingEntry{}, err
	}

	return ListingEntry{
		ID:           id,
		Name:         name,
		Location:     location,
		CurrentPrice: price,
	}, nil
}

// cleanLocation drops the bracketed district prefix, e.g. "[浦东-张江] 碧波路100弄"
func cleanLocation(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "]"); idx >= 0 {
		text = text[idx+1:]
	}
	return strings.TrimSpace(text)
}

// leadingPrice keeps the digits (or the no-data marker) before any unit text
func leadingPrice(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, NoDataPriceMarker) {
		return NoDataPriceMarker
	}
	end := strings.IndexFunc(text, func(r rune) bool { return (r < '0' || r > '9') && r != ',' })
	if end == -1 {
		return text
	}
	return text[:end]
}
