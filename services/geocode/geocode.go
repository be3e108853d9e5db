package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"sjsage522/pricecrawler/helpers"
	"sjsage522/pricecrawler/logger"
	apperrors "sjsage522/pricecrawler/pkg/errors"

	"github.com/mmcloughlin/geohash"
)

// geocoderReferer is the Referer the geocoding API expects
const geocoderReferer = "http://developer.baidu.com"

// Location is a geocoded point; the zero value means "not found"
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Found reports whether the lookup produced a point
func (l Location) Found() bool {
	return l.Lat != 0 || l.Lng != 0
}

// Geohash encodes the point at full precision
func (l Location) Geohash() string {
	return geohash.Encode(l.Lat, l.Lng)
}

type geocodeResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Result struct {
		Location Location `json:"location"`
	} `json:"result"`
}

// Client resolves addresses to coordinates
type Client struct {
	URL  string
	AK   string
	HTTP *http.Client

	// Attempts bounds retries of timed out lookups
	Attempts int
	Backoff  time.Duration
}

// NewClient creates a geocoding client
func NewClient(endpoint, ak string, timeout time.Duration) *Client {
	return &Client{
		URL:      endpoint,
		AK:       ak,
		HTTP:     helpers.NewHTTPClient(timeout),
		Attempts: 2,
		Backoff:  time.Second,
	}
}

// Geocode looks up an address, optionally scoped to a city. A non-zero API
// status yields the zero Location and no error.
func (c *Client) Geocode(ctx context.Context, address, city string) (Location, error) {
	if address == "" {
		return Location{}, apperrors.NewValidation("geocoder", "address is required")
	}

	var body []byte
	err := helpers.Retry(ctx, c.Attempts, c.Backoff, func(ctx context.Context) error {
		var fetchErr error
		body, fetchErr = c.fetch(ctx, address, city)
		return fetchErr
	})
	if err != nil {
		return Location{}, err
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Location{}, apperrors.NewParsing("geocoder", "invalid response", err)
	}
	if resp.Status != 0 {
		logger.Warn("geocoding %q failed: %v", address,
			apperrors.NewUpstreamStatus("geocoder", fmt.Sprintf("%d %s", resp.Status, resp.Msg)))
		return Location{}, nil
	}

	return resp.Result.Location, nil
}

func (c *Client) fetch(ctx context.Context, address, city string) ([]byte, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("output", "json")
	params.Set("ak", c.AK)
	if city != "" {
		params.Set("city", city)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Referer", geocoderReferer)

	return helpers.Do(c.HTTP, req)
}
