package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sjsage522/pricecrawler/helpers"
	"sjsage522/pricecrawler/logger"
	apperrors "sjsage522/pricecrawler/pkg/errors"
	"sjsage522/pricecrawler/services/cache"
)

// StatusOK is the status tag of a history payload that carries data
const StatusOK = "ok"

// historyResponse is the price trend payload: a status tag and a list of
// single-key {"201406": price} objects
type historyResponse struct {
	Status string                       `json:"status"`
	Comm   []map[string]json.RawMessage `json:"comm"`
}

// HTTPHistoryFetcher looks up a community's price trend by id
type HTTPHistoryFetcher struct {
	URL      string
	Client   *http.Client
	CacheSvc cache.CacheService
	CacheTTL time.Duration
}

// NewHTTPHistoryFetcher creates a history fetcher; cacheSvc may be nil
func NewHTTPHistoryFetcher(endpoint string, client *http.Client, cacheSvc cache.CacheService, cacheTTL time.Duration) *HTTPHistoryFetcher {
	return &HTTPHistoryFetcher{
		URL:      endpoint,
		Client:   client,
		CacheSvc: cacheSvc,
		CacheTTL: cacheTTL,
	}
}

// FetchHistory implements HistoryFetcher.
// A non-"ok" status yields (nil, nil); timeouts come back as retryable errors.
func (f *HTTPHistoryFetcher) FetchHistory(ctx context.Context, id int64) (History, error) {
	cacheKey := "history:" + strconv.FormatInt(id, 10)

	if f.CacheSvc != nil {
		if payload, err := f.CacheSvc.Get(cacheKey); err == nil {
			if history, status, err := DecodeHistory(payload); err == nil && status == StatusOK {
				return history, nil
			}
		}
	}

	payload, err := helpers.FetchSimply(ctx, f.Client, f.historyURL(id))
	if err != nil {
		return nil, err
	}

	history, status, err := DecodeHistory(payload)
	if err != nil {
		return nil, apperrors.NewParsing(fmt.Sprintf("history %d", id), "invalid history payload", err)
	}
	if status != StatusOK {
		logger.Debug("history %d: %v", id, apperrors.NewUpstreamStatus(fmt.Sprintf("history %d", id), status))
		return nil, nil
	}

	if f.CacheSvc != nil {
		if err := f.CacheSvc.Set(cacheKey, payload, f.CacheTTL); err != nil {
			logger.ForCache().Debug().Err(apperrors.NewCache("memcache", "failed to cache history payload", err)).Int64("cid", id).Send()
		}
	}

	return history, nil
}

func (f *HTTPHistoryFetcher) historyURL(id int64) string {
	params := url.Values{}
	params.Set("cid", strconv.FormatInt(id, 10))

	sep := "?"
	if strings.Contains(f.URL, "?") {
		sep = "&"
	}
	return f.URL + sep + params.Encode()
}

// DecodeHistory parses a history payload. The History is only meaningful when status is "ok".
// An unusable value only zeroes its own date.
func DecodeHistory(payload []byte) (History, string, error) {
	var resp historyResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, "", err
	}
	if resp.Status != StatusOK {
		return nil, resp.Status, nil
	}

	history := make(History, len(resp.Comm))
	for _, point := range resp.Comm {
		for date, raw := range point {
			price, err := decodeHistoryPrice(raw)
			if err != nil {
				logger.Warn("history date %s: %v, storing 0", date, err)
			}
			history[date] = price
		}
	}
	return history, resp.Status, nil
}

// decodeHistoryPrice accepts numbers, numeric strings, null and the no-data marker.
// Anything else comes back as 0 with an error.
func decodeHistoryPrice(raw json.RawMessage) (int, error) {
	text := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(raw)), `"`))
	if text == "" || text == "null" || text == NoDataPriceMarker {
		return 0, nil
	}
	if price, err := strconv.Atoi(text); err == nil {
		return max(price, 0), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 {
		return 0, fmt.Errorf("invalid price %q", text)
	}
	return max(int(math.Round(f)), 0), nil
}
