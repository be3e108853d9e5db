package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "sjsage522/pricecrawler/pkg/errors"
	"sjsage522/pricecrawler/services/cache"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
}

var _ cache.CacheService = (*MockCacheService)(nil)

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, cache.ErrMiss
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

// fixtureItem describes one community rendered into a listing page
type fixtureItem struct {
	ID       int64
	Name     string
	District string
	Address  string
	Price    string
}

// listingHTML renders a listing page in the source site's markup
func listingHTML(items ...fixtureItem) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><title>小区列表</title></head>\n<body>\n<div class=\"list\">\n")
	for _, item := range items {
		price := item.Price
		if price != NoDataPriceMarker {
			price = fmt.Sprintf(`<span class="sp1">%s</span>元/平米`, item.Price)
		}
		fmt.Fprintf(&b, `    <div class="list_item">
        <a href="http://example.com/community/view/%d" title="%s">
            <img src="/img/%d.jpg" />
        </a>
        <div class="details">
            <a class="t" id="comm_name_%d" href="http://example.com/community/view/%d">%s</a>
            <p>[%s] %s</p>
        </div>
        <span class="price">%s</span>
    </div>
`, item.ID, item.Name, item.ID, item.ID, item.ID, item.Name, item.District, item.Address, price)
	}
	b.WriteString("</div>\n</body>\n</html>\n")
	return b.String()
}

// scenarioItems is the listing of page 7 used across tests
var scenarioItems = []fixtureItem{
	{ID: 101, Name: "A", District: "浦东-张江", Address: "碧波路100弄", Price: "500"},
	{ID: 102, Name: "B", District: "徐汇-田林", Address: "田林路200号", Price: NoDataPriceMarker},
	{ID: 103, Name: "C", District: "静安-曹家渡", Address: "长寿路300弄", Price: "700"},
}

// fakePageFetcher serves pages from memory and can time out a given number of times per page
type fakePageFetcher struct {
	mu       sync.Mutex
	pages    map[int]string
	timeouts map[int]int
	failures map[int]error
	calls    map[int]int
}

func newFakePageFetcher(pages map[int]string) *fakePageFetcher {
	return &fakePageFetcher{
		pages:    pages,
		timeouts: make(map[int]int),
		failures: make(map[int]error),
		calls:    make(map[int]int),
	}
}

func (f *fakePageFetcher) FetchPage(ctx context.Context, page int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[page]++
	if err, ok := f.failures[page]; ok {
		return nil, err
	}
	if f.timeouts[page] > 0 {
		f.timeouts[page]--
		return nil, apperrors.NewTimeout(fmt.Sprintf("page %d", page), "request timed out", context.DeadlineExceeded)
	}
	content, ok := f.pages[page]
	if !ok {
		return nil, apperrors.NewNetwork(fmt.Sprintf("page %d", page), "unexpected status code: 404", nil)
	}
	return []byte(content), nil
}

func (f *fakePageFetcher) callCount(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[page]
}

// fakeHistoryFetcher returns canned histories, optional delays and timeouts
type fakeHistoryFetcher struct {
	mu        sync.Mutex
	histories map[int64]History
	delays    map[int64]time.Duration
	timeouts  map[int64]int
	calls     map[int64]int
}

func newFakeHistoryFetcher(histories map[int64]History) *fakeHistoryFetcher {
	return &fakeHistoryFetcher{
		histories: histories,
		delays:    make(map[int64]time.Duration),
		timeouts:  make(map[int64]int),
		calls:     make(map[int64]int),
	}
}

func (f *fakeHistoryFetcher) FetchHistory(ctx context.Context, id int64) (History, error) {
	f.mu.Lock()
	f.calls[id]++
	delay := f.delays[id]
	timedOut := f.timeouts[id] > 0
	if timedOut {
		f.timeouts[id]--
	}
	history := f.histories[id]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if timedOut {
		return nil, apperrors.NewTimeout(fmt.Sprintf("history %d", id), "request timed out", context.DeadlineExceeded)
	}
	return history, nil
}

func (f *fakeHistoryFetcher) callCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// mockReporter implements helpers.LoggerInterface for testing
type mockReporter struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockReporter) LogError(component string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, component+": "+err.Error())
}

func (m *mockReporter) LogInfo(format string, args ...interface{}) {}
