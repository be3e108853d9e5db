package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"sjsage522/pricecrawler/config"
	"sjsage522/pricecrawler/internal"
	apperrors "sjsage522/pricecrawler/pkg/errors"
	"sjsage522/pricecrawler/services/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// community is one listing row served by the fake site
type community struct {
	id       int64
	name     string
	address  string
	price    string
	history  string
	timeouts int
}

// fakeSite serves listing pages and price trends the way the real site does
type fakeSite struct {
	mu           sync.Mutex
	pages        map[int][]community
	byID         map[int64]*community
	pageTimeouts map[int]int
	pageHits     map[int]int
	hold         time.Duration
}

func newFakeSite(pages map[int][]community) *fakeSite {
	site := &fakeSite{
		pages:        pages,
		byID:         make(map[int64]*community),
		pageTimeouts: make(map[int]int),
		pageHits:     make(map[int]int),
		hold:         200 * time.Millisecond,
	}
	for _, items := range pages {
		for i := range items {
			site.byID[items[i].id] = &items[i]
		}
	}
	return site
}

func (s *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/community/W0QQpZ"):
		page, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/community/W0QQpZ"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		s.mu.Lock()
		s.pageHits[page]++
		stall := s.pageTimeouts[page] > 0
		if stall {
			s.pageTimeouts[page]--
		}
		items := s.pages[page]
		s.mu.Unlock()

		if stall {
			s.stall(r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(renderListing(items)))

	case r.URL.Path == "/ajax/pricetrend/comm":
		id, _ := strconv.ParseInt(r.URL.Query().Get("cid"), 10, 64)
		s.mu.Lock()
		c := s.byID[id]
		stall := c != nil && c.timeouts > 0
		if stall {
			c.timeouts--
		}
		s.mu.Unlock()

		if stall {
			s.stall(r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if c == nil || c.history == "" {
			w.Write([]byte(`{"status":"error"}`))
			return
		}
		fmt.Fprintf(w, `{"status":"ok","comm":[%s]}`, c.history)

	default:
		http.NotFound(w, r)
	}
}

func (s *fakeSite) stall(r *http.Request) {
	select {
	case <-time.After(s.hold):
	case <-r.Context().Done():
	}
}

func renderListing(items []community) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"list\">\n")
	for _, c := range items {
		price := c.price
		if price != "-" {
			price = `<span class="sp1">` + price + `</span>元/平米`
		}
		fmt.Fprintf(&b, `<div class="list_item">
  <a href="/community/view/%d" title="%s"><img src="/i.jpg"/></a>
  <a class="t" id="comm_name_%d" href="/community/view/%d">%s</a>
  <p>[上海] %s</p>
  <span class="price">%s</span>
</div>
`, c.id, c.name, c.id, c.id, c.name, c.address, price)
	}
	b.WriteString("</div></body></html>")
	return b.String()
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

func testConfig(serverURL, csvPath string) *config.Config {
	return &config.Config{
		MaxPage:             3,
		Workers:             2,
		HistoryConcurrency:  2,
		PageURLTemplate:     serverURL + "/community/W0QQpZ%d",
		HistoryURL:          serverURL + "/ajax/pricetrend/comm",
		RequestTimeout:      100 * time.Millisecond,
		PageRetryBackoff:    time.Millisecond,
		HistoryRetryBackoff: time.Millisecond,
		Parser:              config.ParserPattern,
		ParseFailurePolicy:  config.ParseFailureSkip,
		Sink:                config.SinkCSV,
		CSVPath:             csvPath,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCrawlEndToEnd(t *testing.T) {
	site := newFakeSite(map[int][]community{
		1: {
			{id: 101, name: "A", address: "碧波路100弄", price: "500", history: `{"201212":"450"},{"201306":"470"}`},
			{id: 102, name: "B", address: "田林路200号", price: "-"},
		},
		2: {},
		3: {
			{id: 301, name: "C", address: "长寿路300弄", price: "700", history: `{"201406":680}`, timeouts: 1},
			{id: 302, name: "D", address: "沪闵路1号", price: "820", history: `{"201412":800}`, timeouts: 5},
		},
	})
	site.pageTimeouts[1] = 1
	server := httptest.NewServer(site)
	defer server.Close()

	for _, parser := range []string{config.ParserPattern, config.ParserSelector} {
		t.Run(parser, func(t *testing.T) {
			csvPath := filepath.Join(t.TempDir(), "communities.csv")
			cfg := testConfig(server.URL, csvPath)
			cfg.Parser = parser

			deps := &internal.Dependencies{Sink: storage.NewCSVSink(csvPath)}
			defer deps.Cleanup()

			result, err := buildCrawlJob(cfg, deps, &mockReporter{}).Crawl(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 4, result.Records)

			rows := readCSV(t, csvPath)
			require.Len(t, rows, 5)
			assert.Equal(t, storage.Columns, rows[0])
			assert.Equal(t, []string{"A", "101", "碧波路100弄", "500", "450", "470", "0", "0", "0"}, rows[1])
			assert.Equal(t, []string{"B", "102", "田林路200号", "0", "0", "0", "0", "0", "0"}, rows[2])
			// One history timeout is retried
			assert.Equal(t, []string{"C", "301", "长寿路300弄", "700", "0", "0", "0", "680", "0"}, rows[3])
			// Exhausted history retries degrade to zeros
			assert.Equal(t, []string{"D", "302", "沪闵路1号", "820", "0", "0", "0", "0", "0"}, rows[4])
		})
	}
}

func TestCrawlPageTimeoutWritesNothing(t *testing.T) {
	site := newFakeSite(map[int][]community{
		1: {{id: 101, name: "A", address: "碧波路100弄", price: "500"}},
		2: {{id: 201, name: "B", address: "田林路200号", price: "600"}},
		3: {{id: 301, name: "C", address: "长寿路300弄", price: "700"}},
	})
	site.pageTimeouts[2] = 2
	server := httptest.NewServer(site)
	defer server.Close()

	csvPath := filepath.Join(t.TempDir(), "communities.csv")
	cfg := testConfig(server.URL, csvPath)
	reporter := &mockReporter{}
	deps := &internal.Dependencies{Sink: storage.NewCSVSink(csvPath)}

	_, err := buildCrawlJob(cfg, deps, reporter).Crawl(context.Background())
	assert.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))

	_, statErr := os.Stat(csvPath)
	assert.True(t, os.IsNotExist(statErr), "no output may be written after a fatal page error")

	site.mu.Lock()
	assert.Equal(t, 2, site.pageHits[2])
	site.mu.Unlock()

	require.NotEmpty(t, reporter.errors)
	assert.Contains(t, reporter.errors[0], "page 2")
}

func TestCrawlMisalignedPageSkipped(t *testing.T) {
	site := newFakeSite(map[int][]community{
		1: {{id: 101, name: "A", address: "碧波路100弄", price: "500"}},
	})
	// Page 2 renders a name without a price
	mux := http.NewServeMux()
	mux.Handle("/", site)
	mux.HandleFunc("/community/W0QQpZ2", func(w http.ResponseWriter, r *http.Request) {
		broken := strings.Replace(renderListing([]community{{id: 201, name: "B", address: "x", price: "1"}}), `<span class="price">`, `<span class="gone">`, 1)
		w.Write([]byte(broken))
	})
	brokenServer := httptest.NewServer(mux)
	defer brokenServer.Close()

	csvPath := filepath.Join(t.TempDir(), "communities.csv")
	cfg := testConfig(brokenServer.URL, csvPath)
	cfg.MaxPage = 2
	reporter := &mockReporter{}
	deps := &internal.Dependencies{Sink: storage.NewCSVSink(csvPath)}

	result, err := buildCrawlJob(cfg, deps, reporter).Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Records)

	rows := readCSV(t, csvPath)
	require.Len(t, rows, 2)
	assert.Equal(t, "101", rows[1][1])

	require.Len(t, reporter.errors, 1)
	assert.Contains(t, reporter.errors[0], "page 2")

	t.Run("abort policy fails the run", func(t *testing.T) {
		abortPath := filepath.Join(t.TempDir(), "communities.csv")
		cfg := testConfig(brokenServer.URL, abortPath)
		cfg.MaxPage = 2
		cfg.ParseFailurePolicy = config.ParseFailureAbort
		deps := &internal.Dependencies{Sink: storage.NewCSVSink(abortPath)}

		_, err := buildCrawlJob(cfg, deps, &mockReporter{}).Crawl(context.Background())
		assert.True(t, apperrors.IsParsing(err))
		_, statErr := os.Stat(abortPath)
		assert.True(t, os.IsNotExist(statErr))
	})
}
