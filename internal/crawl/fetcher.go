package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/trendline/hotarchive/internal/metrics"
	"github.com/trendline/hotarchive/internal/trend"
)

// Candidate is one post pulled off a search page before filtering.
type Candidate struct {
	Post       trend.PostItem
	MatchTexts []string
}

// SearchPage is one decoded page of search results.
type SearchPage struct {
	CardsSeen  int
	Candidates []Candidate
	HasMore    bool
}

// PageFetcher retrieves and decodes one page of search results for a term.
type PageFetcher interface {
	FetchPage(ctx context.Context, term string, page int) (SearchPage, error)
}

// FetcherConfig controls the search page fetcher.
type FetcherConfig struct {
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	RequestsPerSec float64
}

// WeiboFetcher implements PageFetcher against the mobile search API
// using a Colly collector, one cloned collector per request.
type WeiboFetcher struct {
	cfg     FetcherConfig
	base    *colly.Collector
	limiter *rate.Limiter
}

// NewWeiboFetcher builds a WeiboFetcher.
func NewWeiboFetcher(cfg FetcherConfig) *WeiboFetcher {
	metrics.Init()
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	return &WeiboFetcher{
		cfg:     cfg,
		base:    c,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// FetchPage executes a single search page request.
func (f *WeiboFetcher) FetchPage(ctx context.Context, term string, page int) (SearchPage, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return SearchPage{}, fmt.Errorf("rate limit wait: %w", err)
	}

	body, status, err := f.fetch(ctx, f.pageURL(term, page))
	if err != nil {
		metrics.ObserveCrawlPage("error")
		return SearchPage{}, err
	}
	switch {
	case status == http.StatusForbidden || status == http.StatusTeapot:
		metrics.ObserveCrawlPage("blocked")
		return SearchPage{}, fmt.Errorf("http %d: %w", status, ErrBlocked)
	case status != http.StatusOK:
		metrics.ObserveCrawlPage("error")
		return SearchPage{}, fmt.Errorf("http %d fetching page %d", status, page)
	}

	var decoded indexResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		metrics.ObserveCrawlPage("error")
		return SearchPage{}, fmt.Errorf("decode page %d: %w", page, err)
	}
	if decoded.OK != 1 {
		metrics.ObserveCrawlPage("stopped")
		return SearchPage{}, fmt.Errorf("ok=%d: %w", decoded.OK, ErrSourceStopped)
	}
	metrics.ObserveCrawlPage("ok")

	result := SearchPage{
		CardsSeen: len(decoded.Data.Cards),
		HasMore:   decoded.Data.CardlistInfo.Page != nil,
	}
	for _, card := range decoded.Data.Cards {
		if card.CardType != 9 || card.Mblog == nil {
			continue
		}
		result.Candidates = append(result.Candidates, Candidate{
			Post:       card.Mblog.normalize(),
			MatchTexts: card.Mblog.matchTexts(),
		})
	}
	return result, nil
}

func (f *WeiboFetcher) pageURL(term string, page int) string {
	values := url.Values{}
	values.Set("containerid", "231522type=60&q="+term+"&t=10")
	if page > 1 {
		values.Set("page", strconv.Itoa(page))
	}
	return f.cfg.BaseURL + "?" + values.Encode()
}

func (f *WeiboFetcher) fetch(ctx context.Context, target string) ([]byte, int, error) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Referer", "https://m.weibo.cn/")
		r.Headers.Set("X-Requested-With", "XMLHttpRequest")
		r.Headers.Set("MWeibo-Pwa", "1")
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		// A captured status still matters on error: 403 must surface
		// as blocked, not as a retryable transport failure.
		if status == http.StatusForbidden || status == http.StatusTeapot {
			return nil, status, nil
		}
		if err != nil {
			return nil, status, fmt.Errorf("visit %s: %w", target, err)
		}
		if fetchErr != nil {
			return nil, status, fmt.Errorf("response %s: %w", target, fetchErr)
		}
		return body, status, nil
	}
}
