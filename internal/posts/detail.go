package posts

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/trend"
)

// DetailConfig controls the topic-detail fallback scraper.
type DetailConfig struct {
	SearchURL string // printf template with one %s for the query
	UserAgent string
	Timeout   time.Duration
}

// DetailFallback scrapes a fixed top-N post list straight off the topic
// search page. Last resort: only consulted when both crawl strategies
// come back empty.
type DetailFallback struct {
	cfg    DetailConfig
	client *http.Client
	clock  trend.Clock
	logger *zap.Logger
}

// NewDetailFallback builds a DetailFallback. The clock pins yearless
// page timestamps to the current year.
func NewDetailFallback(cfg DetailConfig, clock trend.Clock, logger *zap.Logger) *DetailFallback {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailFallback{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		clock:  clock,
		logger: logger,
	}
}

// TopPosts scrapes up to limit posts for the topic.
func (f *DetailFallback) TopPosts(ctx context.Context, title string, limit int) ([]trend.PostItem, error) {
	target := fmt.Sprintf(f.cfg.SearchURL, url.QueryEscape(trend.EnsureHashtag(title)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch topic page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch topic page: http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read topic page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse topic page: %w", err)
	}
	return f.extract(doc, limit), nil
}

func (f *DetailFallback) extract(doc *goquery.Document, limit int) []trend.PostItem {
	var items []trend.PostItem
	now := f.clock.Now().In(trend.ChinaTZ)
	doc.Find("div.card-wrap[mid]").EachWithBreak(func(i int, card *goquery.Selection) bool {
		if limit > 0 && len(items) >= limit {
			return false
		}

		content := strings.TrimSpace(card.Find("p.txt").First().Text())
		if content == "" {
			return true
		}

		from := card.Find("div.from a")
		detailURL, _ := from.First().Attr("href")
		detailURL = absoluteStatusURL(strings.TrimSpace(detailURL))
		created := parseDetailTimestamp(strings.TrimSpace(from.First().Text()), now)
		source := strings.TrimSpace(from.Eq(1).Text())

		actions := card.Find("div.card-act ul li").Map(func(_ int, li *goquery.Selection) string {
			return strings.TrimSpace(li.Text())
		})
		forwards := actionCount(actions, 0)
		comments := actionCount(actions, 1)
		likes := actionCount(actions, 2)

		item := trend.PostItem{
			ID:        detailID(detailURL, i),
			URL:       detailURL,
			CreatedAt: created,
			UserName:  strings.TrimSpace(card.Find("a.name").First().Text()),
			Source:    source,
			Text:      content,
			TextRaw:   content,
			Reposts:   forwards,
			Comments:  comments,
			Likes:     likes,
			// The detail page surfaces forwards as the leading signal,
			// so the fallback weighs them the way the page ranks.
			Score: float64(forwards)*0.6 + float64(comments)*0.3 + float64(likes)*0.1,
		}
		card.Find("div.media-pic img, div.media-piclist img").Each(func(_ int, img *goquery.Selection) {
			if src, ok := img.Attr("src"); ok && src != "" {
				item.Pics = append(item.Pics, src)
			}
		})
		if video, ok := card.Find("video, div.media-video").First().Attr("src"); ok && video != "" {
			item.Video = &trend.VideoRef{Streams: map[string]string{"url": video}}
		}

		items = append(items, item)
		return true
	})
	return items
}

// detailID derives a stable identifier from the post URL; posts with no
// URL get a positional one, unique only within this fetch.
func detailID(detailURL string, index int) string {
	if detailURL == "" {
		return fmt.Sprintf("detail-%d", index)
	}
	h := fnv.New64a()
	h.Write([]byte(detailURL))
	return fmt.Sprintf("detail-%d", h.Sum64())
}

func actionCount(actions []string, index int) int64 {
	if index >= len(actions) {
		return 0
	}
	fields := strings.FieldsFunc(actions[index], func(r rune) bool {
		return r < '0' || r > '9'
	})
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var detailTimeFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01月02日 15:04",
}

func parseDetailTimestamp(raw string, now time.Time) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, format := range detailTimeFormats {
		if t, err := time.ParseInLocation(format, raw, trend.ChinaTZ); err == nil {
			if t.Year() == 0 {
				t = t.AddDate(now.Year(), 0, 0)
			}
			return &t
		}
	}
	return nil
}

func absoluteStatusURL(href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	return "https:" + href
}
