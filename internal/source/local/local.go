// Package local implements the degraded fallback snapshot source: a
// best-effort scrape of the live ranking, used when the published
// hourly snapshot is stale or missing. It tries the side API first and
// falls back to parsing the ranking page HTML.
package local

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/trend"
)

const defaultCategory = "综合"

// Config controls the live-ranking scraper.
type Config struct {
	APIURL        string
	SummaryURL    string
	DetailURL     string // printf template with one %s for the query
	UserAgent     string
	Timeout       time.Duration
	EnrichDetails bool
}

// Source scrapes the live ranking.
type Source struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Source.
func New(cfg Config, logger *zap.Logger) *Source {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// FetchLatest returns the current ranking, capped at limit. An empty
// result without error is legitimate: the live endpoints rate-limit
// aggressively.
func (s *Source) FetchLatest(ctx context.Context, limit int) ([]trend.SnapshotEntry, error) {
	if limit < 0 {
		limit = 0
	}

	entries, err := s.fetchFromAPI(ctx)
	if err != nil {
		s.logger.Warn("hot search API failed, falling back to HTML parse", zap.Error(err))
	}
	if len(entries) == 0 {
		entries, err = s.fetchFromHTML(ctx)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			s.logger.Warn("live ranking produced no topics from API or HTML fallback")
			return nil, nil
		}
	}

	entries = takeUnique(entries, limit)
	if s.cfg.EnrichDetails {
		s.enrich(ctx, entries)
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

type apiPayload struct {
	Data struct {
		Realtime []apiTopic `json:"realtime"`
	} `json:"data"`
}

type apiTopic struct {
	Word       string `json:"word"`
	WordScheme string `json:"word_scheme"`
	LabelName  string `json:"label_name"`
	IconDesc   string `json:"icon_desc"`
	Note       string `json:"note"`
	Num        int64  `json:"num"`
	Flag       int    `json:"flag"`
}

func (s *Source) fetchFromAPI(ctx context.Context) ([]trend.SnapshotEntry, error) {
	body, err := s.get(ctx, s.cfg.APIURL, "")
	if err != nil {
		return nil, err
	}
	var payload apiPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode hot search payload: %w", err)
	}

	entries := make([]trend.SnapshotEntry, 0, len(payload.Data.Realtime))
	for _, item := range payload.Data.Realtime {
		title := strings.TrimSpace(item.Word)
		if title == "" {
			continue
		}
		category := item.LabelName
		if category == "" {
			category = item.IconDesc
		}
		if category == "" {
			category = defaultCategory
		}
		entry := trend.SnapshotEntry{
			Title:    title,
			Category: category,
			Heat:     item.Num,
			URL:      s.searchURL(firstNonEmpty(item.WordScheme, title)),
			Ad:       item.IconDesc == "荐" || item.Flag == 7,
		}
		if item.Note != "" && item.Note != title {
			entry.Description = item.Note
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Source) fetchFromHTML(ctx context.Context) ([]trend.SnapshotEntry, error) {
	body, err := s.get(ctx, s.cfg.SummaryURL, "")
	if err != nil {
		return nil, fmt.Errorf("fetch ranking page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse ranking page: %w", err)
	}

	var entries []trend.SnapshotEntry
	doc.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		link := row.Find("td.td-02 a").FilterFunction(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			return !strings.Contains(href, "javascript:void(0);")
		}).First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		href = strings.TrimSpace(href)
		if title == "" || href == "" {
			return
		}

		heat, category := splitHeatAndCategory(strings.TrimSpace(row.Find("td.td-02 span").Text()))
		entries = append(entries, trend.SnapshotEntry{
			Title:       title,
			URL:         s.absoluteURL(href),
			Heat:        heat,
			Category:    category,
			Description: strings.TrimSpace(row.Find("td.td-03").Text()),
		})
	})
	return entries, nil
}

// enrich fills read/discuss statistics from the topic detail page.
// Failures are per-topic and non-fatal.
func (s *Source) enrich(ctx context.Context, entries []trend.SnapshotEntry) {
	for i := range entries {
		detail, err := s.fetchDetail(ctx, entries[i].Title)
		if err != nil {
			s.logger.Debug("topic detail fetch failed",
				zap.String("title", entries[i].Title),
				zap.Error(err))
			continue
		}
		if detail.category != "" {
			entries[i].Category = detail.category
		}
		if detail.description != "" {
			entries[i].Description = detail.description
		}
		entries[i].ReadCount = detail.readCount
		entries[i].DiscussCount = detail.discussCount
		entries[i].Origin = detail.origin
	}
}

type topicDetail struct {
	category     string
	description  string
	readCount    int64
	discussCount int64
	origin       int64
}

func (s *Source) fetchDetail(ctx context.Context, title string) (topicDetail, error) {
	target := fmt.Sprintf(s.cfg.DetailURL, url.QueryEscape(title))
	body, err := s.get(ctx, target, "https://m.s.weibo.com/")
	if err != nil {
		return topicDetail{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return topicDetail{}, fmt.Errorf("parse detail page: %w", err)
	}

	detail := topicDetail{
		category:    strings.TrimSpace(doc.Find("#pl_topicband dl > dd").First().Text()),
		description: strings.TrimSpace(doc.Find("#pl_topicband dl:nth-of-type(2) dd:not(.host-row)").First().Text()),
	}
	stats := doc.Find("div.g-list-a.data ul li strong").Map(func(_ int, node *goquery.Selection) string {
		return strings.TrimSpace(node.Text())
	})
	if len(stats) > 0 {
		detail.readCount = parseCount(stats[0])
	}
	if len(stats) > 1 {
		detail.discussCount = parseCount(stats[1])
	}
	if len(stats) > 2 {
		detail.origin = parseCount(stats[2])
	}
	return detail, nil
}

func (s *Source) get(ctx context.Context, target, referer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: http %d", target, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *Source) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	base := strings.TrimSuffix(s.cfg.SummaryURL, "/top/summary")
	return base + href
}

func (s *Source) searchURL(keyword string) string {
	if strings.HasPrefix(keyword, "http") {
		return keyword
	}
	base := strings.TrimSuffix(s.cfg.SummaryURL, "/top/summary")
	return base + "/weibo?q=" + url.QueryEscape(keyword)
}

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// splitHeatAndCategory pulls the numeric heat off mixed "category 12345"
// text, defaulting the category when only a number is present.
func splitHeatAndCategory(text string) (int64, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, defaultCategory
	}
	match := trailingDigits.FindStringIndex(text)
	if match == nil {
		return 0, text
	}
	heat, _ := strconv.ParseInt(text[match[0]:match[1]], 10, 64)
	category := strings.TrimSpace(text[:match[0]])
	if category == "" {
		category = defaultCategory
	}
	return heat, category
}

var digits = regexp.MustCompile(`\d+`)

// parseCount handles bare numbers plus the 万 (1e4) and 亿 (1e8) suffixes.
func parseCount(val string) int64 {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0
	}
	if strings.Contains(val, "万") {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(val, "万", ""), 64); err == nil {
			return int64(f * 10_000)
		}
		return 0
	}
	if strings.Contains(val, "亿") {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(val, "亿", ""), 64); err == nil {
			return int64(f * 100_000_000)
		}
		return 0
	}
	if match := digits.FindString(val); match != "" {
		if n, err := strconv.ParseInt(match, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func takeUnique(entries []trend.SnapshotEntry, limit int) []trend.SnapshotEntry {
	seen := make(map[string]struct{}, len(entries))
	unique := entries[:0]
	for _, entry := range entries {
		title := strings.TrimSpace(entry.Title)
		if title == "" {
			continue
		}
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}
		entry.Title = title
		unique = append(unique, entry)
		if limit > 0 && len(unique) >= limit {
			break
		}
	}
	return unique
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
