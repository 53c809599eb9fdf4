package crawl

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/trendline/hotarchive/internal/trend"
)

// CleanHTML flattens the rich-text body of a post into plain text:
// emoji icon spans are dropped, links collapse to their text, and line
// breaks survive as newlines.
func CleanHTML(raw string) string {
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	doc.Find("span.url-icon").Remove()
	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml(s.Text())
	})
	return strings.TrimSpace(doc.Text())
}

var createdAtFormats = []string{
	"Mon Jan 02 15:04:05 -0700 2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseCreatedAt parses the timestamp formats the search endpoint emits.
// Naive timestamps are assumed to be in the snapshot zone.
func ParseCreatedAt(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, format := range createdAtFormats {
		// ParseInLocation leaves explicit offsets alone and pins naive
		// timestamps to the snapshot zone.
		if t, err := time.ParseInLocation(format, raw, trend.ChinaTZ); err == nil {
			return &t
		}
	}
	return nil
}
