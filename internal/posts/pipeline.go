// Package posts implements the per-topic post refresh: a three-strategy
// cascade (hashtag crawl, keyword crawl, topic-detail scrape) whose
// result, even when empty, is persisted and folded back into the topic
// record.
package posts

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/archive"
	"github.com/trendline/hotarchive/internal/crawl"
	"github.com/trendline/hotarchive/internal/trend"
)

// Crawler runs one ranked search crawl.
type Crawler interface {
	Crawl(ctx context.Context, params crawl.Params) (trend.PostFetchResult, error)
}

// DetailSource scrapes a topic's page for its pinned top posts.
type DetailSource interface {
	TopPosts(ctx context.Context, title string, limit int) ([]trend.PostItem, error)
}

// Config fixes the crawl shape shared by all refreshes.
type Config struct {
	TopN     int
	MaxPages int
	MinScore float64
}

// Summary accounts for one batch refresh over a day's archive.
type Summary struct {
	Refreshed []string
	Skipped   []string
	Failed    []string
}

// Pipeline refreshes topic post samples against the live search.
type Pipeline struct {
	crawler Crawler
	detail  DetailSource
	store   *archive.Store
	clock   trend.Clock
	cfg     Config
	logger  *zap.Logger
}

// NewPipeline builds a Pipeline. detail may be nil to disable the
// last-resort scrape.
func NewPipeline(crawler Crawler, detail DetailSource, store *archive.Store, clock trend.Clock, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		crawler: crawler,
		detail:  detail,
		store:   store,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Refresh fetches a fresh post sample for one topic and folds the
// outcome into the record. Strategies run in order and the first one
// with items wins; an all-empty cascade still persists its (empty)
// result so the day's cache reflects the attempt. Only context
// cancellation and persistence failures are returned as errors.
func (p *Pipeline) Refresh(ctx context.Context, record *trend.TopicRecord, date string) error {
	if record.Slug == "" {
		record.Slug = trend.Slugify(record.Title)
	}

	result := p.fetch(ctx, record)
	if err := ctx.Err(); err != nil {
		return err
	}

	result.Topic = trend.EnsureHashtag(record.Title)
	if err := p.store.SavePostCache(date, record.Slug, &result); err != nil {
		return err
	}

	record.KnownIDs = result.ItemIDs()
	if record.KnownIDs == nil {
		record.KnownIDs = []string{}
	}
	record.LastPostRefresh = date
	record.LastPostTotal = result.Total
	record.LatestPosts = &result
	// An empty sample keeps the topic eligible: the next cycle tries again.
	record.NeedsRefresh = result.IsEmpty()

	p.logger.Info("topic posts refreshed",
		zap.String("title", record.Title),
		zap.Int("items", len(result.Items)),
		zap.Int("total", result.Total),
		zap.String("empty_reason", result.EmptyReason))
	return nil
}

// fetch runs the strategy cascade. Crawl-level failures degrade to an
// empty result; the first strategy's diagnostics are kept when every
// strategy comes back empty.
func (p *Pipeline) fetch(ctx context.Context, record *trend.TopicRecord) trend.PostFetchResult {
	var first *trend.PostFetchResult
	terms := []string{trend.EnsureHashtag(record.Title), record.Title}
	for _, term := range terms {
		result, err := p.crawler.Crawl(ctx, crawl.Params{
			Term:     term,
			TopN:     p.cfg.TopN,
			MaxPages: p.cfg.MaxPages,
			MinScore: p.cfg.MinScore,
			SkipIDs:  record.KnownIDs,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Warn("crawl strategy failed",
				zap.String("term", term),
				zap.Error(err))
			continue
		}
		if !result.IsEmpty() {
			return result
		}
		if first == nil {
			first = &result
		}
	}

	if p.detail != nil && ctx.Err() == nil {
		if items, err := p.detail.TopPosts(ctx, record.Title, p.cfg.TopN); err != nil {
			p.logger.Warn("topic detail fallback failed",
				zap.String("title", record.Title),
				zap.Error(err))
		} else if len(items) > 0 {
			return trend.PostFetchResult{
				FetchedAt: p.clock.Now().In(trend.ChinaTZ),
				Total:     len(items),
				TopN:      p.cfg.TopN,
				Items:     items,
			}
		}
	}

	if first != nil {
		return *first
	}
	return trend.PostFetchResult{
		FetchedAt:   p.clock.Now().In(trend.ChinaTZ),
		TopN:        p.cfg.TopN,
		Items:       []trend.PostItem{},
		EmptyReason: "fetch_failed",
	}
}

// RefreshDate refreshes every topic in the day's archive that is marked
// stale, in title order, persisting the archive once at the end. A
// missing archive surfaces as archive.ErrNoArchive. maxTopics caps how
// many refreshes one batch performs; the rest are counted as skipped.
func (p *Pipeline) RefreshDate(ctx context.Context, date string, maxTopics int) (Summary, error) {
	day, err := p.store.LoadArchive(date)
	if err != nil {
		return Summary{}, err
	}

	titles := make([]string, 0, len(day))
	for title := range day {
		titles = append(titles, title)
	}
	sort.Strings(titles)

	var summary Summary
	for _, title := range titles {
		record := day[title]
		if !record.NeedsRefresh {
			summary.Skipped = append(summary.Skipped, title)
			continue
		}
		if maxTopics > 0 && len(summary.Refreshed) >= maxTopics {
			summary.Skipped = append(summary.Skipped, title)
			continue
		}
		if err := p.Refresh(ctx, record, date); err != nil {
			if ctx.Err() != nil {
				// Persist what we have before bailing out.
				if saveErr := p.store.SaveArchive(date, day); saveErr != nil {
					p.logger.Error("archive save failed during shutdown", zap.Error(saveErr))
				}
				return summary, err
			}
			summary.Failed = append(summary.Failed, title)
			p.logger.Warn("topic refresh failed",
				zap.String("title", title),
				zap.Error(err))
			continue
		}
		summary.Refreshed = append(summary.Refreshed, title)
	}

	if err := p.store.SaveArchive(date, day); err != nil {
		return summary, fmt.Errorf("persist refreshed archive: %w", err)
	}
	p.logger.Info("post refresh batch done",
		zap.String("date", date),
		zap.Int("refreshed", len(summary.Refreshed)),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("failed", len(summary.Failed)))
	return summary, nil
}
