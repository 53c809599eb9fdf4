// Package crawl implements the ranked post search engine: pagination,
// retry/backoff, dedup, relevance filtering, and scoring.
package crawl

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/trend"
)

// Params captures one crawl request.
type Params struct {
	Term     string
	TopN     int
	MaxPages int
	MinScore float64
	Since    *time.Time
	SkipIDs  []string
}

// EngineConfig fixes the scoring weights and pacing for the engine.
// The weights are a policy choice but must stay constant within a
// deployment or scores are not comparable across runs.
type EngineConfig struct {
	LikeWeight    float64
	CommentWeight float64
	RepostWeight  float64
	PageDelayMin  time.Duration
	PageDelayMax  time.Duration
}

// Engine orchestrates paged search crawls.
type Engine struct {
	fetcher PageFetcher
	policy  RetryPolicy
	clock   trend.Clock
	cfg     EngineConfig
	logger  *zap.Logger
}

// NewEngine builds an Engine. A zero weight config falls back to the
// documented 0.6/0.3/0.1 split.
func NewEngine(fetcher PageFetcher, policy RetryPolicy, clock trend.Clock, cfg EngineConfig, logger *zap.Logger) *Engine {
	if cfg.LikeWeight == 0 && cfg.CommentWeight == 0 && cfg.RepostWeight == 0 {
		cfg.LikeWeight, cfg.CommentWeight, cfg.RepostWeight = 0.6, 0.3, 0.1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		fetcher: fetcher,
		policy:  policy,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Crawl runs a paged search for the term and returns the ranked, capped
// result. The result always carries diagnostic counters; when empty, the
// EmptyReason distinguishes "nothing exists" from "everything filtered"
// from "fetch failed". The only returned error is context cancellation.
func (e *Engine) Crawl(ctx context.Context, params Params) (trend.PostFetchResult, error) {
	skip := make(map[string]struct{}, len(params.SkipIDs))
	for _, id := range params.SkipIDs {
		skip[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(skip))
	for id := range skip {
		seen[id] = struct{}{}
	}

	var (
		stats      trend.CrawlStats
		rejections trend.CrawlRejections
		errTexts   []string
		collected  []trend.PostItem
	)

	for page := 1; page <= params.MaxPages; page++ {
		stats.PagesRequested++
		if page > 1 {
			if err := sleep(ctx, e.pageDelay()); err != nil {
				return trend.PostFetchResult{}, err
			}
		}

		sp, err := e.fetchWithRetry(ctx, params.Term, page)
		if err != nil {
			if ctx.Err() != nil {
				return trend.PostFetchResult{}, ctx.Err()
			}
			errTexts = append(errTexts, fmt.Sprintf("page_%d:%v", page, err))
			e.logger.Warn("search page failed",
				zap.String("term", params.Term),
				zap.Int("page", page),
				zap.Error(err))
			break
		}

		stats.PagesSucceeded++
		stats.CardsSeen += sp.CardsSeen
		if sp.CardsSeen == 0 {
			e.logger.Debug("search page returned no cards",
				zap.String("term", params.Term),
				zap.Int("page", page))
			break
		}

		for _, cand := range sp.Candidates {
			stats.TopicCards++
			item, ok := e.admit(cand, params, skip, seen, &rejections)
			if !ok {
				continue
			}
			collected = append(collected, item)
			seen[item.ID] = struct{}{}
		}

		if !sp.HasMore {
			break
		}
	}

	sortPosts(collected)
	limited := collected
	if params.TopN > 0 && len(limited) > params.TopN {
		limited = limited[:params.TopN]
	}

	result := trend.PostFetchResult{
		Topic:     params.Term,
		FetchedAt: e.clock.Now().In(trend.ChinaTZ),
		Total:     len(collected),
		TopN:      params.TopN,
		Items:     limited,
	}
	if len(limited) == 0 {
		result.EmptyReason = emptyReason(stats, rejections, errTexts)
		result.EmptyDebug = &trend.EmptyDebug{
			Stats:      stats,
			Rejections: rejections,
			Errors:     errTexts,
		}
	}
	return result, nil
}

func (e *Engine) admit(
	cand Candidate,
	params Params,
	skip, seen map[string]struct{},
	rejections *trend.CrawlRejections,
) (trend.PostItem, bool) {
	item := cand.Post
	if item.ID == "" {
		rejections.MissingID++
		return trend.PostItem{}, false
	}
	if _, ok := skip[item.ID]; ok {
		rejections.SkipList++
		return trend.PostItem{}, false
	}
	if _, ok := seen[item.ID]; ok {
		rejections.Duplicate++
		return trend.PostItem{}, false
	}
	if !containsTerm(cand.MatchTexts, params.Term) {
		rejections.MissingTerm++
		return trend.PostItem{}, false
	}
	if params.Since != nil && item.CreatedAt != nil && item.CreatedAt.Before(*params.Since) {
		rejections.TooOld++
		return trend.PostItem{}, false
	}
	item.Score = e.score(item)
	if item.Score < params.MinScore {
		rejections.BelowMinScore++
		return trend.PostItem{}, false
	}
	return item, true
}

func (e *Engine) fetchWithRetry(ctx context.Context, term string, page int) (SearchPage, error) {
	var (
		sp  SearchPage
		err error
	)
	for attempt := 0; ; attempt++ {
		sp, err = e.fetcher.FetchPage(ctx, term, page)
		if err == nil {
			return sp, nil
		}
		if !e.policy.ShouldRetry(err, attempt+1) {
			return SearchPage{}, err
		}
		if serr := sleep(ctx, e.policy.Backoff(attempt)); serr != nil {
			return SearchPage{}, serr
		}
	}
}

func (e *Engine) score(item trend.PostItem) float64 {
	return float64(item.Likes)*e.cfg.LikeWeight +
		float64(item.Comments)*e.cfg.CommentWeight +
		float64(item.Reposts)*e.cfg.RepostWeight
}

func (e *Engine) pageDelay() time.Duration {
	lo, hi := e.cfg.PageDelayMin, e.cfg.PageDelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

func containsTerm(texts []string, term string) bool {
	needle := strings.ToLower(term)
	for _, text := range texts {
		if text != "" && strings.Contains(strings.ToLower(text), needle) {
			return true
		}
	}
	return false
}

// sortPosts orders by score descending, recency breaking ties; posts
// without a timestamp sort last within their score band.
func sortPosts(posts []trend.PostItem) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Score != posts[j].Score {
			return posts[i].Score > posts[j].Score
		}
		ti, tj := posts[i].CreatedAt, posts[j].CreatedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
}

func emptyReason(stats trend.CrawlStats, rej trend.CrawlRejections, errTexts []string) string {
	var parts []string
	switch {
	case stats.PagesSucceeded == 0:
		if len(errTexts) > 0 {
			parts = append(parts, "fetch_failed")
		} else {
			parts = append(parts, "no_response")
		}
	case stats.TopicCards == 0:
		parts = append(parts, "no_topic_cards")
	default:
		if rej.MissingTerm > 0 && rej.MissingTerm == stats.TopicCards {
			parts = append(parts, "all_posts_missing_term")
		}
		if rej.TooOld > 0 && rej.TooOld == stats.TopicCards {
			parts = append(parts, "all_posts_before_since")
		}
		if rej.BelowMinScore > 0 && rej.BelowMinScore == stats.TopicCards {
			parts = append(parts, "all_posts_below_min_score")
		}
		if rej.SkipList > 0 && rej.SkipList == stats.TopicCards {
			parts = append(parts, "all_posts_in_skip_ids")
		}
		if len(parts) == 0 {
			parts = append(parts, "filtered_out")
		}
	}
	if len(errTexts) > 0 && stats.PagesSucceeded > 0 {
		parts = append(parts, errTexts[len(errTexts)-1])
	}

	joined := make([]string, 0, len(parts))
	known := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		if _, ok := known[part]; ok {
			continue
		}
		known[part] = struct{}{}
		joined = append(joined, part)
	}
	return strings.Join(joined, "; ")
}
