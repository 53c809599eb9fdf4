// Package trend defines core types shared across the harvest pipeline.
package trend

import (
	"time"
)

// ChinaTZ is the zone all snapshot slots are stamped in. The upstream
// ranking publishes on Beijing hours regardless of where we run.
var ChinaTZ = time.FixedZone("CST", 8*60*60)

// SnapshotEntry is one topic as seen by a snapshot source for one hour.
type SnapshotEntry struct {
	Title        string `json:"title"`
	Rank         int    `json:"rank,omitempty"`
	Category     string `json:"category,omitempty"`
	Description  string `json:"description,omitempty"`
	URL          string `json:"url,omitempty"`
	Heat         int64  `json:"hot"`
	Ad           bool   `json:"ads,omitempty"`
	ReadCount    int64  `json:"readCount,omitempty"`
	DiscussCount int64  `json:"discussCount,omitempty"`
	Origin       int64  `json:"origin,omitempty"`
}

// TopicRecord is the durable per-day state for one distinct title.
// Snapshot fields are overwritten on every merge; history fields only grow.
type TopicRecord struct {
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Rank         int    `json:"rank,omitempty"`
	Category     string `json:"category,omitempty"`
	Description  string `json:"description,omitempty"`
	URL          string `json:"url,omitempty"`
	Heat         int64  `json:"hot"`
	Ad           bool   `json:"ads,omitempty"`
	ReadCount    int64  `json:"readCount,omitempty"`
	DiscussCount int64  `json:"discussCount,omitempty"`

	AppearedHours   []string         `json:"appeared_hours"`
	FirstSeen       time.Time        `json:"first_seen"`
	LastSeen        time.Time        `json:"last_seen"`
	KnownIDs        []string         `json:"known_ids"`
	NeedsRefresh    bool             `json:"needs_refresh"`
	LastPostRefresh string           `json:"last_post_refresh,omitempty"`
	LastPostTotal   int              `json:"last_post_total,omitempty"`
	LatestPosts     *PostFetchResult `json:"latest_posts,omitempty"`
}

// Archive maps topic title to its record for one calendar day.
type Archive map[string]*TopicRecord

// HasHour reports whether the record was observed in the given hour.
func (r *TopicRecord) HasHour(hour string) bool {
	for _, h := range r.AppearedHours {
		if h == hour {
			return true
		}
	}
	return false
}

// KnowsID reports whether a post identifier was already captured.
func (r *TopicRecord) KnowsID(id string) bool {
	for _, known := range r.KnownIDs {
		if known == id {
			return true
		}
	}
	return false
}

// VideoRef describes a video attachment on a post.
type VideoRef struct {
	Title    string            `json:"title,omitempty"`
	Cover    string            `json:"cover,omitempty"`
	Duration float64           `json:"duration,omitempty"`
	Streams  map[string]string `json:"streams,omitempty"`
}

// PostItem is one sample post captured for a topic.
type PostItem struct {
	ID        string     `json:"id"`
	BID       string     `json:"bid,omitempty"`
	URL       string     `json:"url,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UserID    int64      `json:"user_id,omitempty"`
	UserName  string     `json:"user_name,omitempty"`
	Verified  bool       `json:"verified,omitempty"`
	Region    string     `json:"region,omitempty"`
	Source    string     `json:"source,omitempty"`
	Text      string     `json:"text"`
	TextRaw   string     `json:"text_raw,omitempty"`
	Reposts   int64      `json:"reposts"`
	Comments  int64      `json:"comments"`
	Likes     int64      `json:"likes"`
	Pics      []string   `json:"pics,omitempty"`
	Video     *VideoRef  `json:"video,omitempty"`
	Score     float64    `json:"score"`
}

// CrawlStats counts pages and candidates observed during one crawl run.
type CrawlStats struct {
	PagesRequested int `json:"pages_requested"`
	PagesSucceeded int `json:"pages_succeeded"`
	CardsSeen      int `json:"cards_seen"`
	TopicCards     int `json:"topic_cards"`
}

// CrawlRejections counts candidates dropped per reason.
type CrawlRejections struct {
	MissingID     int `json:"missing_id"`
	SkipList      int `json:"skip_list"`
	Duplicate     int `json:"duplicate"`
	MissingTerm   int `json:"missing_term"`
	TooOld        int `json:"too_old"`
	BelowMinScore int `json:"below_min_score"`
}

// EmptyDebug carries the full diagnostic picture when a crawl yields nothing.
type EmptyDebug struct {
	Stats      CrawlStats      `json:"stats"`
	Rejections CrawlRejections `json:"rejections"`
	Errors     []string        `json:"errors,omitempty"`
}

// PostFetchResult is the outcome of one post fetch for a topic, whether
// from the crawl engine or the topic-detail fallback. An explicitly empty
// result (zero items, EmptyReason set) is still persisted so readers can
// tell "checked, found nothing" from "never checked".
type PostFetchResult struct {
	Topic       string      `json:"topic"`
	FetchedAt   time.Time   `json:"fetched_at"`
	Total       int         `json:"total"`
	TopN        int         `json:"top_n"`
	Items       []PostItem  `json:"items"`
	EmptyReason string      `json:"empty_reason,omitempty"`
	EmptyDebug  *EmptyDebug `json:"empty_debug,omitempty"`
}

// IsEmpty reports whether the fetch produced no posts.
func (r *PostFetchResult) IsEmpty() bool {
	return r == nil || len(r.Items) == 0
}

// ItemIDs returns the identifiers of all items, skipping blanks.
func (r *PostFetchResult) ItemIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		if item.ID != "" {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// DailyHeat is one day's aggregate over its archive.
type DailyHeat struct {
	Date       string `json:"date"`
	TotalHeat  int64  `json:"total_heat"`
	TopicCount int    `json:"topic_count"`
}

// HeatSummary is the rolling multi-day aggregate, ordered by date ascending.
type HeatSummary struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Data        []DailyHeat `json:"data"`
}

// SlotTime returns the nominal start of an hourly slot.
func SlotTime(date string, hour int) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", date, ChinaTZ)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(time.Duration(hour) * time.Hour), nil
}

// HourLabel formats an hour-of-day the way archive files key it.
func HourLabel(hour int) string {
	if hour < 0 || hour > 23 {
		return "00"
	}
	return []string{
		"00", "01", "02", "03", "04", "05", "06", "07", "08", "09",
		"10", "11", "12", "13", "14", "15", "16", "17", "18", "19",
		"20", "21", "22", "23",
	}[hour]
}

// DateLabel formats a time as an archive date key in the snapshot zone.
func DateLabel(t time.Time) string {
	return t.In(ChinaTZ).Format("2006-01-02")
}
