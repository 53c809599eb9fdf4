package archive

import (
	"strings"

	"github.com/trendline/hotarchive/internal/trend"
)

// Upsert folds one snapshot entry into the day's archive, keyed by
// title. Idempotent for a given (date, hour): re-merging the same entry
// only overwrites the latest-snapshot fields; history fields are
// untouched. Blank titles are dropped and produce no record.
func Upsert(archive trend.Archive, entry trend.SnapshotEntry, date string, hour int) *trend.TopicRecord {
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return nil
	}

	label := trend.HourLabel(hour)
	seen, err := trend.SlotTime(date, hour)
	if err != nil {
		return nil
	}

	record, ok := archive[title]
	if !ok {
		record = &trend.TopicRecord{
			Title:         title,
			Slug:          trend.Slugify(title),
			AppearedHours: []string{label},
			FirstSeen:     seen,
			LastSeen:      seen,
			KnownIDs:      []string{},
			NeedsRefresh:  true,
		}
		applySnapshot(record, entry)
		archive[title] = record
		return record
	}

	applySnapshot(record, entry)
	if !record.HasHour(label) {
		record.AppearedHours = append(record.AppearedHours, label)
	}
	record.LastSeen = seen
	if record.FirstSeen.IsZero() {
		record.FirstSeen = seen
	}
	if record.KnownIDs == nil {
		record.KnownIDs = []string{}
	}
	// The slug is a pure function of the title and must never change
	// once assigned: post cache files are keyed by it.
	if record.Slug == "" {
		record.Slug = trend.Slugify(title)
	}
	// A new day always requires a fresh post sample, even for a topic
	// that persisted across midnight.
	if record.LastPostRefresh != date {
		record.NeedsRefresh = true
	}
	return record
}

// applySnapshot overwrites the latest-snapshot fields; heat evolves
// intra-hour, so the newest observation always wins.
func applySnapshot(record *trend.TopicRecord, entry trend.SnapshotEntry) {
	record.Rank = entry.Rank
	record.Category = entry.Category
	record.URL = entry.URL
	record.Heat = entry.Heat
	record.Ad = entry.Ad
	record.ReadCount = entry.ReadCount
	record.DiscussCount = entry.DiscussCount
	if entry.Description != "" {
		record.Description = entry.Description
	}
}
