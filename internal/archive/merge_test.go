package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendline/hotarchive/internal/trend"
)

func TestUpsert_NewRecord(t *testing.T) {
	t.Parallel()
	day := trend.Archive{}

	record := Upsert(day, trend.SnapshotEntry{
		Title:    "breaking news",
		Rank:     3,
		Category: "社会",
		Heat:     123456,
	}, "2026-08-30", 9)

	require.NotNil(t, record)
	require.Equal(t, "breaking news", record.Title)
	require.Equal(t, "breaking-news", record.Slug)
	require.Equal(t, []string{"09"}, record.AppearedHours)
	require.Equal(t, record.FirstSeen, record.LastSeen)
	require.Equal(t, 9, record.FirstSeen.Hour())
	require.NotNil(t, record.KnownIDs)
	require.Empty(t, record.KnownIDs)
	require.True(t, record.NeedsRefresh)
	require.Same(t, record, day["breaking news"])
}

func TestUpsert_IdempotentForSameSlot(t *testing.T) {
	t.Parallel()
	day := trend.Archive{}
	entry := trend.SnapshotEntry{Title: "topic", Heat: 100}

	first := Upsert(day, entry, "2026-08-30", 10)
	entry.Heat = 200
	second := Upsert(day, entry, "2026-08-30", 10)

	require.Same(t, first, second)
	require.Equal(t, []string{"10"}, second.AppearedHours)
	require.EqualValues(t, 200, second.Heat)
	require.Len(t, day, 1)
}

func TestUpsert_AppendsHoursUniquely(t *testing.T) {
	t.Parallel()
	day := trend.Archive{}
	entry := trend.SnapshotEntry{Title: "topic", Heat: 1}

	Upsert(day, entry, "2026-08-30", 8)
	Upsert(day, entry, "2026-08-30", 9)
	Upsert(day, entry, "2026-08-30", 9)
	record := Upsert(day, entry, "2026-08-30", 10)

	require.Equal(t, []string{"08", "09", "10"}, record.AppearedHours)
	require.Equal(t, 8, record.FirstSeen.Hour())
	require.Equal(t, 10, record.LastSeen.Hour())
}

func TestUpsert_BlankTitleDropped(t *testing.T) {
	t.Parallel()
	day := trend.Archive{}

	require.Nil(t, Upsert(day, trend.SnapshotEntry{Title: "   "}, "2026-08-30", 0))
	require.Empty(t, day)
}

func TestUpsert_TitleWhitespaceTrimmed(t *testing.T) {
	t.Parallel()
	day := trend.Archive{}

	record := Upsert(day, trend.SnapshotEntry{Title: "  topic  "}, "2026-08-30", 0)

	require.Equal(t, "topic", record.Title)
	require.Contains(t, day, "topic")
}

func TestUpsert_SlugNeverChanges(t *testing.T) {
	t.Parallel()
	day := trend.Archive{
		"topic": {Title: "topic", Slug: "legacy-slug"},
	}

	record := Upsert(day, trend.SnapshotEntry{Title: "topic"}, "2026-08-30", 5)

	require.Equal(t, "legacy-slug", record.Slug)
}

func TestUpsert_NeedsRefreshOnNewDay(t *testing.T) {
	t.Parallel()
	day := trend.Archive{
		"topic": {
			Title:           "topic",
			Slug:            "topic",
			LastPostRefresh: "2026-08-29",
			NeedsRefresh:    false,
		},
	}

	record := Upsert(day, trend.SnapshotEntry{Title: "topic"}, "2026-08-30", 0)
	require.True(t, record.NeedsRefresh)

	// Already refreshed today: the flag stays down.
	record.NeedsRefresh = false
	record.LastPostRefresh = "2026-08-30"
	record = Upsert(day, trend.SnapshotEntry{Title: "topic"}, "2026-08-30", 1)
	require.False(t, record.NeedsRefresh)
}

func TestUpsert_SnapshotFieldsOverwrittenDescriptionKept(t *testing.T) {
	t.Parallel()
	day := trend.Archive{}

	Upsert(day, trend.SnapshotEntry{
		Title:       "topic",
		Rank:        1,
		Heat:        500,
		Description: "original context",
	}, "2026-08-30", 0)
	record := Upsert(day, trend.SnapshotEntry{
		Title: "topic",
		Rank:  7,
		Heat:  300,
	}, "2026-08-30", 1)

	require.Equal(t, 7, record.Rank)
	require.EqualValues(t, 300, record.Heat)
	require.Equal(t, "original context", record.Description)
}

func TestUpsert_SlotTimesInChinaZone(t *testing.T) {
	t.Parallel()
	day := trend.Archive{}

	record := Upsert(day, trend.SnapshotEntry{Title: "topic"}, "2026-08-30", 23)

	want, err := time.ParseInLocation("2006-01-02 15", "2026-08-30 23", trend.ChinaTZ)
	require.NoError(t, err)
	require.True(t, record.FirstSeen.Equal(want))
}
