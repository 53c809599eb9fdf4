package heat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/archive"
	"github.com/trendline/hotarchive/internal/trend"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

// fakeSnapshotSource serves canned hourly snapshots keyed by "date/HH".
type fakeSnapshotSource struct {
	hours map[string][]trend.SnapshotEntry
}

func (s *fakeSnapshotSource) FetchHour(_ context.Context, date string, hour int) ([]trend.SnapshotEntry, error) {
	key := fmt.Sprintf("%s/%s", date, trend.HourLabel(hour))
	entries, ok := s.hours[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, trend.ErrNotFound)
	}
	return entries, nil
}

func newTestAggregator(t *testing.T, source trend.SnapshotSource, maxDays int, now time.Time) (*Aggregator, *archive.Store) {
	t.Helper()
	store, err := archive.NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return NewAggregator(store, source, fakeClock{now: now}, maxDays, zap.NewNop()), store
}

func TestSummarize_ExcludesAdsAndNegativeHeat(t *testing.T) {
	t.Parallel()
	day := trend.Archive{
		"a":  {Title: "a", Heat: 100},
		"b":  {Title: "b", Heat: -5},
		"c":  {Title: "c", Heat: 0},
		"ad": {Title: "ad", Heat: 9999, Ad: true},
	}

	// Ads and negative readings are out entirely; a zero reading is a
	// valid observation and still counts as a topic.
	row := Summarize("2026-08-30", day)
	require.EqualValues(t, 100, row.TotalHeat)
	require.Equal(t, 2, row.TopicCount)
	require.Equal(t, "2026-08-30", row.Date)
}

func TestUpdate_ReplacesSameDateAndSorts(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, trend.ChinaTZ)
	agg, store := newTestAggregator(t, nil, 120, now)

	require.NoError(t, store.SaveHeatSummary(trend.HeatSummary{Data: []trend.DailyHeat{
		{Date: "2026-08-29", TotalHeat: 50},
		{Date: "2026-08-30", TotalHeat: 10},
	}}))

	day := trend.Archive{"a": {Title: "a", Heat: 70}}
	require.NoError(t, agg.Update("2026-08-30", day))

	summary := store.LoadHeatSummary()
	require.Len(t, summary.Data, 2)
	require.Equal(t, "2026-08-29", summary.Data[0].Date)
	require.Equal(t, "2026-08-30", summary.Data[1].Date)
	require.EqualValues(t, 70, summary.Data[1].TotalHeat)
}

func TestUpdate_CapsWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, trend.ChinaTZ)
	agg, store := newTestAggregator(t, nil, 3, now)

	rows := []trend.DailyHeat{
		{Date: "2026-08-26"},
		{Date: "2026-08-27"},
		{Date: "2026-08-28"},
	}
	require.NoError(t, store.SaveHeatSummary(trend.HeatSummary{Data: rows}))

	require.NoError(t, agg.Update("2026-08-29", trend.Archive{"a": {Title: "a", Heat: 1}}))

	summary := store.LoadHeatSummary()
	require.Len(t, summary.Data, 3)
	// Oldest day falls off the window.
	require.Equal(t, "2026-08-27", summary.Data[0].Date)
	require.Equal(t, "2026-08-29", summary.Data[2].Date)
}

func TestRebuild_UsesArchivesAndReconstructsMissingDays(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, trend.ChinaTZ)
	source := &fakeSnapshotSource{hours: map[string][]trend.SnapshotEntry{
		"2026-08-29/08": {{Title: "reconstructed", Heat: 40}},
		"2026-08-29/09": {{Title: "reconstructed", Heat: 60}},
	}}
	agg, store := newTestAggregator(t, source, 3, now)

	// Today exists on disk; yesterday must come from the source; the day
	// before has nothing anywhere and is skipped.
	require.NoError(t, store.SaveArchive("2026-08-30", trend.Archive{
		"today": {Title: "today", Heat: 100},
	}))

	summary, err := agg.Rebuild(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Data, 2)
	require.Equal(t, "2026-08-29", summary.Data[0].Date)
	require.EqualValues(t, 60, summary.Data[0].TotalHeat)
	require.Equal(t, "2026-08-30", summary.Data[1].Date)

	// The reconstructed day was persisted as a real archive.
	day, err := store.LoadArchive("2026-08-29")
	require.NoError(t, err)
	require.Contains(t, day, "reconstructed")
	require.Equal(t, []string{"08", "09"}, day["reconstructed"].AppearedHours)

	// And the summary landed on disk too.
	persisted := store.LoadHeatSummary()
	require.Len(t, persisted.Data, 2)
}

func TestRebuild_ContextCancellation(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, trend.ChinaTZ)
	agg, _ := newTestAggregator(t, nil, 5, now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := agg.Rebuild(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMergeDay_Idempotent(t *testing.T) {
	t.Parallel()
	rows := []trend.DailyHeat{{Date: "2026-08-30", TotalHeat: 10}}
	rows = mergeDay(rows, trend.DailyHeat{Date: "2026-08-30", TotalHeat: 10}, 120)
	rows = mergeDay(rows, trend.DailyHeat{Date: "2026-08-30", TotalHeat: 10}, 120)
	require.Len(t, rows, 1)
}

func TestSummarize_EmptyDay(t *testing.T) {
	t.Parallel()
	row := Summarize("2026-08-30", trend.Archive{})
	require.Zero(t, row.TotalHeat)
	require.Zero(t, row.TopicCount)
}
