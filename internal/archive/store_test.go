package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/trend"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestStore_ArchiveRoundtrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.LoadArchive("2026-08-30")
	require.ErrorIs(t, err, ErrNoArchive)

	day := trend.Archive{
		"topic": {Title: "topic", Slug: "topic", Heat: 42, AppearedHours: []string{"07"}},
	}
	require.NoError(t, store.SaveArchive("2026-08-30", day))

	loaded, err := store.LoadArchive("2026-08-30")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.EqualValues(t, 42, loaded["topic"].Heat)
	require.Equal(t, []string{"07"}, loaded["topic"].AppearedHours)
}

func TestStore_LoadOrEmptyArchive(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	day, err := store.LoadOrEmptyArchive("2026-01-01")
	require.NoError(t, err)
	require.NotNil(t, day)
	require.Empty(t, day)
}

func TestStore_HourlySnapshotExists(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.False(t, store.HourlySnapshotExists("2026-08-30", 9))
	require.NoError(t, store.SaveHourlySnapshot("2026-08-30", 9, []trend.SnapshotEntry{{Title: "t"}}))
	require.True(t, store.HourlySnapshotExists("2026-08-30", 9))
	require.False(t, store.HourlySnapshotExists("2026-08-30", 10))
}

func TestStore_PostCacheRoundtrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	missing, err := store.LoadPostCache("2026-08-30", "slug")
	require.NoError(t, err)
	require.Nil(t, missing)

	result := &trend.PostFetchResult{
		Topic: "#topic#",
		Total: 2,
		Items: []trend.PostItem{{ID: "a"}, {ID: "b"}},
	}
	require.NoError(t, store.SavePostCache("2026-08-30", "slug", result))

	loaded, err := store.LoadPostCache("2026-08-30", "slug")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, loaded.ItemIDs())
}

func TestStore_HourlyPostCacheTTL(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	result := &trend.PostFetchResult{Topic: "#t#", Items: []trend.PostItem{{ID: "x"}}}
	require.NoError(t, store.SaveHourlyPostCache("2026-08-30", 9, "slug", result))

	now := time.Now()
	cached, ok := store.LoadHourlyPostCache("2026-08-30", 9, "slug", time.Hour, now)
	require.True(t, ok)
	require.Equal(t, "#t#", cached.Topic)

	_, ok = store.LoadHourlyPostCache("2026-08-30", 9, "slug", time.Hour, now.Add(2*time.Hour))
	require.False(t, ok)
}

func TestStore_HourlyPostCacheCorruptedIsMiss(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewStore(dir, zap.NewNop())
	require.NoError(t, err)

	path := filepath.Join(dir, "posts", "hourly", "2026-08-30", "09", "slug.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, ok := store.LoadHourlyPostCache("2026-08-30", 9, "slug", time.Hour, time.Now())
	require.False(t, ok)
}

func TestStore_HeatSummaryCorruptedYieldsEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewStore(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hot_topics", "daily_heat.json"), []byte("oops"), 0o600))
	summary := store.LoadHeatSummary()
	require.Empty(t, summary.Data)
}

func TestStore_HeatSummaryRoundtrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	summary := trend.HeatSummary{
		GeneratedAt: time.Now(),
		Data: []trend.DailyHeat{
			{Date: "2026-08-29", TotalHeat: 100, TopicCount: 3},
		},
	}
	require.NoError(t, store.SaveHeatSummary(summary))

	loaded := store.LoadHeatSummary()
	require.Len(t, loaded.Data, 1)
	require.Equal(t, "2026-08-29", loaded.Data[0].Date)
}

func TestStore_SaveHourlyExports(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewStore(dir, zap.NewNop())
	require.NoError(t, err)

	all := []*trend.PostFetchResult{{Topic: "#a#"}, {Topic: "#b#"}}
	fresh := []*trend.PostFetchResult{{Topic: "#b#"}}
	require.NoError(t, store.SaveHourlyExports("2026-08-30", 9, all, fresh))

	base := filepath.Join(dir, "hot_posts", "2026-08-30")
	_, err = os.Stat(filepath.Join(base, "2026-08-30_09_all.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(base, "2026-08-30_09_new.json"))
	require.NoError(t, err)
}

func TestStore_WriteLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewStore(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, store.SaveArchive("2026-08-30", trend.Archive{}))

	entries, err := os.ReadDir(filepath.Join(dir, "hot_topics"))
	require.NoError(t, err)
	for _, entry := range entries {
		require.NotContains(t, entry.Name(), ".tmp-")
	}
}
