package crawl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendline/hotarchive/internal/trend"
)

func TestCleanHTML(t *testing.T) {
	t.Parallel()

	raw := `话题正文<span class="url-icon"><img alt="[火]"></span><br/>第二行 <a href="https://example.com">链接文字</a>`
	got := CleanHTML(raw)
	require.Equal(t, "话题正文\n第二行 链接文字", got)
}

func TestCleanHTML_Empty(t *testing.T) {
	t.Parallel()
	require.Equal(t, "", CleanHTML(""))
}

func TestParseCreatedAt_ExplicitOffsetPreserved(t *testing.T) {
	t.Parallel()

	got := ParseCreatedAt("Sun Aug 30 09:15:00 +0800 2026")
	require.NotNil(t, got)
	require.Equal(t, 2026, got.Year())
	require.Equal(t, 9, got.Hour())
	_, offset := got.Zone()
	require.Equal(t, 8*60*60, offset)
}

func TestParseCreatedAt_NaiveTimestampPinnedToChinaTZ(t *testing.T) {
	t.Parallel()

	got := ParseCreatedAt("2026-08-30 09:15:00")
	require.NotNil(t, got)
	want := time.Date(2026, 8, 30, 9, 15, 0, 0, trend.ChinaTZ)
	require.True(t, got.Equal(want))
}

func TestParseCreatedAt_Unparseable(t *testing.T) {
	t.Parallel()
	require.Nil(t, ParseCreatedAt(""))
	require.Nil(t, ParseCreatedAt("刚刚"))
}
