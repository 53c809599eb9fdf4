package posts

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/trend"
)

func detailTestClock() fakeClock {
	return fakeClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, trend.ChinaTZ)}
}

const detailPageFixture = `<!DOCTYPE html>
<html><body>
<div class="card-wrap" mid="1001">
  <a class="name">用户甲</a>
  <p class="txt">关于 #话题# 的第一条讨论</p>
  <div class="from">
    <a href="//weibo.com/1001/detail1">2026-08-30 09:15</a>
    <a>微博网页版</a>
  </div>
  <div class="card-act"><ul>
    <li>转发 120</li>
    <li>评论 45</li>
    <li>赞 300</li>
  </ul></div>
</div>
<div class="card-wrap" mid="1002">
  <a class="name">用户乙</a>
  <p class="txt">第二条讨论</p>
  <div class="from">
    <a href="//weibo.com/1002/detail2">2026-08-30 10:00</a>
  </div>
  <div class="card-act"><ul>
    <li>转发</li>
    <li>评论 1</li>
    <li>赞 2</li>
  </ul></div>
</div>
<div class="card-wrap">
  <p class="txt">没有 mid 属性，应被忽略</p>
</div>
</body></html>`

func newDetailServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, detailPageFixture)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDetailFallback_TopPosts(t *testing.T) {
	t.Parallel()
	server := newDetailServer(t)
	fallback := NewDetailFallback(DetailConfig{SearchURL: server.URL + "?q=%s"}, detailTestClock(), zap.NewNop())

	items, err := fallback.TopPosts(context.Background(), "话题", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	require.Equal(t, "用户甲", first.UserName)
	require.Equal(t, "关于 #话题# 的第一条讨论", first.Text)
	require.Equal(t, "https://weibo.com/1001/detail1", first.URL)
	require.EqualValues(t, 120, first.Reposts)
	require.EqualValues(t, 45, first.Comments)
	require.EqualValues(t, 300, first.Likes)
	require.InDelta(t, 120*0.6+45*0.3+300*0.1, first.Score, 0.001)
	require.NotNil(t, first.CreatedAt)
	require.Equal(t, 9, first.CreatedAt.Hour())
	require.Regexp(t, `^detail-\d+$`, first.ID)

	// Blank action text parses as zero.
	require.EqualValues(t, 0, items[1].Reposts)
}

func TestDetailFallback_LimitRespected(t *testing.T) {
	t.Parallel()
	server := newDetailServer(t)
	fallback := NewDetailFallback(DetailConfig{SearchURL: server.URL + "?q=%s"}, detailTestClock(), zap.NewNop())

	items, err := fallback.TopPosts(context.Background(), "话题", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestDetailFallback_HTTPErrorSurfaces(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)
	fallback := NewDetailFallback(DetailConfig{SearchURL: server.URL + "?q=%s"}, detailTestClock(), zap.NewNop())

	_, err := fallback.TopPosts(context.Background(), "话题", 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestDetailFallback_YearlessTimestampPinnedToClock(t *testing.T) {
	t.Parallel()
	page := `<html><body>
<div class="card-wrap" mid="1003">
  <a class="name">用户丙</a>
  <p class="txt">年份缺失的时间戳</p>
  <div class="from"><a href="//weibo.com/1003/detail3">08月29日 21:40</a></div>
</div>
</body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(server.Close)
	fallback := NewDetailFallback(DetailConfig{SearchURL: server.URL + "?q=%s"}, detailTestClock(), zap.NewNop())

	items, err := fallback.TopPosts(context.Background(), "话题", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].CreatedAt)
	require.Equal(t, 2026, items[0].CreatedAt.Year())
	require.Equal(t, time.August, items[0].CreatedAt.Month())
	require.Equal(t, 29, items[0].CreatedAt.Day())
	require.Equal(t, 21, items[0].CreatedAt.Hour())
}

func TestActionCount(t *testing.T) {
	t.Parallel()
	actions := []string{"转发 120", "评论", "赞 3"}
	require.EqualValues(t, 120, actionCount(actions, 0))
	require.EqualValues(t, 0, actionCount(actions, 1))
	require.EqualValues(t, 3, actionCount(actions, 2))
	require.EqualValues(t, 0, actionCount(actions, 5))
}
