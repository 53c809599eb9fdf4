package trend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	t.Parallel()

	require.Equal(t, "breaking-news-2026", Slugify("Breaking News, 2026!"))
	require.Equal(t, "abc", Slugify("abc"))

	// Pure CJK titles fall back to a deterministic digest.
	first := Slugify("微博热搜")
	second := Slugify("微博热搜")
	require.Equal(t, first, second)
	require.Regexp(t, `^topic-[0-9a-f]{8}$`, first)
	require.NotEqual(t, first, Slugify("另一个话题"))
}

func TestEnsureHashtag(t *testing.T) {
	t.Parallel()

	require.Equal(t, "#话题#", EnsureHashtag("话题"))
	require.Equal(t, "#话题#", EnsureHashtag("#话题#"))
	require.Equal(t, "#话题#", EnsureHashtag("  #话题  "))
	require.Equal(t, "", EnsureHashtag("   "))
}
