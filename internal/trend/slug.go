package trend

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`[^0-9A-Za-z]+`)

// Slugify derives a stable URL-safe identifier from a topic title.
// Titles that carry no ASCII alphanumerics (common for CJK titles) fall
// back to a digest so the slug is still deterministic. The slug must
// never change for a given title: post cache files are keyed by it.
func Slugify(title string) string {
	slug := slugPattern.ReplaceAllString(title, "-")
	slug = strings.ToLower(strings.Trim(slug, "-"))
	if slug != "" {
		return slug
	}
	sum := sha256.Sum256([]byte(title))
	return "topic-" + hex.EncodeToString(sum[:])[:8]
}

// EnsureHashtag wraps a title in the #...# delimiter convention used by
// the search endpoint for exact topic matches.
func EnsureHashtag(title string) string {
	stripped := strings.TrimSpace(title)
	if stripped == "" {
		return ""
	}
	if !strings.HasPrefix(stripped, "#") {
		stripped = "#" + stripped
	}
	if !strings.HasSuffix(stripped, "#") {
		stripped += "#"
	}
	return stripped
}
