// Package archive owns the durable per-day topic state: the daily
// archive, raw hourly snapshots, post caches, exports, and the rolling
// heat summary. All writes are atomic replaces so concurrent readers
// never observe partial JSON.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/trend"
)

// ErrNoArchive marks a date with no archive on disk.
var ErrNoArchive = errors.New("daily archive missing")

// Store reads and writes all durable pipeline state under one base dir.
type Store struct {
	baseDir string
	logger  *zap.Logger
}

// NewStore creates the directory layout and returns a Store.
func NewStore(baseDir string, logger *zap.Logger) (*Store, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{baseDir: baseDir, logger: logger}
	for _, dir := range []string{
		s.topicsDir(),
		s.hourlyDir(),
		s.postsDir(),
		s.exportsDir(),
	} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) topicsDir() string  { return filepath.Join(s.baseDir, "hot_topics") }
func (s *Store) hourlyDir() string  { return filepath.Join(s.topicsDir(), "hourly") }
func (s *Store) postsDir() string   { return filepath.Join(s.baseDir, "posts") }
func (s *Store) exportsDir() string { return filepath.Join(s.baseDir, "hot_posts") }

func (s *Store) archivePath(date string) string {
	return filepath.Join(s.topicsDir(), date+".json")
}

func (s *Store) hourlySnapshotPath(date string, hour int) string {
	return filepath.Join(s.hourlyDir(), date, trend.HourLabel(hour)+".json")
}

func (s *Store) postCachePath(date, slug string) string {
	return filepath.Join(s.postsDir(), date, slug+".json")
}

func (s *Store) hourlyPostCachePath(date string, hour int, slug string) string {
	return filepath.Join(s.postsDir(), "hourly", date, trend.HourLabel(hour), slug+".json")
}

func (s *Store) heatSummaryPath() string {
	return filepath.Join(s.topicsDir(), "daily_heat.json")
}

// LoadArchive reads the day's archive. Returns ErrNoArchive when the
// day has never been merged.
func (s *Store) LoadArchive(date string) (trend.Archive, error) {
	data, err := os.ReadFile(s.archivePath(date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", date, ErrNoArchive)
		}
		return nil, fmt.Errorf("read archive %s: %w", date, err)
	}
	var archive trend.Archive
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", date, err)
	}
	return archive, nil
}

// LoadOrEmptyArchive reads the day's archive, starting fresh when absent.
func (s *Store) LoadOrEmptyArchive(date string) (trend.Archive, error) {
	archive, err := s.LoadArchive(date)
	if errors.Is(err, ErrNoArchive) {
		return trend.Archive{}, nil
	}
	return archive, err
}

// SaveArchive rewrites the day's archive wholesale.
func (s *Store) SaveArchive(date string, archive trend.Archive) error {
	if err := s.writeAtomic(s.archivePath(date), archive); err != nil {
		return fmt.Errorf("save archive %s: %w", date, err)
	}
	return nil
}

// HourlySnapshotExists reports whether a slot's snapshot was persisted.
// The scheduler uses this as the "already fetched" signal.
func (s *Store) HourlySnapshotExists(date string, hour int) bool {
	_, err := os.Stat(s.hourlySnapshotPath(date, hour))
	return err == nil
}

// SaveHourlySnapshot persists the raw normalized entry list for a slot.
func (s *Store) SaveHourlySnapshot(date string, hour int, entries []trend.SnapshotEntry) error {
	if err := s.writeAtomic(s.hourlySnapshotPath(date, hour), entries); err != nil {
		return fmt.Errorf("save hourly snapshot %s %02d: %w", date, hour, err)
	}
	return nil
}

// SavePostCache persists a topic's latest post fetch result.
func (s *Store) SavePostCache(date, slug string, result *trend.PostFetchResult) error {
	if err := s.writeAtomic(s.postCachePath(date, slug), result); err != nil {
		return fmt.Errorf("save post cache %s/%s: %w", date, slug, err)
	}
	return nil
}

// LoadPostCache reads a topic's cached post fetch result, if any.
func (s *Store) LoadPostCache(date, slug string) (*trend.PostFetchResult, error) {
	data, err := os.ReadFile(s.postCachePath(date, slug))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read post cache %s/%s: %w", date, slug, err)
	}
	var result trend.PostFetchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode post cache %s/%s: %w", date, slug, err)
	}
	return &result, nil
}

// SaveHourlyPostCache persists a per-slot copy of a topic's posts.
func (s *Store) SaveHourlyPostCache(date string, hour int, slug string, result *trend.PostFetchResult) error {
	path := s.hourlyPostCachePath(date, hour, slug)
	if err := s.writeAtomic(path, result); err != nil {
		return fmt.Errorf("save hourly post cache %s: %w", path, err)
	}
	return nil
}

// LoadHourlyPostCache returns a slot's cached posts when the cache file
// is fresher than ttl. A corrupted cache file counts as a miss.
func (s *Store) LoadHourlyPostCache(date string, hour int, slug string, ttl time.Duration, now time.Time) (*trend.PostFetchResult, bool) {
	path := s.hourlyPostCachePath(date, hour, slug)
	info, err := os.Stat(path)
	if err != nil || now.Sub(info.ModTime()) > ttl {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var result trend.PostFetchResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.logger.Warn("corrupted hourly post cache, refetching", zap.String("path", path))
		return nil, false
	}
	return &result, true
}

// LoadHeatSummary reads the rolling summary. Missing or corrupted files
// yield an empty summary rather than an error: the summary is always
// rebuildable from the archives.
func (s *Store) LoadHeatSummary() trend.HeatSummary {
	data, err := os.ReadFile(s.heatSummaryPath())
	if err != nil {
		return trend.HeatSummary{}
	}
	var summary trend.HeatSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		s.logger.Warn("heat summary corrupted, recreating", zap.Error(err))
		return trend.HeatSummary{}
	}
	return summary
}

// SaveHeatSummary rewrites the rolling summary wholesale.
func (s *Store) SaveHeatSummary(summary trend.HeatSummary) error {
	if err := s.writeAtomic(s.heatSummaryPath(), summary); err != nil {
		return fmt.Errorf("save heat summary: %w", err)
	}
	return nil
}

// SaveHourlyExports writes the all/new post bundles for one slot.
func (s *Store) SaveHourlyExports(date string, hour int, all, fresh []*trend.PostFetchResult) error {
	dir := filepath.Join(s.exportsDir(), date)
	label := trend.HourLabel(hour)
	allPath := filepath.Join(dir, fmt.Sprintf("%s_%s_all.json", date, label))
	newPath := filepath.Join(dir, fmt.Sprintf("%s_%s_new.json", date, label))
	if err := s.writeAtomic(allPath, all); err != nil {
		return fmt.Errorf("save hourly export %s: %w", allPath, err)
	}
	if err := s.writeAtomic(newPath, fresh); err != nil {
		return fmt.Errorf("save hourly export %s: %w", newPath, err)
	}
	return nil
}

// writeAtomic marshals v and replaces path in one rename so readers
// never see a torn file.
func (s *Store) writeAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
