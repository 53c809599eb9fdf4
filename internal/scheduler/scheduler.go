// Package scheduler drives the hourly backfill loop: it enumerates
// pending (date, hour) slots over a lookback window, fetches each slot's
// snapshot from the published source or — once the slot is stale enough —
// the live fallback, merges it into the daily archive, and triggers the
// downstream post refresh and heat update.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/archive"
	"github.com/trendline/hotarchive/internal/metrics"
	"github.com/trendline/hotarchive/internal/posts"
	"github.com/trendline/hotarchive/internal/trend"
)

// Config fixes the loop's pacing and bounds.
type Config struct {
	LookbackDays        int
	PollInterval        time.Duration
	CatchupInterval     time.Duration
	EscalationThreshold time.Duration
	LiveLimit           int
	MaxTopicsPerRun     int
	HourlyPostLimit     int
	HourlyCacheTTL      time.Duration
}

// Slot is one (date, hour) unit of work.
type Slot struct {
	Date string
	Hour int
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %s", s.Date, trend.HourLabel(s.Hour))
}

// PostRefresher runs the bounded per-day post refresh.
type PostRefresher interface {
	RefreshDate(ctx context.Context, date string, maxTopics int) (posts.Summary, error)
}

// HeatUpdater folds one day's archive into the rolling heat summary.
type HeatUpdater interface {
	Update(date string, day trend.Archive) error
}

// Scheduler owns the backfill loop.
type Scheduler struct {
	remote  trend.SnapshotSource
	live    trend.LiveSource
	store   *archive.Store
	posts   PostRefresher
	heat    HeatUpdater
	clock   trend.Clock
	cfg     Config
	logger  *zap.Logger
	started bool
}

// New builds a Scheduler. live, posts, and heat may each be nil, which
// disables the corresponding stage.
func New(
	remote trend.SnapshotSource,
	live trend.LiveSource,
	store *archive.Store,
	refresher PostRefresher,
	heat HeatUpdater,
	clock trend.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	metrics.Init()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Minute
	}
	if cfg.CatchupInterval <= 0 || cfg.CatchupInterval > cfg.PollInterval {
		cfg.CatchupInterval = cfg.PollInterval
	}
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = 45 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		remote: remote,
		live:   live,
		store:  store,
		posts:  refresher,
		heat:   heat,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Run blocks until ctx is canceled, draining pending slots each cycle.
// The sleep between cycles shortens while slots remain outstanding.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.Int("lookback_days", s.cfg.LookbackDays),
		zap.Duration("poll_interval", s.cfg.PollInterval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		remaining, err := s.Cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("scheduler stopped")
				return err
			}
			s.logger.Error("cycle failed", zap.Error(err))
		}

		interval := s.cfg.PollInterval
		if remaining > 0 {
			interval = s.cfg.CatchupInterval
		}
		timer.Reset(interval)
	}
}

// Cycle processes every currently pending slot once and reports how many
// are still outstanding (deferred or failed). The first cycle after
// startup re-merges the current hour even if its snapshot exists, so a
// restart picks up intra-hour heat movement immediately.
func (s *Scheduler) Cycle(ctx context.Context) (int, error) {
	cycleID := uuid.NewString()
	started := s.clock.Now()
	log := s.logger.With(zap.String("cycle_id", cycleID))

	now := s.clock.Now().In(trend.ChinaTZ)
	slots := s.pendingSlots(now)
	if !s.started {
		s.started = true
		slots = appendUnique(slots, Slot{Date: trend.DateLabel(now), Hour: now.Hour()})
	}
	if len(slots) == 0 {
		log.Debug("no pending slots")
		return 0, nil
	}
	log.Info("cycle started", zap.Int("pending", len(slots)))

	remaining := 0
	for _, slot := range slots {
		done, err := s.processSlot(ctx, log, slot)
		if err != nil {
			if ctx.Err() != nil {
				return remaining, err
			}
			log.Warn("slot failed", zap.Stringer("slot", slot), zap.Error(err))
			remaining++
			continue
		}
		if !done {
			remaining++
		}
	}

	metrics.ObserveCycle(s.clock.Now().Sub(started))
	log.Info("cycle done",
		zap.Int("processed", len(slots)-remaining),
		zap.Int("remaining", remaining))
	return remaining, nil
}

// pendingSlots enumerates unsnapshotted slots oldest first, from the
// start of the lookback window through the current hour.
func (s *Scheduler) pendingSlots(now time.Time) []Slot {
	var slots []Slot
	for offset := s.cfg.LookbackDays; offset >= 0; offset-- {
		day := now.AddDate(0, 0, -offset)
		date := trend.DateLabel(day)
		lastHour := 23
		if offset == 0 {
			lastHour = now.Hour()
		}
		for hour := 0; hour <= lastHour; hour++ {
			if s.store.HourlySnapshotExists(date, hour) {
				continue
			}
			slots = append(slots, Slot{Date: date, Hour: hour})
		}
	}
	return slots
}

// shouldEscalate reports whether a slot is stale enough for the live
// fallback: either the escalation threshold elapsed since the slot's
// start, or the clock has moved into a later slot entirely. Never true
// before the slot starts.
func (s *Scheduler) shouldEscalate(slot Slot, now time.Time) bool {
	start, err := trend.SlotTime(slot.Date, slot.Hour)
	if err != nil {
		return false
	}
	now = now.In(trend.ChinaTZ)
	if now.Before(start) {
		return false
	}
	if now.Sub(start) >= s.cfg.EscalationThreshold {
		return true
	}
	return trend.DateLabel(now) != slot.Date || now.Hour() != slot.Hour
}

// processSlot runs the full per-slot pipeline. done=false without error
// means the slot stays pending: the snapshot is not published yet and
// the slot is too young to escalate.
func (s *Scheduler) processSlot(ctx context.Context, log *zap.Logger, slot Slot) (bool, error) {
	now := s.clock.Now().In(trend.ChinaTZ)

	entries, err := s.remote.FetchHour(ctx, slot.Date, slot.Hour)
	origin := "remote"
	// An empty payload goes through the same escalation gate as a
	// missing one: both mean the slot has no usable primary data yet.
	if err != nil || len(entries) == 0 {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil && !errors.Is(err, trend.ErrNotFound) {
			metrics.ObserveSnapshotError("remote")
			log.Warn("remote snapshot fetch failed",
				zap.Stringer("slot", slot), zap.Error(err))
		}
		if s.live == nil || !s.shouldEscalate(slot, now) {
			metrics.ObserveSlotDeferred()
			log.Debug("slot deferred", zap.Stringer("slot", slot))
			return false, nil
		}
		entries, err = s.live.FetchLatest(ctx, s.cfg.LiveLimit)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			metrics.ObserveSnapshotError("live")
			return false, fmt.Errorf("live fallback: %w", err)
		}
		origin = "fallback"
		if len(entries) == 0 {
			metrics.ObserveSlotDeferred()
			log.Warn("live ranking empty, retrying later", zap.Stringer("slot", slot))
			return false, nil
		}
	}

	if err := s.store.SaveHourlySnapshot(slot.Date, slot.Hour, entries); err != nil {
		return false, err
	}

	day, err := s.store.LoadOrEmptyArchive(slot.Date)
	if err != nil {
		return false, err
	}
	merged := 0
	for _, entry := range entries {
		if archive.Upsert(day, entry, slot.Date, slot.Hour) != nil {
			merged++
		}
	}
	if err := s.store.SaveArchive(slot.Date, day); err != nil {
		return false, err
	}
	metrics.ObserveSlot(origin)
	metrics.ObserveTopicsMerged(merged)
	log.Info("slot merged",
		zap.Stringer("slot", slot),
		zap.String("origin", origin),
		zap.Int("entries", len(entries)),
		zap.Int("topics", len(day)))

	if s.posts != nil {
		summary, err := s.posts.RefreshDate(ctx, slot.Date, s.cfg.MaxTopicsPerRun)
		if err != nil {
			if ctx.Err() != nil {
				return false, err
			}
			log.Warn("post refresh failed", zap.Stringer("slot", slot), zap.Error(err))
		}
		metrics.ObserveRefresh("refreshed", len(summary.Refreshed))
		metrics.ObserveRefresh("failed", len(summary.Failed))

		if err := s.exportHourlyPosts(ctx, slot, entries); err != nil {
			if ctx.Err() != nil {
				return false, err
			}
			log.Warn("hourly post export failed", zap.Stringer("slot", slot), zap.Error(err))
		}
	}

	// Heat only depends on snapshot fields, but aggregating after the
	// refresh keeps the persisted summary timestamp newest.
	if s.heat != nil {
		if err := s.heat.Update(slot.Date, day); err != nil {
			log.Warn("heat update failed", zap.Stringer("slot", slot), zap.Error(err))
		}
	}
	return true, nil
}

// exportHourlyPosts collects the slot's top topics' post payloads through
// the per-slot cache and writes the all/new export bundles. "New" means
// the topic first appeared in this very slot.
func (s *Scheduler) exportHourlyPosts(ctx context.Context, slot Slot, entries []trend.SnapshotEntry) error {
	day, err := s.store.LoadArchive(slot.Date)
	if err != nil {
		return err
	}

	limit := s.cfg.HourlyPostLimit
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	now := s.clock.Now()
	label := trend.HourLabel(slot.Hour)

	var all, fresh []*trend.PostFetchResult
	for _, entry := range entries[:limit] {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, ok := day[entry.Title]
		if !ok {
			continue
		}

		result, hit := s.store.LoadHourlyPostCache(slot.Date, slot.Hour, record.Slug, s.cfg.HourlyCacheTTL, now)
		if !hit {
			result = record.LatestPosts
			if result == nil {
				continue
			}
			if err := s.store.SaveHourlyPostCache(slot.Date, slot.Hour, record.Slug, result); err != nil {
				return err
			}
		}

		all = append(all, result)
		if len(record.AppearedHours) > 0 && record.AppearedHours[0] == label {
			fresh = append(fresh, result)
		}
	}
	if len(all) == 0 {
		return nil
	}
	return s.store.SaveHourlyExports(slot.Date, slot.Hour, all, fresh)
}

func appendUnique(slots []Slot, slot Slot) []Slot {
	for _, existing := range slots {
		if existing == slot {
			return slots
		}
	}
	return append(slots, slot)
}
