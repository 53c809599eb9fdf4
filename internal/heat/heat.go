// Package heat maintains the rolling daily heat summary: one aggregate
// row per day over a bounded window, derived entirely from the daily
// archives and therefore always rebuildable.
package heat

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/archive"
	"github.com/trendline/hotarchive/internal/trend"
)

// Aggregator computes and maintains the rolling heat summary.
type Aggregator struct {
	store   *archive.Store
	source  trend.SnapshotSource
	clock   trend.Clock
	maxDays int
	logger  *zap.Logger
}

// NewAggregator builds an Aggregator. source may be nil; Rebuild then
// only covers days whose archives exist on disk.
func NewAggregator(store *archive.Store, source trend.SnapshotSource, clock trend.Clock, maxDays int, logger *zap.Logger) *Aggregator {
	if maxDays <= 0 {
		maxDays = 120
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		store:   store,
		source:  source,
		clock:   clock,
		maxDays: maxDays,
		logger:  logger,
	}
}

// Summarize reduces one day's archive to its aggregate row. Ad
// placements and records with a negative heat reading are excluded
// from both the sum and the count.
func Summarize(date string, day trend.Archive) trend.DailyHeat {
	var total int64
	count := 0
	for _, record := range day {
		if record.Ad || record.Heat < 0 {
			continue
		}
		count++
		total += record.Heat
	}
	return trend.DailyHeat{Date: date, TotalHeat: total, TopicCount: count}
}

// Update folds one day's aggregate into the persisted summary: same-date
// rows are replaced, rows are kept sorted ascending, and the window is
// capped to the newest maxDays entries.
func (a *Aggregator) Update(date string, day trend.Archive) error {
	summary := a.store.LoadHeatSummary()
	summary.Data = mergeDay(summary.Data, Summarize(date, day), a.maxDays)
	summary.GeneratedAt = a.clock.Now().In(trend.ChinaTZ)
	if err := a.store.SaveHeatSummary(summary); err != nil {
		return err
	}
	a.logger.Debug("heat summary updated",
		zap.String("date", date),
		zap.Int("days", len(summary.Data)))
	return nil
}

// Rebuild regenerates the whole summary by walking maxDays back from
// today. Days with no archive on disk are reconstructed from the
// snapshot source, one fetch per hour; days that cannot be recovered at
// all are skipped rather than failing the rebuild.
func (a *Aggregator) Rebuild(ctx context.Context) (trend.HeatSummary, error) {
	today := a.clock.Now().In(trend.ChinaTZ)
	var rows []trend.DailyHeat

	for offset := 0; offset < a.maxDays; offset++ {
		if err := ctx.Err(); err != nil {
			return trend.HeatSummary{}, err
		}
		date := trend.DateLabel(today.AddDate(0, 0, -offset))

		day, err := a.store.LoadArchive(date)
		if errors.Is(err, archive.ErrNoArchive) {
			day, err = a.reconstructDay(ctx, date)
			if err != nil {
				if ctx.Err() != nil {
					return trend.HeatSummary{}, err
				}
				a.logger.Warn("day unrecoverable, skipping",
					zap.String("date", date),
					zap.Error(err))
				continue
			}
		} else if err != nil {
			return trend.HeatSummary{}, err
		}
		if len(day) == 0 {
			continue
		}
		rows = append(rows, Summarize(date, day))
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	summary := trend.HeatSummary{
		GeneratedAt: a.clock.Now().In(trend.ChinaTZ),
		Data:        rows,
	}
	if err := a.store.SaveHeatSummary(summary); err != nil {
		return trend.HeatSummary{}, err
	}
	a.logger.Info("heat summary rebuilt", zap.Int("days", len(rows)))
	return summary, nil
}

// reconstructDay replays a missing day from the published snapshots and
// persists the resulting archive. Hours never published are fine; a day
// where no hour yields anything is unrecoverable.
func (a *Aggregator) reconstructDay(ctx context.Context, date string) (trend.Archive, error) {
	if a.source == nil {
		return nil, fmt.Errorf("%s: no snapshot source for reconstruction", date)
	}

	day := trend.Archive{}
	merged := 0
	for hour := 0; hour < 24; hour++ {
		entries, err := a.source.FetchHour(ctx, date, hour)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			if !errors.Is(err, trend.ErrNotFound) {
				a.logger.Debug("hour fetch failed during reconstruction",
					zap.String("date", date),
					zap.Int("hour", hour),
					zap.Error(err))
			}
			continue
		}
		for _, entry := range entries {
			if archive.Upsert(day, entry, date, hour) != nil {
				merged++
			}
		}
	}
	if merged == 0 {
		return nil, fmt.Errorf("%s: no snapshot data available", date)
	}
	if err := a.store.SaveArchive(date, day); err != nil {
		return nil, err
	}
	a.logger.Info("day reconstructed from snapshots",
		zap.String("date", date),
		zap.Int("topics", len(day)))
	return day, nil
}

// mergeDay replaces any existing row for the same date, re-sorts, and
// trims the window from the oldest end.
func mergeDay(rows []trend.DailyHeat, row trend.DailyHeat, maxDays int) []trend.DailyHeat {
	out := rows[:0]
	for _, existing := range rows {
		if existing.Date != row.Date {
			out = append(out, existing)
		}
	}
	out = append(out, row)
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	if len(out) > maxDays {
		out = out[len(out)-maxDays:]
	}
	return out
}
