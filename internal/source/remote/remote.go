// Package remote implements the primary snapshot source: a versioned,
// hour-bucketed JSON resource published once per hour.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/trend"
)

// Config locates the snapshot resource.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Source fetches published hourly snapshots over HTTP.
type Source struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Source.
func New(cfg Config, logger *zap.Logger) *Source {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// FetchHour retrieves the snapshot for one (date, hour) slot. A 404
// means the hour has not been published yet and surfaces as
// trend.ErrNotFound; anything else unusual is a real failure.
func (s *Source) FetchHour(ctx context.Context, date string, hour int) ([]trend.SnapshotEntry, error) {
	url := fmt.Sprintf("%s/%s/%s.json", s.cfg.BaseURL, date, trend.HourLabel(hour))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s %02d: %w", date, hour, trend.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: http %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	var entries []trend.SnapshotEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	for i := range entries {
		if entries[i].Rank == 0 {
			entries[i].Rank = i + 1
		}
	}
	return entries, nil
}
