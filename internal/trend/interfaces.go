package trend

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound marks an hour whose snapshot has not been published yet.
// Distinct from other fetch failures: it means "not ready", not "broken".
var ErrNotFound = errors.New("snapshot not found")

// SnapshotSource fetches the published snapshot for one (date, hour) slot.
type SnapshotSource interface {
	FetchHour(ctx context.Context, date string, hour int) ([]SnapshotEntry, error)
}

// LiveSource scrapes the current ranking directly. Lower fidelity than a
// published snapshot; may legitimately return an empty list under rate
// limiting.
type LiveSource interface {
	FetchLatest(ctx context.Context, limit int) ([]SnapshotEntry, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
