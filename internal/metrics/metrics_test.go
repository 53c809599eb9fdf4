package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObserveAfterInit(t *testing.T) {
	Init()
	Init() // idempotent

	ObserveSlot("remote")
	ObserveSlot("fallback")
	ObserveSlotDeferred()
	ObserveSnapshotError("remote")
	ObserveTopicsMerged(5)
	ObserveTopicsMerged(0)
	ObserveRefresh("refreshed", 2)
	ObserveRefresh("failed", 0)
	ObserveCrawlPage("ok")
	ObserveCycle(3 * time.Second)

	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "hotarchive_slots_processed_total")
}
