package health

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/fabric/pkg/agentmem/coord"
)

func newTestStore(t *testing.T) *coord.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := coord.New(dir, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestSnapshotReflectsStoreCounters(t *testing.T) {
	store := newTestStore(t)
	store.RecordInjection("s1", time.Unix(1700000000, 0), coord.SourceRetrieval)
	store.RecordSearch(true)
	store.RecordSearch(false)

	r := New("1.0.0-test", store, zerolog.Nop())
	line := r.Snapshot()

	require.Equal(t, "1.0.0-test", line.RuntimeVersion)
	require.Equal(t, 1, line.TrackedSessions)
	require.EqualValues(t, 1, line.LifetimeInjections)
	require.EqualValues(t, 2, line.LifetimeSearches)
	require.EqualValues(t, 1, line.SearchHits)
	require.False(t, line.CircuitBreakerOpen)
}

func TestRunEmitsImmediatelyOnStart(t *testing.T) {
	store := newTestStore(t)
	var buf bytes.Buffer
	r := New("1.0.0-test", store, zerolog.New(&buf))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	require.Contains(t, buf.String(), `"message":"health"`)
}
