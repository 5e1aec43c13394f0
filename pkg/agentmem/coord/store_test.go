package coord

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, zerolog.Nop(), WithInitialBackoff(time.Second))
	require.NoError(t, err)
	return s
}

func TestCanWriteAllowsUnderLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < maxWritesPerWindow; i++ {
		res := s.CanWrite("agent-a")
		require.True(t, res.Allowed)
		s.RecordWrite("agent-a")
	}
	res := s.CanWrite("agent-a")
	require.False(t, res.Allowed)
	require.Equal(t, "rate window saturated", res.Reason)
}

func TestWriteWindowsAreIndependentPerAgent(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < maxWritesPerWindow; i++ {
		s.RecordWrite("agent-a")
	}
	require.False(t, s.CanWrite("agent-a").Allowed)
	require.True(t, s.CanWrite("agent-b").Allowed)
}

func TestRecordFailureOpensCircuitBreakerAfterThreshold(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < circuitBreakerTripThreshold-1; i++ {
		s.RecordFailure()
	}
	require.True(t, s.CanWrite("agent-a").Allowed, "breaker should not trip before threshold")

	s.RecordFailure()
	res := s.CanWrite("agent-a")
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestRecordWriteClearsFailureCount(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < circuitBreakerTripThreshold-1; i++ {
		s.RecordFailure()
	}
	s.RecordWrite("agent-a")
	snap := s.Snapshot()
	require.Equal(t, 0, snap.ConsecutiveFailures)
}

// TestInjectionBudgetAcrossRestart exercises a process restart mid-session:
// the injection count must persist across the restart, not reset to zero.
func TestInjectionBudgetAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	birth := time.Unix(1700000000, 0)

	// Every clock reading moves past globalInjectionCooldown, so the
	// per-session cap, not the cooldown, is what gates these injections.
	clock := birth
	tick := func() time.Time {
		clock = clock.Add(globalInjectionCooldown + time.Second)
		return clock
	}

	run := func() *Store {
		s, err := New(dir, zerolog.Nop(), WithClock(tick))
		require.NoError(t, err)
		return s
	}

	s := run()
	for i := 0; i < maxInjectionsPerSession; i++ {
		check := s.CheckInjection("session-s", birth)
		require.True(t, check.Allowed, "injection %d should be allowed", i+1)
		s.RecordInjection("session-s", birth, SourceRetrieval)
	}

	sixth := s.CheckInjection("session-s", birth)
	require.False(t, sixth.Allowed)
	require.Equal(t, "at injection limit (5/5)", sixth.Reason)

	// Restart: new Store instance, same on-disk state.
	s2 := run()
	stillDenied := s2.CheckInjection("session-s", birth)
	require.False(t, stillDenied.Allowed)

	// Session file recreated: birth instant advances past the grace window.
	newBirth := birth.Add(3 * time.Second)
	recreated := s2.CheckInjection("session-s", newBirth)
	require.True(t, recreated.Allowed)
	require.Equal(t, 0, recreated.CurrentCount)
}

func TestCheckInjectionDeniesOnBirthMovingBackward(t *testing.T) {
	s := newTestStore(t)
	birth := time.Unix(1700000000, 0)
	s.RecordInjection("s1", birth, SourceRetrieval)

	earlier := birth.Add(-time.Minute)
	res := s.CheckInjection("s1", earlier)
	require.False(t, res.Allowed)
	require.Contains(t, res.Reason, "corruption guard")
}

func TestGlobalInjectionCooldown(t *testing.T) {
	s := newTestStore(t)
	birth := time.Unix(1700000000, 0)
	s.RecordInjection("s1", birth, SourceRetrieval)

	res := s.CheckInjection("s2", birth)
	require.False(t, res.Allowed)
	require.Equal(t, "global injection cooldown", res.Reason)
}

func TestPruneEvictsOldSessions(t *testing.T) {
	s := newTestStore(t)
	fixedNow := time.Unix(2000000000, 0)
	s.now = func() time.Time { return fixedNow }

	old := fixedNow.Add(-8 * 24 * time.Hour)
	s.RecordInjection("old-session", old, SourceRetrieval)
	st := s.load()
	st.SessionInjections["old-session"].LastUpdatedMs = old.UnixMilli()
	require.NoError(t, s.save(st))

	s.RecordInjection("fresh-session", fixedNow, SourceRetrieval)

	s.Prune()
	snap := s.Snapshot()
	require.Equal(t, 1, snap.TrackedSessions)
}

func TestLockReclaimsStaleLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := dir + "/coordination.json.lock"
	require.NoError(t, acquireLock(lockPath))
	// Backdate the lock file to simulate a crashed holder.
	old := time.Now().Add(-staleLockAge - time.Second)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	err := acquireLock(lockPath)
	require.NoError(t, err, "a stale lock should be reclaimed rather than block")
}
