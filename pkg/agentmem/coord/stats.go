package coord

// HealthSnapshot is what C12 reports on a health line.
type HealthSnapshot struct {
	TrackedSessions     int
	LifetimeInjections  int64
	LifetimeSearches    int64
	SearchHits          int64
	Fallbacks           int64
	BreakerOpen         bool
	ConsecutiveFailures int
}

// Snapshot returns the current stats and breaker state without mutating anything.
func (s *Store) Snapshot() HealthSnapshot {
	st := s.load()
	now := s.nowMs()
	return HealthSnapshot{
		TrackedSessions:     len(st.SessionInjections),
		LifetimeInjections:  st.Stats.LifetimeInjections,
		LifetimeSearches:    st.Stats.LifetimeSearches,
		SearchHits:          st.Stats.SearchHits,
		Fallbacks:           st.Stats.Fallbacks,
		BreakerOpen:         st.CircuitBreaker.BackoffUntil > now,
		ConsecutiveFailures: st.CircuitBreaker.ConsecutiveFailures,
	}
}

// RecordSearch bumps lifetime search counters. hit indicates at least one
// result cleared the relevance threshold.
func (s *Store) RecordSearch(hit bool) {
	_ = s.withLock(func(st *State) error {
		st.Stats.LifetimeSearches++
		if hit {
			st.Stats.SearchHits++
		}
		return nil
	})
}
