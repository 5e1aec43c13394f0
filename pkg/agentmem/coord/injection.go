package coord

import "time"

// InjectionCheckResult is the response of CheckInjection.
type InjectionCheckResult struct {
	Allowed      bool
	Reason       string
	CurrentCount int
}

// CheckInjection reports whether an injection may proceed for sessionID,
// whose backing session file was born at fileBirth. It is the sole gate
// enforcing the per-session injection cap across process restarts.
//
// fileBirth moving backward versus the stored value is treated as file
// corruption and denies the injection outright. fileBirth moving forward by
// more than sessionRecreateGrace is treated as the session file having been
// recreated (e.g. truncated and restarted); the persisted count is reset to
// zero and the injection is allowed.
func (s *Store) CheckInjection(sessionID string, fileBirth time.Time) InjectionCheckResult {
	var result InjectionCheckResult
	_ = s.withLock(func(st *State) error {
		now := s.nowMs()
		birthMs := fileBirth.UnixMilli()

		rec := st.SessionInjections[sessionID]
		if rec == nil {
			rec = &InjectionRecord{}
			st.SessionInjections[sessionID] = rec
		}

		if rec.LastFileBirthMs != 0 && birthMs < rec.LastFileBirthMs {
			result = InjectionCheckResult{Allowed: false, Reason: "session file birth moved backward (corruption guard)", CurrentCount: rec.Count}
			return nil
		}

		if rec.LastFileBirthMs != 0 && birthMs > rec.LastFileBirthMs+sessionRecreateGrace.Milliseconds() {
			rec.Count = 0
			rec.LastFileBirthMs = birthMs
		} else if rec.LastFileBirthMs == 0 {
			rec.LastFileBirthMs = birthMs
		}

		if rec.Count >= maxInjectionsPerSession {
			result = InjectionCheckResult{
				Allowed:      false,
				Reason:       "at injection limit (5/5)",
				CurrentCount: rec.Count,
			}
			return nil
		}

		if st.LastInjectionTime != 0 && now-st.LastInjectionTime < globalInjectionCooldown.Milliseconds() {
			result = InjectionCheckResult{Allowed: false, Reason: "global injection cooldown", CurrentCount: rec.Count}
			return nil
		}

		result = InjectionCheckResult{Allowed: true, CurrentCount: rec.Count}
		return nil
	})
	return result
}

// RecordInjection atomically increments sessionID's injection count, updates
// the global last-injection instant, and bumps lifetime stats.
func (s *Store) RecordInjection(sessionID string, fileBirth time.Time, source InjectionSource) {
	_ = s.withLock(func(st *State) error {
		now := s.nowMs()
		rec := st.SessionInjections[sessionID]
		if rec == nil {
			rec = &InjectionRecord{}
			st.SessionInjections[sessionID] = rec
		}
		rec.Count++
		rec.LastUpdatedMs = now
		if rec.LastFileBirthMs == 0 {
			rec.LastFileBirthMs = fileBirth.UnixMilli()
		}
		st.LastInjectionTime = now
		st.Stats.LifetimeInjections++
		if source == SourceFallback {
			st.Stats.Fallbacks++
		}
		st.Stats.TrackedSessions = len(st.SessionInjections)
		return nil
	})
}
