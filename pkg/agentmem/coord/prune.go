package coord

import "sort"

// Prune removes session-injection records older than pruneAge and, if more
// than pruneMaxSessions remain, evicts the oldest until the count fits —
// keeping the coordination store from growing without bound across a
// long-running host's lifetime.
func (s *Store) Prune() {
	_ = s.withLock(func(st *State) error {
		now := s.nowMs()
		cutoff := now - pruneAge.Milliseconds()
		for id, rec := range st.SessionInjections {
			if rec.LastUpdatedMs != 0 && rec.LastUpdatedMs < cutoff {
				delete(st.SessionInjections, id)
			}
		}
		if len(st.SessionInjections) <= pruneMaxSessions {
			st.Stats.TrackedSessions = len(st.SessionInjections)
			return nil
		}

		type kv struct {
			id  string
			rec *InjectionRecord
		}
		all := make([]kv, 0, len(st.SessionInjections))
		for id, rec := range st.SessionInjections {
			all = append(all, kv{id, rec})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].rec.LastUpdatedMs < all[j].rec.LastUpdatedMs })

		excess := len(all) - pruneMaxSessions
		for i := 0; i < excess; i++ {
			delete(st.SessionInjections, all[i].id)
		}
		st.Stats.TrackedSessions = len(st.SessionInjections)
		return nil
	})
}
