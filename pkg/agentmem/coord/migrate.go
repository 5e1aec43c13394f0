package coord

import "encoding/json"

// legacyStateV1 is the pre-v2 on-disk shape: the circuit breaker fields were
// flat on the root object instead of nested under "circuitBreaker".
type legacyStateV1 struct {
	Version             int                         `json:"version"`
	LastInjectionTime   int64                       `json:"lastInjectionTime"`
	ConsecutiveFailures int                          `json:"consecutiveFailures"`
	BackoffUntil        int64                        `json:"backoffUntil"`
	AgentWindows        map[string]*WriteWindow      `json:"agentWindows"`
	SessionInjections   map[string]*InjectionRecord  `json:"sessionInjectionCounts"`
	Stats               Stats                        `json:"stats"`
}

// migrateState upgrades raw bytes of any known prior schema version into the
// current State shape. Unknown or corrupt payloads return a fresh state
// rather than erroring, since a bad coordination file should never block an
// agent's turn.
func migrateState(raw []byte) *State {
	if len(raw) == 0 {
		return newState()
	}

	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return newState()
	}

	switch probe.Version {
	case StateVersion:
		var s State
		if err := json.Unmarshal(raw, &s); err != nil {
			return newState()
		}
		normalize(&s)
		return &s
	case 0, 1:
		var legacy legacyStateV1
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return newState()
		}
		s := &State{
			Version:           StateVersion,
			LastInjectionTime: legacy.LastInjectionTime,
			CircuitBreaker: CircuitBreakerState{
				ConsecutiveFailures: legacy.ConsecutiveFailures,
				BackoffUntil:        legacy.BackoffUntil,
			},
			AgentWindows:      legacy.AgentWindows,
			SessionInjections: legacy.SessionInjections,
			Stats:             legacy.Stats,
		}
		normalize(s)
		return s
	default:
		// Future/unknown version: tolerate it as best-effort, don't erase data.
		var s State
		if err := json.Unmarshal(raw, &s); err != nil {
			return newState()
		}
		s.Version = StateVersion
		normalize(&s)
		return &s
	}
}

func normalize(s *State) {
	if s.AgentWindows == nil {
		s.AgentWindows = map[string]*WriteWindow{}
	}
	if s.SessionInjections == nil {
		s.SessionInjections = map[string]*InjectionRecord{}
	}
}
