// Package coord implements the Coordination Store (C1): a small file-backed
// record, guarded by a sidecar lock file, shared by every sibling agent
// running on one host. It is intentionally NOT an in-process singleton: an
// in-process singleton would only coordinate goroutines within one process,
// defeating the point of coordinating across sibling agent processes.
package coord

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"github.com/rs/zerolog"
)

const (
	// writeWindow is the sliding window over which per-agent writes are rate limited.
	writeWindow = 60 * time.Second
	// maxWritesPerWindow is the write ceiling enforced cooperatively via CanWrite.
	maxWritesPerWindow = 30

	// circuitBreakerTripThreshold is the consecutive-failure count that opens the breaker.
	circuitBreakerTripThreshold = 5
	// circuitBreakerMaxBackoff caps the exponential backoff window.
	circuitBreakerMaxBackoff = time.Hour

	// maxInjectionsPerSession bounds injections(s) across the session's lifetime.
	maxInjectionsPerSession = 5
	// globalInjectionCooldown is the minimum gap between any two injections host-wide.
	globalInjectionCooldown = 30 * time.Second
	// sessionRecreateGrace is how far forward a session file's birth instant must
	// move before the session is treated as recreated (and its count reset).
	sessionRecreateGrace = 2 * time.Second

	pruneAge        = 7 * 24 * time.Hour
	pruneMaxSessions = 100
)

// Store is the file-backed coordination store for one host.
type Store struct {
	statePath      string
	lockPath       string
	log            zerolog.Logger
	now            func() time.Time
	initialBackoff time.Duration
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithClock overrides the store's time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithInitialBackoff overrides the base circuit-breaker backoff (default 1s).
func WithInitialBackoff(d time.Duration) Option {
	return func(s *Store) { s.initialBackoff = d }
}

// New creates a Store backed by stateDir/coordination.json (and its sidecar
// .lock file). stateDir is created if missing.
func New(stateDir string, log zerolog.Logger, opts ...Option) (*Store, error) {
	if stateDir == "" {
		return nil, fmt.Errorf("coord: empty state dir")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("coord: mkdir state dir: %w", err)
	}
	s := &Store{
		statePath:      filepath.Join(stateDir, "coordination.json"),
		lockPath:       filepath.Join(stateDir, "coordination.json.lock"),
		log:            log.With().Str("component", "coord").Logger(),
		now:            time.Now,
		initialBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// withLock acquires the sidecar lock, runs fn against the freshly loaded
// state, persists any mutation fn made, and releases the lock. Any failure
// to acquire the lock is logged and treated as a silent skip — callers get
// whatever zero-value default fn's return conveys.
func (s *Store) withLock(fn func(st *State) error) error {
	if err := acquireLock(s.lockPath); err != nil {
		s.log.Warn().Err(err).Msg("coord: lock acquisition failed, skipping state mutation")
		return err
	}
	defer releaseLock(s.lockPath)

	st := s.load()
	if err := fn(st); err != nil {
		return err
	}
	if err := s.save(st); err != nil {
		s.log.Warn().Err(err).Msg("coord: failed to persist state")
		// A lost write here only costs one hook's worth of coordination state,
		// not worth failing the agent's turn over.
	}
	return nil
}

// load reads the state file, tolerating a missing or corrupt file by
// returning migrated defaults.
func (s *Store) load() *State {
	raw, err := os.ReadFile(s.statePath)
	if err != nil {
		return newState()
	}
	return migrateState(raw)
}

// save atomically rewrites the state file via temp file + rename.
func (s *Store) save(st *State) error {
	payload, err := json5.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("coord: marshal state: %w", err)
	}
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("coord: write temp state: %w", err)
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		return fmt.Errorf("coord: rename state: %w", err)
	}
	return nil
}

func (s *Store) nowMs() int64 { return s.now().UnixMilli() }

// CanWriteResult is the response of CanWrite.
type CanWriteResult struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// CanWrite reports whether agentKey may perform a Store write right now.
func (s *Store) CanWrite(agentKey string) CanWriteResult {
	var result CanWriteResult
	err := s.withLock(func(st *State) error {
		now := s.nowMs()

		if st.CircuitBreaker.BackoffUntil > now {
			result = CanWriteResult{
				Allowed:    false,
				Reason:     "circuit breaker open",
				RetryAfter: time.Duration(st.CircuitBreaker.BackoffUntil-now) * time.Millisecond,
			}
			return nil
		}

		win := st.AgentWindows[agentKey]
		if win == nil || now-win.WindowStartMs >= writeWindow.Milliseconds() {
			result = CanWriteResult{Allowed: true}
			return nil
		}
		if win.Count >= maxWritesPerWindow {
			retryAfter := time.Duration(writeWindow.Milliseconds()-(now-win.WindowStartMs)) * time.Millisecond
			result = CanWriteResult{Allowed: false, Reason: "rate window saturated", RetryAfter: retryAfter}
			return nil
		}
		result = CanWriteResult{Allowed: true}
		return nil
	})
	if err != nil {
		// Lock failure: default to allowing the write through rather than
		// wedging the hook — the Store's own rate limiting is the backstop.
		return CanWriteResult{Allowed: true}
	}
	return result
}

// RecordWrite increments agentKey's write window, rolling it if expired,
// and clears the consecutive-failure counter (a success resets backoff tracking).
func (s *Store) RecordWrite(agentKey string) {
	_ = s.withLock(func(st *State) error {
		now := s.nowMs()
		win := st.AgentWindows[agentKey]
		if win == nil || now-win.WindowStartMs >= writeWindow.Milliseconds() {
			win = &WriteWindow{WindowStartMs: now, Count: 0}
			st.AgentWindows[agentKey] = win
		}
		win.Count++
		st.CircuitBreaker.ConsecutiveFailures = 0
		return nil
	})
}

// RecordFailure increments the global consecutive-failure count and, once it
// reaches circuitBreakerTripThreshold, opens the breaker with exponential
// backoff capped at one hour.
func (s *Store) RecordFailure() {
	_ = s.withLock(func(st *State) error {
		st.CircuitBreaker.ConsecutiveFailures++
		failures := st.CircuitBreaker.ConsecutiveFailures
		if failures >= circuitBreakerTripThreshold {
			shift := failures - circuitBreakerTripThreshold
			backoff := s.initialBackoff * time.Duration(1<<uint(min(shift, 20)))
			if backoff > circuitBreakerMaxBackoff {
				backoff = circuitBreakerMaxBackoff
			}
			st.CircuitBreaker.BackoffUntil = s.nowMs() + backoff.Milliseconds()
		}
		return nil
	})
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
