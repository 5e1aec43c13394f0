// Package health implements Health/Stats (C12): a health line emitted on
// process start and at most hourly thereafter, scheduled the way the
// teacher's pkg/cron computes "cron"-kind next-run times — via
// robfig/cron/v3's parser, driven by a plain timer rather than that
// library's own background runner.
package health

import (
	"context"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/agentmem/fabric/pkg/agentmem/coord"
)

// schedule runs the health rollup once an hour — frequent enough to catch
// a stalled snapshot quickly without flooding the log on every tick.
const schedule = "0 * * * *"

// Line is one health snapshot, matching the counters C1 tracks.
type Line struct {
	RuntimeVersion      string `json:"runtime_version"`
	TrackedSessions     int    `json:"tracked_sessions"`
	LifetimeInjections  int64  `json:"lifetime_injections"`
	LifetimeSearches    int64  `json:"lifetime_searches"`
	SearchHits          int64  `json:"search_hits"`
	Fallbacks           int64  `json:"fallbacks"`
	CircuitBreakerOpen  bool   `json:"circuit_breaker_open"`
}

// Reporter emits health lines on a schedule.
type Reporter struct {
	version string
	store   *coord.Store
	log     zerolog.Logger
}

// New creates a Reporter.
func New(version string, store *coord.Store, log zerolog.Logger) *Reporter {
	return &Reporter{version: version, store: store, log: log.With().Str("component", "health").Logger()}
}

// Snapshot builds the current Line from the coordination store's stats.
func (r *Reporter) Snapshot() Line {
	s := r.store.Snapshot()
	return Line{
		RuntimeVersion:     r.version,
		TrackedSessions:    s.TrackedSessions,
		LifetimeInjections: s.LifetimeInjections,
		LifetimeSearches:   s.LifetimeSearches,
		SearchHits:         s.SearchHits,
		Fallbacks:          s.Fallbacks,
		CircuitBreakerOpen: s.BreakerOpen,
	}
}

func (r *Reporter) emit() {
	l := r.Snapshot()
	r.log.Info().
		Str("runtime_version", l.RuntimeVersion).
		Int("tracked_sessions", l.TrackedSessions).
		Int64("lifetime_injections", l.LifetimeInjections).
		Int64("lifetime_searches", l.LifetimeSearches).
		Int64("search_hits", l.SearchHits).
		Int64("fallbacks", l.Fallbacks).
		Bool("circuit_breaker_open", l.CircuitBreakerOpen).
		Msg("health")
}

// Run emits one health line immediately, then one at every hourly tick until
// ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	r.emit()

	parser := cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)
	sched, err := parser.Parse(schedule)
	if err != nil {
		r.log.Error().Err(err).Msg("health: invalid schedule")
		return
	}

	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.emit()
		}
	}
}
