// Package governor implements the Injection Governor (C3): the single
// decision point that turns "should we inject context into this turn" into
// a bounded, budget-respecting yes/no plus content, gating every other
// client-side component (C1 coordination, C4 retrieval, C5 fallback) behind
// one call.
package governor

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentmem/fabric/pkg/agentmem/coord"
	"github.com/agentmem/fabric/pkg/agentmem/fallback"
	"github.com/agentmem/fabric/pkg/agentmem/transcript"
)

const (
	// decisionBudget is the hard wall-clock ceiling on the entire
	// locate-check-retrieve-fallback decision: past this, the turn proceeds
	// uninjected rather than stall the host.
	decisionBudget = 5 * time.Second

	// maxContentChars bounds the injected block regardless of its source.
	maxContentChars = 50000
)

// Retriever is the subset of retriever.Retriever the governor needs.
type Retriever interface {
	Retrieve(ctx context.Context, sessionFile string) (string, error)
}

// Fallback is the subset of fallback.Recoverer the governor needs.
type Fallback interface {
	Recover() string
}

// Decision is the outcome of one injection attempt.
type Decision struct {
	Inject bool
	Reason string
	Source coord.InjectionSource
	Content string
}

// Governor wires coordination, retrieval, and fallback into one gated
// decision per agent turn.
type Governor struct {
	store     *coord.Store
	pointers  *transcript.PointerResolver
	retriever Retriever
	fallback  Fallback
	log       zerolog.Logger
}

// New creates a Governor. fb may be nil to disable the fallback path.
func New(store *coord.Store, pointers *transcript.PointerResolver, retriever Retriever, fb Fallback, log zerolog.Logger) *Governor {
	return &Governor{
		store:     store,
		pointers:  pointers,
		retriever: retriever,
		fallback:  fb,
		log:       log.With().Str("component", "governor").Logger(),
	}
}

// Decide runs the full injection decision for agent's current turn in its
// session sessionID. It never blocks longer than decisionBudget; on timeout
// it returns a no-op Decision rather than erroring.
func (g *Governor) Decide(ctx context.Context, agent, sessionID string) Decision {
	ctx, cancel := context.WithTimeout(ctx, decisionBudget)
	defer cancel()

	ms, ok := g.pointers.Resolve(agent)
	if !ok || ms.SessionFile == "" {
		return Decision{Reason: "no main session pointer for agent"}
	}

	fileBirth, err := transcript.Birth(ms.SessionFile)
	if err != nil {
		return Decision{Reason: "could not stat session file"}
	}

	check := g.store.CheckInjection(sessionID, fileBirth)
	if !check.Allowed {
		return Decision{Reason: check.Reason}
	}

	done := make(chan Decision, 1)
	go func() {
		done <- g.gatherContent(ctx, ms.SessionFile)
	}()

	select {
	case d := <-done:
		if d.Content == "" {
			return Decision{Reason: d.Reason}
		}
		g.store.RecordInjection(sessionID, fileBirth, d.Source)
		d.Inject = true
		return d
	case <-ctx.Done():
		g.log.Debug().Str("agent", agent).Msg("governor: decision budget exceeded, skipping")
		return Decision{Reason: "decision budget exceeded"}
	}
}

// gatherContent tries the retriever first, then the fallback recoverer, and
// applies the shared size and nested-header guards to whichever succeeds.
func (g *Governor) gatherContent(ctx context.Context, sessionFile string) Decision {
	if g.retriever != nil {
		content, err := g.retriever.Retrieve(ctx, sessionFile)
		if err != nil {
			g.log.Debug().Err(err).Msg("governor: retriever error")
		}
		if guarded, ok := guard(content); ok {
			return Decision{Content: guarded, Source: coord.SourceRetrieval}
		}
	}

	if g.fallback != nil {
		content := g.fallback.Recover()
		if guarded, ok := guard(content); ok {
			return Decision{Content: guarded, Source: coord.SourceFallback}
		}
	}

	return Decision{Reason: "no context available from retrieval or fallback"}
}

// guard enforces the maxContentChars ceiling and rejects content that
// already carries a nested context header, which would mean a previous
// injection is being echoed back in rather than fresh conversation text.
func guard(content string) (string, bool) {
	if strings.TrimSpace(content) == "" {
		return "", false
	}
	if strings.Count(content, "Retrieved Context") > 1 || strings.Count(content, "Recovered Context") > 1 {
		return "", false
	}
	if len(content) > maxContentChars {
		return "", false
	}
	return content, true
}
