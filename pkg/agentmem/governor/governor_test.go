package governor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/fabric/pkg/agentmem/coord"
	"github.com/agentmem/fabric/pkg/agentmem/transcript"
)

type stubRetriever struct {
	content string
	err     error
}

func (s stubRetriever) Retrieve(ctx context.Context, sessionFile string) (string, error) {
	return s.content, s.err
}

type slowRetriever struct{ delay time.Duration }

func (s slowRetriever) Retrieve(ctx context.Context, sessionFile string) (string, error) {
	select {
	case <-time.After(s.delay):
		return "## Retrieved Context\nslow body\n", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type stubFallback struct {
	content string
}

func (s stubFallback) Recover() string { return s.content }

func newTestGovernor(t *testing.T, retriever Retriever, fb Fallback) (*Governor, string) {
	t.Helper()
	dir := t.TempDir()
	// Every clock reading moves past the coordination store's 30s global
	// injection cooldown, so consecutive Decide calls are gated only by the
	// per-session cap.
	clock := time.Now()
	tick := func() time.Time {
		clock = clock.Add(31 * time.Second)
		return clock
	}
	store, err := coord.New(filepath.Join(dir, "state"), zerolog.Nop(), coord.WithClock(tick))
	require.NoError(t, err)

	sessionFile := filepath.Join(dir, "main.jsonl")
	require.NoError(t, os.WriteFile(sessionFile, []byte("{}\n"), 0o644))

	pointerPath := filepath.Join(dir, "pointers.json")
	require.NoError(t, os.WriteFile(pointerPath, []byte(`{"agent:tester:main":{"sessionId":"s1","sessionFile":"`+sessionFile+`"}}`), 0o644))
	pointers := transcript.NewPointerResolver(pointerPath)

	g := New(store, pointers, retriever, fb, zerolog.Nop())
	return g, sessionFile
}

func TestDecideUsesRetrieverWhenAvailable(t *testing.T) {
	g, _ := newTestGovernor(t, stubRetriever{content: "## Retrieved Context\nsome body\n"}, stubFallback{content: "## Recovered Context (Fallback)\nbody\n"})
	d := g.Decide(context.Background(), "tester", "s1")
	require.True(t, d.Inject)
	require.Equal(t, coord.SourceRetrieval, d.Source)
}

func TestDecideFallsBackWhenRetrieverEmpty(t *testing.T) {
	g, _ := newTestGovernor(t, stubRetriever{content: ""}, stubFallback{content: "## Recovered Context (Fallback)\nbody\n"})
	d := g.Decide(context.Background(), "tester", "s1")
	require.True(t, d.Inject)
	require.Equal(t, coord.SourceFallback, d.Source)
}

func TestDecideSkipsWithNoSources(t *testing.T) {
	g, _ := newTestGovernor(t, stubRetriever{content: ""}, stubFallback{content: ""})
	d := g.Decide(context.Background(), "tester", "s1")
	require.False(t, d.Inject)
}

func TestDecideSkipsOnRetrieverError(t *testing.T) {
	g, _ := newTestGovernor(t, stubRetriever{content: "", err: errors.New("boom")}, stubFallback{content: ""})
	d := g.Decide(context.Background(), "tester", "s1")
	require.False(t, d.Inject)
}

func TestDecideSkipsWithoutSessionPointer(t *testing.T) {
	g, _ := newTestGovernor(t, stubRetriever{content: "x"}, nil)
	d := g.Decide(context.Background(), "unknown-agent", "s1")
	require.False(t, d.Inject)
	require.Contains(t, d.Reason, "pointer")
}

func TestDecideEnforcesInjectionBudget(t *testing.T) {
	g, _ := newTestGovernor(t, stubRetriever{content: "## Retrieved Context\nbody\n"}, nil)
	for i := 0; i < 5; i++ {
		d := g.Decide(context.Background(), "tester", "s1")
		require.True(t, d.Inject, "injection %d should be allowed", i+1)
	}
	d := g.Decide(context.Background(), "tester", "s1")
	require.False(t, d.Inject)
	require.Contains(t, d.Reason, "limit")
}

func TestGuardRejectsNestedHeaderAndOversizedContent(t *testing.T) {
	_, ok := guard("## Retrieved Context\nfoo\n## Retrieved Context\nbar\n")
	require.False(t, ok)

	huge := make([]byte, maxContentChars+1)
	for i := range huge {
		huge[i] = 'a'
	}
	_, ok = guard(string(huge))
	require.False(t, ok)
}

func TestDecideRespectsContextCancellation(t *testing.T) {
	g, _ := newTestGovernor(t, slowRetriever{delay: time.Hour}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d := g.Decide(ctx, "tester", "s1")
	require.False(t, d.Inject)
	require.Contains(t, d.Reason, "budget")
}
