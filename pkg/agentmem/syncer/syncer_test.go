package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/fabric/pkg/agentmem/coord"
	"github.com/agentmem/fabric/pkg/agentmem/provenance"
	"github.com/agentmem/fabric/pkg/agentmem/transcript"
)

type fakePoster struct {
	appends   []provenance.AppendChatStreamRequest
	reactions []provenance.ReactionRequest
	failNext  bool
}

func (f *fakePoster) AppendChatStream(ctx context.Context, req provenance.AppendChatStreamRequest) (*provenance.AppendChatStreamResponse, error) {
	if f.failNext {
		f.failNext = false
		return nil, context.DeadlineExceeded
	}
	f.appends = append(f.appends, req)
	return &provenance.AppendChatStreamResponse{OK: true, MessageCount: len(f.appends)}, nil
}

func (f *fakePoster) PostReaction(ctx context.Context, req provenance.ReactionRequest) error {
	f.reactions = append(f.reactions, req)
	return nil
}

type fakeBreaker struct{ failures int }

func (f *fakeBreaker) CanWrite(agentKey string) coord.CanWriteResult { return coord.CanWriteResult{Allowed: true} }
func (f *fakeBreaker) RecordFailure()                                { f.failures++ }

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestSyncer(t *testing.T, poster Poster, breaker Breaker) (*Syncer, string) {
	t.Helper()
	dir := t.TempDir()
	sessionFile := filepath.Join(dir, "main.jsonl")
	writeLines(t, sessionFile, nil)

	pointerPath := filepath.Join(dir, "pointers.json")
	require.NoError(t, os.WriteFile(pointerPath, []byte(`{"agent:tester:main":{"sessionId":"s1","sessionFile":"`+sessionFile+`"}}`), 0o644))
	pointers := transcript.NewPointerResolver(pointerPath)

	s := New("tester", "tester:key", dir, pointers, poster, breaker, zerolog.Nop())
	return s, sessionFile
}

func TestSyncAppendsNewMessages(t *testing.T) {
	poster := &fakePoster{}
	s, sessionFile := newTestSyncer(t, poster, &fakeBreaker{})

	writeLines(t, sessionFile, []string{
		msgLine("user", "hello there"),
		msgLine("assistant", "hi, how can I help"),
	})

	s.Sync(context.Background())
	require.Len(t, poster.appends, 2)
}

func TestSyncDoesNotReprocessUnchangedFile(t *testing.T) {
	poster := &fakePoster{}
	s, sessionFile := newTestSyncer(t, poster, &fakeBreaker{})

	writeLines(t, sessionFile, []string{msgLine("user", "one message")})
	s.Sync(context.Background())
	require.Len(t, poster.appends, 1)

	s.Sync(context.Background())
	require.Len(t, poster.appends, 1)
}

func TestSyncPostsReactionsSeparately(t *testing.T) {
	poster := &fakePoster{}
	s, sessionFile := newTestSyncer(t, poster, &fakeBreaker{})

	writeLines(t, sessionFile, []string{
		msgLine("user", "react:msg_42:👍"),
	})
	s.Sync(context.Background())
	require.Len(t, poster.reactions, 1)
	require.Equal(t, "msg_42", poster.reactions[0].TargetMessageID)
	require.Empty(t, poster.appends)
}

func TestSyncDropsNoise(t *testing.T) {
	poster := &fakePoster{}
	s, sessionFile := newTestSyncer(t, poster, &fakeBreaker{})

	writeLines(t, sessionFile, []string{
		msgLine("user", "## Retrieved Context\nstale\n(retrieved context ends)"),
		msgLine("user", "real message"),
	})
	s.Sync(context.Background())
	require.Len(t, poster.appends, 1)
	require.Equal(t, "real message", poster.appends[0].Message.Content)
}

func TestSyncResetsCursorOnFileRecreation(t *testing.T) {
	poster := &fakePoster{}
	s, sessionFile := newTestSyncer(t, poster, &fakeBreaker{})

	writeLines(t, sessionFile, []string{
		msgLine("user", "a"), msgLine("user", "b"), msgLine("user", "c"),
	})
	s.Sync(context.Background())
	require.Len(t, poster.appends, 3)

	old, _ := transcript.Birth(sessionFile)
	future := old.Add(5 * time.Second)
	writeLines(t, sessionFile, []string{msgLine("user", "d")})
	require.NoError(t, os.Chtimes(sessionFile, future, future))

	s.Sync(context.Background())
	require.Len(t, poster.appends, 4)
}

func TestSyncLeavesStateIntactAndRetriesOnPostFailure(t *testing.T) {
	poster := &fakePoster{failNext: true}
	breaker := &fakeBreaker{}
	s, sessionFile := newTestSyncer(t, poster, breaker)

	writeLines(t, sessionFile, []string{msgLine("user", "fails once")})
	s.Sync(context.Background())
	require.Empty(t, poster.appends)
	require.Equal(t, 1, breaker.failures)

	s.Sync(context.Background())
	require.Len(t, poster.appends, 1)
}

func msgLine(role, content string) string {
	escaped := ""
	for _, r := range content {
		switch r {
		case '"':
			escaped += `\"`
		case '\n':
			escaped += `\n`
		default:
			escaped += string(r)
		}
	}
	return `{"kind":"message","role":"` + role + `","content":"` + escaped + `"}`
}
