package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmem/fabric/internal/store/db"
	"github.com/agentmem/fabric/internal/store/entries"
)

func writeSessionFile(t *testing.T, root, agentKind, sessionID string, lines []string) string {
	t.Helper()
	dir := filepath.Join(root, "agents", agentKind, "sessions")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, sessionID+".jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func msgLine(role, text, ts string) string {
	return `{"kind":"message","role":"` + role + `","content":"` + text + `","timestamp":"` + ts + `"}`
}

func TestListSortsByEarliestInstantAscending(t *testing.T) {
	root := t.TempDir()
	writeSessionFile(t, root, "main", "a", []string{msgLine("user", "hi", "2026-01-30T08:00:00Z")})
	writeSessionFile(t, root, "main", "b", []string{msgLine("user", "hi", "2026-01-30T07:00:00Z")})

	database, err := db.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	im := New(root, database, entries.New(database))

	files, err := im.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "b", files[0].SessionID)
	require.Equal(t, "a", files[1].SessionID)
}

func TestImportIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeSessionFile(t, root, "main", "a", []string{
		msgLine("user", "hello", "2026-01-30T08:00:00Z"),
		msgLine("assistant", "hi", "2026-01-30T08:00:01Z"),
	})

	database, err := db.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	store := entries.New(database)
	im := New(root, database, store)

	ctx := context.Background()
	files, err := im.List(ctx, ListFilter{})
	require.NoError(t, err)

	results := im.Import(ctx, "alice", files)
	require.Len(t, results, 1)
	require.False(t, results[0].AlreadyExisted)
	require.Equal(t, 2, results[0].MessagesImported)
	firstEntryID := results[0].EntryID

	results2 := im.Import(ctx, "alice", files)
	require.Len(t, results2, 1)
	require.True(t, results2[0].AlreadyExisted)
	require.Equal(t, firstEntryID, results2[0].EntryID)
}

func TestImportProcessesEmptyFileAlongsideOthers(t *testing.T) {
	root := t.TempDir()
	writeSessionFile(t, root, "main", "broken", nil) // empty file, no messages, still processed
	writeSessionFile(t, root, "main", "ok", []string{msgLine("user", "hi", "2026-01-30T08:00:00Z")})

	database, err := db.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	im := New(root, database, entries.New(database))

	ctx := context.Background()
	files, err := im.List(ctx, ListFilter{})
	require.NoError(t, err)

	results := im.Import(ctx, "alice", files)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
}
