package derivation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmem/fabric/internal/store/db"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	database, err := db.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	return New(database)
}

func TestWriteRejectsDuplicateContent(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard(t)

	m0, err := g.Write(ctx, WriteParams{Owner: "o1", Kind: "fact", Content: "likes dark mode", SourceAgent: "A"})
	require.NoError(t, err)
	require.Equal(t, 0, m0.Depth)

	_, err = g.Write(ctx, WriteParams{Owner: "o1", Kind: "fact", Content: "likes dark mode", SourceAgent: "A"})
	require.Error(t, err)
}

func TestWriteIncrementsDepthOnlyAcrossAgents(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard(t)

	m0, err := g.Write(ctx, WriteParams{Owner: "o1", Kind: "fact", Content: "v0", SourceAgent: "A"})
	require.NoError(t, err)

	m1, err := g.Write(ctx, WriteParams{Owner: "o1", Kind: "fact", Content: "v1", SourceAgent: "B", DerivedFromMemoryID: m0.ID})
	require.NoError(t, err)
	require.Equal(t, 1, m1.Depth)

	sameAgentAgain, err := g.Write(ctx, WriteParams{Owner: "o1", Kind: "fact", Content: "v1b", SourceAgent: "B", DerivedFromMemoryID: m1.ID})
	require.NoError(t, err)
	require.Equal(t, 1, sameAgentAgain.Depth)
}

func TestWriteRejectsPastDepthCap(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard(t)

	m0, err := g.Write(ctx, WriteParams{Owner: "o1", Kind: "fact", Content: "v0", SourceAgent: "A"})
	require.NoError(t, err)
	m1, err := g.Write(ctx, WriteParams{Owner: "o1", Kind: "fact", Content: "v1", SourceAgent: "B", DerivedFromMemoryID: m0.ID})
	require.NoError(t, err)
	m2, err := g.Write(ctx, WriteParams{Owner: "o1", Kind: "fact", Content: "v2", SourceAgent: "C", DerivedFromMemoryID: m1.ID})
	require.NoError(t, err)
	m3, err := g.Write(ctx, WriteParams{Owner: "o1", Kind: "fact", Content: "v3", SourceAgent: "D", DerivedFromMemoryID: m2.ID})
	require.NoError(t, err)
	require.Equal(t, 3, m3.Depth)

	_, err = g.Write(ctx, WriteParams{Owner: "o1", Kind: "fact", Content: "v4", SourceAgent: "E", DerivedFromMemoryID: m3.ID})
	require.Error(t, err)
}

func TestCheckDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard(t)

	res, err := g.Check(ctx, WriteParams{Owner: "o1", Kind: "fact", Content: "probe only", SourceAgent: "A"})
	require.NoError(t, err)
	require.False(t, res.Duplicate)

	var count int
	require.NoError(t, g.db.QueryRow(ctx, `SELECT COUNT(1) FROM memories`).Scan(&count))
	require.Equal(t, 0, count)
}
