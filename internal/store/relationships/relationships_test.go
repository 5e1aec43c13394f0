package relationships

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmem/fabric/internal/store/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	return New(database)
}

func TestCreateRejectsDuplicateTriple(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateParams{SourceEntryID: "a", TargetEntryID: "b", RelationshipType: TypeBlockedBy})
	require.NoError(t, err)

	_, err = s.Create(ctx, CreateParams{SourceEntryID: "a", TargetEntryID: "b", RelationshipType: TypeBlockedBy})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestCreateAllowsSameEntriesDifferentType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateParams{SourceEntryID: "a", TargetEntryID: "b", RelationshipType: TypeBlockedBy})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateParams{SourceEntryID: "a", TargetEntryID: "b", RelationshipType: TypeRelatesTo})
	require.NoError(t, err)
}

func TestForFiltersByDirectionAndType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateParams{SourceEntryID: "a", TargetEntryID: "b", RelationshipType: TypeBlockedBy})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateParams{SourceEntryID: "c", TargetEntryID: "a", RelationshipType: TypeRelatesTo})
	require.NoError(t, err)

	out, err := s.For(ctx, "a", ListFilter{Direction: "outgoing"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, TypeBlockedBy, out[0].RelationshipType)

	in, err := s.For(ctx, "a", ListFilter{Direction: "incoming"})
	require.NoError(t, err)
	require.Len(t, in, 1)
	require.Equal(t, "c", in[0].SourceEntryID)
}

func TestBlockingChainFollowsTransitiveDependencies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateParams{SourceEntryID: "task-1", TargetEntryID: "task-2", RelationshipType: TypeBlockedBy})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateParams{SourceEntryID: "task-2", TargetEntryID: "task-3", RelationshipType: TypeDependsOn})
	require.NoError(t, err)
	// Non-blocking edges must not be traversed into the chain.
	_, err = s.Create(ctx, CreateParams{SourceEntryID: "task-3", TargetEntryID: "task-4", RelationshipType: TypeRelatesTo})
	require.NoError(t, err)

	chain, err := s.BlockingChain(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, chain, 2)

	targets := []string{chain[0].TargetEntryID, chain[1].TargetEntryID}
	require.ElementsMatch(t, []string{"task-2", "task-3"}, targets)
}

func TestChildrenFindsInstancesAndSubAgents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateParams{SourceEntryID: "instance-1", TargetEntryID: "type-level", RelationshipType: TypeInstanceOf})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateParams{SourceEntryID: "sub-agent-1", TargetEntryID: "instance-1", RelationshipType: TypeSubAgentOf})
	require.NoError(t, err)

	children, err := s.Children(ctx, "type-level")
	require.NoError(t, err)
	require.Equal(t, []string{"instance-1"}, children)

	grandchildren, err := s.Children(ctx, "instance-1")
	require.NoError(t, err)
	require.Equal(t, []string{"sub-agent-1"}, grandchildren)
}
