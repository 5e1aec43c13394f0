package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmem/fabric/internal/store/db"
)

func newTestChain(t *testing.T) *Chain {
	t.Helper()
	database, err := db.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	return New(database)
}

func TestAppendChainsHashesInOrder(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	r0, err := c.Append(ctx, "owner1", "entry-0", "create")
	require.NoError(t, err)
	require.Equal(t, "", r0.PrevHash)
	require.Equal(t, 0, r0.Sequence)

	r1, err := c.Append(ctx, "owner1", "entry-1", "create")
	require.NoError(t, err)
	require.Equal(t, r0.ThisHash, r1.PrevHash)
	require.Equal(t, 1, r1.Sequence)
}

func TestVerifySucceedsOnIntactChain(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	for i := 0; i < 5; i++ {
		_, err := c.Append(ctx, "owner1", "entry", "create")
		require.NoError(t, err)
	}

	res, err := c.Verify(ctx, "owner1")
	require.NoError(t, err)
	require.True(t, res.OK)
}

func TestVerifyDetectsBrokenLink(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	for i := 0; i < 3; i++ {
		_, err := c.Append(ctx, "owner1", "entry", "create")
		require.NoError(t, err)
	}

	_, err := c.db.Exec(ctx, `UPDATE memory_chain SET this_hash='tampered' WHERE sequence=1`)
	require.NoError(t, err)

	res, err := c.Verify(ctx, "owner1")
	require.NoError(t, err)
	require.True(t, res.Broken)
	require.Equal(t, 1, res.AtSequence)
}

func TestIsTrustedDefaultsFalseUntilSet(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	trusted, err := c.IsTrusted(ctx, "owner1")
	require.NoError(t, err)
	require.False(t, trusted)

	require.NoError(t, c.SetTrusted(ctx, "owner1", true))
	trusted, err = c.IsTrusted(ctx, "owner1")
	require.NoError(t, err)
	require.True(t, trusted)

	require.NoError(t, c.SetTrusted(ctx, "owner1", false))
	trusted, err = c.IsTrusted(ctx, "owner1")
	require.NoError(t, err)
	require.False(t, trusted)
}

func TestSetTrustedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	require.NoError(t, c.SetTrusted(ctx, "owner1", true))
	require.NoError(t, c.SetTrusted(ctx, "owner1", true))

	trusted, err := c.IsTrusted(ctx, "owner1")
	require.NoError(t, err)
	require.True(t, trusted)
}

func TestOwnersAreIndependentChains(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	_, err := c.Append(ctx, "owner1", "a", "create")
	require.NoError(t, err)
	r, err := c.Append(ctx, "owner2", "b", "create")
	require.NoError(t, err)
	require.Equal(t, 0, r.Sequence)
	require.Equal(t, "", r.PrevHash)
}
