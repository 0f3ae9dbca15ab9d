package driver

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
)

func openTestCursor(t *testing.T) *Cursor {
	t.Helper()
	c, err := OpenCursor(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

func TestCursorNextL1BlockNotFoundInitially(t *testing.T) {
	c := openTestCursor(t)
	_, ok, err := c.NextL1Block(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCursorNextL1BlockRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openTestCursor(t)

	require.NoError(t, c.SetNextL1Block(ctx, 12345))
	n, ok, err := c.NextL1Block(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(12345), n)

	require.NoError(t, c.SetNextL1Block(ctx, 12346))
	n, ok, err = c.NextL1Block(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(12346), n, "a later write must overwrite the earlier cursor value")
}

func TestCursorHeadCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openTestCursor(t)

	_, ok, err := c.HeadCache(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	hc := eth.HeadCache{
		Unsafe:    eth.L2BlockRef{Hash: common.HexToHash("0x01"), Number: 10},
		Safe:      eth.L2BlockRef{Hash: common.HexToHash("0x02"), Number: 9},
		Finalized: eth.L2BlockRef{Hash: common.HexToHash("0x03"), Number: 8},
	}
	require.NoError(t, c.SetHeadCache(ctx, hc))

	got, ok, err := c.HeadCache(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hc, got)
}

func TestCursorSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c1, err := OpenCursor(dir)
	require.NoError(t, err)
	require.NoError(t, c1.SetNextL1Block(ctx, 777))
	require.NoError(t, c1.Close())

	c2, err := OpenCursor(dir)
	require.NoError(t, err)
	defer c2.Close()

	n, ok, err := c2.NextL1Block(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(777), n)
}
