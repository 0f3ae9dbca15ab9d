package driver

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/derive"
	"github.com/ethscriptions-protocol/eth-node/op-node/testlog"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
)

// fakeL1Source is an in-memory L1BlockSource backed by a fixed map of
// blocks plus a chain tip, so the Prefetcher's sliding-window and
// not-ready-eviction behavior can be tested without a live L1 RPC endpoint.
type fakeL1Source struct {
	mu     sync.Mutex
	blocks map[uint64]*eth.L1Block
	tip    eth.L1BlockRef
	calls  map[uint64]int
}

func newFakeL1Source(tip uint64) *fakeL1Source {
	return &fakeL1Source{
		blocks: make(map[uint64]*eth.L1Block),
		tip:    eth.L1BlockRef{Number: tip},
		calls:  make(map[uint64]int),
	}
}

func (f *fakeL1Source) put(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[n] = &eth.L1Block{Number: n, Hash: common.BigToHash(new(big.Int).SetUint64(n))}
}

func (f *fakeL1Source) BlockByNumber(ctx context.Context, n uint64) (*eth.L1Block, error) {
	f.mu.Lock()
	f.calls[n]++
	b, ok := f.blocks[n]
	f.mu.Unlock()
	if !ok {
		return nil, ethereum.NotFound
	}
	return b, nil
}

func (f *fakeL1Source) ChainTip(ctx context.Context) (eth.L1BlockRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tip, nil
}

func newTestPrefetcher(t *testing.T, source L1BlockSource, pc PrefetcherConfig) *Prefetcher {
	t.Helper()
	cfg := testProposerConfig()
	det := derive.NewDetector(testlog.NopLogger(), cfg)
	return NewPrefetcher(testlog.NopLogger(), cfg, source, det, pc)
}

func TestPrefetcherFetchResolvesAvailableBlock(t *testing.T) {
	source := newFakeL1Source(10)
	source.put(5)
	p := newTestPrefetcher(t, source, PrefetcherConfig{Ahead: 2, PoolSize: 2, TipRefresh: time.Minute})

	bundle, err := p.Fetch(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, uint64(5), bundle.Block.Number)
}

func TestPrefetcherFetchNotReadyEvictsForRetry(t *testing.T) {
	source := newFakeL1Source(10)
	p := newTestPrefetcher(t, source, PrefetcherConfig{Ahead: 2, PoolSize: 2, TipRefresh: time.Minute})

	_, err := p.Fetch(context.Background(), 6)
	require.ErrorIs(t, err, ErrNotReady)

	source.put(6)
	bundle, err := p.Fetch(context.Background(), 6)
	require.NoError(t, err, "after eviction a retry must re-fetch rather than replay the stale not-ready result")
	require.Equal(t, uint64(6), bundle.Block.Number)
}

func TestPrefetcherEnsurePrefetchedBoundsByAheadAndTip(t *testing.T) {
	source := newFakeL1Source(12)
	for n := uint64(10); n <= 12; n++ {
		source.put(n)
	}
	p := newTestPrefetcher(t, source, PrefetcherConfig{Ahead: 5, PoolSize: 2, TipRefresh: time.Minute})

	require.NoError(t, p.EnsurePrefetched(context.Background(), 10))

	for n := uint64(10); n <= 12; n++ {
		_, err := p.Fetch(context.Background(), n)
		require.NoError(t, err)
	}
}

func TestPrefetcherClearOlderThanDropsPromisesBelowThreshold(t *testing.T) {
	source := newFakeL1Source(10)
	for n := uint64(1); n <= 3; n++ {
		source.put(n)
	}
	p := newTestPrefetcher(t, source, PrefetcherConfig{Ahead: 0, PoolSize: 2, TipRefresh: time.Minute})

	for n := uint64(1); n <= 3; n++ {
		_, err := p.Fetch(context.Background(), n)
		require.NoError(t, err)
	}

	p.ClearOlderThan(3)
	p.mu.Lock()
	_, stillPresent1 := p.promises[1]
	_, stillPresent3 := p.promises[3]
	p.mu.Unlock()
	require.False(t, stillPresent1)
	require.True(t, stillPresent3)
}

func TestPrefetcherDetectsOperationsForEachTransaction(t *testing.T) {
	source := newFakeL1Source(10)
	to := common.HexToAddress("0x01")
	source.blocks[4] = &eth.L1Block{
		Number: 4,
		Transactions: []eth.L1Transaction{
			{TxHash: common.HexToHash("0xaa"), To: &to, Input: []byte("data:,hello")},
		},
	}
	p := newTestPrefetcher(t, source, PrefetcherConfig{Ahead: 0, PoolSize: 1, TipRefresh: time.Minute})

	bundle, err := p.Fetch(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, bundle.Ops, 1)
	require.Equal(t, derive.OpCreateFromInput, bundle.Ops[0].Kind)
}
