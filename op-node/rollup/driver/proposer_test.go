package driver

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/derive"
	"github.com/ethscriptions-protocol/eth-node/op-node/testlog"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
)

// fakeEngine is a scripted in-memory stand-in for op-service/sources.EngineClient,
// advancing block number/hash deterministically so the Proposer's state
// machine and forkchoice lag can be asserted without a live execution client.
type fakeEngine struct {
	nextNumber  uint64
	pendingTime uint64
	fcuCalls    int
	getCalls    int
	newCalls    int
}

func (f *fakeEngine) ForkchoiceUpdate(ctx context.Context, state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
	f.fcuCalls++
	if attrs == nil {
		return &eth.ForkchoiceUpdatedResult{PayloadStatus: eth.PayloadStatusV1{Status: eth.ExecutionValid}}, nil
	}
	f.pendingTime = uint64(attrs.Timestamp)
	id := eth.PayloadID{byte(f.nextNumber)}
	return &eth.ForkchoiceUpdatedResult{PayloadStatus: eth.PayloadStatusV1{Status: eth.ExecutionValid}, PayloadID: &id}, nil
}

// GetPayload echoes back the timestamp requested in the preceding
// ForkchoiceUpdate call, so the Proposer's filler-insertion loop (which
// keys off the committed block's timestamp) advances realistically.
func (f *fakeEngine) GetPayload(ctx context.Context, id eth.PayloadID) (*eth.ExecutionPayload, error) {
	f.getCalls++
	f.nextNumber++
	return &eth.ExecutionPayload{
		BlockNumber: hexutil.Uint64(f.nextNumber),
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(f.nextNumber)),
		ParentHash:  common.BigToHash(new(big.Int).SetUint64(f.nextNumber - 1)),
		Timestamp:   hexutil.Uint64(f.pendingTime),
	}, nil
}

func (f *fakeEngine) NewPayload(ctx context.Context, payload *eth.ExecutionPayload, parentBeaconBlockRoot *common.Hash) (*eth.PayloadStatusV1, error) {
	f.newCalls++
	return &eth.PayloadStatusV1{Status: eth.ExecutionValid}, nil
}

func testProposerConfig() *rollup.Config {
	cfg, err := rollup.NewConfig(rollup.Sepolia, 1000, common.HexToAddress("0x4200000000000000000000000000000000000099"))
	if err != nil {
		panic(err)
	}
	return cfg
}

func newTestProposer(t *testing.T, engine *fakeEngine, head eth.HeadCache) *Proposer {
	t.Helper()
	cfg := testProposerConfig()
	builder := derive.NewBuilder(testlog.NopLogger(), cfg, derive.BuilderConfig{})
	pc := DefaultProposerConfig()
	pc.SafeLagBlocks = 2
	pc.FinalizedLagBlocks = 4
	return NewProposer(testlog.NopLogger(), cfg, engine, builder, pc, head)
}

func TestProposerProcessL1BlockCommitsSingleBlock(t *testing.T) {
	engine := &fakeEngine{}
	head := eth.HeadCache{Unsafe: eth.L2BlockRef{Time: 1000, L1Origin: eth.BlockID{Number: 9}}}
	p := newTestProposer(t, engine, head)

	l1Block := &eth.L1Block{Number: 10, Time: 1000 + rollup.L2BlockTime, Hash: common.HexToHash("0xaa")}
	payloads, err := p.ProcessL1Block(context.Background(), l1Block, nil)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	require.Equal(t, StateCommitted, p.State())
	require.Equal(t, l1Block.Number, p.Head().Unsafe.L1Origin.Number)
}

func TestProposerProcessL1BlockInsertsFillersWhenL1AdvancesFarther(t *testing.T) {
	engine := &fakeEngine{}
	head := eth.HeadCache{Unsafe: eth.L2BlockRef{Time: 1000, L1Origin: eth.BlockID{Number: 9}}}
	p := newTestProposer(t, engine, head)

	// L1 time advanced by three L2 block intervals: two fillers then the
	// block carrying ops.
	l1Block := &eth.L1Block{Number: 10, Time: 1000 + 3*rollup.L2BlockTime, Hash: common.HexToHash("0xaa")}
	payloads, err := p.ProcessL1Block(context.Background(), l1Block, nil)
	require.NoError(t, err)
	require.Len(t, payloads, 3)
}

func TestProposerSeqNumberResetsOnNewEpoch(t *testing.T) {
	engine := &fakeEngine{}
	head := eth.HeadCache{Unsafe: eth.L2BlockRef{Time: 1000, L1Origin: eth.BlockID{Number: 9}}}
	p := newTestProposer(t, engine, head)

	l1BlockA := &eth.L1Block{Number: 9, Time: 1000 + rollup.L2BlockTime/2, Hash: common.HexToHash("0xaa")}
	_, err := p.ProcessL1Block(context.Background(), l1BlockA, nil)
	require.NoError(t, err)
	require.NotZero(t, p.seqNumber)

	l1BlockB := &eth.L1Block{Number: 10, Time: 1000 + rollup.L2BlockTime/2 + rollup.L2BlockTime, Hash: common.HexToHash("0xbb")}
	_, err = p.ProcessL1Block(context.Background(), l1BlockB, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), p.seqNumber, "a new L1 origin resets the deposit sequence number before counting this block's commit")
}

func TestProposerLagForkchoiceHoldsSafeAndFinalizedUntilThreshold(t *testing.T) {
	engine := &fakeEngine{}
	head := eth.HeadCache{}
	p := newTestProposer(t, engine, head)

	below := p.lagForkchoice(eth.L2BlockRef{Number: 1})
	require.Equal(t, eth.L2BlockRef{}, below.Safe, "unsafe below the lag depth must not promote to safe")

	atLag := p.lagForkchoice(eth.L2BlockRef{Number: 2})
	require.Equal(t, uint64(0), atLag.Safe.Number, "safe lags unsafe by SafeLagBlocks=2, so unsafe=2 first promotes block 0")
}

// TestProposerLagForkchoiceMaintainsSlidingGap drives unsafe well past the
// SafeLagBlocks/FinalizedLagBlocks thresholds and asserts safe/finalized
// keep trailing unsafe by exactly their configured depth at every step,
// rather than latching onto the first block that crossed the threshold.
func TestProposerLagForkchoiceMaintainsSlidingGap(t *testing.T) {
	engine := &fakeEngine{}
	head := eth.HeadCache{}
	p := newTestProposer(t, engine, head)

	var last eth.HeadCache
	for n := uint64(1); n <= 10; n++ {
		last = p.lagForkchoice(eth.L2BlockRef{Number: n})
	}
	require.Equal(t, uint64(10), last.Unsafe.Number)
	require.Equal(t, uint64(8), last.Safe.Number, "safe must trail unsafe by SafeLagBlocks=2, not stay latched at an earlier block")
	require.Equal(t, uint64(6), last.Finalized.Number, "finalized must trail unsafe by FinalizedLagBlocks=4, not stay latched at an earlier block")

	for n := uint64(11); n <= 20; n++ {
		last = p.lagForkchoice(eth.L2BlockRef{Number: n})
	}
	require.Equal(t, uint64(18), last.Safe.Number, "the gap must keep sliding forward as unsafe keeps advancing")
	require.Equal(t, uint64(16), last.Finalized.Number)
}

func TestProposerForkchoiceRejectionFailsState(t *testing.T) {
	engine := &rejectingEngine{}
	head := eth.HeadCache{Unsafe: eth.L2BlockRef{Time: 1000, L1Origin: eth.BlockID{Number: 9}}}
	p := newTestProposer(t, nil, head)
	p.engine = engine

	l1Block := &eth.L1Block{Number: 10, Time: 1900, Hash: common.HexToHash("0xaa")}
	_, err := p.ProcessL1Block(context.Background(), l1Block, nil)
	require.Error(t, err)
	require.Equal(t, StateFailed, p.State())
}

type rejectingEngine struct{}

func (r *rejectingEngine) ForkchoiceUpdate(ctx context.Context, state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
	return &eth.ForkchoiceUpdatedResult{PayloadStatus: eth.PayloadStatusV1{Status: eth.ExecutionInvalid}}, nil
}
func (r *rejectingEngine) GetPayload(ctx context.Context, id eth.PayloadID) (*eth.ExecutionPayload, error) {
	return &eth.ExecutionPayload{}, nil
}
func (r *rejectingEngine) NewPayload(ctx context.Context, payload *eth.ExecutionPayload, parentBeaconBlockRoot *common.Hash) (*eth.PayloadStatusV1, error) {
	return &eth.PayloadStatusV1{Status: eth.ExecutionValid}, nil
}
