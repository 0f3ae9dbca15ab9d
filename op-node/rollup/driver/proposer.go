package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/derive"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
	"github.com/ethscriptions-protocol/eth-node/op-service/retry"
)

// ProposerState names the per-block state machine of spec.md §4.4.
type ProposerState int

const (
	StateIdle ProposerState = iota
	StatePreparing
	StatePayloadRequested
	StatePayloadReady
	StateCommitted
	StateFailed
)

func (s ProposerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StatePayloadRequested:
		return "payload_requested"
	case StatePayloadReady:
		return "payload_ready"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EngineAPI is the subset of op-service/sources.EngineClient the Proposer
// drives (spec.md §4.4 steps 1-5).
type EngineAPI interface {
	ForkchoiceUpdate(ctx context.Context, state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error)
	GetPayload(ctx context.Context, id eth.PayloadID) (*eth.ExecutionPayload, error)
	NewPayload(ctx context.Context, payload *eth.ExecutionPayload, parentBeaconBlockRoot *common.Hash) (*eth.PayloadStatusV1, error)
}

// EngineCallConfig is the per-call retry policy (spec.md §4.4 "Timeouts":
// 5 attempts, 0.5s base, capped at 4s).
type EngineCallConfig struct {
	MaxAttempts int
	Strategy    retry.Strategy
}

func DefaultEngineCallConfig() EngineCallConfig {
	return EngineCallConfig{
		MaxAttempts: 5,
		Strategy:    retry.ExponentialStrategy{Base: 500 * time.Millisecond, Max: 4 * time.Second, Jitter: 0.2},
	}
}

// ProposerConfig bundles the safe/finalized lag depths (spec.md §6) applied
// when advancing the forkchoice state after committing a block.
type ProposerConfig struct {
	SafeLagBlocks      uint64
	FinalizedLagBlocks uint64
	Engine             EngineCallConfig
}

func DefaultProposerConfig() ProposerConfig {
	return ProposerConfig{SafeLagBlocks: 10, FinalizedLagBlocks: 50, Engine: DefaultEngineCallConfig()}
}

// Proposer drives one or more L2 block commits per L1 block, per spec.md
// §4.4's state machine: IDLE → PREPARING → PAYLOAD_REQUESTED →
// PAYLOAD_READY → COMMITTED, or FAILED on an unrecoverable Engine response.
// Only the driver goroutine touches a Proposer, so it needs no locking.
type Proposer struct {
	log     log.Logger
	cfg     *rollup.Config
	engine  EngineAPI
	builder *derive.Builder
	pc      ProposerConfig

	state ProposerState
	head  eth.HeadCache

	seqNumber uint64

	// history holds the committed L2BlockRefs needed to look safe/finalized
	// up by block number rather than latch them once a threshold is first
	// crossed; trimmed back to max(SafeLagBlocks, FinalizedLagBlocks) blocks
	// behind the most recent unsafe head.
	history []eth.L2BlockRef
}

func NewProposer(log log.Logger, cfg *rollup.Config, engine EngineAPI, builder *derive.Builder, pc ProposerConfig, initialHead eth.HeadCache) *Proposer {
	return &Proposer{log: log, cfg: cfg, engine: engine, builder: builder, pc: pc, state: StateIdle, head: initialHead}
}

func (p *Proposer) State() ProposerState { return p.state }
func (p *Proposer) Head() eth.HeadCache  { return p.head }

// ProcessL1Block commits the deposits derived from one L1 block, inserting
// filler blocks first if L1 has advanced by more than one L2 block interval
// since the current unsafe head (spec.md §4.4 "Filler blocks"). Returns
// every committed payload in order (fillers first, then the block carrying
// ops). seqNumber resets to zero whenever l1Block starts a new epoch (its
// number differs from the current head's L1Origin).
func (p *Proposer) ProcessL1Block(ctx context.Context, l1Block *eth.L1Block, ops []derive.Operation) ([]*eth.ExecutionPayload, error) {
	if l1Block.Number != p.head.Unsafe.L1Origin.Number {
		p.seqNumber = 0
	}

	var committed []*eth.ExecutionPayload
	for p.head.Unsafe.Time > 0 && l1Block.Time > p.head.Unsafe.Time && l1Block.Time-p.head.Unsafe.Time > p.cfg.BlockTime {
		payload, err := p.commitFiller(ctx, l1Block)
		if err != nil {
			return committed, err
		}
		committed = append(committed, payload)
		p.seqNumber++
	}

	timestamp := l1Block.Time
	if timestamp <= p.head.Unsafe.Time {
		timestamp = p.head.Unsafe.Time + p.cfg.BlockTime
	}

	txs, err := p.buildDeposits(l1Block, ops)
	if err != nil {
		return committed, derive.NewCriticalError(fmt.Errorf("failed to build deposit list: %w", err))
	}

	l1Origin := eth.BlockID{Hash: l1Block.Hash, Number: l1Block.Number}
	payload, err := p.commitBlock(ctx, txs, timestamp, l1Block.MixHash, l1Origin)
	if err != nil {
		return committed, err
	}
	committed = append(committed, payload)
	p.seqNumber++
	return committed, nil
}

// commitFiller commits one timestamp-only block containing just the
// L1-attributes deposit, advancing by exactly one L2 block interval
// (spec.md §4.4 "each filler monotonically advances by the L2 block time").
func (p *Proposer) commitFiller(ctx context.Context, l1Block *eth.L1Block) (*eth.ExecutionPayload, error) {
	attrsTx, err := derive.L1AttributesDepositBytes(p.seqNumber, l1Block.Info())
	if err != nil {
		return nil, derive.NewCriticalError(fmt.Errorf("failed to build filler attributes deposit: %w", err))
	}
	timestamp := p.head.Unsafe.Time + p.cfg.BlockTime
	l1Origin := eth.BlockID{Hash: l1Block.Hash, Number: l1Block.Number}
	return p.commitBlock(ctx, [][]byte{attrsTx}, timestamp, l1Block.MixHash, l1Origin)
}

// buildDeposits assembles the RLP-encoded transaction list for one L2
// block: the L1-attributes deposit first, then one deposit per Operation
// (spec.md §4.4 step 1 "transactions").
func (p *Proposer) buildDeposits(l1Block *eth.L1Block, ops []derive.Operation) ([][]byte, error) {
	attrsTx, err := derive.L1AttributesDepositBytes(p.seqNumber, l1Block.Info())
	if err != nil {
		return nil, fmt.Errorf("failed to build attributes deposit: %w", err)
	}
	txs := [][]byte{attrsTx}

	var subIndex uint64
	for _, op := range ops {
		if op.Kind == derive.OpMultiTransfer {
			deposits, err := p.builder.BuildMulti(l1Block.Hash, op)
			if err != nil {
				return nil, err
			}
			for _, dep := range deposits {
				raw, err := types.NewTx(dep).MarshalBinary()
				if err != nil {
					return nil, fmt.Errorf("failed to encode multi-transfer deposit: %w", err)
				}
				txs = append(txs, raw)
			}
			continue
		}

		dep, err := p.builder.Build(l1Block.Hash, l1Block.Number, op, subIndex)
		if err != nil {
			return nil, err
		}
		subIndex++
		if dep == nil {
			continue // malformed operation, dropped by the Builder (spec.md §4.3)
		}
		raw, err := types.NewTx(dep).MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to encode deposit: %w", err)
		}
		txs = append(txs, raw)
	}
	return txs, nil
}

// commitBlock runs the five-step Engine API protocol for a single L2 block
// (spec.md §4.4 steps 1-6).
func (p *Proposer) commitBlock(ctx context.Context, txs [][]byte, timestamp uint64, prevRandao common.Hash, l1Origin eth.BlockID) (*eth.ExecutionPayload, error) {
	p.state = StatePreparing

	attrs := &eth.PayloadAttributes{
		Timestamp:             hexutil.Uint64(timestamp),
		PrevRandao:            eth.Bytes32(prevRandao),
		SuggestedFeeRecipient: common.Address{},
		Withdrawals:           &types.Withdrawals{},
		ParentBeaconBlockRoot: &common.Hash{},
		Transactions:          toHexutilBytes(txs),
		NoTxPool:              true,
		GasLimit:              gasLimitPtr(rollup.L2BlockGasLimit),
	}

	fc := p.head.ForkchoiceState()
	fcRes, err := p.engineCall(ctx, "engine_forkchoiceUpdatedV3 (start)", func(ctx context.Context) (*eth.ForkchoiceUpdatedResult, error) {
		return p.engine.ForkchoiceUpdate(ctx, &fc, attrs)
	})
	if err != nil {
		p.state = StateFailed
		return nil, err
	}
	if fcRes.PayloadStatus.Status == eth.ExecutionInvalid {
		p.state = StateFailed
		return nil, derive.NewCriticalError(fmt.Errorf("forkchoiceUpdated rejected attributes: %s", validationMsg(fcRes.PayloadStatus.ValidationError)))
	}
	if fcRes.PayloadID == nil {
		p.state = StateFailed
		return nil, derive.NewTemporaryError(fmt.Errorf("forkchoiceUpdated did not return a payload id"))
	}
	p.state = StatePayloadRequested

	payload, err := p.engineCallPayload(ctx, "engine_getPayloadV3", func(ctx context.Context) (*eth.ExecutionPayload, error) {
		return p.engine.GetPayload(ctx, *fcRes.PayloadID)
	})
	if err != nil {
		p.state = StateFailed
		return nil, err
	}
	p.state = StatePayloadReady

	status, err := p.engineCallStatus(ctx, "engine_newPayloadV3", func(ctx context.Context) (*eth.PayloadStatusV1, error) {
		return p.engine.NewPayload(ctx, payload, attrs.ParentBeaconBlockRoot)
	})
	if err != nil {
		p.state = StateFailed
		return nil, err
	}
	if status.Status != eth.ExecutionValid {
		p.state = StateFailed
		return nil, derive.NewCriticalError(fmt.Errorf("newPayload rejected block: %s (%s)", status.Status, validationMsg(status.ValidationError)))
	}

	newUnsafe := eth.L2BlockRef{
		Hash:       payload.BlockHash,
		Number:     uint64(payload.BlockNumber),
		ParentHash: payload.ParentHash,
		Time:       uint64(payload.Timestamp),
		L1Origin:   l1Origin,

		SequenceNumber: p.seqNumber,
	}
	newHead := p.lagForkchoice(newUnsafe)

	commitFC := newHead.ForkchoiceState()
	commitRes, err := p.engineCall(ctx, "engine_forkchoiceUpdatedV3 (commit)", func(ctx context.Context) (*eth.ForkchoiceUpdatedResult, error) {
		return p.engine.ForkchoiceUpdate(ctx, &commitFC, nil)
	})
	if err != nil {
		p.state = StateFailed
		return nil, err
	}
	if commitRes.PayloadStatus.Status == eth.ExecutionInvalid {
		p.state = StateFailed
		return nil, derive.NewCriticalError(fmt.Errorf("forkchoiceUpdated commit rejected: %s", validationMsg(commitRes.PayloadStatus.ValidationError)))
	}

	p.head = newHead
	p.state = StateCommitted
	return payload, nil
}

// lagForkchoice advances unsafe to the newly committed block and looks
// safe/finalized up at newUnsafe.Number minus their configured lag depths
// (spec.md §4.4 step 5, §6), maintaining a sliding gap behind unsafe rather
// than latching once the threshold is first crossed. Before a given depth's
// target block exists, the prior safe/finalized ref is held as-is.
func (p *Proposer) lagForkchoice(newUnsafe eth.L2BlockRef) eth.HeadCache {
	p.recordHistory(newUnsafe)

	safe := p.head.Safe
	if newUnsafe.Number >= p.pc.SafeLagBlocks {
		if ref, ok := p.refAtHeight(newUnsafe.Number - p.pc.SafeLagBlocks); ok {
			safe = ref
		}
	}
	finalized := p.head.Finalized
	if newUnsafe.Number >= p.pc.FinalizedLagBlocks {
		if ref, ok := p.refAtHeight(newUnsafe.Number - p.pc.FinalizedLagBlocks); ok {
			finalized = ref
		}
	}
	return eth.HeadCache{Unsafe: newUnsafe, Safe: safe, Finalized: finalized}
}

// recordHistory appends newUnsafe to the lag-lookup window and drops any
// entries older than the larger of the two configured lag depths.
func (p *Proposer) recordHistory(newUnsafe eth.L2BlockRef) {
	p.history = append(p.history, newUnsafe)

	maxLag := p.pc.SafeLagBlocks
	if p.pc.FinalizedLagBlocks > maxLag {
		maxLag = p.pc.FinalizedLagBlocks
	}
	cutoff := int64(newUnsafe.Number) - int64(maxLag)

	i := 0
	for i < len(p.history) && int64(p.history[i].Number) < cutoff {
		i++
	}
	p.history = p.history[i:]
}

// refAtHeight finds the committed ref at the given L2 block number within
// the retained lag-lookup window.
func (p *Proposer) refAtHeight(number uint64) (eth.L2BlockRef, bool) {
	for _, ref := range p.history {
		if ref.Number == number {
			return ref, true
		}
	}
	return eth.L2BlockRef{}, false
}

func (p *Proposer) engineCall(ctx context.Context, label string, fn func(context.Context) (*eth.ForkchoiceUpdatedResult, error)) (*eth.ForkchoiceUpdatedResult, error) {
	res, err := retry.Do(ctx, p.pc.Engine.MaxAttempts, p.pc.Engine.Strategy, func() (*eth.ForkchoiceUpdatedResult, error) {
		return fn(ctx)
	})
	if err != nil {
		return nil, derive.NewTemporaryError(fmt.Errorf("%s: %w", label, err))
	}
	return res, nil
}

func (p *Proposer) engineCallPayload(ctx context.Context, label string, fn func(context.Context) (*eth.ExecutionPayload, error)) (*eth.ExecutionPayload, error) {
	res, err := retry.Do(ctx, p.pc.Engine.MaxAttempts, p.pc.Engine.Strategy, func() (*eth.ExecutionPayload, error) {
		return fn(ctx)
	})
	if err != nil {
		return nil, derive.NewTemporaryError(fmt.Errorf("%s: %w", label, err))
	}
	return res, nil
}

func (p *Proposer) engineCallStatus(ctx context.Context, label string, fn func(context.Context) (*eth.PayloadStatusV1, error)) (*eth.PayloadStatusV1, error) {
	res, err := retry.Do(ctx, p.pc.Engine.MaxAttempts, p.pc.Engine.Strategy, func() (*eth.PayloadStatusV1, error) {
		return fn(ctx)
	})
	if err != nil {
		return nil, derive.NewTemporaryError(fmt.Errorf("%s: %w", label, err))
	}
	return res, nil
}

func toHexutilBytes(txs [][]byte) []hexutil.Bytes {
	out := make([]hexutil.Bytes, len(txs))
	for i, t := range txs {
		out[i] = hexutil.Bytes(t)
	}
	return out
}

func gasLimitPtr(v uint64) *hexutil.Uint64 {
	h := hexutil.Uint64(v)
	return &h
}

func validationMsg(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
