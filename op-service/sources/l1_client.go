package sources

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethscriptions-protocol/eth-node/op-service/client"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
)

// L1ClientConfig bounds the in-memory caches an L1Client keeps. Caches are
// sized relative to the prefetcher's lookahead window (spec.md §4.1), which
// this client has no access to by default, so callers should size both
// consistently.
type L1ClientConfig struct {
	BlockRefsCacheSize int
}

func L1ClientDefaultConfig() *L1ClientConfig {
	return &L1ClientConfig{BlockRefsCacheSize: 256}
}

// L1Client provides typed bindings to retrieve L1 blocks, receipts, and
// transactions from an RPC source, for consumption by the Prefetcher
// (spec.md §4.1).
type L1Client struct {
	rpc client.RPC
	log log.Logger

	blockRefsCache *lru.Cache[common.Hash, eth.L1BlockRef]
}

func NewL1Client(rpc client.RPC, log log.Logger, cfg *L1ClientConfig) (*L1Client, error) {
	if cfg == nil {
		cfg = L1ClientDefaultConfig()
	}
	cache, err := lru.New[common.Hash, eth.L1BlockRef](cfg.BlockRefsCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create block ref cache: %w", err)
	}
	return &L1Client{rpc: rpc, log: log, blockRefsCache: cache}, nil
}

// rpcBlock mirrors the subset of the go-ethereum JSON-RPC block schema this
// client needs, decoded without pulling in ethclient's fuller,
// allocation-heavier type.
type rpcBlock struct {
	Hash         common.Hash     `json:"hash"`
	ParentHash   common.Hash     `json:"parentHash"`
	Number       hexutil.Uint64  `json:"number"`
	Timestamp    hexutil.Uint64  `json:"timestamp"`
	MixHash      common.Hash     `json:"mixHash"`
	BaseFee      *hexutil.Big    `json:"baseFeePerGas"`
	ExcessBlobGas *hexutil.Uint64 `json:"excessBlobGas"`
	Transactions []rpcTx         `json:"transactions"`
}

type rpcTx struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Input hexutil.Bytes   `json:"input"`
}

// BlockByNumber fetches block n with full transaction objects, returning
// NotFound (go-ethereum's ethereum.NotFound) if the block does not exist
// yet, per spec.md §4.1 rule 3.
func (c *L1Client) BlockByNumber(ctx context.Context, n uint64) (*eth.L1Block, error) {
	var raw *rpcBlock
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(n), true); err != nil {
		return nil, fmt.Errorf("failed to fetch L1 block %d: %w", n, err)
	}
	if raw == nil {
		return nil, ethereum.NotFound
	}
	return c.toL1Block(ctx, raw)
}

// BlockByHash is BlockByNumber keyed on hash.
func (c *L1Client) BlockByHash(ctx context.Context, h common.Hash) (*eth.L1Block, error) {
	var raw *rpcBlock
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByHash", h, true); err != nil {
		return nil, fmt.Errorf("failed to fetch L1 block %s: %w", h, err)
	}
	if raw == nil {
		return nil, ethereum.NotFound
	}
	return c.toL1Block(ctx, raw)
}

func (c *L1Client) toL1Block(ctx context.Context, raw *rpcBlock) (*eth.L1Block, error) {
	receiptsByHash, err := c.blockReceipts(ctx, raw.Hash, len(raw.Transactions))
	if err != nil {
		return nil, err
	}

	txs := make([]eth.L1Transaction, len(raw.Transactions))
	for i, t := range raw.Transactions {
		var status uint64
		var logs []*types.Log
		if r, ok := receiptsByHash[t.Hash]; ok {
			status = r.Status
			logs = r.Logs
		}
		txs[i] = eth.L1Transaction{
			TxHash: t.Hash,
			Index:  uint64(i),
			From:   t.From,
			To:     t.To,
			Input:  []byte(t.Input),
			Status: status,
			Logs:   logs,
		}
	}

	var baseFee *big.Int
	if raw.BaseFee != nil {
		baseFee = raw.BaseFee.ToInt()
	}
	var blobBaseFee *big.Int
	if raw.ExcessBlobGas != nil {
		blobBaseFee = eth.HeaderBlockInfo(&types.Header{
			ExcessBlobGas: (*uint64)(raw.ExcessBlobGas),
		}).BlobBaseFee()
	}

	block := &eth.L1Block{
		Number:       uint64(raw.Number),
		Time:         uint64(raw.Timestamp),
		Hash:         raw.Hash,
		ParentHash:   raw.ParentHash,
		MixHash:      raw.MixHash,
		BaseFee:      baseFee,
		BlobBaseFee:  blobBaseFee,
		Transactions: txs,
	}

	ref := eth.L1BlockRef{Hash: block.Hash, Number: block.Number, ParentHash: block.ParentHash, Time: block.Time}
	c.blockRefsCache.Add(ref.Hash, ref)
	return block, nil
}

// blockReceipts fetches eth_getBlockReceipts (spec.md §4.1 rule 2) and
// indexes the result by transaction hash.
func (c *L1Client) blockReceipts(ctx context.Context, blockHash common.Hash, hintSize int) (map[common.Hash]*types.Receipt, error) {
	var receipts []*types.Receipt
	if err := c.rpc.CallContext(ctx, &receipts, "eth_getBlockReceipts", blockHash); err != nil {
		return nil, fmt.Errorf("failed to fetch receipts for block %s: %w", blockHash, err)
	}
	out := make(map[common.Hash]*types.Receipt, hintSize)
	for _, r := range receipts {
		out[r.TxHash] = r
	}
	return out, nil
}

// L1BlockRefByNumber returns the lightweight block reference for block n. It
// fetches the full block, with transactions and receipts, through
// BlockByNumber and keeps only the reference fields.
func (c *L1Client) L1BlockRefByNumber(ctx context.Context, n uint64) (eth.L1BlockRef, error) {
	block, err := c.BlockByNumber(ctx, n)
	if err != nil {
		return eth.L1BlockRef{}, err
	}
	return eth.L1BlockRef{Hash: block.Hash, Number: block.Number, ParentHash: block.ParentHash, Time: block.Time}, nil
}

// ChainTip returns the current L1 head, used by the Prefetcher's loosely
// cached chain-tip check (spec.md §4.1 rule 5).
func (c *L1Client) ChainTip(ctx context.Context) (eth.L1BlockRef, error) {
	var raw *rpcBlock
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", "latest", false); err != nil {
		return eth.L1BlockRef{}, fmt.Errorf("failed to fetch L1 chain tip: %w", err)
	}
	if raw == nil {
		return eth.L1BlockRef{}, ethereum.NotFound
	}
	return eth.L1BlockRef{Hash: raw.Hash, Number: uint64(raw.Number), ParentHash: raw.ParentHash, Time: uint64(raw.Timestamp)}, nil
}
