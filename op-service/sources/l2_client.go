package sources

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethscriptions-protocol/eth-node/op-service/client"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
)

// L2Client provides the unauthenticated, read-only L2 bindings used by the
// StorageReader (spec.md §4.6) and the Validator (spec.md §4.7): eth_call
// against the Ethscriptions predeploy, and receipt/block lookups for the
// EventDecoder.
type L2Client struct {
	rpc client.RPC
	log log.Logger
}

func NewL2Client(rpc client.RPC, log log.Logger) *L2Client {
	return &L2Client{rpc: rpc, log: log}
}

// CallMsg is the subset of go-ethereum's ethereum.CallMsg this client
// needs for eth_call against the Ethscriptions contract.
type CallMsg struct {
	To   common.Address
	Data []byte
}

// Call performs eth_call at the given block tag, returning the raw return
// data. A contract revert surfaces as a non-nil error; callers that treat
// revert as "not found" (spec.md §4.6) should check for it explicitly.
func (c *L2Client) Call(ctx context.Context, msg CallMsg, tag eth.BlockTag) ([]byte, error) {
	arg := map[string]any{
		"to":   msg.To,
		"data": hexutil.Bytes(msg.Data),
	}
	var result hexutil.Bytes
	if err := c.rpc.CallContext(ctx, &result, "eth_call", arg, tag.Arg()); err != nil {
		return nil, fmt.Errorf("eth_call to %s failed: %w", msg.To, err)
	}
	return result, nil
}

// HeaderByTag fetches the L2 header at the given tag, used to seed the head
// cache from the execution client's latest/safe/finalized headers.
func (c *L2Client) HeaderByTag(ctx context.Context, tag eth.BlockTag) (*types.Header, error) {
	var header *types.Header
	if err := c.rpc.CallContext(ctx, &header, "eth_getBlockByNumber", tag.Arg(), false); err != nil {
		return nil, fmt.Errorf("failed to fetch L2 header: %w", err)
	}
	if header == nil {
		return nil, fmt.Errorf("L2 header not found for tag %v", tag)
	}
	return header, nil
}

// BlockReceipts fetches every receipt in the L2 block at the given tag, for
// the EventDecoder (spec.md §4.5).
func (c *L2Client) BlockReceipts(ctx context.Context, tag eth.BlockTag) ([]*types.Receipt, error) {
	var receipts []*types.Receipt
	if err := c.rpc.CallContext(ctx, &receipts, "eth_getBlockReceipts", tag.Arg()); err != nil {
		return nil, fmt.Errorf("failed to fetch L2 block receipts: %w", err)
	}
	return receipts, nil
}
