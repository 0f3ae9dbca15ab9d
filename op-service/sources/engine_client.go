package sources

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethscriptions-protocol/eth-node/op-service/client"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
)

// EngineClient drives the Engine API (spec.md §4.4) against an execution
// client over a JWT-authenticated RPC transport. Each method call goes
// through client.RPC, which applies its own retry budget per call; the
// Proposer adds its retry/timeout policy around these calls.
type EngineClient struct {
	rpc client.RPC
	log log.Logger
}

func NewEngineClient(rpc client.RPC, log log.Logger) *EngineClient {
	return &EngineClient{rpc: rpc, log: log}
}

// ForkchoiceUpdate calls engine_forkchoiceUpdatedV3, optionally carrying
// PayloadAttributesV3 to begin building a new payload.
func (c *EngineClient) ForkchoiceUpdate(ctx context.Context, state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
	var result eth.ForkchoiceUpdatedResult
	err := c.rpc.CallContext(ctx, &result, "engine_forkchoiceUpdatedV3", state, attrs)
	if err != nil {
		return nil, fmt.Errorf("engine_forkchoiceUpdatedV3 failed: %w", err)
	}
	return &result, nil
}

// GetPayload calls engine_getPayloadV3 to retrieve the built execution
// payload for a previously requested payload ID.
func (c *EngineClient) GetPayload(ctx context.Context, id eth.PayloadID) (*eth.ExecutionPayload, error) {
	var result eth.ExecutionPayload
	err := c.rpc.CallContext(ctx, &result, "engine_getPayloadV3", id)
	if err != nil {
		return nil, fmt.Errorf("engine_getPayloadV3 failed: %w", err)
	}
	return &result, nil
}

// NewPayload calls engine_newPayloadV3 to submit a built payload for
// execution and validation.
func (c *EngineClient) NewPayload(ctx context.Context, payload *eth.ExecutionPayload, parentBeaconBlockRoot *common.Hash) (*eth.PayloadStatusV1, error) {
	var result eth.PayloadStatusV1
	err := c.rpc.CallContext(ctx, &result, "engine_newPayloadV3", payload, []any{}, parentBeaconBlockRoot)
	if err != nil {
		return nil, fmt.Errorf("engine_newPayloadV3 failed: %w", err)
	}
	return &result, nil
}
