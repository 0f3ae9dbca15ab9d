package eth

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Bytes32 is a fixed-size 32 byte array with JSON hex marshalling, mirroring
// the teacher's `eth.Bytes32` used for scalar fee parameters.
type Bytes32 [32]byte

func (b Bytes32) String() string {
	return hexutil.Encode(b[:])
}

func (b Bytes32) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Bytes32) UnmarshalJSON(text []byte) error {
	var s string
	if err := jsonUnquote(text, &s); err != nil {
		return err
	}
	decoded, err := hexutil.Decode(s)
	if err != nil {
		return err
	}
	if len(decoded) != len(b) {
		return fmt.Errorf("expected 32 bytes, got %d", len(decoded))
	}
	copy(b[:], decoded)
	return nil
}

func jsonUnquote(text []byte, out *string) error {
	return json.Unmarshal(text, out)
}

// SystemConfig mirrors the on-chain system configuration the derivation
// pipeline needs: batcher identity and Ecotone fee scalars. The ESIP
// activation table is not part of it; it lives in rollup.Config.
type SystemConfig struct {
	BatcherAddr common.Address
	Overhead    Bytes32
	Scalar      Bytes32

	BaseFeeScalar     uint32
	BlobBaseFeeScalar uint32
}

// EcotoneScalars reads byte 0 of Scalar as a version marker. For version 1
// it returns the BlobBaseFeeScalar and BaseFeeScalar fields; for version 0
// it returns a zero blob base fee scalar and BaseFeeScalar; any other
// version is an error. The remaining Scalar bytes and Overhead are not read.
func (c *SystemConfig) EcotoneScalars() (blobBaseFeeScalar, baseFeeScalar uint32, err error) {
	if c.Scalar[0] == 1 {
		return c.BlobBaseFeeScalar, c.BaseFeeScalar, nil
	}
	if c.Scalar[0] != 0 {
		return 0, 0, fmt.Errorf("unrecognized scalar version %d", c.Scalar[0])
	}
	return 0, c.BaseFeeScalar, nil
}

// PayloadAttributes is a typed mirror of the Engine API's PayloadAttributesV3
// object, built by the Proposer and passed to engine_forkchoiceUpdatedV3.
type PayloadAttributes struct {
	Timestamp             hexutil.Uint64        `json:"timestamp"`
	PrevRandao             Bytes32               `json:"prevRandao"`
	SuggestedFeeRecipient common.Address        `json:"suggestedFeeRecipient"`
	Withdrawals           *types.Withdrawals    `json:"withdrawals,omitempty"`
	ParentBeaconBlockRoot *common.Hash          `json:"parentBeaconBlockRoot,omitempty"`
	Transactions          []hexutil.Bytes       `json:"transactions,omitempty"`
	NoTxPool              bool                  `json:"noTxPool,omitempty"`
	GasLimit              *hexutil.Uint64       `json:"gasLimit,omitempty"`
}

// ExecutionPayload is a typed mirror of ExecutionPayloadV3, as returned by
// engine_getPayloadV3 and submitted to engine_newPayloadV3.
type ExecutionPayload struct {
	ParentHash    common.Hash     `json:"parentHash"`
	FeeRecipient  common.Address  `json:"feeRecipient"`
	StateRoot     Bytes32         `json:"stateRoot"`
	ReceiptsRoot  Bytes32         `json:"receiptsRoot"`
	LogsBloom     hexutil.Bytes   `json:"logsBloom"`
	PrevRandao    Bytes32         `json:"prevRandao"`
	BlockNumber   hexutil.Uint64  `json:"blockNumber"`
	GasLimit      hexutil.Uint64  `json:"gasLimit"`
	GasUsed       hexutil.Uint64  `json:"gasUsed"`
	Timestamp     hexutil.Uint64  `json:"timestamp"`
	ExtraData     hexutil.Bytes   `json:"extraData"`
	BaseFeePerGas *hexutil.Big    `json:"baseFeePerGas"`
	BlockHash     common.Hash     `json:"blockHash"`
	Transactions  []hexutil.Bytes `json:"transactions"`
	Withdrawals   types.Withdrawals `json:"withdrawals"`
	BlobGasUsed   *hexutil.Uint64 `json:"blobGasUsed,omitempty"`
	ExcessBlobGas *hexutil.Uint64 `json:"excessBlobGas,omitempty"`
}

func (p *ExecutionPayload) ID() BlockID {
	return BlockID{Hash: p.BlockHash, Number: uint64(p.BlockNumber)}
}

// PayloadID is the opaque handle engine_forkchoiceUpdatedV3 returns and
// engine_getPayloadV3 consumes.
type PayloadID [8]byte

func (id PayloadID) String() string {
	return hexutil.Encode(id[:])
}

// ForkchoiceState is a typed mirror of ForkchoiceStateV1.
type ForkchoiceState struct {
	HeadBlockHash      common.Hash `json:"headBlockHash"`
	SafeBlockHash      common.Hash `json:"safeBlockHash"`
	FinalizedBlockHash common.Hash `json:"finalizedBlockHash"`
}

// PayloadStatusV1 is the status object embedded in forkchoiceUpdated and
// newPayload responses.
type PayloadStatusV1 struct {
	Status          string       `json:"status"`
	LatestValidHash *common.Hash `json:"latestValidHash"`
	ValidationError *string      `json:"validationError"`
}

const (
	ExecutionValid    = "VALID"
	ExecutionInvalid  = "INVALID"
	ExecutionSyncing  = "SYNCING"
	ExecutionAccepted = "ACCEPTED"
)

// ForkchoiceUpdatedResult is the full response of engine_forkchoiceUpdatedV3.
type ForkchoiceUpdatedResult struct {
	PayloadStatus PayloadStatusV1 `json:"payloadStatus"`
	PayloadID     *PayloadID      `json:"payloadId"`
}

// HeadCache is the tuple of cursors described in spec.md §3, mirrored from
// the most recent Engine API responses. Only the driver goroutine writes
// it, so it needs no internal locking (spec.md §5).
type HeadCache struct {
	Unsafe    L2BlockRef
	Safe      L2BlockRef
	Finalized L2BlockRef
}

func (c HeadCache) ForkchoiceState() ForkchoiceState {
	return ForkchoiceState{
		HeadBlockHash:      c.Unsafe.Hash,
		SafeBlockHash:      c.Safe.Hash,
		FinalizedBlockHash: c.Finalized.Hash,
	}
}

// WeiToGwei is a small convenience used by metrics/log lines.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e9))
	out, _ := f.Float64()
	return out
}
