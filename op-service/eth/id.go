package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BlockID uniquely identifies a block by number and hash, without reference
// to which chain (L1 or L2) it belongs to.
type BlockID struct {
	Hash   common.Hash `json:"hash"`
	Number uint64      `json:"number"`
}

func (id BlockID) String() string {
	return fmt.Sprintf("%s:%d", id.Hash, id.Number)
}

// TerminalString implements the log.TerminalStringer interface so block IDs
// render compactly in the teacher's terminal log format.
func (id BlockID) TerminalString() string {
	return fmt.Sprintf("%s:%d", id.Hash.TerminalString(), id.Number)
}

// L1BlockRef is a compact reference to an L1 block, sufficient to track
// reorgs and chain progress without holding the full block body.
type L1BlockRef struct {
	Hash       common.Hash `json:"hash"`
	Number     uint64      `json:"number"`
	ParentHash common.Hash `json:"parentHash"`
	Time       uint64      `json:"timestamp"`
}

func (r L1BlockRef) ID() BlockID {
	return BlockID{Hash: r.Hash, Number: r.Number}
}

func (r L1BlockRef) String() string {
	return fmt.Sprintf("%s:%d", r.Hash, r.Number)
}

func (r L1BlockRef) TerminalString() string {
	return fmt.Sprintf("%s:%d", r.Hash.TerminalString(), r.Number)
}

// L2BlockRef additionally tracks the L1 origin that a given L2 block was
// derived from, which the proposer uses to detect the start of a new L1 epoch.
type L2BlockRef struct {
	Hash       common.Hash `json:"hash"`
	Number     uint64      `json:"number"`
	ParentHash common.Hash `json:"parentHash"`
	Time       uint64      `json:"timestamp"`
	L1Origin   BlockID     `json:"l1origin"`
	// SequenceNumber counts L2 blocks since the start of the current L1 epoch.
	SequenceNumber uint64 `json:"sequenceNumber"`
}

func (r L2BlockRef) ID() BlockID {
	return BlockID{Hash: r.Hash, Number: r.Number}
}

func (r L2BlockRef) String() string {
	return fmt.Sprintf("%s:%d", r.Hash, r.Number)
}

func (r L2BlockRef) TerminalString() string {
	return fmt.Sprintf("%s:%d", r.Hash.TerminalString(), r.Number)
}

// BlockLabel is one of the well-known Engine API block tags.
type BlockLabel string

const (
	Unsafe    BlockLabel = "latest"
	Safe      BlockLabel = "safe"
	Finalized BlockLabel = "finalized"
)

// BlockTag selects a block for an eth_call / eth_getBlockByNumber style
// request: either a well-known label, a block number, or (for reorg-safe
// reads) an EIP-1898 block-hash object.
type BlockTag struct {
	label  BlockLabel
	number *uint64
	hash   *common.Hash
}

func BlockTagLabel(l BlockLabel) BlockTag   { return BlockTag{label: l} }
func BlockTagNumber(n uint64) BlockTag      { return BlockTag{number: &n} }
func BlockTagHash(h common.Hash) BlockTag   { return BlockTag{hash: &h} }
func BlockTagLatest() BlockTag              { return BlockTag{label: Unsafe} }

// Arg returns the value to place in the `eth_call`/`eth_getStorageAt` last
// positional argument: a quantity-or-tag string, or an EIP-1898 object.
func (t BlockTag) Arg() any {
	switch {
	case t.hash != nil:
		return map[string]any{"blockHash": *t.hash}
	case t.number != nil:
		return fmt.Sprintf("0x%x", *t.number)
	case t.label != "":
		return string(t.label)
	default:
		return "latest"
	}
}
