// Package derive implements the pure, side-effect-free classification of
// L1 activity into protocol operations (the Detector, spec.md §4.2), and
// the encoding of those operations into L2 deposit transactions (the
// Builder, spec.md §4.3), plus the L1-attributes system deposit and the
// L2 event decoder.
package derive

import (
	"github.com/ethereum/go-ethereum/common"
)

// OperationKind tags the variant of an Operation, replacing the dynamic
// dispatch of the teacher's Ruby mixin with an exhaustively-matched sum
// type (spec.md §9 "Dynamic dispatch → tagged variants").
type OperationKind uint8

const (
	OpCreateFromInput OperationKind = iota
	OpCreateFromEvent
	OpTransfer
	OpTransferPrevOwner
	OpMultiTransfer
)

func (k OperationKind) String() string {
	switch k {
	case OpCreateFromInput:
		return "create_from_input"
	case OpCreateFromEvent:
		return "create_from_event"
	case OpTransfer:
		return "transfer"
	case OpTransferPrevOwner:
		return "transfer_prev_owner"
	case OpMultiTransfer:
		return "multi_transfer"
	default:
		return "unknown"
	}
}

// TokenParams is the optional ESIP-20-style token metadata parsed out of a
// `data:,{json}` create. A parse failure never prevents the surrounding
// create from being emitted (spec.md §4.2 rule 1).
type TokenParams struct {
	Protocol  string
	Operation string // "deploy" | "mint"
	Tick      string
	Max       string
	Lim       string
	ID        string
	Amount    string
}

// Operation is the tagged variant described in spec.md §3. Exactly one of
// the Create*/Transfer*/MultiTransfer fields is populated, selected by Kind.
// LogIndex is -1 for input-derived operations and the originating log's
// index for event-derived ones; it is used, together with TxIndex, to
// establish the stable cross-operation ordering required by spec.md §3's
// invariant and §5's ordering guarantee.
type Operation struct {
	Kind OperationKind

	TxHash   common.Hash
	TxIndex  uint64
	LogIndex int64

	Create  *CreateOperation
	Xfer    *TransferOperation
	XferAll *MultiTransferOperation
}

// CreateOperation covers both CreateFromInput and CreateFromEvent; the two
// differ only in provenance (From is the L1 tx sender for input-derived
// creates, the emitting contract for event-derived ones) and in whether
// TokenParams can be populated. Whether the content is stored compressed is
// decided by the Builder at encode time (spec.md §9's ESIP-7 resolution),
// not by the Detector, so it has no place here.
type CreateOperation struct {
	From         common.Address
	InitialOwner common.Address
	ContentURI   string
	ESIP6        bool
	TokenParams  *TokenParams
}

type TransferOperation struct {
	From               common.Address
	To                 common.Address
	EthscriptionTxHash common.Hash
	// ExpectedPreviousOwner is set only for ESIP-2 TransferPrevOwner
	// operations (Kind == OpTransferPrevOwner).
	ExpectedPreviousOwner common.Address
}

type MultiTransferOperation struct {
	From                common.Address
	To                  common.Address
	EthscriptionTxHashes []common.Hash
}

// NewCreateFromInput builds a CreateFromInput operation.
func NewCreateFromInput(tx common.Hash, txIndex uint64, from common.Address, contentURI string, esip6 bool, tokenParams *TokenParams) Operation {
	return Operation{
		Kind:     OpCreateFromInput,
		TxHash:   tx,
		TxIndex:  txIndex,
		LogIndex: -1,
		Create: &CreateOperation{
			From:         from,
			InitialOwner: from,
			ContentURI:   contentURI,
			ESIP6:        esip6,
			TokenParams:  tokenParams,
		},
	}
}

// NewCreateFromEvent builds an ESIP-3 CreateFromEvent operation.
func NewCreateFromEvent(tx common.Hash, txIndex uint64, logIndex int64, emitter, initialOwner common.Address, contentURI string, esip6 bool) Operation {
	return Operation{
		Kind:     OpCreateFromEvent,
		TxHash:   tx,
		TxIndex:  txIndex,
		LogIndex: logIndex,
		Create: &CreateOperation{
			From:         emitter,
			InitialOwner: initialOwner,
			ContentURI:   contentURI,
			ESIP6:        esip6,
		},
	}
}

// NewTransfer builds an input-style or ESIP-1 event-style transfer.
func NewTransfer(tx common.Hash, txIndex uint64, logIndex int64, from, to common.Address, ethscriptionTxHash common.Hash) Operation {
	return Operation{
		Kind:     OpTransfer,
		TxHash:   tx,
		TxIndex:  txIndex,
		LogIndex: logIndex,
		Xfer: &TransferOperation{
			From:               from,
			To:                 to,
			EthscriptionTxHash: ethscriptionTxHash,
		},
	}
}

// NewTransferPrevOwner builds an ESIP-2 transfer-with-expected-previous-owner.
func NewTransferPrevOwner(tx common.Hash, txIndex uint64, logIndex int64, from, to common.Address, ethscriptionTxHash common.Hash, expectedPrev common.Address) Operation {
	return Operation{
		Kind:     OpTransferPrevOwner,
		TxHash:   tx,
		TxIndex:  txIndex,
		LogIndex: logIndex,
		Xfer: &TransferOperation{
			From:                  from,
			To:                    to,
			EthscriptionTxHash:    ethscriptionTxHash,
			ExpectedPreviousOwner: expectedPrev,
		},
	}
}

// NewMultiTransfer builds an ESIP-5 multi-transfer covering k>=1 hashes.
func NewMultiTransfer(tx common.Hash, txIndex uint64, from, to common.Address, hashes []common.Hash) Operation {
	return Operation{
		Kind:     OpMultiTransfer,
		TxHash:   tx,
		TxIndex:  txIndex,
		LogIndex: -1,
		XferAll: &MultiTransferOperation{
			From:                 from,
			To:                   to,
			EthscriptionTxHashes: hashes,
		},
	}
}

// Less establishes the stable ordering required by spec.md §3: ascending
// transaction index, then ascending log index (input-derived operations,
// with LogIndex -1, sort before any event-derived operation from the same
// transaction). Operations with equal (TxIndex, LogIndex) compare as not
// less in either direction, so a stable sort keeps their source order.
func Less(a, b Operation) bool {
	if a.TxIndex != b.TxIndex {
		return a.TxIndex < b.TxIndex
	}
	return a.LogIndex < b.LogIndex
}
