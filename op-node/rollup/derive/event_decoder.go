package derive

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
)

// CreationEvent mirrors EthscriptionCreated (spec.md §4.5).
type CreationEvent struct {
	TxHash             common.Hash
	Creator            common.Address
	InitialOwner       common.Address
	ContentSha         common.Hash
	EthscriptionNumber *big.Int
	PointerCount       *big.Int
}

// TransferEvent mirrors EthscriptionTransferred (spec.md §4.5).
type TransferEvent struct {
	TxHash             common.Hash
	From               common.Address
	To                 common.Address
	EthscriptionNumber *big.Int
}

// DecodedReceipt is the aggregate result of decoding one L2 receipt.
type DecodedReceipt struct {
	Creations []CreationEvent
	Transfers []TransferEvent
}

// EventDecoder parses L2 receipts emitted by the Ethscriptions predeploy
// into semantic records (spec.md §4.5). Misdecoded logs, and logs from any
// other address, are silently dropped.
type EventDecoder struct {
	cfg *rollup.Config
}

func NewEventDecoder(cfg *rollup.Config) *EventDecoder {
	return &EventDecoder{cfg: cfg}
}

// DecodeReceiptLogs implements decode_receipt_logs(receipt).
func (d *EventDecoder) DecodeReceiptLogs(receipt *types.Receipt) DecodedReceipt {
	var out DecodedReceipt
	for _, lg := range receipt.Logs {
		if lg.Address != d.cfg.EthscriptionsAddr || len(lg.Topics) == 0 {
			continue
		}
		switch lg.Topics[0] {
		case EthscriptionCreatedSig:
			if ev, ok := decodeCreationEvent(lg); ok {
				out.Creations = append(out.Creations, ev)
			}
		case EthscriptionTransferredSig:
			if ev, ok := decodeTransferEvent(lg); ok {
				out.Transfers = append(out.Transfers, ev)
			}
		}
	}
	return out
}

// DecodeBlockReceipts implements decode_block_receipts(receipts): the
// aggregate across every receipt in a block, in receipt order.
func (d *EventDecoder) DecodeBlockReceipts(receipts []*types.Receipt) DecodedReceipt {
	var agg DecodedReceipt
	for _, r := range receipts {
		dr := d.DecodeReceiptLogs(r)
		agg.Creations = append(agg.Creations, dr.Creations...)
		agg.Transfers = append(agg.Transfers, dr.Transfers...)
	}
	return agg
}

func decodeCreationEvent(lg *types.Log) (CreationEvent, bool) {
	if len(lg.Topics) != 4 || len(lg.Data) != 96 {
		return CreationEvent{}, false
	}
	var contentSha common.Hash
	copy(contentSha[:], lg.Data[0:32])
	return CreationEvent{
		TxHash:             lg.Topics[1],
		Creator:            common.BytesToAddress(lg.Topics[2].Bytes()),
		InitialOwner:       common.BytesToAddress(lg.Topics[3].Bytes()),
		ContentSha:         contentSha,
		EthscriptionNumber: new(big.Int).SetBytes(lg.Data[32:64]),
		PointerCount:       new(big.Int).SetBytes(lg.Data[64:96]),
	}, true
}

func decodeTransferEvent(lg *types.Log) (TransferEvent, bool) {
	if len(lg.Topics) != 4 || len(lg.Data) != 32 {
		return TransferEvent{}, false
	}
	return TransferEvent{
		TxHash:             lg.Topics[1],
		From:               common.BytesToAddress(lg.Topics[2].Bytes()),
		To:                 common.BytesToAddress(lg.Topics[3].Bytes()),
		EthscriptionNumber: new(big.Int).SetBytes(lg.Data),
	}, true
}
