package derive

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethscriptions-protocol/eth-node/op-bindings/predeploys"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
	"github.com/ethscriptions-protocol/eth-node/op-service/solabi"
)

// L1AttributesFuncSignature mirrors the teacher's setL1BlockValues, adapted
// to the single L1 fact the Ethscriptions L1-attributes predeploy needs to
// expose: the number, timestamp and hash of its L1 origin (spec.md §4.4).
const L1AttributesFuncSignature = "setL1BlockValues(uint64,uint64,bytes32)"

var L1AttributesFuncBytes4 = crypto.Keccak256([]byte(L1AttributesFuncSignature))[:4]

// L1BlockAttributes is the payload of the system deposit every L2 block
// begins with, analogous to the teacher's L1BlockInfo but narrowed to the
// fields this protocol actually needs: there is no fee market, batcher, or
// blob base fee on this L2 (spec.md §4.4).
type L1BlockAttributes struct {
	Number    uint64
	Time      uint64
	BlockHash common.Hash
}

// Binary Format
// +-------+--------------------+
// | Bytes | Field              |
// +-------+--------------------+
// | 4     | Function signature |
// | 32    | Number             |
// | 32    | Time               |
// | 32    | BlockHash          |
// +-------+--------------------+

func (a *L1BlockAttributes) marshalBinary() ([]byte, error) {
	w := new(bytes.Buffer)
	if err := solabi.WriteSignature(w, L1AttributesFuncBytes4); err != nil {
		return nil, err
	}
	if err := solabi.WriteUint64(w, a.Number); err != nil {
		return nil, err
	}
	if err := solabi.WriteUint64(w, a.Time); err != nil {
		return nil, err
	}
	if err := solabi.WriteHash(w, a.BlockHash); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// L1BlockAttributesFromBytes is the inverse of L1AttributesDeposit: it
// recovers the L1 origin fields a given L2 block was derived from.
func L1BlockAttributesFromBytes(data []byte) (*L1BlockAttributes, error) {
	r := bytes.NewReader(data)
	var a L1BlockAttributes
	if _, err := solabi.ReadAndValidateSignature(r, L1AttributesFuncBytes4); err != nil {
		return nil, err
	}
	var err error
	if a.Number, err = solabi.ReadUint64(r); err != nil {
		return nil, err
	}
	if a.Time, err = solabi.ReadUint64(r); err != nil {
		return nil, err
	}
	if a.BlockHash, err = solabi.ReadHash(r); err != nil {
		return nil, err
	}
	if !solabi.EmptyReader(r) {
		return nil, fmt.Errorf("too many bytes in L1 attributes deposit")
	}
	return &a, nil
}

// L1AttributesDeposit builds the system deposit transaction the Proposer
// (spec.md §4.4) always inserts first in every L2 block, mirroring the
// teacher's L1InfoDeposit but against the narrower L1BlockAttributes and the
// 2-field OperationDepositSource-free L1InfoDepositSource this protocol uses.
func L1AttributesDeposit(seqNumber uint64, l1Origin eth.BlockInfo) (*types.DepositTx, error) {
	attrs := L1BlockAttributes{
		Number:    l1Origin.NumberU64(),
		Time:      l1Origin.Time(),
		BlockHash: l1Origin.Hash(),
	}
	data, err := attrs.marshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal L1 block attributes: %w", err)
	}

	source := L1InfoDepositSource{L1BlockHash: l1Origin.Hash(), SeqNumber: seqNumber}
	to := predeploys.L1BlockAddr
	return &types.DepositTx{
		SourceHash:          source.SourceHash(),
		From:                predeploys.L1InfoDepositerAddress,
		To:                  &to,
		Mint:                nil,
		Value:               big.NewInt(0),
		Gas:                 1_000_000,
		IsSystemTransaction: true,
		Data:                data,
	}, nil
}

// L1AttributesDepositBytes returns the serialized system deposit, ready to
// be prepended to a PayloadAttributes.Transactions list.
func L1AttributesDepositBytes(seqNumber uint64, l1Origin eth.BlockInfo) ([]byte, error) {
	dep, err := L1AttributesDeposit(seqNumber, l1Origin)
	if err != nil {
		return nil, err
	}
	tx := types.NewTx(dep)
	return tx.MarshalBinary()
}
