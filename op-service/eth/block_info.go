package eth

import (
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockInfo is the minimal read-only view of an L1 block the derivation
// pipeline needs: enough to build an L1BlockInfo attributes deposit without
// depending on the full go-ethereum block type.
type BlockInfo interface {
	Hash() common.Hash
	ParentHash() common.Hash
	MixDigest() common.Hash
	NumberU64() uint64
	Time() uint64
	BaseFee() *big.Int
	BlobBaseFee() *big.Int
	ID() BlockID
	BlockRef() L1BlockRef
}

type headerBlockInfo struct {
	header *types.Header
}

// HeaderBlockInfo adapts a go-ethereum header into the eth.BlockInfo view
// used throughout the derivation pipeline.
func HeaderBlockInfo(h *types.Header) BlockInfo {
	return &headerBlockInfo{header: h}
}

func (b *headerBlockInfo) Hash() common.Hash       { return b.header.Hash() }
func (b *headerBlockInfo) ParentHash() common.Hash { return b.header.ParentHash }
func (b *headerBlockInfo) MixDigest() common.Hash  { return b.header.MixDigest }
func (b *headerBlockInfo) NumberU64() uint64       { return b.header.Number.Uint64() }
func (b *headerBlockInfo) Time() uint64            { return b.header.Time }
func (b *headerBlockInfo) BaseFee() *big.Int       { return b.header.BaseFee }

func (b *headerBlockInfo) BlobBaseFee() *big.Int {
	if b.header.ExcessBlobGas == nil {
		return nil
	}
	return eip4844BlobBaseFee(*b.header.ExcessBlobGas)
}

func (b *headerBlockInfo) ID() BlockID {
	return BlockID{Hash: b.Hash(), Number: b.NumberU64()}
}

func (b *headerBlockInfo) BlockRef() L1BlockRef {
	return L1BlockRef{
		Hash:       b.Hash(),
		Number:     b.NumberU64(),
		ParentHash: b.ParentHash(),
		Time:       b.Time(),
	}
}

// eip4844BlobBaseFee implements the fake-exponential formula from EIP-4844,
// matching the one used by go-ethereum's own header validation.
func eip4844BlobBaseFee(excessBlobGas uint64) *big.Int {
	const minBlobGasPrice = 1
	const blobGaspriceUpdateFraction = 3338477
	return fakeExponential(big.NewInt(minBlobGasPrice), new(big.Int).SetUint64(excessBlobGas), big.NewInt(blobGaspriceUpdateFraction))
}

func fakeExponential(factor, numerator, denominator *big.Int) *big.Int {
	i := big.NewInt(1)
	output := big.NewInt(0)
	numeratorAccum := new(big.Int).Mul(factor, denominator)
	for numeratorAccum.Sign() > 0 {
		output.Add(output, numeratorAccum)
		numeratorAccum.Mul(numeratorAccum, numerator)
		numeratorAccum.Div(numeratorAccum, denominator)
		numeratorAccum.Div(numeratorAccum, i)
		i.Add(i, big.NewInt(1))
	}
	return output.Div(output, denominator)
}

// L1Transaction is the data model described in spec.md §3: a transaction
// plus its receipt logs and a couple of best-effort derived views of the
// calldata that the Detector needs.
type L1Transaction struct {
	TxHash common.Hash
	Index  uint64
	From   common.Address
	To     *common.Address
	Input  []byte
	Status uint64 // types.ReceiptStatusSuccessful or types.ReceiptStatusFailed
	Logs   []*types.Log
}

// Successful reports whether the L1 transaction's receipt indicates success.
func (t *L1Transaction) Successful() bool {
	return t.Status == types.ReceiptStatusSuccessful
}

// Utf8Input is a best-effort UTF-8 decode of the calldata. The bytes are
// converted as-is: invalid UTF-8 sequences are kept, not replaced with the
// replacement character.
func (t *L1Transaction) Utf8Input() string {
	if !utf8.Valid(t.Input) {
		// Still attempt a decode: some valid data URIs round-trip through
		// byte-for-byte ASCII even if later bytes are invalid UTF-8 (e.g.
		// raw binary image payloads embedded without base64). We only need
		// prefix matching, so a lossy decode is acceptable here.
		return string(t.Input)
	}
	return string(t.Input)
}

// InputNoPrefix returns the calldata as a lowercase hex string without the
// leading "0x".
func (t *L1Transaction) InputNoPrefix() string {
	return strings.ToLower(common.Bytes2Hex(t.Input))
}

// L1Block is the data model described in spec.md §3.
type L1Block struct {
	Number       uint64
	Time         uint64
	Hash         common.Hash
	ParentHash   common.Hash
	MixHash      common.Hash
	BaseFee      *big.Int
	BlobBaseFee  *big.Int
	Transactions []L1Transaction
}

func (b *L1Block) Info() BlockInfo {
	return &l1BlockInfoView{b}
}

type l1BlockInfoView struct{ b *L1Block }

func (v *l1BlockInfoView) Hash() common.Hash       { return v.b.Hash }
func (v *l1BlockInfoView) ParentHash() common.Hash { return v.b.ParentHash }
func (v *l1BlockInfoView) MixDigest() common.Hash  { return v.b.MixHash }
func (v *l1BlockInfoView) NumberU64() uint64       { return v.b.Number }
func (v *l1BlockInfoView) Time() uint64            { return v.b.Time }
func (v *l1BlockInfoView) BaseFee() *big.Int       { return v.b.BaseFee }
func (v *l1BlockInfoView) BlobBaseFee() *big.Int   { return v.b.BlobBaseFee }
func (v *l1BlockInfoView) ID() BlockID {
	return BlockID{Hash: v.b.Hash, Number: v.b.Number}
}
func (v *l1BlockInfoView) BlockRef() L1BlockRef {
	return L1BlockRef{Hash: v.b.Hash, Number: v.b.Number, ParentHash: v.b.ParentHash, Time: v.b.Time}
}
