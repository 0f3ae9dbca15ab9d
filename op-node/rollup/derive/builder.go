package derive

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/golang/snappy"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
	"github.com/ethscriptions-protocol/eth-node/op-service/solabi"
)

// Contract function signatures the Builder targets (spec.md §4.3).
const (
	createEthscriptionSignature                 = "createEthscription((bytes32,address,string,string,string,string,bool,bool,(string,string,string,string,string,string)))"
	transferEthscriptionSignature               = "transferEthscription(address,bytes32)"
	transferEthscriptionForPreviousOwnerSignature = "transferEthscriptionForPreviousOwner(address,bytes32,address)"
)

var (
	createEthscriptionBytes4                 = crypto.Keccak256([]byte(createEthscriptionSignature))[:4]
	transferEthscriptionBytes4               = crypto.Keccak256([]byte(transferEthscriptionSignature))[:4]
	transferEthscriptionForPreviousOwnerBytes4 = crypto.Keccak256([]byte(transferEthscriptionForPreviousOwnerSignature))[:4]
)

// BuilderConfig holds the operator-controlled knobs the Builder needs beyond
// the chain-wide rollup.Config, per SPEC_FULL.md §9's resolution of the
// ESIP-7 "pre-compress content" open question: compression is opt-in, not
// automatic, so it lives in runtime config rather than the ESIP activation
// table.
type BuilderConfig struct {
	// ESIP7Compress enables snappy-compressing create content once ESIP-7
	// is active on L1, setting isCompressed on the contract call.
	ESIP7Compress bool
}

// Builder maps Operations into L2 deposit transactions and builds the
// system L1-attributes deposit, per spec.md §4.3/§4.4. It never calls out
// to L1 or L2; all required data is passed in by the Driver.
type Builder struct {
	log log.Logger
	cfg *rollup.Config
	bc  BuilderConfig
}

func NewBuilder(log log.Logger, cfg *rollup.Config, bc BuilderConfig) *Builder {
	return &Builder{log: log, cfg: cfg, bc: bc}
}

// Build maps a single Operation, observed in L1 block l1Block (whose hash
// seeds the SourceHash), to its deposit transaction. subIndex disambiguates
// multiple operations sharing the same (TxIndex, LogIndex) — see
// OperationDepositSource. It returns (nil, nil) for an operation whose
// calldata cannot be encoded, which is dropped (spec.md §4.3 "malformed
// operations are dropped").
func (b *Builder) Build(l1BlockHash common.Hash, l1BlockNumber uint64, op Operation, subIndex uint64) (*types.DepositTx, error) {
	var data []byte
	var err error

	switch op.Kind {
	case OpCreateFromInput, OpCreateFromEvent:
		data, err = b.encodeCreate(l1BlockNumber, op.Create)
	case OpTransfer:
		data, err = encodeTransfer(op.Xfer.To, op.Xfer.EthscriptionTxHash)
	case OpTransferPrevOwner:
		data, err = encodeTransferPrevOwner(op.Xfer.To, op.Xfer.EthscriptionTxHash, op.Xfer.ExpectedPreviousOwner)
	default:
		return nil, fmt.Errorf("unexpected operation kind %v for single-deposit build", op.Kind)
	}
	if err != nil {
		b.log.Debug("dropping malformed operation", "kind", op.Kind, "tx", op.TxHash, "err", err)
		return nil, nil
	}

	from := op.operationFrom()
	source := OperationDepositSource{
		L1BlockHash: l1BlockHash,
		TxIndex:     op.TxIndex,
		LogIndex:    op.LogIndex,
		SubIndex:    subIndex,
	}
	to := b.cfg.EthscriptionsAddr
	return &types.DepositTx{
		SourceHash:          source.SourceHash(),
		From:                from,
		To:                  &to,
		Mint:                nil,
		Value:               big.NewInt(0),
		Gas:                 1_000_000,
		IsSystemTransaction: false,
		Data:                data,
	}, nil
}

// BuildMulti expands an ESIP-5 MultiTransfer into one deposit per hash, each
// using transferEthscription, matching on-chain partial-success semantics
// (spec.md §4.3 rule 4).
func (b *Builder) BuildMulti(l1BlockHash common.Hash, op Operation) ([]*types.DepositTx, error) {
	if op.Kind != OpMultiTransfer {
		return nil, fmt.Errorf("BuildMulti called on non-multi-transfer operation %v", op.Kind)
	}
	txs := make([]*types.DepositTx, 0, len(op.XferAll.EthscriptionTxHashes))
	for i, h := range op.XferAll.EthscriptionTxHashes {
		data, err := encodeTransfer(op.XferAll.To, h)
		if err != nil {
			b.log.Debug("dropping malformed multi-transfer entry", "tx", op.TxHash, "index", i, "err", err)
			continue
		}
		source := OperationDepositSource{
			L1BlockHash: l1BlockHash,
			TxIndex:     op.TxIndex,
			LogIndex:    -1,
			SubIndex:    uint64(i),
		}
		to := b.cfg.EthscriptionsAddr
		txs = append(txs, &types.DepositTx{
			SourceHash:          source.SourceHash(),
			From:                op.XferAll.From,
			To:                  &to,
			Mint:                nil,
			Value:               big.NewInt(0),
			Gas:                 1_000_000,
			IsSystemTransaction: false,
			Data:                data,
		})
	}
	return txs, nil
}

// operationFrom implements spec.md §4.3's from-address spoofing rule: the
// L1 tx sender for input-derived operations, the emitting contract for
// event-derived ones.
func (op Operation) operationFrom() common.Address {
	switch op.Kind {
	case OpCreateFromInput, OpCreateFromEvent:
		return op.Create.From
	case OpTransfer, OpTransferPrevOwner:
		return op.Xfer.From
	case OpMultiTransfer:
		return op.XferAll.From
	default:
		return common.Address{}
	}
}

// encodeCreate ABI-encodes a createEthscription(CreateEthscriptionParams)
// call. Required fields (spec.md §4.3): content URI may legitimately be
// empty ("empty data URI allowed", see SPEC_FULL.md §9) and is always
// forwarded; the contract is the final arbiter of semantic validity.
func (b *Builder) encodeCreate(l1BlockNumber uint64, c *CreateOperation) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("nil create operation")
	}

	contentURI := c.ContentURI
	isCompressed := false
	if b.bc.ESIP7Compress && b.cfg.IsESIP7(l1BlockNumber) && len(contentURI) > 0 {
		compressed := snappy.Encode(nil, []byte(contentURI))
		if len(compressed) < len(contentURI) {
			contentURI = string(compressed)
			isCompressed = true
		}
	}

	mimetype, mediaType, mimeSubtype := SplitMimetype(c.ContentURI)

	tp := c.TokenParams
	if tp == nil {
		tp = &TokenParams{}
	}

	w := new(bytes.Buffer)
	if err := solabi.WriteSignature(w, createEthscriptionBytes4); err != nil {
		return nil, err
	}
	// Single dynamic struct argument: offset word, then the tuple fields in
	// order. transactionHash, initialOwner and the two booleans are
	// static; contentUri/mimetype/mediaType/mimeSubtype and the nested
	// tokenParams tuple are dynamic, so the head only carries their offsets.
	if err := solabi.WriteUint64(w, 32); err != nil {
		return nil, err
	}

	head := new(bytes.Buffer)
	tail := new(bytes.Buffer)

	// Static head fields.
	if err := solabi.WriteHash(head, common.Hash{}); err != nil { // transactionHash: filled in by the contract from tx context
		return nil, err
	}
	if err := solabi.WriteAddress(head, c.InitialOwner); err != nil {
		return nil, err
	}

	// Dynamic fields: contentUri, mimetype, mediaType, mimeSubtype, then
	// booleans, then the nested tokenParams tuple.
	// Offsets are relative to the start of the tuple, so headWords counts
	// every head word of the tuple before the dynamic section begins.
	headWords := 2 // transactionHash, initialOwner
	headWords += 4 // contentUri, mimetype, mediaType, mimeSubtype offsets
	headWords += 2 // esip6, isCompressed
	headWords += 1 // tokenParams tuple offset
	baseOffset := int64(headWords) * 32

	offsetFor := func(priorTailLen int) int64 { return baseOffset + int64(priorTailLen) }

	if err := solabi.WriteUint64(head, uint64(offsetFor(tail.Len()))); err != nil {
		return nil, err
	}
	if err := solabi.WriteString(tail, contentURI); err != nil {
		return nil, err
	}

	if err := solabi.WriteUint64(head, uint64(offsetFor(tail.Len()))); err != nil {
		return nil, err
	}
	if err := solabi.WriteString(tail, mimetype); err != nil {
		return nil, err
	}

	if err := solabi.WriteUint64(head, uint64(offsetFor(tail.Len()))); err != nil {
		return nil, err
	}
	if err := solabi.WriteString(tail, mediaType); err != nil {
		return nil, err
	}

	if err := solabi.WriteUint64(head, uint64(offsetFor(tail.Len()))); err != nil {
		return nil, err
	}
	if err := solabi.WriteString(tail, mimeSubtype); err != nil {
		return nil, err
	}

	if err := solabi.WriteBool(head, c.ESIP6); err != nil {
		return nil, err
	}
	if err := solabi.WriteBool(head, isCompressed); err != nil {
		return nil, err
	}

	tokenParamsTail := new(bytes.Buffer)
	if err := encodeTokenParams(tokenParamsTail, tp); err != nil {
		return nil, err
	}
	if err := solabi.WriteUint64(head, uint64(offsetFor(tail.Len()))); err != nil {
		return nil, err
	}
	tail.Write(tokenParamsTail.Bytes())

	w.Write(head.Bytes())
	w.Write(tail.Bytes())
	return w.Bytes(), nil
}

// encodeTokenParams ABI-encodes the inline (non-offset-referenced, since it
// is the last field) tokenParams tuple: {op, protocol, tick, max, lim, amt},
// all strings, "id" packed into "max" for mint per spec.md §4.3.
func encodeTokenParams(w *bytes.Buffer, tp *TokenParams) error {
	fields := []string{tp.Operation, tp.Protocol, tp.Tick, tp.Max, tp.Lim, tp.Amount}
	head := new(bytes.Buffer)
	tail := new(bytes.Buffer)
	baseOffset := int64(len(fields)) * 32
	for _, f := range fields {
		if err := solabi.WriteUint64(head, uint64(baseOffset+int64(tail.Len()))); err != nil {
			return err
		}
		if err := solabi.WriteString(tail, f); err != nil {
			return err
		}
	}
	w.Write(head.Bytes())
	w.Write(tail.Bytes())
	return nil
}

func encodeTransfer(to common.Address, ethscriptionTxHash common.Hash) ([]byte, error) {
	w := new(bytes.Buffer)
	if err := solabi.WriteSignature(w, transferEthscriptionBytes4); err != nil {
		return nil, err
	}
	if err := solabi.WriteAddress(w, to); err != nil {
		return nil, err
	}
	if err := solabi.WriteHash(w, ethscriptionTxHash); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func encodeTransferPrevOwner(to common.Address, ethscriptionTxHash common.Hash, expectedPrevOwner common.Address) ([]byte, error) {
	w := new(bytes.Buffer)
	if err := solabi.WriteSignature(w, transferEthscriptionForPreviousOwnerBytes4); err != nil {
		return nil, err
	}
	if err := solabi.WriteAddress(w, to); err != nil {
		return nil, err
	}
	if err := solabi.WriteHash(w, ethscriptionTxHash); err != nil {
		return nil, err
	}
	if err := solabi.WriteAddress(w, expectedPrevOwner); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// SplitMimetype extracts the mediatype portion of a data URI ("data:image/png;base64,..."
// -> "image/png") and splits it into its RFC 2046 type/subtype halves. A
// URI without an explicit mediatype (bare "data:,...") yields three empty
// strings, matching the contract's zero-value convention. Exported so the
// Validator can derive the same triple for genesis entries, which have no
// reference-API record to read it from.
func SplitMimetype(uri string) (mimetype, mediaType, mimeSubtype string) {
	const prefix = "data:"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", ""
	}
	rest := uri[len(prefix):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", "", ""
	}
	header := rest[:comma]
	parts := strings.Split(header, ";")
	mimetype = parts[0]
	if mimetype == "" {
		return "", "", ""
	}
	slash := strings.IndexByte(mimetype, '/')
	if slash < 0 {
		return mimetype, mimetype, ""
	}
	return mimetype, mimetype[:slash], mimetype[slash+1:]
}
