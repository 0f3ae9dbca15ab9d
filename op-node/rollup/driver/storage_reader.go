package driver

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
	"github.com/ethscriptions-protocol/eth-node/op-service/solabi"
	"github.com/ethscriptions-protocol/eth-node/op-service/sources"
)

var (
	getEthscriptionSignature        = "getEthscription(bytes32)"
	getEthscriptionContentSignature = "getEthscriptionContent(bytes32)"
	getOwnerSignature                = "getOwner(bytes32)"
	totalSupplySignature             = "totalSupply()"

	getEthscriptionBytes4        = ethcrypto.Keccak256([]byte(getEthscriptionSignature))[:4]
	getEthscriptionContentBytes4 = ethcrypto.Keccak256([]byte(getEthscriptionContentSignature))[:4]
	getOwnerBytes4               = ethcrypto.Keccak256([]byte(getOwnerSignature))[:4]
	totalSupplyBytes4            = ethcrypto.Keccak256([]byte(totalSupplySignature))[:4]
)

// EthscriptionMetadata mirrors the struct returned by the contract's
// getEthscription view, used for the Validator's per-creation field and
// storage checks (spec.md §4.6, §4.7).
type EthscriptionMetadata struct {
	Creator             common.Address
	InitialOwner        common.Address
	ContentSha          common.Hash
	EthscriptionNumber  *big.Int
	L1BlockNumber       *big.Int
	Mimetype            string
	MediaType            string
	MimeSubtype          string
	ESIP6                bool
}

// StorageReader provides typed eth_call helpers against the Ethscriptions
// contract at a given block reference (spec.md §4.6). A contract revert is
// treated as "not found" throughout, matching the on-chain getter
// convention of reverting rather than returning a sentinel zero value.
type StorageReader struct {
	l2  *sources.L2Client
	cfg *rollup.Config
}

func NewStorageReader(l2 *sources.L2Client, cfg *rollup.Config) *StorageReader {
	return &StorageReader{l2: l2, cfg: cfg}
}

// revertError is the shape go-ethereum's RPC client returns for a JSON-RPC
// error with associated data (execution reverted); code -32000/3 per the
// JSON-RPC and Ethereum execution-apis conventions.
type revertError interface {
	ErrorCode() int
}

func isRevert(err error) bool {
	if err == nil {
		return false
	}
	var re revertError
	return errors.As(err, &re) && re.ErrorCode() == 3
}

// GetEthscription returns the on-chain metadata for txHash at the given
// block reference, or nil if the getter reverted (not found).
func (s *StorageReader) GetEthscription(ctx context.Context, txHash common.Hash, tag eth.BlockTag) (*EthscriptionMetadata, error) {
	calldata := append(append([]byte{}, getEthscriptionBytes4...), leftPad32(txHash[:])...)
	out, err := s.l2.Call(ctx, sources.CallMsg{To: s.cfg.EthscriptionsAddr, Data: calldata}, tag)
	if err != nil {
		if isRevert(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("getEthscription(%s) failed: %w", txHash, err)
	}
	return decodeEthscriptionMetadata(out)
}

func decodeEthscriptionMetadata(data []byte) (*EthscriptionMetadata, error) {
	if len(data) < 9*32 {
		return nil, fmt.Errorf("getEthscription: truncated response")
	}
	r := bytes.NewReader(data)
	var m EthscriptionMetadata
	var err error
	if m.Creator, err = solabi.ReadAddress(r); err != nil {
		return nil, err
	}
	if m.InitialOwner, err = solabi.ReadAddress(r); err != nil {
		return nil, err
	}
	if m.ContentSha, err = solabi.ReadHash(r); err != nil {
		return nil, err
	}
	if m.EthscriptionNumber, err = solabi.ReadUint256(r); err != nil {
		return nil, err
	}
	if m.L1BlockNumber, err = solabi.ReadUint256(r); err != nil {
		return nil, err
	}
	// Three dynamic-string offsets follow, each relative to the start of
	// this tuple (position 0), then the static esip6 bool, mirroring the
	// Builder's createEthscription head/tail layout for the same fields.
	headStart := data[5*32:]
	mimetypeOff, mediaTypeOff, mimeSubtypeOff, err := readThreeOffsets(headStart)
	if err != nil {
		return nil, err
	}
	if m.Mimetype, err = readStringAt(data, mimetypeOff); err != nil {
		return nil, err
	}
	if m.MediaType, err = readStringAt(data, mediaTypeOff); err != nil {
		return nil, err
	}
	if m.MimeSubtype, err = readStringAt(data, mimeSubtypeOff); err != nil {
		return nil, err
	}
	esip6Off := 8 * 32
	if len(data) < esip6Off+32 {
		return nil, fmt.Errorf("getEthscription: truncated response")
	}
	m.ESIP6 = data[esip6Off+31] != 0
	return &m, nil
}

func readThreeOffsets(head []byte) (a, b, c int, err error) {
	if len(head) < 3*32 {
		return 0, 0, 0, fmt.Errorf("getEthscription: truncated head")
	}
	a = int(new(big.Int).SetBytes(head[0:32]).Uint64())
	b = int(new(big.Int).SetBytes(head[32:64]).Uint64())
	c = int(new(big.Int).SetBytes(head[64:96]).Uint64())
	return a, b, c, nil
}

func readStringAt(data []byte, offset int) (string, error) {
	if offset+32 > len(data) {
		return "", fmt.Errorf("getEthscription: string offset out of range")
	}
	length := int(new(big.Int).SetBytes(data[offset : offset+32]).Uint64())
	start := offset + 32
	if start+length > len(data) {
		return "", fmt.Errorf("getEthscription: string body out of range")
	}
	return string(data[start : start+length]), nil
}

// GetEthscriptionContent returns the raw content bytes for txHash, or nil
// if the getter reverted.
func (s *StorageReader) GetEthscriptionContent(ctx context.Context, txHash common.Hash, tag eth.BlockTag) ([]byte, error) {
	calldata := append(append([]byte{}, getEthscriptionContentBytes4...), leftPad32(txHash[:])...)
	out, err := s.l2.Call(ctx, sources.CallMsg{To: s.cfg.EthscriptionsAddr, Data: calldata}, tag)
	if err != nil {
		if isRevert(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("getEthscriptionContent(%s) failed: %w", txHash, err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("getEthscriptionContent(%s): truncated response", txHash)
	}
	r := bytes.NewReader(out[32:]) // skip the single dynamic-return offset word
	return solabi.ReadBytes(r)
}

// GetEthscriptionWithContent combines GetEthscription and
// GetEthscriptionContent into one validator-facing call.
func (s *StorageReader) GetEthscriptionWithContent(ctx context.Context, txHash common.Hash, tag eth.BlockTag) (*EthscriptionMetadata, []byte, error) {
	meta, err := s.GetEthscription(ctx, txHash, tag)
	if err != nil || meta == nil {
		return meta, nil, err
	}
	content, err := s.GetEthscriptionContent(ctx, txHash, tag)
	if err != nil {
		return meta, nil, err
	}
	return meta, content, nil
}

// GetOwner returns the current owner of txHash, or nil if reverted.
func (s *StorageReader) GetOwner(ctx context.Context, txHash common.Hash, tag eth.BlockTag) (*common.Address, error) {
	calldata := append(append([]byte{}, getOwnerBytes4...), leftPad32(txHash[:])...)
	out, err := s.l2.Call(ctx, sources.CallMsg{To: s.cfg.EthscriptionsAddr, Data: calldata}, tag)
	if err != nil {
		if isRevert(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("getOwner(%s) failed: %w", txHash, err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("getOwner(%s): truncated response", txHash)
	}
	var addr common.Address
	copy(addr[:], out[12:32])
	return &addr, nil
}

// GetTotalSupply returns the contract's total issued ethscription count.
func (s *StorageReader) GetTotalSupply(ctx context.Context, tag eth.BlockTag) (*big.Int, error) {
	out, err := s.l2.Call(ctx, sources.CallMsg{To: s.cfg.EthscriptionsAddr, Data: totalSupplyBytes4}, tag)
	if err != nil {
		return nil, fmt.Errorf("totalSupply() failed: %w", err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("totalSupply(): truncated response")
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// ContentURIHash matches the Validator's reference-API cross-check
// (spec.md §4.7): SHA-256 of the API-provided content URI, compared to
// the observed content's own hash where applicable.
func ContentURIHash(contentURI string) common.Hash {
	return common.Hash(sha256.Sum256([]byte(contentURI)))
}
