package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/derive"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
	"github.com/ethscriptions-protocol/eth-node/op-service/sources"
)

// ValidationResult aggregates the Validator's findings for one L1 block
// (spec.md §4.7 step 5).
type ValidationResult struct {
	L1BlockNumber uint64

	Successful     bool
	APIUnavailable bool

	ExpectedCreations int
	ActualCreations   int
	ExpectedTransfers int
	ActualTransfers   int
	StorageChecks     int

	Errors []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Successful = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Validator cross-checks the L2 state produced for an L1 block against an
// independent reference API (spec.md §4.7). It runs on the driver thread,
// after the Proposer has committed every L2 block for that L1 block.
type Validator struct {
	log     log.Logger
	cfg     *rollup.Config
	l2      *sources.L2Client
	storage *StorageReader
	decoder *derive.EventDecoder
	api     *ReferenceAPIClient
}

func NewValidator(log log.Logger, cfg *rollup.Config, l2 *sources.L2Client, storage *StorageReader, api *ReferenceAPIClient) *Validator {
	return &Validator{
		log:     log,
		cfg:     cfg,
		l2:      l2,
		storage: storage,
		decoder: derive.NewEventDecoder(cfg),
		api:     api,
	}
}

// ValidateL1Block runs the full cross-check sequence for one L1 block
// against the ordered L2 block hashes produced for it (spec.md §4.7).
func (v *Validator) ValidateL1Block(ctx context.Context, l1BlockNumber uint64, l2BlockHashes []common.Hash) (*ValidationResult, error) {
	result := &ValidationResult{L1BlockNumber: l1BlockNumber, Successful: true}
	if len(l2BlockHashes) == 0 {
		return result, nil
	}

	expectedCreations, err := v.api.FetchCreations(ctx, l1BlockNumber)
	if err != nil {
		v.log.Warn("reference API unavailable for creations", "l1_block", l1BlockNumber, "err", err)
		result.APIUnavailable = true
		return result, nil
	}
	expectedTransfers, err := v.api.FetchTransfers(ctx, l1BlockNumber)
	if err != nil {
		v.log.Warn("reference API unavailable for transfers", "l1_block", l1BlockNumber, "err", err)
		result.APIUnavailable = true
		return result, nil
	}

	isGenesisL2Block := l1BlockNumber == v.cfg.L2GenesisL1Origin()
	if isGenesisL2Block {
		for _, g := range derive.GenesisEthscriptionsFor(string(v.cfg.L1Network)) {
			mimetype, mediaType, mimeSubtype := derive.SplitMimetype(g.ContentURI)
			expectedCreations = append(expectedCreations, ExpectedCreation{
				TxHash:        g.TxHash,
				Creator:       g.Creator,
				InitialOwner:  g.InitialOwner,
				ContentURI:    g.ContentURI,
				L1BlockNumber: l1BlockNumber,
				Mimetype:      mimetype,
				MediaType:     mediaType,
				MimeSubtype:   mimeSubtype,
			})
		}
	}

	var observed derive.DecodedReceipt
	for _, hash := range l2BlockHashes {
		receipts, err := v.l2.BlockReceipts(ctx, eth.BlockTagHash(hash))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch receipts for L2 block %s: %w", hash, err)
		}
		dr := v.decoder.DecodeBlockReceipts(receipts)
		observed.Creations = append(observed.Creations, dr.Creations...)
		observed.Transfers = append(observed.Transfers, dr.Transfers...)
	}

	result.ExpectedCreations = len(expectedCreations)
	result.ActualCreations = len(observed.Creations)
	result.ExpectedTransfers = len(expectedTransfers)
	result.ActualTransfers = len(observed.Transfers)

	referenceTag := eth.BlockTagHash(l2BlockHashes[len(l2BlockHashes)-1])

	v.compareCreations(ctx, result, expectedCreations, observed.Creations, referenceTag, isGenesisL2Block)
	v.compareTransfers(result, expectedTransfers, observed.Transfers, isGenesisL2Block)
	if err := v.checkFinalOwnership(ctx, result, observed.Transfers, referenceTag); err != nil {
		return nil, err
	}

	return result, nil
}

func (v *Validator) compareCreations(ctx context.Context, result *ValidationResult, expected []ExpectedCreation, observed []derive.CreationEvent, tag eth.BlockTag, genesisBlock bool) {
	expectedByHash := make(map[common.Hash]ExpectedCreation, len(expected))
	for _, e := range expected {
		expectedByHash[e.TxHash] = e
	}
	observedByHash := make(map[common.Hash]derive.CreationEvent, len(observed))
	for _, o := range observed {
		observedByHash[o.TxHash] = o
	}

	for hash, exp := range expectedByHash {
		obs, ok := observedByHash[hash]
		if !ok {
			result.fail("missing creation %s", hash)
			continue
		}
		if !strings.EqualFold(exp.Creator.Hex(), obs.Creator.Hex()) {
			result.fail("creation %s: creator mismatch expected=%s actual=%s", hash, exp.Creator, obs.Creator)
		}
		if !strings.EqualFold(exp.InitialOwner.Hex(), obs.InitialOwner.Hex()) {
			result.fail("creation %s: initial_owner mismatch expected=%s actual=%s", hash, exp.InitialOwner, obs.InitialOwner)
		}
		v.checkCreationStorage(ctx, result, exp, tag)
	}

	for hash := range observedByHash {
		if _, ok := expectedByHash[hash]; ok {
			continue
		}
		if genesisBlock {
			v.log.Info("unexpected creation at genesis L1 block, informational only", "tx_hash", hash)
			continue
		}
		result.fail("unexpected creation %s", hash)
	}
}

func (v *Validator) checkCreationStorage(ctx context.Context, result *ValidationResult, exp ExpectedCreation, tag eth.BlockTag) {
	meta, content, err := v.storage.GetEthscriptionWithContent(ctx, exp.TxHash, tag)
	if err != nil {
		result.fail("storage read failed for %s: %v", exp.TxHash, err)
		return
	}
	if meta == nil {
		result.fail("storage: %s not found on chain", exp.TxHash)
		return
	}
	result.StorageChecks++

	if !strings.EqualFold(meta.Creator.Hex(), exp.Creator.Hex()) {
		result.fail("storage %s: creator mismatch expected=%s actual=%s", exp.TxHash, exp.Creator, meta.Creator)
	}
	if !strings.EqualFold(meta.InitialOwner.Hex(), exp.InitialOwner.Hex()) {
		result.fail("storage %s: initial_owner mismatch expected=%s actual=%s", exp.TxHash, exp.InitialOwner, meta.InitialOwner)
	}
	if meta.L1BlockNumber == nil || meta.L1BlockNumber.Uint64() != exp.L1BlockNumber {
		result.fail("storage %s: l1_block_number mismatch expected=%d actual=%v", exp.TxHash, exp.L1BlockNumber, meta.L1BlockNumber)
	}
	if meta.Mimetype != exp.Mimetype || meta.MediaType != exp.MediaType || meta.MimeSubtype != exp.MimeSubtype {
		result.fail("storage %s: mimetype triple mismatch expected=%s/%s/%s actual=%s/%s/%s",
			exp.TxHash, exp.Mimetype, exp.MediaType, exp.MimeSubtype, meta.Mimetype, meta.MediaType, meta.MimeSubtype)
	}
	if meta.ESIP6 != exp.ESIP6 {
		result.fail("storage %s: esip6 mismatch expected=%t actual=%t", exp.TxHash, exp.ESIP6, meta.ESIP6)
	}

	expectedSha := ContentURIHash(exp.ContentURI)
	if meta.ContentSha != expectedSha {
		result.fail("storage %s: content_sha mismatch expected=%s actual=%s", exp.TxHash, expectedSha, meta.ContentSha)
	}
	if content != nil {
		observedSha := ContentURIHash(string(content))
		if observedSha != expectedSha {
			result.fail("storage %s: content bytes do not hash to the expected content_uri_hash", exp.TxHash)
		}
	}
}

func (v *Validator) compareTransfers(result *ValidationResult, expected []ExpectedTransfer, observed []derive.TransferEvent, genesisBlock bool) {
	type triple struct {
		tokenID  common.Hash
		from, to common.Address
	}
	counts := make(map[triple]int)
	for _, e := range expected {
		counts[triple{e.TokenID, e.From, e.To}]++
	}
	for _, o := range observed {
		t := triple{o.TxHash, o.From, o.To}
		counts[t]--
	}
	for t, n := range counts {
		switch {
		case n > 0:
			result.fail("missing %d transfer(s) for token %s %s->%s", n, t.tokenID, t.from, t.to)
		case n < 0:
			if genesisBlock {
				v.log.Info("extra transfer at genesis L1 block, informational only", "token_id", t.tokenID)
				continue
			}
			result.fail("unexpected %d transfer(s) for token %s %s->%s", -n, t.tokenID, t.from, t.to)
		}
	}
}

// checkFinalOwnership verifies that the stored owner at the reference
// block hash equals the last observed transfer's "to" for every
// transferred token (spec.md §4.7 step 4 "Final-owner ownership").
func (v *Validator) checkFinalOwnership(ctx context.Context, result *ValidationResult, observed []derive.TransferEvent, tag eth.BlockTag) error {
	lastTo := make(map[common.Hash]common.Address)
	for _, t := range observed {
		lastTo[t.TxHash] = t.To
	}
	var merr *multierror.Error
	for tokenID, expectedOwner := range lastTo {
		owner, err := v.storage.GetOwner(ctx, tokenID, tag)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("get_owner(%s) failed: %w", tokenID, err))
			continue
		}
		result.StorageChecks++
		if owner == nil || !strings.EqualFold(owner.Hex(), expectedOwner.Hex()) {
			result.fail("final ownership mismatch for %s: expected=%s actual=%v", tokenID, expectedOwner, owner)
		}
	}
	return merr.ErrorOrNil()
}
