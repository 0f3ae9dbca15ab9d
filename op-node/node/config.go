// Package node wires together the derivation components — clients,
// detector, builder, prefetcher, proposer, validator, cursor — from a
// Config populated by cmd/eth-node, and runs the resulting Driver.
package node

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
)

// Config is the fully-resolved process configuration, populated from the
// environment variables of spec.md §6 by cmd/eth-node's flag parsing.
type Config struct {
	L1Network      rollup.L1Network
	L1GenesisBlock uint64

	L1RPCURL          string
	GethRPCURL        string // authenticated Engine API endpoint (:8551 or IPC)
	NonAuthGethRPCURL string // unauthenticated read endpoint (:8545)

	JWTSecretPath string

	BlockImportBatchSize uint64
	ImportInterval       time.Duration
	ValidateImport       bool

	EthscriptionsAPIBaseURL string

	L1PrefetchForward uint64
	L1PrefetchThreads int

	EthscriptionsAddr common.Address

	// ESIP7Compress resolves the ESIP-7 "pre-compress content" open
	// question (SPEC_FULL.md §9): opt-in snappy compression of create
	// content once ESIP-7 is active, via ESIP7_COMPRESS.
	ESIP7Compress bool

	// CursorPath, if non-empty, enables crash-recovery persistence via a
	// local LevelDB datastore (SPEC_FULL.md §4.11).
	CursorPath string

	// ValidationAuditDSN, if non-empty, enables Postgres audit logging of
	// every ValidationResult (SPEC_FULL.md §4.12).
	ValidationAuditDSN string

	MetricsAddr string
}

func DefaultConfig() Config {
	return Config{
		BlockImportBatchSize: 2,
		ImportInterval:       6 * time.Second,
		ValidateImport:       false,
		L1PrefetchForward:    20,
		L1PrefetchThreads:    2,
	}
}

func (c Config) Validate() error {
	switch c.L1Network {
	case rollup.Mainnet, rollup.Sepolia, rollup.Hoodi:
	default:
		return fmt.Errorf("L1_NETWORK must be one of mainnet, sepolia, hoodi, got %q", c.L1Network)
	}
	if c.L1RPCURL == "" {
		return fmt.Errorf("L1_RPC_URL is required")
	}
	if c.GethRPCURL == "" {
		return fmt.Errorf("GETH_RPC_URL is required")
	}
	if c.NonAuthGethRPCURL == "" {
		return fmt.Errorf("NON_AUTH_GETH_RPC_URL is required")
	}
	if c.JWTSecretPath == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.ValidateImport && c.EthscriptionsAPIBaseURL == "" {
		return fmt.Errorf("ETHSCRIPTIONS_API_BASE_URL is required when VALIDATE_IMPORT is set")
	}
	if c.BlockImportBatchSize == 0 {
		return fmt.Errorf("BLOCK_IMPORT_BATCH_SIZE must be at least 1")
	}
	return nil
}
