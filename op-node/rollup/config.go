// Package rollup holds the chain configuration shared by every derivation
// component: the fixed L2 chain constants, and the L1-block-number
// thresholds at which each ESIP becomes active. It is constructed once at
// process startup (cmd/) and passed by reference into every component,
// per the teacher's "no ambient singletons" design note.
package rollup

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// L1Network identifies which L1 network this node derives from, selecting
// chain IDs and ESIP activation heights (spec.md §6).
type L1Network string

const (
	Mainnet L1Network = "mainnet"
	Sepolia L1Network = "sepolia"
	Hoodi   L1Network = "hoodi"
)

// Chain constants (spec.md §6).
const (
	L2ChainIDMainnet = 0xeeee
	L2ChainIDSepolia = 0xeeeea

	L2BlockGasLimit = 10_000_000_000
	L2BlockTime     = 12 // seconds

	DepositTxType = 0x7d
)

// ESIPHeights is the mainnet activation table from spec.md §6. Testnets
// enable every ESIP from genesis.
type ESIPHeights struct {
	ESIP1 uint64
	ESIP2 uint64
	ESIP3 uint64
	ESIP5 uint64
	ESIP7 uint64
	ESIP8 uint64
}

var mainnetESIPHeights = ESIPHeights{
	ESIP1: 17_672_762,
	ESIP2: 17_764_910,
	ESIP3: 18_130_000,
	ESIP5: 18_330_000,
	ESIP7: 19_376_500,
	ESIP8: 19_526_000,
}

var testnetESIPHeights = ESIPHeights{} // zero value: everything active from block 0

// Config is the rollup.Config analogue for Ethscriptions: chain
// identifiers, the configured L2 genesis anchor, and the ESIP activation
// table for the selected L1 network.
type Config struct {
	L1Network L1Network

	// L1GenesisBlock is the L1 block whose state seeds L2 genesis; L2 block
	// 1 corresponds to L1GenesisBlock+1 (spec.md §6).
	L1GenesisBlock uint64

	L2ChainID uint64

	BlockTime uint64 // seconds, fixed at L2BlockTime

	ESIP ESIPHeights

	// EthscriptionsAddr is the on-chain contract the Builder encodes calls
	// to and the EventDecoder/StorageReader read from.
	EthscriptionsAddr common.Address
}

// NewConfig builds a Config for the given network, defaulting the chain ID
// and ESIP table accordingly.
func NewConfig(network L1Network, l1GenesisBlock uint64, ethscriptionsAddr common.Address) (*Config, error) {
	cfg := &Config{
		L1Network:         network,
		L1GenesisBlock:    l1GenesisBlock,
		BlockTime:         L2BlockTime,
		EthscriptionsAddr: ethscriptionsAddr,
	}
	switch network {
	case Mainnet:
		cfg.L2ChainID = L2ChainIDMainnet
		cfg.ESIP = mainnetESIPHeights
	case Sepolia, Hoodi:
		cfg.L2ChainID = L2ChainIDSepolia
		cfg.ESIP = testnetESIPHeights
	default:
		return nil, fmt.Errorf("unrecognized L1_NETWORK %q", network)
	}
	return cfg, nil
}

func (c *Config) IsESIP1(l1Block uint64) bool { return l1Block >= c.ESIP.ESIP1 }
func (c *Config) IsESIP2(l1Block uint64) bool { return l1Block >= c.ESIP.ESIP2 }
func (c *Config) IsESIP3(l1Block uint64) bool { return l1Block >= c.ESIP.ESIP3 }
func (c *Config) IsESIP5(l1Block uint64) bool { return l1Block >= c.ESIP.ESIP5 }
func (c *Config) IsESIP7(l1Block uint64) bool { return l1Block >= c.ESIP.ESIP7 }
func (c *Config) IsESIP8(l1Block uint64) bool { return l1Block >= c.ESIP.ESIP8 }

// L2GenesisL1Origin is the L1 block number corresponding to L2 block 1.
func (c *Config) L2GenesisL1Origin() uint64 {
	return c.L1GenesisBlock + 1
}
