package derive

import "github.com/ethereum/go-ethereum/common"

// GenesisEthscription is one entry of the fixed table of ethscriptions that
// existed before the chain now derived from L1 began indexing: contract
// deployment predates the creation-event log format used from genesis
// onward, so these were back-filled once at network launch and are not
// observable as CreateFromInput/CreateFromEvent operations (spec.md §4.7
// "genesis ethscription events").
type GenesisEthscription struct {
	TxHash       common.Hash
	Creator      common.Address
	InitialOwner common.Address
	ContentURI   string
}

// GenesisEthscriptions augments the expected-creation set only at the L1
// block where L2 block 1 is produced (spec.md §4.7 rule 4). The table is
// small and fixed per network, so it is kept as a literal rather than an
// external data file.
var GenesisEthscriptions = []GenesisEthscription{}

// GenesisEthscriptionsFor returns the table for the given L1 network: the
// shared GenesisEthscriptions slice itself (not a copy) for mainnet, nil for
// every other network.
func GenesisEthscriptionsFor(network string) []GenesisEthscription {
	if network != "mainnet" {
		return nil
	}
	return GenesisEthscriptions
}
