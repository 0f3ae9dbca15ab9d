// Package predeploys holds the fixed addresses of the contracts the
// derivation pipeline encodes calls to or decodes events from. The contracts
// themselves are out of scope (spec.md §1); only their addresses and ABIs
// matter here.
package predeploys

import "github.com/ethereum/go-ethereum/common"

var (
	// L1BlockAddr is the predeploy that receives the L1-attributes deposit
	// every L2 block, mirroring op-node's L1Block predeploy at 0x4200...15.
	L1BlockAddr = common.HexToAddress("0x4200000000000000000000000000000000000015")

	// EthscriptionsAddr is the predeploy implementing the Ethscriptions
	// protocol contract: createEthscription, transferEthscription,
	// transferEthscriptionForPreviousOwner, and the EthscriptionCreated /
	// EthscriptionTransferred events.
	EthscriptionsAddr = common.HexToAddress("0x4200000000000000000000000000000000000099")
)

// L1InfoDepositerAddress is the spoofed `from` of the L1-attributes system
// deposit, matching op-node's convention of a memorable, unspendable address.
var L1InfoDepositerAddress = common.HexToAddress("0xdeaddeaddeaddeaddeaddeaddeaddeaddead0001")
