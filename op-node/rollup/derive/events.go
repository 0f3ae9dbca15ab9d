package derive

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// L1 ESIP event signatures (spec.md §4.2 rules 2 and 4). Computed the same
// way the teacher computes its L1InfoFuncBedrockBytes4/EcotoneBytes4
// selectors in l1_block_info.go: keccak256 of the canonical event
// signature string.
var (
	esip3CreateEventSig = crypto.Keccak256Hash([]byte("ethscriptions_protocol_CreateEthscription(address,string)"))
	esip1TransferSig    = crypto.Keccak256Hash([]byte("ethscriptions_protocol_TransferEthscription(address,bytes32)"))
	esip2TransferSig    = crypto.Keccak256Hash([]byte("ethscriptions_protocol_TransferEthscriptionForPreviousOwner(address,address,bytes32)"))
)

// L2 contract event signatures (spec.md §4.5), emitted by the Ethscriptions
// predeploy and consumed by the EventDecoder and Validator.
var (
	EthscriptionCreatedSig = crypto.Keccak256Hash([]byte(
		"EthscriptionCreated(bytes32,address,address,bytes32,uint256,uint256)"))
	EthscriptionTransferredSig = crypto.Keccak256Hash([]byte(
		"EthscriptionTransferred(bytes32,address,address,uint256)"))
)
