package driver

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/derive"
	"github.com/ethscriptions-protocol/eth-node/op-node/testlog"
)

func newTestValidator() *Validator {
	return &Validator{log: testlog.NopLogger()}
}

func TestCompareTransfersMissingFailsValidation(t *testing.T) {
	v := newTestValidator()
	result := &ValidationResult{Successful: true}
	tokenID := common.HexToHash("0x01")
	from, to := common.HexToAddress("0x02"), common.HexToAddress("0x03")

	v.compareTransfers(result, []ExpectedTransfer{{TokenID: tokenID, From: from, To: to}}, nil, false)

	require.False(t, result.Successful)
	require.Len(t, result.Errors, 1)
}

func TestCompareTransfersMatchingIsSuccessful(t *testing.T) {
	v := newTestValidator()
	result := &ValidationResult{Successful: true}
	tokenID := common.HexToHash("0x01")
	from, to := common.HexToAddress("0x02"), common.HexToAddress("0x03")

	expected := []ExpectedTransfer{{TokenID: tokenID, From: from, To: to}}
	observed := []derive.TransferEvent{{TxHash: tokenID, From: from, To: to}}

	v.compareTransfers(result, expected, observed, false)

	require.True(t, result.Successful)
	require.Empty(t, result.Errors)
}

func TestCompareTransfersUnexpectedFailsUnlessGenesisBlock(t *testing.T) {
	tokenID := common.HexToHash("0x01")
	from, to := common.HexToAddress("0x02"), common.HexToAddress("0x03")
	observed := []derive.TransferEvent{{TxHash: tokenID, From: from, To: to}}

	v := newTestValidator()
	result := &ValidationResult{Successful: true}
	v.compareTransfers(result, nil, observed, false)
	require.False(t, result.Successful)

	v2 := newTestValidator()
	genesisResult := &ValidationResult{Successful: true}
	v2.compareTransfers(genesisResult, nil, observed, true)
	require.True(t, genesisResult.Successful, "extra activity at the genesis L1 block is informational only")
}

func TestValidationResultFailAccumulatesErrors(t *testing.T) {
	result := &ValidationResult{Successful: true}
	result.fail("first problem: %s", "a")
	result.fail("second problem: %d", 2)
	require.False(t, result.Successful)
	require.Equal(t, []string{"first problem: a", "second problem: 2"}, result.Errors)
}
