package derive

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/ethscriptions-protocol/eth-node/op-node/testlog"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	return NewDetector(testlog.NopLogger(), testConfig(t))
}

func TestDetectCreateFromInput(t *testing.T) {
	d := newTestDetector(t)
	to := common.HexToAddress("0x01")
	tx := &eth.L1Transaction{
		TxHash: common.HexToHash("0xaa"),
		Index:  0,
		From:   common.HexToAddress("0x02"),
		To:     &to,
		Input:  []byte("data:,hello world"),
	}

	ops := d.Detect(1000, tx)
	require.Len(t, ops, 1)
	require.Equal(t, OpCreateFromInput, ops[0].Kind)
	require.Equal(t, "data:,hello world", ops[0].Create.ContentURI)
	require.Equal(t, tx.From, ops[0].Create.From)
}

func TestDetectCreateFromInputEmptyContentAllowed(t *testing.T) {
	d := newTestDetector(t)
	to := common.HexToAddress("0x01")
	tx := &eth.L1Transaction{TxHash: common.HexToHash("0xaa"), To: &to, Input: []byte("data:,")}
	ops := d.Detect(1000, tx)
	require.Len(t, ops, 1)
	require.Equal(t, OpCreateFromInput, ops[0].Kind)
}

func TestDetectNonDataURIInputIsNotACreate(t *testing.T) {
	d := newTestDetector(t)
	to := common.HexToAddress("0x01")
	tx := &eth.L1Transaction{TxHash: common.HexToHash("0xaa"), To: &to, Input: []byte("not a data uri")}
	ops := d.Detect(1000, tx)
	require.Empty(t, ops)
}

func TestDetectSingleHashTransferFromInput(t *testing.T) {
	d := newTestDetector(t)
	to := common.HexToAddress("0x01")
	ethscriptionHash := common.HexToHash("0x99")
	tx := &eth.L1Transaction{
		TxHash: common.HexToHash("0xaa"),
		From:   common.HexToAddress("0x02"),
		To:     &to,
		Input:  ethscriptionHash.Bytes(),
	}

	ops := d.Detect(1000, tx)
	require.Len(t, ops, 1)
	require.Equal(t, OpTransfer, ops[0].Kind)
	require.Equal(t, ethscriptionHash, ops[0].Xfer.EthscriptionTxHash)
	require.Equal(t, to, ops[0].Xfer.To)
}

func TestDetectMultiHashTransferRequiresESIP5(t *testing.T) {
	to := common.HexToAddress("0x01")
	input := append(append([]byte{}, common.HexToHash("0x01").Bytes()...), common.HexToHash("0x02").Bytes()...)
	tx := &eth.L1Transaction{TxHash: common.HexToHash("0xaa"), To: &to, Input: input}

	// Below the configured ESIP-5 activation height, a multi-hash payload is dropped
	// entirely rather than emitted as individual transfers.
	cfg := testConfig(t)
	cfg.ESIP.ESIP5 = 20_000_000
	det := NewDetector(testlog.NopLogger(), cfg)
	ops := det.Detect(1_000_000, tx)
	require.Empty(t, ops)

	ops = det.Detect(21_000_000, tx)
	require.Len(t, ops, 1)
	require.Equal(t, OpMultiTransfer, ops[0].Kind)
	require.Len(t, ops[0].XferAll.EthscriptionTxHashes, 2)
}

func TestDetectCreateFromInputSuppressesInputTransferDetection(t *testing.T) {
	d := newTestDetector(t)
	to := common.HexToAddress("0x01")
	// 32 bytes of input: without the suppression this would also be read as
	// a single-hash transfer.
	tx := &eth.L1Transaction{TxHash: common.HexToHash("0xaa"), To: &to, Input: []byte("data:,abcdefghijklmnopqrstuvwxyz")}
	ops := d.Detect(1000, tx)
	require.Len(t, ops, 1)
	require.Equal(t, OpCreateFromInput, ops[0].Kind)
}

func TestDetectCreatesFromEventsGatedByESIP3(t *testing.T) {
	owner := common.HexToAddress("0x01")
	contentURI := "data:,event-create"
	data := encodeABIStringForTest(contentURI)

	tx := &eth.L1Transaction{
		TxHash: common.HexToHash("0xaa"),
		Logs: []*types.Log{{
			Address: common.HexToAddress("0x05"),
			Topics:  []common.Hash{esip3CreateEventSig, owner.Hash()},
			Data:    data,
		}},
	}

	cfg := testConfig(t)
	cfg.ESIP.ESIP3 = 18_130_000
	det := NewDetector(testlog.NopLogger(), cfg)

	require.Empty(t, det.Detect(1, tx), "ESIP-3 not yet active")

	ops := det.Detect(19_000_000, tx)
	require.Len(t, ops, 1)
	require.Equal(t, OpCreateFromEvent, ops[0].Kind)
	require.Equal(t, contentURI, ops[0].Create.ContentURI)
	require.Equal(t, owner, ops[0].Create.InitialOwner)
}

func TestDetectTransfersFromEventsESIP1AndESIP2(t *testing.T) {
	emitter := common.HexToAddress("0x05")
	to := common.HexToAddress("0x06")
	prev := common.HexToAddress("0x07")
	h := common.HexToHash("0x99")

	tx := &eth.L1Transaction{
		TxHash: common.HexToHash("0xaa"),
		Logs: []*types.Log{
			{Address: emitter, Topics: []common.Hash{esip1TransferSig, to.Hash(), h}},
			{Address: emitter, Topics: []common.Hash{esip2TransferSig, prev.Hash(), to.Hash(), h}},
		},
	}

	cfg := testConfig(t)
	cfg.ESIP.ESIP1 = 17_672_762
	cfg.ESIP.ESIP2 = 17_764_910
	det := NewDetector(testlog.NopLogger(), cfg)

	require.Empty(t, det.Detect(1, tx), "ESIP-1 not yet active")

	ops := det.Detect(18_000_000, tx)
	require.Len(t, ops, 2)
	require.Equal(t, OpTransfer, ops[0].Kind)
	require.Equal(t, OpTransferPrevOwner, ops[1].Kind)
	require.Equal(t, prev, ops[1].Xfer.ExpectedPreviousOwner)
}

func encodeABIStringForTest(s string) []byte {
	out := make([]byte, 0, 64+((len(s)+31)/32)*32)
	offset := make([]byte, 32)
	offset[31] = 32
	out = append(out, offset...)
	length := make([]byte, 32)
	length[31] = byte(len(s))
	out = append(out, length...)
	padded := make([]byte, ((len(s)+31)/32)*32)
	copy(padded, s)
	out = append(out, padded...)
	return out
}
