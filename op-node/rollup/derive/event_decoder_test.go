package derive

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
)

func testConfig(t *testing.T) *rollup.Config {
	t.Helper()
	cfg, err := rollup.NewConfig(rollup.Sepolia, 1000, common.HexToAddress("0x4200000000000000000000000000000000000099"))
	require.NoError(t, err)
	return cfg
}

func TestDecodeCreationEvent(t *testing.T) {
	cfg := testConfig(t)
	d := NewEventDecoder(cfg)

	txHash := common.HexToHash("0xaa")
	creator := common.HexToAddress("0x01")
	owner := common.HexToAddress("0x02")
	contentSha := common.HexToHash("0xbb")

	data := make([]byte, 96)
	copy(data[0:32], contentSha[:])
	big.NewInt(7).FillBytes(data[32:64])
	big.NewInt(0).FillBytes(data[64:96])

	receipt := &types.Receipt{Logs: []*types.Log{{
		Address: cfg.EthscriptionsAddr,
		Topics:  []common.Hash{EthscriptionCreatedSig, txHash, creator.Hash(), owner.Hash()},
		Data:    data,
	}}}

	out := d.DecodeReceiptLogs(receipt)
	require.Len(t, out.Creations, 1)
	require.Empty(t, out.Transfers)

	ev := out.Creations[0]
	require.Equal(t, txHash, ev.TxHash)
	require.Equal(t, creator, ev.Creator)
	require.Equal(t, owner, ev.InitialOwner)
	require.Equal(t, contentSha, ev.ContentSha)
	require.Equal(t, big.NewInt(7), ev.EthscriptionNumber)
}

func TestDecodeTransferEvent(t *testing.T) {
	cfg := testConfig(t)
	d := NewEventDecoder(cfg)

	txHash := common.HexToHash("0xcc")
	from := common.HexToAddress("0x03")
	to := common.HexToAddress("0x04")

	data := make([]byte, 32)
	big.NewInt(42).FillBytes(data)

	receipt := &types.Receipt{Logs: []*types.Log{{
		Address: cfg.EthscriptionsAddr,
		Topics:  []common.Hash{EthscriptionTransferredSig, txHash, from.Hash(), to.Hash()},
		Data:    data,
	}}}

	out := d.DecodeReceiptLogs(receipt)
	require.Len(t, out.Transfers, 1)
	require.Empty(t, out.Creations)

	ev := out.Transfers[0]
	require.Equal(t, txHash, ev.TxHash)
	require.Equal(t, from, ev.From)
	require.Equal(t, to, ev.To)
	require.Equal(t, big.NewInt(42), ev.EthscriptionNumber)
}

func TestDecodeIgnoresLogsFromOtherAddresses(t *testing.T) {
	cfg := testConfig(t)
	d := NewEventDecoder(cfg)

	receipt := &types.Receipt{Logs: []*types.Log{{
		Address: common.HexToAddress("0xdeadbeef"),
		Topics:  []common.Hash{EthscriptionCreatedSig, {}, {}, {}},
		Data:    make([]byte, 96),
	}}}

	out := d.DecodeReceiptLogs(receipt)
	require.Empty(t, out.Creations)
	require.Empty(t, out.Transfers)
}

func TestDecodeMalformedLogIsDropped(t *testing.T) {
	cfg := testConfig(t)
	d := NewEventDecoder(cfg)

	receipt := &types.Receipt{Logs: []*types.Log{{
		Address: cfg.EthscriptionsAddr,
		Topics:  []common.Hash{EthscriptionCreatedSig, {}, {}}, // missing a topic
		Data:    make([]byte, 96),
	}}}

	out := d.DecodeReceiptLogs(receipt)
	require.Empty(t, out.Creations)
}

func TestDecodeBlockReceiptsAggregatesInOrder(t *testing.T) {
	cfg := testConfig(t)
	d := NewEventDecoder(cfg)

	mkCreation := func(n int64) *types.Receipt {
		data := make([]byte, 96)
		big.NewInt(n).FillBytes(data[32:64])
		return &types.Receipt{Logs: []*types.Log{{
			Address: cfg.EthscriptionsAddr,
			Topics:  []common.Hash{EthscriptionCreatedSig, {}, {}, {}},
			Data:    data,
		}}}
	}

	agg := d.DecodeBlockReceipts([]*types.Receipt{mkCreation(1), mkCreation(2)})
	require.Len(t, agg.Creations, 2)
	require.Equal(t, big.NewInt(1), agg.Creations[0].EthscriptionNumber)
	require.Equal(t, big.NewInt(2), agg.Creations[1].EthscriptionNumber)
}
