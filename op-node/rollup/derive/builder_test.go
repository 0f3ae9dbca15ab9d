package derive

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ethscriptions-protocol/eth-node/op-node/testlog"
	"github.com/ethscriptions-protocol/eth-node/op-service/solabi"
)

func newTestBuilder(t *testing.T, bc BuilderConfig) *Builder {
	t.Helper()
	return NewBuilder(testlog.NopLogger(), testConfig(t), bc)
}

func TestBuildTransferEncodesSelectorAndArgs(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})

	to := common.HexToAddress("0x01")
	ethscriptionHash := common.HexToHash("0x02")
	op := NewTransfer(common.HexToHash("0xff"), 3, 1, common.HexToAddress("0x03"), to, ethscriptionHash)

	tx, err := b.Build(common.HexToHash("0xaa"), 100, op, 0)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, predeploysEthscriptionsAddrForTest(t), *tx.To)
	require.Equal(t, op.Xfer.From, tx.From)

	r := bytes.NewReader(tx.Data)
	_, err = solabi.ReadAndValidateSignature(r, transferEthscriptionBytes4)
	require.NoError(t, err)
	gotTo, err := solabi.ReadAddress(r)
	require.NoError(t, err)
	require.Equal(t, to, gotTo)
	gotHash, err := solabi.ReadHash(r)
	require.NoError(t, err)
	require.Equal(t, ethscriptionHash, gotHash)
	require.True(t, solabi.EmptyReader(r))
}

func TestBuildTransferPrevOwnerEncodesExpectedPreviousOwner(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})

	to := common.HexToAddress("0x01")
	prevOwner := common.HexToAddress("0x05")
	ethscriptionHash := common.HexToHash("0x02")
	op := NewTransferPrevOwner(common.HexToHash("0xff"), 3, 1, common.HexToAddress("0x03"), to, ethscriptionHash, prevOwner)

	tx, err := b.Build(common.HexToHash("0xaa"), 100, op, 0)
	require.NoError(t, err)

	r := bytes.NewReader(tx.Data)
	_, err = solabi.ReadAndValidateSignature(r, transferEthscriptionForPreviousOwnerBytes4)
	require.NoError(t, err)
	_, _ = solabi.ReadAddress(r)
	_, _ = solabi.ReadHash(r)
	gotPrev, err := solabi.ReadAddress(r)
	require.NoError(t, err)
	require.Equal(t, prevOwner, gotPrev)
}

func TestBuildCreateFromInputEncodesContentURIAndOwner(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})

	from := common.HexToAddress("0x09")
	op := NewCreateFromInput(common.HexToHash("0xff"), 0, from, "data:,hello", true, nil)

	tx, err := b.Build(common.HexToHash("0xaa"), 100, op, 0)
	require.NoError(t, err)
	require.Equal(t, from, tx.From, "input-derived create spoofs from as the L1 tx sender")

	r := bytes.NewReader(tx.Data)
	_, err = solabi.ReadAndValidateSignature(r, createEthscriptionBytes4)
	require.NoError(t, err)
	tupleOffset, err := solabi.ReadUint64(r)
	require.NoError(t, err)
	require.Equal(t, uint64(32), tupleOffset)

	tuple := tx.Data[4+tupleOffset:]
	tr := bytes.NewReader(tuple)
	_, err = solabi.ReadHash(tr) // transactionHash
	require.NoError(t, err)
	gotOwner, err := solabi.ReadAddress(tr)
	require.NoError(t, err)
	require.Equal(t, op.Create.InitialOwner, gotOwner)
	contentOffset, err := solabi.ReadUint64(tr)
	require.NoError(t, err)
	gotContent, err := solabi.ReadBytes(bytes.NewReader(tuple[contentOffset:]))
	require.NoError(t, err)
	require.Equal(t, "data:,hello", string(gotContent))
}

func TestBuildCreateFromEventSpoofsEmitterAsFrom(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})

	emitter := common.HexToAddress("0x0a")
	owner := common.HexToAddress("0x0b")
	op := NewCreateFromEvent(common.HexToHash("0xff"), 0, 2, emitter, owner, "data:,hi", false)

	tx, err := b.Build(common.HexToHash("0xaa"), 100, op, 0)
	require.NoError(t, err)
	require.Equal(t, emitter, tx.From, "event-derived create spoofs from as the emitting contract")
}

func TestBuildSourceHashVariesWithSubIndex(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})
	op := NewTransfer(common.HexToHash("0xff"), 1, 1, common.HexToAddress("0x01"), common.HexToAddress("0x02"), common.HexToHash("0x03"))

	tx0, err := b.Build(common.HexToHash("0xaa"), 100, op, 0)
	require.NoError(t, err)
	tx1, err := b.Build(common.HexToHash("0xaa"), 100, op, 1)
	require.NoError(t, err)
	require.NotEqual(t, tx0.SourceHash, tx1.SourceHash)
}

func TestBuildMultiTransferExpandsOneDepositPerHash(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})
	hashes := []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02"), common.HexToHash("0x03")}
	op := NewMultiTransfer(common.HexToHash("0xff"), 4, common.HexToAddress("0x05"), common.HexToAddress("0x06"), hashes)

	txs, err := b.BuildMulti(common.HexToHash("0xaa"), op)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	seen := make(map[common.Hash]bool)
	for i, tx := range txs {
		require.Equal(t, op.XferAll.From, tx.From)
		r := bytes.NewReader(tx.Data)
		_, err := solabi.ReadAndValidateSignature(r, transferEthscriptionBytes4)
		require.NoError(t, err)
		_, err = solabi.ReadAddress(r)
		require.NoError(t, err)
		gotHash, err := solabi.ReadHash(r)
		require.NoError(t, err)
		require.Equal(t, hashes[i], gotHash)

		require.False(t, seen[tx.SourceHash], "source hashes must be unique across multi-transfer entries")
		seen[tx.SourceHash] = true
	}
}

func TestSplitMimetype(t *testing.T) {
	cases := []struct {
		uri                                   string
		mimetype, mediaType, mimeSubtype string
	}{
		{"data:,hello", "", "", ""},
		{"data:image/png;base64,xyz", "image/png", "image", "png"},
		{"data:text/plain,hi", "text/plain", "text", "plain"},
		{"not-a-data-uri", "", "", ""},
	}
	for _, c := range cases {
		mt, media, sub := SplitMimetype(c.uri)
		require.Equal(t, c.mimetype, mt, c.uri)
		require.Equal(t, c.mediaType, media, c.uri)
		require.Equal(t, c.mimeSubtype, sub, c.uri)
	}
}

func TestBuildCreateESIP7CompressionOnlyWhenSmaller(t *testing.T) {
	cfg := testConfig(t)
	cfg.ESIP.ESIP7 = 0 // active from genesis for this test
	b := NewBuilder(testlog.NopLogger(), cfg, BuilderConfig{ESIP7Compress: true})

	// Highly repetitive content compresses smaller; a short, high-entropy
	// string does not and must be left uncompressed.
	repetitive := ""
	for i := 0; i < 200; i++ {
		repetitive += "aaaaaaaaaa"
	}
	op := NewCreateFromInput(common.HexToHash("0xff"), 0, common.HexToAddress("0x01"), "data:,"+repetitive, false, nil)

	tx, err := b.Build(common.HexToHash("0xaa"), 1, op, 0)
	require.NoError(t, err)
	require.NotNil(t, tx)

	// isCompressed is word 7 of the tuple that follows the selector and the
	// single tuple offset word.
	isCompressed := func(data []byte) bool {
		tuple := data[4+32:]
		return tuple[7*32+31] != 0
	}
	require.True(t, isCompressed(tx.Data), "repetitive content is sent compressed")

	short := NewCreateFromInput(common.HexToHash("0xfe"), 1, common.HexToAddress("0x01"), "data:,x7Qz", false, nil)
	shortTx, err := b.Build(common.HexToHash("0xaa"), 1, short, 0)
	require.NoError(t, err)
	require.NotNil(t, shortTx)
	require.False(t, isCompressed(shortTx.Data), "short content does not shrink and is sent uncompressed")
}

func predeploysEthscriptionsAddrForTest(t *testing.T) common.Address {
	t.Helper()
	return testConfig(t).EthscriptionsAddr
}
