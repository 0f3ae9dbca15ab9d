package derive

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"github.com/ethscriptions-protocol/eth-node/op-service/solabi"
)

// TestBuildTransferRoundTripsRandomArgs fuzzes the from/to/ethscription-hash
// fields of a transfer Operation and asserts the Builder's ABI-encoded call
// decodes back to the same values, for a few hundred random seeds (spec.md
// §8 "round trip" property).
func TestBuildTransferRoundTripsRandomArgs(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})
	f := fuzz.New().NilChance(0).NumElements(1, 1)

	for i := 0; i < 300; i++ {
		var from, to common.Address
		var ethscriptionHash, txHash common.Hash
		f.Fuzz(&from)
		f.Fuzz(&to)
		f.Fuzz(&ethscriptionHash)
		f.Fuzz(&txHash)

		op := NewTransfer(txHash, 1, 1, from, to, ethscriptionHash)
		tx, err := b.Build(common.HexToHash("0xaa"), 100, op, 0)
		require.NoError(t, err)

		r := bytes.NewReader(tx.Data)
		_, err = solabi.ReadAndValidateSignature(r, transferEthscriptionBytes4)
		require.NoError(t, err)
		gotTo, err := solabi.ReadAddress(r)
		require.NoError(t, err)
		gotHash, err := solabi.ReadHash(r)
		require.NoError(t, err)

		require.Equal(t, to, gotTo)
		require.Equal(t, ethscriptionHash, gotHash)
		require.Equal(t, from, tx.From)
		require.True(t, solabi.EmptyReader(r))
	}
}

// TestBuildCreateFromInputRoundTripsRandomContent fuzzes the content URI
// string build input and asserts the encoded call decodes back to the exact
// same bytes, including strings containing ABI word-boundary edge lengths.
func TestBuildCreateFromInputRoundTripsRandomContent(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})
	f := fuzz.New().NilChance(0)

	for i := 0; i < 200; i++ {
		var from common.Address
		f.Fuzz(&from)
		var raw string
		f.Fuzz(&raw)
		contentURI := "data:," + raw

		op := NewCreateFromInput(common.HexToHash("0xff"), 0, from, contentURI, true, nil)
		tx, err := b.Build(common.HexToHash("0xaa"), 100, op, 0)
		require.NoError(t, err)
		require.Equal(t, from, tx.From)

		r := bytes.NewReader(tx.Data)
		_, err = solabi.ReadAndValidateSignature(r, createEthscriptionBytes4)
		require.NoError(t, err)
		tupleOffset, err := solabi.ReadUint64(r)
		require.NoError(t, err)

		tuple := tx.Data[4+tupleOffset:]
		tr := bytes.NewReader(tuple)
		_, err = solabi.ReadHash(tr) // transactionHash
		require.NoError(t, err)
		_, err = solabi.ReadAddress(tr) // initialOwner
		require.NoError(t, err)
		contentOffset, err := solabi.ReadUint64(tr)
		require.NoError(t, err)
		gotContent, err := solabi.ReadBytes(bytes.NewReader(tuple[contentOffset:]))
		require.NoError(t, err)
		require.Equal(t, contentURI, string(gotContent))
	}
}
