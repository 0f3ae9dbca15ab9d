package derive

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestSourceHashDeterministic(t *testing.T) {
	s := OperationDepositSource{
		L1BlockHash: common.HexToHash("0x01"),
		TxIndex:     1,
		LogIndex:    2,
		SubIndex:    3,
	}
	require.Equal(t, s.SourceHash(), s.SourceHash())
}

func TestSourceHashDomainSeparation(t *testing.T) {
	base := OperationDepositSource{
		L1BlockHash: common.HexToHash("0xaa"),
		TxIndex:     1,
		LogIndex:    2,
		SubIndex:    3,
	}
	variants := []OperationDepositSource{
		{L1BlockHash: common.HexToHash("0xbb"), TxIndex: base.TxIndex, LogIndex: base.LogIndex, SubIndex: base.SubIndex},
		{L1BlockHash: base.L1BlockHash, TxIndex: base.TxIndex + 1, LogIndex: base.LogIndex, SubIndex: base.SubIndex},
		{L1BlockHash: base.L1BlockHash, TxIndex: base.TxIndex, LogIndex: base.LogIndex + 1, SubIndex: base.SubIndex},
		{L1BlockHash: base.L1BlockHash, TxIndex: base.TxIndex, LogIndex: base.LogIndex, SubIndex: base.SubIndex + 1},
	}
	baseHash := base.SourceHash()
	for i, v := range variants {
		require.NotEqual(t, baseHash, v.SourceHash(), "variant %d collided with base", i)
	}
}

func TestSourceHashInputDerivedLogIndexIsMinusOne(t *testing.T) {
	// Input-derived operations use LogIndex -1; this must not collide with
	// an event-derived operation at LogIndex 0 from the same tx.
	a := OperationDepositSource{L1BlockHash: common.HexToHash("0x01"), TxIndex: 5, LogIndex: -1, SubIndex: 0}
	b := OperationDepositSource{L1BlockHash: common.HexToHash("0x01"), TxIndex: 5, LogIndex: 0, SubIndex: 0}
	require.NotEqual(t, a.SourceHash(), b.SourceHash())
}

func TestL1InfoDepositSourceDiffersFromOperationDomain(t *testing.T) {
	l1Info := L1InfoDepositSource{L1BlockHash: common.HexToHash("0x01"), SeqNumber: 0}
	op := OperationDepositSource{L1BlockHash: common.HexToHash("0x01"), TxIndex: 0, LogIndex: -1, SubIndex: 0}
	require.NotEqual(t, l1Info.SourceHash(), op.SourceHash(), "L1-attributes and user-deposit domains must not collide")
}
