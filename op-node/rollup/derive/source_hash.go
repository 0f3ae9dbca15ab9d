package derive

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain-separation scheme for SourceHash derivation, generalized from the
// teacher's L1InfoDepositSource in l1_block_info.go (there hard-coded to the
// single L1-attributes domain).
const (
	// UserDepositSourceDomain is used for every deposit transaction the
	// Builder emits from a detected Operation (spec.md §4.3).
	UserDepositSourceDomain uint64 = 0
	// L1InfoDepositSourceDomain is used for the single L1-attributes system
	// deposit prepended to every L2 block (spec.md §4.4).
	L1InfoDepositSourceDomain uint64 = 1
)

func domainAndDepositID(domain uint64, depositID common.Hash) common.Hash {
	var buf [64]byte
	binary.BigEndian.PutUint64(buf[24:32], domain)
	copy(buf[32:64], depositID[:])
	return crypto.Keccak256Hash(buf[:])
}

// L1InfoDepositSource derives the SourceHash of the L1-attributes deposit,
// matching the teacher's L1InfoDepositSource exactly: domain 1 over
// (l1BlockHash, seqNumber).
type L1InfoDepositSource struct {
	L1BlockHash common.Hash
	SeqNumber   uint64
}

func (s L1InfoDepositSource) SourceHash() common.Hash {
	var seq [32]byte
	binary.BigEndian.PutUint64(seq[24:32], s.SeqNumber)
	depositID := crypto.Keccak256Hash(append(append([]byte{}, s.L1BlockHash[:]...), seq[:]...))
	return domainAndDepositID(L1InfoDepositSourceDomain, depositID)
}

// OperationDepositSource derives the SourceHash for a deposit transaction
// built from a detected Operation. Unlike the teacher's UserDepositSource
// (keyed on L1BlockHash+LogIndex, sufficient for a single deposit-per-log
// Optimism L1), a single Ethscriptions operation can originate from
// calldata rather than a log (LogIndex -1, spec.md §3), and an ESIP-5
// multi-hash input transaction expands into several transfer deposits from
// the same tx. SubIndex disambiguates those: BuildMulti sets it to the hash
// chunk index, and for every other operation the Proposer passes a running
// count of the single-deposit operations built so far in the L1 block.
type OperationDepositSource struct {
	L1BlockHash common.Hash
	TxIndex     uint64
	LogIndex    int64
	SubIndex    uint64
}

func (s OperationDepositSource) SourceHash() common.Hash {
	var buf [32 + 8 + 8 + 8]byte
	copy(buf[0:32], s.L1BlockHash[:])
	binary.BigEndian.PutUint64(buf[32:40], s.TxIndex)
	binary.BigEndian.PutUint64(buf[40:48], uint64(s.LogIndex))
	binary.BigEndian.PutUint64(buf[48:56], s.SubIndex)
	depositID := crypto.Keccak256Hash(buf[:])
	return domainAndDepositID(UserDepositSourceDomain, depositID)
}
