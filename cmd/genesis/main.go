// Command genesis produces the L2 genesis allocation that seeds the
// Ethscriptions predeploys at L2 block 0, derived from L1_GENESIS_BLOCK
// (spec.md §6 CLI surface, SPEC_FULL.md §4 "Genesis generator").
//
// Contract bytecode for the predeploys is out of scope (spec.md §1): this
// tool emits a go-ethereum core.Genesis whose Alloc reserves the predeploy
// addresses (zero balance, empty code) for an operator to overlay with the
// real deployed bytecode before handing the file to `geth init`.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/params"
	"github.com/peterbourgon/ff/v3"

	"github.com/ethscriptions-protocol/eth-node/op-bindings/predeploys"
)

const envPrefix = "ETH_NODE_GENESIS"

var (
	fs             = flag.NewFlagSet("genesis", flag.ContinueOnError)
	l1GenesisBlock = fs.Uint64("l1-genesis-block", 0, "L1 block whose state seeds L2 genesis (L1_GENESIS_BLOCK)")
	chainID        = fs.Uint64("chain-id", 1, "L2 chain ID to embed in the genesis chain config")
	gasLimit       = fs.Uint64("gas-limit", 30_000_000, "L2 genesis gas limit")
	outPath        = fs.String("out", "genesis.json", "file to write the genesis JSON to")
)

func main() {
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix(envPrefix)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *l1GenesisBlock == 0 {
		fmt.Fprintln(os.Stderr, "l1-genesis-block is required and must be nonzero")
		os.Exit(1)
	}

	g := buildGenesis(*l1GenesisBlock, *chainID, *gasLimit)

	out, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to marshal genesis:", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outPath, out, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "failed to write genesis file:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote L2 genesis for l1_genesis_block=%d chain_id=%d to %s\n", *l1GenesisBlock, *chainID, *outPath)
}

// buildGenesis derives an L2 genesis from l1GenesisBlock. ExtraData records
// the L1 origin block the genesis was derived from, so an operator can
// confirm a genesis.json matches the L1_GENESIS_BLOCK a daemon was started
// with before trusting the chain it produces.
func buildGenesis(l1GenesisBlock, chainID, gasLimit uint64) *core.Genesis {
	cfg := *params.AllEthashProtocolChanges
	cfg.ChainID = new(big.Int).SetUint64(chainID)

	alloc := core.GenesisAlloc{
		predeploys.L1BlockAddr: core.GenesisAccount{
			Balance: big.NewInt(0),
		},
		predeploys.EthscriptionsAddr: core.GenesisAccount{
			Balance: big.NewInt(0),
		},
	}

	return &core.Genesis{
		Config:     &cfg,
		Timestamp:  0,
		ExtraData:  []byte(fmt.Sprintf("ethscriptions-l1-genesis-block:%d", l1GenesisBlock)),
		GasLimit:   gasLimit,
		Difficulty: big.NewInt(1),
		Alloc:      alloc,
		Number:     0,
	}
}
