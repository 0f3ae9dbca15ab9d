// Command import-block imports exactly one L1 block into the L2 chain: it
// dials the same endpoints as the eth-node daemon, but runs a single
// prefetch+build+propose cycle instead of the tick loop (spec.md §6 CLI
// surface: "a single-block importer"). Exits non-zero on failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/peterbourgon/ff/v3"

	"github.com/ethscriptions-protocol/eth-node/op-bindings/predeploys"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/derive"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/driver"
	"github.com/ethscriptions-protocol/eth-node/op-service/client"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
	"github.com/ethscriptions-protocol/eth-node/op-service/jwt"
	"github.com/ethscriptions-protocol/eth-node/op-service/sources"
)

const envPrefix = "ETH_NODE"

var (
	fs                = flag.NewFlagSet("import-block", flag.ContinueOnError)
	l1Network         = fs.String("l1-network", "", "mainnet, sepolia, or hoodi")
	l1GenesisBlock    = fs.Uint64("l1-genesis-block", 0, "L1 block whose state seeds L2 genesis")
	l1RPCURL          = fs.String("l1-rpc-url", "", "L1 JSON-RPC endpoint")
	gethRPCURL        = fs.String("geth-rpc-url", "", "authenticated Engine API endpoint")
	nonAuthGethRPCURL = fs.String("non-auth-geth-rpc-url", "", "unauthenticated L2 read endpoint")
	jwtSecretPath     = fs.String("jwt-secret", "", "path to the hex-encoded Engine API JWT secret file")
	l1Block           = fs.Uint64("l1-block", 0, "L1 block number to import")
)

func main() {
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix(envPrefix)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	log := newLogger()

	rollupCfg, err := rollup.NewConfig(rollup.L1Network(*l1Network), *l1GenesisBlock, predeploys.EthscriptionsAddr)
	if err != nil {
		return fmt.Errorf("failed to build rollup config: %w", err)
	}

	jwtSource, err := jwt.NewFileSource(log, *jwtSecretPath)
	if err != nil {
		return fmt.Errorf("failed to load jwt secret: %w", err)
	}
	defer jwtSource.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l1RPC, err := client.DialContext(ctx, log, *l1RPCURL, client.DefaultConfig(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial L1 RPC: %w", err)
	}
	defer l1RPC.Close()
	l2RPC, err := client.DialContext(ctx, log, *nonAuthGethRPCURL, client.DefaultConfig(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial L2 RPC: %w", err)
	}
	defer l2RPC.Close()
	engineRPC, err := client.DialContext(ctx, log, *gethRPCURL, client.DefaultConfig(), jwtSource.Token)
	if err != nil {
		return fmt.Errorf("failed to dial Engine API: %w", err)
	}
	defer engineRPC.Close()

	l1Client, err := sources.NewL1Client(l1RPC, log, nil)
	if err != nil {
		return fmt.Errorf("failed to construct L1 client: %w", err)
	}
	l2Client := sources.NewL2Client(l2RPC, log)
	engineClient := sources.NewEngineClient(engineRPC, log)

	detector := derive.NewDetector(log, rollupCfg)
	builder := derive.NewBuilder(log, rollupCfg, derive.BuilderConfig{})

	prefetcher := driver.NewPrefetcher(log, rollupCfg, l1Client, detector, driver.DefaultPrefetcherConfig())

	initialHead, err := currentHeadCache(ctx, l2Client)
	if err != nil {
		return fmt.Errorf("failed to read current L2 head from execution client: %w", err)
	}
	proposer := driver.NewProposer(log, rollupCfg, engineClient, builder, driver.DefaultProposerConfig(), initialHead)

	if err := prefetcher.EnsurePrefetched(ctx, *l1Block); err != nil {
		return fmt.Errorf("failed to ensure prefetch of l1 block %d: %w", *l1Block, err)
	}
	bundle, err := prefetcher.Fetch(ctx, *l1Block)
	if err != nil {
		return fmt.Errorf("failed to fetch l1 block %d: %w", *l1Block, err)
	}

	payloads, err := proposer.ProcessL1Block(ctx, bundle.Block, bundle.Ops)
	if err != nil {
		return fmt.Errorf("failed to import l1 block %d: %w", *l1Block, err)
	}

	hashes := make([]common.Hash, len(payloads))
	for i, p := range payloads {
		hashes[i] = p.BlockHash
	}
	log.Info("imported l1 block", "l1_block", *l1Block, "operations", len(bundle.Ops), "l2_blocks", hashes)
	return nil
}

// currentHeadCache mirrors node.bootstrapHeadCache: a single-block importer
// runs against an already-initialized L2 chain, so it seeds the Proposer's
// head from whatever the execution client currently reports.
func currentHeadCache(ctx context.Context, l2 *sources.L2Client) (eth.HeadCache, error) {
	refFor := func(label eth.BlockLabel) (eth.L2BlockRef, error) {
		header, err := l2.HeaderByTag(ctx, eth.BlockTagLabel(label))
		if err != nil {
			return eth.L2BlockRef{}, err
		}
		return eth.L2BlockRef{
			Hash:       header.Hash(),
			Number:     header.Number.Uint64(),
			ParentHash: header.ParentHash,
			Time:       header.Time,
		}, nil
	}
	unsafe, err := refFor(eth.Unsafe)
	if err != nil {
		return eth.HeadCache{}, err
	}
	safe, err := refFor(eth.Safe)
	if err != nil {
		return eth.HeadCache{}, err
	}
	finalized, err := refFor(eth.Finalized)
	if err != nil {
		return eth.HeadCache{}, err
	}
	return eth.HeadCache{Unsafe: unsafe, Safe: safe, Finalized: finalized}, nil
}

func newLogger() gethlog.Logger {
	var handler gethlog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = gethlog.StreamHandler(os.Stdout, gethlog.TerminalFormat(true))
	} else {
		handler = gethlog.StreamHandler(os.Stdout, gethlog.JSONFormat())
	}
	l := gethlog.New()
	l.SetHandler(handler)
	return l
}
