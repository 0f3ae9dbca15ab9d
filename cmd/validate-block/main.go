// Command validate-block cross-checks the L2 blocks already produced for
// one L1 block against the independent reference API, without running the
// importer (spec.md §6 CLI surface: "a single-block validator"). Exits
// non-zero if validation fails or the reference API is unavailable.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/peterbourgon/ff/v3"

	"github.com/ethscriptions-protocol/eth-node/op-bindings/predeploys"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/driver"
	"github.com/ethscriptions-protocol/eth-node/op-service/client"
	"github.com/ethscriptions-protocol/eth-node/op-service/sources"
)

const envPrefix = "ETH_NODE"

var (
	fs                      = flag.NewFlagSet("validate-block", flag.ContinueOnError)
	l1Network               = fs.String("l1-network", "", "mainnet, sepolia, or hoodi")
	l1GenesisBlock          = fs.Uint64("l1-genesis-block", 0, "L1 block whose state seeds L2 genesis")
	nonAuthGethRPCURL       = fs.String("non-auth-geth-rpc-url", "", "unauthenticated L2 read endpoint")
	ethscriptionsAPIBaseURL = fs.String("ethscriptions-api-base-url", "", "reference API base URL")
	l1Block                 = fs.Uint64("l1-block", 0, "L1 block number to validate")
	l2BlockHashes           = fs.String("l2-block-hashes", "", "comma-separated list of the L2 block hashes produced for this L1 block")
)

func main() {
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix(envPrefix)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ok, err := run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

func run() (bool, error) {
	log := newLogger()

	rollupCfg, err := rollup.NewConfig(rollup.L1Network(*l1Network), *l1GenesisBlock, predeploys.EthscriptionsAddr)
	if err != nil {
		return false, fmt.Errorf("failed to build rollup config: %w", err)
	}

	hashes, err := parseHashes(*l2BlockHashes)
	if err != nil {
		return false, err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l2RPC, err := client.DialContext(ctx, log, *nonAuthGethRPCURL, client.DefaultConfig(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial L2 RPC: %w", err)
	}
	defer l2RPC.Close()
	l2Client := sources.NewL2Client(l2RPC, log)

	storageReader := driver.NewStorageReader(l2Client, rollupCfg)
	apiClient := driver.NewReferenceAPIClient(*ethscriptionsAPIBaseURL)
	validator := driver.NewValidator(log, rollupCfg, l2Client, storageReader, apiClient)

	result, err := validator.ValidateL1Block(ctx, *l1Block, hashes)
	if err != nil {
		return false, fmt.Errorf("validator failed for l1 block %d: %w", *l1Block, err)
	}

	log.Info("validation result",
		"l1_block", *l1Block,
		"successful", result.Successful,
		"api_unavailable", result.APIUnavailable,
		"expected_creations", result.ExpectedCreations,
		"actual_creations", result.ActualCreations,
		"expected_transfers", result.ExpectedTransfers,
		"actual_transfers", result.ActualTransfers,
		"storage_checks", result.StorageChecks,
		"errors", result.Errors,
	)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		printSummaryTable(result)
	}
	return result.Successful && !result.APIUnavailable, nil
}

// printSummaryTable renders the expected/actual counts as a table for an
// operator reading the terminal directly; the structured log line above
// remains the machine-readable record.
func printSummaryTable(result driver.ValidationResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"field", "expected", "actual"})
	table.Append([]string{"creations", fmt.Sprint(result.ExpectedCreations), fmt.Sprint(result.ActualCreations)})
	table.Append([]string{"transfers", fmt.Sprint(result.ExpectedTransfers), fmt.Sprint(result.ActualTransfers)})
	table.Append([]string{"storage checks", "-", fmt.Sprint(result.StorageChecks)})
	table.Render()
}

func parseHashes(s string) ([]common.Hash, error) {
	parts := strings.Split(s, ",")
	hashes := make([]common.Hash, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) != 66 || !strings.HasPrefix(p, "0x") {
			return nil, fmt.Errorf("invalid l2 block hash %q", p)
		}
		hashes = append(hashes, common.HexToHash(p))
	}
	if len(hashes) == 0 {
		return nil, fmt.Errorf("l2-block-hashes is required")
	}
	return hashes, nil
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
