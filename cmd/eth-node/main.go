// Command eth-node runs the long-lived derivation daemon: it watches L1,
// builds deposit transactions for Ethscriptions protocol activity, and
// drives an Engine-API execution client to produce the L2 chain (spec.md
// §1, §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/ethscriptions-protocol/eth-node/op-bindings/predeploys"
	"github.com/ethscriptions-protocol/eth-node/op-node/node"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
)

func main() {
	app := &cli.App{
		Name:  "eth-node",
		Usage: "Ethscriptions protocol L1-to-L2 derivation node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "l1-network", EnvVars: []string{"L1_NETWORK"}, Required: true, Usage: "mainnet, sepolia, or hoodi"},
			&cli.Uint64Flag{Name: "l1-genesis-block", EnvVars: []string{"L1_GENESIS_BLOCK"}, Required: true},
			&cli.StringFlag{Name: "l1-rpc-url", EnvVars: []string{"L1_RPC_URL"}, Required: true},
			&cli.StringFlag{Name: "geth-rpc-url", EnvVars: []string{"GETH_RPC_URL"}, Required: true},
			&cli.StringFlag{Name: "non-auth-geth-rpc-url", EnvVars: []string{"NON_AUTH_GETH_RPC_URL"}, Required: true},
			&cli.StringFlag{Name: "jwt-secret", EnvVars: []string{"JWT_SECRET"}, Required: true, Usage: "path to the hex-encoded Engine API JWT secret file"},
			&cli.Uint64Flag{Name: "block-import-batch-size", EnvVars: []string{"BLOCK_IMPORT_BATCH_SIZE"}, Value: 2},
			&cli.DurationFlag{Name: "import-interval", EnvVars: []string{"IMPORT_INTERVAL"}, Value: 6 * time.Second},
			&cli.BoolFlag{Name: "validate-import", EnvVars: []string{"VALIDATE_IMPORT"}, Value: false},
			&cli.StringFlag{Name: "ethscriptions-api-base-url", EnvVars: []string{"ETHSCRIPTIONS_API_BASE_URL"}},
			&cli.Uint64Flag{Name: "l1-prefetch-forward", EnvVars: []string{"L1_PREFETCH_FORWARD"}, Value: 20},
			&cli.IntFlag{Name: "l1-prefetch-threads", EnvVars: []string{"L1_PREFETCH_THREADS"}, Value: 2},
			&cli.StringFlag{Name: "cursor-path", EnvVars: []string{"CURSOR_PATH"}, Usage: "crash-recovery datastore directory; empty disables persistence"},
			&cli.StringFlag{Name: "validation-audit-dsn", EnvVars: []string{"VALIDATION_AUDIT_DSN"}, Usage: "Postgres DSN for validator audit logging; empty disables it"},
			&cli.StringFlag{Name: "metrics-addr", EnvVars: []string{"METRICS_ADDR"}, Usage: "listen address for the Prometheus /metrics endpoint; empty disables it"},
			&cli.BoolFlag{Name: "esip7-compress", EnvVars: []string{"ESIP7_COMPRESS"}, Value: false},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := newLogger()

	cfg := node.Config{
		L1Network:              rollup.L1Network(c.String("l1-network")),
		L1GenesisBlock:          c.Uint64("l1-genesis-block"),
		L1RPCURL:                c.String("l1-rpc-url"),
		GethRPCURL:              c.String("geth-rpc-url"),
		NonAuthGethRPCURL:       c.String("non-auth-geth-rpc-url"),
		JWTSecretPath:           c.String("jwt-secret"),
		BlockImportBatchSize:    c.Uint64("block-import-batch-size"),
		ImportInterval:          c.Duration("import-interval"),
		ValidateImport:          c.Bool("validate-import"),
		EthscriptionsAPIBaseURL: c.String("ethscriptions-api-base-url"),
		L1PrefetchForward:       c.Uint64("l1-prefetch-forward"),
		L1PrefetchThreads:       c.Int("l1-prefetch-threads"),
		EthscriptionsAddr:       predeploys.EthscriptionsAddr,
		CursorPath:              c.String("cursor-path"),
		ValidationAuditDSN:      c.String("validation-audit-dsn"),
		MetricsAddr:             c.String("metrics-addr"),
		ESIP7Compress:           c.Bool("esip7-compress"),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	n, err := node.New(ctx, log, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize node: %w", err)
	}
	defer n.Close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(log, cfg.MetricsAddr)
	}

	log.Info("starting eth-node", "l1_network", cfg.L1Network, "l1_genesis_block", cfg.L1GenesisBlock, "validate_import", cfg.ValidateImport)
	return n.Run(ctx)
}

func serveMetrics(log gethlog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	log.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", "err", err)
	}
}

// newLogger picks a terminal or JSON handler depending on whether stdout is
// an interactive TTY (SPEC_FULL.md §4.9).
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
