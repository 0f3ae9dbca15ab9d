package node

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethscriptions-protocol/eth-node/op-node/metrics"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/derive"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/driver"
	"github.com/ethscriptions-protocol/eth-node/op-service/client"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
	"github.com/ethscriptions-protocol/eth-node/op-service/jwt"
	"github.com/ethscriptions-protocol/eth-node/op-service/sources"
)

// bootstrapHeadCache seeds the Proposer's HeadCache from whatever the L2
// execution client already has as its unsafe/safe/finalized heads — at
// first launch against a fresh chain this is L2 genesis (block 0) for all
// three labels.
func bootstrapHeadCache(ctx context.Context, l2 *sources.L2Client) (eth.HeadCache, error) {
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

// Node owns every long-lived resource constructed from a Config: RPC
// connections, the JWT secret watcher, the cursor datastore, and the
// Driver itself. Close releases them all.
type Node struct {
	log log.Logger

	l1RPC     client.RPC
	l2RPC     client.RPC
	engineRPC client.RPC
	jwtSource *jwt.Source
	cursor    *driver.Cursor
	auditLog  *driver.AuditLog

	driver *driver.Driver
}

// New dials every configured endpoint and wires the full derivation
// pipeline (op-node/rollup/{derive,driver} per SPEC_FULL.md §4) into a
// single Driver, ready to Run.
func New(ctx context.Context, log log.Logger, cfg Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rollupCfg, err := rollup.NewConfig(cfg.L1Network, cfg.L1GenesisBlock, cfg.EthscriptionsAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to build rollup config: %w", err)
	}

	jwtSource, err := jwt.NewFileSource(log, cfg.JWTSecretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load jwt secret: %w", err)
	}

	l1RPC, err := client.DialContext(ctx, log, cfg.L1RPCURL, client.DefaultConfig(), nil)
	if err != nil {
		jwtSource.Close()
		return nil, fmt.Errorf("failed to dial L1 RPC: %w", err)
	}
	l2RPC, err := client.DialContext(ctx, log, cfg.NonAuthGethRPCURL, client.DefaultConfig(), nil)
	if err != nil {
		jwtSource.Close()
		l1RPC.Close()
		return nil, fmt.Errorf("failed to dial L2 RPC: %w", err)
	}
	engineRPC, err := client.DialContext(ctx, log, cfg.GethRPCURL, client.DefaultConfig(), jwtSource.Token)
	if err != nil {
		jwtSource.Close()
		l1RPC.Close()
		l2RPC.Close()
		return nil, fmt.Errorf("failed to dial Engine API: %w", err)
	}

	l1Client, err := sources.NewL1Client(l1RPC, log, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to construct L1 client: %w", err)
	}
	l2Client := sources.NewL2Client(l2RPC, log)
	engineClient := sources.NewEngineClient(engineRPC, log)

	detector := derive.NewDetector(log, rollupCfg)
	builder := derive.NewBuilder(log, rollupCfg, derive.BuilderConfig{ESIP7Compress: cfg.ESIP7Compress})

	prefetcherCfg := driver.DefaultPrefetcherConfig()
	prefetcherCfg.Ahead = cfg.L1PrefetchForward
	if cfg.L1PrefetchThreads > 0 {
		prefetcherCfg.PoolSize = cfg.L1PrefetchThreads
	}
	prefetcher := driver.NewPrefetcher(log, rollupCfg, l1Client, detector, prefetcherCfg)

	var m metrics.DriverMetrics = metrics.NoopMetrics{}
	if cfg.MetricsAddr != "" {
		m = metrics.NewPrometheusMetrics("eth_node", prometheus.DefaultRegisterer)
	}

	initialHead, err := bootstrapHeadCache(ctx, l2Client)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap head cache from L2 execution client: %w", err)
	}

	var cursor *driver.Cursor
	startAt := rollupCfg.L2GenesisL1Origin()
	if cfg.CursorPath != "" {
		cursor, err = driver.OpenCursor(cfg.CursorPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open cursor: %w", err)
		}
		if n, ok, err := cursor.NextL1Block(ctx); err != nil {
			return nil, fmt.Errorf("failed to read cursor: %w", err)
		} else if ok {
			startAt = n
		}
		if hc, ok, err := cursor.HeadCache(ctx); err != nil {
			return nil, fmt.Errorf("failed to read head cache: %w", err)
		} else if ok {
			initialHead = hc
		}
	}

	proposer := driver.NewProposer(log, rollupCfg, engineClient, builder, driver.DefaultProposerConfig(), initialHead)

	var validator *driver.Validator
	if cfg.ValidateImport {
		storageReader := driver.NewStorageReader(l2Client, rollupCfg)
		apiClient := driver.NewReferenceAPIClient(cfg.EthscriptionsAPIBaseURL)
		validator = driver.NewValidator(log, rollupCfg, l2Client, storageReader, apiClient)
	}

	var auditLog *driver.AuditLog
	if cfg.ValidationAuditDSN != "" {
		auditLog, err = driver.OpenAuditLog(log, cfg.ValidationAuditDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open validation audit log: %w", err)
		}
	}

	driverCfg := driver.Config{
		BatchSize:      cfg.BlockImportBatchSize,
		ImportInterval: cfg.ImportInterval,
		ValidateImport: cfg.ValidateImport,
	}
	d := driver.NewDriver(log, driverCfg, prefetcher, proposer, validator, cursor, m, auditLog, startAt)

	return &Node{
		log:       log,
		l1RPC:     l1RPC,
		l2RPC:     l2RPC,
		engineRPC: engineRPC,
		jwtSource: jwtSource,
		cursor:    cursor,
		auditLog:  auditLog,
		driver:    d,
	}, nil
}

// Run blocks until ctx is canceled or a critical error occurs.
func (n *Node) Run(ctx context.Context) error {
	return n.driver.Run(ctx)
}

// Close releases every resource New acquired.
func (n *Node) Close() error {
	n.l1RPC.Close()
	n.l2RPC.Close()
	n.engineRPC.Close()
	if err := n.jwtSource.Close(); err != nil {
		n.log.Warn("failed to close jwt secret watcher", "err", err)
	}
	if n.cursor != nil {
		if err := n.cursor.Close(); err != nil {
			n.log.Warn("failed to close cursor", "err", err)
		}
	}
	if n.auditLog != nil {
		if err := n.auditLog.Close(); err != nil {
			n.log.Warn("failed to close validation audit log", "err", err)
		}
	}
	return nil
}
