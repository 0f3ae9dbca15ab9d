package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethscriptions-protocol/eth-node/op-node/metrics"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/derive"
)

// Config bundles the per-tick parameters of spec.md §6: how many L1 blocks
// to import per tick, how long to sleep between ticks, and whether to run
// the validator after each one.
type Config struct {
	BatchSize      uint64
	ImportInterval time.Duration
	ValidateImport bool
}

func DefaultConfig() Config {
	return Config{BatchSize: 2, ImportInterval: 6 * time.Second, ValidateImport: false}
}

// Driver runs the per-tick derivation loop of spec.md §2: select the next
// batch of L1 blocks, prefetch and detect operations for each, build and
// commit one or more L2 blocks per L1 block via the Proposer, and
// optionally cross-check each result with the Validator. It owns no
// concurrency of its own beyond what the Prefetcher already provides —
// everything here runs sequentially on a single goroutine.
type Driver struct {
	log log.Logger
	cfg Config

	prefetcher *Prefetcher
	proposer   *Proposer
	validator  *Validator
	cursor     *Cursor
	metrics    metrics.DriverMetrics
	auditLog   *AuditLog

	nextL1Block uint64
}

func NewDriver(log log.Logger, cfg Config, prefetcher *Prefetcher, proposer *Proposer, validator *Validator, cursor *Cursor, m metrics.DriverMetrics, auditLog *AuditLog, startAt uint64) *Driver {
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	return &Driver{
		log:         log,
		cfg:         cfg,
		prefetcher:  prefetcher,
		proposer:    proposer,
		validator:   validator,
		cursor:      cursor,
		metrics:     m,
		auditLog:    auditLog,
		nextL1Block: startAt,
	}
}

// Run blocks, executing one tick every ImportInterval, until ctx is
// canceled. A critical error aborts the loop entirely; any other error is
// logged and retried on the next tick (spec.md §7).
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.ImportInterval)
	defer ticker.Stop()

	for {
		if err := d.tick(ctx); err != nil {
			if errors.Is(err, derive.ErrCritical) {
				return fmt.Errorf("driver stopped on critical error: %w", err)
			}
			d.log.Error("tick failed, will retry", "err", err, "next_l1_block", d.nextL1Block)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick processes up to BatchSize L1 blocks starting at nextL1Block. It
// stops early, without error, the first time a block is not yet mined
// (spec.md §4.1 rule 3): the remaining blocks in the batch are picked up on
// a later tick.
func (d *Driver) tick(ctx context.Context) error {
	if err := d.prefetcher.EnsurePrefetched(ctx, d.nextL1Block); err != nil {
		return derive.NewTemporaryError(fmt.Errorf("failed to ensure prefetch: %w", err))
	}

	for i := uint64(0); i < d.cfg.BatchSize; i++ {
		n := d.nextL1Block
		start := time.Now()

		bundle, err := d.prefetcher.Fetch(ctx, n)
		if err != nil {
			if errors.Is(err, ErrNotReady) {
				d.log.Debug("l1 block not yet mined, sleeping until next tick", "l1_block", n)
				return nil
			}
			return derive.NewTemporaryError(fmt.Errorf("failed to fetch l1 block %d: %w", n, err))
		}
		d.metrics.RecordTickDuration("prefetch", time.Since(start).Seconds())

		if err := d.processL1Block(ctx, bundle); err != nil {
			return err
		}

		d.nextL1Block = n + 1
		d.prefetcher.ClearOlderThan(d.nextL1Block)
		if d.cursor != nil {
			if err := d.cursor.SetNextL1Block(ctx, d.nextL1Block); err != nil {
				d.log.Warn("failed to persist cursor", "err", err)
			}
		}
		d.metrics.RecordL1BlockProcessed(n)
	}
	return nil
}

// processL1Block commits the L2 block(s) for one L1 block and, if enabled,
// validates the result (spec.md §2 stages 4-5).
func (d *Driver) processL1Block(ctx context.Context, bundle BlockBundle) error {
	start := time.Now()
	payloads, err := d.proposer.ProcessL1Block(ctx, bundle.Block, bundle.Ops)
	d.metrics.RecordTickDuration("propose", time.Since(start).Seconds())
	if err != nil {
		return err
	}
	for _, op := range bundle.Ops {
		d.metrics.RecordOperationBuilt(op.Kind.String())
	}

	if d.cursor != nil {
		if err := d.cursor.SetHeadCache(ctx, d.proposer.Head()); err != nil {
			d.log.Warn("failed to persist head cache", "err", err)
		}
	}

	if !d.cfg.ValidateImport || d.validator == nil {
		return nil
	}

	hashes := make([]common.Hash, len(payloads))
	for i, p := range payloads {
		hashes[i] = p.BlockHash
	}

	vstart := time.Now()
	result, err := d.validator.ValidateL1Block(ctx, bundle.Block.Number, hashes)
	d.metrics.RecordTickDuration("validate", time.Since(vstart).Seconds())
	if err != nil {
		return derive.NewTemporaryError(fmt.Errorf("validator failed for l1 block %d: %w", bundle.Block.Number, err))
	}
	d.metrics.RecordValidationResult(result.Successful, result.APIUnavailable)
	if d.auditLog != nil {
		d.auditLog.Record(ctx, *result)
	}

	if result.APIUnavailable {
		d.log.Warn("validator: reference API unavailable, skipping this block", "l1_block", bundle.Block.Number)
		return nil
	}
	if !result.Successful {
		return derive.NewCriticalError(fmt.Errorf("validation failed for l1 block %d: %v", bundle.Block.Number, result.Errors))
	}

	d.log.Info("validated l1 block",
		"l1_block", bundle.Block.Number,
		"expected_creations", result.ExpectedCreations,
		"actual_creations", result.ActualCreations,
		"expected_transfers", result.ExpectedTransfers,
		"actual_transfers", result.ActualTransfers,
		"storage_checks", result.StorageChecks,
	)
	return nil
}
