// Package driver contains the stateful components that drive L2 block
// production: the Prefetcher (spec.md §4.1), the Proposer (§4.4), the
// per-tick Driver loop, the StorageReader (§4.6), and the Validator (§4.7).
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
	"github.com/ethscriptions-protocol/eth-node/op-node/rollup/derive"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
)

// ErrNotReady is returned by Fetch when the requested L1 block has not
// been mined yet (spec.md §4.1 rule 3); the caller should evict and retry.
var ErrNotReady = errors.New("l1 block not ready")

// L1BlockSource is the subset of op-service/sources.L1Client the
// Prefetcher needs; narrowed to an interface so tests can substitute a fake.
type L1BlockSource interface {
	BlockByNumber(ctx context.Context, n uint64) (*eth.L1Block, error)
	ChainTip(ctx context.Context) (eth.L1BlockRef, error)
}

// BlockBundle is the resolved unit of prefetch work: the raw L1 block plus
// the Detector's output for every transaction in it, computed up-front on
// the worker goroutine (spec.md §4.1 rule 2).
type BlockBundle struct {
	Block *eth.L1Block
	Ops   []derive.Operation
}

type promiseState int

const (
	promisePending promiseState = iota
	promiseResolved
	promiseNotReady
	promiseFailed
)

type promise struct {
	mu      sync.Mutex
	state   promiseState
	bundle  BlockBundle
	err     error
	done    chan struct{}
	started bool
}

func newPromise() *promise {
	return &promise{done: make(chan struct{})}
}

func (p *promise) resolve(b BlockBundle) {
	p.mu.Lock()
	if p.state == promisePending {
		p.bundle = b
		p.state = promiseResolved
		close(p.done)
	}
	p.mu.Unlock()
}

func (p *promise) reject(err error, notReady bool) {
	p.mu.Lock()
	if p.state == promisePending {
		p.err = err
		if notReady {
			p.state = promiseNotReady
		} else {
			p.state = promiseFailed
		}
		close(p.done)
	}
	p.mu.Unlock()
}

// Prefetcher hides L1 latency by concurrently fetching a sliding window of
// future L1 blocks, running the Detector on each as soon as it is fetched
// (spec.md §4.1).
type Prefetcher struct {
	log    log.Logger
	cfg    *rollup.Config
	source L1BlockSource
	det    *derive.Detector

	ahead    uint64
	poolSize int

	mu       sync.Mutex
	promises map[uint64]*promise

	tipMu      sync.Mutex
	tip        eth.L1BlockRef
	tipAt      time.Time
	tipRefresh time.Duration

	// pool bounds the number of concurrently running resolve() goroutines
	// to poolSize across the Prefetcher's whole lifetime (spec.md §4.1
	// "fixed worker pool"), via errgroup.Group.SetLimit rather than a
	// hand-rolled semaphore channel.
	pool *errgroup.Group
}

type PrefetcherConfig struct {
	// Ahead is the number of blocks beyond the requested `from` to
	// eagerly schedule (spec.md §4.1 "sliding window").
	Ahead uint64
	// PoolSize is the fixed worker pool size ("default small single-digits").
	PoolSize int
	// TipRefresh is how long a cached chain tip is trusted before
	// re-querying (spec.md §4.1 rule 5: "≈12s").
	TipRefresh time.Duration
}

func DefaultPrefetcherConfig() PrefetcherConfig {
	return PrefetcherConfig{Ahead: 8, PoolSize: 4, TipRefresh: 12 * time.Second}
}

func NewPrefetcher(log log.Logger, cfg *rollup.Config, source L1BlockSource, det *derive.Detector, pc PrefetcherConfig) *Prefetcher {
	if pc.PoolSize <= 0 {
		pc.PoolSize = DefaultPrefetcherConfig().PoolSize
	}
	if pc.TipRefresh <= 0 {
		pc.TipRefresh = DefaultPrefetcherConfig().TipRefresh
	}
	pool := new(errgroup.Group)
	pool.SetLimit(pc.PoolSize)
	return &Prefetcher{
		log:        log,
		cfg:        cfg,
		source:     source,
		det:        det,
		ahead:      pc.Ahead,
		poolSize:   pc.PoolSize,
		promises:   make(map[uint64]*promise),
		tipRefresh: pc.TipRefresh,
		pool:       pool,
	}
}

// chainTip returns the loosely-cached L1 chain tip, refreshing at most once
// per TipRefresh interval.
func (p *Prefetcher) chainTip(ctx context.Context) (eth.L1BlockRef, error) {
	p.tipMu.Lock()
	if time.Since(p.tipAt) < p.tipRefresh && p.tip.Number != 0 {
		tip := p.tip
		p.tipMu.Unlock()
		return tip, nil
	}
	p.tipMu.Unlock()

	tip, err := p.source.ChainTip(ctx)
	if err != nil {
		return eth.L1BlockRef{}, err
	}
	p.tipMu.Lock()
	p.tip = tip
	p.tipAt = time.Now()
	p.tipMu.Unlock()
	return tip, nil
}

// EnsurePrefetched schedules fetch tasks for from..min(from+ahead, tip) that
// are not already in the promise map, bounded by the worker pool (spec.md
// §4.1 "ensure_prefetched").
func (p *Prefetcher) EnsurePrefetched(ctx context.Context, from uint64) error {
	tip, err := p.chainTip(ctx)
	if err != nil {
		return fmt.Errorf("failed to determine chain tip: %w", err)
	}
	upper := from + p.ahead
	if upper > tip.Number {
		upper = tip.Number
	}
	for n := from; n <= upper; n++ {
		p.scheduleIfNeeded(n)
	}
	return nil
}

func (p *Prefetcher) scheduleIfNeeded(n uint64) *promise {
	p.mu.Lock()
	pr, ok := p.promises[n]
	if !ok {
		pr = newPromise()
		p.promises[n] = pr
	}
	alreadyStarted := pr.started
	pr.started = true
	p.mu.Unlock()

	if !alreadyStarted {
		// p.pool.Go blocks its caller once poolSize workers are already
		// running, so it is dispatched from its own goroutine: scheduling
		// more work than the pool has room for must never block the
		// caller of scheduleIfNeeded (EnsurePrefetched/Fetch).
		go func() {
			p.pool.Go(func() error {
				p.resolve(n, pr)
				return nil
			})
		}()
	}
	return pr
}

func (p *Prefetcher) resolve(n uint64, pr *promise) {
	ctx := context.Background()
	block, err := p.source.BlockByNumber(ctx, n)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			pr.reject(ErrNotReady, true)
			return
		}
		pr.reject(fmt.Errorf("failed to fetch L1 block %d: %w", n, err), false)
		return
	}

	var ops []derive.Operation
	for _, tx := range block.Transactions {
		ops = append(ops, p.det.Detect(block.Number, &tx)...)
	}
	pr.resolve(BlockBundle{Block: block, Ops: ops})
}

// Fetch returns the bundle for L1 block n, blocking until the fetch settles
// or ctx is done; it applies no timeout of its own. On a not-yet-mined head it returns ErrNotReady and evicts the promise so a
// later call retries (spec.md §4.1 "fetch").
func (p *Prefetcher) Fetch(ctx context.Context, n uint64) (BlockBundle, error) {
	pr := p.scheduleIfNeeded(n)
	select {
	case <-pr.done:
	case <-ctx.Done():
		return BlockBundle{}, ctx.Err()
	}

	pr.mu.Lock()
	state := pr.state
	bundle := pr.bundle
	err := pr.err
	pr.mu.Unlock()

	switch state {
	case promiseResolved:
		return bundle, nil
	case promiseNotReady:
		p.evict(n)
		return BlockBundle{}, ErrNotReady
	default:
		return BlockBundle{}, err
	}
}

func (p *Prefetcher) evict(n uint64) {
	p.mu.Lock()
	delete(p.promises, n)
	p.mu.Unlock()
}

// ClearOlderThan drops every entry below minKeep, including ones whose fetch
// is still in flight, bounding memory use
// (spec.md §4.1 "clear_older_than").
func (p *Prefetcher) ClearOlderThan(minKeep uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n := range p.promises {
		if n < minKeep {
			delete(p.promises, n)
		}
	}
}
