package driver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	leveldb "github.com/ipfs/go-ds-leveldb"

	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
)

// Cursor persists the Driver's crash-recovery state — the next L1 block
// number to process and the last committed head cache — so a restart
// resumes from where it left off instead of re-deriving from genesis
// (spec.md §5 "Suspension points"/§7 recovery concerns). Backed by a local
// LevelDB instance; the derivation driver is a single process with no
// concurrent writers, so no additional locking is needed beyond what the
// datastore already serializes internally.
type Cursor struct {
	ds *leveldb.Datastore
}

var (
	nextL1BlockKey = ds.NewKey("/cursor/next_l1_block")
	headCacheKey   = ds.NewKey("/cursor/head_cache")
)

func OpenCursor(path string) (*Cursor, error) {
	store, err := leveldb.NewDatastore(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor datastore at %s: %w", path, err)
	}
	return &Cursor{ds: store}, nil
}

func (c *Cursor) Close() error {
	return c.ds.Close()
}

// NextL1Block returns the next L1 block number to process, or (0, false)
// if no cursor has been persisted yet (fresh start).
func (c *Cursor) NextL1Block(ctx context.Context) (uint64, bool, error) {
	raw, err := c.ds.Get(ctx, nextL1BlockKey)
	if errors.Is(err, ds.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cursor: %w", err)
	}
	if len(raw) != 8 {
		return 0, false, fmt.Errorf("corrupt cursor value: %d bytes", len(raw))
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

func (c *Cursor) SetNextL1Block(ctx context.Context, n uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	if err := c.ds.Put(ctx, nextL1BlockKey, buf[:]); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}
	return nil
}

// HeadCache returns the last persisted head cache, or the zero value if
// none has been written yet.
func (c *Cursor) HeadCache(ctx context.Context) (eth.HeadCache, bool, error) {
	raw, err := c.ds.Get(ctx, headCacheKey)
	if errors.Is(err, ds.ErrNotFound) {
		return eth.HeadCache{}, false, nil
	}
	if err != nil {
		return eth.HeadCache{}, false, fmt.Errorf("failed to read head cache: %w", err)
	}
	var hc eth.HeadCache
	if err := json.Unmarshal(raw, &hc); err != nil {
		return eth.HeadCache{}, false, fmt.Errorf("corrupt head cache value: %w", err)
	}
	return hc, true, nil
}

func (c *Cursor) SetHeadCache(ctx context.Context, hc eth.HeadCache) error {
	raw, err := json.Marshal(hc)
	if err != nil {
		return fmt.Errorf("failed to marshal head cache: %w", err)
	}
	if err := c.ds.Put(ctx, headCacheKey, raw); err != nil {
		return fmt.Errorf("failed to persist head cache: %w", err)
	}
	return nil
}
