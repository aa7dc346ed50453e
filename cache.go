package rescache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bookvault/rescache/remote"
	"github.com/bookvault/rescache/store"
)

type tieredCache struct {
	mem     MemoryTier
	store   store.Store
	fetcher remote.Fetcher
	policy  Policy
	log     Logger

	// flight deduplicates concurrent origin fetches per composite key.
	flight singleflight.Group

	counters counters

	// degraded flips when the persistent tier fails to open; from then on
	// it behaves as always-miss and the cache runs on memory + origin.
	degraded atomic.Bool
}

func newTieredCache(ctx context.Context, opts Options) (*tieredCache, error) {
	c := &tieredCache{
		store:   opts.Store,
		fetcher: opts.Fetcher,
	}

	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.mem = opts.Memory
	if c.mem == nil {
		c.mem = NewMemoryLRU(
			coalesce[int64](opts.MemoryMaxBytes, DefaultMemoryMaxBytes),
			coalesce[int](opts.MemoryMaxEntries, DefaultMemoryMaxEntries),
		)
	}

	if opts.Policy != nil {
		c.policy = opts.Policy
	} else {
		c.policy = DefaultPolicy{
			Promote:      !opts.DisablePromote,
			WriteThrough: !opts.DisableWriteThrough,
		}
	}

	if c.store != nil {
		if err := c.store.Open(ctx); err != nil {
			c.degraded.Store(true)
			c.log.Error("persistent store failed to open; degrading to memory+origin",
				Fields{"err": err})
		}
	}
	return c, nil
}

func (c *tieredCache) storeActive() bool {
	return c.store != nil && !c.degraded.Load()
}

func (c *tieredCache) Get(ctx context.Context, ownerID, resourcePath string) ([]byte, error) {
	key, err := Key(ownerID, resourcePath)
	if err != nil {
		return nil, err
	}

	if data, ok := c.mem.Get(key); ok {
		c.counters.l1Hits.Add(1)
		return data, nil
	}

	if e, ok := c.storeGet(ctx, key); ok {
		c.counters.l2Hits.Add(1)
		if c.policy.PromoteOnL2Hit(e) {
			if err := c.mem.Set(key, e.Data); err != nil && !errors.Is(err, ErrEntryTooLarge) {
				c.log.Warn("promote to memory failed", Fields{"key": key, "err": err})
			}
		}
		return e.Data, nil
	}

	if c.fetcher == nil {
		c.counters.misses.Add(1)
		return nil, ErrNotFound
	}
	return c.fetch(ctx, key, ownerID, resourcePath)
}

// storeGet is the degradable L2 lookup: errors are logged and treated as
// misses so a sick store never fails the host application.
func (c *tieredCache) storeGet(ctx context.Context, key string) (*store.Entry, bool) {
	if !c.storeActive() {
		return nil, false
	}
	e, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("persistent get failed; treating as miss", Fields{"key": key, "err": err})
		return nil, false
	}
	return e, ok
}

// fetch runs the origin fetch under single-flight. The fetch itself is
// detached from the triggering caller's context so cancelling one waiter
// does not abort a fetch other waiters still share; each waiter honors its
// own context while waiting.
func (c *tieredCache) fetch(ctx context.Context, key, ownerID, resourcePath string) ([]byte, error) {
	ch := c.flight.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		res, err := c.fetcher.Fetch(fctx, ownerID, resourcePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
		}
		c.counters.fetches.Add(1)
		c.fill(fctx, key, ownerID, resourcePath, res)
		return res.Data, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			c.counters.misses.Add(1)
			return nil, r.Err
		}
		return r.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fill populates both owned tiers after a successful origin fetch. The
// fetch cost dominates, so both writes happen immediately; failures here
// only lose caching, never the returned value.
func (c *tieredCache) fill(ctx context.Context, key, ownerID, resourcePath string, res *remote.Resource) {
	size := int64(len(res.Data))
	if c.storeActive() && c.policy.WriteThroughOnFill(ownerID, resourcePath, size) {
		now := time.Now()
		err := c.store.Set(ctx, &store.Entry{
			Key:          key,
			OwnerID:      ownerID,
			ResourcePath: resourcePath,
			Data:         res.Data,
			MimeType:     res.MimeType,
			Size:         size,
			CreatedAt:    now,
			AccessedAt:   now,
			Metadata:     res.Metadata,
		})
		if err != nil && !errors.Is(err, store.ErrTooLarge) {
			c.log.Warn("persistent fill failed", Fields{"key": key, "err": err})
		}
	}
	if err := c.mem.Set(key, res.Data); err != nil && !errors.Is(err, ErrEntryTooLarge) {
		c.log.Warn("memory fill failed", Fields{"key": key, "err": err})
	}
}

func (c *tieredCache) Set(ctx context.Context, ownerID, resourcePath string, data []byte, mimeType string, metadata map[string]string) error {
	key, err := Key(ownerID, resourcePath)
	if err != nil {
		return err
	}

	memErr := c.mem.Set(key, data)
	if memErr != nil && !errors.Is(memErr, ErrEntryTooLarge) {
		return memErr
	}

	size := int64(len(data))
	if c.storeActive() && c.policy.WriteThroughOnFill(ownerID, resourcePath, size) {
		now := time.Now()
		err := c.store.Set(ctx, &store.Entry{
			Key:          key,
			OwnerID:      ownerID,
			ResourcePath: resourcePath,
			Data:         data,
			MimeType:     mimeType,
			Size:         size,
			CreatedAt:    now,
			AccessedAt:   now,
			Metadata:     metadata,
		})
		if err != nil {
			if errors.Is(err, store.ErrTooLarge) {
				return &EntryTooLargeError{Key: key, Size: size, Max: c.persistentMax(ctx)}
			}
			// The value may only live in volatile memory now; surface the
			// write-loss risk so the caller can retry.
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		return nil
	}

	// Nothing persisted and memory rejected it: the value is cached
	// nowhere, which the caller should know.
	return memErr
}

func (c *tieredCache) persistentMax(ctx context.Context) int64 {
	st, err := c.store.Stats(ctx)
	if err != nil {
		return 0
	}
	return st.MaxSizeBytes
}

func (c *tieredCache) Delete(ctx context.Context, ownerID, resourcePath string) (bool, error) {
	key, err := Key(ownerID, resourcePath)
	if err != nil {
		return false, err
	}

	memDeleted := c.mem.Delete(key)
	if !c.storeActive() {
		return memDeleted, nil
	}
	storeDeleted, err := c.store.Delete(ctx, key)
	if err != nil {
		return memDeleted, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return memDeleted || storeDeleted, nil
}

func (c *tieredCache) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, fmt.Errorf("rescache: empty owner id")
	}

	memRemoved := c.mem.DeletePrefix(OwnerPrefix(ownerID))
	if !c.storeActive() {
		return memRemoved, nil
	}
	removed, err := c.store.DeleteOwner(ctx, ownerID)
	if err != nil {
		// The store aborts as a unit; its bookkeeping is intact and the
		// caller may retry. Memory was only purged, which cannot go stale.
		return 0, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return removed, nil
}

func (c *tieredCache) Clear(ctx context.Context) error {
	c.mem.Clear()
	if !c.storeActive() {
		return nil
	}
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

func (c *tieredCache) Stats(ctx context.Context) Stats {
	ms := c.mem.Stats()
	out := Stats{
		L1: TierStats{
			Entries:      ms.Entries,
			SizeBytes:    ms.SizeBytes,
			MaxSizeBytes: ms.MaxSizeBytes,
			MaxEntries:   ms.MaxEntries,
		},
		L2Degraded: c.degraded.Load(),
		Counters:   c.counters.snapshot(),
	}
	if !c.storeActive() {
		return out
	}
	ss, err := c.store.Stats(ctx)
	if err != nil {
		c.log.Warn("persistent stats failed", Fields{"err": err})
		out.L2Degraded = true
		return out
	}
	out.L2 = TierStats{
		Entries:      ss.Entries,
		SizeBytes:    ss.SizeBytes,
		MaxSizeBytes: ss.MaxSizeBytes,
		MaxEntries:   ss.MaxEntries,
	}
	out.OwnerCount = ss.OwnerCount
	out.SizeByOwner = ss.SizeByOwner
	return out
}

func (c *tieredCache) Close(ctx context.Context) error {
	if c.store != nil {
		return c.store.Close(ctx)
	}
	return nil
}
