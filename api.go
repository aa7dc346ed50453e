package rescache

import (
	"context"

	"github.com/bookvault/rescache/remote"
	"github.com/bookvault/rescache/store"
)

// Defaults for the memory tier when Options leaves them zero.
const (
	DefaultMemoryMaxBytes   = 64 << 20
	DefaultMemoryMaxEntries = 4096
)

// Cache is the tiered resource cache consumed by the host application.
// Lookups try memory (L1), then the persistent store (L2, promoting hits
// into memory), then the remote origin (L3, populating both tiers). Writes
// and deletes fan out to both owned tiers; the origin is never written to
// and never cleared.
type Cache interface {
	// Get returns the resource bytes. A full miss with no fetcher
	// configured returns ErrNotFound; a failed origin fetch returns an
	// error unwrapping to ErrRemoteUnavailable. The cache never returns
	// stale or partial data on a miss path.
	Get(ctx context.Context, ownerID, resourcePath string) ([]byte, error)

	// Set proactively populates the cache (pre-fetch); it is not the
	// normal miss-fill path. Memory is always written, the persistent
	// tier when write-through allows it. A persistent write failure is
	// surfaced so the caller may retry.
	Set(ctx context.Context, ownerID, resourcePath string, data []byte, mimeType string, metadata map[string]string) error

	// Delete removes the resource from both tiers so no stale read is
	// possible afterwards. Reports whether any tier held it.
	Delete(ctx context.Context, ownerID, resourcePath string) (bool, error)

	// DeleteOwner removes every resource belonging to ownerID from both
	// tiers and returns the number of persistent entries removed (memory
	// entries when no persistent tier is configured).
	DeleteOwner(ctx context.Context, ownerID string) (int, error)

	// Clear empties both owned tiers. The origin is authoritative and is
	// never touched.
	Clear(ctx context.Context) error

	// Stats merges per-tier occupancy with combined hit counters.
	Stats(ctx context.Context) Stats

	Close(ctx context.Context) error
}

// Options configure a Cache. Everything is optional: the zero value yields
// a memory-only cache with default budgets and no origin.
type Options struct {
	// Memory overrides the default strict-LRU tier. When set, the
	// MemoryMax* fields are ignored.
	Memory MemoryTier

	MemoryMaxBytes   int64 // default 64 MiB
	MemoryMaxEntries int   // default 4096

	// Store is the persistent tier (see store/badger, store/redis).
	// nil disables it. If Open fails the cache degrades to memory+origin
	// and keeps serving; the failure is logged once and flagged in Stats.
	Store store.Store

	// Fetcher is the origin. nil makes full misses return ErrNotFound.
	Fetcher remote.Fetcher

	// Policy overrides promotion/write-through placement. When set, the
	// Disable* flags are ignored.
	Policy Policy

	DisablePromote      bool // default false => L2 hits are promoted to memory
	DisableWriteThrough bool // default false => fills and Sets reach L2

	Logger Logger // nil disables logging
}

// New builds the tiered cache and opens the persistent tier. ctx bounds the
// open (and its reconciliation scan) only.
func New(ctx context.Context, opts Options) (Cache, error) {
	return newTieredCache(ctx, opts)
}
