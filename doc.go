// Package rescache implements a tiered cache for binary resources (cover
// images, fonts, chapter payloads) extracted from e-book containers or
// fetched from a remote content server. Repeated reads avoid re-extraction
// and network round-trips.
//
// Tiers:
//   - MemoryTier (L1): bounded in-process LRU of byte buffers. The default
//     keeps exact size accounting; approximate backends live in memtier/.
//   - store.Store (L2): durable, capacity-bounded store with access-time
//     eviction that survives restarts (store/badger, store/redis).
//   - remote.Fetcher (L3): caller-supplied origin for authoritative bytes.
//
// Keys:
//
//	ownerID:resourcePath  - decoded by splitting on the first ":" only,
//	                        so resource paths may contain the delimiter.
//
// Lookup flow: Get tries memory, then the store (promoting hits into
// memory), then the origin (populating both tiers). Concurrent misses for
// the same key share one origin fetch. Set, Delete, DeleteOwner and Clear
// fan out to both owned tiers; the origin is never written or cleared.
//
// A sick persistent tier degrades to always-miss and the cache keeps
// serving from memory + origin; the cache is never a single point of
// failure for the host.
//
//	cache, _ := rescache.New(ctx, rescache.Options{
//	    MemoryMaxBytes: 128 << 20,
//	    Store:          badgerstore,
//	    Fetcher:        contentServer,
//	})
//	data, err := cache.Get(ctx, bookID, "images/cover.jpg")
//
// Monitor samples Stats on an interval into a bounded ring and raises
// hysteresis alerts on capacity pressure; metrics/ exposes the same stats
// as a Prometheus collector.
package rescache
