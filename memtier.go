package rescache

// MemoryStats describes the memory tier's occupancy.
type MemoryStats struct {
	Entries      int
	SizeBytes    int64
	MaxSizeBytes int64
	MaxEntries   int
}

// MemoryTier is the in-process byte tier consulted first on every lookup.
// Implementations must be safe for concurrent use.
//
// The default implementation (NewMemoryLRU) keeps exact size accounting and
// strict least-recently-used ordering. Approximate, throughput-oriented
// backends live under memtier/; their Stats are best-effort and they do not
// guarantee strict eviction order.
type MemoryTier interface {
	// Get returns the cached bytes and marks the entry most recently used.
	Get(key string) ([]byte, bool)

	// Set inserts or replaces an entry, evicting least-recently-used
	// entries until both size and count budgets hold, the incoming entry's
	// own size included. A value that alone exceeds the size budget is
	// rejected with an error unwrapping to ErrEntryTooLarge.
	Set(key string, value []byte) error

	// Delete removes a single entry and reports whether it existed.
	Delete(key string) bool

	// DeletePrefix removes every entry whose key starts with prefix and
	// returns the number removed.
	DeletePrefix(prefix string) int

	Clear()
	Stats() MemoryStats
}
