package rescache

import "sync/atomic"

// TierStats describes one tier's occupancy.
type TierStats struct {
	Entries      int
	SizeBytes    int64
	MaxSizeBytes int64
	MaxEntries   int
}

// Counters are the combined hit counts by tier since the cache was built.
// RemoteFetches counts successful origin fetches; Misses counts lookups
// that ended without a value (no fetcher, or the fetch failed).
type Counters struct {
	L1Hits        uint64
	L2Hits        uint64
	RemoteFetches uint64
	Misses        uint64
}

// Stats is a point-in-time merge of per-tier stats and combined counters.
type Stats struct {
	L1          TierStats
	L2          TierStats
	L2Degraded  bool
	OwnerCount  int
	SizeByOwner map[string]int64
	Counters    Counters
}

// HitRatio is hits over total lookups, 0 when nothing was looked up yet.
func (s Stats) HitRatio() float64 {
	hits := s.Counters.L1Hits + s.Counters.L2Hits
	total := hits + s.Counters.RemoteFetches + s.Counters.Misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// counters is the lock-free internal tally behind Stats.Counters.
type counters struct {
	l1Hits  atomic.Uint64
	l2Hits  atomic.Uint64
	fetches atomic.Uint64
	misses  atomic.Uint64
}

func (c *counters) snapshot() Counters {
	return Counters{
		L1Hits:        c.l1Hits.Load(),
		L2Hits:        c.l2Hits.Load(),
		RemoteFetches: c.fetches.Load(),
		Misses:        c.misses.Load(),
	}
}
