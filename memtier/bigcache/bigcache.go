// Package bigcache adapts allegro/bigcache to rescache.MemoryTier.
//
// BigCache shards entries into pre-allocated byte rings: zero GC pressure at
// scale, but recency is approximate (Get does not reorder entries) and Stats
// report allocated rather than live bytes. Use the default strict tier when
// the exact bounds matter.
package bigcache

import (
	"errors"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/bookvault/rescache"
)

type Config struct {
	// LifeWindow ages entries out wholesale; rescache itself has no TTLs,
	// so pick something long (e.g. hours) and let capacity do the work.
	LifeWindow time.Duration

	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // hard memory bound; 0 = unlimited
}

type Tier struct {
	c        *bc.BigCache
	maxBytes int64
}

var _ rescache.MemoryTier = (*Tier)(nil)

func New(cfg Config) (*Tier, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Tier{c: c, maxBytes: int64(cfg.HardMaxCacheSizeMB) << 20}, nil
}

func (t *Tier) Get(key string) ([]byte, bool) {
	b, err := t.c.Get(key)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (t *Tier) Set(key string, value []byte) error {
	if t.maxBytes > 0 && int64(len(value)) > t.maxBytes {
		return &rescache.EntryTooLargeError{Key: key, Size: int64(len(value)), Max: t.maxBytes}
	}
	return t.c.Set(key, value)
}

func (t *Tier) Delete(key string) bool {
	err := t.c.Delete(key)
	return !errors.Is(err, bc.ErrEntryNotFound) && err == nil
}

func (t *Tier) DeletePrefix(prefix string) int {
	it := t.c.Iterator()
	var victims []string
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			continue
		}
		if strings.HasPrefix(e.Key(), prefix) {
			victims = append(victims, e.Key())
		}
	}
	removed := 0
	for _, k := range victims {
		if err := t.c.Delete(k); err == nil {
			removed++
		}
	}
	return removed
}

func (t *Tier) Clear() {
	_ = t.c.Reset()
}

func (t *Tier) Stats() rescache.MemoryStats {
	return rescache.MemoryStats{
		Entries:      t.c.Len(),
		SizeBytes:    int64(t.c.Capacity()),
		MaxSizeBytes: t.maxBytes,
	}
}

// Close flushes bigcache's internal goroutines. Not part of MemoryTier.
func (t *Tier) Close() error {
	return t.c.Close()
}
