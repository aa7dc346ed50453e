// Package ristretto adapts dgraph-io/ristretto to rescache.MemoryTier for
// callers who prefer admission-policy throughput over strict LRU bounds.
//
// Ristretto is probabilistic: Stats are best-effort, eviction order is not
// strict LRU, and a Set may be rejected under pressure. The orchestrator's
// accounting invariants are only guaranteed by the default strict tier.
package ristretto

import (
	"strings"
	"sync"

	rc "github.com/dgraph-io/ristretto"

	"github.com/bookvault/rescache"
)

type Config struct {
	MaxBytes    int64 // admission budget (ristretto MaxCost)
	NumCounters int64 // default 10x expected entries; required > 0
	BufferItems int64 // default 64
}

type entry struct {
	key  string
	data []byte
}

// Tier wraps a ristretto cache plus a key registry. Ristretto cannot
// enumerate its keys, so the registry is what makes DeletePrefix and Stats
// possible; the OnEvict hook keeps it in step with internal evictions.
type Tier struct {
	c        *rc.Cache
	maxBytes int64

	mu   sync.Mutex
	keys map[string]int64 // key -> size
	size int64
}

var _ rescache.MemoryTier = (*Tier)(nil)

func New(cfg Config) (*Tier, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e6
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}

	t := &Tier{
		maxBytes: cfg.MaxBytes,
		keys:     make(map[string]int64),
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: cfg.BufferItems,
		OnEvict:     func(item *rc.Item) { t.forget(item.Value) },
		OnReject:    func(item *rc.Item) { t.forget(item.Value) },
	})
	if err != nil {
		return nil, err
	}
	t.c = c
	return t, nil
}

func (t *Tier) forget(v any) {
	e, ok := v.(entry)
	if !ok {
		return
	}
	t.mu.Lock()
	if sz, ok := t.keys[e.key]; ok {
		t.size -= sz
		delete(t.keys, e.key)
	}
	t.mu.Unlock()
}

func (t *Tier) Get(key string) ([]byte, bool) {
	v, ok := t.c.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := v.(entry)
	if !ok {
		t.c.Del(key)
		return nil, false
	}
	return e.data, true
}

// Set admits the value and waits for the buffers to drain so a subsequent
// Get observes the write.
func (t *Tier) Set(key string, value []byte) error {
	size := int64(len(value))
	if t.maxBytes > 0 && size > t.maxBytes {
		return &rescache.EntryTooLargeError{Key: key, Size: size, Max: t.maxBytes}
	}

	t.mu.Lock()
	if old, ok := t.keys[key]; ok {
		t.size -= old
	}
	t.keys[key] = size
	t.size += size
	t.mu.Unlock()

	if !t.c.Set(key, entry{key: key, data: value}, size) {
		t.mu.Lock()
		if sz, ok := t.keys[key]; ok {
			t.size -= sz
			delete(t.keys, key)
		}
		t.mu.Unlock()
		return nil // rejected under pressure; not an error for a cache
	}
	t.c.Wait()
	return nil
}

func (t *Tier) Delete(key string) bool {
	t.mu.Lock()
	sz, ok := t.keys[key]
	if ok {
		t.size -= sz
		delete(t.keys, key)
	}
	t.mu.Unlock()
	t.c.Del(key)
	return ok
}

func (t *Tier) DeletePrefix(prefix string) int {
	t.mu.Lock()
	victims := make([]string, 0)
	for k := range t.keys {
		if strings.HasPrefix(k, prefix) {
			victims = append(victims, k)
		}
	}
	for _, k := range victims {
		t.size -= t.keys[k]
		delete(t.keys, k)
	}
	t.mu.Unlock()

	for _, k := range victims {
		t.c.Del(k)
	}
	return len(victims)
}

func (t *Tier) Clear() {
	t.c.Clear()
	t.mu.Lock()
	t.keys = make(map[string]int64)
	t.size = 0
	t.mu.Unlock()
}

func (t *Tier) Stats() rescache.MemoryStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return rescache.MemoryStats{
		Entries:      len(t.keys),
		SizeBytes:    t.size,
		MaxSizeBytes: t.maxBytes,
	}
}

// Close releases ristretto's internal goroutines. Not part of MemoryTier;
// call it when the tier outlives its cache.
func (t *Tier) Close() {
	t.c.Close()
}
