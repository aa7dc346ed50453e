package rescache

import (
	"container/list"
	"strings"
	"sync"
)

// memoryLRU is the default MemoryTier: a mutex-guarded LRU over a doubly
// linked list with exact size accounting. The cache owns stored buffers
// until eviction or delete; callers must not mutate a slice after handing
// it to Set or after receiving it from Get.
type memoryLRU struct {
	mu         sync.Mutex
	maxBytes   int64
	maxEntries int

	ll    *list.List // front = most recently used
	items map[string]*list.Element
	size  int64
}

type memoryEntry struct {
	key  string
	data []byte
	size int64
}

// NewMemoryLRU returns the strict-LRU memory tier. Non-positive limits fall
// back to DefaultMemoryMaxBytes / DefaultMemoryMaxEntries.
func NewMemoryLRU(maxBytes int64, maxEntries int) MemoryTier {
	if maxBytes <= 0 {
		maxBytes = DefaultMemoryMaxBytes
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryMaxEntries
	}
	return &memoryLRU{
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}
}

func (m *memoryLRU) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	m.ll.MoveToFront(el)
	return el.Value.(*memoryEntry).data, true
}

func (m *memoryLRU) Set(key string, value []byte) error {
	size := int64(len(value))
	if size > m.maxBytes {
		return &EntryTooLargeError{Key: key, Size: size, Max: m.maxBytes}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		ent := el.Value.(*memoryEntry)
		// Subtract the old size before adding the new one so a replace
		// never double-counts.
		m.size -= ent.size
		ent.data = value
		ent.size = size
		m.size += size
		m.ll.MoveToFront(el)
		m.evictLocked()
		return nil
	}

	el := m.ll.PushFront(&memoryEntry{key: key, data: value, size: size})
	m.items[key] = el
	m.size += size
	m.evictLocked()
	return nil
}

// evictLocked drops entries from the LRU tail until both budgets hold.
// The entry just touched sits at the front, so it is evicted last and never
// on its own account, since Set rejects oversized values up front.
func (m *memoryLRU) evictLocked() {
	for (m.size > m.maxBytes || m.ll.Len() > m.maxEntries) && m.ll.Len() > 0 {
		el := m.ll.Back()
		if el == nil {
			return
		}
		m.removeLocked(el)
	}
}

func (m *memoryLRU) removeLocked(el *list.Element) {
	ent := el.Value.(*memoryEntry)
	m.ll.Remove(el)
	delete(m.items, ent.key)
	m.size -= ent.size
	ent.data = nil
}

func (m *memoryLRU) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return false
	}
	m.removeLocked(el)
	return true
}

func (m *memoryLRU) DeletePrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var victims []*list.Element
	for key, el := range m.items {
		if strings.HasPrefix(key, prefix) {
			victims = append(victims, el)
		}
	}
	for _, el := range victims {
		m.removeLocked(el)
	}
	return len(victims)
}

func (m *memoryLRU) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ll.Init()
	m.items = make(map[string]*list.Element)
	m.size = 0
}

func (m *memoryLRU) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MemoryStats{
		Entries:      m.ll.Len(),
		SizeBytes:    m.size,
		MaxSizeBytes: m.maxBytes,
		MaxEntries:   m.maxEntries,
	}
}
