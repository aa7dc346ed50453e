package rescache

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

// checkAccounting compares the tier's running totals against a fresh walk
// over its live entries, and asserts the configured bounds hold.
func checkAccounting(t *testing.T, m MemoryTier) {
	t.Helper()
	lru := m.(*memoryLRU)

	lru.mu.Lock()
	defer lru.mu.Unlock()

	var sum int64
	count := 0
	for el := lru.ll.Front(); el != nil; el = el.Next() {
		sum += el.Value.(*memoryEntry).size
		count++
	}
	if sum != lru.size {
		t.Fatalf("size drift: running=%d walked=%d", lru.size, sum)
	}
	if count != len(lru.items) {
		t.Fatalf("entry drift: list=%d map=%d", count, len(lru.items))
	}
	if lru.size > lru.maxBytes {
		t.Fatalf("size %d over budget %d", lru.size, lru.maxBytes)
	}
	if count > lru.maxEntries {
		t.Fatalf("entries %d over budget %d", count, lru.maxEntries)
	}
}

// ==============================
// Eviction ordering
// ==============================

// TestMemoryEvictsOldest covers the canonical scenario: with room for two
// entries, inserting a third evicts the least recently used.
func TestMemoryEvictsOldest(t *testing.T) {
	m := NewMemoryLRU(1<<20, 2)

	for _, k := range []string{"a", "b", "c"} {
		if err := m.Set(k, []byte(k)); err != nil {
			t.Fatalf("Set %q: %v", k, err)
		}
	}

	if _, ok := m.Get("a"); ok {
		t.Fatal("a should have been evicted")
	}
	if _, ok := m.Get("b"); !ok {
		t.Fatal("b should still be cached")
	}
	if _, ok := m.Get("c"); !ok {
		t.Fatal("c should still be cached")
	}
	checkAccounting(t, m)
}

// TestMemoryGetBumpsRecency: reading an entry protects it from the next
// eviction round.
func TestMemoryGetBumpsRecency(t *testing.T) {
	m := NewMemoryLRU(1<<20, 2)

	_ = m.Set("a", []byte("a"))
	_ = m.Set("b", []byte("b"))
	if _, ok := m.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	_ = m.Set("c", []byte("c"))

	if _, ok := m.Get("b"); ok {
		t.Fatal("b should have been evicted (a was touched more recently)")
	}
	if _, ok := m.Get("a"); !ok {
		t.Fatal("a should have survived")
	}
}

// TestMemoryEvictionCountsIncomingSize: the new entry's own size is part of
// the budget check, not just the pre-insert total.
func TestMemoryEvictionCountsIncomingSize(t *testing.T) {
	m := NewMemoryLRU(1000, 100)

	_ = m.Set("x", make([]byte, 600))
	_ = m.Set("y", make([]byte, 600))

	if _, ok := m.Get("x"); ok {
		t.Fatal("x should have been evicted to fit y")
	}
	if _, ok := m.Get("y"); !ok {
		t.Fatal("y should be cached")
	}
	if st := m.Stats(); st.SizeBytes > 1000 {
		t.Fatalf("size %d over budget", st.SizeBytes)
	}
	checkAccounting(t, m)
}

// ==============================
// Size accounting
// ==============================

func TestMemoryOverwriteDoesNotDoubleCount(t *testing.T) {
	m := NewMemoryLRU(1<<20, 100)

	_ = m.Set("k", make([]byte, 100))
	_ = m.Set("k", make([]byte, 40))

	st := m.Stats()
	if st.Entries != 1 {
		t.Fatalf("entries = %d, want 1", st.Entries)
	}
	if st.SizeBytes != 40 {
		t.Fatalf("size = %d, want 40", st.SizeBytes)
	}
	checkAccounting(t, m)
}

func TestMemoryRejectsOversizedEntry(t *testing.T) {
	m := NewMemoryLRU(10, 100)
	_ = m.Set("small", []byte("ok"))

	err := m.Set("big", make([]byte, 11))
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Fatalf("expected ErrEntryTooLarge, got %v", err)
	}
	var tle *EntryTooLargeError
	if !errors.As(err, &tle) || tle.Size != 11 || tle.Max != 10 {
		t.Fatalf("unexpected error detail: %+v", err)
	}

	// Rejection must not have disturbed existing entries.
	if _, ok := m.Get("small"); !ok {
		t.Fatal("existing entry lost on rejected set")
	}
	checkAccounting(t, m)
}

func TestMemoryDeletePrefix(t *testing.T) {
	m := NewMemoryLRU(1<<20, 100)

	_ = m.Set("b1:a", []byte("1"))
	_ = m.Set("b1:b", []byte("2"))
	_ = m.Set("b2:a", []byte("3"))

	if n := m.DeletePrefix("b1:"); n != 2 {
		t.Fatalf("DeletePrefix removed %d, want 2", n)
	}
	if _, ok := m.Get("b2:a"); !ok {
		t.Fatal("other owner's entry was removed")
	}
	checkAccounting(t, m)
}

// TestMemoryRandomizedAccounting fuzzes set/get/delete/clear against an
// independent walk of the live entries: the running size must never drift
// and the budgets must hold after every operation.
func TestMemoryRandomizedAccounting(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := NewMemoryLRU(4096, 16)

	keys := make([]string, 24)
	for i := range keys {
		keys[i] = fmt.Sprintf("owner-%d:res-%d", i%4, i)
	}

	for i := 0; i < 5000; i++ {
		k := keys[rng.Intn(len(keys))]
		switch rng.Intn(10) {
		case 0:
			m.Delete(k)
		case 1:
			if i%97 == 0 {
				m.Clear()
			}
		case 2, 3:
			m.Get(k)
		default:
			size := rng.Intn(600) // occasionally bigger than fits alongside others
			if err := m.Set(k, make([]byte, size)); err != nil && !errors.Is(err, ErrEntryTooLarge) {
				t.Fatalf("Set: %v", err)
			}
		}
		checkAccounting(t, m)
	}
}
