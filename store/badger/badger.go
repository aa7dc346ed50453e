// Package badger is the default persistent tier: a BadgerDB-backed
// store.Store keeping resources on local disk across process restarts.
//
// Records live under an internal key prefix and are serialized with a
// pluggable codec (msgpack by default). Size, owner and access-time
// bookkeeping is held in an in-memory index rebuilt by a full scan at Open,
// so a counter left stale by a crash can never drift the accounting.
package badger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	bdg "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/bookvault/rescache/codec"
	"github.com/bookvault/rescache/store"
)

const (
	DefaultMaxSizeBytes = 512 << 20
	DefaultMaxEntries   = 65536

	keyPrefix = "r:"
)

type Config struct {
	// Path is the cache directory; created if missing.
	Path string

	MaxSizeBytes int64 // default 512 MiB
	MaxEntries   int   // default 65536

	// Codec overrides the record serialization. nil => msgpack.
	Codec codec.Codec[store.Entry]

	// SyncWrites forces an fsync per write. Off by default: the store is a
	// cache, the origin is authoritative, and losing the last writes on a
	// crash only costs a re-fetch.
	SyncWrites bool
}

// indexEntry is the in-memory bookkeeping per stored key. accessedAt drives
// eviction order; owner and size drive bulk deletes and the running total.
type indexEntry struct {
	size       int64
	owner      string
	accessedAt time.Time
}

type Store struct {
	cfg Config
	cod codec.Codec[store.Entry]

	mu     sync.Mutex
	db     *bdg.DB
	index  map[string]indexEntry
	size   int64
	closed bool
}

var _ store.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("badger store: empty path")
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	cod := cfg.Codec
	if cod == nil {
		cod = codec.Msgpack[store.Entry]{}
	}
	return &Store{cfg: cfg, cod: cod}, nil
}

func dbKey(key string) []byte { return append([]byte(keyPrefix), key...) }

// Open opens the database and reconciles the running size against a full
// scan. Records that no longer decode are dropped during the scan.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.cfg.Path, 0o755); err != nil {
		return fmt.Errorf("badger store: create dir: %w", err)
	}

	opts := bdg.DefaultOptions(s.cfg.Path).
		WithLogger(nil).
		WithSyncWrites(s.cfg.SyncWrites).
		WithCompression(options.ZSTD).
		WithZSTDCompressionLevel(1)

	db, err := bdg.Open(opts)
	if err != nil {
		return fmt.Errorf("badger store: open: %w", err)
	}

	index := make(map[string]indexEntry)
	var total int64
	var corrupt [][]byte

	err = db.View(func(txn *bdg.Txn) error {
		it := txn.NewIterator(bdg.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			e, derr := s.cod.Decode(raw)
			if derr != nil {
				corrupt = append(corrupt, item.KeyCopy(nil))
				continue
			}
			key := string(item.Key()[len(prefix):])
			index[key] = indexEntry{size: e.Size, owner: e.OwnerID, accessedAt: e.AccessedAt}
			total += e.Size
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("badger store: reconcile scan: %w", err)
	}

	for _, k := range corrupt {
		k := k
		if err := db.Update(func(txn *bdg.Txn) error { return txn.Delete(k) }); err != nil {
			_ = db.Close()
			return fmt.Errorf("badger store: drop corrupt record: %w", err)
		}
	}

	s.db = db
	s.index = index
	s.size = total
	s.closed = false
	return nil
}

// Get serializes the access-metadata read-modify-write under the store
// mutex so it cannot race a concurrent delete of the same key.
func (s *Store) Get(ctx context.Context, key string) (*store.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return nil, false, err
	}

	var (
		entry   store.Entry
		hit     bool
		corrupt bool
	)
	err := s.db.Update(func(txn *bdg.Txn) error {
		item, err := txn.Get(dbKey(key))
		if err == bdg.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		e, derr := s.cod.Decode(raw)
		if derr != nil {
			corrupt = true
			return txn.Delete(dbKey(key))
		}

		e.AccessedAt = time.Now()
		e.AccessCount++
		enc, err := s.cod.Encode(e)
		if err != nil {
			return err
		}
		if err := txn.Set(dbKey(key), enc); err != nil {
			return err
		}
		entry = e
		hit = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("badger store: get %q: %w", key, err)
	}
	if corrupt {
		s.dropIndexLocked(key)
		return nil, false, nil
	}
	if !hit {
		return nil, false, nil
	}

	if ie, ok := s.index[key]; ok {
		ie.accessedAt = entry.AccessedAt
		s.index[key] = ie
	}
	return &entry, true, nil
}

func (s *Store) Set(ctx context.Context, e *store.Entry) error {
	if e == nil || e.Key == "" || e.OwnerID == "" {
		return fmt.Errorf("badger store: invalid entry")
	}
	size := int64(len(e.Data))
	if size > s.cfg.MaxSizeBytes {
		return fmt.Errorf("badger store: %q (%d bytes): %w", e.Key, size, store.ErrTooLarge)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return err
	}

	now := time.Now()
	rec := *e
	rec.Size = size
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.AccessedAt.IsZero() {
		rec.AccessedAt = now
	}

	old, replacing := s.index[rec.Key]
	var oldSize int64
	if replacing {
		oldSize = old.size
	}
	if err := s.evictLocked(rec.Key, size-oldSize, !replacing); err != nil {
		return err
	}

	enc, err := s.cod.Encode(rec)
	if err != nil {
		return fmt.Errorf("badger store: encode %q: %w", rec.Key, err)
	}
	err = s.db.Update(func(txn *bdg.Txn) error {
		return txn.Set(dbKey(rec.Key), enc)
	})
	if err != nil {
		return fmt.Errorf("badger store: set %q: %w", rec.Key, err)
	}

	s.index[rec.Key] = indexEntry{size: size, owner: rec.OwnerID, accessedAt: rec.AccessedAt}
	s.size += size - oldSize
	return nil
}

// evictLocked frees space for an incoming delta by removing entries in
// ascending accessedAt order until the budgets hold or no candidates remain.
// The key being written is never its own victim.
func (s *Store) evictLocked(incomingKey string, delta int64, addingEntry bool) error {
	needEvict := func() bool {
		entries := len(s.index)
		if addingEntry {
			entries++
		}
		return s.size+delta > s.cfg.MaxSizeBytes || entries > s.cfg.MaxEntries
	}
	if !needEvict() {
		return nil
	}

	type cand struct {
		key string
		ie  indexEntry
	}
	cands := make([]cand, 0, len(s.index))
	for k, ie := range s.index {
		if k == incomingKey {
			continue
		}
		cands = append(cands, cand{k, ie})
	}
	sort.Slice(cands, func(i, j int) bool {
		return cands[i].ie.accessedAt.Before(cands[j].ie.accessedAt)
	})

	for _, c := range cands {
		if !needEvict() {
			return nil
		}
		err := s.db.Update(func(txn *bdg.Txn) error {
			return txn.Delete(dbKey(c.key))
		})
		if err != nil {
			return fmt.Errorf("badger store: evict %q: %w", c.key, err)
		}
		delete(s.index, c.key)
		s.size -= c.ie.size
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return false, err
	}
	if _, ok := s.index[key]; !ok {
		return false, nil
	}
	err := s.db.Update(func(txn *bdg.Txn) error {
		return txn.Delete(dbKey(key))
	})
	if err != nil {
		return false, fmt.Errorf("badger store: delete %q: %w", key, err)
	}
	s.dropIndexLocked(key)
	return true, nil
}

// DeleteOwner removes all of an owner's entries in one write batch. On
// error nothing is committed and the index stays untouched, so the caller
// may retry without accounting drift.
func (s *Store) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return 0, err
	}

	var keys []string
	for k, ie := range s.index {
		if ie.owner == ownerID {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete(dbKey(k)); err != nil {
			wb.Cancel()
			return 0, fmt.Errorf("badger store: delete owner %q: %w", ownerID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("badger store: delete owner %q: %w", ownerID, err)
	}

	for _, k := range keys {
		s.dropIndexLocked(k)
	}
	return len(keys), nil
}

func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, ie := range s.index {
		seen[ie.owner] = struct{}{}
	}
	owners := make([]string, 0, len(seen))
	for o := range seen {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners, nil
}

func (s *Store) OwnerSize(ctx context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return 0, err
	}
	var total int64
	for _, ie := range s.index {
		if ie.owner == ownerID {
			total += ie.size
		}
	}
	return total, nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return store.Stats{}, err
	}
	byOwner := make(map[string]int64)
	for _, ie := range s.index {
		byOwner[ie.owner] += ie.size
	}
	return store.Stats{
		Entries:      len(s.index),
		SizeBytes:    s.size,
		MaxSizeBytes: s.cfg.MaxSizeBytes,
		MaxEntries:   s.cfg.MaxEntries,
		OwnerCount:   len(byOwner),
		SizeByOwner:  byOwner,
	}, nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return err
	}
	if err := s.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return fmt.Errorf("badger store: clear: %w", err)
	}
	s.index = make(map[string]indexEntry)
	s.size = 0
	return nil
}

// Destroy drops every record and removes the on-disk directory.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil && !s.closed {
		if err := s.db.DropAll(); err != nil {
			return fmt.Errorf("badger store: destroy: %w", err)
		}
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("badger store: destroy close: %w", err)
		}
	}
	s.db = nil
	s.closed = true
	s.index = nil
	s.size = 0
	if err := os.RemoveAll(s.cfg.Path); err != nil {
		return fmt.Errorf("badger store: remove dir: %w", err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil || s.closed {
		return nil
	}
	s.closed = true
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("badger store: close: %w", err)
	}
	return nil
}

func (s *Store) readyLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db == nil || s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) dropIndexLocked(key string) {
	if ie, ok := s.index[key]; ok {
		s.size -= ie.size
		delete(s.index, key)
	}
}
