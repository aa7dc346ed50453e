// Package redis is a Redis-backed store.Store for hosts that prefer an
// out-of-process persistent tier (durability is whatever the Redis
// deployment provides).
//
// Layout, all under a configurable namespace:
//
//	<ns>:res:<key>        - serialized record
//	<ns>:idx:accessed     - ZSET key -> accessedAt (unix nanos); eviction scans
//	<ns>:idx:size         - HASH key -> size bytes
//	<ns>:idx:owner-of     - HASH key -> owner id
//	<ns>:idx:owner:<o>    - SET of an owner's keys (bulk delete)
//	<ns>:idx:owners       - SET of owner ids
//	<ns>:stat:size        - running size total, reconciled at Open
//
// Access-metadata bumps are last-writer-wins: two concurrent Gets of the
// same key may lose one bump, which only skews eviction order slightly.
// Owner deletion runs in a MULTI/EXEC transaction, so it aborts as a unit.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bookvault/rescache/codec"
	"github.com/bookvault/rescache/store"
)

const (
	DefaultNamespace    = "rescache"
	DefaultMaxSizeBytes = 512 << 20
	DefaultMaxEntries   = 65536
)

var ErrNilClient = errors.New("redis store: nil client")

type Config struct {
	Client    goredis.UniversalClient
	Namespace string // default "rescache"

	MaxSizeBytes int64 // default 512 MiB
	MaxEntries   int   // default 65536

	// Codec overrides the record serialization. nil => msgpack.
	Codec codec.Codec[store.Entry]

	// CloseClient releases the client on Close. Set only when this store
	// exclusively owns it.
	CloseClient bool
}

type Store struct {
	rdb         goredis.UniversalClient
	ns          string
	maxSize     int64
	maxEntries  int
	cod         codec.Codec[store.Entry]
	closeClient bool
}

var _ store.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
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
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return &Store{
		rdb:         cfg.Client,
		ns:          ns,
		maxSize:     cfg.MaxSizeBytes,
		maxEntries:  cfg.MaxEntries,
		cod:         cod,
		closeClient: cfg.CloseClient,
	}, nil
}

func (s *Store) blobKey(key string) string   { return s.ns + ":res:" + key }
func (s *Store) accessedKey() string         { return s.ns + ":idx:accessed" }
func (s *Store) sizeKey() string             { return s.ns + ":idx:size" }
func (s *Store) ownerOfKey() string          { return s.ns + ":idx:owner-of" }
func (s *Store) ownerKey(owner string) string { return s.ns + ":idx:owner:" + owner }
func (s *Store) ownersKey() string           { return s.ns + ":idx:owners" }
func (s *Store) totalKey() string            { return s.ns + ":stat:size" }

// Open pings the server and reconciles the running total against the size
// index, since a previous process may have died between increments.
func (s *Store) Open(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis store: ping: %w", err)
	}
	sizes, err := s.rdb.HGetAll(ctx, s.sizeKey()).Result()
	if err != nil {
		return fmt.Errorf("redis store: reconcile: %w", err)
	}
	var total int64
	for _, v := range sizes {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("redis store: reconcile parse: %w", err)
		}
		total += n
	}
	if err := s.rdb.Set(ctx, s.totalKey(), total, 0).Err(); err != nil {
		return fmt.Errorf("redis store: reconcile write: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*store.Entry, bool, error) {
	raw, err := s.rdb.Get(ctx, s.blobKey(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis store: get %q: %w", key, err)
	}

	e, derr := s.cod.Decode(raw)
	if derr != nil {
		// Self-heal: drop the corrupt record and report a miss.
		if _, err := s.remove(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	e.AccessedAt = time.Now()
	e.AccessCount++
	enc, err := s.cod.Encode(e)
	if err != nil {
		return nil, false, fmt.Errorf("redis store: encode %q: %w", key, err)
	}
	_, err = s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, s.blobKey(key), enc, 0)
		p.ZAdd(ctx, s.accessedKey(), goredis.Z{Score: float64(e.AccessedAt.UnixNano()), Member: key})
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("redis store: touch %q: %w", key, err)
	}
	return &e, true, nil
}

func (s *Store) Set(ctx context.Context, e *store.Entry) error {
	if e == nil || e.Key == "" || e.OwnerID == "" {
		return fmt.Errorf("redis store: invalid entry")
	}
	size := int64(len(e.Data))
	if size > s.maxSize {
		return fmt.Errorf("redis store: %q (%d bytes): %w", e.Key, size, store.ErrTooLarge)
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

	oldSize, replacing, err := s.entrySize(ctx, rec.Key)
	if err != nil {
		return err
	}
	if err := s.evict(ctx, rec.Key, size-oldSize, !replacing); err != nil {
		return err
	}

	enc, err := s.cod.Encode(rec)
	if err != nil {
		return fmt.Errorf("redis store: encode %q: %w", rec.Key, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, s.blobKey(rec.Key), enc, 0)
		p.ZAdd(ctx, s.accessedKey(), goredis.Z{Score: float64(rec.AccessedAt.UnixNano()), Member: rec.Key})
		p.HSet(ctx, s.sizeKey(), rec.Key, size)
		p.HSet(ctx, s.ownerOfKey(), rec.Key, rec.OwnerID)
		p.SAdd(ctx, s.ownerKey(rec.OwnerID), rec.Key)
		p.SAdd(ctx, s.ownersKey(), rec.OwnerID)
		p.IncrBy(ctx, s.totalKey(), size-oldSize)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: set %q: %w", rec.Key, err)
	}
	return nil
}

// evict frees room for an incoming delta, removing least-recently-accessed
// entries first. The key being written is never its own victim.
func (s *Store) evict(ctx context.Context, incomingKey string, delta int64, addingEntry bool) error {
	for {
		total, err := s.total(ctx)
		if err != nil {
			return err
		}
		entries, err := s.rdb.ZCard(ctx, s.accessedKey()).Result()
		if err != nil {
			return fmt.Errorf("redis store: zcard: %w", err)
		}
		if addingEntry {
			entries++
		}
		if total+delta <= s.maxSize && entries <= int64(s.maxEntries) {
			return nil
		}

		// Two candidates so a self-hit still yields a victim.
		cands, err := s.rdb.ZRange(ctx, s.accessedKey(), 0, 1).Result()
		if err != nil {
			return fmt.Errorf("redis store: eviction scan: %w", err)
		}
		victim := ""
		for _, k := range cands {
			if k != incomingKey {
				victim = k
				break
			}
		}
		if victim == "" {
			return nil // no candidates left
		}
		if _, err := s.remove(ctx, victim); err != nil {
			return err
		}
	}
}

// remove deletes one record and all its index entries transactionally.
func (s *Store) remove(ctx context.Context, key string) (bool, error) {
	sizeStr, err := s.rdb.HGet(ctx, s.sizeKey(), key).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis store: remove %q: %w", key, err)
	}
	size, _ := strconv.ParseInt(sizeStr, 10, 64)
	owner, err := s.rdb.HGet(ctx, s.ownerOfKey(), key).Result()
	if err != nil && err != goredis.Nil {
		return false, fmt.Errorf("redis store: remove %q: %w", key, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, s.blobKey(key))
		p.ZRem(ctx, s.accessedKey(), key)
		p.HDel(ctx, s.sizeKey(), key)
		p.HDel(ctx, s.ownerOfKey(), key)
		if owner != "" {
			p.SRem(ctx, s.ownerKey(owner), key)
		}
		p.DecrBy(ctx, s.totalKey(), size)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis store: remove %q: %w", key, err)
	}

	if owner != "" {
		left, err := s.rdb.SCard(ctx, s.ownerKey(owner)).Result()
		if err == nil && left == 0 {
			_ = s.rdb.SRem(ctx, s.ownersKey(), owner).Err()
		}
	}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	return s.remove(ctx, key)
}

func (s *Store) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	keys, err := s.rdb.SMembers(ctx, s.ownerKey(ownerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis store: delete owner %q: %w", ownerID, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	var total int64
	sizes, err := s.rdb.HMGet(ctx, s.sizeKey(), keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis store: delete owner %q: %w", ownerID, err)
	}
	for _, v := range sizes {
		if str, ok := v.(string); ok {
			n, _ := strconv.ParseInt(str, 10, 64)
			total += n
		}
	}

	// MULTI/EXEC: either the whole owner goes, or nothing does and the
	// bookkeeping is untouched.
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for _, k := range keys {
			p.Del(ctx, s.blobKey(k))
		}
		p.ZRem(ctx, s.accessedKey(), toMembers(keys)...)
		p.HDel(ctx, s.sizeKey(), keys...)
		p.HDel(ctx, s.ownerOfKey(), keys...)
		p.Del(ctx, s.ownerKey(ownerID))
		p.SRem(ctx, s.ownersKey(), ownerID)
		p.DecrBy(ctx, s.totalKey(), total)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis store: delete owner %q: %w", ownerID, err)
	}
	return len(keys), nil
}

func toMembers(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	owners, err := s.rdb.SMembers(ctx, s.ownersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: list owners: %w", err)
	}
	sort.Strings(owners)
	return owners, nil
}

func (s *Store) OwnerSize(ctx context.Context, ownerID string) (int64, error) {
	keys, err := s.rdb.SMembers(ctx, s.ownerKey(ownerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis store: owner size %q: %w", ownerID, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	sizes, err := s.rdb.HMGet(ctx, s.sizeKey(), keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis store: owner size %q: %w", ownerID, err)
	}
	var total int64
	for _, v := range sizes {
		if str, ok := v.(string); ok {
			n, _ := strconv.ParseInt(str, 10, 64)
			total += n
		}
	}
	return total, nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	entries, err := s.rdb.ZCard(ctx, s.accessedKey()).Result()
	if err != nil {
		return store.Stats{}, fmt.Errorf("redis store: stats: %w", err)
	}
	total, err := s.total(ctx)
	if err != nil {
		return store.Stats{}, err
	}
	owners, err := s.ListOwners(ctx)
	if err != nil {
		return store.Stats{}, err
	}
	byOwner := make(map[string]int64, len(owners))
	for _, o := range owners {
		n, err := s.OwnerSize(ctx, o)
		if err != nil {
			return store.Stats{}, err
		}
		byOwner[o] = n
	}
	return store.Stats{
		Entries:      int(entries),
		SizeBytes:    total,
		MaxSizeBytes: s.maxSize,
		MaxEntries:   s.maxEntries,
		OwnerCount:   len(owners),
		SizeByOwner:  byOwner,
	}, nil
}

func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.rdb.ZRange(ctx, s.accessedKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis store: clear: %w", err)
	}
	owners, err := s.rdb.SMembers(ctx, s.ownersKey()).Result()
	if err != nil {
		return fmt.Errorf("redis store: clear: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for _, k := range keys {
			p.Del(ctx, s.blobKey(k))
		}
		for _, o := range owners {
			p.Del(ctx, s.ownerKey(o))
		}
		p.Del(ctx, s.accessedKey(), s.sizeKey(), s.ownerOfKey(), s.ownersKey(), s.totalKey())
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: clear: %w", err)
	}
	return nil
}

// Destroy is Clear for this backend: the namespace holds no artifacts
// beyond the keys Clear removes.
func (s *Store) Destroy(ctx context.Context) error {
	return s.Clear(ctx)
}

// Close releases the client only when this store owns it.
func (s *Store) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func (s *Store) entrySize(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.rdb.HGet(ctx, s.sizeKey(), key).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis store: size of %q: %w", key, err)
	}
	n, perr := strconv.ParseInt(v, 10, 64)
	if perr != nil {
		return 0, false, fmt.Errorf("redis store: size of %q: %w", key, perr)
	}
	return n, true, nil
}

func (s *Store) total(ctx context.Context) (int64, error) {
	v, err := s.rdb.Get(ctx, s.totalKey()).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis store: total: %w", err)
	}
	return v, nil
}
