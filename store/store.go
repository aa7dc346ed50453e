// Package store defines the persistent tier used by rescache: a durable,
// capacity-bounded key->entry store with access-time eviction that survives
// process restarts.
//
// Implementations own the serialized payload for the lifetime of a record and
// must keep their running size total equal to the sum of live entry sizes
// after any sequence of Set/Delete/eviction. Open must recompute that total
// from the stored records, since a counter cached by a previous process may
// be stale after a crash.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTooLarge means a single entry alone exceeds the store's size
	// budget. The entry is rejected whole, never partially stored.
	ErrTooLarge = errors.New("store: entry too large")

	// ErrCorrupt means a stored record failed to decode. Implementations
	// delete the record and report the lookup as a miss; the sentinel is
	// only surfaced through logs and hooks.
	ErrCorrupt = errors.New("store: corrupt entry")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
)

// Entry is one durable cache record. Size always reflects len(Data);
// AccessedAt and AccessCount are bumped on every hit.
type Entry struct {
	Key          string            `msgpack:"k" cbor:"1,keyasint" json:"key"`
	OwnerID      string            `msgpack:"o" cbor:"2,keyasint" json:"ownerId"`
	ResourcePath string            `msgpack:"p" cbor:"3,keyasint" json:"resourcePath"`
	Data         []byte            `msgpack:"d" cbor:"4,keyasint" json:"data"`
	MimeType     string            `msgpack:"m" cbor:"5,keyasint" json:"mimeType"`
	Size         int64             `msgpack:"s" cbor:"6,keyasint" json:"size"`
	CreatedAt    time.Time         `msgpack:"c" cbor:"7,keyasint" json:"createdAt"`
	AccessedAt   time.Time         `msgpack:"a" cbor:"8,keyasint" json:"accessedAt"`
	AccessCount  int64             `msgpack:"n" cbor:"9,keyasint" json:"accessCount"`
	Metadata     map[string]string `msgpack:"md,omitempty" cbor:"10,keyasint,omitempty" json:"metadata,omitempty"`
}

// Stats describes the store's occupancy.
type Stats struct {
	Entries      int
	SizeBytes    int64
	MaxSizeBytes int64
	MaxEntries   int
	OwnerCount   int
	SizeByOwner  map[string]int64
}

// Store is the persistent tier contract.
//
// Get bumps access metadata as a write-back; implementations either
// serialize that read-modify-write per key or document last-writer-wins.
// DeleteOwner is a single logical operation: on error nothing is removed
// and the size bookkeeping is untouched, so the caller may retry.
type Store interface {
	// Open prepares durable storage and reconciles the running size total
	// against a full scan of stored records.
	Open(ctx context.Context) error

	// Get returns the entry and true on a hit. A miss is (nil, false, nil).
	// Corrupt records are deleted and reported as misses.
	Get(ctx context.Context, key string) (*Entry, bool, error)

	// Set inserts or replaces an entry, evicting least-recently-accessed
	// entries first until the incoming size fits. Replacing a key adjusts
	// the running total by the size delta.
	Set(ctx context.Context, e *Entry) error

	// Delete removes a single entry and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteOwner removes every entry belonging to ownerID and returns the
	// number removed.
	DeleteOwner(ctx context.Context, ownerID string) (int, error)

	ListOwners(ctx context.Context) ([]string, error)
	OwnerSize(ctx context.Context, ownerID string) (int64, error)
	Stats(ctx context.Context) (Stats, error)

	// Clear removes every entry but keeps the store usable.
	Clear(ctx context.Context) error

	// Destroy drops the whole store including its on-disk artifacts.
	Destroy(ctx context.Context) error

	Close(ctx context.Context) error
}
