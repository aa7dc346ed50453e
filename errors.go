package rescache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the key missed every tier and no remote fetcher is
	// configured to fill it. A plain miss is not an error elsewhere.
	ErrNotFound = errors.New("rescache: not found")

	// ErrEntryTooLarge means a single value alone exceeds a tier's size
	// budget. The value is rejected whole; the tier never evicts everything
	// just to still overflow.
	ErrEntryTooLarge = errors.New("rescache: entry too large")

	// ErrStorageUnavailable means the persistent tier failed to open or
	// transact. The cache degrades to memory + remote and keeps serving.
	ErrStorageUnavailable = errors.New("rescache: persistent store unavailable")

	// ErrRemoteUnavailable means the origin fetch failed. The failure is
	// surfaced to the caller and never cached as a negative result.
	ErrRemoteUnavailable = errors.New("rescache: remote fetch failed")
)

// EntryTooLargeError reports the sizes involved when a value is rejected.
// It unwraps to ErrEntryTooLarge.
type EntryTooLargeError struct {
	Key  string
	Size int64
	Max  int64
}

func (e *EntryTooLargeError) Error() string {
	return fmt.Sprintf("rescache: entry %q is %d bytes, tier budget is %d", e.Key, e.Size, e.Max)
}

func (e *EntryTooLargeError) Unwrap() error { return ErrEntryTooLarge }
