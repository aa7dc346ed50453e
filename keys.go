package rescache

import (
	"fmt"
	"strings"
)

// KeyDelimiter separates the owner id from the resource path in a composite
// cache key.
const KeyDelimiter = ":"

// Key builds the composite key for (ownerID, resourcePath). The owner id
// must be non-empty and free of the delimiter; the resource path may contain
// it, since SplitKey cuts on the first occurrence only.
func Key(ownerID, resourcePath string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("rescache: empty owner id")
	}
	if strings.Contains(ownerID, KeyDelimiter) {
		return "", fmt.Errorf("rescache: owner id %q must not contain %q", ownerID, KeyDelimiter)
	}
	if resourcePath == "" {
		return "", fmt.Errorf("rescache: empty resource path")
	}
	return ownerID + KeyDelimiter + resourcePath, nil
}

// SplitKey is the inverse of Key for all keys Key can produce.
// ok is false for malformed input.
func SplitKey(key string) (ownerID, resourcePath string, ok bool) {
	owner, path, found := strings.Cut(key, KeyDelimiter)
	if !found || owner == "" || path == "" {
		return "", "", false
	}
	return owner, path, true
}

// OwnerPrefix returns the key prefix shared by all of an owner's resources.
func OwnerPrefix(ownerID string) string {
	return ownerID + KeyDelimiter
}
