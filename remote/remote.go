// Package remote defines the origin tier: the caller-supplied source of
// authoritative resource bytes consulted on a full cache miss.
//
// Fetchers own their timeout and retry behavior; the cache never retries and
// surfaces a failed fetch to the caller instead of caching a negative result.
package remote

import "context"

// Resource is the payload returned by an origin fetch.
type Resource struct {
	Data     []byte
	MimeType string
	Metadata map[string]string
}

// Fetcher retrieves authoritative bytes for a resource.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, ownerID, resourcePath string) (*Resource, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, ownerID, resourcePath string) (*Resource, error)

func (f FetcherFunc) Fetch(ctx context.Context, ownerID, resourcePath string) (*Resource, error) {
	return f(ctx, ownerID, resourcePath)
}
