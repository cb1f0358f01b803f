// Package artifact defines the blob store abstraction for pipeline outputs:
// screenshots, full audit reports, and the trimmed report tree. Backends
// live in subpackages so this package stays free of cloud SDK imports.
package artifact

import "context"

// Store persists one artifact and returns a URI for it. Implementations
// must be safe for concurrent use; capture runs several puts at once.
type Store interface {
	// Put writes data under path and returns the backend URI (file://,
	// memory:// or gs://).
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}
