package port

import "context"

// VersionedStore is a single external document accessed under optimistic
// concurrency. Get returns the current payload with an opaque version token;
// Put succeeds only when expectedVersion still matches the stored version.
//
// For a document that does not exist yet, Get returns repository.ErrNotFound
// and Put accepts an empty expectedVersion as "create".
type VersionedStore interface {
	Get(ctx context.Context) (payload []byte, version string, err error)
	Put(ctx context.Context, payload []byte, expectedVersion string) (newVersion string, err error)
}
