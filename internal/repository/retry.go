package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/port"
)

// MaxWriteAttempts bounds the re-read-and-reapply loop for stale-version
// conflicts. There is no backoff beyond the re-read itself.
const MaxWriteAttempts = 3

// Mutation reapplies the caller's intended change to a freshly loaded
// document. Returning false skips the write (the mutation decided it no
// longer applies); any error aborts the loop.
type Mutation[T any] func(doc *T) (write bool, err error)

// WithOptimisticRetry runs a read-mutate-write cycle against a versioned
// store. Each attempt re-reads the current document, reapplies the mutation,
// and writes with the observed version token. Version conflicts and transient
// backend failures retry up to MaxWriteAttempts; permission and
// malformed-request failures are fatal.
//
// A missing document starts from the zero value with an empty version token,
// which the store treats as a create.
func WithOptimisticRetry[T any](ctx context.Context, store port.VersionedStore, mutate Mutation[T]) (*T, string, error) {
	var lastErr error

	for attempt := 0; attempt < MaxWriteAttempts; attempt++ {
		doc, version, err := Load[T](ctx, store)
		if err != nil {
			return nil, "", err
		}

		write, err := mutate(doc)
		if err != nil {
			return nil, "", err
		}
		if !write {
			return doc, version, nil
		}

		payload, err := json.Marshal(doc)
		if err != nil {
			return nil, "", fmt.Errorf("marshal document: %w", err)
		}

		newVersion, err := store.Put(ctx, payload, version)
		if err == nil {
			return doc, newVersion, nil
		}
		if !errors.Is(err, ErrVersionConflict) && !errors.Is(err, ErrUnavailable) {
			return nil, "", err
		}
		lastErr = err
	}

	return nil, "", fmt.Errorf("write retries exhausted: %w", lastErr)
}

// Load reads and decodes the current document. A missing document yields the
// zero value and an empty version token.
func Load[T any](ctx context.Context, store port.VersionedStore) (*T, string, error) {
	payload, version, err := store.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		return new(T), "", nil
	}
	if err != nil {
		return nil, "", err
	}

	doc := new(T)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, doc); err != nil {
			return nil, "", fmt.Errorf("decode document: %w", err)
		}
	}
	return doc, version, nil
}
