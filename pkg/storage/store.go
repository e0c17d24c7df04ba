// Package storage defines the key-value store contract the compliance engine
// persists through, along with the concrete adapters shipped with CannaFlow:
// an in-memory store for tests and browser-like hosts, a file-backed store for
// devices with direct filesystem access, and a PostgreSQL store for back-office
// deployments (see the postgres subpackage).
//
// The engine treats whichever adapter it is handed as the sole source of
// truth. Adapters only need get/set-by-key semantics over JSON-serializable
// values; the engine assumes a single writer per process and does not require
// locking or optimistic concurrency from the adapter.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("storage: key not found")

// Store is the durable key-value contract used by the compliance engine.
// Values are opaque JSON documents. Set must not return success until the
// value is durably recorded.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set durably records value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
}
