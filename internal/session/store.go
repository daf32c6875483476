// Package session abstracts the host's session-like key-value store.
//
// The verification core keeps exactly one piece of cross-request state,
// the remembered-trust marker, and it lives here rather than in process
// memory so correctness holds across unrelated concurrent requests.
// Two implementations are provided:
//   - Memory: in-process, for tests and single-instance deployments.
//   - Redis: shared, for multi-instance deployments.
package session

import (
	"context"
	"time"
)

// Store is the minimal session contract the verification core consumes:
// get, put with optional TTL, forget. A zero ttl on Put means the entry
// never expires.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}
