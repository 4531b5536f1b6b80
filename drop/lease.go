// lease.go defines the RunLeaseManager interface used to keep two
// invocations of the pipeline from mutating the same cache at once.
//
// The cache file assumes a single writer; the lease makes a second
// concurrent invocation against the same (environment, name) fail fast with
// ErrRunLeaseConflict instead of silently double-uploading. It is a
// coordination aid, not a correctness guard: a crashed run's lease simply
// expires and the next invocation resumes from the persisted cache.
//
// Implementations:
//
//   - InMemoryRunLeaseManager — in-process map, the default for a single
//     binary and for tests.
//   - RedisRunLeaseManager — Redis SET NX / Lua scripts, for fleets where
//     uploads may be launched from several hosts against a shared cache
//     store.

package drop

import (
	"context"
	"time"
)

const defaultRunLeaseTTL = 5 * time.Minute

// RunLease represents a held lease for one (environment, name) cache. The
// Token field lets the manager verify ownership on Renew and Release so one
// run cannot release another's lease.
type RunLease struct {
	CacheID   string
	Token     string
	ExpiresAt time.Time
}

// RunLeaseManager coordinates pipeline runs. Acquire returns
// ErrRunLeaseConflict when the lease is already held; Release is
// best-effort and must be attempted on every exit path.
type RunLeaseManager interface {
	Acquire(ctx context.Context, cacheID string, ttl time.Duration) (*RunLease, error)
	Renew(ctx context.Context, lease *RunLease, ttl time.Duration) (*RunLease, error)
	Release(ctx context.Context, lease *RunLease) error
}
