package drop

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisLeasePrefix = "mintline:lease:"

// RedisRunLeaseManager coordinates run leases via Redis, for deployments
// where uploads may be launched from several hosts against a shared cache
// store (for example, the Mongo-backed CacheStore behind a CI fleet).
//
// Redis semantics:
//   - Acquire uses SET NX PX for atomic lock-with-TTL.
//   - Renew uses a token-checked Lua script (GET + PEXPIRE).
//   - Release uses a token-checked Lua script (GET + DEL).
//
// Token checks keep one run from renewing or releasing another run's lease.
type RedisRunLeaseManager struct {
	Client redis.UniversalClient
	Prefix string
}

// NewRedisRunLeaseManager creates a Redis-backed lease manager. Prefix
// namespaces lease keys so environments can share one Redis; empty means
// the default namespace.
func NewRedisRunLeaseManager(client redis.UniversalClient, prefix string) (*RedisRunLeaseManager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisLeasePrefix
	}
	return &RedisRunLeaseManager{Client: client, Prefix: prefix}, nil
}

// Acquire attempts to acquire a lease for cacheID for the given ttl. On
// conflict it returns ErrRunLeaseConflict.
func (m *RedisRunLeaseManager) Acquire(ctx context.Context, cacheID string, ttl time.Duration) (*RunLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cacheID) == "" {
		return nil, fmt.Errorf("cacheID cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultRunLeaseTTL
	}

	token, err := randomLeaseToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ok, err := m.Client.SetNX(ctx, m.key(cacheID), token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRunLeaseConflict
	}

	return &RunLease{CacheID: cacheID, Token: token, ExpiresAt: now.Add(ttl)}, nil
}

// Renew extends an existing lease when the token still owns the key. A
// missing, expired or stolen key returns ErrRunLeaseConflict.
func (m *RedisRunLeaseManager) Renew(ctx context.Context, lease *RunLease, ttl time.Duration) (*RunLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lease == nil || strings.TrimSpace(lease.CacheID) == "" || strings.TrimSpace(lease.Token) == "" {
		return nil, fmt.Errorf("valid lease is required")
	}
	if ttl <= 0 {
		ttl = defaultRunLeaseTTL
	}

	now := time.Now().UTC()
	res, err := renewRunLeaseScript.Run(ctx, m.Client, []string{m.key(lease.CacheID)}, lease.Token, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, err
	}
	if res != 1 {
		return nil, ErrRunLeaseConflict
	}

	return &RunLease{CacheID: lease.CacheID, Token: lease.Token, ExpiresAt: now.Add(ttl)}, nil
}

// Release deletes an existing lease only if the token still owns the key.
//
// Release ignores the caller's context state: a cancelled run must still
// free the lock, or every later invocation blocks until the TTL expires.
func (m *RedisRunLeaseManager) Release(_ context.Context, lease *RunLease) error {
	if lease == nil || strings.TrimSpace(lease.CacheID) == "" || strings.TrimSpace(lease.Token) == "" {
		return nil
	}

	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := releaseRunLeaseScript.Run(releaseCtx, m.Client, []string{m.key(lease.CacheID)}, lease.Token).Int()
	return err
}

func (m *RedisRunLeaseManager) key(cacheID string) string {
	return m.Prefix + cacheID
}

func randomLeaseToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

var renewRunLeaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

var releaseRunLeaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)
