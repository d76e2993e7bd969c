package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TenantLock serializes sync calls per tenant through a Redis lease.
type TenantLock struct {
	client *redis.Client
	lease  time.Duration
	wait   time.Duration
}

// NewTenantLock constructs a TenantLock.
func NewTenantLock(client *redis.Client, lease, wait time.Duration) *TenantLock {
	return &TenantLock{client: client, lease: lease, wait: wait}
}

// TenantLockKey builds the redis key for a tenant critical section.
func TenantLockKey(companyID int64) string {
	return fmt.Sprintf("sync:tenant:%d:lock", companyID)
}

// Acquire blocks until the tenant lease is obtained, the wait budget
// elapses, or ctx is cancelled. The returned release func is safe to
// call once; it only deletes the lease if this caller still owns it.
func (l *TenantLock) Acquire(ctx context.Context, companyID int64) (func(), error) {
	key := TenantLockKey(companyID)
	token := uuid.NewString()

	deadline := time.Now().Add(l.wait)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("shared: tenant lock: %w", err)
		}
		if ok {
			release := func() {
				// Compare-and-delete so an expired lease taken over by
				// another caller is never released from here.
				const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
				_ = l.client.Eval(context.Background(), script, []string{key}, token).Err()
			}
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
