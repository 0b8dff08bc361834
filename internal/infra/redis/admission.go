package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forgescan/api/pkg/domain/shared"
)

// Lua scripts are compiled once at package initialization. They keep the
// acquire/release pair atomic across multiple API instances.
var (
	// acquireScript takes one scan slot if the tenant is under its limit.
	acquireScript = redis.NewScript(`
		local key = KEYS[1]
		local limit = tonumber(ARGV[1])
		local scan_id = ARGV[2]
		local ttl_ms = tonumber(ARGV[3])

		local count = redis.call('SCARD', key)
		if count < limit then
			redis.call('SADD', key, scan_id)
			redis.call('PEXPIRE', key, ttl_ms)
			return {1, limit - count - 1}
		end
		return {0, 0}
	`)

	// releaseScript frees the slot held by a scan. Releasing a slot that
	// was never held (or already expired) is a no-op.
	releaseScript = redis.NewScript(`
		local key = KEYS[1]
		local scan_id = ARGV[1]
		return redis.call('SREM', key, scan_id)
	`)
)

// AdmissionLimiter caps concurrent scans per tenant across all API
// instances. Slots carry a TTL so a crashed worker cannot leak a slot
// forever.
type AdmissionLimiter struct {
	client  *Client
	slotTTL time.Duration
}

// NewAdmissionLimiter creates an admission limiter. slotTTL should exceed
// the longest allowed scan runtime.
func NewAdmissionLimiter(client *Client, slotTTL time.Duration) *AdmissionLimiter {
	return &AdmissionLimiter{client: client, slotTTL: slotTTL}
}

func (l *AdmissionLimiter) key(tenantID shared.ID) string {
	return "forgescan:scans:active:" + tenantID.String()
}

// Acquire attempts to take a scan slot for the tenant. It returns whether
// the slot was granted and how many slots remain.
func (l *AdmissionLimiter) Acquire(ctx context.Context, tenantID, scanID shared.ID, limit int) (bool, int, error) {
	res, err := acquireScript.Run(ctx, l.client.Client(),
		[]string{l.key(tenantID)},
		limit, scanID.String(), l.slotTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("acquire scan slot: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("acquire scan slot: unexpected reply %v", res)
	}
	return res[0] == 1, int(res[1]), nil
}

// Release frees the slot held by a scan.
func (l *AdmissionLimiter) Release(ctx context.Context, tenantID, scanID shared.ID) error {
	err := releaseScript.Run(ctx, l.client.Client(),
		[]string{l.key(tenantID)},
		scanID.String(),
	).Err()
	if err != nil {
		return fmt.Errorf("release scan slot: %w", err)
	}
	return nil
}

// Active returns the number of slots currently held by a tenant.
func (l *AdmissionLimiter) Active(ctx context.Context, tenantID shared.ID) (int, error) {
	n, err := l.client.Client().SCard(ctx, l.key(tenantID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count scan slots: %w", err)
	}
	return int(n), nil
}
