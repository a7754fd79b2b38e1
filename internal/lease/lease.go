package lease

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another holder owns the lease.
var ErrHeld = errors.New("lease held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Manager hands out per-key leases with a TTL, backed by Redis SET NX PX.
// A crashed holder's lease expires on its own, so a stuck generation never
// blocks the next attempt for longer than the TTL. Safe across instances.
type Manager struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Lease is a held lease. Release it when the protected work finishes.
type Lease struct {
	manager *Manager
	key     string
	token   string
}

// NewManager creates a lease manager. TTL defaults to 60 seconds.
func NewManager(addr, password, prefix string, ttl time.Duration) (*Manager, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("lease redis addr required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "pathwise:lease"
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Manager{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// Acquire takes the lease for key or returns ErrHeld.
func (m *Manager) Acquire(ctx context.Context, key, token string) (*Lease, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("lease key required")
	}
	redisKey := fmt.Sprintf("%s:%s", m.prefix, key)
	ok, err := m.client.SetNX(ctx, redisKey, token, m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lease{manager: m, key: redisKey, token: token}, nil
}

// Release frees the lease if this holder still owns it. Returns false when
// the lease already expired or was taken over; callers log that, nothing more.
func (l *Lease) Release(ctx context.Context) (bool, error) {
	res, err := releaseScript.Run(ctx, l.manager.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return false, fmt.Errorf("release lease: %w", err)
	}
	return res == 1, nil
}
