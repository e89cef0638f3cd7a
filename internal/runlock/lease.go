// Package runlock provides an exclusive run permit backed by a Redis
// lease, replacing ad hoc lock/PID files. While a live process holds
// the lease, a second invocation is refused and must exit without
// writing anything. The TTL bounds how long a crashed holder can block
// subsequent runs.
package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another process already holds the lease
var ErrLockHeld = errors.New("run lock already held")

// releaseScript deletes the lease only when the stored token matches,
// so an expired holder cannot release a successor's lease
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// Lease is an exclusive, TTL-bounded run permit
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// New creates a lease for the given pipeline mode
func New(client *redis.Client, mode string, ttl time.Duration) *Lease {
	return &Lease{
		client: client,
		key:    "pipeline:lock:" + mode,
		ttl:    ttl,
	}
}

// Acquire takes the lease, returning ErrLockHeld if another process
// holds it
func (l *Lease) Acquire(ctx context.Context) error {
	token, err := randomToken()
	if err != nil {
		return fmt.Errorf("failed to generate lock token: %w", err)
	}

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	l.token = token
	return nil
}

// Release gives up the lease. Releasing a lease this process does not
// hold is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	l.token = ""
	return nil
}

// Refresh extends the lease TTL for long runs. Refreshing a lease held
// by someone else fails.
func (l *Lease) Refresh(ctx context.Context) error {
	if l.token == "" {
		return errors.New("no lease held")
	}
	current, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil || (err == nil && current != l.token) {
		return errors.New("lease lost")
	}
	if err != nil {
		return fmt.Errorf("failed to check run lock: %w", err)
	}
	if err := l.client.Expire(ctx, l.key, l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh run lock: %w", err)
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
