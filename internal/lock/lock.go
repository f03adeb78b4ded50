// Package lock provides per-token mutual exclusion for sync runs.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock held by another owner")

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases keyed by name. Leases expire after ttl if the
// holder never releases them.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// TokenKey is the lock name for one token on one chain.
func TokenKey(chainID uint64, symbol string) string {
	return fmt.Sprintf("%d:%s", chainID, strings.ToLower(symbol))
}

// NewOwner returns a random owner id for a lease.
func NewOwner() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock owner: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
