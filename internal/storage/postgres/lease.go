package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"restakeRates/internal/lock"
)

// LeaseLocker takes locks as rows of sync_leases. An expired row can be taken
// over by a new owner.
type LeaseLocker struct {
	pool *pgxpool.Pool
}

// Leases returns a locker backed by this store.
func (s *Store) Leases() *LeaseLocker {
	return &LeaseLocker{pool: s.pool}
}

func (l *LeaseLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	owner, err := lock.NewOwner()
	if err != nil {
		return nil, err
	}

	var got string
	row := l.pool.QueryRow(ctx, `
		INSERT INTO sync_leases (name, owner, expires_at)
		VALUES ($1, $2, now() + $3::bigint * interval '1 millisecond')
		ON CONFLICT (name) DO UPDATE
		SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
		WHERE sync_leases.expires_at < now()
		RETURNING owner
	`, key, owner, ttl.Milliseconds())
	if err := row.Scan(&got); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", lock.ErrNotAcquired, key)
		}
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	return &lease{pool: l.pool, key: key, owner: owner}, nil
}

type lease struct {
	pool  *pgxpool.Pool
	key   string
	owner string
}

func (l *lease) Release(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, `DELETE FROM sync_leases WHERE name = $1 AND owner = $2`, l.key, l.owner); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
