package leaselock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgBackend struct {
	db dbConn
}

// New returns a Client keeping leases in the migration_locks table.
func New(pool *pgxpool.Pool) *Client {
	return &Client{b: &pgBackend{db: pool}}
}

func (p *pgBackend) tryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	var returnedKey string
	err := p.db.QueryRow(ctx, tryAcquireSQL, key, token, ttl.Milliseconds()).Scan(&returnedKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return returnedKey != "", nil
}

func (p *pgBackend) renew(ctx context.Context, key, token string, ttl time.Duration) error {
	var returnedKey string
	err := p.db.QueryRow(ctx, renewSQL, key, token, ttl.Milliseconds()).Scan(&returnedKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLost
	}
	return err
}

func (p *pgBackend) release(ctx context.Context, key, token string) error {
	_, err := p.db.Exec(ctx, releaseSQL, key, token)
	return err
}

const tryAcquireSQL = `
INSERT INTO migration_locks (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE migration_locks.expires_at < now()
   OR migration_locks.locked_by = EXCLUDED.locked_by
RETURNING lock_key;
`

const renewSQL = `
UPDATE migration_locks
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key;
`

const releaseSQL = `
DELETE FROM migration_locks
WHERE lock_key = $1 AND locked_by = $2;
`
