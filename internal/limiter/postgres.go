package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed limiter over the auth_limiter table.
type PG struct {
	pool   Querier
	policy Policy
	now    func() time.Time
}

// Querier is the subset of a pgx pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q Querier, p Policy) *PG {
	return &PG{pool: q, policy: p, now: time.Now}
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM auth_limiter WHERE username=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, username, ipHash).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	if now := l.now(); blockedUntil.After(now) {
		return false, blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for (username, ip).
func (l *PG) Success(ctx context.Context, username string, ipHash []byte) error {
	const q = `
INSERT INTO auth_limiter (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,0,'epoch',$3)
ON CONFLICT (username, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=$3`
	_, err := l.pool.Exec(ctx, q, username, ipHash, l.now())
	return err
}

// Failure records a failed attempt. Failures older than the window restart the
// count; reaching MaxFails blocks the pair for BlockFor.
func (l *PG) Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	now := l.now()

	const q = `
INSERT INTO auth_limiter (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',$3)
ON CONFLICT (username, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN $3 - auth_limiter.updated_at > $4::interval THEN 1 ELSE auth_limiter.fail_count + 1 END,
  updated_at = $3
RETURNING fail_count`
	var fails int
	if err := l.pool.QueryRow(ctx, q, username, ipHash, now, l.policy.Window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.policy.MaxFails {
		return false, 0, nil
	}
	const upd = `UPDATE auth_limiter SET blocked_until=$3 WHERE username=$1 AND ip_hash=$2`
	if _, err := l.pool.Exec(ctx, upd, username, ipHash, now.Add(l.policy.BlockFor)); err != nil {
		return false, 0, err
	}
	return true, l.policy.BlockFor, nil
}
