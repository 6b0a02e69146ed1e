package postgres

import (
	"context"

	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, pwd_hash, salt)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Username, u.PwdHash, u.Salt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `
SELECT id, username, pwd_hash, salt, created_at
FROM users WHERE id=$1`
	var u model.User
	if err := r.db.Pool.QueryRow(ctx, q, id).
		Scan(&u.ID, &u.Username, &u.PwdHash, &u.Salt, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `
SELECT id, username, pwd_hash, salt, created_at
FROM users WHERE username=$1`
	var u model.User
	if err := r.db.Pool.QueryRow(ctx, q, username).
		Scan(&u.ID, &u.Username, &u.PwdHash, &u.Salt, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}
