// Package service contains application services for accounts and polls.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/pollboard/internal/crypto"
	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/internal/limiter"
	"github.com/and161185/pollboard/internal/model"
	"github.com/and161185/pollboard/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// AuthService defines account and session operations.
type AuthService interface {
	// Register creates a new user with secure password hashing.
	Register(ctx context.Context, username, password string) (uuid.UUID, error)
	// LoginWithIP applies rate-limiting and authenticates the user.
	LoginWithIP(ctx context.Context, username, password string, ip string) (model.Tokens, model.User, error)
	// Authenticate resolves an access token to its user id.
	Authenticate(token string) (uuid.UUID, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	now       func() time.Time
}

// NewAuthService constructs AuthService with required dependencies. A nil
// users repository means the store is not configured.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	return &AuthServiceImpl{users: users, signKey: signKey, accessTTL: accessTTL, lim: lim, now: time.Now}
}

// Register creates a new user record with a per-user salt.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (uuid.UUID, error) {
	if s.users == nil {
		return uuid.Nil, errs.ErrStoreUnavailable
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return uuid.Nil, errs.ErrMissingCredentials
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	hash, salt, err := pkgcrypto.NewCredential(password)
	if err != nil {
		return uuid.Nil, err
	}

	u := &model.User{ID: uid, Username: username, PwdHash: hash, Salt: salt}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return uuid.Nil, errs.ErrUsernameTaken
		}
		return uuid.Nil, errs.Store(err, "Failed to create account")
	}
	return uid, nil
}

// LoginWithIP authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.User, error) {
	if s.users == nil {
		return model.Tokens{}, model.User{}, errs.ErrStoreUnavailable
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.Tokens{}, model.User{}, errs.ErrMissingCredentials
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.Salt, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, username, ipHash)

	access, exp, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *u, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// Authenticate validates an HS256 token and returns its subject.
func (s *AuthServiceImpl) Authenticate(token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, errs.ErrUnauthenticated
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signKey, nil
	},
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return uuid.Nil, errs.ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.ExpiresAt == nil {
		return uuid.Nil, errs.ErrUnauthenticated
	}
	uid, err := uuid.FromString(claims.Subject)
	if err != nil || uid == uuid.Nil {
		return uuid.Nil, errs.ErrUnauthenticated
	}
	return uid, nil
}
