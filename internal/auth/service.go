package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

// TokenService issues, validates and revokes remote API auth tokens.
// Every method takes the Querier of the caller's unit of work.
type TokenService struct {
	secret string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service signing with secret.
// A non-positive ttl falls back to 24 hours.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenService{secret: secret, ttl: ttl, now: time.Now}
}

// Authenticate checks a username/password pair.
// Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (s *TokenService) Authenticate(ctx context.Context, q database.Querier, username, password string) (*User, error) {
	user, err := NewUserRepository(q).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// IssueToken stores a new token row for user and returns its signed form.
func (s *TokenService) IssueToken(ctx context.Context, q database.Querier, user *User) (string, *AuthToken, error) {
	now := s.now().UTC().Truncate(time.Second)
	token := &AuthToken{
		UserID:    user.ID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := NewTokenRepository(q).Create(ctx, token); err != nil {
		return "", nil, err
	}

	signed, err := SignToken(user, token, s.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, token, nil
}

// ValidateToken verifies a signed token and its stored row, and returns the
// owning user. The user must still exist and be active.
func (s *TokenService) ValidateToken(ctx context.Context, q database.Querier, signed string) (*User, *AuthToken, error) {
	claims, err := ParseToken(signed, s.secret)
	if err != nil {
		return nil, nil, err
	}

	token, err := s.CheckToken(ctx, q, claims.ID)
	if err != nil {
		return nil, nil, err
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, nil, err
	}
	if userID != token.UserID {
		return nil, nil, fmt.Errorf("%w: subject does not match token", ErrTokenInvalid)
	}

	user, err := NewUserRepository(q).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}
	return user, token, nil
}

// CheckToken loads a stored token and reports whether it is still usable.
func (s *TokenService) CheckToken(ctx context.Context, q database.Querier, tokenID string) (*AuthToken, error) {
	token, err := NewTokenRepository(q).GetByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.Revoked {
		return nil, ErrTokenRevoked
	}
	if !token.Valid(s.now()) {
		return nil, ErrTokenExpired
	}
	return token, nil
}

// RevokeToken invalidates a stored token.
func (s *TokenService) RevokeToken(ctx context.Context, q database.Querier, tokenID string) error {
	return NewTokenRepository(q).Revoke(ctx, tokenID)
}
