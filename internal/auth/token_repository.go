package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

// TokenRepository persists remote API auth tokens.
type TokenRepository interface {
	Create(ctx context.Context, token *AuthToken) error
	GetByID(ctx context.Context, id string) (*AuthToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository on a database.Querier.
type SQLiteTokenRepository struct {
	q database.Querier
}

// NewTokenRepository creates a token repository bound to q.
func NewTokenRepository(q database.Querier) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{q: q}
}

// Create inserts a new token. The ID is generated if empty.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *AuthToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO auth_tokens (id, user_id, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		token.ID, token.UserID,
		token.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(token.Revoked),
		token.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("creating auth token: %w", err)
	}
	return nil
}

// GetByID retrieves a token by ID. Unknown IDs yield ErrTokenInvalid.
func (r *SQLiteTokenRepository) GetByID(ctx context.Context, id string) (*AuthToken, error) {
	var t AuthToken
	var revoked int
	var expiresAt, createdAt string

	err := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, revoked, created_at FROM auth_tokens WHERE id = ?`, id,
	).Scan(&t.ID, &t.UserID, &expiresAt, &revoked, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("getting auth token: %w", err)
	}

	t.Revoked = revoked != 0
	t.ExpiresAt = parseTime(expiresAt)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

// Revoke marks a single token as revoked.
func (r *SQLiteTokenRepository) Revoke(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, "UPDATE auth_tokens SET revoked = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every token of a user, e.g. after a password change.
func (r *SQLiteTokenRepository) RevokeAllForUser(ctx context.Context, userID int64) error {
	if _, err := r.q.ExecContext(ctx, "UPDATE auth_tokens SET revoked = 1 WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("revoking all tokens for user: %w", err)
	}
	return nil
}

// DeleteExpired removes expired tokens and returns how many were deleted.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.q.ExecContext(ctx,
		"DELETE FROM auth_tokens WHERE expires_at < ?", time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
