package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

const membershipColumns = "id, user_id, group_id, rank, created_at"

// MembershipRepository persists user-group memberships.
type MembershipRepository struct {
	q database.Querier
}

// NewMembershipRepository creates a membership repository bound to q.
func NewMembershipRepository(q database.Querier) *MembershipRepository {
	return &MembershipRepository{q: q}
}

// Create inserts a membership and sets its ID. Unknown users or groups
// yield ErrUserNotFound or ErrGroupNotFound.
func (r *MembershipRepository) Create(ctx context.Context, m *Membership) error {
	if m.Rank == "" {
		m.Rank = RankMember
	}
	m.CreatedAt = time.Now().UTC().Truncate(time.Second)

	result, err := r.q.ExecContext(ctx,
		`INSERT INTO group_memberships (user_id, group_id, rank, created_at) VALUES (?, ?, ?, ?)`,
		m.UserID, m.GroupID, string(m.Rank), m.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return ErrMembershipExists
		case isForeignKeyViolation(err):
			return r.missingParent(ctx, m)
		}
		return fmt.Errorf("creating membership: %w", err)
	}
	if m.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading membership id: %w", err)
	}
	return nil
}

// missingParent works out which side of a failed foreign key is absent.
func (r *MembershipRepository) missingParent(ctx context.Context, m *Membership) error {
	if _, err := NewUserRepository(r.q).GetByID(ctx, m.UserID); err != nil {
		return err
	}
	return ErrGroupNotFound
}

// GetByID retrieves a membership by ID.
func (r *MembershipRepository) GetByID(ctx context.Context, id int64) (*Membership, error) {
	return scanMembership(r.q.QueryRowContext(ctx, "SELECT "+membershipColumns+" FROM group_memberships WHERE id = ?", id))
}

// ListForUser returns the memberships of a user.
func (r *MembershipRepository) ListForUser(ctx context.Context, userID int64) ([]Membership, error) {
	return r.list(ctx, "SELECT "+membershipColumns+" FROM group_memberships WHERE user_id = ? ORDER BY id", userID)
}

// ListForGroup returns the memberships of a group.
func (r *MembershipRepository) ListForGroup(ctx context.Context, groupID int64) ([]Membership, error) {
	return r.list(ctx, "SELECT "+membershipColumns+" FROM group_memberships WHERE group_id = ? ORDER BY id", groupID)
}

func (r *MembershipRepository) list(ctx context.Context, query string, args ...any) ([]Membership, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	defer rows.Close()

	out := []Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memberships: %w", err)
	}
	return out, nil
}

// IsMember reports whether userID belongs to groupID.
func (r *MembershipRepository) IsMember(ctx context.Context, userID, groupID int64) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM group_memberships WHERE user_id = ? AND group_id = ?", userID, groupID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return n > 0, nil
}

// Delete removes a membership.
func (r *MembershipRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, "DELETE FROM group_memberships WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrMembershipNotFound
	}
	return nil
}

func scanMembership(s scanner) (*Membership, error) {
	var m Membership
	var rank, createdAt string
	if err := s.Scan(&m.ID, &m.UserID, &m.GroupID, &rank, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("scanning membership: %w", err)
	}
	m.Rank = MembershipRank(rank)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}
