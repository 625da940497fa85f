package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

const groupColumns = "id, name, description, version, created_at, updated_at"

// GroupRepository persists user groups.
type GroupRepository struct {
	q database.Querier
}

// NewGroupRepository creates a group repository bound to q.
func NewGroupRepository(q database.Querier) *GroupRepository {
	return &GroupRepository{q: q}
}

// Create inserts a group and sets its ID.
func (r *GroupRepository) Create(ctx context.Context, g *Group) error {
	now := time.Now().UTC().Truncate(time.Second)
	g.CreatedAt, g.UpdatedAt, g.Version = now, now, 0

	result, err := r.q.ExecContext(ctx,
		`INSERT INTO user_groups (name, description, version, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		g.Name, g.Description, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrGroupExists
		}
		return fmt.Errorf("creating group: %w", err)
	}
	if g.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading group id: %w", err)
	}
	return nil
}

// GetByID retrieves a group by ID.
func (r *GroupRepository) GetByID(ctx context.Context, id int64) (*Group, error) {
	return scanGroup(r.q.QueryRowContext(ctx, "SELECT "+groupColumns+" FROM user_groups WHERE id = ?", id))
}

// List returns all groups ordered by ID.
func (r *GroupRepository) List(ctx context.Context) ([]Group, error) {
	return r.list(ctx, "SELECT "+groupColumns+" FROM user_groups ORDER BY id ASC")
}

// ListForUser returns the groups a user belongs to.
func (r *GroupRepository) ListForUser(ctx context.Context, userID int64) ([]Group, error) {
	return r.list(ctx,
		`SELECT g.id, g.name, g.description, g.version, g.created_at, g.updated_at
		 FROM user_groups g JOIN group_memberships m ON m.group_id = g.id
		 WHERE m.user_id = ? ORDER BY g.id ASC`, userID)
}

func (r *GroupRepository) list(ctx context.Context, query string, args ...any) ([]Group, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer rows.Close()

	groups := []Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating groups: %w", err)
	}
	return groups, nil
}

// Update writes the name and description of g and bumps its version.
func (r *GroupRepository) Update(ctx context.Context, g *Group) error {
	now := time.Now().UTC().Truncate(time.Second)
	result, err := r.q.ExecContext(ctx,
		`UPDATE user_groups SET name = ?, description = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		g.Name, g.Description, now.Format(time.RFC3339), g.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrGroupExists
		}
		return fmt.Errorf("updating group: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrGroupNotFound
	}
	g.UpdatedAt = now
	g.Version++
	return nil
}

// Delete removes a group. Memberships cascade.
func (r *GroupRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, "DELETE FROM user_groups WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrGroupNotFound
	}
	return nil
}

// Count returns the number of groups.
func (r *GroupRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_groups").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting groups: %w", err)
	}
	return n, nil
}

func scanGroup(s scanner) (*Group, error) {
	var g Group
	var createdAt, updatedAt string
	if err := s.Scan(&g.ID, &g.Name, &g.Description, &g.Version, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("scanning group: %w", err)
	}
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return &g, nil
}
