package accesspoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

const columns = "id, alias, description, controller_module, version, created_at, updated_at"

// Repository persists access points on a database.Querier.
type Repository struct {
	q database.Querier
}

// NewRepository creates a repository bound to q.
func NewRepository(q database.Querier) *Repository {
	return &Repository{q: q}
}

// Create validates and inserts ap, setting its ID.
func (r *Repository) Create(ctx context.Context, ap *AccessPoint) error {
	if err := Validate(ap); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	ap.CreatedAt, ap.UpdatedAt, ap.Version = now, now, 0

	result, err := r.q.ExecContext(ctx,
		`INSERT INTO access_points (alias, description, controller_module, version, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?)`,
		ap.Alias, ap.Description, ap.ControllerModule,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAliasExists
		}
		return fmt.Errorf("inserting access point: %w", err)
	}
	if ap.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading access point id: %w", err)
	}
	return nil
}

// GetByID retrieves an access point.
func (r *Repository) GetByID(ctx context.Context, id int64) (*AccessPoint, error) {
	return scan(r.q.QueryRowContext(ctx, "SELECT "+columns+" FROM access_points WHERE id = ?", id))
}

// List returns every access point ordered by alias.
func (r *Repository) List(ctx context.Context) ([]AccessPoint, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+columns+" FROM access_points ORDER BY alias")
	if err != nil {
		return nil, fmt.Errorf("listing access points: %w", err)
	}
	defer rows.Close()

	out := []AccessPoint{}
	for rows.Next() {
		ap, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access points: %w", err)
	}
	return out, nil
}

// Update validates and writes ap, bumping its version.
func (r *Repository) Update(ctx context.Context, ap *AccessPoint) error {
	if err := Validate(ap); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	result, err := r.q.ExecContext(ctx,
		`UPDATE access_points SET alias = ?, description = ?, controller_module = ?,
		        version = version + 1, updated_at = ?
		 WHERE id = ?`,
		ap.Alias, ap.Description, ap.ControllerModule, now.Format(time.RFC3339), ap.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAliasExists
		}
		return fmt.Errorf("updating access point: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrNotFound
	}
	ap.UpdatedAt = now
	ap.Version++
	return nil
}

// Delete removes an access point.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, "DELETE FROM access_points WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting access point: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(s rowScanner) (*AccessPoint, error) {
	var ap AccessPoint
	var createdAt, updatedAt string
	err := s.Scan(&ap.ID, &ap.Alias, &ap.Description, &ap.ControllerModule, &ap.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning access point: %w", err)
	}
	ap.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	ap.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &ap, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
