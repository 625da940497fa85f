package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Repository reads and writes ws_api_calls on a database.Querier.
type Repository struct {
	q database.Querier
}

// NewRepository creates an audit repository bound to q.
func NewRepository(q database.Querier) *Repository {
	return &Repository{q: q}
}

// Create inserts call and sets its ID. CreatedAt is filled in when zero.
func (r *Repository) Create(ctx context.Context, call *WSAPICall) error {
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}

	var author sql.NullInt64
	if call.AuthorID != nil {
		author = sql.NullInt64{Int64: *call.AuthorID, Valid: true}
	}

	result, err := r.q.ExecContext(ctx,
		`INSERT INTO ws_api_calls (author_id, correlation_id, method, status_code, status_string,
		                           response_content, source_endpoint, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		author, call.CorrelationID, call.Method, call.StatusCode, call.StatusString,
		call.ResponseContent, call.SourceEndpoint, call.DurationMS,
		call.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	if call.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading audit entry id: %w", err)
	}
	return nil
}

// List returns calls matching filter, most recent first.
func (r *Repository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.AuthorID != 0 {
		conditions = append(conditions, "author_id = ?")
		args = append(args, filter.AuthorID)
	}
	if filter.Method != "" {
		conditions = append(conditions, "method = ?")
		args = append(args, filter.Method)
	}
	if filter.StatusCode != nil {
		conditions = append(conditions, "status_code = ?")
		args = append(args, *filter.StatusCode)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM ws_api_calls " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := `SELECT id, author_id, correlation_id, method, status_code, status_string,
	                 response_content, source_endpoint, duration_ms, created_at
	          FROM ws_api_calls ` + where + ` ORDER BY id DESC LIMIT ? OFFSET ?` //nolint:gosec // as above
	rows, err := r.q.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	calls := []WSAPICall{}
	for rows.Next() {
		var c WSAPICall
		var author sql.NullInt64
		var createdAt string
		if err := rows.Scan(&c.ID, &author, &c.CorrelationID, &c.Method, &c.StatusCode, &c.StatusString,
			&c.ResponseContent, &c.SourceEndpoint, &c.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if author.Valid {
			id := author.Int64
			c.AuthorID = &id
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // format is controlled
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{Calls: calls, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
