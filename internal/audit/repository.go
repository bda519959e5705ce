package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists audit entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record appends one entry. An empty ID gets a generated UUID; PerformedAt
// defaults to the database clock.
func (r *Repository) Record(ctx context.Context, entry Entry) error {
	if r == nil || r.pool == nil {
		return errors.New("audit: repository not initialised")
	}
	if entry.UserID == "" || entry.Action == "" || entry.Module == "" {
		return errors.New("audit: entry requires user_id/action/module")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	var performedAt any
	if !entry.PerformedAt.IsZero() {
		performedAt = entry.PerformedAt
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permission_audit_logs (id, user_id, action, module, actions, performed_by, performed_at, reason, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), $8, $9)`,
		entry.ID, entry.UserID, string(entry.Action), entry.Module, entry.Actions,
		entry.PerformedBy, performedAt, nullable(entry.Reason), entry.ExpiresAt)
	return err
}

// Timeline returns entries matching the filters, newest first. The extra row
// fetched beyond the page size drives HasNext without a count query.
func (r *Repository) Timeline(ctx context.Context, filters Filters) ([]Entry, bool, error) {
	pageSize := clampPageSize(filters.PageSize)
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	where, args := buildWhere(filters)
	query := fmt.Sprintf(`
		SELECT id, user_id, action, module, actions, performed_by, performed_at, reason, expires_at
		FROM permission_audit_logs
		%s
		ORDER BY performed_at DESC
		OFFSET $%d LIMIT $%d`, where, len(args)+1, len(args)+2)
	args = append(args, (page-1)*pageSize, pageSize+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var reason *string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Module, &e.Actions, &e.PerformedBy, &e.PerformedAt, &reason, &e.ExpiresAt); err != nil {
			return nil, false, err
		}
		if reason != nil {
			e.Reason = *reason
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	return entries, hasNext, nil
}

func buildWhere(filters Filters) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !filters.From.IsZero() {
		add("performed_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("performed_at <= $%d", filters.To)
	}
	if v := strings.TrimSpace(filters.UserID); v != "" {
		add("user_id = $%d", v)
	}
	if v := strings.TrimSpace(filters.PerformedBy); v != "" {
		add("performed_by = $%d", v)
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		add("action = $%d", v)
	}
	if v := strings.TrimSpace(filters.Module); v != "" {
		add("module = $%d", v)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func clampPageSize(size int) int {
	if size <= 0 {
		return 20
	}
	if size > 50 {
		return 50
	}
	return size
}

func nullable(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

var _ Recorder = (*Repository)(nil)
