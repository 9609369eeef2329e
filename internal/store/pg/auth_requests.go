package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tallybooks.org/internal/auth"
	"tallybooks.org/internal/ids"
)

type authRequests struct{ q queryer }

const requestColumns = `id, user_id, requested_by, current_role_name, requested_role, status, reason, resolved_by, comments, created_at, resolved_at`

func scanRequest(row interface{ Scan(...any) error }) (*auth.RoleRequest, error) {
	var (
		req        auth.RoleRequest
		reason     sql.NullString
		resolvedBy sql.NullString
		comments   sql.NullString
		resolvedAt sql.NullTime
	)
	err := row.Scan(&req.ID, &req.UserID, &req.RequestedBy, &req.CurrentRole,
		&req.RequestedRole, &req.Status, &reason, &resolvedBy, &comments,
		&req.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	req.Reason = reason.String
	req.ResolvedBy = resolvedBy.String
	req.Comments = comments.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		req.ResolvedAt = &t
	}
	return &req, nil
}

func (s authRequests) Create(ctx context.Context, req *auth.RoleRequest) error {
	if req.ID == "" {
		req.ID = ids.New()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into role_requests (id, user_id, requested_by, current_role_name, requested_role, status, reason)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at
	`, req.ID, req.UserID, req.RequestedBy, req.CurrentRole, req.RequestedRole, req.Status, nullIfEmpty(req.Reason))
	if err := row.Scan(&req.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s authRequests) Find(ctx context.Context, id string) (*auth.RoleRequest, error) {
	return scanRequest(s.q.QueryRowContext(ctx,
		`select `+requestColumns+` from role_requests where id = $1`, id))
}

func (s authRequests) List(ctx context.Context, status string) ([]*auth.RoleRequest, error) {
	query := `select ` + requestColumns + ` from role_requests`
	var args []any
	if status != "" {
		query += ` where status = $1`
		args = append(args, status)
	}
	query += ` order by created_at desc`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*auth.RoleRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (s authRequests) Update(ctx context.Context, req *auth.RoleRequest) error {
	res, err := s.q.ExecContext(ctx, `
		update role_requests
		set status = $1, resolved_by = $2, comments = $3, resolved_at = $4
		where id = $5
	`, req.Status, nullIfEmpty(req.ResolvedBy), nullIfEmpty(req.Comments), req.ResolvedAt, req.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type authChangeLog struct{ q queryer }

func (s authChangeLog) Append(ctx context.Context, entry *auth.RoleChangeLog) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into role_change_logs (id, user_id, changed_by, old_role, new_role)
		values ($1, $2, $3, $4, $5)
		returning created_at
	`, entry.ID, entry.UserID, entry.ChangedBy, entry.OldRole, entry.NewRole)
	return row.Scan(&entry.CreatedAt)
}

func (s authChangeLog) ListByUser(ctx context.Context, userID string) ([]*auth.RoleChangeLog, error) {
	rows, err := s.q.QueryContext(ctx, `
		select id, user_id, changed_by, old_role, new_role, created_at
		from role_change_logs
		where user_id = $1
		order by created_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*auth.RoleChangeLog
	for rows.Next() {
		var e auth.RoleChangeLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.ChangedBy, &e.OldRole, &e.NewRole, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

type authBlacklist struct{ q queryer }

// Revoke purges expired rows opportunistically before inserting, so the set
// never grows beyond the live token window.
func (s authBlacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if _, err := s.q.ExecContext(ctx,
		`delete from token_blacklists where expires_at < now()`); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
		insert into token_blacklists (jti, expires_at) values ($1, $2)
	`, jti, expiresAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s authBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx, `
		select 1 from token_blacklists where jti = $1 and expires_at > now()
	`, jti).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
