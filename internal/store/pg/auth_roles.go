package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tallybooks.org/internal/auth"
	"tallybooks.org/internal/ids"
)

type authRoles struct{ q queryer }

const roleColumns = `id, name, description, permissions, is_default, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (*auth.Role, error) {
	var (
		r     auth.Role
		desc  sql.NullString
		perms []byte
	)
	err := row.Scan(&r.ID, &r.Name, &desc, &perms, &r.IsDefault, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		r.Description = desc.String
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &r.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &r, nil
}

func (s authRoles) Create(ctx context.Context, r *auth.Role) error {
	perms, err := encodePermissions(r.Permissions)
	if err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into roles (id, name, description, permissions, is_default)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, r.ID, r.Name, nullIfEmpty(r.Description), perms, r.IsDefault)
	if err := row.Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s authRoles) Find(ctx context.Context, id string) (*auth.Role, error) {
	return scanRole(s.q.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id = $1`, id))
}

func (s authRoles) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return scanRole(s.q.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where name = $1`, name))
}

func (s authRoles) FindDefault(ctx context.Context) (*auth.Role, error) {
	return scanRole(s.q.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where is_default order by name limit 1`))
}

func (s authRoles) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+roleColumns+` from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s authRoles) Update(ctx context.Context, r *auth.Role) error {
	perms, err := encodePermissions(r.Permissions)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
		update roles set name = $1, description = $2, permissions = $3, is_default = $4, updated_at = now()
		where id = $5
	`, r.Name, nullIfEmpty(r.Description), perms, r.IsDefault, r.ID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return requireAffected(res)
}

func (s authRoles) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type authHierarchy struct{ q queryer }

const edgeColumns = `id, parent_role_id, child_role_id, created_at`

func scanEdge(row interface{ Scan(...any) error }) (*auth.HierarchyEdge, error) {
	var e auth.HierarchyEdge
	err := row.Scan(&e.ID, &e.ParentRoleID, &e.ChildRoleID, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s authHierarchy) AddEdge(ctx context.Context, parentRoleID, childRoleID string) (*auth.HierarchyEdge, error) {
	row := s.q.QueryRowContext(ctx, `
		insert into role_hierarchies (id, parent_role_id, child_role_id)
		values ($1, $2, $3)
		returning `+edgeColumns+`
	`, ids.New(), parentRoleID, childRoleID)
	edge, err := scanEdge(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return nil, auth.ErrConflict
			case pgErrForeignKeyViolation:
				return nil, auth.ErrNotFound
			}
		}
		return nil, err
	}
	return edge, nil
}

func (s authHierarchy) RemoveEdge(ctx context.Context, parentRoleID, childRoleID string) error {
	res, err := s.q.ExecContext(ctx, `
		delete from role_hierarchies where parent_role_id = $1 and child_role_id = $2
	`, parentRoleID, childRoleID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s authHierarchy) ListByChild(ctx context.Context, childRoleID string) ([]*auth.HierarchyEdge, error) {
	return s.listEdges(ctx,
		`select `+edgeColumns+` from role_hierarchies where child_role_id = $1`, childRoleID)
}

func (s authHierarchy) List(ctx context.Context) ([]*auth.HierarchyEdge, error) {
	return s.listEdges(ctx,
		`select `+edgeColumns+` from role_hierarchies order by created_at`)
}

func (s authHierarchy) listEdges(ctx context.Context, query string, args ...any) ([]*auth.HierarchyEdge, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*auth.HierarchyEdge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return edges, nil
}
