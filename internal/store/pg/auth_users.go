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

type authUsers struct{ q queryer }

const userColumns = `id, name, email, password_hash, role, permissions, token_version,
	mfa_enabled, mfa_secret, mfa_backup_codes, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var (
		u       auth.User
		perms   []byte
		secret  sql.NullString
		backups []byte
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &perms,
		&u.TokenVersion, &u.MFAEnabled, &secret, &backups, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if secret.Valid {
		u.MFASecret = secret.String
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &u.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	if len(backups) > 0 {
		if err := json.Unmarshal(backups, &u.MFABackupCodes); err != nil {
			return nil, fmt.Errorf("decode backup codes: %w", err)
		}
	}
	return &u, nil
}

func encodePermissions(perms []auth.Permission) ([]byte, error) {
	if perms == nil {
		perms = []auth.Permission{}
	}
	return json.Marshal(perms)
}

func (s authUsers) Create(ctx context.Context, u *auth.User) error {
	perms, err := encodePermissions(u.Permissions)
	if err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into users (id, name, email, password_hash, role, permissions)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, perms)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s authUsers) Find(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (s authUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return scanUser(s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
}

func (s authUsers) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+userColumns+` from users order by email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s authUsers) UpdateProfile(ctx context.Context, id, name, email string) (*auth.User, error) {
	res, err := s.q.ExecContext(ctx, `
		update users set name = $1, email = $2, updated_at = now() where id = $3
	`, name, email, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, auth.ErrConflict
		}
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.Find(ctx, id)
}

func (s authUsers) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.q.ExecContext(ctx, `
		update users set password_hash = $1, updated_at = now() where id = $2
	`, passwordHash, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s authUsers) SetRole(ctx context.Context, id, role string, perms []auth.Permission) error {
	encoded, err := encodePermissions(perms)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
		update users set role = $1, permissions = $2, updated_at = now() where id = $3
	`, role, encoded, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s authUsers) SyncRolePermissions(ctx context.Context, role string, perms []auth.Permission) ([]string, error) {
	encoded, err := encodePermissions(perms)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
		update users set permissions = $1, updated_at = now() where role = $2
		returning id
	`, encoded, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var affected []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		affected = append(affected, id)
	}
	return affected, rows.Err()
}

func (s authUsers) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	var version int64
	err := s.q.QueryRowContext(ctx, `
		update users set token_version = token_version + 1, updated_at = now()
		where id = $1
		returning token_version
	`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, auth.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s authUsers) SetMFA(ctx context.Context, id string, enabled bool, secret string, backupCodes []string) error {
	if backupCodes == nil {
		backupCodes = []string{}
	}
	encoded, err := json.Marshal(backupCodes)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
		update users set mfa_enabled = $1, mfa_secret = $2, mfa_backup_codes = $3, updated_at = now()
		where id = $4
	`, enabled, nullIfEmpty(secret), encoded, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s authUsers) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
