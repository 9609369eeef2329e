package pg

import (
	"context"
	"database/sql"

	"tallybooks.org/internal/auth"
)

// AuthStore implements auth.Store on PostgreSQL.
type AuthStore struct {
	db *sql.DB
	q  queryer
}

var _ auth.Store = (*AuthStore)(nil)

func (s *AuthStore) Users() auth.UserStore               { return authUsers{s.q} }
func (s *AuthStore) Roles() auth.RoleStore               { return authRoles{s.q} }
func (s *AuthStore) Hierarchy() auth.HierarchyStore      { return authHierarchy{s.q} }
func (s *AuthStore) RoleRequests() auth.RoleRequestStore { return authRequests{s.q} }
func (s *AuthStore) ChangeLog() auth.ChangeLogStore      { return authChangeLog{s.q} }
func (s *AuthStore) Blacklist() auth.BlacklistStore      { return authBlacklist{s.q} }

// WithinTx runs fn against a store view bound to one transaction.
func (s *AuthStore) WithinTx(ctx context.Context, fn func(auth.Store) error) error {
	return runInTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&AuthStore{db: s.db, q: tx})
	})
}
