package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// WithinTx runs fn against a store view bound to a single transaction; the
// role-change-plus-log composite write depends on it.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Hierarchy() HierarchyStore
	RoleRequests() RoleRequestStore
	ChangeLog() ChangeLogStore
	Blacklist() BlacklistStore
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// UserStore manages identity records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdateProfile(ctx context.Context, id, name, email string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	// SetRole updates the role and rewrites the permission snapshot in the
	// same statement, keeping the snapshot a pure function of the role.
	SetRole(ctx context.Context, id, role string, perms []Permission) error
	// SyncRolePermissions rewrites the snapshot for every user holding the
	// role and returns the affected user ids for cache invalidation.
	SyncRolePermissions(ctx context.Context, role string, perms []Permission) ([]string, error)
	// BumpTokenVersion increments the monotonic counter and returns the new
	// value, invalidating every previously issued token.
	BumpTokenVersion(ctx context.Context, id string) (int64, error)
	SetMFA(ctx context.Context, id string, enabled bool, secret string, backupCodes []string) error
	Delete(ctx context.Context, id string) error
}

// RoleStore manages named policy objects.
type RoleStore interface {
	Create(ctx context.Context, r *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	FindDefault(ctx context.Context) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, r *Role) error
	Delete(ctx context.Context, id string) error
}

// HierarchyStore manages directed parent->child inheritance edges.
type HierarchyStore interface {
	AddEdge(ctx context.Context, parentRoleID, childRoleID string) (*HierarchyEdge, error)
	RemoveEdge(ctx context.Context, parentRoleID, childRoleID string) error
	ListByChild(ctx context.Context, childRoleID string) ([]*HierarchyEdge, error)
	List(ctx context.Context) ([]*HierarchyEdge, error)
}

// RoleRequestStore manages the role-change workflow records.
type RoleRequestStore interface {
	Create(ctx context.Context, req *RoleRequest) error
	Find(ctx context.Context, id string) (*RoleRequest, error)
	List(ctx context.Context, status string) ([]*RoleRequest, error)
	Update(ctx context.Context, req *RoleRequest) error
}

// ChangeLogStore appends immutable role-change audit records.
type ChangeLogStore interface {
	Append(ctx context.Context, entry *RoleChangeLog) error
	ListByUser(ctx context.Context, userID string) ([]*RoleChangeLog, error)
}

// BlacklistStore is the single-token revocation set. Entries self-prune once
// past their expiry.
type BlacklistStore interface {
	// Revoke inserts the jti; a duplicate is rejected with ErrConflict.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
