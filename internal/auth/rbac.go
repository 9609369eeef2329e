package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RBACService is the administrator surface: role and hierarchy management,
// user administration and the role-change workflow (workflow.go). Every role
// or permission mutation synchronously invalidates the affected users'
// cached decisions.
type RBACService struct {
	store Store
	cache *DecisionCache
	now   func() time.Time
}

// NewRBACService constructs the admin service. The cache may be nil.
func NewRBACService(store Store, cache *DecisionCache) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &RBACService{store: store, cache: cache, now: time.Now}, nil
}

func (s *RBACService) invalidate(userIDs ...string) {
	if s.cache == nil {
		return
	}
	for _, id := range userIDs {
		s.cache.InvalidateUser(id)
	}
}

// CreateRole validates the permission tags and persists the role.
func (s *RBACService) CreateRole(ctx context.Context, name, description string, permissions []string, isDefault bool) (*Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	perms, err := ParsePermissions(permissions)
	if err != nil {
		return nil, err
	}
	role := &Role{
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: perms,
		IsDefault:   isDefault,
	}
	if err := s.store.Roles().Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRolePermissions replaces the role's permission set, rewrites the
// denormalized snapshot of every user holding the role, and drops their
// cached decisions, all before returning. Users of roles that inherit from
// this one are invalidated too; their cached allows may rest on the edited
// set.
func (s *RBACService) UpdateRolePermissions(ctx context.Context, roleID string, permissions []string) (*Role, error) {
	perms, err := ParsePermissions(permissions)
	if err != nil {
		return nil, err
	}
	var (
		role     *Role
		affected []string
	)
	err = s.store.WithinTx(ctx, func(tx Store) error {
		role, err = tx.Roles().Find(ctx, roleID)
		if err != nil {
			return err
		}
		role.Permissions = perms
		if err := tx.Roles().Update(ctx, role); err != nil {
			return err
		}
		affected, err = tx.Users().SyncRolePermissions(ctx, role.Name, perms)
		if err != nil {
			return err
		}
		inheritors, err := s.syncInheritors(ctx, tx, roleID)
		if err != nil {
			return err
		}
		affected = append(affected, inheritors...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(affected...)
	return role, nil
}

// GetRole returns a role by id.
func (s *RBACService) GetRole(ctx context.Context, roleID string) (*Role, error) {
	return s.store.Roles().Find(ctx, roleID)
}

// ListRoles returns all roles.
func (s *RBACService) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles().List(ctx)
}

// DeleteRole removes a role and drops cached decisions for every user who
// could resolve a permission through it, whether they hold it directly or
// inherit from it. Holders keep their snapshot until the next role change;
// resolution for them fails with role-not-found.
func (s *RBACService) DeleteRole(ctx context.Context, roleID string) error {
	var affected []string
	err := s.store.WithinTx(ctx, func(tx Store) error {
		role, err := tx.Roles().Find(ctx, roleID)
		if err != nil {
			return err
		}
		// Collect inheritors before the delete cascades the edges away.
		inheritors, err := s.syncInheritors(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if err := tx.Roles().Delete(ctx, roleID); err != nil {
			return err
		}
		ids, err := tx.Users().SyncRolePermissions(ctx, role.Name, role.Permissions)
		if err != nil {
			return err
		}
		affected = append(ids, inheritors...)
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(affected...)
	return nil
}

// syncInheritors resyncs the users of every role that inherits from roleID
// and returns their ids for cache invalidation. The snapshot rewrite is a
// no-op value-wise; the point is the affected-user list.
func (s *RBACService) syncInheritors(ctx context.Context, store Store, roleID string) ([]string, error) {
	edges, err := store.Hierarchy().List(ctx)
	if err != nil {
		return nil, err
	}
	var affected []string
	for _, edge := range edges {
		if edge.ParentRoleID != roleID {
			continue
		}
		child, err := store.Roles().Find(ctx, edge.ChildRoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		ids, err := store.Users().SyncRolePermissions(ctx, child.Name, child.Permissions)
		if err != nil {
			return nil, err
		}
		affected = append(affected, ids...)
	}
	return affected, nil
}

// AddHierarchyEdge records that childRole inherits parentRole's permissions.
// Self-edges are rejected; duplicates surface as ErrConflict.
func (s *RBACService) AddHierarchyEdge(ctx context.Context, parentRoleID, childRoleID string) (*HierarchyEdge, error) {
	parentRoleID = strings.TrimSpace(parentRoleID)
	childRoleID = strings.TrimSpace(childRoleID)
	if parentRoleID == "" || childRoleID == "" {
		return nil, fmt.Errorf("%w: parent and child role ids are required", ErrInvalidInput)
	}
	if parentRoleID == childRoleID {
		return nil, fmt.Errorf("%w: a role cannot inherit from itself", ErrInvalidInput)
	}
	if _, err := s.store.Roles().Find(ctx, parentRoleID); err != nil {
		return nil, err
	}
	child, err := s.store.Roles().Find(ctx, childRoleID)
	if err != nil {
		return nil, err
	}
	edge, err := s.store.Hierarchy().AddEdge(ctx, parentRoleID, childRoleID)
	if err != nil {
		return nil, err
	}
	// The child role's users may now hold inherited grants; their cached
	// denials are stale.
	affected, err := s.store.Users().SyncRolePermissions(ctx, child.Name, child.Permissions)
	if err != nil {
		return nil, err
	}
	s.invalidate(affected...)
	return edge, nil
}

// RemoveHierarchyEdge deletes an inheritance edge.
func (s *RBACService) RemoveHierarchyEdge(ctx context.Context, parentRoleID, childRoleID string) error {
	child, err := s.store.Roles().Find(ctx, childRoleID)
	if err != nil {
		return err
	}
	if err := s.store.Hierarchy().RemoveEdge(ctx, parentRoleID, childRoleID); err != nil {
		return err
	}
	affected, err := s.store.Users().SyncRolePermissions(ctx, child.Name, child.Permissions)
	if err != nil {
		return err
	}
	s.invalidate(affected...)
	return nil
}

// ListHierarchy returns every inheritance edge.
func (s *RBACService) ListHierarchy(ctx context.Context) ([]*HierarchyEdge, error) {
	return s.store.Hierarchy().List(ctx)
}

// CreateUser provisions an account with an explicit role (admin path).
func (s *RBACService) CreateUser(ctx context.Context, name, email, password, roleName string) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: name and valid email are required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	role, err := s.store.Roles().FindByName(ctx, strings.TrimSpace(strings.ToLower(roleName)))
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role.Name,
		Permissions:  role.Permissions,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns a user by id.
func (s *RBACService) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.store.Users().Find(ctx, userID)
}

// ListUsers returns all users.
func (s *RBACService) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.Users().List(ctx)
}

// DeleteUser removes an account. Tokens it issued die at the gate's user
// lookup from then on.
func (s *RBACService) DeleteUser(ctx context.Context, userID string) error {
	if err := s.store.Users().Delete(ctx, userID); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// ChangeLog returns the immutable role-change history for a user.
func (s *RBACService) ChangeLog(ctx context.Context, userID string) ([]*RoleChangeLog, error) {
	return s.store.ChangeLog().ListByUser(ctx, userID)
}
