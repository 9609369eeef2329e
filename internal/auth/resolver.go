package auth

import (
	"context"
	"errors"

	"tallybooks.org/internal/obs"
)

// Resolver decides whether an identity holds a named permission. The check
// order is fixed: the role's own permission set first, then the permission
// sets of its immediate parent roles. Inheritance is single-level; the
// traversal does not recurse into grandparents.
type Resolver struct {
	store Store
	cache *DecisionCache
}

// NewResolver constructs a resolver. The cache may be nil, in which case every
// check recomputes from the store.
func NewResolver(store Store, cache *DecisionCache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// HasPermission reports whether the user holds the permission.
func (r *Resolver) HasPermission(ctx context.Context, userID string, perm Permission) (bool, error) {
	if r.cache != nil {
		if allowed, ok := r.cache.Get(userID, perm); ok {
			return allowed, nil
		}
	}
	allowed, err := r.resolve(ctx, userID, []Permission{perm})
	if err != nil {
		obs.AuthzDecision("error")
		return false, err
	}
	if r.cache != nil {
		r.cache.Set(userID, perm, allowed)
	}
	if allowed {
		obs.AuthzDecision("granted")
	} else {
		obs.AuthzDecision("denied")
	}
	return allowed, nil
}

// HasAnyPermission reports whether the user holds at least one of the listed
// permissions, short-circuiting on the first grant.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID string, perms []Permission) (bool, error) {
	if len(perms) == 0 {
		return false, nil
	}
	if r.cache != nil {
		for _, p := range perms {
			if allowed, ok := r.cache.Get(userID, p); ok && allowed {
				return true, nil
			}
		}
	}
	allowed, err := r.resolve(ctx, userID, perms)
	if err != nil {
		obs.AuthzDecision("error")
		return false, err
	}
	if allowed {
		obs.AuthzDecision("granted")
	} else {
		obs.AuthzDecision("denied")
		// A full traversal that granted nothing determined every listed
		// permission; cache the negatives.
		if r.cache != nil {
			for _, p := range perms {
				r.cache.Set(userID, p, false)
			}
		}
	}
	return allowed, nil
}

// InvalidateUser drops every cached decision for the user.
func (r *Resolver) InvalidateUser(userID string) {
	if r.cache != nil {
		r.cache.InvalidateUser(userID)
	}
}

// resolve performs the store traversal: user -> role by name -> own set ->
// immediate parents. Among multiple parents the check order is unspecified.
func (r *Resolver) resolve(ctx context.Context, userID string, perms []Permission) (bool, error) {
	user, err := r.store.Users().Find(ctx, userID)
	if err != nil {
		return false, err
	}
	role, err := r.store.Roles().FindByName(ctx, user.Role)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if role.Has(p) {
			if r.cache != nil {
				r.cache.Set(userID, p, true)
			}
			return true, nil
		}
	}
	edges, err := r.store.Hierarchy().ListByChild(ctx, role.ID)
	if err != nil {
		return false, err
	}
	for _, edge := range edges {
		parent, err := r.store.Roles().Find(ctx, edge.ParentRoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Dangling edge: the parent role was deleted. Skip it.
				continue
			}
			return false, err
		}
		for _, p := range perms {
			if parent.Has(p) {
				if r.cache != nil {
					r.cache.Set(userID, p, true)
				}
				return true, nil
			}
		}
	}
	return false, nil
}
