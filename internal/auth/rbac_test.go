package auth

import (
	"context"
	"errors"
	"testing"
)

func newRBAC(t *testing.T) (*MemStore, *RBACService, *DecisionCache) {
	t.Helper()
	store := NewMemStore()
	cache := NewDecisionCache()
	svc, err := NewRBACService(store, cache)
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	return store, svc, cache
}

func TestCreateRoleValidatesCatalog(t *testing.T) {
	_, svc, _ := newRBAC(t)
	ctx := context.Background()

	if _, err := svc.CreateRole(ctx, "", "", nil, false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
	if _, err := svc.CreateRole(ctx, "ops", "", []string{"launch.rockets"}, false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown tag, got %v", err)
	}

	role, err := svc.CreateRole(ctx, "  Ops  ", "operations", []string{"invoices.read", "invoices.read", " reports.read "}, false)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if role.Name != "ops" {
		t.Fatalf("name not normalized: %s", role.Name)
	}
	if len(role.Permissions) != 2 {
		t.Fatalf("tags not deduplicated: %v", role.Permissions)
	}

	if _, err := svc.CreateRole(ctx, "ops", "", nil, false); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}
}

func TestUpdateRolePermissionsSyncsSnapshots(t *testing.T) {
	store, svc, cache := newRBAC(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "ops", "", []string{"invoices.read"}, false)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	user, err := svc.CreateUser(ctx, "Ada", "ada@example.com", "secret-pass", "ops")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	cache.Set(user.ID, PermInvoicesRead, true)

	updated, err := svc.UpdateRolePermissions(ctx, role.ID, []string{"reports.read"})
	if err != nil {
		t.Fatalf("UpdateRolePermissions: %v", err)
	}
	if len(updated.Permissions) != 1 || updated.Permissions[0] != PermReportsRead {
		t.Fatalf("unexpected permissions: %v", updated.Permissions)
	}

	fresh, err := store.Users().Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if fresh.HasPermission(PermInvoicesRead) || !fresh.HasPermission(PermReportsRead) {
		t.Fatalf("snapshot not rewritten: %v", fresh.Permissions)
	}
	if _, ok := cache.Get(user.ID, PermInvoicesRead); ok {
		t.Fatal("cached decision survived permission update")
	}
}

// seedInheritance builds parent "admin" granting users.manage, child
// "support", an edge between them and one support user.
func seedInheritance(t *testing.T, svc *RBACService) (parent, child *Role, user *User) {
	t.Helper()
	ctx := context.Background()
	parent, err := svc.CreateRole(ctx, "admin", "", []string{"users.manage"}, false)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	child, err = svc.CreateRole(ctx, "support", "", []string{"invoices.read"}, false)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := svc.AddHierarchyEdge(ctx, parent.ID, child.ID); err != nil {
		t.Fatalf("AddHierarchyEdge: %v", err)
	}
	user, err = svc.CreateUser(ctx, "Sam", "sam@example.com", "secret-pass", "support")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return parent, child, user
}

func TestUpdateRolePermissionsInvalidatesInheritors(t *testing.T) {
	store, svc, cache := newRBAC(t)
	ctx := context.Background()
	parent, _, user := seedInheritance(t, svc)
	r := NewResolver(store, cache)

	allowed, err := r.HasPermission(ctx, user.ID, PermUsersManage)
	if err != nil || !allowed {
		t.Fatalf("expected inherited grant, got allowed=%v err=%v", allowed, err)
	}

	// Demote the parent; the support user's cached allow must not outlive it.
	if _, err := svc.UpdateRolePermissions(ctx, parent.ID, []string{"reports.read"}); err != nil {
		t.Fatalf("UpdateRolePermissions: %v", err)
	}
	allowed, err = r.HasPermission(ctx, user.ID, PermUsersManage)
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if allowed {
		t.Fatal("stale cached allow survived parent-role demotion")
	}
}

func TestDeleteRoleInvalidatesInheritors(t *testing.T) {
	store, svc, cache := newRBAC(t)
	ctx := context.Background()
	parent, _, user := seedInheritance(t, svc)
	r := NewResolver(store, cache)

	allowed, err := r.HasPermission(ctx, user.ID, PermUsersManage)
	if err != nil || !allowed {
		t.Fatalf("expected inherited grant, got allowed=%v err=%v", allowed, err)
	}

	if err := svc.DeleteRole(ctx, parent.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	allowed, err = r.HasPermission(ctx, user.ID, PermUsersManage)
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if allowed {
		t.Fatal("stale cached allow survived parent-role deletion")
	}
}

func TestAddHierarchyEdgeRules(t *testing.T) {
	_, svc, _ := newRBAC(t)
	ctx := context.Background()

	parent, err := svc.CreateRole(ctx, "manager", "", []string{"invoices.write"}, false)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	child, err := svc.CreateRole(ctx, "support", "", []string{"invoices.read"}, false)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	if _, err := svc.AddHierarchyEdge(ctx, parent.ID, parent.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for self edge, got %v", err)
	}
	if _, err := svc.AddHierarchyEdge(ctx, "ghost", child.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown parent, got %v", err)
	}

	edge, err := svc.AddHierarchyEdge(ctx, parent.ID, child.ID)
	if err != nil {
		t.Fatalf("AddHierarchyEdge: %v", err)
	}
	if edge.ParentRoleID != parent.ID || edge.ChildRoleID != child.ID {
		t.Fatalf("unexpected edge: %+v", edge)
	}

	if _, err := svc.AddHierarchyEdge(ctx, parent.ID, child.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate edge, got %v", err)
	}

	edges, err := svc.ListHierarchy(ctx)
	if err != nil {
		t.Fatalf("ListHierarchy: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected one edge, got %d", len(edges))
	}

	if err := svc.RemoveHierarchyEdge(ctx, parent.ID, child.ID); err != nil {
		t.Fatalf("RemoveHierarchyEdge: %v", err)
	}
	if err := svc.RemoveHierarchyEdge(ctx, parent.ID, child.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing edge, got %v", err)
	}
}

func TestCreateUserRequiresKnownRole(t *testing.T) {
	_, svc, _ := newRBAC(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "Ada", "ada@example.com", "secret-pass", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown role, got %v", err)
	}
	if _, err := svc.CreateRole(ctx, "ops", "", []string{"invoices.read"}, false); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := svc.CreateUser(ctx, "Ada", "ada@example.com", "short", "ops"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}

	user, err := svc.CreateUser(ctx, "Ada", "ADA@Example.com", "secret-pass", "ops")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}
	if user.Role != "ops" || !user.HasPermission(PermInvoicesRead) {
		t.Fatalf("role snapshot not populated: %+v", user)
	}

	if _, err := svc.CreateUser(ctx, "Ada2", "ada@example.com", "secret-pass", "ops"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}
