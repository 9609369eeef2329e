package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"tallybooks.org/internal/auth"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	IsDefault   bool     `json:"is_default"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type hierarchyEdgeRequest struct {
	ParentRoleID string `json:"parent_role_id"`
	ChildRoleID  string `json:"child_role_id"`
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": auth.Catalog(),
	})
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermRolesManage) {
			return
		}
		roles, err := a.rbac.ListRoles(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": roles})
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermRolesManage) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description, req.Permissions, req.IsDefault)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.role.create", "role", role.ID, map[string]string{
			"name": role.Name,
		})
		w.Header().Set("Location", "/v1/roles/"+role.ID)
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			if !a.requirePermission(w, r, auth.PermRolesManage) {
				return
			}
			role, err := a.rbac.GetRole(r.Context(), roleID)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, role)
		case http.MethodDelete:
			if !a.requirePermission(w, r, auth.PermRolesManage) {
				return
			}
			if err := a.rbac.DeleteRole(r.Context(), roleID); err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "rbac.role.delete", "role", roleID, nil)
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.requirePermission(w, r, auth.PermRolesManage) {
			return
		}
		var req updateRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.UpdateRolePermissions(r.Context(), roleID, req.Permissions)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.role.permissions.update", "role", roleID, map[string]string{
			"count": fmt.Sprintf("%d", len(req.Permissions)),
		})
		writeJSON(w, http.StatusOK, role)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermRolesManage) {
			return
		}
		edges, err := a.rbac.ListHierarchy(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": edges})
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermRolesManage) {
			return
		}
		var req hierarchyEdgeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		edge, err := a.rbac.AddHierarchyEdge(r.Context(), req.ParentRoleID, req.ChildRoleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.hierarchy.add", "hierarchy_edge", edge.ID, map[string]string{
			"parent_role_id": edge.ParentRoleID,
			"child_role_id":  edge.ChildRoleID,
		})
		writeJSON(w, http.StatusCreated, edge)
	case http.MethodDelete:
		if !a.requirePermission(w, r, auth.PermRolesManage) {
			return
		}
		var req hierarchyEdgeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.rbac.RemoveHierarchyEdge(r.Context(), req.ParentRoleID, req.ChildRoleID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.hierarchy.remove", "hierarchy_edge", "", map[string]string{
			"parent_role_id": req.ParentRoleID,
			"child_role_id":  req.ChildRoleID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermUsersManage) {
			return
		}
		users, err := a.rbac.ListUsers(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": users})
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermUsersManage) {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.rbac.CreateUser(r.Context(), req.Name, req.Email, req.Password, req.Role)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.user.create", "user", user.ID, map[string]string{
			"email": user.Email,
			"role":  user.Role,
		})
		w.Header().Set("Location", "/v1/users/"+user.ID)
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			if !a.requirePermission(w, r, auth.PermUsersManage) {
				return
			}
			user, err := a.rbac.GetUser(r.Context(), userID)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, user)
		case http.MethodDelete:
			if !a.requirePermission(w, r, auth.PermUsersManage) {
				return
			}
			if err := a.rbac.DeleteUser(r.Context(), userID); err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "rbac.user.delete", "user", userID, nil)
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "role":
		a.updateUserRole(w, r, userID)
	case len(parts) == 2 && parts[1] == "force-logout":
		a.forceLogout(w, r, userID)
	case len(parts) == 2 && parts[1] == "change-log":
		a.userChangeLog(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) updateUserRole(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.requirePermission(w, r, auth.PermUsersManage) {
		return
	}
	var req updateUserRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ident, _ := auth.IdentityFromContext(r.Context())
	user, err := a.rbac.UpdateUserRole(r.Context(), userID, req.Role, ident.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.user.role.update", "user", userID, map[string]string{
		"role": user.Role,
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) forceLogout(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, auth.PermUsersManage) {
		return
	}
	version, err := a.rbac.ForceLogout(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.user.force_logout", "user", userID, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       userID,
		"token_version": version,
	})
}

func (a *API) userChangeLog(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, auth.PermUsersManage) {
		return
	}
	entries, err := a.rbac.ChangeLog(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}
