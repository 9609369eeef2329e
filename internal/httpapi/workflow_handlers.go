package httpapi

import (
	"net/http"
	"strings"

	"tallybooks.org/internal/auth"
)

type submitRoleRequestRequest struct {
	UserID        string `json:"user_id"`
	RequestedRole string `json:"requested_role"`
	Reason        string `json:"reason"`
}

type resolveRoleRequestRequest struct {
	Comments string `json:"comments"`
}

func (a *API) handleRoleRequestsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermRolesManage) {
			return
		}
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		reqs, err := a.rbac.ListRoleRequests(r.Context(), status)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": reqs})
	case http.MethodPost:
		a.submitRoleRequest(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// submitRoleRequest lets any authenticated user request a role change for
// themselves; requesting on behalf of someone else needs users.manage.
func (a *API) submitRoleRequest(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req submitRoleRequestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	targetID := strings.TrimSpace(req.UserID)
	if targetID == "" {
		targetID = ident.ID
	}
	if targetID != ident.ID && !a.requirePermission(w, r, auth.PermUsersManage) {
		return
	}
	created, err := a.rbac.SubmitRoleRequest(r.Context(), targetID, ident.ID, req.RequestedRole, req.Reason)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role_request.submit", "role_request", created.ID, map[string]string{
		"user_id":        created.UserID,
		"requested_role": created.RequestedRole,
	})
	w.Header().Set("Location", "/v1/role-requests/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleRoleRequestResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/role-requests/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	requestID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !a.requirePermission(w, r, auth.PermRolesManage) {
			return
		}
		req, err := a.rbac.GetRoleRequest(r.Context(), requestID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	case len(parts) == 2 && parts[1] == "approve":
		a.resolveRoleRequest(w, r, requestID, true)
	case len(parts) == 2 && parts[1] == "reject":
		a.resolveRoleRequest(w, r, requestID, false)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) resolveRoleRequest(w http.ResponseWriter, r *http.Request, requestID string, approve bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, auth.PermRolesManage) {
		return
	}
	ident, _ := auth.IdentityFromContext(r.Context())

	var req resolveRoleRequestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		// comments are optional; an empty body is fine
		req.Comments = ""
	}

	var (
		resolved *auth.RoleRequest
		err      error
		event    = "rbac.role_request.reject"
	)
	if approve {
		event = "rbac.role_request.approve"
		resolved, err = a.rbac.ApproveRoleRequest(r.Context(), requestID, ident.ID, req.Comments)
	} else {
		resolved, err = a.rbac.RejectRoleRequest(r.Context(), requestID, ident.ID, req.Comments)
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), event, "role_request", requestID, map[string]string{
		"user_id":        resolved.UserID,
		"requested_role": resolved.RequestedRole,
	})
	writeJSON(w, http.StatusOK, resolved)
}
