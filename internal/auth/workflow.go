package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role-change workflow: a RoleRequest moves pending -> approved | rejected and
// is terminal after that. Approval mutates the subject's role, rewrites the
// permission snapshot, appends the change log and bumps the token version as
// one transaction; the audit record and the role mutation are inseparable.

// SubmitRoleRequest opens a pending request for the subject user.
func (s *RBACService) SubmitRoleRequest(ctx context.Context, userID, requestedBy, requestedRole, reason string) (*RoleRequest, error) {
	requestedRole = strings.TrimSpace(strings.ToLower(requestedRole))
	if requestedRole == "" {
		return nil, fmt.Errorf("%w: requested role is required", ErrInvalidInput)
	}
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Roles().FindByName(ctx, requestedRole); err != nil {
		return nil, err
	}
	if user.Role == requestedRole {
		return nil, fmt.Errorf("%w: user already holds role %s", ErrInvalidInput, requestedRole)
	}
	req := &RoleRequest{
		UserID:        user.ID,
		RequestedBy:   requestedBy,
		CurrentRole:   user.Role,
		RequestedRole: requestedRole,
		Status:        RequestPending,
		Reason:        strings.TrimSpace(reason),
	}
	if err := s.store.RoleRequests().Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// GetRoleRequest returns a request by id.
func (s *RBACService) GetRoleRequest(ctx context.Context, requestID string) (*RoleRequest, error) {
	return s.store.RoleRequests().Find(ctx, requestID)
}

// ListRoleRequests returns requests, optionally filtered by status.
func (s *RBACService) ListRoleRequests(ctx context.Context, status string) ([]*RoleRequest, error) {
	status = strings.TrimSpace(strings.ToLower(status))
	switch status {
	case "", RequestPending, RequestApproved, RequestRejected:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.store.RoleRequests().List(ctx, status)
}

// ApproveRoleRequest applies the requested role change. Re-processing a
// terminal request fails with ErrAlreadyProcessed.
func (s *RBACService) ApproveRoleRequest(ctx context.Context, requestID, resolvedBy, comments string) (*RoleRequest, error) {
	var req *RoleRequest
	err := s.store.WithinTx(ctx, func(tx Store) error {
		var err error
		req, err = tx.RoleRequests().Find(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return ErrAlreadyProcessed
		}
		if err := s.applyRoleChange(ctx, tx, req.UserID, req.RequestedRole, resolvedBy); err != nil {
			return err
		}
		now := s.now().UTC()
		req.Status = RequestApproved
		req.ResolvedBy = resolvedBy
		req.Comments = strings.TrimSpace(comments)
		req.ResolvedAt = &now
		return tx.RoleRequests().Update(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(req.UserID)
	return req, nil
}

// RejectRoleRequest closes the request without touching the subject user.
func (s *RBACService) RejectRoleRequest(ctx context.Context, requestID, resolvedBy, comments string) (*RoleRequest, error) {
	var req *RoleRequest
	err := s.store.WithinTx(ctx, func(tx Store) error {
		var err error
		req, err = tx.RoleRequests().Find(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return ErrAlreadyProcessed
		}
		now := s.now().UTC()
		req.Status = RequestRejected
		req.ResolvedBy = resolvedBy
		req.Comments = strings.TrimSpace(comments)
		req.ResolvedAt = &now
		return tx.RoleRequests().Update(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// UpdateUserRole is the direct admin path around the request workflow. It
// carries the same guarantees: change log appended and token version bumped
// in the same transaction as the role mutation.
func (s *RBACService) UpdateUserRole(ctx context.Context, userID, newRole, changedBy string) (*User, error) {
	newRole = strings.TrimSpace(strings.ToLower(newRole))
	if newRole == "" {
		return nil, fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	var updated *User
	err := s.store.WithinTx(ctx, func(tx Store) error {
		if err := s.applyRoleChange(ctx, tx, userID, newRole, changedBy); err != nil {
			return err
		}
		var err error
		updated, err = tx.Users().Find(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(userID)
	return updated, nil
}

// ForceLogout bumps the user's token version, invalidating every previously
// issued token in O(1). Complements the blacklist, which revokes one token.
func (s *RBACService) ForceLogout(ctx context.Context, userID string) (int64, error) {
	version, err := s.store.Users().BumpTokenVersion(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.invalidate(userID)
	return version, nil
}

// applyRoleChange performs the composite write inside an open transaction:
// role mutation with permission snapshot, change log append, version bump.
func (s *RBACService) applyRoleChange(ctx context.Context, tx Store, userID, newRole, changedBy string) error {
	user, err := tx.Users().Find(ctx, userID)
	if err != nil {
		return err
	}
	role, err := tx.Roles().FindByName(ctx, newRole)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, newRole)
		}
		return err
	}
	if err := tx.Users().SetRole(ctx, userID, role.Name, role.Permissions); err != nil {
		return err
	}
	if _, err := tx.Users().BumpTokenVersion(ctx, userID); err != nil {
		return err
	}
	return tx.ChangeLog().Append(ctx, &RoleChangeLog{
		UserID:    userID,
		ChangedBy: changedBy,
		OldRole:   user.Role,
		NewRole:   role.Name,
	})
}
