package auth

import "time"

// Built-in role names. Roles themselves live in the store; these are the two
// names the system relies on existing.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Role request lifecycle. Approved and rejected are terminal.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// User is an identity record. Permissions is a denormalized snapshot of the
// assigned role's permission set, recomputed on every role change.
// TokenVersion is monotonic; bumping it invalidates all outstanding tokens.
type User struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	PasswordHash   string       `json:"-"`
	Role           string       `json:"role"`
	Permissions    []Permission `json:"permissions"`
	TokenVersion   int64        `json:"-"`
	MFAEnabled     bool         `json:"mfa_enabled"`
	MFASecret      string       `json:"-"`
	MFABackupCodes []string     `json:"-"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// HasPermission checks the denormalized snapshot only. Authorization decisions
// go through the Resolver, which also walks the role hierarchy.
func (u *User) HasPermission(p Permission) bool {
	return containsPermission(u.Permissions, p)
}

// Role is a named policy object with an explicit permission set.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
	IsDefault   bool         `json:"is_default"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Has reports whether the role itself grants the permission.
func (r *Role) Has(p Permission) bool {
	return containsPermission(r.Permissions, p)
}

// HierarchyEdge records that ChildRole inherits ParentRole's permissions.
// Unique per (parent, child) pair.
type HierarchyEdge struct {
	ID           string    `json:"id"`
	ParentRoleID string    `json:"parent_role_id"`
	ChildRoleID  string    `json:"child_role_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// RoleRequest captures a proposed role change pending administrator review.
type RoleRequest struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	RequestedBy   string     `json:"requested_by"`
	CurrentRole   string     `json:"current_role"`
	RequestedRole string     `json:"requested_role"`
	Status        string     `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	ResolvedBy    string     `json:"resolved_by,omitempty"`
	Comments      string     `json:"comments,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// RoleChangeLog is an immutable audit record of a completed role mutation.
type RoleChangeLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ChangedBy string    `json:"changed_by"`
	OldRole   string    `json:"old_role"`
	NewRole   string    `json:"new_role"`
	CreatedAt time.Time `json:"created_at"`
}

// BlacklistEntry revokes a single token by jti. ExpiresAt equals the token's
// own expiry, so an entry never outlives the token it revokes.
type BlacklistEntry struct {
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the resolved result of a successful authentication, attached to
// the request context for downstream handlers.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	TokenVersion int64     `json:"-"`
	JTI          string    `json:"-"`
	ExpiresAt    time.Time `json:"-"`
}
