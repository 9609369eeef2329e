package auth

import (
	"fmt"
	"strings"
)

// Permission is a closed, validated action tag. Role mutations reject any tag
// outside the catalog below.
type Permission string

const (
	PermCustomersRead  Permission = "customers.read"
	PermCustomersWrite Permission = "customers.write"
	PermInvoicesRead   Permission = "invoices.read"
	PermInvoicesWrite  Permission = "invoices.write"
	PermPaymentsRead   Permission = "payments.read"
	PermPaymentsWrite  Permission = "payments.write"
	PermReportsRead    Permission = "reports.read"
	PermRolesManage    Permission = "roles.manage"
	PermUsersManage    Permission = "users.manage"
)

var catalog = map[Permission]string{
	PermCustomersRead:  "View customers",
	PermCustomersWrite: "Create and edit customers",
	PermInvoicesRead:   "View invoices",
	PermInvoicesWrite:  "Create and edit invoices",
	PermPaymentsRead:   "View payments",
	PermPaymentsWrite:  "Record payments",
	PermReportsRead:    "View reports",
	PermRolesManage:    "Manage roles, permissions and role requests",
	PermUsersManage:    "Manage user accounts",
}

// Valid reports whether the tag belongs to the catalog.
func (p Permission) Valid() bool {
	_, ok := catalog[p]
	return ok
}

func (p Permission) String() string { return string(p) }

// Catalog returns every known permission tag with its description.
func Catalog() map[Permission]string {
	out := make(map[Permission]string, len(catalog))
	for k, v := range catalog {
		out[k] = v
	}
	return out
}

// ParsePermissions validates, trims and deduplicates raw permission strings.
func ParsePermissions(raw []string) ([]Permission, error) {
	seen := make(map[Permission]struct{}, len(raw))
	result := make([]Permission, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		p := Permission(s)
		if !p.Valid() {
			return nil, fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, s)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	return result, nil
}

// PermissionStrings converts a permission slice back to raw strings.
func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func containsPermission(perms []Permission, p Permission) bool {
	for _, candidate := range perms {
		if candidate == p {
			return true
		}
	}
	return false
}
