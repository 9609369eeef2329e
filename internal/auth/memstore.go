package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tallybooks.org/internal/ids"
)

// MemStore is an in-memory Store used by tests and when no database DSN is
// configured. WithinTx snapshots state up front and restores it on error, so
// the composite role-change write stays all-or-nothing here too.
type MemStore struct {
	mu        sync.Mutex
	users     map[string]*User
	roles     map[string]*Role
	edges     map[string]*HierarchyEdge
	requests  map[string]*RoleRequest
	changelog []*RoleChangeLog
	blacklist map[string]*BlacklistEntry
	now       func() time.Time
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:     make(map[string]*User),
		roles:     make(map[string]*Role),
		edges:     make(map[string]*HierarchyEdge),
		requests:  make(map[string]*RoleRequest),
		blacklist: make(map[string]*BlacklistEntry),
		now:       time.Now,
	}
}

// SetClock overrides the time source (useful for tests).
func (m *MemStore) SetClock(fn func() time.Time) {
	if fn != nil {
		m.now = fn
	}
}

func (m *MemStore) Users() UserStore               { return memUsers{m} }
func (m *MemStore) Roles() RoleStore               { return memRoles{m} }
func (m *MemStore) Hierarchy() HierarchyStore      { return memHierarchy{m} }
func (m *MemStore) RoleRequests() RoleRequestStore { return memRequests{m} }
func (m *MemStore) ChangeLog() ChangeLogStore      { return memChangeLog{m} }
func (m *MemStore) Blacklist() BlacklistStore      { return memBlacklist{m} }

// WithinTx emulates transactional semantics by restoring a snapshot when fn
// fails.
func (m *MemStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	users := cloneMap(m.users, cloneUser)
	roles := cloneMap(m.roles, cloneRole)
	edges := cloneMap(m.edges, cloneEdge)
	requests := cloneMap(m.requests, cloneRequest)
	changelog := append([]*RoleChangeLog(nil), m.changelog...)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.users = users
		m.roles = roles
		m.edges = edges
		m.requests = requests
		m.changelog = changelog
		m.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[T any](src map[string]*T, clone func(*T) *T) map[string]*T {
	out := make(map[string]*T, len(src))
	for k, v := range src {
		out[k] = clone(v)
	}
	return out
}

func cloneUser(u *User) *User {
	c := *u
	c.Permissions = append([]Permission(nil), u.Permissions...)
	c.MFABackupCodes = append([]string(nil), u.MFABackupCodes...)
	return &c
}

func cloneRole(r *Role) *Role {
	c := *r
	c.Permissions = append([]Permission(nil), r.Permissions...)
	return &c
}

func cloneEdge(e *HierarchyEdge) *HierarchyEdge {
	c := *e
	return &c
}

func cloneRequest(r *RoleRequest) *RoleRequest {
	c := *r
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

type memUsers struct{ m *MemStore }

func (s memUsers) Create(ctx context.Context, u *User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := s.m.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.m.users[u.ID] = cloneUser(u)
	return nil
}

func (s memUsers) Find(ctx context.Context, id string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s memUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, u := range s.m.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s memUsers) List(ctx context.Context) ([]*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]*User, 0, len(s.m.users))
	for _, u := range s.m.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s memUsers) UpdateProfile(ctx context.Context, id, name, email string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	for _, other := range s.m.users {
		if other.ID != id && other.Email == email {
			return nil, ErrConflict
		}
	}
	u.Name = name
	u.Email = email
	u.UpdatedAt = s.m.now().UTC()
	return cloneUser(u), nil
}

func (s memUsers) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.m.now().UTC()
	return nil
}

func (s memUsers) SetRole(ctx context.Context, id, role string, perms []Permission) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	u.Permissions = append([]Permission(nil), perms...)
	u.UpdatedAt = s.m.now().UTC()
	return nil
}

func (s memUsers) SyncRolePermissions(ctx context.Context, role string, perms []Permission) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var affected []string
	for _, u := range s.m.users {
		if u.Role == role {
			u.Permissions = append([]Permission(nil), perms...)
			u.UpdatedAt = s.m.now().UTC()
			affected = append(affected, u.ID)
		}
	}
	return affected, nil
}

func (s memUsers) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.TokenVersion++
	u.UpdatedAt = s.m.now().UTC()
	return u.TokenVersion, nil
}

func (s memUsers) SetMFA(ctx context.Context, id string, enabled bool, secret string, backupCodes []string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.MFAEnabled = enabled
	u.MFASecret = secret
	u.MFABackupCodes = append([]string(nil), backupCodes...)
	u.UpdatedAt = s.m.now().UTC()
	return nil
}

func (s memUsers) Delete(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.users, id)
	return nil
}

type memRoles struct{ m *MemStore }

func (s memRoles) Create(ctx context.Context, r *Role) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.roles {
		if existing.Name == r.Name {
			return ErrConflict
		}
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	now := s.m.now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.m.roles[r.ID] = cloneRole(r)
	return nil
}

func (s memRoles) Find(ctx context.Context, id string) (*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	r, ok := s.m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRole(r), nil
}

func (s memRoles) FindByName(ctx context.Context, name string) (*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, r := range s.m.roles {
		if r.Name == name {
			return cloneRole(r), nil
		}
	}
	return nil, ErrNotFound
}

func (s memRoles) FindDefault(ctx context.Context) (*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, r := range s.m.roles {
		if r.IsDefault {
			return cloneRole(r), nil
		}
	}
	return nil, ErrNotFound
}

func (s memRoles) List(ctx context.Context) ([]*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]*Role, 0, len(s.m.roles))
	for _, r := range s.m.roles {
		out = append(out, cloneRole(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s memRoles) Update(ctx context.Context, r *Role) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	existing, ok := s.m.roles[r.ID]
	if !ok {
		return ErrNotFound
	}
	for _, other := range s.m.roles {
		if other.ID != r.ID && other.Name == r.Name {
			return ErrConflict
		}
	}
	updated := cloneRole(r)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.m.now().UTC()
	s.m.roles[r.ID] = updated
	return nil
}

func (s memRoles) Delete(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.roles, id)
	for key, e := range s.m.edges {
		if e.ParentRoleID == id || e.ChildRoleID == id {
			delete(s.m.edges, key)
		}
	}
	return nil
}

type memHierarchy struct{ m *MemStore }

func edgeKey(parent, child string) string { return parent + "->" + child }

func (s memHierarchy) AddEdge(ctx context.Context, parentRoleID, childRoleID string) (*HierarchyEdge, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	key := edgeKey(parentRoleID, childRoleID)
	if _, ok := s.m.edges[key]; ok {
		return nil, ErrConflict
	}
	edge := &HierarchyEdge{
		ID:           ids.New(),
		ParentRoleID: parentRoleID,
		ChildRoleID:  childRoleID,
		CreatedAt:    s.m.now().UTC(),
	}
	s.m.edges[key] = edge
	return cloneEdge(edge), nil
}

func (s memHierarchy) RemoveEdge(ctx context.Context, parentRoleID, childRoleID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	key := edgeKey(parentRoleID, childRoleID)
	if _, ok := s.m.edges[key]; !ok {
		return ErrNotFound
	}
	delete(s.m.edges, key)
	return nil
}

func (s memHierarchy) ListByChild(ctx context.Context, childRoleID string) ([]*HierarchyEdge, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*HierarchyEdge
	for _, e := range s.m.edges {
		if e.ChildRoleID == childRoleID {
			out = append(out, cloneEdge(e))
		}
	}
	return out, nil
}

func (s memHierarchy) List(ctx context.Context) ([]*HierarchyEdge, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]*HierarchyEdge, 0, len(s.m.edges))
	for _, e := range s.m.edges {
		out = append(out, cloneEdge(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memRequests struct{ m *MemStore }

func (s memRequests) Create(ctx context.Context, req *RoleRequest) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if req.ID == "" {
		req.ID = ids.New()
	}
	req.CreatedAt = s.m.now().UTC()
	s.m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s memRequests) Find(ctx context.Context, id string) (*RoleRequest, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	req, ok := s.m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s memRequests) List(ctx context.Context, status string) ([]*RoleRequest, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*RoleRequest
	for _, req := range s.m.requests {
		if status == "" || req.Status == status {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memRequests) Update(ctx context.Context, req *RoleRequest) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.requests[req.ID]; !ok {
		return ErrNotFound
	}
	s.m.requests[req.ID] = cloneRequest(req)
	return nil
}

type memChangeLog struct{ m *MemStore }

func (s memChangeLog) Append(ctx context.Context, entry *RoleChangeLog) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	entry.CreatedAt = s.m.now().UTC()
	c := *entry
	s.m.changelog = append(s.m.changelog, &c)
	return nil
}

func (s memChangeLog) ListByUser(ctx context.Context, userID string) ([]*RoleChangeLog, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*RoleChangeLog
	for _, entry := range s.m.changelog {
		if entry.UserID == userID {
			c := *entry
			out = append(out, &c)
		}
	}
	return out, nil
}

type memBlacklist struct{ m *MemStore }

func (s memBlacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return ErrInvalidInput
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	now := s.m.now().UTC()
	if entry, ok := s.m.blacklist[jti]; ok {
		if now.Before(entry.ExpiresAt) {
			return ErrConflict
		}
		// Entry outlived its token; replacing it is a fresh revocation.
	}
	s.m.blacklist[jti] = &BlacklistEntry{JTI: jti, ExpiresAt: expiresAt, CreatedAt: now}
	return nil
}

func (s memBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	entry, ok := s.m.blacklist[jti]
	if !ok {
		return false, nil
	}
	if s.m.now().UTC().After(entry.ExpiresAt) {
		// Self-pruning: the token itself has expired, the entry is moot.
		delete(s.m.blacklist, jti)
		return false, nil
	}
	return true, nil
}
