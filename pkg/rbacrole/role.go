// Package rbacrole implements the role and role-assignment model: role
// descriptors carrying scope templates, template expansion bound to a role
// assignment's parameters, and the role catalogue operations (create,
// update, replace templates, delete, list) that distinguish built-in system
// roles from caller-managed ones.
package rbacrole

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Role is a named bundle of scope templates. System roles are compiled into
// the binary and immutable at runtime; non-system roles are created and
// managed by callers through Manager.
type Role struct {
	ID             uuid.UUID
	Code           string
	Name           string
	Description    string
	IsSystem       bool
	ScopeTemplates []ScopeTemplate
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RoleDescriptor is the caller-supplied payload for CreateRole. IsSystem is
// deliberately absent: callers can never mint a system role.
type RoleDescriptor struct {
	Code           string
	Name           string
	Description    string
	ScopeTemplates []ScopeTemplate
}

// RoleAssignment binds a user to a role with the parameter values that
// resolve the role's scope-template placeholders.
type RoleAssignment struct {
	UserID          uuid.UUID
	RoleID          uuid.UUID
	ParameterValues map[string]string
}

// Store is the persistence contract Manager relies on for non-system roles.
// Implementations own their own concurrency control; every method accepts a
// context for cancellation propagation.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (Role, error)
	GetByCode(ctx context.Context, code string) (Role, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Role, error)
	List(ctx context.Context) ([]Role, error)
	Save(ctx context.Context, r Role) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Manager serves role catalogue operations over a fixed set of system roles
// plus a caller-managed Store of stored roles.
type Manager struct {
	store        Store
	systemRoles  []Role
	systemByID   map[uuid.UUID]Role
	systemByCode map[string]Role
}

// NewManager builds a Manager. systemRoles is the process's compiled-in set
// of built-in roles; it is never mutated by Manager operations.
func NewManager(store Store, systemRoles []Role) *Manager {
	m := &Manager{
		store:        store,
		systemRoles:  append([]Role(nil), systemRoles...),
		systemByID:   make(map[uuid.UUID]Role, len(systemRoles)),
		systemByCode: make(map[string]Role, len(systemRoles)),
	}
	for _, r := range systemRoles {
		m.systemByID[r.ID] = r
		m.systemByCode[r.Code] = r
	}
	return m
}

// CreateRole stores a new non-system role. It fails with ErrDuplicateEntity
// if a stored role already uses descriptor.Code, and ErrReservedName if the
// code collides with a system role's code.
func (m *Manager) CreateRole(ctx context.Context, descriptor RoleDescriptor) (Role, error) {
	if _, isSystem := m.systemByCode[descriptor.Code]; isSystem {
		return Role{}, ErrReservedName
	}
	if _, err := m.store.GetByCode(ctx, descriptor.Code); err == nil {
		return Role{}, ErrDuplicateEntity
	}

	now := time.Now().UTC()
	r := Role{
		ID:             uuid.New(),
		Code:           descriptor.Code,
		Name:           descriptor.Name,
		Description:    descriptor.Description,
		IsSystem:       false,
		ScopeTemplates: append([]ScopeTemplate(nil), descriptor.ScopeTemplates...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.Save(ctx, r); err != nil {
		return Role{}, err
	}
	return r, nil
}

// UpdateMetadata changes a stored role's name and description. It fails
// with ErrSystemRoleImmutable if id names a system role, ErrNotFound if id
// is unknown.
func (m *Manager) UpdateMetadata(ctx context.Context, id uuid.UUID, name, description string) (Role, error) {
	r, err := m.loadMutableStored(ctx, id)
	if err != nil {
		return Role{}, err
	}
	r.Name = name
	r.Description = description
	r.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(ctx, r); err != nil {
		return Role{}, err
	}
	return r, nil
}

// ReplaceScopeTemplates atomically swaps a stored role's scope templates.
// It fails with ErrSystemRoleImmutable if id names a system role,
// ErrNotFound if id is unknown.
func (m *Manager) ReplaceScopeTemplates(ctx context.Context, id uuid.UUID, templates []ScopeTemplate) (Role, error) {
	r, err := m.loadMutableStored(ctx, id)
	if err != nil {
		return Role{}, err
	}
	r.ScopeTemplates = append([]ScopeTemplate(nil), templates...)
	r.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(ctx, r); err != nil {
		return Role{}, err
	}
	return r, nil
}

// Delete removes a stored role. It fails with ErrSystemRoleImmutable if id
// names a system role, ErrNotFound if id is unknown.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := m.loadMutableStored(ctx, id); err != nil {
		return err
	}
	return m.store.Delete(ctx, id)
}

// Get resolves a role by id, checking system roles before falling through
// to the store. It is the lookup §4.6 uses to expand a role assignment;
// ErrNotFound tells the caller to skip the assignment rather than fail.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (Role, error) {
	if r, ok := m.systemByID[id]; ok {
		return r, nil
	}
	r, err := m.store.GetByID(ctx, id)
	if err != nil {
		return Role{}, ErrNotFound
	}
	return r, nil
}

// GetByCode resolves a role by its unique code, checking system roles
// before the store. External registration (identity.VerifyExternal) uses
// this to find the default role to assign a newly linked user.
func (m *Manager) GetByCode(ctx context.Context, code string) (Role, error) {
	if r, ok := m.systemByCode[code]; ok {
		return r, nil
	}
	r, err := m.store.GetByCode(ctx, code)
	if err != nil {
		return Role{}, ErrNotFound
	}
	return r, nil
}

// loadMutableStored fetches a stored (non-system) role by id, rejecting
// system roles and unknown ids.
func (m *Manager) loadMutableStored(ctx context.Context, id uuid.UUID) (Role, error) {
	if _, isSystem := m.systemByID[id]; isSystem {
		return Role{}, ErrSystemRoleImmutable
	}
	r, err := m.store.GetByID(ctx, id)
	if err != nil {
		return Role{}, ErrNotFound
	}
	return r, nil
}

// List returns the union of system roles and stored roles, ordered by code.
// A stored role never replaces a system role: stored entries whose id or
// code belongs to a system role are skipped. CreateRole already rejects
// system codes, so this only guards against stores populated otherwise.
func (m *Manager) List(ctx context.Context) ([]Role, error) {
	stored, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	byCode := make(map[string]Role, len(m.systemRoles)+len(stored))
	for _, r := range m.systemRoles {
		byCode[r.Code] = r
	}
	for _, r := range stored {
		_, systemID := m.systemByID[r.ID]
		_, systemCode := m.systemByCode[r.Code]
		if systemID || systemCode {
			continue
		}
		byCode[r.Code] = r
	}

	out := make([]Role, 0, len(byCode))
	for _, r := range byCode {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
