package rbacrole

import "errors"

// ErrMissingRoleParameter is returned when expanding a scope template whose
// placeholder is not supplied by the role assignment's parameter map.
var ErrMissingRoleParameter = errors.New("rbacrole: scope template placeholder not supplied")

// ErrDuplicateEntity is returned by CreateRole when a role code already
// exists among stored roles.
var ErrDuplicateEntity = errors.New("rbacrole: role code already exists")

// ErrReservedName is returned by CreateRole when a role code collides with
// a system role's code.
var ErrReservedName = errors.New("rbacrole: role code is reserved by a system role")

// ErrSystemRoleImmutable is returned when update_metadata, replace_scope_templates,
// or delete target a system role.
var ErrSystemRoleImmutable = errors.New("rbacrole: system roles are immutable")

// ErrNotFound is returned when an operation targets an unknown role id.
var ErrNotFound = errors.New("rbacrole: role not found")
