// Package scope implements the effective-scope resolver: it turns a user's
// role assignments and direct grants into the ordered, de-duplicated list
// of directives that pkg/policy evaluates.
package scope

import (
	"context"

	"github.com/corevaulthq/iam-core/pkg/directive"
	"github.com/corevaulthq/iam-core/pkg/rbacrole"
)

// DirectGrant is a permission granted straight to a user, outside any role.
// It always expands to an Allow directive.
type DirectGrant struct {
	Path       string
	Parameters map[string]string
}

// Resolve implements §4.6: for each role assignment, in insertion order,
// look up the role (skipping silently if missing) and expand its scope
// templates with the assignment's parameters; then append every direct
// grant as an Allow directive; then de-duplicate by canonical encoding,
// preserving first occurrence.
func Resolve(
	ctx context.Context,
	assignments []rbacrole.RoleAssignment,
	directGrants []DirectGrant,
	roles *rbacrole.Manager,
) ([]directive.Directive, error) {
	seen := make(map[string]bool)
	var out []directive.Directive

	appendUnique := func(d directive.Directive) {
		key := directive.Encode(d)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, d)
	}

	for _, assignment := range assignments {
		role, err := roles.Get(ctx, assignment.RoleID)
		if err != nil {
			continue
		}
		for _, tmpl := range role.ScopeTemplates {
			d, err := tmpl.Expand(assignment.ParameterValues)
			if err != nil {
				return nil, err
			}
			appendUnique(d)
		}
	}

	for _, grant := range directGrants {
		appendUnique(directive.Directive{
			Type:     directive.Allow,
			Path:     grant.Path,
			Bindings: grant.Parameters,
		})
	}

	return out, nil
}
