package rbacrole

import (
	"fmt"
	"strings"

	"github.com/corevaulthq/iam-core/pkg/directive"
)

// ScopeTemplate is a role's blueprint for one directive. ParameterTemplates
// values are literal strings, each optionally containing exactly one
// `{placeholder}` substitution, resolved against a role assignment's
// parameter-value map at expansion time.
type ScopeTemplate struct {
	Type               directive.Type
	Path               string
	ParameterTemplates map[string]string
}

// Expand resolves t against assignment parameters, replacing each value's
// `{placeholder}` (if any) with the bound value. It fails with
// ErrMissingRoleParameter if a placeholder has no corresponding entry in
// assignmentParams. Assignment parameters not referenced by any placeholder
// are ignored.
func (t ScopeTemplate) Expand(assignmentParams map[string]string) (directive.Directive, error) {
	bindings := make(map[string]string, len(t.ParameterTemplates))
	for name, raw := range t.ParameterTemplates {
		resolved, err := resolvePlaceholder(raw, assignmentParams)
		if err != nil {
			return directive.Directive{}, err
		}
		bindings[name] = resolved
	}
	return directive.Directive{Type: t.Type, Path: t.Path, Bindings: bindings}, nil
}

// resolvePlaceholder substitutes the single `{name}` placeholder in raw, if
// present, with its bound value from params. A value with no placeholder is
// returned unchanged.
func resolvePlaceholder(raw string, params map[string]string) (string, error) {
	open := strings.IndexByte(raw, '{')
	if open < 0 {
		return raw, nil
	}
	closeIdx := strings.IndexByte(raw[open:], '}')
	if closeIdx < 0 {
		return "", fmt.Errorf("%w: unterminated placeholder in %q", ErrMissingRoleParameter, raw)
	}
	closeIdx += open

	name := raw[open+1 : closeIdx]
	value, ok := params[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingRoleParameter, name)
	}
	return raw[:open] + value + raw[closeIdx+1:], nil
}
