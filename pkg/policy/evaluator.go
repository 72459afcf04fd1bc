// Package policy implements the scope evaluator: the algorithm that
// decides, from a principal's directives, whether a concrete
// permission-plus-parameters request is granted. The evaluator is pure and
// total — it never blocks and never raises except on input-shape
// violations (unknown permission, or a requested path that is not a leaf).
package policy

import (
	"errors"
	"fmt"

	"github.com/corevaulthq/iam-core/pkg/catalogue"
	"github.com/corevaulthq/iam-core/pkg/directive"
)

// ErrUnknownPermission is returned when the requested path does not
// resolve in the catalogue.
var ErrUnknownPermission = errors.New("policy: unknown permission")

// ErrNotALeaf is returned when the requested path resolves to an internal
// node rather than a concrete leaf.
var ErrNotALeaf = errors.New("policy: requested path is not a leaf")

// Request is a concrete permission check: a leaf path plus the request's
// own parameter bindings.
type Request struct {
	Path       string
	Parameters map[string]string
}

// Evaluator evaluates scopes against a fixed catalogue.
type Evaluator struct {
	cat *catalogue.Catalogue
}

// New builds an Evaluator bound to cat.
func New(cat *catalogue.Catalogue) *Evaluator {
	return &Evaluator{cat: cat}
}

// Evaluate decides whether scope grants req. scope holds already-parsed
// directives, so the only errors are ErrUnknownPermission and ErrNotALeaf
// for the requested path. Deny always dominates Allow, regardless of
// directive order; an empty scope denies everything.
func (e *Evaluator) Evaluate(scope []directive.Directive, req Request) (bool, error) {
	leaf, err := e.cat.Lookup(req.Path)
	if err != nil {
		return false, fmt.Errorf("%w: %q", ErrUnknownPermission, req.Path)
	}
	if !leaf.IsLeaf() {
		return false, fmt.Errorf("%w: %q", ErrNotALeaf, req.Path)
	}

	granted := false
	for _, d := range scope {
		if !covers(d, leaf) {
			continue
		}
		if !paramsMatch(d, leaf, req.Parameters) {
			continue
		}
		if d.Type == directive.Deny {
			return false, nil
		}
		granted = true
	}
	return granted, nil
}

// covers implements the path-match rule of §4.4.2: exact match, the bare
// root _read/_write sentinel covering any leaf of matching category in the
// whole catalogue, or a "<ancestor>:_read"/"<ancestor>:_write" directive
// covering a same-category leaf in that ancestor's subtree.
func covers(d directive.Directive, leaf *catalogue.Node) bool {
	if d.Path == leaf.Path() {
		return true
	}

	switch leaf.Access() {
	case catalogue.AccessRead:
		if d.Path == directive.RootRead {
			return true
		}
		return coversViaAncestorSuffix(d.Path, ":_read", leaf)
	case catalogue.AccessWrite:
		if d.Path == directive.RootWrite {
			return true
		}
		return coversViaAncestorSuffix(d.Path, ":_write", leaf)
	default:
		return false
	}
}

func coversViaAncestorSuffix(dPath, suffix string, leaf *catalogue.Node) bool {
	ancestorPath, ok := trimSuffix(dPath, suffix)
	if !ok {
		return false
	}
	for anc := leaf.Parent(); anc != nil; anc = anc.Parent() {
		if anc.Path() == ancestorPath {
			return true
		}
	}
	return false
}

func trimSuffix(path, suffix string) (string, bool) {
	if len(path) <= len(suffix) || path[len(path)-len(suffix):] != suffix {
		return "", false
	}
	return path[:len(path)-len(suffix)], true
}

// paramsMatch implements §4.4.3: every directive binding must be present
// and equal in the request parameters; unbound request parameters are
// ignored. A directive's parameter names must be defined on the requested
// leaf's parameter hierarchy, except a root-level _read/_write directive,
// which may bind any name; a directive binding any other name does not
// match.
func paramsMatch(d directive.Directive, leaf *catalogue.Node, requestParams map[string]string) bool {
	if d.Path != directive.RootRead && d.Path != directive.RootWrite {
		defined := make(map[string]bool)
		for _, p := range catalogue.ParameterHierarchy(leaf) {
			defined[p] = true
		}
		for name := range d.Bindings {
			if !defined[name] {
				return false
			}
		}
	}
	for name, want := range d.Bindings {
		got, ok := requestParams[name]
		if !ok || got != want {
			return false
		}
	}
	return true
}
