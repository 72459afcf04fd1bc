// Package directive implements the scope directive model: a single
// Allow/Deny rule bound to a permission path and optional parameter
// bindings, encoded textually as `allow|deny;path[;k=v]*`.
package directive

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/corevaulthq/iam-core/pkg/catalogue"
)

// Type is the effect of a directive.
type Type int

const (
	Allow Type = iota
	Deny
)

func (t Type) String() string {
	if t == Deny {
		return "deny"
	}
	return "allow"
}

// ErrFormat is returned when a directive string fails to parse.
var ErrFormat = errors.New("directive: malformed directive")

// ErrUnresolvedPath is returned when a directive's path does not resolve
// in the supplied catalogue.
var ErrUnresolvedPath = errors.New("directive: path does not resolve in catalogue")

// ErrUndefinedParameter is returned when a directive binds a parameter
// name not defined on any ancestor of its path.
var ErrUndefinedParameter = errors.New("directive: parameter not defined on path")

// Directive is an Allow/Deny rule bound to a permission path with optional
// literal parameter bindings.
type Directive struct {
	Type     Type
	Path     string
	Bindings map[string]string
}

// Parse parses a directive string of the form `allow|deny;path[;k=v]*`.
// It does not validate against a catalogue; use Validate for that.
func Parse(s string) (Directive, error) {
	parts := strings.Split(s, ";")
	if len(parts) < 2 {
		return Directive{}, fmt.Errorf("%w: %q", ErrFormat, s)
	}

	var typ Type
	switch strings.TrimSpace(parts[0]) {
	case "allow":
		typ = Allow
	case "deny":
		typ = Deny
	default:
		return Directive{}, fmt.Errorf("%w: effect must be allow or deny, got %q", ErrFormat, parts[0])
	}

	path, err := catalogue.Normalize(strings.TrimSpace(parts[1]))
	if err != nil {
		return Directive{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	bindings := make(map[string]string, len(parts)-2)
	for _, raw := range parts[2:] {
		eq := strings.Index(raw, "=")
		if eq < 0 {
			return Directive{}, fmt.Errorf("%w: parameter %q missing '='", ErrFormat, raw)
		}
		name := strings.TrimSpace(raw[:eq])
		value := strings.TrimSpace(raw[eq+1:])
		if name == "" {
			return Directive{}, fmt.Errorf("%w: empty parameter name", ErrFormat)
		}
		if value == "" {
			return Directive{}, fmt.Errorf("%w: empty parameter value for %q", ErrFormat, name)
		}
		if _, dup := bindings[name]; dup {
			return Directive{}, fmt.Errorf("%w: duplicate parameter %q", ErrFormat, name)
		}
		bindings[name] = value
	}

	return Directive{Type: typ, Path: path, Bindings: bindings}, nil
}

// Encode renders a directive to its canonical string form: the effect,
// the path, and parameters sorted by name for a stable round-trip.
func Encode(d Directive) string {
	var b strings.Builder
	b.WriteString(d.Type.String())
	b.WriteByte(';')
	b.WriteString(d.Path)

	names := make([]string, 0, len(d.Bindings))
	for name := range d.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteByte(';')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(d.Bindings[name])
	}
	return b.String()
}

// RootRead and RootWrite are the bare scope-leaf paths ("_read"/"_write"
// with no ancestor prefix). They never resolve in any catalogue — they
// denote the implicit root of the whole permission forest — and are the
// sole carriers of the §4.4.3 parameter-name exception: their bindings may
// name any parameter, not just ones defined in a permission's hierarchy.
const (
	RootRead  = "_read"
	RootWrite = "_write"
)

// Validate checks that d's path resolves in cat and that every bound
// parameter name is defined somewhere in the path's parameter hierarchy.
// The sole exception is a bare root-level _read/_write directive (see
// RootRead/RootWrite), which may bind any parameter name and is not
// looked up in the catalogue at all.
func Validate(cat *catalogue.Catalogue, d Directive) error {
	if d.Path == RootRead || d.Path == RootWrite {
		return nil
	}

	node, err := cat.Lookup(d.Path)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnresolvedPath, d.Path)
	}

	hierarchy := catalogue.ParameterHierarchy(node)
	allowed := make(map[string]bool, len(hierarchy))
	for _, p := range hierarchy {
		allowed[p] = true
	}
	for name := range d.Bindings {
		if !allowed[name] {
			return fmt.Errorf("%w: %q not defined on %q", ErrUndefinedParameter, name, d.Path)
		}
	}
	return nil
}
