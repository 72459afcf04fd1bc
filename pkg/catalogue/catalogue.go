// Package catalogue builds and queries the immutable permission tree: the
// static catalogue of every guarded operation in the system, along with the
// parameter hierarchy and implicit read/write scope leaves at each internal
// node.
package catalogue

import "fmt"

// Catalogue is the process-wide, immutable permission tree. Build it once
// at startup; it is safe for unsynchronized concurrent reads thereafter.
type Catalogue struct {
	roots []*Node
	index map[string]*Node
}

// Build constructs a Catalogue from a forest of top-level specs. It fails
// if any sibling set has duplicate identifiers or any leaf spec lacks a
// Read/Write access category.
func Build(specs []NodeSpec) (*Catalogue, error) {
	c := &Catalogue{index: make(map[string]*Node)}

	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if seen[spec.Identifier] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateIdentifier, spec.Identifier)
		}
		seen[spec.Identifier] = true

		node, err := buildNode(spec, nil)
		if err != nil {
			return nil, err
		}
		c.roots = append(c.roots, node)
	}

	for _, root := range c.roots {
		indexSubtree(c.index, root)
	}
	return c, nil
}

func buildNode(spec NodeSpec, parent *Node) (*Node, error) {
	if spec.Identifier == readLeafID || spec.Identifier == writeLeafID {
		return nil, fmt.Errorf("%w: %q is a reserved implicit leaf identifier", ErrInvalidSpec, spec.Identifier)
	}

	n := &Node{
		identifier:  spec.Identifier,
		description: spec.Description,
		parameters:  append([]string(nil), spec.Parameters...),
		parent:      parent,
	}
	if parent == nil {
		n.path = n.identifier
	} else {
		n.path = parent.path + ":" + n.identifier
	}

	if len(spec.Children) == 0 {
		if spec.Access != AccessRead && spec.Access != AccessWrite {
			return nil, fmt.Errorf("%w: leaf %q must declare Read or Write access", ErrInvalidSpec, n.path)
		}
		n.access = spec.Access
		return n, nil
	}

	n.access = AccessNone
	seen := make(map[string]bool, len(spec.Children))
	for _, childSpec := range spec.Children {
		if seen[childSpec.Identifier] {
			return nil, fmt.Errorf("%w: %q under %q", ErrDuplicateIdentifier, childSpec.Identifier, n.path)
		}
		seen[childSpec.Identifier] = true

		child, err := buildNode(childSpec, n)
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, child)
	}

	n.children = append(n.children,
		&Node{identifier: readLeafID, access: AccessRead, parent: n, path: n.path + ":" + readLeafID},
		&Node{identifier: writeLeafID, access: AccessWrite, parent: n, path: n.path + ":" + writeLeafID},
	)
	return n, nil
}

func indexSubtree(index map[string]*Node, n *Node) {
	index[n.path] = n
	for _, child := range n.children {
		indexSubtree(index, child)
	}
}

// Roots returns the top-level nodes of the catalogue.
func (c *Catalogue) Roots() []*Node { return append([]*Node(nil), c.roots...) }

// Lookup resolves a canonical path to its node.
func (c *Catalogue) Lookup(canonicalPath string) (*Node, error) {
	n, ok := c.index[canonicalPath]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, canonicalPath)
	}
	return n, nil
}

// Traverse yields every node in the catalogue, including implicit
// _read/_write leaves, in stable pre-order.
func (c *Catalogue) Traverse() []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		out = append(out, n)
		for _, child := range n.children {
			walk(child)
		}
	}
	for _, root := range c.roots {
		walk(root)
	}
	return out
}

// ParameterHierarchy returns, for a node, its ancestors' (root-to-node)
// local parameters concatenated with order-preserving de-duplication.
func ParameterHierarchy(n *Node) []string {
	seen := make(map[string]bool)
	var out []string
	for _, anc := range n.AncestorsRootFirst() {
		for _, p := range anc.parameters {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
