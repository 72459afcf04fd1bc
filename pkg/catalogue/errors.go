package catalogue

import "errors"

// ErrFormat is returned by Parse/Normalize when an identifier string does
// not match the `path[:segment]*[;key=value]*` grammar.
var ErrFormat = errors.New("catalogue: malformed identifier")

// ErrNotFound is returned by Lookup when a path has no matching node.
var ErrNotFound = errors.New("catalogue: permission not found")

// ErrDuplicateIdentifier is returned while building a tree if two siblings
// share an identifier.
var ErrDuplicateIdentifier = errors.New("catalogue: duplicate identifier among siblings")

// ErrInvalidSpec is returned while building a tree from malformed input,
// such as a leaf with no access category or any node using a reserved
// implicit identifier.
var ErrInvalidSpec = errors.New("catalogue: invalid node specification")
