package catalogue

import (
	"fmt"
	"strings"
)

// ParsedIdentifier is the result of parsing a permission identifier string
// of the form `path[:segment]*[;key=value]*`.
type ParsedIdentifier struct {
	Path       string
	Parameters map[string]string
}

// Parse canonicalizes a permission identifier. The path portion is
// colon-joined trimmed segments; parameters are key=value pairs separated
// by semicolons. Whitespace around ';' and '=' is stripped; whitespace
// inside a segment or value is preserved. Duplicate parameter names
// overwrite, the last occurrence wins.
func Parse(identifier string) (ParsedIdentifier, error) {
	parts := strings.Split(identifier, ";")

	rawSegments := strings.Split(parts[0], ":")
	segments := make([]string, 0, len(rawSegments))
	for _, seg := range rawSegments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return ParsedIdentifier{}, fmt.Errorf("%w: empty path segment in %q", ErrFormat, identifier)
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return ParsedIdentifier{}, fmt.Errorf("%w: empty path in %q", ErrFormat, identifier)
	}

	params := make(map[string]string, len(parts)-1)
	for _, raw := range parts[1:] {
		eq := strings.Index(raw, "=")
		if eq < 0 {
			return ParsedIdentifier{}, fmt.Errorf("%w: parameter %q missing '='", ErrFormat, raw)
		}
		name := strings.TrimSpace(raw[:eq])
		value := strings.TrimSpace(raw[eq+1:])
		if name == "" {
			return ParsedIdentifier{}, fmt.Errorf("%w: empty parameter name in %q", ErrFormat, identifier)
		}
		if value == "" {
			return ParsedIdentifier{}, fmt.Errorf("%w: empty parameter value for %q", ErrFormat, name)
		}
		params[name] = value
	}

	return ParsedIdentifier{
		Path:       strings.Join(segments, ":"),
		Parameters: params,
	}, nil
}

// Normalize returns only the canonical path portion of identifier.
func Normalize(identifier string) (string, error) {
	parsed, err := Parse(identifier)
	if err != nil {
		return "", err
	}
	return parsed.Path, nil
}
