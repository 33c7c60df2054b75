package routing

import (
	"fmt"
	"strings"
)

// PathKey is a sequence of URI path components with a trailing-wildcard
// flag. A plain "/foo/bar" is non-wildcard; "/foo/bar/*" sets Wildcard.
// Mount-point paths (see ParseMountPath) are always wildcarded by
// convention, regardless of whether a literal "/*" suffix was present.
type PathKey struct {
	Components []string
	Wildcard   bool
}

// ParsePath parses an ordinary URI path into a PathKey, honoring a literal
// trailing "/*" as the wildcard marker.
func ParsePath(p string) (PathKey, error) {
	p = strings.TrimPrefix(p, "/")
	wildcard := false
	if strings.HasSuffix(p, "/*") {
		wildcard = true
		p = strings.TrimSuffix(p, "/*")
	} else if p == "*" {
		wildcard = true
		p = ""
	}
	p = strings.Trim(p, "/")
	if p == "" {
		return PathKey{Wildcard: wildcard}, nil
	}
	return PathKey{Components: strings.Split(p, "/"), Wildcard: wildcard}, nil
}

// ParseMountPath parses a mount-point path: components restricted to
// alphanumeric plus "-_.", starting and ending with alphanumeric, and the
// result is always wildcarded regardless of an explicit "/*" suffix.
func ParseMountPath(p string) (PathKey, error) {
	key, err := ParsePath(p)
	if err != nil {
		return PathKey{}, err
	}
	for _, c := range key.Components {
		if err := validateMountComponent(c); err != nil {
			return PathKey{}, fmt.Errorf("routing: mount path %q: %w", p, err)
		}
	}
	key.Wildcard = true
	return key, nil
}

func validateMountComponent(c string) error {
	if c == "" {
		return fmt.Errorf("empty path component")
	}
	if !isAlnum(rune(c[0])) || !isAlnum(rune(c[len(c)-1])) {
		return fmt.Errorf("component %q must start and end with an alphanumeric character", c)
	}
	for _, r := range c {
		switch {
		case isAlnum(r), r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("component %q contains invalid character %q", c, r)
		}
	}
	return nil
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

// String renders the key back to its normalized path form.
func (k PathKey) String() string {
	if len(k.Components) == 0 {
		if k.Wildcard {
			return "/*"
		}
		return "/"
	}
	s := "/" + strings.Join(k.Components, "/")
	if k.Wildcard {
		s += "/*"
	}
	return s
}

// splitPathComponents splits a concrete request path into components for
// matching against a path trie, discarding empty components produced by
// leading/trailing/duplicate slashes.
func splitPathComponents(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
