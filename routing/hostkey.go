// Package routing implements the two-level hostname/path prefix map that an
// Endpoint consults to find the application bound to an incoming request.
// Hostnames are matched longest-suffix (wildcards at the front, e.g.
// "*.example.com"); paths are matched longest-prefix (wildcards at the
// end). Both tries are immutable once RoutingTable.Start is called.
package routing

import (
	"fmt"
	"strings"
)

// HostnameKey is a hostname pattern stored as DNS labels in reverse order,
// so "a.example.com" becomes ["com", "example", "a"]: a longest suffix
// match over the actual hostname is a longest common prefix over this
// reversed slice. Wildcard is set by a leading "*." or the bare pattern
// "*", which yields ([], true).
type HostnameKey struct {
	Labels   []string
	Wildcard bool
}

// ParseHostname parses a hostname pattern: an exact hostname, a front
// wildcard ("*.example.com"), or the bare wildcard "*".
func ParseHostname(pattern string) (HostnameKey, error) {
	if pattern == "*" {
		return HostnameKey{Wildcard: true}, nil
	}

	wildcard := false
	rest := pattern
	if strings.HasPrefix(pattern, "*.") {
		wildcard = true
		rest = pattern[2:]
	}
	if rest == "" {
		return HostnameKey{}, fmt.Errorf("routing: empty hostname after wildcard in %q", pattern)
	}

	parts := strings.Split(rest, ".")
	labels := make([]string, len(parts))
	for i, p := range parts {
		if err := validateLabel(p); err != nil {
			return HostnameKey{}, fmt.Errorf("routing: hostname %q: %w", pattern, err)
		}
		labels[len(parts)-1-i] = p
	}
	return HostnameKey{Labels: labels, Wildcard: wildcard}, nil
}

func validateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("empty label")
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Errorf("label %q starts or ends with a dash", label)
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return fmt.Errorf("label %q contains invalid character %q", label, r)
		}
	}
	return nil
}

// String renders the key back to its pattern form, reversing the stored
// label order.
func (k HostnameKey) String() string {
	if len(k.Labels) == 0 {
		if k.Wildcard {
			return "*"
		}
		return ""
	}
	parts := make([]string, len(k.Labels))
	for i, l := range k.Labels {
		parts[len(k.Labels)-1-i] = l
	}
	joined := strings.Join(parts, ".")
	if k.Wildcard {
		return "*." + joined
	}
	return joined
}
