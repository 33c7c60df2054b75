package routing

import (
	"fmt"
	"strings"
)

// Mount is a (HostnameKey, PathKey) pair parsed from a configuration "at"
// string of the form "//<host-pattern>/<path>/". The application reference
// itself is supplied separately by the caller inserting into a RoutingTable.
type Mount struct {
	Host HostnameKey
	Path PathKey
}

// ParseMount parses a mount-point string in "//<host-pattern>/<path>"
// syntax. The path portion may be empty, matching every path under the
// host.
func ParseMount(s string) (Mount, error) {
	if !strings.HasPrefix(s, "//") {
		return Mount{}, fmt.Errorf("routing: mount %q must start with \"//\"", s)
	}
	rest := s[2:]

	hostPart, pathPart := rest, ""
	if idx := strings.Index(rest, "/"); idx != -1 {
		hostPart, pathPart = rest[:idx], rest[idx:]
	}
	if hostPart == "" {
		return Mount{}, fmt.Errorf("routing: mount %q has an empty host pattern", s)
	}

	host, err := ParseHostname(hostPart)
	if err != nil {
		return Mount{}, err
	}
	path, err := ParseMountPath(pathPart)
	if err != nil {
		return Mount{}, err
	}
	return Mount{Host: host, Path: path}, nil
}

// String renders the mount back to its normalized "at" form.
func (m Mount) String() string {
	return "//" + m.Host.String() + m.Path.String()
}
