// Package tlshost provides the host-parameters interface an Endpoint
// consults to resolve a TLS certificate chain and private key for a
// hostname, plus a concrete file-backed implementation with a
// self-signed fallback for development and tests.
package tlshost

import (
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/arcmesh/coregate/routing"
)

// HostParameters resolves the certificate to present for a given
// hostname, honoring the front-wildcard matching rules a `hosts[*]`
// record declares.
type HostParameters interface {
	Certificate(hostname string) (*tls.Certificate, error)
}

type hostEntry struct {
	key  routing.HostnameKey
	cert *tls.Certificate
}

// FileHostParameters resolves certificates loaded from PEM cert/key pairs
// at construction time, one per configured `hosts[*]` record, matching
// hostnames the same way routing.RoutingTable matches them (exact beats
// longest wildcard beats bare `*`).
type FileHostParameters struct {
	mu      sync.RWMutex
	entries []hostEntry
}

// NewFileHostParameters builds an empty resolver; call AddHost once per
// configured host record before the first Certificate lookup.
func NewFileHostParameters() *FileHostParameters {
	return &FileHostParameters{}
}

// AddHost registers hostnamePatterns as resolving to cert. Each pattern
// is parsed with routing.ParseHostname, so "*.example.com" and "*" behave
// exactly as they do in the routing table.
func (h *FileHostParameters) AddHost(hostnamePatterns []string, cert *tls.Certificate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, pattern := range hostnamePatterns {
		key, err := routing.ParseHostname(pattern)
		if err != nil {
			return fmt.Errorf("tlshost: %w", err)
		}
		h.entries = append(h.entries, hostEntry{key: key, cert: cert})
	}
	return nil
}

// Certificate resolves hostname against the registered entries, preferring
// an exact match, then the longest matching wildcard suffix, then a bare
// wildcard `*` entry.
func (h *FileHostParameters) Certificate(hostname string) (*tls.Certificate, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	reqKey, err := routing.ParseHostname(hostname)
	if err != nil {
		return nil, fmt.Errorf("tlshost: %w", err)
	}

	var best *hostEntry
	bestSpecificity := -1
	for i := range h.entries {
		e := &h.entries[i]
		specificity, ok := matchSpecificity(e.key, reqKey.Labels)
		if ok && specificity > bestSpecificity {
			best = e
			bestSpecificity = specificity
		}
	}
	if best == nil {
		return nil, fmt.Errorf("tlshost: no certificate configured for hostname %q", hostname)
	}
	return best.cert, nil
}

// matchSpecificity reports whether entry matches labels and, if so, a
// specificity score where a higher score is a more specific match: an
// exact non-wildcard match scores len(labels)+1, a wildcard match scores
// the number of labels it shares with the suffix, and the bare wildcard
// `*` (no labels) scores 0.
func matchSpecificity(entry routing.HostnameKey, labels []string) (int, bool) {
	if !entry.Wildcard {
		if len(entry.Labels) != len(labels) {
			return 0, false
		}
		for i, l := range entry.Labels {
			if l != labels[i] {
				return 0, false
			}
		}
		return len(labels) + 1, true
	}

	if len(entry.Labels) == 0 {
		return 0, true
	}
	if len(entry.Labels) >= len(labels) {
		return 0, false
	}
	for i, l := range entry.Labels {
		if l != labels[i] {
			return 0, false
		}
	}
	return len(entry.Labels), true
}

// LoadKeyPair parses a PEM certificate chain and private key into a
// tls.Certificate, the shape AddHost expects.
func LoadKeyPair(certPEM, keyPEM []byte) (*tls.Certificate, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("tlshost: parse key pair: %w", err)
	}
	return &cert, nil
}

// SelfSigned generates an in-memory self-signed certificate for
// hostname, for `selfSigned: true` host records in development and tests.
func SelfSigned(hostname string) (*tls.Certificate, error) {
	return generateSelfSigned(hostname)
}
