// Package application defines the plugin contract an Endpoint dispatches
// matched requests to. Concrete applications (a file server, a
// redirector, and so on) are external to the core; they implement this
// interface and the lifecycle.Component contract and are registered by
// name in the configuration's `applications` section.
package application

import (
	"context"
	"net/http"

	"github.com/arcmesh/coregate/lifecycle"
	"github.com/arcmesh/coregate/routing"
)

// Outcome is the tri-state result of Application.Handle.
type Outcome int

const (
	// Handled means the application fully served the request; the
	// Endpoint dispatches nothing further.
	Handled Outcome = iota
	// Declined means the application did not serve this request and
	// routing should fall through to the next less-specific mount.
	Declined
)

func (o Outcome) String() string {
	switch o {
	case Handled:
		return "handled"
	case Declined:
		return "declined"
	default:
		return "unknown"
	}
}

// Application is the plugin contract every mounted handler implements. A
// returned error is the third ("error") outcome from spec.md §4.3: the
// Endpoint logs it and synthesizes a 500, rather than advancing to the
// next candidate mount the way a Declined outcome does.
type Application interface {
	lifecycle.Component

	// Handle serves (or declines) a request matched to this application's
	// mount. dispatch carries the matched prefix (Base) and the remainder
	// of the path beyond it (Extra). Handle must not write to w after
	// returning Declined — the Endpoint may still write a fallthrough
	// response or hand the request to the next candidate.
	Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, dispatch routing.Dispatch) (Outcome, error)
}

// Factory builds a named Application from its class-specific options,
// keyed by the `class` field of an `applications[*]` config record. See
// package registry for the name -> Factory map.
type Factory func(name string, rawOptions []byte, parent *lifecycle.ControlContext) (Application, error)
