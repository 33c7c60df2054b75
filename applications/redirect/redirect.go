// Package redirect implements a reference Application that issues a
// permanent redirect to a configured target URL, preserving the matched
// mount's remainder path and the original query string. It grounds
// end-to-end scenario 1 from spec.md §8.
package redirect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arcmesh/coregate/application"
	"github.com/arcmesh/coregate/lifecycle"
	"github.com/arcmesh/coregate/routing"
)

// Options is the class-specific configuration for a redirect application,
// decoded from `applications[*].options`.
type Options struct {
	// Target is the base URL every matched request redirects to. The
	// dispatch's Extra path and the original query string are appended.
	Target string `yaml:"target"`
	// StatusCode overrides the default 308 Permanent Redirect.
	StatusCode int `yaml:"statusCode,omitempty"`
}

// Application is the redirect application: it never declines, so it
// should typically be mounted as the catch-all `//*/ ` fallback.
type Application struct {
	name       string
	target     *url.URL
	statusCode int
}

// New is an application.Factory for class "redirect".
func New(name string, rawOptions []byte, parent *lifecycle.ControlContext) (application.Application, error) {
	var opts Options
	if err := yaml.Unmarshal(rawOptions, &opts); err != nil {
		return nil, fmt.Errorf("redirect %q: decode options: %w", name, err)
	}
	if opts.Target == "" {
		return nil, fmt.Errorf("redirect %q: target is required", name)
	}
	target, err := url.Parse(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("redirect %q: invalid target %q: %w", name, opts.Target, err)
	}
	status := opts.StatusCode
	if status == 0 {
		status = http.StatusPermanentRedirect
	}
	return &Application{name: name, target: target, statusCode: status}, nil
}

// ImplInit performs no sensing; the target URL was already validated in New.
func (a *Application) ImplInit(ctx context.Context, isReload bool) error { return nil }

// ImplStart is a no-op; redirect has no background work.
func (a *Application) ImplStart(ctx context.Context, isReload bool) error { return nil }

// ImplStop is a no-op.
func (a *Application) ImplStop(ctx context.Context, willReload bool) error { return nil }

// Handle always returns Handled: it redirects to a.target joined with
// dispatch.Extra and the request's original query string.
func (a *Application) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, dispatch routing.Dispatch) (application.Outcome, error) {
	dest := *a.target
	dest.Path = strings.TrimSuffix(dest.Path, "/") + dispatch.Extra
	dest.RawQuery = r.URL.RawQuery

	w.Header().Set("Location", dest.String())
	w.WriteHeader(a.statusCode)
	return application.Handled, nil
}
