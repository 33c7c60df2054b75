// Package static implements a reference Application that serves files out
// of a directory on disk, declining any request it cannot satisfy so a
// less-specific mount gets a chance to handle it. It grounds end-to-end
// scenarios 2 and 3 from spec.md §8.
package static

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/arcmesh/coregate/application"
	"github.com/arcmesh/coregate/circuitbreaker"
	"github.com/arcmesh/coregate/lifecycle"
	"github.com/arcmesh/coregate/metrics"
	"github.com/arcmesh/coregate/routing"
)

// Options is the class-specific configuration for a static application.
type Options struct {
	// Root is the directory files are served from.
	Root string `yaml:"root"`
	// Index is the filename tried when a request resolves to a directory.
	Index string `yaml:"index,omitempty"`
	// OriginCheckURL, if set, is probed through a circuit breaker before
	// serving, modelling a backend-health dependency some static sites
	// front (e.g. a CDN origin check). Optional.
	OriginCheckURL string `yaml:"originCheckURL,omitempty"`
}

// Application serves static files and declines anything it doesn't have,
// letting the RoutingTable fall through to a less-specific mount.
type Application struct {
	name    string
	root    string
	index   string
	breaker *circuitbreaker.Breaker
	probe   func() error
}

// NewFactory returns an application.Factory for class "static". m supplies
// the Prometheus registry the optional origin-check circuit breaker
// registers its gauges on.
func NewFactory(m *metrics.Metrics, logger *zap.Logger) application.Factory {
	return func(name string, rawOptions []byte, parent *lifecycle.ControlContext) (application.Application, error) {
		var opts Options
		if err := yaml.Unmarshal(rawOptions, &opts); err != nil {
			return nil, fmt.Errorf("static %q: decode options: %w", name, err)
		}
		if opts.Root == "" {
			return nil, fmt.Errorf("static %q: root is required", name)
		}
		abs, err := filepath.Abs(opts.Root)
		if err != nil {
			return nil, fmt.Errorf("static %q: resolve root %q: %w", name, opts.Root, err)
		}
		index := opts.Index
		if index == "" {
			index = "index.html"
		}

		a := &Application{name: name, root: abs, index: index}

		if opts.OriginCheckURL != "" {
			cfg := circuitbreaker.Config{
				Name:             "static-origin-" + name,
				MaxRequests:      1,
				Interval:         60 * time.Second,
				Timeout:          30 * time.Second,
				FailureThreshold: 3,
			}
			var registry *prometheus.Registry
			if m != nil {
				registry = m.Registry()
			}
			b, err := circuitbreaker.New(cfg, logger, registry)
			if err != nil {
				return nil, fmt.Errorf("static %q: origin breaker: %w", name, err)
			}
			a.breaker = b
			a.probe = originProbe(opts.OriginCheckURL)
		}

		return a, nil
	}
}

// originProbe builds the function a circuit breaker wraps to decide
// whether the configured origin is healthy enough to keep serving from.
// A token-bucket limiter caps how often the probe actually hits the
// network, independent of how often Handle is called, so a burst of
// concurrent requests against a half-open breaker doesn't itself become a
// thundering herd against the origin.
func originProbe(url string) func() error {
	client := http.Client{Timeout: 3 * time.Second}
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	return func() error {
		if !limiter.Allow() {
			return nil
		}
		resp, err := client.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("origin check %s returned %d", url, resp.StatusCode)
		}
		return nil
	}
}

// ImplInit verifies the root directory exists and is readable.
func (a *Application) ImplInit(ctx context.Context, isReload bool) error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("static %q: stat root %q: %w", a.name, a.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("static %q: root %q is not a directory", a.name, a.root)
	}
	return nil
}

// ImplStart is a no-op; static has no background work.
func (a *Application) ImplStart(ctx context.Context, isReload bool) error { return nil }

// ImplStop is a no-op.
func (a *Application) ImplStop(ctx context.Context, willReload bool) error { return nil }

// Handle serves dispatch.Extra relative to a.root, declining on any path
// that doesn't resolve to a regular, readable file within the root.
func (a *Application) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, dispatch routing.Dispatch) (application.Outcome, error) {
	if a.breaker != nil {
		if err := a.breaker.Execute(a.probe); err != nil {
			return application.Declined, nil
		}
	}

	rel := strings.TrimPrefix(dispatch.Extra, "/")
	clean := path.Clean("/" + rel)
	full := filepath.Join(a.root, filepath.FromSlash(clean))

	if !strings.HasPrefix(full, a.root) {
		return application.Declined, nil
	}

	info, err := os.Stat(full)
	if err != nil {
		return application.Declined, nil
	}
	if info.IsDir() {
		full = filepath.Join(full, a.index)
		info, err = os.Stat(full)
		if err != nil {
			return application.Declined, nil
		}
	}
	if !info.Mode().IsRegular() {
		return application.Declined, nil
	}

	f, err := os.Open(full)
	if err != nil {
		return application.Declined, nil
	}
	defer f.Close()

	http.ServeContent(w, r, full, info.ModTime(), f)
	return application.Handled, nil
}
