// Package registry turns a validated config.Config into a running
// lifecycle.ComponentTree: the class-as-config pattern from spec.md §9,
// re-architected as a name -> application.Factory map plus a single Build
// function that wires services, applications, and endpoints together in
// dependency order.
package registry

import (
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/arcmesh/coregate/application"
	"github.com/arcmesh/coregate/applications/redirect"
	"github.com/arcmesh/coregate/applications/static"
	"github.com/arcmesh/coregate/config"
	"github.com/arcmesh/coregate/lifecycle"
	"github.com/arcmesh/coregate/metrics"
)

// FactoryMap is a name -> application.Factory registration table. An
// `applications[*].class` field is looked up here to construct the
// concrete Component.
type FactoryMap map[string]application.Factory

// Register adds factory under class. Registering the same class twice
// overwrites the previous factory; callers are expected to populate the
// map once at process start before calling Build.
func (m FactoryMap) Register(class string, factory application.Factory) {
	m[class] = factory
}

// Build constructs an application.Application from cfg using the
// registered factory for cfg.Class, passing its `options` sub-document
// through as raw YAML for the factory to decode into its own config type.
func (m FactoryMap) Build(cfg config.ApplicationConfig, parent *lifecycle.ControlContext) (application.Application, error) {
	factory, ok := m[cfg.Class]
	if !ok {
		return nil, fmt.Errorf("registry: no application factory registered for class %q", cfg.Class)
	}
	raw, err := yaml.Marshal(cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("registry: application %q: marshal options: %w", cfg.Name, err)
	}
	app, err := factory(cfg.Name, raw, parent)
	if err != nil {
		return nil, fmt.Errorf("registry: application %q (class %q): %w", cfg.Name, cfg.Class, err)
	}
	return app, nil
}

// Default returns a FactoryMap pre-populated with the core's reference
// applications ("redirect", "static"). Callers that ship their own
// applications start from this map and Register more.
func Default(m *metrics.Metrics, logger *zap.Logger) FactoryMap {
	factories := make(FactoryMap)
	factories.Register("redirect", redirect.New)
	factories.Register("static", static.NewFactory(m, logger))
	return factories
}
