// Package config provides configuration management for the coregate
// server core. It decodes the `hosts`, `services`, `applications`, and
// `endpoints` sections described by the core's external interface, with
// environment-variable expansion and validation, and hands off a
// validated tree for the root component to build a ComponentTree from.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete, validated configuration tree the core consumes.
type Config struct {
	Hosts        []HostConfig        `yaml:"hosts"`
	Services     []ServiceConfig     `yaml:"services"`
	Applications []ApplicationConfig `yaml:"applications"`
	Endpoints    []EndpointConfig    `yaml:"endpoints"`

	// DrainTimeout bounds how long Endpoint.Stop waits for in-flight
	// requests to finish before forcibly closing remaining sockets.
	// Implementer's choice per spec.md §9 Open Question; default 30s.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// MemoryMonitor configures the optional process-wide memory watchdog.
	MemoryMonitor *MemoryMonitorConfig `yaml:"memory_monitor,omitempty"`

	// TestMode skips filesystem-backed validation (TLS file existence,
	// etc.) so unit tests can exercise Load with synthetic paths.
	TestMode bool `yaml:"-"`
}

// HostConfig describes one `hosts[*]` record: a set of hostname patterns
// and the TLS material (or self-signed instruction) to serve on them.
type HostConfig struct {
	Name        string   `yaml:"name"`
	Hostnames   []string `yaml:"hostnames"`
	Certificate string   `yaml:"certificate"`
	PrivateKey  string   `yaml:"privateKey"`
	SelfSigned  bool     `yaml:"selfSigned"`
}

// ServiceConfig describes one `services[*]` record: a named rate-limiter
// and/or request-logger, selected by Class.
type ServiceConfig struct {
	Name          string               `yaml:"name"`
	Class         string               `yaml:"class"`
	RateLimiter   *RateLimiterConfig   `yaml:"rate-limiter,omitempty"`
	RequestLogger *RequestLoggerConfig `yaml:"request-logger,omitempty"`
}

// RateLimiterConfig is `services[*].rate-limiter`: up to three bucket specs.
type RateLimiterConfig struct {
	Connections *BucketConfig `yaml:"connections,omitempty"`
	Requests    *BucketConfig `yaml:"requests,omitempty"`
	Data        *BucketConfig `yaml:"data,omitempty"`
}

// BucketConfig is one TokenBucket's configuration surface, as consumed
// from the config tree and handed to ratelimit.BucketSpec.
type BucketConfig struct {
	MaxBurstSize      float64 `yaml:"maxBurstSize"`
	FlowRate          float64 `yaml:"flowRate"`
	TimeUnit          string  `yaml:"timeUnit"`
	MaxQueueSize      float64 `yaml:"maxQueueSize"`
	MaxQueueGrantSize float64 `yaml:"maxQueueGrantSize,omitempty"`
}

// RequestLoggerConfig is `services[*].request-logger`.
type RequestLoggerConfig struct {
	Directory string `yaml:"directory"`
	BaseName  string `yaml:"baseName"`
}

// ApplicationConfig is one `applications[*]` record: a name, a class
// selecting a registered factory, and class-specific options carried
// through as a raw YAML node for the factory to decode itself.
type ApplicationConfig struct {
	Name    string    `yaml:"name"`
	Class   string    `yaml:"class"`
	Options yaml.Node `yaml:"options"`
}

// EndpointConfig is one `endpoints[*]` record: a listener plus its mounts
// and service references.
type EndpointConfig struct {
	Endpoint EndpointListenConfig  `yaml:"endpoint"`
	Mounts   []MountConfig         `yaml:"mounts"`
	Services EndpointServicesConfig `yaml:"services"`
}

// EndpointListenConfig is `endpoints[*].endpoint`.
type EndpointListenConfig struct {
	Hostnames []string `yaml:"hostnames"`
	Interface string   `yaml:"interface"`
	Port      int      `yaml:"port"`
	Protocol  string   `yaml:"protocol"` // http | https | http2
	// EnableHTTP3 additionally binds a UDP/QUIC listener alongside the TCP
	// one. Only meaningful when Protocol is "http2".
	EnableHTTP3 bool `yaml:"enableHttp3,omitempty"`
}

// MountConfig is one `endpoints[*].mounts[*]` record.
type MountConfig struct {
	Application string `yaml:"application"`
	At          string `yaml:"at"`
}

// EndpointServicesConfig is `endpoints[*].services`: references by name
// into the `services` section.
type EndpointServicesConfig struct {
	RateLimiter   string `yaml:"rateLimiter,omitempty"`
	RequestLogger string `yaml:"requestLogger,omitempty"`
}

// MemoryMonitorConfig is the optional `memory_monitor` record.
type MemoryMonitorConfig struct {
	MaxHeapBytes uint64        `yaml:"maxHeapBytes"`
	MaxRSSBytes  uint64        `yaml:"maxRssBytes"`
	CheckPeriod  time.Duration `yaml:"checkPeriod"`
	GracePeriod  time.Duration `yaml:"gracePeriod"`
}

// DefaultConfig returns a minimal but runnable configuration: a single
// plaintext HTTP endpoint with no mounts, no services, and the memory
// monitor disabled. Callers layer their own YAML on top via Load.
func DefaultConfig() *Config {
	return &Config{
		DrainTimeout: 30 * time.Second,
		Endpoints: []EndpointConfig{
			{
				Endpoint: EndpointListenConfig{
					Interface: "0.0.0.0",
					Port:      8080,
					Protocol:  "http",
				},
			},
		},
	}
}

// LoadFile loads configuration from a YAML file on disk.
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// expandEnvVars resolves `${VAR}` and `${VAR:-default}` references in a
// raw config document before it is parsed as YAML. Expansion is applied
// repeatedly so a default value may itself reference another variable.
func expandEnvVars(s string) (string, error) {
	result := os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			envKey := key[:i]
			defaultValue := key[i+2:]
			if val := os.Getenv(envKey); val != "" {
				return val
			}
			return defaultValue
		}
		return os.Getenv(key)
	})

	prev := ""
	for prev != result {
		prev = result
		result = os.Expand(result, os.Getenv)
	}
	return result, nil
}

// Load decodes configuration from an io.Reader: read, expand environment
// variables, decode YAML over DefaultConfig, then Validate.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Endpoints = nil // DefaultConfig's sample endpoint is dev-only; a real document supplies its own.

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 30 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the decoded tree for the configuration errors described
// in the core's error taxonomy: malformed records, dangling references,
// and duplicate mounts are all fatal at startup.
func (c *Config) Validate() error {
	if c.DrainTimeout < 10*time.Second || c.DrainTimeout > 60*time.Second {
		return fmt.Errorf("drain_timeout %v out of allowed range [10s, 60s]", c.DrainTimeout)
	}

	hostNames := make(map[string]bool, len(c.Hosts))
	for i, h := range c.Hosts {
		if h.Name == "" {
			return fmt.Errorf("hosts[%d]: empty name", i)
		}
		if hostNames[h.Name] {
			return fmt.Errorf("hosts[%d]: duplicate host name %q", i, h.Name)
		}
		hostNames[h.Name] = true
		if len(h.Hostnames) == 0 {
			return fmt.Errorf("hosts[%d] %q: hostnames must be non-empty", i, h.Name)
		}
		if !h.SelfSigned && !c.TestMode {
			if h.Certificate == "" {
				return fmt.Errorf("hosts[%d] %q: certificate required unless selfSigned is true", i, h.Name)
			}
			if h.PrivateKey == "" {
				return fmt.Errorf("hosts[%d] %q: privateKey required unless selfSigned is true", i, h.Name)
			}
		}
	}

	serviceNames := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		if s.Name == "" {
			return fmt.Errorf("services[%d]: empty name", i)
		}
		if serviceNames[s.Name] {
			return fmt.Errorf("services[%d]: duplicate service name %q", i, s.Name)
		}
		serviceNames[s.Name] = true
		if rl := s.RateLimiter; rl != nil {
			for _, b := range []*BucketConfig{rl.Connections, rl.Requests, rl.Data} {
				if b == nil {
					continue
				}
				if b.FlowRate <= 0 {
					return fmt.Errorf("services[%d] %q: rate-limiter bucket flowRate must be positive", i, s.Name)
				}
				if b.MaxBurstSize <= 0 {
					return fmt.Errorf("services[%d] %q: rate-limiter bucket maxBurstSize must be positive", i, s.Name)
				}
			}
		}
	}

	appNames := make(map[string]bool, len(c.Applications))
	for i, a := range c.Applications {
		if a.Name == "" {
			return fmt.Errorf("applications[%d]: empty name", i)
		}
		if a.Class == "" {
			return fmt.Errorf("applications[%d] %q: empty class", i, a.Name)
		}
		if appNames[a.Name] {
			return fmt.Errorf("applications[%d]: duplicate application name %q", i, a.Name)
		}
		appNames[a.Name] = true
	}

	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}

	type mountKey struct{ host, path string }
	for i, e := range c.Endpoints {
		if e.Endpoint.Port < 1 || e.Endpoint.Port > 65535 {
			return fmt.Errorf("endpoints[%d]: invalid port %d", i, e.Endpoint.Port)
		}
		switch e.Endpoint.Protocol {
		case "http", "https", "http2":
		default:
			return fmt.Errorf("endpoints[%d]: invalid protocol %q (want http|https|http2)", i, e.Endpoint.Protocol)
		}
		if e.Endpoint.EnableHTTP3 && e.Endpoint.Protocol != "http2" {
			return fmt.Errorf("endpoints[%d]: enableHttp3 requires protocol http2", i)
		}
		if e.Services.RateLimiter != "" && !serviceNames[e.Services.RateLimiter] {
			return fmt.Errorf("endpoints[%d]: services.rateLimiter references unknown service %q", i, e.Services.RateLimiter)
		}
		if e.Services.RequestLogger != "" && !serviceNames[e.Services.RequestLogger] {
			return fmt.Errorf("endpoints[%d]: services.requestLogger references unknown service %q", i, e.Services.RequestLogger)
		}

		seen := make(map[mountKey]bool)
		for j, m := range e.Mounts {
			if m.Application == "" {
				return fmt.Errorf("endpoints[%d].mounts[%d]: empty application", i, j)
			}
			if !appNames[m.Application] {
				return fmt.Errorf("endpoints[%d].mounts[%d]: references unknown application %q", i, j, m.Application)
			}
			if m.At == "" {
				return fmt.Errorf("endpoints[%d].mounts[%d]: empty \"at\" pattern", i, j)
			}
			key := mountKey{host: m.At}
			if seen[key] {
				return fmt.Errorf("endpoints[%d].mounts[%d]: duplicate mount %q", i, j, m.At)
			}
			seen[key] = true
		}
	}

	if c.MemoryMonitor != nil {
		if c.MemoryMonitor.CheckPeriod <= 0 {
			return fmt.Errorf("memory_monitor: checkPeriod must be positive")
		}
		if c.MemoryMonitor.GracePeriod <= 0 {
			return fmt.Errorf("memory_monitor: gracePeriod must be positive")
		}
	}

	return nil
}
