package registry

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/arcmesh/coregate/application"
	"github.com/arcmesh/coregate/config"
	"github.com/arcmesh/coregate/endpoint"
	"github.com/arcmesh/coregate/lifecycle"
	"github.com/arcmesh/coregate/metrics"
	"github.com/arcmesh/coregate/ratelimit"
	"github.com/arcmesh/coregate/requestlog"
	"github.com/arcmesh/coregate/routing"
	"github.com/arcmesh/coregate/tlshost"
)

// Build assembles a validated config.Config into a lifecycle.ComponentTree.
// Host TLS parameters and named services (rate limiters, request loggers)
// are constructed first and handed to the endpoints; they are not
// supervised components. The tree gets one layer for applications, one for
// endpoints, and, when configured, a last layer for the memory monitor.
func Build(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger, factories FactoryMap, problems *lifecycle.UncaughtProblemHandler) (*lifecycle.ComponentTree, error) {
	root := &lifecycle.ControlContext{}

	hostParams, err := buildHostParameters(cfg.Hosts)
	if err != nil {
		return nil, err
	}

	rateLimiters, requestLoggers, err := buildServices(cfg.Services, m)
	if err != nil {
		return nil, err
	}

	tree := lifecycle.NewComponentTree(logger)

	apps := make(map[string]application.Application, len(cfg.Applications))
	appSupervisors := make([]*lifecycle.Supervisor, 0, len(cfg.Applications))
	for _, ac := range cfg.Applications {
		app, err := factories.Build(ac, root)
		if err != nil {
			return nil, err
		}
		apps[ac.Name] = app
		appSupervisors = append(appSupervisors, lifecycle.NewSupervisor("application."+ac.Name, root, logger, app))
	}

	endpointSupervisors := make([]*lifecycle.Supervisor, 0, len(cfg.Endpoints))
	for _, ec := range cfg.Endpoints {
		ep, err := buildEndpoint(ec, cfg.DrainTimeout, apps, rateLimiters, requestLoggers, hostParams, m, logger)
		if err != nil {
			return nil, err
		}
		ep.SetProblems(problems)
		ep.SetEvents(tree.Events())
		name := ec.Endpoint.Interface
		endpointSupervisors = append(endpointSupervisors, lifecycle.NewSupervisor("endpoint."+name, root, logger, ep))
	}

	tree.AddLayer(appSupervisors...)
	tree.AddLayer(endpointSupervisors...)

	if cfg.MemoryMonitor != nil {
		mm := lifecycle.NewMemoryMonitor(lifecycle.MemoryMonitorConfig{
			HeapLimitBytes: cfg.MemoryMonitor.MaxHeapBytes,
			RSSLimitBytes:  cfg.MemoryMonitor.MaxRSSBytes,
			CheckPeriod:    cfg.MemoryMonitor.CheckPeriod,
			GracePeriod:    cfg.MemoryMonitor.GracePeriod,
			ExitHook:       func() { os.Exit(1) },
			Metrics:        m,
		}, logger)
		tree.AddLayer(lifecycle.NewSupervisor("memory-monitor", root, logger, mm))
	}

	return tree, nil
}

func buildHostParameters(hosts []config.HostConfig) (tlshost.HostParameters, error) {
	if len(hosts) == 0 {
		return nil, nil
	}
	hp := tlshost.NewFileHostParameters()
	for _, h := range hosts {
		var cert *tls.Certificate
		var err error
		switch {
		case h.SelfSigned:
			primary := h.Name
			if len(h.Hostnames) > 0 {
				primary = h.Hostnames[0]
			}
			cert, err = tlshost.SelfSigned(primary)
		default:
			certPEM, rerr := os.ReadFile(h.Certificate)
			if rerr != nil {
				return nil, fmt.Errorf("registry: host %q: read certificate: %w", h.Name, rerr)
			}
			keyPEM, rerr := os.ReadFile(h.PrivateKey)
			if rerr != nil {
				return nil, fmt.Errorf("registry: host %q: read private key: %w", h.Name, rerr)
			}
			cert, err = tlshost.LoadKeyPair(certPEM, keyPEM)
		}
		if err != nil {
			return nil, fmt.Errorf("registry: host %q: %w", h.Name, err)
		}
		if err := hp.AddHost(h.Hostnames, cert); err != nil {
			return nil, fmt.Errorf("registry: host %q: %w", h.Name, err)
		}
	}
	return hp, nil
}

func buildServices(services []config.ServiceConfig, m *metrics.Metrics) (map[string]*ratelimit.RateLimiter, map[string]requestlog.Sink, error) {
	rateLimiters := make(map[string]*ratelimit.RateLimiter)
	requestLoggers := make(map[string]requestlog.Sink)

	for _, sc := range services {
		if sc.RateLimiter != nil {
			spec := ratelimit.Spec{
				Name:        sc.Name,
				Connections: toBucketSpec(sc.RateLimiter.Connections),
				Requests:    toBucketSpec(sc.RateLimiter.Requests),
				Data:        toBucketSpec(sc.RateLimiter.Data),
			}
			rl, err := ratelimit.NewRateLimiter(spec, m, nil)
			if err != nil {
				return nil, nil, fmt.Errorf("registry: service %q: %w", sc.Name, err)
			}
			rateLimiters[sc.Name] = rl
		}
		if sc.RequestLogger != nil {
			sink, err := requestlog.NewFileSink(sc.RequestLogger.Directory, sc.RequestLogger.BaseName)
			if err != nil {
				return nil, nil, fmt.Errorf("registry: service %q: %w", sc.Name, err)
			}
			requestLoggers[sc.Name] = sink
		}
	}
	return rateLimiters, requestLoggers, nil
}

func toBucketSpec(b *config.BucketConfig) *ratelimit.BucketSpec {
	if b == nil {
		return nil
	}
	return &ratelimit.BucketSpec{
		MaxBurstSize:      b.MaxBurstSize,
		FlowRate:          b.FlowRate,
		TimeUnit:          b.TimeUnit,
		MaxQueueSize:      b.MaxQueueSize,
		MaxQueueGrantSize: b.MaxQueueGrantSize,
	}
}

func buildEndpoint(
	ec config.EndpointConfig,
	drainTimeout time.Duration,
	apps map[string]application.Application,
	rateLimiters map[string]*ratelimit.RateLimiter,
	requestLoggers map[string]requestlog.Sink,
	hostParams tlshost.HostParameters,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*endpoint.Endpoint, error) {
	rt := routing.NewRoutingTable[application.Application]()
	for _, mc := range ec.Mounts {
		app, ok := apps[mc.Application]
		if !ok {
			return nil, fmt.Errorf("registry: mount references unknown application %q", mc.Application)
		}
		mount, err := routing.ParseMount(mc.At)
		if err != nil {
			return nil, fmt.Errorf("registry: mount %q: %w", mc.At, err)
		}
		if err := rt.Insert(mount.Host, mount.Path, app); err != nil {
			return nil, fmt.Errorf("registry: mount %q: %w", mc.At, err)
		}
	}

	var rl *ratelimit.RateLimiter
	if ec.Services.RateLimiter != "" {
		var ok bool
		rl, ok = rateLimiters[ec.Services.RateLimiter]
		if !ok {
			return nil, fmt.Errorf("registry: endpoint references unknown rate limiter %q", ec.Services.RateLimiter)
		}
	}

	var logSink requestlog.Sink
	if ec.Services.RequestLogger != "" {
		var ok bool
		logSink, ok = requestLoggers[ec.Services.RequestLogger]
		if !ok {
			return nil, fmt.Errorf("registry: endpoint references unknown request logger %q", ec.Services.RequestLogger)
		}
	}

	cfg := endpoint.Config{
		Name:         fmt.Sprintf("%s:%d", ec.Endpoint.Interface, ec.Endpoint.Port),
		Interface:    ec.Endpoint.Interface,
		Port:         ec.Endpoint.Port,
		Protocol:     endpoint.Protocol(ec.Endpoint.Protocol),
		Hostnames:    ec.Endpoint.Hostnames,
		EnableHTTP3:  ec.Endpoint.EnableHTTP3,
		DrainTimeout: drainTimeout,
	}

	return endpoint.New(cfg, rt, rl, logSink, hostParams, m, logger), nil
}
