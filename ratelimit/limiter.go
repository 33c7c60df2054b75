package ratelimit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arcmesh/coregate/metrics"
)

// BucketSpec is the configuration surface for a single named bucket, as
// consumed from `services[*].rate-limiter.{connections,requests,data}` in
// the configuration tree.
type BucketSpec struct {
	MaxBurstSize      float64
	FlowRate          float64
	TimeUnit          string
	MaxQueueSize      float64
	MaxQueueGrantSize float64
}

// Spec is the full configuration for a named RateLimiter service: up to
// three bucket specs, any of which may be nil to leave that dimension
// unlimited.
type Spec struct {
	Name        string
	Connections *BucketSpec
	Requests    *BucketSpec
	Data        *BucketSpec
}

// RateLimiter composes up to three TokenBuckets (connections, requests,
// data) into the single service an Endpoint consults on admission and
// wraps its response stream with.
type RateLimiter struct {
	Name        string
	Connections *TokenBucket
	Requests    *TokenBucket
	Data        *TokenBucket

	metrics *metrics.Metrics
}

func buildBucket(spec *BucketSpec, clock Clock) (*TokenBucket, error) {
	if spec == nil {
		return nil, nil
	}
	flowRate, err := NormalizeFlowRate(spec.FlowRate, spec.TimeUnit)
	if err != nil {
		return nil, err
	}
	return NewTokenBucket(Config{
		MaxBurstSize:      spec.MaxBurstSize,
		FlowRate:          flowRate,
		MaxQueueGrantSize: spec.MaxQueueGrantSize,
		MaxQueueSize:      spec.MaxQueueSize,
		Clock:             clock,
	})
}

// NewRateLimiter builds a RateLimiter from a Spec. m may be nil in tests;
// in production it is the shared Prometheus metrics instance so that
// rate-limit denials show up in `coregate_rate_limit_hits_total`.
func NewRateLimiter(spec Spec, m *metrics.Metrics, clock Clock) (*RateLimiter, error) {
	conns, err := buildBucket(spec.Connections, clock)
	if err != nil {
		return nil, fmt.Errorf("ratelimit %q: connections bucket: %w", spec.Name, err)
	}
	reqs, err := buildBucket(spec.Requests, clock)
	if err != nil {
		return nil, fmt.Errorf("ratelimit %q: requests bucket: %w", spec.Name, err)
	}
	data, err := buildBucket(spec.Data, clock)
	if err != nil {
		return nil, fmt.Errorf("ratelimit %q: data bucket: %w", spec.Name, err)
	}
	return &RateLimiter{
		Name:        spec.Name,
		Connections: conns,
		Requests:    reqs,
		Data:        data,
		metrics:     m,
	}, nil
}

// NewConnection admits (or denies) a new connection. A RateLimiter with no
// configured connections bucket always admits.
func (rl *RateLimiter) NewConnection(ctx context.Context, logger *zap.Logger) bool {
	if rl.Connections == nil {
		return true
	}
	grant := rl.Connections.RequestGrant(ctx, 1)
	rl.sample("connections", rl.Connections)
	if !grant.Done {
		rl.recordDenied("connection", logger)
		return false
	}
	return true
}

// NewRequest admits (or denies) a new request on an already-admitted
// connection. A RateLimiter with no configured requests bucket always admits.
func (rl *RateLimiter) NewRequest(ctx context.Context, logger *zap.Logger) bool {
	if rl.Requests == nil {
		return true
	}
	grant := rl.Requests.RequestGrant(ctx, 1)
	rl.sample("requests", rl.Requests)
	if !grant.Done {
		rl.recordDenied("request", logger)
		return false
	}
	return true
}

func (rl *RateLimiter) recordDenied(kind string, logger *zap.Logger) {
	if logger != nil {
		logger.Debug("rate limit denied", zap.String("limiter", rl.Name), zap.String("kind", kind))
	}
	if rl.metrics != nil {
		rl.metrics.RateLimitHits.WithLabelValues(rl.Name).Inc()
	}
}

// sample publishes bucket's available tokens and queue depth under the
// given dimension name ("connections", "requests", "data"). Called after
// every grant so the gauges track the bucket's actual state rather than
// needing a separate polling goroutine.
func (rl *RateLimiter) sample(bucket string, b *TokenBucket) {
	if rl.metrics == nil || b == nil {
		return
	}
	rl.metrics.BucketAvailableTokens.WithLabelValues(rl.Name, bucket).Set(b.Available())
	rl.metrics.BucketQueueDepth.WithLabelValues(rl.Name, bucket).Set(float64(b.QueueDepth()))
}

// Stop shuts down every configured bucket, denying all outstanding waits.
// Called from Endpoint.ImplStop so in-flight writers unblock during drain.
func (rl *RateLimiter) Stop() {
	if rl.Connections != nil {
		rl.Connections.DenyAllRequests()
	}
	if rl.Requests != nil {
		rl.Requests.DenyAllRequests()
	}
	if rl.Data != nil {
		rl.Data.DenyAllRequests()
	}
}
