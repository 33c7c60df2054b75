package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadValidConfig(t *testing.T) {
	yamlConfig := `
drain_timeout: 45s

hosts:
  - name: main
    hostnames: ["example.com", "*.example.com"]
    selfSigned: true

services:
  - name: frontdoor
    class: rate-limiter
    rate-limiter:
      requests:
        maxBurstSize: 20
        flowRate: 5
        timeUnit: second
        maxQueueSize: 100

applications:
  - name: redirector
    class: redirect
    options:
      target: https://milk.com/boop/

endpoints:
  - endpoint:
      interface: 0.0.0.0
      port: 8080
      protocol: http
    mounts:
      - application: redirector
        at: "//*/"
    services:
      rateLimiter: frontdoor
`

	cfg, err := Load(strings.NewReader(yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.DrainTimeout)
	require.Len(t, cfg.Hosts, 1)
	assert.Equal(t, []string{"example.com", "*.example.com"}, cfg.Hosts[0].Hostnames)
	require.Len(t, cfg.Services, 1)
	require.NotNil(t, cfg.Services[0].RateLimiter.Requests)
	assert.Equal(t, 5.0, cfg.Services[0].RateLimiter.Requests.FlowRate)
	require.Len(t, cfg.Applications, 1)
	assert.Equal(t, "redirect", cfg.Applications[0].Class)
	require.Len(t, cfg.Endpoints, 1)
	assert.Equal(t, 8080, cfg.Endpoints[0].Endpoint.Port)
	assert.Equal(t, "frontdoor", cfg.Endpoints[0].Services.RateLimiter)
}

func TestLoadInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   string
	}{
		{
			name: "invalid port",
			config: `
endpoints:
  - endpoint:
      port: -1
      protocol: http
`,
			want: "invalid port",
		},
		{
			name: "invalid protocol",
			config: `
endpoints:
  - endpoint:
      port: 8080
      protocol: gopher
`,
			want: "invalid protocol",
		},
		{
			name: "mount references unknown application",
			config: `
endpoints:
  - endpoint:
      port: 8080
      protocol: http
    mounts:
      - application: ghost
        at: "//*/"
`,
			want: "unknown application",
		},
		{
			name: "duplicate mount",
			config: `
applications:
  - name: a
    class: redirect
endpoints:
  - endpoint:
      port: 8080
      protocol: http
    mounts:
      - application: a
        at: "//*/"
      - application: a
        at: "//*/"
`,
			want: "duplicate mount",
		},
		{
			name: "endpoint references unknown rate limiter",
			config: `
endpoints:
  - endpoint:
      port: 8080
      protocol: http
    services:
      rateLimiter: ghost
`,
			want: "unknown service",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.config))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.DrainTimeout)
	require.Len(t, cfg.Endpoints, 1)
	assert.Equal(t, 8080, cfg.Endpoints[0].Endpoint.Port)
	assert.Equal(t, "http", cfg.Endpoints[0].Endpoint.Protocol)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("COREGATE_TEST_HOST", "override.example.com")

	yamlConfig := `
hosts:
  - name: main
    hostnames: ["${COREGATE_TEST_HOST}"]
    selfSigned: true
endpoints:
  - endpoint:
      port: ${COREGATE_TEST_PORT:-8080}
      protocol: http
`
	cfg, err := Load(strings.NewReader(yamlConfig))
	require.NoError(t, err)
	assert.Equal(t, []string{"override.example.com"}, cfg.Hosts[0].Hostnames)
	assert.Equal(t, 8080, cfg.Endpoints[0].Endpoint.Port)
}
