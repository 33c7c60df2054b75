package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBreaker(t *testing.T, cfg Config) *Breaker {
	t.Helper()
	cfg.TestMode = true
	b, err := New(cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	return b
}

func TestNewRejectsEmptyName(t *testing.T) {
	_, err := New(Config{}, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestBreakerStartsClosed(t *testing.T) {
	b := newTestBreaker(t, Config{Name: "svc", FailureThreshold: 2, Timeout: 50 * time.Millisecond})
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.NoError(t, b.Execute(func() error { return nil }))
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := newTestBreaker(t, Config{Name: "svc", FailureThreshold: 2, Timeout: 50 * time.Millisecond})

	assert.Error(t, b.Execute(func() error { return errors.New("boom") }))
	assert.Equal(t, gobreaker.StateClosed, b.State())

	assert.Error(t, b.Execute(func() error { return errors.New("boom") }))
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerRecoversAfterTimeout(t *testing.T) {
	b := newTestBreaker(t, Config{Name: "svc", FailureThreshold: 1, Timeout: 30 * time.Millisecond})

	assert.Error(t, b.Execute(func() error { return errors.New("boom") }))
	assert.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(50 * time.Millisecond)

	assert.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
