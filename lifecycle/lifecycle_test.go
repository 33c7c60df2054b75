package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingComponent struct {
	initN, startN, stopN atomic.Int32
	initErr, startErr, stopErr error
}

func (c *recordingComponent) ImplInit(ctx context.Context, isReload bool) error {
	c.initN.Add(1)
	return c.initErr
}

func (c *recordingComponent) ImplStart(ctx context.Context, isReload bool) error {
	c.startN.Add(1)
	return c.startErr
}

func (c *recordingComponent) ImplStop(ctx context.Context, willReload bool) error {
	c.stopN.Add(1)
	return c.stopErr
}

func TestSupervisorLifecycle(t *testing.T) {
	logger := zap.NewNop()

	t.Run("happy path transitions", func(t *testing.T) {
		impl := &recordingComponent{}
		s := NewSupervisor("svc", nil, logger, impl)
		assert.Equal(t, Uninitialized, s.State())

		require.NoError(t, s.Init(context.Background(), false))
		assert.Equal(t, Initialized, s.State())

		require.NoError(t, s.Start(context.Background(), false))
		assert.Equal(t, Running, s.State())

		require.NoError(t, s.Stop(context.Background(), false))
		assert.Equal(t, Stopped, s.State())

		assert.EqualValues(t, 1, impl.initN.Load())
		assert.EqualValues(t, 1, impl.startN.Load())
		assert.EqualValues(t, 1, impl.stopN.Load())
	})

	t.Run("phases are idempotent", func(t *testing.T) {
		impl := &recordingComponent{}
		s := NewSupervisor("svc", nil, logger, impl)
		require.NoError(t, s.Init(context.Background(), false))
		require.NoError(t, s.Init(context.Background(), false))
		require.NoError(t, s.Start(context.Background(), false))
		require.NoError(t, s.Start(context.Background(), false))
		require.NoError(t, s.Stop(context.Background(), false))
		require.NoError(t, s.Stop(context.Background(), false))

		assert.EqualValues(t, 1, impl.initN.Load())
		assert.EqualValues(t, 1, impl.startN.Load())
		assert.EqualValues(t, 1, impl.stopN.Load())
	})

	t.Run("start before init is rejected", func(t *testing.T) {
		impl := &recordingComponent{}
		s := NewSupervisor("svc", nil, logger, impl)
		err := s.Start(context.Background(), false)
		assert.Error(t, err)
	})

	t.Run("control context path nests under parent", func(t *testing.T) {
		root := &ControlContext{Name: "root", Logger: logger}
		child := NewSupervisor("child", root, logger, &recordingComponent{})
		assert.Equal(t, "root.child", child.Control().Path())
	})
}

func TestComponentTreeOrdering(t *testing.T) {
	logger := zap.NewNop()
	svc := &recordingComponent{}
	ep := &recordingComponent{}

	tree := NewComponentTree(logger)
	svcSup := NewSupervisor("svc", nil, logger, svc)
	epSup := NewSupervisor("endpoint", nil, logger, ep)
	tree.AddLayer(svcSup)
	tree.AddLayer(epSup)

	require.NoError(t, tree.Init(context.Background(), false))
	require.NoError(t, tree.Start(context.Background(), false))

	assert.Equal(t, Running, svcSup.State())
	assert.Equal(t, Running, epSup.State())

	require.NoError(t, tree.Stop(context.Background(), false))
	assert.Equal(t, Stopped, svcSup.State())
	assert.Equal(t, Stopped, epSup.State())
}

func TestComponentTreeReload(t *testing.T) {
	logger := zap.NewNop()
	first := &recordingComponent{}
	tree := NewComponentTree(logger)
	tree.AddLayer(NewSupervisor("svc", nil, logger, first))
	require.NoError(t, tree.Init(context.Background(), false))
	require.NoError(t, tree.Start(context.Background(), false))

	second := &recordingComponent{}
	next, err := tree.Reload(context.Background(), func() (*ComponentTree, error) {
		rebuilt := NewComponentTree(logger)
		rebuilt.AddLayer(NewSupervisor("svc", nil, logger, second))
		return rebuilt, nil
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, first.stopN.Load())
	assert.EqualValues(t, 1, second.startN.Load())
	require.NoError(t, next.Stop(context.Background(), false))
}

func TestThreadletStopWaitsForMain(t *testing.T) {
	logger := zap.NewNop()
	var ran, stopped atomic.Bool

	th := NewThreadlet("worker", logger, func(h *ThreadletHandle) {
		ran.Store(true)
		<-h.WhenStopRequested()
		time.Sleep(10 * time.Millisecond)
		stopped.Store(true)
	})

	th.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	assert.True(t, ran.Load())

	th.Stop(context.Background())
	assert.True(t, stopped.Load())
}

func TestUncaughtProblemHandlerRecordsAndSnapshots(t *testing.T) {
	logger := zap.NewNop()
	var exited atomic.Bool
	h := NewUncaughtProblemHandler(logger, func() { exited.Store(true) })

	h.Record("worker-1", assert.AnError)
	snap := h.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "worker-1", snap[0].Source)
	assert.False(t, snap[0].Fatal)
	assert.False(t, exited.Load())
}
