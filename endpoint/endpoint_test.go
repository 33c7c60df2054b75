package endpoint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcmesh/coregate/application"
	"github.com/arcmesh/coregate/lifecycle"
	"github.com/arcmesh/coregate/reqcontext"
	"github.com/arcmesh/coregate/routing"
)

type stubApp struct {
	outcome application.Outcome
	err     error
	handled func(w http.ResponseWriter, dispatch routing.Dispatch)
}

func (s *stubApp) ImplInit(ctx context.Context, isReload bool) error  { return nil }
func (s *stubApp) ImplStart(ctx context.Context, isReload bool) error { return nil }
func (s *stubApp) ImplStop(ctx context.Context, willReload bool) error { return nil }

func (s *stubApp) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, dispatch routing.Dispatch) (application.Outcome, error) {
	if s.handled != nil {
		s.handled(w, dispatch)
	}
	return s.outcome, s.err
}

func newTestEndpoint(t *testing.T) (*Endpoint, *routing.RoutingTable[application.Application]) {
	t.Helper()
	rt := routing.NewRoutingTable[application.Application]()
	e := New(Config{Name: "test", Protocol: ProtocolHTTP}, rt, nil, nil, nil, nil, zap.NewNop())
	return e, rt
}

func mustMount(t *testing.T, rt *routing.RoutingTable[application.Application], mount string, app application.Application) {
	t.Helper()
	m, err := routing.ParseMount(mount)
	require.NoError(t, err)
	require.NoError(t, rt.InsertMount(m, app))
}

func TestDispatchMostSpecificMatch(t *testing.T) {
	e, rt := newTestEndpoint(t)
	general := &stubApp{outcome: application.Handled, handled: func(w http.ResponseWriter, d routing.Dispatch) {
		w.Header().Set("X-App", "general")
		w.WriteHeader(http.StatusOK)
	}}
	specific := &stubApp{outcome: application.Handled, handled: func(w http.ResponseWriter, d routing.Dispatch) {
		w.Header().Set("X-App", "specific")
		w.Header().Set("X-Base", d.Base)
		w.Header().Set("X-Extra", d.Extra)
		w.WriteHeader(http.StatusOK)
	}}
	mustMount(t, rt, "//*/", general)
	mustMount(t, rt, "//*/florp/", specific)
	rt.Start()

	r := httptest.NewRequest(http.MethodGet, "http://anything/florp/index.html", nil)
	rec := httptest.NewRecorder()
	reqCtx := reqcontext.NewRequest(reqcontext.NewConnection("1.2.3.4:1", zap.NewNop()), nil)

	e.dispatch(rec, r, reqCtx)

	assert.Equal(t, "specific", rec.Header().Get("X-App"))
	assert.Equal(t, "/florp/", rec.Header().Get("X-Base"))
	assert.Equal(t, "/index.html", rec.Header().Get("X-Extra"))
}

func TestDispatchFallsThroughOnDecline(t *testing.T) {
	e, rt := newTestEndpoint(t)
	general := &stubApp{outcome: application.Handled, handled: func(w http.ResponseWriter, d routing.Dispatch) {
		w.Header().Set("X-App", "general")
		w.WriteHeader(http.StatusOK)
	}}
	specific := &stubApp{outcome: application.Declined}
	mustMount(t, rt, "//*/", general)
	mustMount(t, rt, "//*/florp/", specific)
	rt.Start()

	r := httptest.NewRequest(http.MethodGet, "http://anything/florp/nope", nil)
	rec := httptest.NewRecorder()
	reqCtx := reqcontext.NewRequest(reqcontext.NewConnection("1.2.3.4:1", zap.NewNop()), nil)

	e.dispatch(rec, r, reqCtx)

	assert.Equal(t, "general", rec.Header().Get("X-App"))
}

func TestDispatchNoMatchIs404(t *testing.T) {
	e, rt := newTestEndpoint(t)
	rt.Start()

	r := httptest.NewRequest(http.MethodGet, "http://anything/nope", nil)
	rec := httptest.NewRecorder()
	reqCtx := reqcontext.NewRequest(reqcontext.NewConnection("1.2.3.4:1", zap.NewNop()), nil)

	code := e.dispatch(rec, r, reqCtx)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not-found", code)
}

func TestDispatchApplicationErrorIs500(t *testing.T) {
	e, rt := newTestEndpoint(t)
	boom := &stubApp{err: assertError{"boom"}}
	mustMount(t, rt, "//*/", boom)
	rt.Start()

	r := httptest.NewRequest(http.MethodGet, "http://anything/x", nil)
	rec := httptest.NewRecorder()
	reqCtx := reqcontext.NewRequest(reqcontext.NewConnection("1.2.3.4:1", zap.NewNop()), nil)

	code := e.dispatch(rec, r, reqCtx)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application-error", code)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

var _ lifecycle.Component = (*stubApp)(nil)
