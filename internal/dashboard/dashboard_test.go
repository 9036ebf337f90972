package dashboard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CelesteBean/treehacks-anchor/internal/bus"
	_ "github.com/CelesteBean/treehacks-anchor/internal/metrics"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := bus.NewContext()
	t.Cleanup(ctx.Close)
	return New(bus.New(ctx))
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpointExposesPipelineCounters(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "anchor_analyses_total")
}
