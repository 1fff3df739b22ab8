package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
	e.GET("/missing", func(c echo.Context) error { return AppErrorResponse(c, NotFoundError("nothing here")) })
}

func TestServerServesRoutesAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewServer(pingHandler{}, WithHost("127.0.0.1"), WithPort(0), WithMetrics("/metrics", reg))
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop(context.Background()) }()

	base := "http://" + s.Addr()
	get := func(path string) (int, string) {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	code, body := get("/ping")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":200,"message":"OK","data":"pong"}`, body)

	code, body = get("/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, `"code":"ERR_NOT_FOUND"`)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "portdelta_http_requests_total")
}

func TestServerStartFailsOnBusyPort(t *testing.T) {
	first := NewServer(nil, WithHost("127.0.0.1"), WithPort(0), WithMetrics("", prometheus.NewRegistry()))
	require.NoError(t, first.Start())
	defer func() { _ = first.Stop(context.Background()) }()

	_, p, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	second := NewServer(nil, WithHost("127.0.0.1"), WithPort(port), WithMetrics("", prometheus.NewRegistry()))
	assert.Error(t, second.Start())
}
