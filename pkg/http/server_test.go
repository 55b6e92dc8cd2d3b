package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routes func(e *echo.Echo)

func (r routes) RegisterRoutes(e *echo.Echo) { r(e) }

func TestServer_RecoversPanicsAndServesMetrics(t *testing.T) {
	s := NewServer(nil, []Handler{routes(func(e *echo.Echo) {
		e.GET("/boom", func(echo.Context) error { panic("nil model") })
		e.GET("/ok", func(c echo.Context) error { return SuccessResponse(c, "fine") })
	}), nil})

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "finsense_http_requests_total"))
}

func TestServer_CORSPreflight(t *testing.T) {
	s := NewServer(nil, nil, WithMetrics(false), WithCORS(true))
	req := httptest.NewRequest(http.MethodOptions, "/api/sentiment", nil)
	req.Header.Set(echo.HeaderOrigin, "http://dashboard.local")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestServer_Addr(t *testing.T) {
	s := NewServer(nil, nil, WithHost("127.0.0.1"), WithPort(9090), WithMetrics(false))
	assert.Equal(t, "127.0.0.1:9090", s.Addr())
}
