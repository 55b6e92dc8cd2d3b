package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "EURUSD", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(WithRetries(2, time.Millisecond))
	var out struct {
		OK bool `json:"ok"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL,
		QueryParams: map[string][]string{"symbol": {"EURUSD"}},
	}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewClient(WithRetries(3, time.Millisecond)).SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type sampleRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	Days   int    `query:"days" default:"7" validate:"gte=1,lte=365"`
}

func TestReadAndValidateRequest(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?symbol=EURUSD", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	in := &sampleRequest{}
	require.Nil(t, ReadAndValidateRequest(c, in))
	assert.Equal(t, 7, in.Days)

	req = httptest.NewRequest(http.MethodGet, "/?days=900", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	verr := ReadAndValidateRequest(c, &sampleRequest{})
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	byField := make(map[string]ValidationError, len(errs))
	for _, ve := range errs {
		byField[ve.Field] = ve
	}
	require.Len(t, byField, 2)
	assert.Equal(t, "ERR_REQUIRED", byField["symbol"].Code)
	assert.Equal(t, "ERR_LTE", byField["days"].Code)
	assert.Equal(t, "days must be at most 365", byField["days"].Message)
	assert.Equal(t, "365", byField["days"].Params["max"])
}

func TestAppErrorResponse_UsesStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, UnprocessableError("too few rows")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusUnprocessableEntity, body.Status)
	assert.True(t, strings.Contains(rec.Body.String(), "ERR_UNPROCESSABLE"))
}

func TestAppErrorResponse_HidesPlainErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, errors.New("dial tcp 10.0.0.7:9000: refused")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.7")
}

func TestAppError_Format(t *testing.T) {
	cause := errors.New("bars: 120")
	err := UnprocessableError("need %d bars", 300).WithField("bars").WithError(cause)
	assert.Equal(t, "need 300 bars: bars: 120", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "bars", err.Field)
}
