package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/metrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/testutil"
)

func TestRecoveryWritesHandlerResponse(t *testing.T) {
	logger, buf := testutil.BufferLogger()
	before := promtest.ToFloat64(metrics.PanicsTotal)

	h := Recovery(logger, func(w http.ResponseWriter, _ *http.Request, _ any) {
		w.WriteHeader(http.StatusTeapot)
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.PanicsTotal))
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "/api/v1/status")
}

func TestRecoveryReraisesAbort(t *testing.T) {
	logger, _ := testutil.BufferLogger()
	h := Recovery(logger, func(http.ResponseWriter, *http.Request, any) {
		t.Fatal("handler must not run for ErrAbortHandler")
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLoggingCapturesStatus(t *testing.T) {
	logger, buf := testutil.BufferLogger()

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/groups/1/reconcile", nil))

	require.Equal(t, http.StatusBadGateway, rr.Code)
	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"status":502`)
	assert.Contains(t, out, `"size":13`)
}

func TestResponseWriterFlushes(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &ResponseWriter{ResponseWriter: rr, status: http.StatusOK}

	rw.Flush()

	assert.True(t, rr.Flushed)
	assert.Equal(t, http.StatusOK, rw.Status())
}
