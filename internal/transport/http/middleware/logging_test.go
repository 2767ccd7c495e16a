package httpmw

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cwrk-planet/tripchat/internal/logger"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestRequestLogger(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	var buf bytes.Buffer
	logger.Init(logger.Config{Env: logger.EnvProd, Backend: logger.BackendStd, Level: slog.LevelDebug, Out: &buf})

	var inner map[string]any
	h := middleware.RequestID(RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trips/t1/messages", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &inner))

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &summary))

	assert.Equal(t, "inside", inner["msg"])
	assert.NotEmpty(t, inner["req_id"])
	assert.NotEmpty(t, inner["trace_id"])

	assert.Equal(t, "http_request", summary["msg"])
	assert.Equal(t, "WARN", summary["level"])
	assert.EqualValues(t, http.StatusTeapot, summary["status"])
	assert.Equal(t, "/trips/t1/messages", summary["path"])
	assert.Equal(t, inner["trace_id"], summary["trace_id"])
}
