package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(nil, zap.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadyz(t *testing.T) {
	ok := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("ffmpeg not found") }

	rec := httptest.NewRecorder()
	newMux([]ReadinessCheck{ok}, zap.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newMux([]ReadinessCheck{ok, broken}, zap.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "ffmpeg not found")
}

func TestMetricsEndpointExposesPipelineCounters(t *testing.T) {
	FramesRenderedTotal.Add(0)
	rec := httptest.NewRecorder()
	newMux(nil, zap.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stick_frames_rendered_total")
}
