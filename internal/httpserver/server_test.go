package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/loadlens/internal/model"
	"github.com/tinytelemetry/loadlens/internal/vizcache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *vizcache.Cache, http.Handler) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cache := vizcache.NewCache(vizcache.NewMetrics(reg), nil)
	t.Cleanup(cache.Close)

	srv := NewServer(cache, Options{SessionID: "sess-1", Gatherer: reg})
	srv.startTime = time.Now()
	return srv, cache, srv.Handler()
}

func TestHealthEndpoint(t *testing.T) {
	_, _, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
	if body["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", body["session_id"])
	}
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	_, _, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("health POST status = %d, want 405 or 404", w.Code)
	}
}

func TestCacheEndpoint(t *testing.T) {
	_, cache, r := newTestServer(t)

	params := model.FilterParameters{MetricKind: "CPU", Date: "2024-01-01", Time: "10:00", MaxGroupSize: 50, StabilityThresholdPercent: 0}
	stats := model.NewSlot(model.KindStatistics, "")
	fp := model.FingerprintFor(model.KindStatistics, params)
	cache.Begin(stats, fp, 1)
	if !cache.Put(stats, fp, 1, vizcache.NewPayload([]model.GroupStatistics{}, 8), nil) {
		t.Fatal("Put rejected")
	}

	groupLoad := model.NewSlot(model.KindGroupLoad, "")
	glfp := model.FingerprintFor(model.KindGroupLoad, params)
	cache.Begin(groupLoad, glfp, 2)
	cache.Put(groupLoad, glfp, 2, nil, &model.RemoteRejection{Op: "group-load", StatusCode: 404, Detail: "no data"})

	req := httptest.NewRequest(http.MethodGet, "/api/cache", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("cache status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var body struct {
		Entries  []entryJSON    `json:"entries"`
		ByStatus map[string]int `json:"by_status"`
		Count    int            `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal cache: %v", err)
	}
	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
	if body.ByStatus["ready"] != 1 || body.ByStatus["failed"] != 1 {
		t.Errorf("by_status = %v, want 1 ready and 1 failed", body.ByStatus)
	}
	for _, e := range body.Entries {
		switch e.Status {
		case "ready":
			if e.Handle != "payload" || e.Size != 8 {
				t.Errorf("ready entry = %+v, want payload handle of 8 bytes", e)
			}
		case "failed":
			if !strings.Contains(e.Error, "no data") {
				t.Errorf("failed entry error = %q, want the remote detail", e.Error)
			}
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, cache, r := newTestServer(t)
	cache.Evict(model.NewSlot(model.KindGroupLoad, ""))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "loadlens_live_handles") {
		t.Errorf("metrics output missing loadlens_live_handles")
	}
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	cache := vizcache.NewCache(nil, nil)
	t.Cleanup(cache.Close)
	r := NewServer(cache, Options{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("metrics status = %d, want 404", w.Code)
	}
}

func TestStartStop(t *testing.T) {
	cache := vizcache.NewCache(nil, nil)
	t.Cleanup(cache.Close)
	srv := NewServer(cache, Options{Addr: "127.0.0.1:0"})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Stop(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.Fatalf("Stop: %v", err)
	}
}
