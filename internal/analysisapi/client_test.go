package analysisapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/loadlens/internal/model"
)

var testParams = model.FilterParameters{
	MetricKind:                "CPU",
	Date:                      "2024-01-01",
	Time:                      "10:00",
	MaxGroupSize:              4,
	StabilityThresholdPercent: 20,
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:           srv.URL,
		RequestTimeout:    2 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             100,
		BreakerFailures:   3,
		BreakerCooldown:   time.Minute,
		SessionID:         "session-1",
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RejectsBadScheme(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://example.com"})
	require.Error(t, err)
}

func TestAvailableOptions_Decodes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathOptions, r.URL.Path)
		assert.Equal(t, "session-1", r.Header.Get(sessionHeader))
		writeJSON(w, http.StatusOK, map[string]any{
			"dates":        []string{"2024-01-01", "2024-01-02"},
			"times":        map[string][]string{"2024-01-01": {"10:00", "11:00"}, "2024-01-02": {"09:00"}},
			"metric_types": []string{"CPU", "RAM"},
		})
	}))

	opts, err := c.AvailableOptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, opts.Dates)
	assert.Equal(t, []string{"10:00", "11:00"}, opts.TimesFor("2024-01-01"))
	assert.Equal(t, []string{"CPU", "RAM"}, opts.MetricKinds)
}

func TestAvailableOptions_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"dates not array", map[string]any{"dates": "2024-01-01", "times": map[string]any{}, "metric_types": []string{"CPU"}}},
		{"missing times for date", map[string]any{"dates": []string{"2024-01-01"}, "times": map[string]any{}, "metric_types": []string{"CPU"}}},
		{"missing metric types", map[string]any{"dates": []string{}, "times": map[string]any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			}))
			_, err := c.AvailableOptions(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrMalformed)
		})
	}
}

func TestGroups_SendsGroupingQuery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathGroups, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "CPU", q.Get("metric_type"))
		assert.Equal(t, "4", q.Get("max_group_size"))
		assert.Equal(t, "20", q.Get("stability_threshold"))
		writeJSON(w, http.StatusOK, map[string]any{
			"groups": []map[string]any{
				{"id": 1, "services": []string{"auth", "cart"}},
				{"id": 2, "services": []string{"search"}},
			},
		})
	}))

	groups, err := c.Groups(context.Background(), testParams)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, 1, groups[0].ID)
	assert.Equal(t, []string{"auth", "cart"}, groups[0].Services)
}

func TestRemoteRejection_DetailVerbatim(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "no data for the selected parameters"})
	}))

	_, err := c.Statistics(context.Background(), testParams)
	require.Error(t, err)

	var rej *model.RemoteRejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, http.StatusNotFound, rej.StatusCode)
	assert.Equal(t, "no data for the selected parameters", model.FailureReason(err))
}

func TestRemoteRejection_WithoutDetail(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	}))

	_, err := c.SplitServices(context.Background(), testParams)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRemoteRejection)
	assert.Equal(t, model.GenericNetworkMessage, model.FailureReason(err))
}

func TestChart_Distribution(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathDistribution, r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("group_id"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))

	img, err := c.Chart(context.Background(), model.KindDistribution, testParams, "3")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, png, img.Data)
}

func TestChart_RawKindsOmitGrouping(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathBasePeak, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "auth", q.Get("service_name"))
		assert.False(t, q.Has("max_group_size"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{1})
	}))

	_, err := c.Chart(context.Background(), model.KindBasePeakComponent, testParams, "auth")
	require.NoError(t, err)
}

func TestChart_RejectsNonImage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}))

	_, err := c.Chart(context.Background(), model.KindStability, testParams, "")
	assert.ErrorIs(t, err, model.ErrMalformed)
}

func TestChart_OversizedBodyRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(make([]byte, maxResponseBytes+1024))
	}))

	img, err := c.Chart(context.Background(), model.KindStability, testParams, "")
	require.ErrorIs(t, err, model.ErrMalformed)
	assert.Contains(t, err.Error(), "response exceeds")
	assert.Empty(t, img.Data)
}

func TestMaxResponseBytes_Boundary(t *testing.T) {
	var size atomic.Int32
	size.Store(16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(make([]byte, size.Load()))
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, RequestsPerSecond: 1000, Burst: 100, MaxResponseBytes: 16})
	require.NoError(t, err)

	img, err := c.Chart(context.Background(), model.KindStability, testParams, "")
	require.NoError(t, err)
	assert.Len(t, img.Data, 16)

	size.Store(17)
	_, err = c.Chart(context.Background(), model.KindStability, testParams, "")
	var malformed *model.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "response exceeds 16 bytes", malformed.Reason)
}

func TestChart_InvalidSubKey(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := c.Chart(context.Background(), model.KindDistribution, testParams, "not-a-number")
	assert.ErrorIs(t, err, model.ErrInvalidSelection)
	_, err = c.Chart(context.Background(), model.KindStatistics, testParams, "")
	assert.Error(t, err)
	assert.Zero(t, calls.Load())
}

func TestNormalize_SendsQuery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathNormalize, r.URL.Path)
		assert.Equal(t, "RAM", r.URL.Query().Get("metric_type"))
		writeJSON(w, http.StatusOK, map[string]any{"message": "normalized 12 series"})
	}))

	res, err := c.Normalize(context.Background(), "RAM", "2024-01-01", "10:00")
	require.NoError(t, err)
	assert.Equal(t, "normalized 12 series", res.Message)
}

func TestAutoNormalize_SendsBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body autoNormalizeRequestWire
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2024-01-01", body.Date)
		assert.Equal(t, "10:00", body.Time)
		writeJSON(w, http.StatusOK, map[string]any{"key_resource": "CPU", "scaling_factor": 1.5, "message": "done"})
	}))

	res, err := c.AutoNormalize(context.Background(), "2024-01-01", "10:00")
	require.NoError(t, err)
	assert.Equal(t, "CPU", res.KeyResource)
	assert.InDelta(t, 1.5, res.ScalingFactor, 1e-9)
}

func TestNetworkError_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, RequestTimeout: time.Second})
	require.NoError(t, err)

	_, err = c.AvailableOptions(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNetwork)
	assert.Equal(t, model.GenericNetworkMessage, model.FailureReason(err))
}

func TestBreaker_OpensOnTransportFailuresOnly(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "no data"})
	}))

	// Rejections never trip the breaker.
	for i := 0; i < 5; i++ {
		_, err := c.Groups(context.Background(), testParams)
		assert.ErrorIs(t, err, model.ErrRemoteRejection)
	}
	assert.EqualValues(t, 5, calls.Load())
}

func TestBreaker_OpenStateIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, RequestTimeout: time.Second, BreakerFailures: 2, BreakerCooldown: time.Minute})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = c.Statistics(context.Background(), testParams)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrNetwork)
	}
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	require.NoError(t, c.Health(context.Background()))
}

func TestRawData_OmitsGrouping(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathRawData, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "CPU", q.Get("metric_type"))
		assert.False(t, q.Has("max_group_size"))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"service_name": "auth", "metric_type": "CPU", "date": "2024-01-01", "time": "10:00", "values": []float64{1, 2}},
		})
	}))

	rows, err := c.RawData(context.Background(), testParams)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "auth", rows[0].Service)
	assert.Equal(t, []float64{1, 2}, rows[0].Values)
}

func TestRawData_MalformedElement(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"metric_type": "CPU"}})
	}))

	_, err := c.RawData(context.Background(), testParams)
	assert.ErrorIs(t, err, model.ErrMalformed)
}

func TestSaveGrouping_SendsBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathRunGrouping, r.URL.Path)
		var body runGroupingRequestWire
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CPU", body.MetricType)
		assert.Equal(t, 4, body.MaxGroupSize)
		assert.InDelta(t, 20, body.StabilityThreshold, 1e-9)
		writeJSON(w, http.StatusOK, map[string]any{
			"groups":       []map[string]any{{"group_id": 1}, {"group_id": 2}},
			"metrics_info": map[string]any{"groups_count": 2, "services_count": 5},
		})
	}))

	res, err := c.SaveGrouping(context.Background(), testParams)
	require.NoError(t, err)
	assert.Equal(t, model.SaveResult{GroupCount: 2, ServiceCount: 5}, res)
}

func TestSavedGroupings_List(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathSavedGroupings, r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]any{
			{"date": "2024-01-02", "time": "11:00", "metric_type": "RAM", "num_groups": 3},
			{"date": "2024-01-01", "time": "10:00", "metric_type": "CPU", "num_groups": 2},
		})
	}))

	list, err := c.SavedGroupings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.SavedGrouping{
		{MetricKind: "RAM", Date: "2024-01-02", Time: "11:00", GroupCount: 3},
		{MetricKind: "CPU", Date: "2024-01-01", Time: "10:00", GroupCount: 2},
	}, list)
}

func TestSavedStatistics_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathSavedStats, r.URL.Path)
		assert.Equal(t, "RAM", r.URL.Query().Get("metric_type"))
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "saved grouping not found"})
	}))

	_, err := c.SavedStatistics(context.Background(), model.SavedGrouping{MetricKind: "RAM", Date: "2024-01-01", Time: "10:00"})
	var rej *model.RemoteRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "saved grouping not found", rej.Detail)
}

func TestSavedGroupLoad_OrdersMembers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathSavedLoad, r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("group_id"))
		writeJSON(w, http.StatusOK, map[string]any{
			"group_id": 2,
			"services": map[string]any{
				"search": map[string]any{"component_type": "base", "load_data": []float64{3}},
				"cart":   map[string]any{"component_type": "original", "load_data": []float64{1}},
			},
		})
	}))

	load, err := c.SavedGroupLoad(context.Background(), model.SavedGrouping{MetricKind: "CPU", Date: "2024-01-01", Time: "10:00"}, 2)
	require.NoError(t, err)
	require.Len(t, load.Members, 2)
	assert.Equal(t, "cart", load.Members[0].Service)
	assert.Equal(t, "base", load.Members[1].Component)
}

func TestSavedGroupLoad_RejectsUnknownComponent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"group_id": 1,
			"services": map[string]any{"cart": map[string]any{"component_type": "spike", "load_data": []float64{1}}},
		})
	}))

	_, err := c.SavedGroupLoad(context.Background(), model.SavedGrouping{MetricKind: "CPU", Date: "2024-01-01", Time: "10:00"}, 1)
	assert.ErrorIs(t, err, model.ErrMalformed)
}
