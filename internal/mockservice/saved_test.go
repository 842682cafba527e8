package mockservice

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type savedGroupingRow struct {
	Date       string `json:"date"`
	Time       string `json:"time"`
	MetricType string `json:"metric_type"`
	NumGroups  int    `json:"num_groups"`
}

func TestRunGrouping_StoresAndServesSavedGrouping(t *testing.T) {
	svc, h := newTestService(t, Options{})
	series, ok := svc.data.Series("CPU", "2024-01-01", "10:00:00")
	require.True(t, ok)
	want := FormGroups(series, 4, 20)
	require.NotEmpty(t, want)

	w := serve(h, http.MethodPost, "/api/grouping/run", `{"metric_type":"CPU","date":"2024-01-01","time":"10:00:00"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var run struct {
		Groups []struct {
			GroupID int `json:"group_id"`
		} `json:"groups"`
		Info struct {
			GroupsCount   int `json:"groups_count"`
			ServicesCount int `json:"services_count"`
		} `json:"metrics_info"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Len(t, run.Groups, len(want))
	assert.Equal(t, len(want), run.Info.GroupsCount)
	assert.Equal(t, 4, run.Info.ServicesCount)

	w = serve(h, http.MethodGet, "/api/saved-groupings/groupings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []savedGroupingRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []savedGroupingRow{{Date: "2024-01-01", Time: "10:00:00", MetricType: "CPU", NumGroups: len(want)}}, list)

	w = serve(h, http.MethodGet, "/api/saved-groupings/groups?"+snapshot(nil), "")
	require.Equal(t, http.StatusOK, w.Code)
	var ids []int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ids))
	assert.Len(t, ids, len(want))
	assert.Equal(t, 1, ids[0])

	w = serve(h, http.MethodGet, "/api/saved-groupings/statistics?"+snapshot(nil), "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Statistics []struct {
			GroupID int `json:"group_id"`
		} `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Len(t, stats.Statistics, len(want))

	w = serve(h, http.MethodGet, "/api/saved-groupings/load?"+snapshot(url.Values{"group_id": {"1"}}), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var load struct {
		GroupID  int `json:"group_id"`
		Services map[string]struct {
			ComponentType string    `json:"component_type"`
			LoadData      []float64 `json:"load_data"`
		} `json:"services"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &load))
	assert.Equal(t, 1, load.GroupID)
	require.Len(t, load.Services, len(want[0].Members))
	for _, m := range want[0].Members {
		got, ok := load.Services[m.Service]
		require.True(t, ok, "missing member %s", m.Service)
		assert.Equal(t, m.Component.String(), got.ComponentType)
		assert.Equal(t, m.Values, got.LoadData)
	}

	w = serve(h, http.MethodGet, "/api/saved-groupings/services?"+snapshot(url.Values{"group_id": {"1"}}), "")
	require.Equal(t, http.StatusOK, w.Code)
	var services []struct {
		ServiceName   string `json:"service_name"`
		ComponentType string `json:"component_type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &services))
	assert.Len(t, services, len(want[0].Members))

	w = serve(h, http.MethodGet, "/api/saved-groupings/load?"+snapshot(url.Values{"group_id": {"99"}}), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "group 99 not found", detailOf(t, w))
}

func TestSavedGroupings_NewestFirst(t *testing.T) {
	svc, h := newTestService(t, Options{})
	for _, tm := range [][2]string{{"2024-01-01", "10:00:00"}, {"2024-01-02", "09:00:00"}, {"2024-01-02", "11:00:00"}} {
		_, ok := svc.SaveGrouping("CPU", tm[0], tm[1], 4, 20)
		require.True(t, ok)
	}
	_, ok := svc.SaveGrouping("CPU", "2030-01-01", "00:00:00", 4, 20)
	assert.False(t, ok)

	w := serve(h, http.MethodGet, "/api/saved-groupings/groupings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []savedGroupingRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "11:00:00", list[0].Time)
	assert.Equal(t, "09:00:00", list[1].Time)
	assert.Equal(t, "2024-01-01", list[2].Date)
}

func TestSavedGroupings_Unsaved(t *testing.T) {
	_, h := newTestService(t, Options{})

	w := serve(h, http.MethodGet, "/api/saved-groupings/statistics?"+snapshot(nil), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, detailNoSavedGrouping, detailOf(t, w))

	w = serve(h, http.MethodGet, "/api/saved-groupings/groups?"+snapshot(nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = serve(h, http.MethodGet, "/api/saved-groupings/groupings", "")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRunGrouping_Validation(t *testing.T) {
	_, h := newTestService(t, Options{})

	w := serve(h, http.MethodPost, "/api/grouping/run", `{"date":"2024-01-01","time":"10:00:00"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = serve(h, http.MethodPost, "/api/grouping/run", `{"metric_type":"CPU","date":"2024-01-01","time":"10:00:00","max_group_size":99}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = serve(h, http.MethodPost, "/api/grouping/run", `{"metric_type":"CPU","date":"1999-01-01","time":"10:00:00"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, detailNoData, detailOf(t, w))
}

func TestRawDataEndpoint(t *testing.T) {
	_, h := newTestService(t, Options{})

	type row struct {
		ServiceName string    `json:"service_name"`
		MetricType  string    `json:"metric_type"`
		Date        string    `json:"date"`
		Time        string    `json:"time"`
		Values      []float64 `json:"values"`
	}
	fetch := func(query string) []row {
		w := serve(h, http.MethodGet, "/api/metrics/raw-data?"+query, "")
		require.Equal(t, http.StatusOK, w.Code)
		var rows []row
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
		return rows
	}

	assert.Len(t, fetch(""), 8)
	assert.Len(t, fetch("metric_type=CPU&date=2024-01-02"), 2)
	assert.Len(t, fetch(snapshot(nil)), 4)

	rows := fetch("service_name=x")
	require.Len(t, rows, 1)
	assert.Equal(t, row{ServiceName: "x", MetricType: "RAM", Date: "2024-01-01", Time: "10:00:00", Values: []float64{150, 150, 150, 150}}, rows[0])

	assert.Empty(t, fetch("metric_type=GPU"))
}
