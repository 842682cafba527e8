package mockservice

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/loadlens/internal/analysisapi"
	"github.com/tinytelemetry/loadlens/internal/model"
)

func newE2EClient(t *testing.T) *analysisapi.Client {
	t.Helper()
	_, h := newTestService(t, Options{})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := analysisapi.New(analysisapi.Config{
		BaseURL:           srv.URL,
		RequestTimeout:    5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             100,
		SessionID:         "e2e",
	})
	require.NoError(t, err)
	return c
}

var e2eParams = model.FilterParameters{
	MetricKind:                "CPU",
	Date:                      "2024-01-01",
	Time:                      "10:00:00",
	MaxGroupSize:              4,
	StabilityThresholdPercent: 20,
}

func TestClientAgainstMock_Queries(t *testing.T) {
	c := newE2EClient(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	opts, err := c.AvailableOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, opts.Dates)
	assert.Equal(t, []string{"10:00:00"}, opts.TimesByDate["2024-01-01"])

	groups, err := c.Groups(ctx, e2eParams)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"c (base)", "d (base)"}, groups[1].Services)

	split, err := c.SplitServices(ctx, e2eParams)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, split)

	stats, err := c.Statistics(ctx, e2eParams)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.InDelta(t, 30, stats[0].MeanLoad, 1e-9)

	for _, tc := range []struct {
		kind   model.VisualizationKind
		subKey string
	}{
		{model.KindGroupLoad, ""},
		{model.KindStability, ""},
		{model.KindDistribution, "1"},
		{model.KindMicroserviceSeries, ""},
		{model.KindBasePeakComponent, "d"},
	} {
		img, err := c.Chart(ctx, tc.kind, e2eParams, tc.subKey)
		require.NoError(t, err, tc.kind.String())
		assert.Equal(t, "image/png", img.ContentType)
		assert.NotEmpty(t, img.Data)
	}
}

func TestClientAgainstMock_RejectionDetail(t *testing.T) {
	c := newE2EClient(t)
	p := e2eParams
	p.Date = "1999-01-01"

	_, err := c.Groups(context.Background(), p)
	require.Error(t, err)
	var rej *model.RemoteRejection
	require.True(t, errors.As(err, &rej), "err = %v", err)
	assert.Equal(t, detailNoData, rej.Detail)
	assert.Equal(t, detailNoData, model.FailureReason(err))

	_, err = c.Chart(context.Background(), model.KindDistribution, e2eParams, "9")
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "group 9 not found", rej.Detail)
}

func TestClientAgainstMock_Commands(t *testing.T) {
	c := newE2EClient(t)
	ctx := context.Background()

	res, err := c.Normalize(ctx, "CPU", "2024-01-01", "10:00:00")
	require.NoError(t, err)
	assert.Contains(t, res.Message, "normalized 4 services")

	auto, err := c.AutoNormalize(ctx, "2024-01-01", "10:00:00")
	require.NoError(t, err)
	assert.Equal(t, "RAM", auto.KeyResource)
	assert.InDelta(t, 1.5, auto.ScalingFactor, 1e-9)
}

func TestClientAgainstMock_SavedGroupings(t *testing.T) {
	c := newE2EClient(t)
	ctx := context.Background()

	list, err := c.SavedGroupings(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	res, err := c.SaveGrouping(ctx, e2eParams)
	require.NoError(t, err)
	assert.Equal(t, model.SaveResult{GroupCount: 3, ServiceCount: 4}, res)

	list, err = c.SavedGroupings(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.SavedGrouping{{MetricKind: "CPU", Date: "2024-01-01", Time: "10:00:00", GroupCount: 3}}, list)

	stats, err := c.SavedStatistics(ctx, list[0])
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.InDelta(t, 30, stats[0].MeanLoad, 1e-9)

	load, err := c.SavedGroupLoad(ctx, list[0], 2)
	require.NoError(t, err)
	require.Len(t, load.Members, 2)
	assert.Equal(t, "c", load.Members[0].Service)
	assert.Equal(t, "base", load.Members[0].Component)
	assert.Equal(t, "d", load.Members[1].Service)

	_, err = c.SavedGroupLoad(ctx, list[0], 9)
	var rej *model.RemoteRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "group 9 not found", rej.Detail)
}

func TestClientAgainstMock_RawData(t *testing.T) {
	c := newE2EClient(t)

	rows, err := c.RawData(context.Background(), e2eParams)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "a", rows[0].Service)
	assert.Equal(t, []float64{10, 20, 10, 20}, rows[0].Values)
}
