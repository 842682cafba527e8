package analysisapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tinytelemetry/loadlens/internal/model"
)

// Endpoint paths of the remote analysis service.
const (
	pathOptions        = "/api/metrics/available-options"
	pathNormalize      = "/api/metrics/normalize-percentage"
	pathGroups         = "/api/grouping/form-groups"
	pathSplitServices  = "/api/grouping/find-split-services"
	pathGroupLoad      = "/api/visualization/group-load"
	pathStability      = "/api/visualization/stability-direct"
	pathStatistics     = "/api/visualization/group-statistics"
	pathDistribution   = "/api/visualization/group-load-distribution"
	pathMicroservices  = "/api/visualization/microservices-chart"
	pathBasePeak       = "/api/visualization/base-peak-component"
	pathAutoNormalize  = "/api/autonormalization/analyze-and-normalize"
	pathRawData        = "/api/metrics/raw-data"
	pathRunGrouping    = "/api/grouping/run"
	pathSavedGroupings = "/api/saved-groupings/groupings"
	pathSavedStats     = "/api/saved-groupings/statistics"
	pathSavedLoad      = "/api/saved-groupings/load"
	pathHealth         = "/health"
	maxResponseBytes   = 32 << 20
	sessionHeader      = "X-Session-ID"
	defaultBreakerName = "analysis-service"
)

// Config configures a Client.
type Config struct {
	BaseURL           string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
	SessionID         string
	// MaxResponseBytes caps a response body. Larger bodies are rejected.
	MaxResponseBytes int64
	Logger           *zap.Logger
	HTTPClient       *http.Client
}

// Client implements model.AnalysisAPI over HTTP.
type Client struct {
	base      *url.URL
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
	limiter   *rate.Limiter
	validate  *validator.Validate
	logger    *zap.Logger
	sessionID string
	maxBody   int64
}

var _ model.AnalysisAPI = (*Client)(nil)

// New builds a client for the service at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = model.DefaultAPIURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("analysisapi: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("analysisapi: unsupported url scheme %q", base.Scheme)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = model.DefaultRequestTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = model.DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = model.DefaultRequestBurst
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = model.DefaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = model.DefaultBreakerCooldown
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = maxResponseBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("mod", "analysisapi"))

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        defaultBreakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// The service answering with an error body is not a transport fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, model.ErrRemoteRejection)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		base:      base,
		http:      httpClient,
		breaker:   breaker,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		sessionID: cfg.SessionID,
		maxBody:   cfg.MaxResponseBytes,
	}, nil
}

// response is a fully read 2xx response.
type response struct {
	contentType string
	body        []byte
}

// do performs one request. Transport failures become *model.NetworkError and
// non-2xx answers become *model.RemoteRejection.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &model.NetworkError{Op: op, Err: err}
	}

	target := c.base.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("analysisapi: %s: marshal body: %w", op, err)
		}
		payload = data
	}

	started := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
		if err != nil {
			return nil, &model.NetworkError{Op: op, Err: err}
		}
		req.Header.Set("Accept", "application/json, image/*")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.sessionID != "" {
			req.Header.Set(sessionHeader, c.sessionID)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &model.NetworkError{Op: op, Err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
		if err != nil {
			return nil, &model.NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
		}
		if int64(len(data)) > c.maxBody {
			return nil, &model.MalformedResponseError{Op: op, Reason: fmt.Sprintf("response exceeds %d bytes", c.maxBody)}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &model.RemoteRejection{Op: op, StatusCode: resp.StatusCode, Detail: parseDetail(data)}
		}
		return &response{contentType: resp.Header.Get("Content-Type"), body: data}, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &model.NetworkError{Op: op, Err: err}
		}
		c.logger.Debug("request failed",
			zap.String("op", op),
			zap.String("url", target.String()),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return nil, err
	}

	c.logger.Debug("request done",
		zap.String("op", op),
		zap.String("url", target.String()),
		zap.Duration("elapsed", time.Since(started)))
	return result.(*response), nil
}

// parseDetail extracts a string `detail` field from an error body.
func parseDetail(body []byte) string {
	var wire struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &wire); err != nil || len(wire.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(wire.Detail, &detail); err != nil {
		return ""
	}
	return detail
}

// decode unmarshals a JSON body into dest and validates it, converting any
// shape violation into *model.MalformedResponseError.
func (c *Client) decode(op string, resp *response, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(resp.body))
	if err := dec.Decode(dest); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &model.MalformedResponseError{Op: op, Reason: fmt.Sprintf("field %q has type %s, want %s", typeErr.Field, typeErr.Value, typeErr.Type)}
		}
		return &model.MalformedResponseError{Op: op, Reason: err.Error()}
	}
	if reflect.Indirect(reflect.ValueOf(dest)).Kind() != reflect.Struct {
		return nil
	}
	if err := c.validate.Struct(dest); err != nil {
		return &model.MalformedResponseError{Op: op, Reason: err.Error()}
	}
	return nil
}

// decodeList unmarshals a top-level JSON array and validates each element.
func decodeList[T any](c *Client, op string, resp *response) ([]T, error) {
	var list []T
	if err := c.decode(op, resp, &list); err != nil {
		return nil, err
	}
	for i := range list {
		if err := c.validate.Struct(list[i]); err != nil {
			return nil, &model.MalformedResponseError{Op: op, Reason: fmt.Sprintf("element %d: %v", i, err)}
		}
	}
	return list, nil
}

// AvailableOptions fetches the selectable dates, times and metric kinds.
func (c *Client) AvailableOptions(ctx context.Context) (model.AvailableOptions, error) {
	const op = "options"
	resp, err := c.do(ctx, op, http.MethodGet, pathOptions, nil, nil)
	if err != nil {
		return model.AvailableOptions{}, err
	}
	var wire optionsWire
	if err := c.decode(op, resp, &wire); err != nil {
		return model.AvailableOptions{}, err
	}
	opts, err := wire.toModel()
	if err != nil {
		return model.AvailableOptions{}, &model.MalformedResponseError{Op: op, Reason: err.Error()}
	}
	return opts, nil
}

func (c *Client) Groups(ctx context.Context, params model.FilterParameters) ([]model.GroupDescriptor, error) {
	const op = "groups"
	resp, err := c.do(ctx, op, http.MethodGet, pathGroups, model.QueryValues(model.KindGroups, params), nil)
	if err != nil {
		return nil, err
	}
	var wire groupsWire
	if err := c.decode(op, resp, &wire); err != nil {
		return nil, err
	}
	return wire.toModel(), nil
}

func (c *Client) SplitServices(ctx context.Context, params model.FilterParameters) ([]string, error) {
	const op = "split-services"
	resp, err := c.do(ctx, op, http.MethodGet, pathSplitServices, model.QueryValues(model.KindSplitServices, params), nil)
	if err != nil {
		return nil, err
	}
	var wire splitServicesWire
	if err := c.decode(op, resp, &wire); err != nil {
		return nil, err
	}
	return append([]string(nil), wire.SplitServices...), nil
}

func (c *Client) Statistics(ctx context.Context, params model.FilterParameters) ([]model.GroupStatistics, error) {
	const op = "statistics"
	resp, err := c.do(ctx, op, http.MethodGet, pathStatistics, model.QueryValues(model.KindStatistics, params), nil)
	if err != nil {
		return nil, err
	}
	var wire statisticsWire
	if err := c.decode(op, resp, &wire); err != nil {
		return nil, err
	}
	return wire.toModel(), nil
}

// RawData fetches the unprocessed per-service load of one snapshot.
func (c *Client) RawData(ctx context.Context, params model.FilterParameters) ([]model.RawSeries, error) {
	const op = "raw-data"
	resp, err := c.do(ctx, op, http.MethodGet, pathRawData, model.QueryValues(model.KindRawData, params), nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeList[rawSeriesWire](c, op, resp)
	if err != nil {
		return nil, err
	}
	out := make([]model.RawSeries, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// Chart fetches a chart image for one of the image kinds.
func (c *Client) Chart(ctx context.Context, kind model.VisualizationKind, params model.FilterParameters, subKey string) (model.ChartImage, error) {
	op := "chart/" + kind.String()
	path, err := chartPath(kind)
	if err != nil {
		return model.ChartImage{}, err
	}

	query := model.QueryValues(kind, params)
	switch kind {
	case model.KindDistribution:
		if _, err := strconv.Atoi(subKey); err != nil {
			return model.ChartImage{}, &model.InvalidSelectionError{Field: "group", Value: subKey}
		}
		query.Set("group_id", subKey)
	case model.KindBasePeakComponent:
		if subKey == "" {
			return model.ChartImage{}, &model.InvalidSelectionError{Field: "service", Value: subKey}
		}
		query.Set("service_name", subKey)
	}

	resp, err := c.do(ctx, op, http.MethodGet, path, query, nil)
	if err != nil {
		return model.ChartImage{}, err
	}
	if !strings.HasPrefix(resp.contentType, "image/") {
		return model.ChartImage{}, &model.MalformedResponseError{Op: op, Reason: fmt.Sprintf("content type %q is not an image", resp.contentType)}
	}
	if len(resp.body) == 0 {
		return model.ChartImage{}, &model.MalformedResponseError{Op: op, Reason: "empty image body"}
	}
	return model.ChartImage{ContentType: resp.contentType, Data: resp.body}, nil
}

func chartPath(kind model.VisualizationKind) (string, error) {
	switch kind {
	case model.KindGroupLoad:
		return pathGroupLoad, nil
	case model.KindStability:
		return pathStability, nil
	case model.KindDistribution:
		return pathDistribution, nil
	case model.KindMicroserviceSeries:
		return pathMicroservices, nil
	case model.KindBasePeakComponent:
		return pathBasePeak, nil
	}
	return "", fmt.Errorf("analysisapi: kind %s has no chart endpoint", kind)
}

// Normalize asks the service to normalize the stored metrics for one
// metric/date/time. The result is a confirmation message only.
func (c *Client) Normalize(ctx context.Context, metricKind, date, tm string) (model.NormalizeResult, error) {
	const op = "normalize"
	query := url.Values{}
	query.Set("metric_type", metricKind)
	query.Set("date", date)
	query.Set("time", tm)
	resp, err := c.do(ctx, op, http.MethodPost, pathNormalize, query, nil)
	if err != nil {
		return model.NormalizeResult{}, err
	}
	var wire messageWire
	if err := c.decode(op, resp, &wire); err != nil {
		return model.NormalizeResult{}, err
	}
	return model.NormalizeResult{Message: wire.Message}, nil
}

// AutoNormalize asks the service to find the dominating resource for a
// date/time and normalize against it.
func (c *Client) AutoNormalize(ctx context.Context, date, tm string) (model.AutoNormalizeResult, error) {
	const op = "auto-normalize"
	resp, err := c.do(ctx, op, http.MethodPost, pathAutoNormalize, nil, autoNormalizeRequestWire{Date: date, Time: tm})
	if err != nil {
		return model.AutoNormalizeResult{}, err
	}
	var wire autoNormalizeWire
	if err := c.decode(op, resp, &wire); err != nil {
		return model.AutoNormalizeResult{}, err
	}
	return model.AutoNormalizeResult{
		KeyResource:   wire.KeyResource,
		ScalingFactor: wire.ScalingFactor,
		Message:       wire.Message,
	}, nil
}

// SaveGrouping runs the grouping for params and stores the result
// server-side, where the saved grouping endpoints list it.
func (c *Client) SaveGrouping(ctx context.Context, params model.FilterParameters) (model.SaveResult, error) {
	const op = "save-grouping"
	body := runGroupingRequestWire{
		MetricType:         params.MetricKind,
		Date:               params.Date,
		Time:               params.Time,
		MaxGroupSize:       params.MaxGroupSize,
		StabilityThreshold: params.StabilityThresholdPercent,
	}
	resp, err := c.do(ctx, op, http.MethodPost, pathRunGrouping, nil, body)
	if err != nil {
		return model.SaveResult{}, err
	}
	var wire runGroupingWire
	if err := c.decode(op, resp, &wire); err != nil {
		return model.SaveResult{}, err
	}
	return model.SaveResult{GroupCount: wire.Info.GroupsCount, ServiceCount: wire.Info.ServicesCount}, nil
}

// SavedGroupings lists stored grouping runs, newest first.
func (c *Client) SavedGroupings(ctx context.Context) ([]model.SavedGrouping, error) {
	const op = "saved-groupings"
	resp, err := c.do(ctx, op, http.MethodGet, pathSavedGroupings, nil, nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeList[savedGroupingWire](c, op, resp)
	if err != nil {
		return nil, err
	}
	out := make([]model.SavedGrouping, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.SavedGrouping{MetricKind: r.MetricType, Date: r.Date, Time: r.Time, GroupCount: r.NumGroups})
	}
	return out, nil
}

// SavedStatistics fetches the statistics table of a stored grouping.
func (c *Client) SavedStatistics(ctx context.Context, g model.SavedGrouping) ([]model.GroupStatistics, error) {
	const op = "saved-statistics"
	resp, err := c.do(ctx, op, http.MethodGet, pathSavedStats, savedQuery(g), nil)
	if err != nil {
		return nil, err
	}
	var wire statisticsWire
	if err := c.decode(op, resp, &wire); err != nil {
		return nil, err
	}
	return wire.toModel(), nil
}

// SavedGroupLoad fetches the stored member loads of one saved group.
func (c *Client) SavedGroupLoad(ctx context.Context, g model.SavedGrouping, groupID int) (model.SavedGroupLoad, error) {
	const op = "saved-load"
	query := savedQuery(g)
	query.Set("group_id", strconv.Itoa(groupID))
	resp, err := c.do(ctx, op, http.MethodGet, pathSavedLoad, query, nil)
	if err != nil {
		return model.SavedGroupLoad{}, err
	}
	var wire savedLoadWire
	if err := c.decode(op, resp, &wire); err != nil {
		return model.SavedGroupLoad{}, err
	}
	if wire.GroupID != groupID {
		return model.SavedGroupLoad{}, &model.MalformedResponseError{Op: op, Reason: fmt.Sprintf("group %d returned for %d", wire.GroupID, groupID)}
	}
	return wire.toModel(), nil
}

func savedQuery(g model.SavedGrouping) url.Values {
	query := url.Values{}
	query.Set("metric_type", g.MetricKind)
	query.Set("date", g.Date)
	query.Set("time", g.Time)
	return query
}

// Health checks the service's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	const op = "health"
	resp, err := c.do(ctx, op, http.MethodGet, pathHealth, nil, nil)
	if err != nil {
		return err
	}
	var wire healthWire
	if err := c.decode(op, resp, &wire); err != nil {
		return err
	}
	if wire.Status != "ok" {
		return &model.RemoteRejection{Op: op, StatusCode: http.StatusOK, Detail: "service reports status " + wire.Status}
	}
	return nil
}
