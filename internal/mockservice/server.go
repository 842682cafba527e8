package mockservice

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const detailNoData = "no data for the selected parameters"

// Options configures the mock analysis service.
type Options struct {
	// Latency delays every API response. Jitter adds up to that much more,
	// drawn from a generator seeded with Seed.
	Latency time.Duration
	Jitter  time.Duration
	Seed    int64
	Logger  *zap.Logger
}

// Service serves a Dataset over the remote analysis HTTP API.
type Service struct {
	data   *Dataset
	opts   Options
	logger *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	saved *savedStore
}

// New creates a service over ds.
func New(ds *Dataset, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		data:   ds,
		opts:   opts,
		logger: logger.With(zap.String("mod", "mockservice")),
		rng:    rand.New(rand.NewSource(opts.Seed)),
		saved:  newSavedStore(),
	}
}

// Handler builds the gin router.
func (s *Service) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api", s.delay())
	api.GET("/metrics/available-options", s.handleOptions)
	api.GET("/metrics/raw-data", s.handleRawData)
	api.POST("/metrics/normalize-percentage", s.handleNormalize)
	api.GET("/grouping/form-groups", s.handleFormGroups)
	api.GET("/grouping/find-split-services", s.handleSplitServices)
	api.POST("/grouping/run", s.handleRunGrouping)
	api.GET("/visualization/group-load", s.handleGroupLoad)
	api.GET("/visualization/stability-direct", s.handleStability)
	api.GET("/visualization/group-statistics", s.handleStatistics)
	api.GET("/visualization/group-load-distribution", s.handleDistribution)
	api.GET("/visualization/microservices-chart", s.handleMicroservices)
	api.GET("/visualization/base-peak-component", s.handleBasePeak)
	api.POST("/autonormalization/analyze-and-normalize", s.handleAutoNormalize)

	saved := api.Group("/saved-groupings")
	saved.GET("/groupings", s.handleSavedGroupings)
	saved.GET("/groups", s.handleSavedGroups)
	saved.GET("/services", s.handleSavedServices)
	saved.GET("/load", s.handleSavedLoad)
	saved.GET("/statistics", s.handleSavedStatistics)
	return r
}

func (s *Service) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("session", c.GetHeader("X-Session-ID")))
	}
}

// delay holds the response for the configured latency so that overlapping
// requests can be observed from a client.
func (s *Service) delay() gin.HandlerFunc {
	return func(c *gin.Context) {
		wait := s.opts.Latency
		if s.opts.Jitter > 0 {
			s.rngMu.Lock()
			wait += time.Duration(s.rng.Int63n(int64(s.opts.Jitter)))
			s.rngMu.Unlock()
		}
		if wait <= 0 {
			return
		}
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
		case <-c.Request.Context().Done():
			c.AbortWithStatus(http.StatusServiceUnavailable)
		}
	}
}

type snapshotQuery struct {
	MetricType string `form:"metric_type" binding:"required"`
	Date       string `form:"date" binding:"required"`
	Time       string `form:"time" binding:"required"`
}

type groupingQuery struct {
	snapshotQuery
	MaxGroupSize       int     `form:"max_group_size,default=4" binding:"gte=1,lte=50"`
	StabilityThreshold float64 `form:"stability_threshold,default=20" binding:"gte=0,lte=100"`
}

type distributionQuery struct {
	groupingQuery
	GroupID int `form:"group_id" binding:"required,gte=1"`
}

type basePeakQuery struct {
	snapshotQuery
	ServiceName string `form:"service_name" binding:"required"`
}

type autoNormalizeRequest struct {
	Date string `json:"date" binding:"required"`
	Time string `json:"time" binding:"required"`
}

func reject(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func bindQuery(c *gin.Context, dest any) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		reject(c, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func (s *Service) series(c *gin.Context, q snapshotQuery) ([]Series, bool) {
	list, ok := s.data.Series(q.MetricType, q.Date, q.Time)
	if !ok {
		reject(c, http.StatusNotFound, detailNoData)
		return nil, false
	}
	return list, true
}

func (s *Service) groups(c *gin.Context, q groupingQuery) ([]Group, bool) {
	list, ok := s.series(c, q.snapshotQuery)
	if !ok {
		return nil, false
	}
	return FormGroups(list, q.MaxGroupSize, q.StabilityThreshold), true
}

func (s *Service) png(c *gin.Context, data []byte, err error) {
	if err != nil {
		s.logger.Error("render chart", zap.Error(err))
		reject(c, http.StatusInternalServerError, "failed to render chart")
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Service) handleOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"dates":        s.data.Dates(),
		"times":        s.data.Times(),
		"metric_types": s.data.Metrics(),
	})
}

func (s *Service) handleNormalize(c *gin.Context) {
	var q snapshotQuery
	if !bindQuery(c, &q) {
		return
	}
	list, ok := s.series(c, q)
	if !ok {
		return
	}
	peak := 0.0
	for _, sr := range list {
		for _, v := range sr.Values {
			peak = math.Max(peak, v)
		}
	}
	if peak == 0 {
		reject(c, http.StatusUnprocessableEntity, "all values are zero")
		return
	}
	s.data.Update(q.MetricType, q.Date, q.Time, func(v float64) float64 { return v * 100 / peak })
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("normalized %d services of %s on %s %s to percent of peak", len(list), q.MetricType, q.Date, q.Time),
	})
}

func (s *Service) handleFormGroups(c *gin.Context) {
	var q groupingQuery
	if !bindQuery(c, &q) {
		return
	}
	groups, ok := s.groups(c, q)
	if !ok {
		return
	}
	out := make([]gin.H, 0, len(groups))
	for _, g := range groups {
		out = append(out, gin.H{"id": g.ID, "services": labels(g)})
	}
	c.JSON(http.StatusOK, gin.H{"groups": out})
}

func (s *Service) handleSplitServices(c *gin.Context) {
	var q groupingQuery
	if !bindQuery(c, &q) {
		return
	}
	groups, ok := s.groups(c, q)
	if !ok {
		return
	}
	seen := make(map[string]bool)
	split := []string{}
	for _, g := range groups {
		for _, m := range g.Members {
			if m.Component != ComponentOriginal && !seen[m.Service] {
				seen[m.Service] = true
				split = append(split, m.Service)
			}
		}
	}
	sort.Strings(split)
	c.JSON(http.StatusOK, gin.H{"split_services": split})
}

func (s *Service) handleGroupLoad(c *gin.Context) {
	var q groupingQuery
	if !bindQuery(c, &q) {
		return
	}
	groups, ok := s.groups(c, q)
	if !ok {
		return
	}
	totals := make([][]float64, 0, len(groups))
	for _, g := range groups {
		totals = append(totals, g.Total)
	}
	data, err := renderLines(totals)
	s.png(c, data, err)
}

func (s *Service) handleStability(c *gin.Context) {
	var q groupingQuery
	if !bindQuery(c, &q) {
		return
	}
	groups, ok := s.groups(c, q)
	if !ok {
		return
	}
	var values []float64
	for _, g := range groups {
		if len(g.Members) > 1 {
			values = append(values, g.Stability())
		}
	}
	if len(values) == 0 {
		reject(c, http.StatusNotFound, "no groups with more than one member")
		return
	}
	data, err := renderBars(values, q.StabilityThreshold)
	s.png(c, data, err)
}

func (s *Service) handleStatistics(c *gin.Context) {
	var q groupingQuery
	if !bindQuery(c, &q) {
		return
	}
	groups, ok := s.groups(c, q)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": statisticsRows(groups)})
}

func statisticsRows(groups []Group) []gin.H {
	rows := make([]gin.H, 0, len(groups))
	for _, g := range groups {
		mean, _ := meanStd(g.Total)
		peak := 0.0
		for _, v := range g.Total {
			peak = math.Max(peak, v)
		}
		rows = append(rows, gin.H{
			"group_id":     g.ID,
			"num_services": len(g.Members),
			"mean_load":    mean,
			"peak_load":    peak,
			"stability":    stabilityOf(g),
			"services":     labels(g),
		})
	}
	return rows
}

// stabilityOf is the group's stability with an undefined value (zero mean)
// reported as -1, since JSON has no infinity.
func stabilityOf(g Group) float64 {
	stability := g.Stability()
	if math.IsInf(stability, 0) || math.IsNaN(stability) {
		return -1
	}
	return stability
}

func (s *Service) handleDistribution(c *gin.Context) {
	var q distributionQuery
	if !bindQuery(c, &q) {
		return
	}
	groups, ok := s.groups(c, q.groupingQuery)
	if !ok {
		return
	}
	if q.GroupID > len(groups) {
		reject(c, http.StatusNotFound, fmt.Sprintf("group %d not found", q.GroupID))
		return
	}
	g := groups[q.GroupID-1]
	lines := make([][]float64, 0, len(g.Members)+1)
	for _, m := range g.Members {
		lines = append(lines, m.Values)
	}
	lines = append(lines, g.Total)
	data, err := renderLines(lines)
	s.png(c, data, err)
}

func (s *Service) handleMicroservices(c *gin.Context) {
	var q snapshotQuery
	if !bindQuery(c, &q) {
		return
	}
	list, ok := s.series(c, q)
	if !ok {
		return
	}
	lines := make([][]float64, 0, len(list))
	for _, sr := range list {
		lines = append(lines, sr.Values)
	}
	data, err := renderLines(lines)
	s.png(c, data, err)
}

func (s *Service) handleBasePeak(c *gin.Context) {
	var q basePeakQuery
	if !bindQuery(c, &q) {
		return
	}
	list, ok := s.series(c, q.snapshotQuery)
	if !ok {
		return
	}
	name := strings.TrimSpace(q.ServiceName)
	for _, sr := range list {
		if sr.Name != name {
			continue
		}
		base, peak := SplitLoad(sr.Values)
		data, err := renderLines([][]float64{sr.Values, base, peak})
		s.png(c, data, err)
		return
	}
	reject(c, http.StatusNotFound, "service not found")
}

func (s *Service) handleAutoNormalize(c *gin.Context) {
	var req autoNormalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reject(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	usage := make(map[string]float64)
	var order []string
	for _, metric := range s.data.Metrics() {
		list, ok := s.data.Series(metric, req.Date, req.Time)
		if !ok {
			continue
		}
		order = append(order, metric)
		capacity := s.data.Capacity(metric)
		for _, sr := range list {
			mean, _ := meanStd(sr.Values)
			usage[metric] = math.Max(usage[metric], mean/capacity*100)
		}
	}
	if len(order) == 0 {
		reject(c, http.StatusNotFound, detailNoData)
		return
	}

	key := order[0]
	for _, metric := range order[1:] {
		if usage[metric] > usage[key] {
			key = metric
		}
	}
	factor := 1.0
	if usage[key] > 100 {
		factor = usage[key] / 100
		s.data.Update(key, req.Date, req.Time, func(v float64) float64 { return v / factor })
	}

	deviations := make([]string, 0, len(order))
	for _, metric := range order {
		deviations = append(deviations, fmt.Sprintf("%s: %+.1f%%", metric, usage[metric]-100))
	}
	c.JSON(http.StatusOK, gin.H{
		"key_resource":   key,
		"scaling_factor": factor,
		"message": fmt.Sprintf("deviation from standard capacity: %s. Normalized by %s.",
			strings.Join(deviations, "; "), key),
	})
}

func labels(g Group) []string {
	out := make([]string, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.Label()
	}
	return out
}
