package mockservice

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const detailNoSavedGrouping = "saved grouping not found"

// savedStore keeps one grouping run per snapshot. Saving again replaces it.
type savedStore struct {
	mu   sync.RWMutex
	runs map[snapshotKey][]Group
}

func newSavedStore() *savedStore {
	return &savedStore{runs: make(map[snapshotKey][]Group)}
}

func (st *savedStore) put(key snapshotKey, groups []Group) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.runs[key] = groups
}

func (st *savedStore) get(key snapshotKey) ([]Group, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	groups, ok := st.runs[key]
	return groups, ok
}

// list returns the stored snapshots, newest date and time first.
func (st *savedStore) list() []savedEntry {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]savedEntry, 0, len(st.runs))
	for key, groups := range st.runs {
		out = append(out, savedEntry{key: key, groups: len(groups)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].key, out[j].key
		if a.date != b.date {
			return a.date > b.date
		}
		if a.time != b.time {
			return a.time > b.time
		}
		return a.metric < b.metric
	})
	return out
}

type savedEntry struct {
	key    snapshotKey
	groups int
}

// SaveGrouping forms the groups of one snapshot and stores them. It reports
// false when the snapshot has no data.
func (s *Service) SaveGrouping(metric, date, tm string, maxSize int, threshold float64) ([]Group, bool) {
	list, ok := s.data.Series(metric, date, tm)
	if !ok {
		return nil, false
	}
	groups := FormGroups(list, maxSize, threshold)
	s.saved.put(snapshotKey{metric, date, tm}, groups)
	s.logger.Info("grouping saved",
		zap.String("metric", metric),
		zap.String("date", date),
		zap.String("time", tm),
		zap.Int("groups", len(groups)))
	return groups, true
}

type runGroupingRequest struct {
	MetricType         string   `json:"metric_type" binding:"required"`
	Date               string   `json:"date" binding:"required"`
	Time               string   `json:"time" binding:"required"`
	MaxGroupSize       int      `json:"max_group_size" binding:"omitempty,gte=1,lte=50"`
	StabilityThreshold *float64 `json:"stability_threshold" binding:"omitempty,gte=0,lte=100"`
}

type savedGroupQuery struct {
	snapshotQuery
	GroupID int `form:"group_id" binding:"required,gte=1"`
}

type rawDataQuery struct {
	MetricType  string `form:"metric_type"`
	Date        string `form:"date"`
	Time        string `form:"time"`
	ServiceName string `form:"service_name"`
}

func (s *Service) handleRunGrouping(c *gin.Context) {
	var req runGroupingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reject(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	maxSize := req.MaxGroupSize
	if maxSize == 0 {
		maxSize = 4
	}
	threshold := 20.0
	if req.StabilityThreshold != nil {
		threshold = *req.StabilityThreshold
	}

	groups, ok := s.SaveGrouping(req.MetricType, req.Date, req.Time, maxSize, threshold)
	if !ok {
		reject(c, http.StatusNotFound, detailNoData)
		return
	}
	services := make(map[string]bool)
	out := make([]gin.H, 0, len(groups))
	for _, g := range groups {
		members := make([]gin.H, 0, len(g.Members))
		for _, m := range g.Members {
			services[m.Service] = true
			members = append(members, gin.H{
				"service_name":   m.Service,
				"values":         m.Values,
				"component_type": m.Component.String(),
			})
		}
		out = append(out, gin.H{
			"group_id":   g.ID,
			"services":   members,
			"total_load": g.Total,
			"stability":  stabilityOf(g),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"groups": out,
		"metrics_info": gin.H{
			"metric_type":         req.MetricType,
			"date":                req.Date,
			"time":                req.Time,
			"max_group_size":      maxSize,
			"stability_threshold": threshold,
			"groups_count":        len(groups),
			"services_count":      len(services),
		},
	})
}

func (s *Service) handleSavedGroupings(c *gin.Context) {
	entries := s.saved.list()
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"date":        e.key.date,
			"time":        e.key.time,
			"metric_type": e.key.metric,
			"num_groups":  e.groups,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Service) handleSavedGroups(c *gin.Context) {
	var q snapshotQuery
	if !bindQuery(c, &q) {
		return
	}
	groups, _ := s.saved.get(snapshotKey{q.MetricType, q.Date, q.Time})
	ids := make([]int, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	c.JSON(http.StatusOK, ids)
}

// savedGroup resolves one stored group or rejects the request.
func (s *Service) savedGroup(c *gin.Context) (Group, bool) {
	var q savedGroupQuery
	if !bindQuery(c, &q) {
		return Group{}, false
	}
	groups, ok := s.saved.get(snapshotKey{q.MetricType, q.Date, q.Time})
	if !ok {
		reject(c, http.StatusNotFound, detailNoSavedGrouping)
		return Group{}, false
	}
	for _, g := range groups {
		if g.ID == q.GroupID {
			return g, true
		}
	}
	reject(c, http.StatusNotFound, fmt.Sprintf("group %d not found", q.GroupID))
	return Group{}, false
}

func (s *Service) handleSavedServices(c *gin.Context) {
	g, ok := s.savedGroup(c)
	if !ok {
		return
	}
	out := make([]gin.H, 0, len(g.Members))
	for _, m := range sortedMembers(g) {
		out = append(out, gin.H{"service_name": m.Service, "component_type": m.Component.String()})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Service) handleSavedLoad(c *gin.Context) {
	g, ok := s.savedGroup(c)
	if !ok {
		return
	}
	services := make(gin.H, len(g.Members))
	for _, m := range g.Members {
		services[m.Service] = gin.H{"component_type": m.Component.String(), "load_data": m.Values}
	}
	c.JSON(http.StatusOK, gin.H{"group_id": g.ID, "services": services})
}

func (s *Service) handleSavedStatistics(c *gin.Context) {
	var q snapshotQuery
	if !bindQuery(c, &q) {
		return
	}
	groups, ok := s.saved.get(snapshotKey{q.MetricType, q.Date, q.Time})
	if !ok || len(groups) == 0 {
		reject(c, http.StatusNotFound, detailNoSavedGrouping)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": statisticsRows(groups)})
}

// handleRawData lists stored series. Every filter is optional.
func (s *Service) handleRawData(c *gin.Context) {
	var q rawDataQuery
	if !bindQuery(c, &q) {
		return
	}
	name := strings.TrimSpace(q.ServiceName)
	times := s.data.Times()
	rows := []gin.H{}
	for _, metric := range s.data.Metrics() {
		if q.MetricType != "" && metric != q.MetricType {
			continue
		}
		for _, date := range s.data.Dates() {
			if q.Date != "" && date != q.Date {
				continue
			}
			for _, tm := range times[date] {
				if q.Time != "" && tm != q.Time {
					continue
				}
				list, _ := s.data.Series(metric, date, tm)
				for _, sr := range list {
					if name != "" && sr.Name != name {
						continue
					}
					rows = append(rows, gin.H{
						"service_name": sr.Name,
						"metric_type":  metric,
						"date":         date,
						"time":         tm,
						"values":       sr.Values,
					})
				}
			}
		}
	}
	c.JSON(http.StatusOK, rows)
}

func sortedMembers(g Group) []Member {
	out := append([]Member(nil), g.Members...)
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}
