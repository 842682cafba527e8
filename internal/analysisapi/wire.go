package analysisapi

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tinytelemetry/loadlens/internal/model"
)

// Wire shapes of the remote analysis service. Field names follow the
// service's JSON; validate tags describe the accepted shape.

type optionsWire struct {
	Dates       []string            `json:"dates" validate:"required,dive,required"`
	Times       map[string][]string `json:"times" validate:"required"`
	MetricTypes []string            `json:"metric_types" validate:"required,dive,required"`
}

func (w optionsWire) toModel() (model.AvailableOptions, error) {
	seen := make(map[string]bool, len(w.Dates))
	times := make(map[string][]string, len(w.Dates))
	for _, d := range w.Dates {
		if seen[d] {
			return model.AvailableOptions{}, fmt.Errorf("date %q listed twice", d)
		}
		seen[d] = true
		ts, ok := w.Times[d]
		if !ok || ts == nil {
			return model.AvailableOptions{}, fmt.Errorf("missing times for date %q", d)
		}
		times[d] = append([]string(nil), ts...)
	}
	return model.AvailableOptions{
		Dates:       append([]string(nil), w.Dates...),
		TimesByDate: times,
		MetricKinds: append([]string(nil), w.MetricTypes...),
	}, nil
}

type groupWire struct {
	ID       int      `json:"id" validate:"gte=1"`
	Services []string `json:"services" validate:"required"`
}

type groupsWire struct {
	Groups []groupWire `json:"groups" validate:"required,dive"`
}

func (w groupsWire) toModel() []model.GroupDescriptor {
	out := make([]model.GroupDescriptor, 0, len(w.Groups))
	for _, g := range w.Groups {
		out = append(out, model.GroupDescriptor{ID: g.ID, Services: append([]string(nil), g.Services...)})
	}
	return out
}

type splitServicesWire struct {
	SplitServices []string `json:"split_services" validate:"required,dive,required"`
}

type statisticsRowWire struct {
	GroupID     int      `json:"group_id" validate:"gte=1"`
	NumServices int      `json:"num_services" validate:"gte=0"`
	MeanLoad    float64  `json:"mean_load"`
	PeakLoad    float64  `json:"peak_load"`
	Stability   float64  `json:"stability"`
	Services    []string `json:"services" validate:"required"`
}

type statisticsWire struct {
	Statistics []statisticsRowWire `json:"statistics" validate:"required,dive"`
}

func (w statisticsWire) toModel() []model.GroupStatistics {
	out := make([]model.GroupStatistics, 0, len(w.Statistics))
	for _, r := range w.Statistics {
		out = append(out, model.GroupStatistics{
			GroupID:          r.GroupID,
			ServiceCount:     r.NumServices,
			MeanLoad:         r.MeanLoad,
			PeakLoad:         r.PeakLoad,
			StabilityPercent: r.Stability,
			Services:         append([]string(nil), r.Services...),
		})
	}
	return out
}

type messageWire struct {
	Message string `json:"message" validate:"required"`
}

type autoNormalizeRequestWire struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type autoNormalizeWire struct {
	KeyResource   string  `json:"key_resource" validate:"required"`
	ScalingFactor float64 `json:"scaling_factor"`
	Message       string  `json:"message"`
}

type healthWire struct {
	Status string `json:"status" validate:"required"`
}

type rawSeriesWire struct {
	ServiceName string    `json:"service_name" validate:"required"`
	MetricType  string    `json:"metric_type" validate:"required"`
	Date        string    `json:"date" validate:"required"`
	Time        string    `json:"time" validate:"required"`
	Values      []float64 `json:"values" validate:"required"`
}

func (w rawSeriesWire) toModel() model.RawSeries {
	return model.RawSeries{
		Service:    w.ServiceName,
		MetricKind: w.MetricType,
		Date:       w.Date,
		Time:       w.Time,
		Values:     append([]float64(nil), w.Values...),
	}
}

type runGroupingRequestWire struct {
	MetricType         string  `json:"metric_type"`
	Date               string  `json:"date"`
	Time               string  `json:"time"`
	MaxGroupSize       int     `json:"max_group_size"`
	StabilityThreshold float64 `json:"stability_threshold"`
}

type runGroupingInfoWire struct {
	GroupsCount   int `json:"groups_count" validate:"gte=0"`
	ServicesCount int `json:"services_count" validate:"gte=0"`
}

type runGroupingWire struct {
	Groups []json.RawMessage   `json:"groups" validate:"required"`
	Info   runGroupingInfoWire `json:"metrics_info"`
}

type savedGroupingWire struct {
	Date       string `json:"date" validate:"required"`
	Time       string `json:"time" validate:"required"`
	MetricType string `json:"metric_type" validate:"required"`
	NumGroups  int    `json:"num_groups" validate:"gte=0"`
}

type savedMemberWire struct {
	ComponentType string    `json:"component_type" validate:"oneof=original base peak"`
	LoadData      []float64 `json:"load_data" validate:"required"`
}

type savedLoadWire struct {
	GroupID  int                        `json:"group_id" validate:"gte=1"`
	Services map[string]savedMemberWire `json:"services" validate:"required,dive"`
}

// toModel orders members by service name.
func (w savedLoadWire) toModel() model.SavedGroupLoad {
	names := make([]string, 0, len(w.Services))
	for name := range w.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	out := model.SavedGroupLoad{GroupID: w.GroupID, Members: make([]model.SavedMember, 0, len(names))}
	for _, name := range names {
		m := w.Services[name]
		out.Members = append(out.Members, model.SavedMember{
			Service:   name,
			Component: m.ComponentType,
			Values:    append([]float64(nil), m.LoadData...),
		})
	}
	return out
}
